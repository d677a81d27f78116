// Command sandbox serves the restricted runner over HTTP for gencode's remote
// engine (sandbox.engine = "remote").
//
// It runs code in-process on the Starlark interpreter, or in throwaway Docker
// containers with SANDBOX_ENGINE=docker, and answers:
//
//	POST /execute  run code, respond with the outcome
//	GET  /health   readiness
//
// Set SANDBOX_TLS_CERT and SANDBOX_TLS_KEY to serve HTTPS; adding
// SANDBOX_TLS_CA requires clients to present a certificate from that CA.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	gencode "github.com/nevindra/gencode"
	"github.com/nevindra/gencode/sandbox"
)

type config struct {
	addr          string
	engine        string
	maxConcurrent int
	timeout       time.Duration
	maxOutput     int
	profile       string
	allow         []string
	image         string
	tlsCert       string
	tlsKey        string
	tlsCA         string
}

func loadConfig() config {
	cfg := config{
		addr:          ":9000",
		engine:        "interpreter",
		maxConcurrent: 4,
		timeout:       10 * time.Second,
		maxOutput:     64 * 1024,
		profile:       "default",
	}
	if v := os.Getenv("SANDBOX_ADDR"); v != "" {
		cfg.addr = v
	}
	if v := os.Getenv("SANDBOX_ENGINE"); v != "" {
		cfg.engine = v
	}
	if v := os.Getenv("SANDBOX_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.maxConcurrent = n
		}
	}
	if v := os.Getenv("SANDBOX_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.timeout = d
		}
	}
	if v := os.Getenv("SANDBOX_MAX_OUTPUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.maxOutput = n
		}
	}
	if v := os.Getenv("SANDBOX_PROFILE"); v != "" {
		cfg.profile = v
	}
	if v := os.Getenv("SANDBOX_ALLOW"); v != "" {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.allow = append(cfg.allow, name)
			}
		}
	}
	cfg.image = os.Getenv("SANDBOX_IMAGE")
	cfg.tlsCert = os.Getenv("SANDBOX_TLS_CERT")
	cfg.tlsKey = os.Getenv("SANDBOX_TLS_KEY")
	cfg.tlsCA = os.Getenv("SANDBOX_TLS_CA")
	return cfg
}

// newRunner builds the engine; close is nil for the interpreter.
func newRunner(cfg config, logger *slog.Logger) (gencode.Runner, func() error, error) {
	caps, err := sandbox.ParseCapabilities(cfg.profile, cfg.allow)
	if err != nil {
		return nil, nil, err
	}
	opts := []sandbox.Option{
		sandbox.WithTimeout(cfg.timeout),
		sandbox.WithMaxOutput(cfg.maxOutput),
		sandbox.WithCapabilities(caps),
		sandbox.WithLogger(logger),
	}
	if cfg.engine == "docker" {
		if cfg.image != "" {
			opts = append(opts, sandbox.WithImage(cfg.image))
		}
		c, err := sandbox.NewContainer(opts...)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	}
	return sandbox.NewInterpreter(opts...), nil, nil
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmsgprefix)
	log.SetPrefix("[sandbox] ")

	cfg := loadConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	runner, closeRunner, err := newRunner(cfg, logger)
	if err != nil {
		log.Fatalf("runner: %v", err)
	}
	if closeRunner != nil {
		defer closeRunner()
	}

	srv := &http.Server{
		Addr: cfg.addr,
		Handler: sandbox.NewHandler(runner,
			sandbox.WithMaxConcurrent(cfg.maxConcurrent),
			sandbox.WithHandlerLogger(logger)),
		ReadTimeout:  time.Minute,
		WriteTimeout: 6 * time.Minute,
		IdleTimeout:  30 * time.Second,
	}
	if cfg.tlsCert != "" {
		tlsCfg, err := sandbox.ServerTLS(cfg.tlsCA, cfg.tlsCert, cfg.tlsKey)
		if err != nil {
			log.Fatalf("tls: %v", err)
		}
		srv.TLSConfig = tlsCfg
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("listening on %s (engine=%s, tls=%t, mtls=%t)", cfg.addr, cfg.engine, srv.TLSConfig != nil, cfg.tlsCA != "")
		var err error
		if srv.TLSConfig != nil {
			// Certificates are already loaded into TLSConfig.
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")

	shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Println("stopped")
}
