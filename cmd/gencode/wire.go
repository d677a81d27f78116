package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	gencode "github.com/nevindra/gencode"
	"github.com/nevindra/gencode/generate"
	"github.com/nevindra/gencode/internal/config"
	"github.com/nevindra/gencode/observer"
	"github.com/nevindra/gencode/provider/resolve"
	"github.com/nevindra/gencode/sandbox"
	"github.com/nevindra/gencode/store/postgres"
	"github.com/nevindra/gencode/store/sqlite"
)

// stack is the set of components every subcommand draws from.
type stack struct {
	logger   *slog.Logger
	runner   gencode.Runner
	provider gencode.Provider // nil when the provider could not be built
	gen      *generate.Generator
	history  gencode.RunStore // nil when history is off
	closers  []func(context.Context) error
}

// Close releases the runner and flushes telemetry.
func (s *stack) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildStack wires runner, provider, observer and generator from cfg. When
// needProvider is false a provider error is logged and gen is left nil.
func buildStack(ctx context.Context, cfg *config.Config, flags *globalFlags, needProvider bool) (*stack, error) {
	s := &stack{logger: newLogger(flags.verbose)}

	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for model, p := range cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx, cfg.Observer.Service, pricing)
		if err != nil {
			return nil, fmt.Errorf("observer: %w", err)
		}
		s.closers = append(s.closers, shutdown)
	}

	runner, closeRunner, err := newRunner(cfg.Sandbox, s.logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	if closeRunner != nil {
		s.closers = append(s.closers, func(context.Context) error { return closeRunner() })
	}
	if inst != nil {
		runner = observer.WrapRunner(runner, cfg.Sandbox.Engine, inst)
	}
	s.runner = runner

	history, err := openHistory(ctx, cfg.History, s.logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	if history != nil {
		s.history = history
		s.closers = append(s.closers, func(context.Context) error { return history.Close() })
	}

	provider, err := newProvider(ctx, cfg, s.logger)
	if err != nil {
		if needProvider {
			s.Close()
			return nil, err
		}
		s.logger.Warn("provider unavailable, generation disabled", "error", err)
		return s, nil
	}
	if inst != nil {
		provider = observer.WrapProvider(provider, cfg.Provider.Model, inst)
	}
	s.provider = provider

	opts := []generate.Option{
		generate.WithLanguage(cfg.Generate.Language),
		generate.WithGuidelines(cfg.Generate.Guidelines),
		generate.WithLogger(s.logger),
	}
	if cfg.Generate.Temperature != nil {
		opts = append(opts, generate.WithTemperature(*cfg.Generate.Temperature))
	}
	if cfg.Generate.MaxTokens != nil {
		opts = append(opts, generate.WithMaxTokens(*cfg.Generate.MaxTokens))
	}
	if inst != nil {
		opts = append(opts, generate.WithTracer(observer.NewTracer(inst)))
	}
	switch {
	case inst != nil:
		opts = append(opts, generate.WithHistory(observer.WrapRecorder(s.history, inst)))
	case s.history != nil:
		opts = append(opts, generate.WithHistory(s.history))
	}
	s.gen = generate.New(provider, runner, opts...)
	return s, nil
}

// openHistory opens and initializes the configured run store. It returns nil
// when no driver is set.
func openHistory(ctx context.Context, cfg config.HistoryConfig, logger *slog.Logger) (gencode.RunStore, error) {
	var store gencode.RunStore
	switch cfg.Driver {
	case "":
		return nil, nil
	case "sqlite":
		path := cfg.DSN
		if path == "" {
			path = "gencode.db"
		}
		store = sqlite.New(path, sqlite.WithLogger(logger))
	case "postgres":
		if cfg.DSN == "" {
			return nil, errors.New("history: postgres driver requires history.dsn")
		}
		pg, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		store = pg
	default:
		return nil, fmt.Errorf("history: unknown driver %q", cfg.Driver)
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("history: %w", err)
	}
	return store, nil
}

func newProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (gencode.Provider, error) {
	p, err := resolve.Provider(ctx, resolve.Config{
		Provider: cfg.Provider.Name,
		APIKey:   cfg.Provider.APIKey,
		Model:    cfg.Provider.Model,
		BaseURL:  cfg.Provider.BaseURL,
		Retries:  cfg.Provider.Retries,
		Timeout:  time.Duration(cfg.Provider.Timeout) * time.Second,
		RPM:      cfg.Provider.RPM,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}
	return p, nil
}

// newRunner builds the configured engine. The returned close func is nil
// when the engine holds no resources.
func newRunner(cfg config.SandboxConfig, logger *slog.Logger) (gencode.Runner, func() error, error) {
	caps, err := sandbox.ParseCapabilities(cfg.Profile, cfg.Allow)
	if err != nil {
		return nil, nil, err
	}
	opts := []sandbox.Option{
		sandbox.WithTimeout(time.Duration(cfg.Timeout) * time.Second),
		sandbox.WithCapabilities(caps),
		sandbox.WithLogger(logger),
	}
	if cfg.MaxOutput > 0 {
		opts = append(opts, sandbox.WithMaxOutput(cfg.MaxOutput))
	}

	switch cfg.Engine {
	case "", "interpreter":
		opts = append(opts, sandbox.WithMaxSteps(cfg.MaxSteps))
		return sandbox.NewInterpreter(opts...), nil, nil

	case "docker":
		d := cfg.Docker
		if d.Image != "" {
			opts = append(opts, sandbox.WithImage(d.Image))
		}
		if d.MemoryMB > 0 {
			opts = append(opts, sandbox.WithMemoryLimit(d.MemoryMB<<20))
		}
		if d.CPUs > 0 {
			opts = append(opts, sandbox.WithCPUs(d.CPUs))
		}
		if d.PidsLimit > 0 {
			opts = append(opts, sandbox.WithPidsLimit(d.PidsLimit))
		}
		c, err := sandbox.NewContainer(opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("sandbox: docker: %w", err)
		}
		return c, c.Close, nil

	case "remote":
		r := cfg.Remote
		if r.URL == "" {
			return nil, nil, errors.New("sandbox: remote engine requires sandbox.remote.url")
		}
		if r.Retries > 0 {
			opts = append(opts, sandbox.WithMaxRetries(r.Retries))
		}
		if r.CAFile != "" {
			tlsCfg, err := sandbox.ClientTLS(r.CAFile, r.CertFile, r.KeyFile)
			if err != nil {
				return nil, nil, fmt.Errorf("sandbox: remote tls: %w", err)
			}
			opts = append(opts, sandbox.WithTLS(tlsCfg))
		}
		return sandbox.NewRemote(r.URL, opts...), nil, nil

	default:
		return nil, nil, fmt.Errorf("sandbox: unknown engine %q", cfg.Engine)
	}
}
