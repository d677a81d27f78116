package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nevindra/gencode/frontend/telegram"
	"github.com/nevindra/gencode/frontend/websocket"
	"github.com/nevindra/gencode/internal/bot"
	"github.com/nevindra/gencode/internal/config"
)

func botCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Serve /generate_code on the configured chat frontends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBot(ctx, cfg, flags)
		},
	}
}

func runBot(ctx context.Context, cfg *config.Config, flags *globalFlags) error {
	if cfg.Telegram.Token == "" && !cfg.WebSocket.Enabled {
		return errors.New("no frontend configured: set telegram.token or websocket.enabled")
	}

	s, err := buildStack(ctx, cfg, flags, true)
	if err != nil {
		return err
	}
	defer s.Close()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Telegram.Token != "" {
		tg := telegram.NewBot(cfg.Telegram.Token, telegram.WithLogger(s.logger))
		name := ""
		if me, err := tg.Me(ctx); err != nil {
			log.Printf(" [telegram] getMe failed: %v", err)
		} else {
			name = me.Username
			log.Printf(" [telegram] connected as @%s", name)
		}
		app := bot.New(cfg, bot.Deps{Frontend: tg, Generator: s.gen, BotName: name})
		g.Go(func() error { return ignoreCancel(app.Run(ctx)) })
	}

	if cfg.WebSocket.Enabled {
		ws := websocket.NewServer(
			websocket.WithAllowedOrigins(cfg.WebSocket.AllowedOrigins...),
			websocket.WithLogger(s.logger),
		)
		// The owner allow-list holds Telegram user IDs; browser clients are
		// gated by origin instead.
		wsCfg := *cfg
		wsCfg.Telegram.AllowedUsers = nil
		app := bot.New(&wsCfg, bot.Deps{Frontend: ws, Generator: s.gen})
		g.Go(func() error { return ignoreCancel(app.Run(ctx)) })
		g.Go(func() error { return serveHTTP(ctx, cfg.Server.Addr, cfg.WebSocket.Path, ws) })
	}

	return g.Wait()
}

// serveHTTP hosts the WebSocket endpoint and a health check until ctx ends.
func serveHTTP(ctx context.Context, addr, path string, ws http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle(path, ws)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf(" [http] listening on %s (websocket %s)", addr, path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Printf(" [http] shutdown error: %v", err)
	}
	return nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
