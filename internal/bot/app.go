// Package bot routes chat commands from a frontend to the code generation
// pipeline.
package bot

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	gencode "github.com/nevindra/gencode"
	"github.com/nevindra/gencode/generate"
	"github.com/nevindra/gencode/internal/config"
)

// Deps holds injected dependencies for the App.
type Deps struct {
	Frontend  gencode.Frontend
	Generator *generate.Generator
	// BotName is the bot's username. Commands addressed to another bot
	// ("/generate_code@other") are ignored when set.
	BotName string
}

// App polls a frontend and dispatches commands.
type App struct {
	frontend gencode.Frontend
	gen      *generate.Generator
	botName  string
	allowed  map[string]bool
	limit    int
}

// New creates an App.
func New(cfg *config.Config, deps Deps) *App {
	a := &App{
		frontend: deps.Frontend,
		gen:      deps.Generator,
		botName:  deps.BotName,
		limit:    cfg.Generate.Concurrency,
	}
	if len(cfg.Telegram.AllowedUsers) > 0 {
		a.allowed = make(map[string]bool, len(cfg.Telegram.AllowedUsers))
		for _, id := range cfg.Telegram.AllowedUsers {
			a.allowed[id] = true
		}
	}
	if a.limit <= 0 {
		a.limit = 1
	}
	return a
}

// Run polls messages until ctx is cancelled or the frontend closes its
// channel. At most the configured number of requests run at once; in-flight
// requests are waited for before Run returns.
func (a *App) Run(ctx context.Context) error {
	msgs, err := a.frontend.Poll(ctx)
	if err != nil {
		return fmt.Errorf("frontend poll: %w", err)
	}

	log.Printf("gencode: bot running (concurrency=%d)", a.limit)

	var g errgroup.Group
	g.SetLimit(a.limit)
	defer g.Wait()

	for {
		select {
		case <-ctx.Done():
			log.Println("gencode: shutting down")
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			g.Go(func() error {
				a.route(ctx, msg)
				return nil
			})
		}
	}
}
