package bot

import (
	"context"
	"errors"
	"log"

	gencode "github.com/nevindra/gencode"
	"github.com/nevindra/gencode/generate"
)

// route handles an incoming message through the routing pipeline.
func (a *App) route(ctx context.Context, msg gencode.IncomingMessage) {
	log.Printf(" [recv] from=%s chat=%s", msg.UserID, msg.ChatID)

	// 1. Auth check
	if !a.isAllowed(msg.UserID) {
		log.Printf(" [auth] DENIED user=%s", msg.UserID)
		return
	}

	// 2. Command dispatch; plain text is ignored.
	cmd, ok := parseCommand(msg.Text, a.botName)
	if !ok {
		return
	}

	switch cmd.name {
	case cmdStart, cmdHelp:
		log.Printf(" [cmd] /%s", cmd.name)
		a.send(ctx, msg.ChatID, a.gen.Catalog().Usage)

	case cmdGenerate:
		log.Printf(" [cmd] /%s len=%d", cmd.name, len(cmd.arg))
		_ = a.frontend.SendTyping(ctx, msg.ChatID)
		a.generate(ctx, msg, cmd.arg)

	default:
		log.Printf(" [cmd] unknown /%s", cmd.name)
	}
}

// generate runs the pipeline and logs how it ended. Every failure category
// has already been reported to the chat by the pipeline itself.
func (a *App) generate(ctx context.Context, msg gencode.IncomingMessage, prompt string) {
	send := func(ctx context.Context, text string) error {
		_, err := a.frontend.Send(ctx, msg.ChatID, text)
		if err != nil {
			log.Printf(" [send] chat=%s error: %v", msg.ChatID, err)
		}
		return err
	}

	err := a.gen.Handle(ctx, generate.Request{Prompt: prompt, ChatID: msg.ChatID}, send)

	var genErr *generate.GenerationError
	var execErr *gencode.ExecutionError
	switch {
	case err == nil:
		log.Printf(" [exec] ok chat=%s", msg.ChatID)
	case errors.Is(err, generate.ErrUsage):
		log.Printf(" [gen] empty prompt chat=%s", msg.ChatID)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Printf(" [gen] cancelled chat=%s", msg.ChatID)
	case errors.As(err, &genErr):
		log.Printf(" [gen] failed chat=%s: %v", msg.ChatID, err)
	case errors.As(err, &execErr):
		log.Printf(" [exec] failed chat=%s kind=%s", msg.ChatID, execErr.Outcome.Kind)
	default:
		log.Printf(" [gen] error chat=%s: %v", msg.ChatID, err)
	}
}

func (a *App) send(ctx context.Context, chatID, text string) {
	if _, err := a.frontend.Send(ctx, chatID, text); err != nil {
		log.Printf(" [send] chat=%s error: %v", chatID, err)
	}
}

// isAllowed checks the owner allow-list. An empty list admits everyone.
func (a *App) isAllowed(userID string) bool {
	if a.allowed == nil {
		return true
	}
	return a.allowed[userID]
}
