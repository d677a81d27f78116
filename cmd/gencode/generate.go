package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nevindra/gencode/generate"
	"github.com/nevindra/gencode/internal/config"
)

func generateCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate code for a prompt, run it and print the transcript",
		Example: `  gencode generate write a function that computes the Fibonacci sequence
  GENCODE_LANGUAGE=zh gencode generate 计算1到100的和`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := buildStack(ctx, cfg, flags, true)
			if err != nil {
				return err
			}
			defer s.Close()

			req := generate.Request{Prompt: strings.Join(args, " "), ChatID: "cli"}
			return s.gen.Handle(ctx, req, printer(cmd.OutOrStdout()))
		},
	}
}

// printer delivers each chat message to w, separated by blank lines.
func printer(w io.Writer) generate.SendFunc {
	first := true
	return func(_ context.Context, text string) error {
		if !first {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		first = false
		_, err := fmt.Fprintln(w, text)
		return err
	}
}
