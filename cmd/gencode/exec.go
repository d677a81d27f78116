package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	gencode "github.com/nevindra/gencode"
	"github.com/nevindra/gencode/internal/config"
)

func execCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	var stream bool

	cmd := &cobra.Command{
		Use:   "exec <file|->",
		Short: "Run a file through the configured runner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readSource(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := buildStack(ctx, cfg, flags, false)
			if err != nil {
				return err
			}
			defer s.Close()

			var out gencode.ExecutionOutcome
			sr, streamed := s.runner.(gencode.SinkRunner)
			streamed = streamed && stream
			if streamed {
				out = sr.ExecuteTo(ctx, code, gencode.WriterSink(cmd.OutOrStdout(), cmd.ErrOrStderr()))
			} else {
				out = s.runner.Execute(ctx, code)
				if out.Succeeded && out.Text != "" {
					fmt.Fprintln(cmd.OutOrStdout(), out.Text)
				}
			}
			if !out.Succeeded {
				diag := out.Text
				if streamed {
					// The traceback already went to stderr.
					diag, _, _ = strings.Cut(diag, "\n")
				}
				fmt.Fprintln(cmd.ErrOrStderr(), diag)
			}
			s.logger.Debug("exec done", "kind", out.Kind.String(), "duration", out.Duration)
			return out.Err()
		},
	}
	cmd.Flags().BoolVarP(&stream, "stream", "s", false, "write output as it is produced")
	return cmd
}

func readSource(stdin io.Reader, name string) (string, error) {
	if name == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(b), nil
}
