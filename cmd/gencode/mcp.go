package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nevindra/gencode/internal/config"
	"github.com/nevindra/gencode/mcp"
)

func mcpCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve execute_code and generate_code as MCP tools over stdio",
		Long: `Serve the runner (execute_code) and, when a provider is configured, the
full pipeline (generate_code) as Model Context Protocol tools on stdin/stdout.
Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := buildStack(ctx, cfg, flags, false)
			if err != nil {
				return err
			}
			defer s.Close()

			return mcp.New("gencode", version, s.runner, s.gen, s.logger).Serve(ctx)
		},
	}
}
