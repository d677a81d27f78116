// Command gencode generates code from natural-language prompts and runs it
// under a capability allow-list.
//
//	gencode bot               serve /generate_code over Telegram and/or WebSocket
//	gencode generate <prompt> run the pipeline once, printing the chat transcript
//	gencode exec <file|->     run a file through the configured runner
//	gencode mcp               expose the runner and pipeline as MCP tools on stdio
//	gencode history           list recorded requests
//
// Configuration is read from gencode.toml (or $GENCODE_CONFIG) with GENCODE_*
// environment overrides; a .env file in the working directory is loaded first.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nevindra/gencode/internal/config"
)

var version = "dev"

type globalFlags struct {
	configPath string
	verbose    bool
}

func main() {
	var flags globalFlags
	var cfg config.Config

	rootCmd := &cobra.Command{
		Use:           "gencode",
		Short:         "Generate code from prompts and run it in a restricted environment",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			loaded, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (default $GENCODE_CONFIG or gencode.toml)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		botCmd(&cfg, &flags),
		generateCmd(&cfg, &flags),
		execCmd(&cfg, &flags),
		mcpCmd(&cfg, &flags),
		historyCmd(&cfg, &flags),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	log.SetFlags(log.Ldate | log.Ltime)
}
