package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	gencode "github.com/nevindra/gencode"
	"github.com/nevindra/gencode/internal/config"
)

func historyCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	var chatID string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded requests, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openHistory(ctx, cfg.History, newLogger(flags.verbose))
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("history is disabled; set history.driver in the config")
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, chatID, limit)
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().StringVar(&chatID, "chat", "", "only runs from this chat")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	return cmd
}

func printRuns(w io.Writer, runs []gencode.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCHAT\tSTATUS\tDURATION\tPROMPT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			time.Unix(r.CreatedAt, 0).UTC().Format(time.DateTime),
			r.ChatID,
			runStatus(r),
			(time.Duration(r.DurationMs) * time.Millisecond).String(),
			clip(r.Prompt, 60))
	}
	return tw.Flush()
}

func runStatus(r gencode.Run) string {
	if r.Status == gencode.RunExecutionFailed {
		return string(r.Status) + "/" + r.Kind.String()
	}
	return string(r.Status)
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}
