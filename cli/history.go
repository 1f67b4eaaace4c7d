package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"biomedtube/history"
	"biomedtube/youtube"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.History.Path == "" {
			return errors.New("history is disabled (set history.path or BIOMEDTUBE_HISTORY_PATH)")
		}

		limit, _ := cmd.Flags().GetInt("limit")

		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.List(limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		printHistory(cmd.OutOrStdout(), records)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum runs to list (0 = all)")
	rootCmd.AddCommand(historyCmd)
}

func printHistory(out io.Writer, records []history.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSTATUS\tCONCEPT\tDURATION\tRESULT")
	for _, r := range records {
		result := r.Error
		if r.Status == history.StatusSucceeded {
			result = youtube.WatchURL(r.VideoID)
		} else if r.Stage != "" {
			result = r.Stage + ": " + r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Status,
			truncate(r.Concept, 40),
			r.Duration().Round(time.Second),
			truncate(result, 60),
		)
	}
	w.Flush()
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
