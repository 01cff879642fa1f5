package main

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/anduleh/save-to-google-photos/internal/history"
)

// sourceColumnWidth keeps the history table readable for long URLs.
const sourceColumnWidth = 60

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent upload attempts",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().IntP("limit", "n", history.DefaultLimit, "number of entries to show")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	if !cc.Cfg.HistoryEnabled {
		return errors.New("history is disabled (history_enabled = false)")
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	store, err := history.Open(cmd.Context(), cc.Cfg.HistoryPath, cc.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		if records == nil {
			records = []history.Record{}
		}

		return printJSON(os.Stdout, records)
	}

	if len(records) == 0 {
		cc.Statusf("No uploads recorded yet.\n")
		return nil
	}

	printHistoryTable(os.Stdout, records, time.Now())

	return nil
}

func printHistoryTable(w io.Writer, records []history.Record, now time.Time) {
	rows := make([][]string, 0, len(records))

	for i := range records {
		r := &records[i]

		result := r.MediaItemID
		if r.Status == history.StatusFailed {
			result = r.Error
		}

		rows = append(rows, []string{
			formatTime(r.StartedAt, now),
			string(r.Status),
			formatSize(r.Size),
			formatDuration(r.Duration()),
			truncate(r.SourceURL, sourceColumnWidth),
			result,
		})
	}

	printTable(w, []string{"WHEN", "STATUS", "SIZE", "TOOK", "SOURCE", "RESULT"}, rows)
}
