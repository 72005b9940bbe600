package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"animewatch/internal/history"
	"animewatch/internal/media"
)

var flagResume bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show watch history, or resume a title from it",
	Args:  cobra.NoArgs,
	RunE:  historyRun,
}

func init() {
	historyCmd.Flags().BoolVarP(&flagResume, "resume", "r", false, "Pick a title from history and keep watching")
}

func historyRun(cmd *cobra.Command, args []string) error {
	path, err := cfg.HistoryPath()
	if err != nil {
		return err
	}
	store, err := history.Open(path, logger)
	if err != nil {
		return fmt.Errorf("opening watch history: %w", err)
	}
	records, err := store.Records()
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No history entries found.")
		return nil
	}

	if !flagResume {
		fmt.Fprintln(cmd.OutOrStdout(), historyTable(records))
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	items := make([]string, len(records))
	for i, r := range records {
		items[i] = fmt.Sprintf("%s (watched: %s)", r.Title, history.FormatEpisodes(r.Watched))
	}
	idx, err := a.term.Choose("History", items)
	if err != nil {
		return ignoreCancel(err)
	}

	// Prefer the catalog entry so the title page link is exact.
	title := media.Title{Name: records[idx].Title}
	if t, ok, err := a.catalog.Lookup(ctx, title.Name); err == nil && ok {
		title = t
	}
	return watchFrom(ctx, a, title)
}

func historyTable(records []history.Record) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{r.Title, strconv.Itoa(len(r.Watched)), history.FormatEpisodes(r.Watched)})
	}
	return renderTable(
		[]string{"Title", "Watched", "Episodes"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft},
	)
}
