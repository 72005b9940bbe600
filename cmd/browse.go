package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
)

var browseCmd = &cobra.Command{
	Use:   "browse [page]",
	Short: "Browse a page of the site's A-Z listing",
	Args:  cobra.MaximumNArgs(1),
	RunE:  browseRun,
}

func browseRun(cmd *cobra.Command, args []string) error {
	page, err := parsePageArg(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.site.Listing(ctx, page)
	if err != nil {
		return fmt.Errorf("getting listing: %w", err)
	}

	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No titles on this page.")
		return nil
	}

	// Browsed titles are remembered for later searches.
	if _, err := a.catalog.Upsert(ctx, results); err != nil {
		logger.Warn("caching listing page", slog.Int("page", page), slog.Any("error", err))
	}

	items := make([]string, len(results))
	for i, r := range results {
		items[i] = r.Name
	}

	idx, err := a.term.Choose(fmt.Sprintf("Page %d", page), items)
	if err != nil {
		return ignoreCancel(err)
	}

	return watchFrom(ctx, a, results[idx])
}

func parsePageArg(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil // Default
	}
	page, err := strconv.Atoi(args[0])
	if err != nil || page < 1 {
		return 0, fmt.Errorf("invalid page %q", args[0])
	}
	return page, nil
}
