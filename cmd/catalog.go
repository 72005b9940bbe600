package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"animewatch/internal/media"
)

var (
	flagImportStart int
	flagImportPages int
	flagImportYes   bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the local title catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Fill the catalog from the site's A-Z listing",
	Args:  cobra.NoArgs,
	RunE:  catalogImportRun,
}

var catalogSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the local catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE:  catalogSearchRun,
}

func init() {
	catalogImportCmd.Flags().IntVar(&flagImportStart, "start", 1, "First listing page")
	catalogImportCmd.Flags().IntVarP(&flagImportPages, "pages", "n", 10, "Number of listing pages to import")
	catalogImportCmd.Flags().BoolVarP(&flagImportYes, "yes", "y", false, "Do not ask for confirmation")

	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogSearchCmd)
}

func catalogImportRun(cmd *cobra.Command, args []string) error {
	if flagImportStart < 1 || flagImportPages < 1 {
		return fmt.Errorf("--start and --pages must be at least 1")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if !flagImportYes {
		ok, err := a.term.Confirm(fmt.Sprintf("Import %d listing page(s) from %s?", flagImportPages, a.site.BaseURL()))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	var total int
	for page := flagImportStart; page < flagImportStart+flagImportPages; page++ {
		titles, err := a.site.Listing(ctx, page)
		if err != nil {
			return fmt.Errorf("importing page %d: %w", page, err)
		}
		if len(titles) == 0 {
			logger.Info("listing exhausted", slog.Int("page", page))
			break
		}
		n, err := a.catalog.Upsert(ctx, titles)
		if err != nil {
			return err
		}
		total += n
		a.term.Notify("Page %d: %d titles", page, n)
	}

	count, err := a.catalog.Count(ctx)
	if err != nil {
		return err
	}
	logger.Info("catalog import finished",
		slog.Int("imported", total),
		slog.Int("catalog_size", count))
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d titles; the catalog now holds %d.\n", total, count)
	return nil
}

func catalogSearchRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.catalog.Search(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching titles.")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), titlesTable(results))
	return nil
}

func titlesTable(titles []media.Title) string {
	rows := make([][]string, len(titles))
	for i, t := range titles {
		rows[i] = []string{t.Name, t.Link}
	}
	return renderTable([]string{"Title", "Link"}, rows, nil)
}
