package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"animewatch/internal/catalog"
	"animewatch/internal/extract"
	"animewatch/internal/history"
	"animewatch/internal/httputil"
	"animewatch/internal/media"
	"animewatch/internal/player"
	"animewatch/internal/provider"
	"animewatch/internal/quality"
	"animewatch/internal/ui"
	"animewatch/internal/watch"
)

// app is the wired set of components a command works with.
type app struct {
	fetcher *httputil.Fetcher
	site    *provider.Site
	catalog *catalog.Store
	term    *ui.Terminal
}

func newApp() (*app, error) {
	catalogPath, err := cfg.CatalogPath()
	if err != nil {
		return nil, err
	}
	store, err := catalog.Open(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	fetcher := httputil.NewFetcher(httputil.NewClient(logger))
	return &app{
		fetcher: fetcher,
		site:    provider.NewSite(cfg.Base, fetcher, logger),
		catalog: store,
		term:    ui.NewTerminal(),
	}, nil
}

func (a *app) Close() error {
	return a.catalog.Close()
}

// orchestrator wires the viewing loop around the configured player.
func (a *app) orchestrator() (*watch.Orchestrator, error) {
	launcher := &player.MPVLauncher{Binary: cfg.Player, Fullscreen: cfg.Fullscreen, Logger: logger}
	if !launcher.Available() {
		return nil, fmt.Errorf("player %q not found in PATH", cfg.Player)
	}

	historyPath, err := cfg.HistoryPath()
	if err != nil {
		return nil, err
	}
	store, err := history.Open(historyPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening watch history: %w", err)
	}

	opts := watch.Options{
		Resolver: extract.NewGogo(a.fetcher, logger),
		History:  store,
		Site:     a.site,
		Sessions: player.NewManager(launcher, logger),
		Prompter: a.term,
		Quality:  cfg.Quality,
		Logger:   logger,
	}
	if cfg.ExpandHLS {
		opts.Expander = quality.NewExpander(a.fetcher)
	}
	return watch.New(opts), nil
}

// ChooseTitle asks for a search query and a title from the local catalog.
func (a *app) ChooseTitle(ctx context.Context) (media.Title, error) {
	query, err := a.term.Query("Search anime")
	if err != nil {
		return media.Title{}, ui.ErrCancelled
	}
	return a.pickTitle(ctx, query)
}

// pickTitle searches the catalog for query. With no catalog match the user
// may try the query itself as a title name.
func (a *app) pickTitle(ctx context.Context, query string) (media.Title, error) {
	query = strings.TrimSpace(query)
	results, err := a.catalog.Search(ctx, query)
	if err != nil {
		return media.Title{}, err
	}

	if len(results) == 0 {
		if n, err := a.catalog.Count(ctx); err == nil && n == 0 {
			a.term.Notify("The title catalog is empty; run `animewatch catalog import` to fill it.")
		}
		ok, err := a.term.Confirm(fmt.Sprintf("No catalog match for %q. Try it as a title name?", query))
		if err != nil {
			return media.Title{}, err
		}
		if !ok {
			return media.Title{}, ui.ErrCancelled
		}
		return media.Title{Name: query}, nil
	}

	names := make([]string, len(results))
	for i, t := range results {
		names[i] = t.Name
	}
	idx, err := a.term.Choose("Select anime", names)
	if err != nil {
		return media.Title{}, err
	}
	logger.Debug("title selected",
		slog.String("title", results[idx].Name),
		slog.String("link", results[idx].Link))
	return results[idx], nil
}

// ignoreCancel turns a user cancellation into a clean exit.
func ignoreCancel(err error) error {
	if errors.Is(err, ui.ErrCancelled) {
		return nil
	}
	return err
}
