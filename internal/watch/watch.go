// Package watch runs the per-title viewing loop: pick a starting episode,
// resolve and play it, record it as watched and follow the episode menu
// until the user changes title or quits.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"animewatch/internal/media"
	"animewatch/internal/navigator"
	"animewatch/internal/player"
	"animewatch/internal/quality"
	"animewatch/internal/ui"
)

// Resolver turns an episode page into playable renditions.
type Resolver interface {
	Resolve(ctx context.Context, episodeURL string) ([]media.Rendition, error)
}

// History is the watch progress store.
type History interface {
	Unwatched(title string, start, end int) ([]int, error)
	MarkWatched(title string, episode int) error
}

// Site maps titles and episodes to page URLs.
type Site interface {
	TitleURL(t media.Title) (string, error)
	EpisodeRange(ctx context.Context, titleURL string) (media.EpisodeRange, error)
	EpisodeURL(title string, n int) string
}

// Expander splits an HLS master playlist into per-quality renditions.
type Expander interface {
	Expand(ctx context.Context, r media.Rendition) ([]media.Rendition, error)
}

// Prompter asks the user for episode choices.
type Prompter interface {
	ChooseEpisode(title string, unwatched []int, start, last int) (int, error)
	Menu(state ui.MenuState) (navigator.Action, error)
	Notify(format string, args ...any)
}

// TitleChooser picks the next title to watch. Returning ui.ErrCancelled
// ends the run.
type TitleChooser interface {
	ChooseTitle(ctx context.Context) (media.Title, error)
}

// Sessions hands out the single player session.
type Sessions interface {
	Open() (*player.Session, error)
	Close() error
}

// Options configures an Orchestrator. Expander and Logger are optional.
type Options struct {
	Resolver Resolver
	History  History
	Site     Site
	Expander Expander
	Sessions Sessions
	Prompter Prompter
	Quality  string
	Logger   *slog.Logger
}

// Orchestrator ties navigation, resolution, history and playback together.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{opts: opts, logger: logger}
}

// Run watches first, then keeps asking chooser for titles until the user
// quits or cancels title selection.
func (o *Orchestrator) Run(ctx context.Context, first media.Title, chooser TitleChooser) error {
	title := first
	for {
		kind, err := o.WatchTitle(ctx, title)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var pe *PersistError
			if errors.As(err, &pe) {
				return err
			}
			o.logger.Error("watch session ended", slog.String("title", title.Name), slog.Any("error", err))
			if chooser == nil {
				return err
			}
			o.opts.Prompter.Notify("Could not play %s: %v", title.Name, err)
			kind = navigator.Change
		}
		if kind == navigator.Exit || chooser == nil {
			return nil
		}

		title, err = chooser.ChooseTitle(ctx)
		if errors.Is(err, ui.ErrCancelled) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// PersistError wraps a failure to record watch progress. It is fatal: the
// loop stops rather than silently losing history.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string { return "saving watch history: " + e.Err.Error() }

func (e *PersistError) Unwrap() error { return e.Err }

// WatchTitle runs the episode loop for one title and reports whether the
// user asked to change title (navigator.Change) or quit (navigator.Exit).
// The player is torn down before it returns.
func (o *Orchestrator) WatchTitle(ctx context.Context, title media.Title) (navigator.Kind, error) {
	titleURL, err := o.opts.Site.TitleURL(title)
	if err != nil {
		return navigator.Change, err
	}
	r, err := o.opts.Site.EpisodeRange(ctx, titleURL)
	if err != nil {
		return navigator.Change, fmt.Errorf("reading episode range: %w", err)
	}

	unwatched, err := o.opts.History.Unwatched(title.Name, r.Start, r.End)
	if err != nil {
		return navigator.Change, &PersistError{Err: err}
	}

	first, err := o.opts.Prompter.ChooseEpisode(title.Name, unwatched, r.Start, r.End)
	if errors.Is(err, io.EOF) {
		return navigator.Exit, nil
	}
	if err != nil {
		return navigator.Exit, err
	}
	if first == 0 {
		return navigator.Exit, nil
	}

	nav, err := navigator.New(r.Start, first, r.End)
	if err != nil {
		return navigator.Change, err
	}

	session, err := o.opts.Sessions.Open()
	if err != nil {
		return navigator.Change, err
	}
	defer func() {
		if err := o.opts.Sessions.Close(); err != nil {
			o.logger.Warn("stopping player", slog.Any("error", err))
		}
	}()

	for {
		episode := nav.Current()
		if err := o.playEpisode(ctx, session, title.Name, episode); err != nil {
			return navigator.Change, err
		}
		if err := o.opts.History.MarkWatched(title.Name, episode); err != nil {
			return navigator.Change, &PersistError{Err: err}
		}
		o.logger.Info("episode watched", slog.String("title", title.Name), slog.Int("episode", episode))

		res, err := o.menu(title.Name, nav)
		if err != nil {
			return navigator.Exit, err
		}
		if res.Kind != navigator.Continue {
			return res.Kind, nil
		}
	}
}

// menu prompts until the user picks a move to another episode or a
// terminal action. Unknown input and moves past the range re-prompt.
func (o *Orchestrator) menu(title string, nav *navigator.Navigator) (navigator.Result, error) {
	status := ""
	for {
		s := nav.State()
		action, err := o.opts.Prompter.Menu(ui.MenuState{
			Title:   title,
			Episode: s.Current,
			Start:   s.Start,
			Max:     s.Max,
			Status:  status,
		})
		if err != nil {
			return navigator.Result{}, err
		}

		res := nav.Apply(action)
		switch {
		case res.Reprompt:
			status = "Unknown option."
		case res.Boundary && action == navigator.Next:
			status = "Already at the last episode."
		case res.Boundary && action == navigator.Previous:
			status = "Already at the first episode."
		default:
			return res, nil
		}
	}
}

// playEpisode resolves episode and hands the chosen rendition to the player.
func (o *Orchestrator) playEpisode(ctx context.Context, session *player.Session, title string, episode int) error {
	episodeURL := o.opts.Site.EpisodeURL(title, episode)
	o.logger.Debug("resolving episode", slog.String("url", episodeURL))

	renditions, err := o.opts.Resolver.Resolve(ctx, episodeURL)
	if err != nil {
		return fmt.Errorf("resolving episode %d: %w", episode, err)
	}
	renditions = o.expand(ctx, renditions)

	choice, err := quality.Select(renditions, o.opts.Quality)
	if err != nil {
		return fmt.Errorf("selecting quality: %w", err)
	}
	o.logger.Info("playing",
		slog.String("title", title),
		slog.Int("episode", episode),
		slog.String("label", choice.Label),
		slog.String("transport", choice.Transport.String()))

	if err := session.Play(ctx, choice.FileURL); err != nil {
		return fmt.Errorf("playing episode %d: %w", episode, err)
	}
	o.opts.Prompter.Notify("Playing %s episode %d", title, episode)
	return nil
}

// expand replaces a lone HLS master rendition with its variants when a
// concrete quality was requested. Failures keep the original list.
func (o *Orchestrator) expand(ctx context.Context, renditions []media.Rendition) []media.Rendition {
	if o.opts.Expander == nil || len(renditions) != 1 ||
		renditions[0].Transport != media.HLS || !quality.IsNumeric(o.opts.Quality) {
		return renditions
	}
	expanded, err := o.opts.Expander.Expand(ctx, renditions[0])
	if err != nil || len(expanded) == 0 {
		o.logger.Warn("hls expansion failed, using master playlist", slog.Any("error", err))
		return renditions
	}
	return expanded
}
