package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"animewatch/internal/media"
)

// watchRun is the default command: animewatch <title>
func watchRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var first media.Title
	if query := strings.Join(args, " "); query != "" {
		first, err = a.pickTitle(ctx, query)
	} else {
		first, err = a.ChooseTitle(ctx)
	}
	if err != nil {
		return ignoreCancel(err)
	}
	return watchFrom(ctx, a, first)
}

// watchFrom plays first and then keeps offering title selection.
func watchFrom(ctx context.Context, a *app, first media.Title) error {
	orch, err := a.orchestrator()
	if err != nil {
		return err
	}
	logger.Info("watch session started", slog.String("title", first.Name))
	return ignoreCancel(orch.Run(ctx, first, a))
}
