// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"animewatch/internal/config"
	"animewatch/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagQuality    string
	flagPlayer     string
	flagBase       string
	flagWindowed   bool
	flagDebug      bool
	flagConfigFile string
)

// cfg holds the loaded configuration (merged: defaults < config file < flags).
var cfg *config.Config

// logger is built from cfg in loadConfig; closeLog releases its file.
var (
	logger   = slog.New(slog.DiscardHandler)
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "animewatch [title]",
	Short: "Stream anime episodes from the terminal",
	Long: `Animewatch resolves anime episode pages into playable streams and plays
them in mpv, remembering which episodes of each title you have watched.`,
	Args:               cobra.ArbitraryArgs,
	SilenceUsage:       true,
	PersistentPreRunE:  loadConfig,
	PersistentPostRunE: func(*cobra.Command, []string) error { return closeLog() },
	RunE:               watchRun,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagQuality, "quality", "q", "", "Video quality: best | worst | 360 | 480 | 720 | 1080")
	rootCmd.PersistentFlags().StringVar(&flagPlayer, "player", "", "Path to the mpv binary")
	rootCmd.PersistentFlags().StringVar(&flagBase, "base", "", "Site host, e.g. gogoanime3.net")
	rootCmd.PersistentFlags().BoolVarP(&flagWindowed, "windowed", "w", false, "Do not start the player fullscreen")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")
	rootCmd.PersistentFlags().StringVarP(&flagConfigFile, "config", "C", "", "Config file (default: $XDG_CONFIG_HOME/animewatch/config.toml)")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if flagConfigFile != "" {
		cfg, err = config.LoadFile(flagConfigFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagPlayer != "" {
		cfg.Player = flagPlayer
	}
	if flagQuality != "" {
		cfg.Quality = flagQuality
	}
	if flagBase != "" {
		cfg.Base = flagBase
	}
	if flagWindowed {
		cfg.Fullscreen = false
	}
	if flagDebug {
		cfg.Debug = true
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logDir, err := cfg.LogPath()
	if err != nil {
		return err
	}
	logger, closeLog, err = logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Dir:    logDir,
		Debug:  cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	logger.Debug("configuration loaded",
		slog.String("base", cfg.Base),
		slog.String("quality", cfg.Quality),
		slog.String("player", cfg.Player))
	return nil
}
