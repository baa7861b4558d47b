package main

import (
	"log/slog"
	"os"

	"github.com/loqalabs/flashy-voice/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	verbose    bool
	quiet      bool
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "flashy-num",
		Short: "Inspect how spoken answers are interpreted",
		Long: `flashy-num runs the spoken-number interpreter from the command line:
parse transcripts, check give-up phrases and fuzzy matches, print the
recognizer grammar and review or export the speech log.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(opts)
		},
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress non-error output")
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "optional flashy.yaml used for speech log defaults")

	root.AddCommand(
		newParseCmd(),
		newGiveUpCmd(),
		newMatchCmd(),
		newVocabCmd(),
		newReviewCmd(opts),
		newExportCmd(opts),
		newVersionCmd(),
	)
	return root
}

func setupLogging(opts *rootOptions) {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	if opts.quiet {
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// speechLogConfig resolves the speech log to read: --db wins over the
// config file, which wins over defaults.
func speechLogConfig(opts *rootOptions, db string) (config.SpeechLogConfig, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return config.SpeechLogConfig{}, err
		}
		cfg = loaded
	}
	sl := cfg.SpeechLog
	if db != "" {
		sl.Path = db
	}
	// Readers must never prune or discard what the daemon recorded.
	sl.RetentionMode = "persistent"
	sl.RetentionDays = 0
	sl.MaxSessions = 0
	sl.VacuumOnStart = false
	return sl, nil
}
