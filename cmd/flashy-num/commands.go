package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/loqalabs/flashy-voice/internal/review"
	"github.com/loqalabs/flashy-voice/internal/speechlog"
	"github.com/loqalabs/flashy-voice/internal/spokennum"
	"github.com/loqalabs/flashy-voice/internal/stt"
	"github.com/spf13/cobra"
)

func newParseCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "parse <text>...",
		Short: "Parse a transcript into a number",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.Join(args, " ")
			n := spokennum.Parse(raw)
			if !asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			}
			out := struct {
				Input      string `json:"input"`
				Normalized string `json:"normalized"`
				Value      *int   `json:"value"`
			}{Input: raw, Normalized: spokennum.Normalize(raw)}
			if v, ok := n.Get(); ok {
				out.Value = &v
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print input, normalized form and value as JSON")
	return cmd
}

func newGiveUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "giveup <text>...",
		Short: "Report whether a transcript is a give-up phrase",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), spokennum.IsGiveUp(strings.Join(args, " ")))
			return nil
		},
	}
}

func newMatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match <recognized> <expected>",
		Short: "Report whether a recognized transcript is accepted for an answer",
		Long: `match parses <recognized> (digits or words, quote multi-word phrases)
and reports whether it is accepted as <expected>, allowing for known
recognition confusions.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			expected, err := strconv.Atoi(strings.TrimSpace(args[1]))
			if err != nil {
				return fmt.Errorf("expected answer must be an integer: %w", err)
			}
			recognized := spokennum.Parse(args[0])
			slog.Debug("match", slog.String("recognized", recognized.String()), slog.Int("expected", expected))
			fmt.Fprintln(cmd.OutOrStdout(), spokennum.IsFuzzyMatch(recognized, expected))
			return nil
		},
	}
}

func newVocabCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Print the recognizer grammar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				grammar, err := stt.GrammarJSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), grammar)
				return nil
			}
			for _, w := range spokennum.Vocabulary() {
				fmt.Fprintln(cmd.OutOrStdout(), w)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the grammar as the JSON array passed to the recognizer")
	return cmd
}

func newReviewCmd(opts *rootOptions) *cobra.Command {
	var (
		db    string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Suggest fixes for transcripts the interpreter could not use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, opts, db)
			if err != nil {
				return err
			}
			defer store.Close()

			rep, err := review.New().Run(cmd.Context(), store, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "speech log database (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum attempts to read per category")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var db, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the speech log as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, opts, db)
			if err != nil {
				return err
			}
			defer store.Close()

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				defer f.Close()
				w = f
			}
			n, err := store.ExportJSONL(cmd.Context(), w)
			if err != nil {
				return err
			}
			slog.Info("export complete", slog.Int("attempts", n))
			return nil
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "speech log database (default from config)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func openStore(cmd *cobra.Command, opts *rootOptions, db string) (*speechlog.Store, error) {
	cfg, err := speechLogConfig(opts, db)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("speech log %s: %w", cfg.Path, err)
	}
	return speechlog.Open(cmd.Context(), cfg, slog.Default())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
