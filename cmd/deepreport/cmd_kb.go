package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"deepreport/internal/retrieval"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	searchK       int
	watchDebounce time.Duration
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the local knowledge base",
}

var kbIngestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Ingest documents into the knowledge base",
	Long: `Ingest .txt, .md, .csv and .html documents from a directory.

Defaults to the configured documents directory. Unchanged chunks are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

var kbSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var kbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show chunk counts per document",
	RunE:  runStats,
}

var kbClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every chunk from the knowledge base",
	RunE:  runClear,
}

var kbWatchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Keep the knowledge base in sync with a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	kbSearchCmd.Flags().IntVarP(&searchK, "k", "k", 5, "Number of results")
	kbWatchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "Quiet period before a changed file is re-ingested")

	kbCmd.AddCommand(kbIngestCmd, kbSearchCmd, kbStatsCmd, kbClearCmd, kbWatchCmd)
}

func withKnowledgeBase(fn func(ctx context.Context, kb *retrieval.KnowledgeBase) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	kb, err := openKnowledgeBase(cfg, newEngine(cfg))
	if err != nil {
		return err
	}
	defer kb.Close()
	return fn(ctx, kb)
}

func documentsDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.DocumentsDir()
}

func runIngest(cmd *cobra.Command, args []string) error {
	dir := documentsDir(args)
	return withKnowledgeBase(func(ctx context.Context, kb *retrieval.KnowledgeBase) error {
		stats, err := kb.IngestDir(ctx, dir)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Loaded %d/%d files, %d chunks (%d new)\n",
			stats.LoadedFiles, stats.TotalFiles, stats.Chunks, stats.NewChunks)
		for _, e := range stats.Errors {
			fmt.Fprintf(out, "  skipped: %s\n", e)
		}
		return nil
	})
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	return withKnowledgeBase(func(ctx context.Context, kb *retrieval.KnowledgeBase) error {
		hits, err := kb.Search(ctx, query, searchK)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(hits) == 0 {
			fmt.Fprintln(out, "No results.")
			return nil
		}
		for i, h := range hits {
			score := 0.0
			if h.Score != nil {
				score = *h.Score
			}
			fmt.Fprintf(out, "%d. %s (%.3f)\n   %s\n", i+1, h.Filename, score, truncateLine(h.Content, 160))
		}
		return nil
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	return withKnowledgeBase(func(ctx context.Context, kb *retrieval.KnowledgeBase) error {
		perFile, err := kb.Stats(ctx)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(perFile))
		total := 0
		for name, n := range perFile {
			names = append(names, name)
			total += n
		}
		sort.Strings(names)

		out := cmd.OutOrStdout()
		for _, name := range names {
			fmt.Fprintf(out, "%6d  %s\n", perFile[name], name)
		}
		fmt.Fprintf(out, "%6d  total chunks in %d documents\n", total, len(names))
		return nil
	})
}

func runClear(cmd *cobra.Command, args []string) error {
	return withKnowledgeBase(func(ctx context.Context, kb *retrieval.KnowledgeBase) error {
		if err := kb.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Knowledge base cleared.")
		return nil
	})
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := documentsDir(args)
	return withKnowledgeBase(func(ctx context.Context, kb *retrieval.KnowledgeBase) error {
		if _, err := kb.IngestDir(ctx, dir); err != nil {
			return err
		}
		w, err := retrieval.NewWatcher(kb, dir, watchDebounce)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		w.OnApply = func(path string, removed bool, err error) {
			switch {
			case err != nil:
				logger.Warn("Failed to sync document", zap.String("path", path), zap.Error(err))
			case removed:
				fmt.Fprintf(out, "removed  %s\n", path)
			default:
				fmt.Fprintf(out, "ingested %s\n", path)
			}
		}
		fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", dir)

		err = w.Run(ctx)
		stats := w.Stats()
		logger.Info("Watcher stopped",
			zap.Int("ingested", stats.Ingested),
			zap.Int("removed", stats.Removed),
			zap.Int("errors", stats.Errors))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

func truncateLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
