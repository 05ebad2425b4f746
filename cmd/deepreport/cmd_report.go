package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"deepreport/internal/agents"
	"deepreport/internal/llm"
	"deepreport/internal/progress"
	"deepreport/internal/types"
	"deepreport/internal/workflow"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	outlineFile string
	outPath     string
	render      bool
)

var outlineCmd = &cobra.Command{
	Use:   "outline <requirement>",
	Short: "Plan a report outline without writing it",
	Long: `Plan a report outline and print it as markdown.

Save it with --out, edit it, and pass it to "run --outline" to write the
report against your edited structure.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOutline,
}

var runCmd = &cobra.Command{
	Use:   "run <requirement>",
	Short: "Write a report and print it when done",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReport,
}

var streamCmd = &cobra.Command{
	Use:   "stream <requirement>",
	Short: "Write a report while streaming live progress",
	Long: `Write a report while printing progress events as they happen.

Ctrl-C disconnects: the task is cancelled and its evidence index removed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStream,
}

func init() {
	outlineCmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the outline markdown to this file")

	for _, c := range []*cobra.Command{runCmd, streamCmd} {
		c.Flags().StringVar(&outlineFile, "outline", "", "Use the outline in this markdown file instead of planning one")
		c.Flags().StringVarP(&outPath, "out", "o", "", "Write the report markdown to this file")
		c.Flags().BoolVar(&render, "render", false, "Render the report for the terminal")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

func runOutline(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, err := llm.NewClient(ctx, cfg.LLM, cfg.GetLLMTimeout())
	if err != nil {
		return err
	}

	requirement := strings.Join(args, " ")
	logger.Info("Planning outline", zap.String("requirement", requirement))

	outline, err := agents.NewPlanner(client, cfg.Workflow.DefaultWords).Generate(ctx, requirement)
	if err != nil {
		return err
	}
	if err := types.ValidateOutline(outline); err != nil {
		logger.Warn("Planned outline does not validate", zap.Error(err))
	}
	return emit(cmd, outline.Markdown(), false)
}

// loadOutline reads an outline markdown file.
func loadOutline(path string) (*types.Outline, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read outline: %w", err)
	}
	outline, err := agents.ParseOutlineMarkdown(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse outline %s: %w", path, err)
	}
	if err := types.ValidateOutline(outline); err != nil {
		return nil, err
	}
	return outline, nil
}

func newRequest(args []string) (workflow.Request, error) {
	outline, err := loadOutline(outlineFile)
	if err != nil {
		return workflow.Request{}, err
	}
	return workflow.Request{
		Requirement: strings.Join(args, " "),
		Outline:     outline,
	}, nil
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	req, err := newRequest(args)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.runner.Run(ctx, req)
	if err != nil {
		return err
	}
	logReport(a, report)
	return emit(cmd, report.Markdown(), render)
}

func runStream(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	req, err := newRequest(args)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sub, err := a.runner.Stream(context.Background(), req)
	if err != nil {
		return err
	}
	logger.Info("Streaming task", zap.String("task_id", sub.TaskID()))

	out := cmd.ErrOrStderr()
	err = progress.Consume(ctx, sub.Events(), func(ev types.ProgressEvent) error {
		fmt.Fprintln(out, formatEvent(ev))
		return nil
	})
	if err != nil {
		sub.Cancel()
		<-sub.Done()
		return fmt.Errorf("stream interrupted: %w", err)
	}

	report, err := sub.Result(context.Background())
	if err != nil {
		return err
	}
	logReport(a, report)
	return emit(cmd, report.Markdown(), render)
}

func logReport(a *app, report *workflow.Report) {
	calls, failures := a.client.Stats()
	logger.Info("Report complete",
		zap.String("task_id", report.TaskID),
		zap.Int("sections", len(report.Sections)),
		zap.Int("words", report.WordCount()),
		zap.Int("references", len(report.References())),
		zap.Int64("llm_calls", calls),
		zap.Int64("llm_failures", failures))
}

// emit writes md to --out when set, and prints it (rendered when asked)
// otherwise.
func emit(cmd *cobra.Command, md string, pretty bool) error {
	if outPath != "" {
		if dir := filepath.Dir(outPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		if err := os.WriteFile(outPath, []byte(md), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", outPath, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outPath)
		return nil
	}

	if pretty {
		rendered, err := renderMarkdown(md, 100)
		if err != nil {
			logger.Warn("Markdown rendering failed, printing raw", zap.Error(err))
		} else {
			md = rendered
		}
	}
	fmt.Fprint(cmd.OutOrStdout(), md)
	return nil
}
