package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"deepreport/internal/config"
	"deepreport/internal/types"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testCommand() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	return cmd, &buf
}

func setupCLI(t *testing.T) {
	t.Helper()
	logger = zap.NewNop()
	timeout = time.Minute
	outPath, outlineFile, render = "", "", false

	cfg = config.DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Embedding.Provider = "hash"
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		ev   types.ProgressEvent
		want []string
	}{
		{"node start", types.ProgressEvent{Type: types.EventNodeStart, Node: "collect_info", Message: "Collecting", Timestamp: ts},
			[]string{"15:04:05", "collect_info", "Collecting"}},
		{"step", types.ProgressEvent{Type: types.EventStepProgress, Step: 2, Total: 4, Message: "searching", Timestamp: ts},
			[]string{"[2/4]", "searching"}},
		{"state", types.ProgressEvent{Type: types.EventStateUpdate, Timestamp: ts,
			Payload: types.StateSummary{Written: 1, TotalSections: 3, CurrentTitle: "Outlook", EvidenceCount: 12}},
			[]string{"sections 1/3 written", "next: Outlook", "12 evidence items"}},
		{"complete", types.ProgressEvent{Type: types.EventComplete, Timestamp: ts},
			[]string{"complete"}},
		{"error", types.ProgressEvent{Type: types.EventError, Message: "planner failed", Timestamp: ts},
			[]string{"planner failed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatEvent(tt.ev)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
		})
	}
}

func TestLoadOutline(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "outline.md")
	require.NoError(t, os.WriteFile(good, []byte("# EV Batteries\n\n## Market\n### Share\n### Prices\n\n## Outlook\n"), 0644))
	outline, err := loadOutline(good)
	require.NoError(t, err)
	assert.Equal(t, "EV Batteries", outline.Title)
	require.Len(t, outline.Sections, 2)
	assert.Equal(t, []string{"Share", "Prices"}, outline.Sections[0].Level2)

	bad := filepath.Join(dir, "bad.md")
	require.NoError(t, os.WriteFile(bad, []byte("# Only a title\n\n## One section\n"), 0644))
	_, err = loadOutline(bad)
	var structural *types.StructuralError
	assert.ErrorAs(t, err, &structural)

	_, err = loadOutline(filepath.Join(dir, "missing.md"))
	assert.Error(t, err)

	outline, err = loadOutline("")
	assert.NoError(t, err)
	assert.Nil(t, outline)
}

func TestEmitWritesFile(t *testing.T) {
	setupCLI(t)
	outPath = filepath.Join(t.TempDir(), "reports", "r.md")

	cmd, buf := testCommand()
	require.NoError(t, emit(cmd, "# Report\n", true))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "# Report\n", string(data))
	assert.Contains(t, buf.String(), "Wrote")
}

func TestEmitPrintsRaw(t *testing.T) {
	setupCLI(t)
	cmd, buf := testCommand()
	require.NoError(t, emit(cmd, "# Report\n", false))
	assert.Equal(t, "# Report\n", buf.String())
}

func TestKnowledgeBaseCommands(t *testing.T) {
	setupCLI(t)
	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "policy.txt"),
		[]byte("Subsidy policy for electric vehicles changed in 2024."), 0644))

	cmd, buf := testCommand()
	require.NoError(t, runIngest(cmd, []string{docs}))
	assert.Contains(t, buf.String(), "Loaded 1/1 files")

	buf.Reset()
	require.NoError(t, runSearch(cmd, []string{"subsidy", "policy"}))
	assert.Contains(t, buf.String(), "policy.txt")

	buf.Reset()
	require.NoError(t, runStats(cmd, nil))
	assert.Contains(t, buf.String(), "1  total chunks in 1 documents")

	buf.Reset()
	require.NoError(t, runClear(cmd, nil))
	buf.Reset()
	require.NoError(t, runSearch(cmd, []string{"subsidy"}))
	assert.Contains(t, buf.String(), "No results.")
}

func TestTruncateLine(t *testing.T) {
	assert.Equal(t, "a b c", truncateLine("a\n b\t c", 10))
	assert.Equal(t, "abc...", truncateLine("abcdef", 3))
}
