package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func resetLogging(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		CloseAll()
		configMu.Lock()
		settings = Settings{}
		logsDir = ""
		logLevel = LevelInfo
		configMu.Unlock()
	})
}

func readCategoryLog(t *testing.T, dir string, cat Category) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), "_"+string(cat)+".log") {
			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				t.Fatalf("Failed to read log file for %s: %v", cat, err)
			}
			return string(data)
		}
	}
	return ""
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	if err := Initialize(dir, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	for _, cat := range AllCategories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	Workflow("Convenience workflow log")
	Retrieval("Convenience retrieval log")
	Evidence("Convenience evidence log")
	Chart("Convenience chart log")

	CloseAll()

	for _, cat := range AllCategories {
		content := readCategoryLog(t, dir, cat)
		if content == "" {
			t.Errorf("No log content found for category: %s", cat)
			continue
		}
		if !strings.Contains(content, "[WARN] Test warn message for "+string(cat)) {
			t.Errorf("Log for %s missing warn line: %q", cat, content)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug_mode is false
func TestDebugModeDisabled(t *testing.T) {
	resetLogging(t)
	dir := filepath.Join(t.TempDir(), "logs")

	if err := Initialize(dir, Settings{DebugMode: false, Level: "debug"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if IsDebugMode() {
		t.Error("Expected debug mode to be disabled")
	}

	Workflow("should not be written")
	Get(CategoryStore).Error("should not be written either")

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("Expected no logs directory in production mode, stat err=%v", err)
	}
}

func TestCategoryToggle(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	err := Initialize(dir, Settings{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"workflow": true, "chart": false},
	})
	if err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if !IsCategoryEnabled(CategoryWorkflow) {
		t.Error("workflow should be enabled")
	}
	if IsCategoryEnabled(CategoryChart) {
		t.Error("chart should be disabled")
	}
	if !IsCategoryEnabled(CategoryStore) {
		t.Error("unlisted categories default to enabled")
	}

	Workflow("kept")
	Chart("dropped")
	WorkflowDebug("below level")
	CloseAll()

	content := readCategoryLog(t, dir, CategoryWorkflow)
	if !strings.Contains(content, "kept") {
		t.Errorf("expected workflow log to contain message, got %q", content)
	}
	if strings.Contains(content, "below level") {
		t.Errorf("debug message should be filtered at info level")
	}
	if readCategoryLog(t, dir, CategoryChart) != "" {
		t.Error("disabled category should not create a log file")
	}
}

func TestRequestLoggerJSON(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	if err := Initialize(dir, Settings{DebugMode: true, Level: "debug", JSONFormat: true}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	WithRequestID(CategoryWorkflow, "task-42").WithField("section", 1).Warn("retrieval degraded")
	CloseAll()

	content := readCategoryLog(t, dir, CategoryWorkflow)
	lines := strings.Split(strings.TrimSpace(content), "\n")
	last := lines[len(lines)-1]
	idx := strings.Index(last, "{")
	if idx < 0 {
		t.Fatalf("expected JSON payload, got %q", last)
	}

	var entry StructuredLogEntry
	if err := json.Unmarshal([]byte(last[idx:]), &entry); err != nil {
		t.Fatalf("Failed to decode JSON entry: %v", err)
	}
	if entry.RequestID != "task-42" || entry.Level != "warn" || entry.Category != "workflow" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if !strings.Contains(entry.Message, "retrieval degraded") {
		t.Errorf("unexpected message: %q", entry.Message)
	}
}

func TestTimerLogging(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	if err := Initialize(dir, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	timer := StartTimer(CategoryStore, "slow-op")
	time.Sleep(5 * time.Millisecond)
	if elapsed := timer.StopWithThreshold(time.Millisecond); elapsed < time.Millisecond {
		t.Errorf("elapsed too small: %v", elapsed)
	}
	CloseAll()

	content := readCategoryLog(t, dir, CategoryStore)
	if !strings.Contains(content, "slow-op took") {
		t.Errorf("expected threshold warning, got %q", content)
	}
}

func TestConcurrentGet(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	if err := Initialize(dir, Settings{DebugMode: true, Level: "info"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			Get(CategoryProgress).Info("worker %d", n)
		}(i)
	}
	wg.Wait()

	loggersMu.RLock()
	count := len(loggers)
	loggersMu.RUnlock()
	if count == 0 {
		t.Error("expected at least one logger to be cached")
	}
}
