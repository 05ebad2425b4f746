// Package logging provides config-driven categorized file-based logging for deepreport.
// Logs are written to <logs_dir>/ with separate files per category.
// Logging is controlled by debug_mode in the logging settings - when false, no logs are written.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system
type Category string

const (
	// Core system categories
	CategoryBoot     Category = "boot"     // Boot/initialization
	CategoryWorkflow Category = "workflow" // Orchestrator state machine
	CategoryProgress Category = "progress" // Progress broker and event streams
	CategoryAPI      Category = "api"      // LLM API calls

	// Pipeline categories
	CategoryPlanning  Category = "planning"  // Outline planning, query generation
	CategoryRetrieval Category = "retrieval" // Knowledge base and web search
	CategoryEvidence  Category = "evidence"  // Ephemeral evidence index
	CategoryHistory   Category = "history"   // Written section history
	CategoryChart     Category = "chart"     // Chart generation and merge

	// Storage categories
	CategoryEmbedding Category = "embedding" // Embedding engine
	CategoryStore     Category = "store"     // Vector store operations
)

// AllCategories lists every category known to the logger.
var AllCategories = []Category{
	CategoryBoot, CategoryWorkflow, CategoryProgress, CategoryAPI,
	CategoryPlanning, CategoryRetrieval, CategoryEvidence, CategoryHistory, CategoryChart,
	CategoryEmbedding, CategoryStore,
}

// Settings mirrors config.LoggingConfig to avoid an import cycle.
type Settings struct {
	DebugMode  bool            `json:"debug_mode" yaml:"debug_mode"`
	Categories map[string]bool `json:"categories" yaml:"categories"`
	Level      string          `json:"level" yaml:"level"`
	JSONFormat bool            `json:"json_format" yaml:"json_format"`
}

// StructuredLogEntry represents a JSON log entry.
type StructuredLogEntry struct {
	Timestamp int64                  `json:"ts"`
	Category  string                 `json:"cat"`
	Level     string                 `json:"lvl"`
	Message   string                 `json:"msg"`
	RequestID string                 `json:"req,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	settings  Settings
	configMu  sync.RWMutex
	logLevel  = LevelInfo
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and applies settings.
// Should be called once at startup. Calling it again closes open files first.
func Initialize(dir string, s Settings) error {
	if dir == "" {
		return fmt.Errorf("logs directory required")
	}

	CloseAll()

	configMu.Lock()
	logsDir = dir
	settings = s
	logLevel = parseLevel(s.Level)
	configMu.Unlock()

	if !s.DebugMode {
		return nil // Silent no-op in production mode
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	bootLogger := Get(CategoryBoot)
	bootLogger.Info("=== deepreport logging initialized ===")
	bootLogger.Info("Logs directory: %s", dir)
	bootLogger.Info("Log level: %s", s.Level)

	if len(s.Categories) > 0 {
		enabledCount := 0
		for cat, enabled := range s.Categories {
			if enabled {
				enabledCount++
			}
			bootLogger.Debug("Category '%s': %v", cat, enabled)
		}
		bootLogger.Info("Enabled categories: %d/%d", enabledCount, len(s.Categories))
	} else {
		bootLogger.Info("All categories enabled (no category filter)")
	}

	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func currentLevel() int {
	configMu.RLock()
	defer configMu.RUnlock()
	return logLevel
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return settings.DebugMode
}

// IsJSONFormat returns whether JSON logging is enabled
func IsJSONFormat() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return settings.JSONFormat
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !settings.DebugMode {
		return false
	}
	if settings.Categories == nil {
		return true
	}
	enabled, exists := settings.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	configMu.RLock()
	dir := logsDir
	configMu.RUnlock()
	if dir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level, tag, requestID, msg string) {
	if IsJSONFormat() {
		entry := StructuredLogEntry{
			Timestamp: time.Now().UnixMilli(),
			Category:  string(l.category),
			Level:     level,
			Message:   msg,
			RequestID: requestID,
		}
		if data, err := json.Marshal(entry); err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	if requestID != "" {
		msg = fmt.Sprintf("[req:%s] %s", requestID, msg)
	}
	l.logger.Printf("[%s] %s", tag, msg)
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelDebug {
		return
	}
	l.write("debug", "DEBUG", "", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelInfo {
		return
	}
	l.write("info", "INFO", "", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelWarn {
		return
	}
	l.write("warn", "WARN", "", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.write("error", "ERROR", "", fmt.Sprintf(format, args...))
}

// StructuredLog writes a fully structured log entry with custom fields
func (l *Logger) StructuredLog(level string, msg string, fields map[string]interface{}) {
	if l.logger == nil {
		return
	}
	if IsJSONFormat() {
		entry := StructuredLogEntry{
			Timestamp: time.Now().UnixMilli(),
			Category:  string(l.category),
			Level:     level,
			Message:   msg,
			Fields:    fields,
		}
		if data, err := json.Marshal(entry); err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	l.logger.Printf("[%s] %s | fields=%v", level, msg, fields)
}

// CloseAll closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for cat, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
		delete(loggers, cat)
	}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootWarn logs warning to the boot category
func BootWarn(format string, args ...interface{}) {
	Get(CategoryBoot).Warn(format, args...)
}

// Workflow logs to the workflow category
func Workflow(format string, args ...interface{}) {
	Get(CategoryWorkflow).Info(format, args...)
}

// WorkflowDebug logs debug to the workflow category
func WorkflowDebug(format string, args ...interface{}) {
	Get(CategoryWorkflow).Debug(format, args...)
}

// WorkflowWarn logs warning to the workflow category
func WorkflowWarn(format string, args ...interface{}) {
	Get(CategoryWorkflow).Warn(format, args...)
}

// WorkflowError logs error to the workflow category
func WorkflowError(format string, args ...interface{}) {
	Get(CategoryWorkflow).Error(format, args...)
}

// Progress logs to the progress category
func Progress(format string, args ...interface{}) {
	Get(CategoryProgress).Info(format, args...)
}

// ProgressDebug logs debug to the progress category
func ProgressDebug(format string, args ...interface{}) {
	Get(CategoryProgress).Debug(format, args...)
}

// ProgressWarn logs warning to the progress category
func ProgressWarn(format string, args ...interface{}) {
	Get(CategoryProgress).Warn(format, args...)
}

// API logs to the api category
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

// APIError logs error to the api category
func APIError(format string, args ...interface{}) {
	Get(CategoryAPI).Error(format, args...)
}

// Planning logs to the planning category
func Planning(format string, args ...interface{}) {
	Get(CategoryPlanning).Info(format, args...)
}

// PlanningDebug logs debug to the planning category
func PlanningDebug(format string, args ...interface{}) {
	Get(CategoryPlanning).Debug(format, args...)
}

// PlanningWarn logs warning to the planning category
func PlanningWarn(format string, args ...interface{}) {
	Get(CategoryPlanning).Warn(format, args...)
}

// Retrieval logs to the retrieval category
func Retrieval(format string, args ...interface{}) {
	Get(CategoryRetrieval).Info(format, args...)
}

// RetrievalDebug logs debug to the retrieval category
func RetrievalDebug(format string, args ...interface{}) {
	Get(CategoryRetrieval).Debug(format, args...)
}

// RetrievalWarn logs warning to the retrieval category
func RetrievalWarn(format string, args ...interface{}) {
	Get(CategoryRetrieval).Warn(format, args...)
}

// Evidence logs to the evidence category
func Evidence(format string, args ...interface{}) {
	Get(CategoryEvidence).Info(format, args...)
}

// EvidenceDebug logs debug to the evidence category
func EvidenceDebug(format string, args ...interface{}) {
	Get(CategoryEvidence).Debug(format, args...)
}

// EvidenceWarn logs warning to the evidence category
func EvidenceWarn(format string, args ...interface{}) {
	Get(CategoryEvidence).Warn(format, args...)
}

// EvidenceError logs error to the evidence category
func EvidenceError(format string, args ...interface{}) {
	Get(CategoryEvidence).Error(format, args...)
}

// History logs to the history category
func History(format string, args ...interface{}) {
	Get(CategoryHistory).Info(format, args...)
}

// HistoryDebug logs debug to the history category
func HistoryDebug(format string, args ...interface{}) {
	Get(CategoryHistory).Debug(format, args...)
}

// Chart logs to the chart category
func Chart(format string, args ...interface{}) {
	Get(CategoryChart).Info(format, args...)
}

// ChartDebug logs debug to the chart category
func ChartDebug(format string, args ...interface{}) {
	Get(CategoryChart).Debug(format, args...)
}

// ChartWarn logs warning to the chart category
func ChartWarn(format string, args ...interface{}) {
	Get(CategoryChart).Warn(format, args...)
}

// Embedding logs to the embedding category
func Embedding(format string, args ...interface{}) {
	Get(CategoryEmbedding).Info(format, args...)
}

// EmbeddingDebug logs debug to the embedding category
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}

// EmbeddingWarn logs warning to the embedding category
func EmbeddingWarn(format string, args ...interface{}) {
	Get(CategoryEmbedding).Warn(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// StoreWarn logs warning to the store category
func StoreWarn(format string, args ...interface{}) {
	Get(CategoryStore).Warn(format, args...)
}

// StoreError logs error to the store category
func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

// =============================================================================
// REQUEST ID TRACING - One correlation ID per report task
// =============================================================================

// RequestLogger provides request-scoped logging with a correlation ID
type RequestLogger struct {
	logger    *Logger
	requestID string
	fields    map[string]interface{}
}

// WithRequestID creates a request-scoped logger
func WithRequestID(category Category, requestID string) *RequestLogger {
	return &RequestLogger{
		logger:    Get(category),
		requestID: requestID,
		fields:    make(map[string]interface{}),
	}
}

// WithField adds a field to the request logger
func (r *RequestLogger) WithField(key string, value interface{}) *RequestLogger {
	r.fields[key] = value
	return r
}

func (r *RequestLogger) formatMsg(format string, args ...interface{}) string {
	msg := fmt.Sprintf(format, args...)
	if len(r.fields) > 0 {
		return fmt.Sprintf("%s | %v", msg, r.fields)
	}
	return msg
}

func (r *RequestLogger) Debug(format string, args ...interface{}) {
	if r.logger.logger == nil || currentLevel() > LevelDebug {
		return
	}
	r.logger.write("debug", "DEBUG", r.requestID, r.formatMsg(format, args...))
}

func (r *RequestLogger) Info(format string, args ...interface{}) {
	if r.logger.logger == nil || currentLevel() > LevelInfo {
		return
	}
	r.logger.write("info", "INFO", r.requestID, r.formatMsg(format, args...))
}

func (r *RequestLogger) Warn(format string, args ...interface{}) {
	if r.logger.logger == nil || currentLevel() > LevelWarn {
		return
	}
	r.logger.write("warn", "WARN", r.requestID, r.formatMsg(format, args...))
}

func (r *RequestLogger) Error(format string, args ...interface{}) {
	if r.logger.logger == nil {
		return
	}
	r.logger.write("error", "ERROR", r.requestID, r.formatMsg(format, args...))
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
