// Package logging provides categorized file-based logging for metamorph.
// Each pipeline stage writes to its own dated file under the logs directory,
// so a misbehaving cycle can be reconstructed per stage after the fact.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category, one per pipeline concern.
type Category string

const (
	CategoryBoot         Category = "boot"         // Startup and shutdown
	CategoryEvolution    Category = "evolution"    // Cycle orchestration
	CategoryMetrics      Category = "metrics"      // Metric evaluation
	CategoryHypothesis   Category = "hypothesis"   // Hypothesis generation
	CategoryTransform    Category = "transform"    // Source transformation
	CategorySecurity     Category = "security"     // Security gate verdicts
	CategoryValidation   Category = "validation"   // Syntax and test validation
	CategoryLedger       Category = "ledger"       // Modification records
	CategoryMemory       Category = "memory"       // Episodic memory
	CategoryDeliberation Category = "deliberation" // Action selection
	CategoryAutonomy     Category = "autonomy"     // Initiative loop
	CategorySuggest      Category = "suggest"      // Generation-service calls
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	enabled   bool
	logLevel  = LevelInfo
)

// Initialize sets up the logging directory. Should be called once at startup.
// With enable=false every logger is a silent no-op.
func Initialize(dir, level string, enable bool) error {
	enabled = enable
	if !enabled {
		return nil
	}
	if dir == "" {
		return fmt.Errorf("logs directory required")
	}
	logsDir = dir

	switch level {
	case "debug":
		logLevel = LevelDebug
	case "info":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== metamorph logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", level)
	return nil
}

// Get returns (or creates) a logger for the given category. Returns a no-op
// logger when logging is disabled or the file cannot be opened.
func Get(category Category) *Logger {
	if !enabled || logsDir == "" {
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

	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a matter of deleting old files.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

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

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files. Call at shutdown.
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - quick logging without getting a logger first
// =============================================================================

// Evolution logs to the evolution category.
func Evolution(format string, args ...interface{}) {
	Get(CategoryEvolution).Info(format, args...)
}

// EvolutionDebug logs debug to the evolution category.
func EvolutionDebug(format string, args ...interface{}) {
	Get(CategoryEvolution).Debug(format, args...)
}

// Metrics logs to the metrics category.
func Metrics(format string, args ...interface{}) {
	Get(CategoryMetrics).Info(format, args...)
}

// Hypothesis logs to the hypothesis category.
func Hypothesis(format string, args ...interface{}) {
	Get(CategoryHypothesis).Info(format, args...)
}

// Transform logs to the transform category.
func Transform(format string, args ...interface{}) {
	Get(CategoryTransform).Info(format, args...)
}

// Security logs to the security category.
func Security(format string, args ...interface{}) {
	Get(CategorySecurity).Info(format, args...)
}

// Validation logs to the validation category.
func Validation(format string, args ...interface{}) {
	Get(CategoryValidation).Info(format, args...)
}

// Ledger logs to the ledger category.
func Ledger(format string, args ...interface{}) {
	Get(CategoryLedger).Info(format, args...)
}

// Memory logs to the memory category.
func Memory(format string, args ...interface{}) {
	Get(CategoryMemory).Info(format, args...)
}

// Deliberation logs to the deliberation category.
func Deliberation(format string, args ...interface{}) {
	Get(CategoryDeliberation).Info(format, args...)
}

// DeliberationDebug logs debug to the deliberation category.
func DeliberationDebug(format string, args ...interface{}) {
	Get(CategoryDeliberation).Debug(format, args...)
}

// Autonomy logs to the autonomy category.
func Autonomy(format string, args ...interface{}) {
	Get(CategoryAutonomy).Info(format, args...)
}

// Suggest logs to the suggest category.
func Suggest(format string, args ...interface{}) {
	Get(CategorySuggest).Info(format, args...)
}
