// Package logger provides the process-wide logger: a colored console stream
// plus a rotating log file.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures Init.
type Options struct {
	FilePath   string // rotating log file; empty disables file output
	MaxSizeMB  int
	MaxAgeDays int
	Verbose    bool      // console at debug level
	Console    io.Writer // defaults to os.Stdout
}

// DefaultOptions returns 10 MB rotation with a 7 day retention.
func DefaultOptions(filePath string) Options {
	return Options{
		FilePath:   filePath,
		MaxSizeMB:  10,
		MaxAgeDays: 7,
	}
}

var (
	globalLogger = zerolog.Nop()
	logFile      *lumberjack.Logger
	mu           sync.Mutex
)

// Init initializes the global logger.
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	// Close previous log file if exists
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	out := opts.Console
	if out == nil {
		out = os.Stdout
	}
	consoleLevel := zerolog.InfoLevel
	if opts.Verbose {
		consoleLevel = zerolog.DebugLevel
	}
	writers := []io.Writer{
		levelWriter{
			Writer: zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"},
			min:    consoleLevel,
		},
	}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		logFile = &lumberjack.Logger{
			Filename: opts.FilePath,
			MaxSize:  opts.MaxSizeMB,
			MaxAge:   opts.MaxAgeDays,
		}
		writers = append(writers, levelWriter{Writer: logFile, min: zerolog.DebugLevel})
	}

	globalLogger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(zerolog.DebugLevel).
		With().
		Timestamp().
		Logger()

	return nil
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	globalLogger = zerolog.Nop()
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	globalLogger.Info().Msgf(format, v...)
}

// Success logs a completed step at info level, tagged so it stands out.
func Success(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	globalLogger.Info().Bool("ok", true).Msgf(format, v...)
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	globalLogger.Debug().Msgf(format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	globalLogger.Error().Msgf(format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	globalLogger.Warn().Msgf(format, v...)
}

// GetWriter returns the rotating log file for components that keep their
// own line-oriented logs (the UIAutomator2 request log).
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		return logFile
	}
	return io.Discard
}

// levelWriter drops events below min for one destination.
type levelWriter struct {
	io.Writer
	min zerolog.Level
}

func (w levelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.min {
		return len(p), nil
	}
	return w.Write(p)
}
