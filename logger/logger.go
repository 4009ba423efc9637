// Package logger builds the application logger on top of log/slog with
// repeated-message sampling.
package logger

import (
	"log/slog"
	"os"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogsampling "github.com/samber/slog-sampling"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug   LogLevel = "DEBUG"
	LevelInfo    LogLevel = "INFO"
	LevelWarning LogLevel = "WARNING"
	LevelError   LogLevel = "ERROR"
)

// Config holds the logger configuration.
type Config struct {
	Level                 LogLevel
	DisableSampling       bool
	ThresholdSamplingTick time.Duration
	ThresholdSamplingMax  uint64
	ThresholdSamplingRate float64
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:                 LevelInfo,
		DisableSampling:       false,
		ThresholdSamplingTick: 5 * time.Second,
		ThresholdSamplingMax:  10,   // Allow first 10 identical messages.
		ThresholdSamplingRate: 0.05, // Then only 5% of subsequent messages.
	}
}

// NewLogger creates a new configured logger with sampling.
func NewLogger(config *Config) *slog.Logger {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.ThresholdSamplingTick <= 0 {
		config.ThresholdSamplingTick = defaults.ThresholdSamplingTick
	}
	if config.ThresholdSamplingMax == 0 {
		config.ThresholdSamplingMax = defaults.ThresholdSamplingMax
	}
	if config.ThresholdSamplingRate <= 0 {
		config.ThresholdSamplingRate = defaults.ThresholdSamplingRate
	}

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(config.Level),
	}
	baseHandler := slog.NewJSONHandler(os.Stdout, opts)

	if config.DisableSampling {
		return slog.New(baseHandler)
	}

	// Threshold sampling: allow the first N identical messages per tick, then
	// apply the rate. Keeps upstream-failure storms out of the logs.
	thresholdOption := slogsampling.ThresholdSamplingOption{
		Tick:      config.ThresholdSamplingTick,
		Threshold: config.ThresholdSamplingMax,
		Rate:      config.ThresholdSamplingRate,
		Matcher:   slogsampling.MatchByLevelAndMessage(),
	}

	return slog.New(
		slogmulti.
			Pipe(thresholdOption.NewMiddleware()).
			Handler(baseHandler),
	)
}

// parseLogLevel converts LogLevel to slog.Level.
func parseLogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent adds a component field to the logger for better categorization.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}
