// Package sentry_helper wraps optional Sentry reporting so the rest of the
// application never has to check whether Sentry is configured.
package sentry_helper

import (
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryHelper provides safe and optional Sentry operations.
type SentryHelper struct {
	enabled bool
	logger  *slog.Logger
}

// NewSentryHelper creates a new SentryHelper instance.
func NewSentryHelper(enabled bool, logger *slog.Logger) *SentryHelper {
	if logger == nil {
		logger = slog.Default()
	}
	return &SentryHelper{
		enabled: enabled,
		logger:  logger,
	}
}

// IsEnabled returns whether Sentry is enabled.
func (h *SentryHelper) IsEnabled() bool {
	return h != nil && h.enabled
}

// CaptureException captures an exception with proper hub isolation.
func (h *SentryHelper) CaptureException(err error) {
	if !h.IsEnabled() || err == nil {
		return
	}

	// Clone hub to avoid data races in goroutines.
	hub := sentry.CurrentHub().Clone()
	hub.CaptureException(err)
}

// CaptureMessage captures a message with proper hub isolation.
func (h *SentryHelper) CaptureMessage(msg string) {
	if !h.IsEnabled() || msg == "" {
		return
	}

	hub := sentry.CurrentHub().Clone()
	hub.CaptureMessage(msg)
}

// CaptureError captures an error tagged with the component and operation it
// came from.
func (h *SentryHelper) CaptureError(err error, component, operation string) {
	if !h.IsEnabled() || err == nil {
		return
	}

	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetTag("operation", operation)
		hub.CaptureException(err)
	})
}

// SafeFlush safely flushes Sentry events with a timeout.
func (h *SentryHelper) SafeFlush(timeout time.Duration) {
	if !h.IsEnabled() {
		return
	}

	if !sentry.Flush(timeout) {
		h.logger.Warn("Sentry flush timeout", slog.Duration("timeout", timeout))
	}
}
