// Package player manages the single live audio session: starting, stopping,
// and switching stations, and best-effort click reporting on play.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/user/radio-directory-web/directory"
	sentryhelper "github.com/user/radio-directory-web/sentry_helper"
)

// Session is a live audio stream. Stop releases its resources and must be
// idempotent. Done is closed once the session ends, whether it was stopped
// or the stream died on its own.
type Session interface {
	Stop()
	Done() <-chan struct{}
}

// SessionFactory opens a new audio session for a station's stream URL.
type SessionFactory interface {
	Start(ctx context.Context, station directory.Station) (Session, error)
}

// ClickReporter receives best-effort play notifications. Implementations must
// not block.
type ClickReporter interface {
	ReportClick(stationID string)
}

// Controller enforces the at-most-one-session playback model.
type Controller struct {
	factory  SessionFactory
	reporter ClickReporter
	logger   *slog.Logger
	sentry   *sentryhelper.SentryHelper

	mutex      sync.Mutex
	session    Session
	nowPlaying *directory.Station
}

// NewController creates a playback controller. reporter may be nil.
func NewController(factory SessionFactory, reporter ClickReporter, logger *slog.Logger, sentry *sentryhelper.SentryHelper) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		factory:  factory,
		reporter: reporter,
		logger:   logger,
		sentry:   sentry,
	}
}

// Play starts playback of the station. Playing the station that is already
// active stops it instead. Switching stations releases the old session before
// the new one starts, but now-playing only flips once the new session is
// live, so the UI never sees a gap with neither station current.
func (c *Controller) Play(ctx context.Context, station directory.Station) error {
	if !station.Valid() {
		return fmt.Errorf("cannot play station %q: missing name or stream url", station.Name)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.nowPlaying != nil && c.nowPlaying.ID == station.ID {
		c.stopLocked()
		c.logger.Info("Playback toggled off", slog.String("station", station.Name))
		return nil
	}

	// Release the old session's resources first. nowPlaying keeps pointing at
	// the old station until the replacement is live.
	if c.session != nil {
		c.session.Stop()
		c.session = nil
	}

	if c.reporter != nil {
		c.reporter.ReportClick(station.ID)
	}

	session, err := c.factory.Start(ctx, station)
	if err != nil {
		c.nowPlaying = nil
		c.logger.Error(
			"Failed to start playback",
			slog.String("station", station.Name),
			slog.String("error", err.Error()),
		)
		c.sentry.CaptureError(err, "player", "start")
		return fmt.Errorf("could not play station %q", station.Name)
	}

	c.session = session
	playing := station
	c.nowPlaying = &playing
	c.logger.Info("Playback started", slog.String("station", station.Name))

	go c.watchSession(session, station)
	return nil
}

// watchSession clears now-playing when a session dies on its own, so a dead
// stream is never still reported as current.
func (c *Controller) watchSession(session Session, station directory.Station) {
	<-session.Done()

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.session != session {
		// Already stopped or replaced through the controller.
		return
	}
	c.session = nil
	c.nowPlaying = nil
	session.Stop()
	c.logger.Warn("Playback session ended", slog.String("station", station.Name))
}

// Stop tears down the active session, if any.
func (c *Controller) Stop() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.session != nil {
		c.session.Stop()
		c.session = nil
	}
	if c.nowPlaying != nil {
		c.logger.Info("Playback stopped", slog.String("station", c.nowPlaying.Name))
		c.nowPlaying = nil
	}
}

// NowPlaying returns the active station, if any.
func (c *Controller) NowPlaying() (directory.Station, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.nowPlaying == nil {
		return directory.Station{}, false
	}
	return *c.nowPlaying, true
}
