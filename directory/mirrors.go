package directory

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	sentryhelper "github.com/user/radio-directory-web/sentry_helper"
)

const (
	// SRV record published by the directory service for mirror discovery.
	defaultSRVService = "api"
	defaultSRVProto   = "tcp"
	defaultSRVDomain  = "radio-browser.info"

	// DefaultMirrorTTL is the freshness window of a resolved mirror list.
	DefaultMirrorTTL = time.Hour

	mirrorsCacheKey = "mirrors"
)

// DefaultFallbackMirrors is used when SRV discovery fails and no fallback
// file is configured.
var DefaultFallbackMirrors = []string{
	"de1.api.radio-browser.info",
	"nl1.api.radio-browser.info",
	"at1.api.radio-browser.info",
}

// SRVLookup resolves the discovery record. Injectable for tests.
type SRVLookup func(ctx context.Context, service, proto, domain string) ([]*net.SRV, error)

// Resolver discovers directory mirror hosts and caches them for a freshness
// window. Discovery failures degrade to a static fallback list, never to an
// error.
type Resolver struct {
	lookup SRVLookup
	cache  gcache.Cache
	ttl    time.Duration
	group  singleflight.Group

	fallbackMutex sync.RWMutex
	fallback      []string
	fallbackFile  string

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once

	logger *slog.Logger
	sentry *sentryhelper.SentryHelper
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSRVLookup overrides the DNS lookup function.
func WithSRVLookup(lookup SRVLookup) ResolverOption {
	return func(r *Resolver) { r.lookup = lookup }
}

// WithMirrorTTL overrides the cache freshness window.
func WithMirrorTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithFallbackMirrors replaces the static fallback list.
func WithFallbackMirrors(hosts []string) ResolverOption {
	return func(r *Resolver) {
		if len(hosts) > 0 {
			r.fallback = append([]string(nil), hosts...)
		}
	}
}

// NewResolver creates a mirror resolver.
func NewResolver(logger *slog.Logger, sentry *sentryhelper.SentryHelper, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	resolver := &Resolver{
		lookup: func(ctx context.Context, service, proto, domain string) ([]*net.SRV, error) {
			_, addrs, err := net.DefaultResolver.LookupSRV(ctx, service, proto, domain)
			return addrs, err
		},
		ttl:      DefaultMirrorTTL,
		fallback: append([]string(nil), DefaultFallbackMirrors...),
		done:     make(chan struct{}),
		logger:   logger,
		sentry:   sentry,
	}
	for _, opt := range opts {
		opt(resolver)
	}
	// Single-entry cache; the expiry is what matters, not eviction.
	resolver.cache = gcache.New(1).LRU().Build()
	return resolver
}

// Mirrors returns the current mirror set. The resolved list is cached for the
// freshness window; concurrent callers during a miss share one outstanding
// lookup. The returned slice is always non-empty.
func (r *Resolver) Mirrors(ctx context.Context) []string {
	if cached, err := r.cache.Get(mirrorsCacheKey); err == nil {
		if hosts, ok := cached.([]string); ok && len(hosts) > 0 {
			return hosts
		}
	}

	result, _, _ := r.group.Do(mirrorsCacheKey, func() (interface{}, error) {
		// The lookup is shared by every concurrent caller, so it must not
		// inherit the first caller's cancellation. discover applies its own
		// timeout.
		hosts := r.discover(context.WithoutCancel(ctx))
		if cacheErr := r.cache.SetWithExpire(mirrorsCacheKey, hosts, r.ttl); cacheErr != nil {
			r.logger.Warn("Failed to cache mirror list", slog.String("error", cacheErr.Error()))
		}
		return hosts, nil
	})

	hosts, ok := result.([]string)
	if !ok || len(hosts) == 0 {
		return r.fallbackMirrors()
	}
	return hosts
}

// Invalidate drops the cached mirror list so the next call re-discovers.
func (r *Resolver) Invalidate() {
	r.cache.Remove(mirrorsCacheKey)
}

// discover performs the SRV lookup, deduplicates hosts, and falls back to the
// static list on any failure.
func (r *Resolver) discover(ctx context.Context) []string {
	lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	addrs, err := r.lookup(lookupCtx, defaultSRVService, defaultSRVProto, defaultSRVDomain)
	if err != nil {
		r.logger.Warn(
			"Mirror discovery failed, using fallback list",
			slog.String("error", err.Error()),
		)
		return r.fallbackMirrors()
	}

	seen := make(map[string]struct{}, len(addrs))
	hosts := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		host := strings.TrimSuffix(addr.Target, ".")
		if host == "" {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		hosts = append(hosts, host)
	}

	if len(hosts) == 0 {
		r.logger.Warn("Mirror discovery returned no hosts, using fallback list")
		return r.fallbackMirrors()
	}

	r.logger.Info("Resolved directory mirrors", slog.Int("count", len(hosts)))
	return hosts
}

func (r *Resolver) fallbackMirrors() []string {
	r.fallbackMutex.RLock()
	defer r.fallbackMutex.RUnlock()
	return append([]string(nil), r.fallback...)
}

// LoadFallbackFile reads a JSON array of hostnames and replaces the static
// fallback list. An empty or unreadable file leaves the current list intact.
func (r *Resolver) LoadFallbackFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var hosts []string
	if unmarshalErr := json.Unmarshal(data, &hosts); unmarshalErr != nil {
		return unmarshalErr
	}
	if len(hosts) == 0 {
		r.logger.Warn("Fallback mirror file is empty, keeping current list", slog.String("file", path))
		return nil
	}

	r.fallbackMutex.Lock()
	r.fallback = hosts
	r.fallbackFile = path
	r.fallbackMutex.Unlock()

	r.logger.Info(
		"Loaded fallback mirrors from file",
		slog.String("file", path),
		slog.Int("count", len(hosts)),
	)
	return nil
}

// WatchFallbackFile loads the fallback mirror file and reloads it whenever it
// changes on disk.
func (r *Resolver) WatchFallbackFile(path string) error {
	if err := r.LoadFallbackFile(path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		r.sentry.CaptureException(err)
		return err
	}
	r.watcher = watcher

	// Watch the directory, not the file: editors replace files on save.
	if watchErr := watcher.Add(filepath.Dir(path)); watchErr != nil {
		watcher.Close()
		r.watcher = nil
		return watchErr
	}

	go r.watchLoop(path)
	return nil
}

func (r *Resolver) watchLoop(path string) {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := r.LoadFallbackFile(path); err != nil {
				r.logger.Error(
					"Failed to reload fallback mirror file",
					slog.String("file", path),
					slog.String("error", err.Error()),
				)
				r.sentry.CaptureException(err)
			}
		case watchErr, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("Fallback mirror watcher error", slog.String("error", watchErr.Error()))
		case <-r.done:
			return
		}
	}
}

// Close stops the fallback file watcher if one is running. Safe to call more
// than once.
func (r *Resolver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		if r.watcher != nil {
			err = r.watcher.Close()
		}
	})
	return err
}
