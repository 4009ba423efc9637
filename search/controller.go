package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/user/radio-directory-web/directory"
)

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// DefaultDebounce is the quiet period between keystrokes before the raw
// query becomes the committed one.
const DefaultDebounce = 300 * time.Millisecond

// Fetcher issues one page of a station search.
type Fetcher interface {
	Search(ctx context.Context, filters directory.Filters, page, pageSize int) ([]directory.Station, bool, error)
}

// Controller coordinates debounced search input, tag/country filters, and
// incremental pagination over a Fetcher. Every committed filter change bumps a
// generation and cancels the in-flight fetch, so a stale response can never
// overwrite newer results: the last committed filter set wins.
type Controller struct {
	fetcher  Fetcher
	pageSize int
	debounce time.Duration
	logger   *slog.Logger

	mutex      sync.Mutex
	state      State
	results    []directory.Station
	page       int
	hasMore    bool
	inFlight   bool
	errMessage string

	committed directory.Filters
	pending   string
	timer     *time.Timer

	generation uint64
	cancel     context.CancelFunc
	closed     bool
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithPageSize sets the page size used for fetches.
func WithPageSize(size int) ControllerOption {
	return func(c *Controller) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithDebounce sets the quiet period for query input.
func WithDebounce(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// NewController creates a controller in the Idle state. Call Start to issue
// the initial empty-filter fetch.
func NewController(fetcher Fetcher, logger *slog.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	controller := &Controller{
		fetcher:  fetcher,
		pageSize: directory.DefaultPageSize,
		debounce: DefaultDebounce,
		logger:   logger,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(controller)
	}
	return controller
}

// Start issues the first-page fetch with empty filters.
func (c *Controller) Start() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.commitLocked(c.committed)
}

// SetQuery records raw query input. The value only commits after the debounce
// window passes without further input, so rapid keystrokes cause exactly one
// fetch for the final value.
func (c *Controller) SetQuery(query string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}

	c.pending = query
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, c.commitPendingQuery)
}

func (c *Controller) commitPendingQuery() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed || c.pending == c.committed.Query {
		return
	}

	filters := c.committed
	filters.Query = c.pending
	c.commitLocked(filters)
}

// SetTag commits a tag filter immediately.
func (c *Controller) SetTag(tag string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed || tag == c.committed.Tag {
		return
	}

	filters := c.committed
	filters.Tag = tag
	c.commitLocked(filters)
}

// SetCountry commits a country filter immediately.
func (c *Controller) SetCountry(country string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed || country == c.committed.Country {
		return
	}

	filters := c.committed
	filters.Country = country
	c.commitLocked(filters)
}

// commitLocked resets pagination, cancels any in-flight fetch, and issues the
// first page for the new filter set. Caller holds the mutex.
func (c *Controller) commitLocked(filters directory.Filters) {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	c.committed = filters
	c.pending = filters.Query
	c.page = 1
	c.results = nil
	c.hasMore = false
	c.state = StateLoading
	c.errMessage = ""

	c.startFetchLocked(filters, 1)
}

// LoadMore fetches the next page. It is a no-op unless the controller is
// Loaded, has more results, and no fetch is in flight.
func (c *Controller) LoadMore() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed || c.state != StateLoaded || !c.hasMore || c.inFlight {
		return
	}

	c.page++
	c.startFetchLocked(c.committed, c.page)
}

// startFetchLocked launches a fetch for the current generation. Caller holds
// the mutex.
func (c *Controller) startFetchLocked(filters directory.Filters, page int) {
	c.generation++
	generation := c.generation

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.inFlight = true

	go func() {
		stations, hasMore, err := c.fetcher.Search(ctx, filters, page, c.pageSize)
		c.finishFetch(generation, page, stations, hasMore, err)
	}()
}

// finishFetch applies a fetch result unless it belongs to a stale generation.
func (c *Controller) finishFetch(generation uint64, page int, stations []directory.Station, hasMore bool, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if generation != c.generation {
		// Superseded by a newer commit; its cancellation already ran.
		return
	}
	c.inFlight = false

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Cancellation is not an error and must not surface.
			return
		}
		c.state = StateError
		c.errMessage = err.Error()
		c.logger.Warn("Station fetch failed", slog.String("error", err.Error()))
		return
	}

	if page > 1 {
		c.results = append(c.results, stations...)
	} else {
		c.results = stations
	}
	c.hasMore = hasMore
	c.state = StateLoaded
	c.errMessage = ""
}

// Results returns a copy of the accumulated result list.
func (c *Controller) Results() []directory.Station {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]directory.Station(nil), c.results...)
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// Err returns the surfaced error message, empty unless in the Error state.
func (c *Controller) Err() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.errMessage
}

// HasMore reports whether another page is believed to exist.
func (c *Controller) HasMore() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.hasMore
}

// InFlight reports whether a fetch is currently outstanding.
func (c *Controller) InFlight() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.inFlight
}

// Filters returns the committed filter set.
func (c *Controller) Filters() directory.Filters {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.committed
}

// Close cancels any pending debounce and in-flight fetch. The controller
// ignores input afterwards.
func (c *Controller) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}
	c.closed = true

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	// Invalidate any response still in transit.
	c.generation++
}
