package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	sentryhelper "github.com/user/radio-directory-web/sentry_helper"
)

const (
	// DefaultPageSize is used when callers pass a non-positive page size.
	DefaultPageSize = 24

	searchPath      = "/json/stations/search"
	clickPathPrefix = "/json/url/"

	requestTimeout = 15 * time.Second
	clickTimeout   = 10 * time.Second
)

// MirrorSource provides the current set of directory mirror hosts.
type MirrorSource interface {
	Mirrors(ctx context.Context) []string
}

// Client talks to the external station directory over one of its mirrors.
type Client struct {
	httpClient *http.Client
	mirrors    MirrorSource
	logger     *slog.Logger
	sentry     *sentryhelper.SentryHelper

	randMutex sync.Mutex
	rand      *rand.Rand
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for directory requests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a directory client backed by the given mirror source.
func NewClient(mirrors MirrorSource, logger *slog.Logger, sentry *sentryhelper.SentryHelper, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	client := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		mirrors:    mirrors,
		logger:     logger,
		sentry:     sentry,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// upstreamStation mirrors the wire format of the directory service.
type upstreamStation struct {
	StationUUID string `json:"stationuuid"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	URLResolved string `json:"url_resolved"`
	Favicon     string `json:"favicon"`
	Tags        string `json:"tags"`
	Codec       string `json:"codec"`
	Votes       int    `json:"votes"`
	ClickCount  int    `json:"clickcount"`
}

// Search queries the directory for stations matching the filters. Results are
// ordered by descending popularity upstream; broken stations are excluded
// there as well. hasMore is approximated as "a full page came back".
func (c *Client) Search(ctx context.Context, filters Filters, page, pageSize int) ([]Station, bool, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	params := url.Values{}
	params.Set("offset", strconv.Itoa((page-1)*pageSize))
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("order", "clickcount")
	params.Set("reverse", "true")
	params.Set("hidebroken", "true")
	if filters.Query != "" {
		params.Set("name", filters.Query)
	}
	if filters.Tag != "" {
		params.Set("tag", filters.Tag)
	}
	if filters.Country != "" {
		params.Set("country", filters.Country)
	}

	records, err := c.fetchSearch(ctx, params)
	if err != nil {
		return nil, false, err
	}

	stations := make([]Station, 0, len(records))
	for _, record := range records {
		station, ok := mapStation(record)
		if !ok {
			// Missing name or URL: silently filtered, not an error.
			continue
		}
		stations = append(stations, station)
	}

	hasMore := len(records) == pageSize
	return stations, hasMore, nil
}

// SearchStations is the degrading variant of Search used by the HTTP layer:
// any upstream or parsing failure becomes an empty result set so the UI can
// show "no stations" instead of an error page.
func (c *Client) SearchStations(ctx context.Context, filters Filters, page, pageSize int) ([]Station, bool) {
	stations, hasMore, err := c.Search(ctx, filters, page, pageSize)
	if err != nil {
		upstreamFailuresTotal.Inc()
		c.logger.Error("Station search failed, returning empty result", slog.String("error", err.Error()))
		c.sentry.CaptureException(err)
		return []Station{}, false
	}
	return stations, hasMore
}

// fetchSearch tries a randomly chosen mirror and retries once on another when
// the request fails at the network level.
func (c *Client) fetchSearch(ctx context.Context, params url.Values) ([]upstreamStation, error) {
	mirrors := c.mirrors.Mirrors(ctx)
	if len(mirrors) == 0 {
		return nil, errors.New("no directory mirrors available")
	}

	first := c.pickIndex(len(mirrors))
	var lastErr error
	for attempt := 0; attempt < 2 && attempt < len(mirrors); attempt++ {
		mirror := mirrors[(first+attempt)%len(mirrors)]
		records, err := c.fetchFromMirror(ctx, mirror, params)
		if err == nil {
			return records, nil
		}
		lastErr = err
		c.logger.Warn(
			"Directory mirror request failed",
			slog.String("mirror", mirror),
			slog.String("error", err.Error()),
		)
	}
	return nil, lastErr
}

func (c *Client) fetchFromMirror(ctx context.Context, mirror string, params url.Values) ([]upstreamStation, error) {
	endpoint := url.URL{
		Scheme:   "https",
		Host:     mirror,
		Path:     searchPath,
		RawQuery: params.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "radio-directory-web/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mirror %s returned status %d", mirror, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	return decodeStations(body)
}

// decodeStations accepts both response shapes the upstream is known to emit:
// a bare array of stations and a {"stations": [...]} wrapper object.
func decodeStations(body []byte) ([]upstreamStation, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []upstreamStation
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var wrapper struct {
		Stations []upstreamStation `json:"stations"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Stations, nil
}

// mapStation converts an upstream record to the canonical shape. Records
// without a usable name or URL are dropped.
func mapStation(record upstreamStation) (Station, bool) {
	name := strings.TrimSpace(record.Name)

	streamURL := strings.TrimSpace(record.URLResolved)
	if streamURL == "" {
		streamURL = strings.TrimSpace(record.URL)
	}
	if name == "" || streamURL == "" {
		return Station{}, false
	}

	id := strings.TrimSpace(record.StationUUID)
	if id == "" {
		id = uuid.NewString()
	}

	return Station{
		ID:         id,
		Name:       name,
		StreamURL:  streamURL,
		FaviconURL: strings.TrimSpace(record.Favicon),
		Tags:       record.Tags,
		Codec:      record.Codec,
		Votes:      record.Votes,
		ClickCount: record.ClickCount,
	}, true
}

// ReportClick notifies the directory that a station was played. It is
// fire-and-forget: the report runs in its own goroutine with its own timeout,
// and failures are logged and swallowed so playback is never blocked.
func (c *Client) ReportClick(stationID string) {
	if stationID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), clickTimeout)
		defer cancel()

		mirrors := c.mirrors.Mirrors(ctx)
		if len(mirrors) == 0 {
			return
		}
		mirror := mirrors[c.pickIndex(len(mirrors))]

		endpoint := url.URL{
			Scheme: "https",
			Host:   mirror,
			Path:   clickPathPrefix + stationID,
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
		if err != nil {
			c.logger.Warn("Click report request build failed", slog.String("error", err.Error()))
			return
		}
		req.Header.Set("User-Agent", "radio-directory-web/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn(
				"Click report failed",
				slog.String("station_id", stationID),
				slog.String("error", err.Error()),
			)
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		c.logger.Debug("Reported station click", slog.String("station_id", stationID))
	}()
}

func (c *Client) pickIndex(n int) int {
	c.randMutex.Lock()
	defer c.randMutex.Unlock()
	return c.rand.Intn(n)
}
