// Package http provides the JSON API the browser UI talks to: station
// search, click reporting, favorites, and playback control.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/radio-directory-web/directory"
	"github.com/user/radio-directory-web/search"
	sentryhelper "github.com/user/radio-directory-web/sentry_helper"
)

// DirectoryClient is the upstream-facing surface the server needs.
type DirectoryClient interface {
	SearchStations(ctx context.Context, filters directory.Filters, page, pageSize int) ([]directory.Station, bool)
	ReportClick(stationID string)
}

// StationStore is the persistence surface the server needs.
type StationStore interface {
	ListStations(ctx context.Context) ([]directory.Station, error)
	UpsertStation(ctx context.Context, station directory.Station) error
	ListFavorites(ctx context.Context) ([]directory.Station, error)
	ToggleFavorite(ctx context.Context, stationID string) (bool, error)
	IsFavorite(ctx context.Context, stationID string) (bool, error)
}

// Player is the playback surface the server needs.
type Player interface {
	Play(ctx context.Context, station directory.Station) error
	Stop()
	NowPlaying() (directory.Station, bool)
}

// Server is the HTTP server for the radio directory UI.
type Server struct {
	router    *mux.Router
	directory DirectoryClient
	store     StationStore
	player    Player
	pageSize  int
	webDir    string
	logger    *slog.Logger
	sentry    *sentryhelper.SentryHelper
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPageSize sets the default page size for station searches.
func WithPageSize(size int) ServerOption {
	return func(s *Server) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithWebDir serves static UI files from dir under /web/.
func WithWebDir(dir string) ServerOption {
	return func(s *Server) { s.webDir = dir }
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(dir DirectoryClient, store StationStore, player Player, logger *slog.Logger, sentry *sentryhelper.SentryHelper, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	server := &Server{
		router:    mux.NewRouter(),
		directory: dir,
		store:     store,
		player:    player,
		pageSize:  directory.DefaultPageSize,
		webDir:    "./web",
		logger:    logger,
		sentry:    sentry,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupRoutes()
	return server
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	// Monitoring and health endpoints.
	s.router.HandleFunc("/healthz", s.healthzHandler).Methods("GET")
	s.router.HandleFunc("/readyz", s.readyzHandler).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Station API.
	s.router.HandleFunc("/api/stations", s.stationsHandler).Methods("GET")
	s.router.HandleFunc("/api/stations/cached", s.cachedStationsHandler).Methods("GET")
	s.router.HandleFunc("/api/click", s.clickHandler).Methods("GET")

	// Favorites.
	s.router.HandleFunc("/api/favorites", s.favoritesHandler).Methods("GET")
	s.router.HandleFunc("/api/favorites/{id}/toggle", s.toggleFavoriteHandler).Methods("POST")

	// Playback.
	s.router.HandleFunc("/api/play", s.playHandler).Methods("POST")
	s.router.HandleFunc("/api/stop", s.stopHandler).Methods("POST")
	s.router.HandleFunc("/api/now-playing", s.nowPlayingHandler).Methods("GET")

	// Static files for the web interface.
	s.router.PathPrefix("/web/").Handler(http.StripPrefix("/web/", http.FileServer(http.Dir(s.webDir))))

	s.router.NotFoundHandler = http.HandlerFunc(s.notFoundHandler)
}

// stationsResponse is the canonical search response shape. This server emits
// only the object form, never a bare array.
type stationsResponse struct {
	Stations []directory.Station `json:"stations"`
	HasMore  bool                `json:"hasMore"`
}

// newStationsResponse guarantees the stations field encodes as an array,
// never null.
func newStationsResponse(stations []directory.Station, hasMore bool) stationsResponse {
	if stations == nil {
		stations = []directory.Station{}
	}
	return stationsResponse{Stations: stations, HasMore: hasMore}
}

// stationsHandler proxies a paginated search to the directory. Upstream
// failures surface as an empty list, not an error, so the UI can render a
// "no stations" state.
func (s *Server) stationsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	pageSize := parseIntParam(query, s.pageSize, "limit", "pageSize")
	page := parseIntParam(query, 0, "page")
	if page < 1 {
		// Legacy callers send a zero-based offset instead of a page.
		if offset := parseIntParam(query, 0, "offset"); offset > 0 && pageSize > 0 {
			page = offset/pageSize + 1
		} else {
			page = 1
		}
	}

	filters := directory.Filters{
		Query:   firstParam(query, "query", "search"),
		Tag:     query.Get("tag"),
		Country: query.Get("country"),
	}

	stations, hasMore := s.directory.SearchStations(r.Context(), filters, page, pageSize)
	if len(stations) == 0 {
		searchesTotal.WithLabelValues("empty").Inc()
	} else {
		searchesTotal.WithLabelValues("ok").Inc()
	}

	s.writeJSON(w, http.StatusOK, newStationsResponse(stations, hasMore))
}

// cachedStationsHandler serves the locally cached directory, alphabetical,
// with optional client-side query filtering.
func (s *Server) cachedStationsHandler(w http.ResponseWriter, r *http.Request) {
	stations, err := s.store.ListStations(r.Context())
	if err != nil {
		s.logger.Error("Failed to list cached stations", slog.String("error", err.Error()))
		s.sentry.CaptureError(err, "http", "list_cached_stations")
		s.writeError(w, http.StatusInternalServerError, "could not load cached stations")
		return
	}

	if query := firstParam(r.URL.Query(), "query", "search"); query != "" {
		stations = search.Filter(stations, query)
	}

	s.writeJSON(w, http.StatusOK, newStationsResponse(stations, false))
}

// clickHandler forwards a listen-click to the directory. The response is
// always success-shaped: the report is best-effort by contract.
func (s *Server) clickHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if action := query.Get("action"); action != "" && action != "click" {
		s.writeError(w, http.StatusBadRequest, "unsupported action")
		return
	}

	stationID := query.Get("stationId")
	if stationID == "" {
		s.writeError(w, http.StatusBadRequest, "stationId is required")
		return
	}

	s.directory.ReportClick(stationID)
	clickReportsTotal.Inc()
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) favoritesHandler(w http.ResponseWriter, r *http.Request) {
	stations, err := s.store.ListFavorites(r.Context())
	if err != nil {
		s.logger.Error("Failed to list favorites", slog.String("error", err.Error()))
		s.sentry.CaptureError(err, "http", "list_favorites")
		s.writeError(w, http.StatusInternalServerError, "could not load favorites")
		return
	}
	s.writeJSON(w, http.StatusOK, newStationsResponse(stations, false))
}

func (s *Server) toggleFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	stationID := mux.Vars(r)["id"]
	favorited, err := s.store.ToggleFavorite(r.Context(), stationID)
	if err != nil {
		s.logger.Error(
			"Failed to toggle favorite",
			slog.String("station_id", stationID),
			slog.String("error", err.Error()),
		)
		s.sentry.CaptureError(err, "http", "toggle_favorite")
		s.writeError(w, http.StatusInternalServerError, "could not update favorite")
		return
	}

	if favorited {
		favoriteTogglesTotal.WithLabelValues("favorited").Inc()
	} else {
		favoriteTogglesTotal.WithLabelValues("unfavorited").Inc()
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"favorited": favorited})
}

// playHandler starts playback of the station in the request body. The station
// is also cached locally, best-effort.
func (s *Server) playHandler(w http.ResponseWriter, r *http.Request) {
	var station directory.Station
	if err := json.NewDecoder(r.Body).Decode(&station); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid station payload")
		return
	}
	if !station.Valid() {
		s.writeError(w, http.StatusBadRequest, "station requires a name and a stream url")
		return
	}

	// Cache population is allowed to fail silently; playback matters more.
	if err := s.store.UpsertStation(r.Context(), station); err != nil {
		s.logger.Warn(
			"Failed to cache station",
			slog.String("station_id", station.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.player.Play(r.Context(), station); err != nil {
		playbackActive.Set(0)
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if _, playing := s.player.NowPlaying(); playing {
		playbackActive.Set(1)
	} else {
		// Toggle-to-stop: playing the active station stopped it.
		playbackActive.Set(0)
	}
	s.nowPlayingHandler(w, r)
}

func (s *Server) stopHandler(w http.ResponseWriter, _ *http.Request) {
	s.player.Stop()
	playbackActive.Set(0)
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// nowPlayingResponse reports the active station, if any. The favorited flag
// is included so the UI can render the bookmark state in one request.
type nowPlayingResponse struct {
	Playing   bool               `json:"playing"`
	Station   *directory.Station `json:"station,omitempty"`
	Favorited bool               `json:"favorited,omitempty"`
}

func (s *Server) nowPlayingHandler(w http.ResponseWriter, r *http.Request) {
	station, playing := s.player.NowPlaying()
	if !playing {
		s.writeJSON(w, http.StatusOK, nowPlayingResponse{Playing: false})
		return
	}

	favorited, err := s.store.IsFavorite(r.Context(), station.ID)
	if err != nil {
		// Non-fatal: the flag just renders as off.
		s.logger.Debug("Favorite lookup failed", slog.String("error", err.Error()))
	}
	s.writeJSON(w, http.StatusOK, nowPlayingResponse{Playing: true, Station: &station, Favorited: favorited})
}

func (s *Server) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	// Ready means the local store answers; the upstream directory being down
	// is a degraded-but-ready condition.
	if _, err := s.store.ListFavorites(r.Context()); err != nil && !errors.Is(err, context.Canceled) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (s *Server) notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeError(w, http.StatusNotFound, "not found")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError emits the single-line error shape. No internals are leaked.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": strings.TrimSpace(message)})
}

// parseIntParam returns the first parsable positive integer among names.
func parseIntParam(query map[string][]string, fallback int, names ...string) int {
	for _, name := range names {
		values, ok := query[name]
		if !ok || len(values) == 0 {
			continue
		}
		if parsed, err := strconv.Atoi(values[0]); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func firstParam(query map[string][]string, names ...string) string {
	for _, name := range names {
		if values, ok := query[name]; ok && len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	return ""
}
