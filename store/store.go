// Package store persists the cached station list and the favorites relation
// in a local sqlite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/user/radio-directory-web/directory"
)

const schema = `
CREATE TABLE IF NOT EXISTS stations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	station_id  TEXT NOT NULL,
	name        TEXT NOT NULL,
	url         TEXT NOT NULL,
	favicon     TEXT,
	tags        TEXT,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_stations_station_id ON stations(station_id);

CREATE TABLE IF NOT EXISTS favorites (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	station_id  TEXT NOT NULL REFERENCES stations(station_id),
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_favorites_station_id ON favorites(station_id);
`

// ErrInvalidStation is returned when a station without a name or URL is
// handed to UpsertStation.
var ErrInvalidStation = errors.New("station must have a non-empty name and stream url")

// Store is the sqlite-backed station and favorites repository.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger

	// Favorite toggles are serialized per station id so rapid double
	// toggles cannot both observe "absent" and insert twice.
	locksMutex sync.Mutex
	locks      map[string]*sync.Mutex
}

// stationRow is the persisted shape of a station.
type stationRow struct {
	ID        int64          `db:"id"`
	StationID string         `db:"station_id"`
	Name      string         `db:"name"`
	URL       string         `db:"url"`
	Favicon   sql.NullString `db:"favicon"`
	Tags      sql.NullString `db:"tags"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r stationRow) toStation() directory.Station {
	return directory.Station{
		ID:         r.StationID,
		Name:       r.Name,
		StreamURL:  r.URL,
		FaviconURL: r.Favicon.String,
		Tags:       r.Tags.String,
	}
}

// Open opens (and if necessary initializes) the sqlite database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite serializes writers anyway; a single connection avoids
	// SQLITE_BUSY churn under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logger.Info("Station store opened", slog.String("path", path))
	return &Store{
		db:     db,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertStation inserts a station if no row with its external id exists yet.
// Stations arriving without an external id get a generated one. Invalid
// stations (empty name or URL) are rejected.
func (s *Store) UpsertStation(ctx context.Context, station directory.Station) error {
	if !station.Valid() {
		return ErrInvalidStation
	}
	if station.ID == "" {
		station.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stations (station_id, name, url, favicon, tags)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(station_id) DO NOTHING`,
		station.ID, station.Name, station.StreamURL,
		nullable(station.FaviconURL), nullable(station.Tags),
	)
	if err != nil {
		return fmt.Errorf("upsert station %s: %w", station.ID, err)
	}
	return nil
}

// ListStations returns all cached stations ordered alphabetically by name.
func (s *Store) ListStations(ctx context.Context) ([]directory.Station, error) {
	var rows []stationRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, station_id, name, url, favicon, tags, created_at
		 FROM stations
		 ORDER BY name COLLATE NOCASE ASC`)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}

	stations := make([]directory.Station, 0, len(rows))
	for _, row := range rows {
		stations = append(stations, row.toStation())
	}
	return stations, nil
}

// ListFavorites returns favorited stations, most recently favorited first.
func (s *Store) ListFavorites(ctx context.Context) ([]directory.Station, error) {
	var rows []stationRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT st.id, st.station_id, st.name, st.url, st.favicon, st.tags, st.created_at
		 FROM favorites f
		 JOIN stations st ON st.station_id = f.station_id
		 ORDER BY f.created_at DESC, f.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}

	stations := make([]directory.Station, 0, len(rows))
	for _, row := range rows {
		stations = append(stations, row.toStation())
	}
	return stations, nil
}

// IsFavorite reports whether the station id is currently favorited.
func (s *Store) IsFavorite(ctx context.Context, stationID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(1) FROM favorites WHERE station_id = ?`, stationID)
	if err != nil {
		return false, fmt.Errorf("check favorite %s: %w", stationID, err)
	}
	return count > 0, nil
}

// ToggleFavorite flips the favorited state of a station and returns the
// resulting state. The existence check and the write run inside one
// transaction while holding a per-id lock.
func (s *Store) ToggleFavorite(ctx context.Context, stationID string) (bool, error) {
	if stationID == "" {
		return false, errors.New("station id must not be empty")
	}

	lock := s.stationLock(stationID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin toggle transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.GetContext(ctx, &existing,
		`SELECT id FROM favorites WHERE station_id = ? LIMIT 1`, stationID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, insertErr := tx.ExecContext(ctx,
			`INSERT INTO favorites (station_id) VALUES (?)`, stationID); insertErr != nil {
			return false, fmt.Errorf("favorite station %s: %w", stationID, insertErr)
		}
		if commitErr := tx.Commit(); commitErr != nil {
			return false, fmt.Errorf("commit favorite: %w", commitErr)
		}
		s.logger.Debug("Station favorited", slog.String("station_id", stationID))
		return true, nil
	case err != nil:
		return false, fmt.Errorf("check favorite %s: %w", stationID, err)
	default:
		if _, deleteErr := tx.ExecContext(ctx,
			`DELETE FROM favorites WHERE station_id = ?`, stationID); deleteErr != nil {
			return false, fmt.Errorf("unfavorite station %s: %w", stationID, deleteErr)
		}
		if commitErr := tx.Commit(); commitErr != nil {
			return false, fmt.Errorf("commit unfavorite: %w", commitErr)
		}
		s.logger.Debug("Station unfavorited", slog.String("station_id", stationID))
		return false, nil
	}
}

func (s *Store) stationLock(stationID string) *sync.Mutex {
	s.locksMutex.Lock()
	defer s.locksMutex.Unlock()

	lock, ok := s.locks[stationID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[stationID] = lock
	}
	return lock
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
