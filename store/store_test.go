package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/radio-directory-web/directory"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "stations.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testStation(id, name string) directory.Station {
	return directory.Station{
		ID:        id,
		Name:      name,
		StreamURL: "http://stream.example/" + id,
		Tags:      "test",
	}
}

func TestUpsertStationIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	station := testStation("uuid-1", "Alpha FM")
	require.NoError(t, s.UpsertStation(ctx, station))
	require.NoError(t, s.UpsertStation(ctx, station))

	stations, err := s.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, stations, 1, "repeated upserts must not duplicate rows")
	assert.Equal(t, "Alpha FM", stations[0].Name)
}

func TestUpsertStationRejectsInvalid(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.UpsertStation(ctx, directory.Station{ID: "x", Name: "", StreamURL: "http://x"})
	assert.ErrorIs(t, err, ErrInvalidStation)

	err = s.UpsertStation(ctx, directory.Station{ID: "x", Name: "No URL", StreamURL: "  "})
	assert.ErrorIs(t, err, ErrInvalidStation)
}

func TestUpsertStationGeneratesMissingID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertStation(ctx, directory.Station{
		Name:      "Anonymous FM",
		StreamURL: "http://anon.example",
	}))

	stations, err := s.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.NotEmpty(t, stations[0].ID)
}

func TestListStationsAlphabetical(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertStation(ctx, testStation("uuid-1", "zulu radio")))
	require.NoError(t, s.UpsertStation(ctx, testStation("uuid-2", "Alpha FM")))
	require.NoError(t, s.UpsertStation(ctx, testStation("uuid-3", "Mike Radio")))

	stations, err := s.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, stations, 3)
	assert.Equal(t, "Alpha FM", stations[0].Name)
	assert.Equal(t, "Mike Radio", stations[1].Name)
	assert.Equal(t, "zulu radio", stations[2].Name)
}

func TestToggleFavoritePairLaw(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertStation(ctx, testStation("uuid-1", "Alpha FM")))

	favorited, err := s.ToggleFavorite(ctx, "uuid-1")
	require.NoError(t, err)
	assert.True(t, favorited)

	isFav, err := s.IsFavorite(ctx, "uuid-1")
	require.NoError(t, err)
	assert.True(t, isFav)

	favorited, err = s.ToggleFavorite(ctx, "uuid-1")
	require.NoError(t, err)
	assert.False(t, favorited, "toggling twice must return to the original state")

	isFav, err = s.IsFavorite(ctx, "uuid-1")
	require.NoError(t, err)
	assert.False(t, isFav)
}

func TestToggleFavoriteUnknownStationFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	favorited, err := s.ToggleFavorite(ctx, "never-cached-id")
	require.Error(t, err, "favoriting a station that was never cached must not succeed")
	assert.False(t, favorited)

	isFav, err := s.IsFavorite(ctx, "never-cached-id")
	require.NoError(t, err)
	assert.False(t, isFav)

	favorites, err := s.ListFavorites(ctx)
	require.NoError(t, err)
	assert.Empty(t, favorites, "no orphan favorite row may be left behind")
}

func TestToggleFavoriteEmptyID(t *testing.T) {
	s := openTestStore(t)
	_, err := s.ToggleFavorite(context.Background(), "")
	assert.Error(t, err)
}

func TestListFavoritesMostRecentFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, station := range []directory.Station{
		testStation("uuid-1", "First Favorited"),
		testStation("uuid-2", "Second Favorited"),
		testStation("uuid-3", "Third Favorited"),
	} {
		require.NoError(t, s.UpsertStation(ctx, station))
		_, err := s.ToggleFavorite(ctx, station.ID)
		require.NoError(t, err)
	}

	favorites, err := s.ListFavorites(ctx)
	require.NoError(t, err)
	require.Len(t, favorites, 3)
	assert.Equal(t, "Third Favorited", favorites[0].Name)
	assert.Equal(t, "Second Favorited", favorites[1].Name)
	assert.Equal(t, "First Favorited", favorites[2].Name)
}

func TestToggleFavoriteSerializedUnderConcurrency(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertStation(ctx, testStation("uuid-1", "Alpha FM")))

	const toggles = 10
	var wg sync.WaitGroup
	wg.Add(toggles)
	for i := 0; i < toggles; i++ {
		go func() {
			defer wg.Done()
			_, err := s.ToggleFavorite(ctx, "uuid-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// An even number of flips lands back on unfavorited, and the per-id lock
	// guarantees there is never more than one favorite row.
	favorites, err := s.ListFavorites(ctx)
	require.NoError(t, err)
	assert.Empty(t, favorites)
}
