package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/user/radio-directory-web/directory"
)

func station(name, tags string) directory.Station {
	return directory.Station{ID: name, Name: name, StreamURL: "http://stream.example", Tags: tags}
}

func TestMatchCaseInsensitive(t *testing.T) {
	assert.True(t, Match(station("Smooth Jazz FM", ""), "jazz"))
	assert.True(t, Match(station("Smooth Jazz FM", ""), "JAZZ"))
	assert.False(t, Match(station("Smooth Jazz FM", ""), "rock"))
}

func TestMatchDiacriticInsensitive(t *testing.T) {
	// Accented query against a plain name, and the other way around.
	assert.True(t, Match(station("Cafe Radio", ""), "café"))
	assert.True(t, Match(station("Café Radio", ""), "cafe"))
	assert.True(t, Match(station("Rádio São Paulo", ""), "radio sao"))
}

func TestMatchConjunctiveTerms(t *testing.T) {
	withTags := station("Capital FM", "rock,london")
	assert.True(t, Match(withTags, "rock london"), "terms may match across name and tags")

	rockOnly := station("Some Station", "rock")
	assert.False(t, Match(rockOnly, "rock london"), "every term must match somewhere")
}

func TestMatchEmptyQueryMatchesAll(t *testing.T) {
	assert.True(t, Match(station("Anything", ""), ""))
	assert.True(t, Match(station("Anything", ""), "   "))
}

func TestFilterPreservesOrder(t *testing.T) {
	stations := []directory.Station{
		station("Jazz One", ""),
		station("Rock One", ""),
		station("Jazz Two", ""),
	}

	filtered := Filter(stations, "jazz")
	assert.Len(t, filtered, 2)
	assert.Equal(t, "Jazz One", filtered[0].Name)
	assert.Equal(t, "Jazz Two", filtered[1].Name)

	// Blank query returns the input untouched.
	assert.Equal(t, stations, Filter(stations, " "))
}

func TestFoldStripsMarks(t *testing.T) {
	assert.Equal(t, "cafe", Fold("Café"))
	assert.Equal(t, "uber", Fold("Über"))
}
