// Package search implements the station search pipeline: the debounced
// search-and-pagination controller and the client-side matcher used in
// cached-directory mode.
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/user/radio-directory-web/directory"
)

// foldTransformer strips combining marks after canonical decomposition, so
// "café" folds to "cafe". The chain carries internal buffers, so each caller
// gets its own.
func foldTransformer() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Fold normalizes a string for matching: lower-cased and diacritic-free.
func Fold(value string) string {
	folded, _, err := transform.String(foldTransformer(), value)
	if err != nil {
		// Fall back to the raw string; worse matching beats no matching.
		folded = value
	}
	return strings.ToLower(folded)
}

// Match reports whether a station matches the query. The query is split on
// whitespace and every term must appear as a substring of the folded name or
// the folded tags (conjunctive multi-term match). An empty query matches
// everything.
func Match(station directory.Station, query string) bool {
	terms := strings.Fields(Fold(query))
	if len(terms) == 0 {
		return true
	}

	name := Fold(station.Name)
	tags := Fold(station.Tags)
	for _, term := range terms {
		if !strings.Contains(name, term) && !strings.Contains(tags, term) {
			return false
		}
	}
	return true
}

// Filter returns the stations matching the query, preserving input order.
func Filter(stations []directory.Station, query string) []directory.Station {
	if strings.TrimSpace(query) == "" {
		return stations
	}

	matched := make([]directory.Station, 0, len(stations))
	for _, station := range stations {
		if Match(station, query) {
			matched = append(matched, station)
		}
	}
	return matched
}
