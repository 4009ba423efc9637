// Package directory implements the client for the external radio station
// directory: mirror discovery with failover, paginated station search, and
// best-effort click reporting.
package directory

import "strings"

// Station is the canonical playable station record used across the
// application. A Station is never returned with an empty Name or StreamURL.
type Station struct {
	ID         string `json:"id" db:"station_id"`
	Name       string `json:"name" db:"name"`
	StreamURL  string `json:"streamUrl" db:"url"`
	FaviconURL string `json:"faviconUrl,omitempty" db:"favicon"`
	Tags       string `json:"tags,omitempty" db:"tags"`
	Codec      string `json:"codec,omitempty" db:"-"`
	Votes      int    `json:"votes,omitempty" db:"-"`
	ClickCount int    `json:"clickcount,omitempty" db:"-"`
}

// Valid reports whether the record satisfies the non-empty name and URL
// invariant. Records failing this are dropped, not surfaced as errors.
func (s Station) Valid() bool {
	return strings.TrimSpace(s.Name) != "" && strings.TrimSpace(s.StreamURL) != ""
}

// Filters narrows a station search. Empty fields are ignored.
type Filters struct {
	Query   string
	Tag     string
	Country string
}
