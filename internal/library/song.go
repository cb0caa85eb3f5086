// Package library is the song catalog: a SQLite store with paged, sorted and
// filtered listing, a directory scanner that fills it, and a seeder for
// synthetic catalogs.
package library

import (
	"fmt"
	"strconv"
)

// Song is one catalog entry.
type Song struct {
	ID            int64  `json:"id" cbor:"id"`
	Title         string `json:"title" cbor:"title"`
	Artist        string `json:"artist" cbor:"artist"`
	Album         string `json:"album" cbor:"album"`
	LengthSeconds int    `json:"length_seconds" cbor:"length_seconds"`
	Size          int64  `json:"size" cbor:"size"`
	Path          string `json:"path" cbor:"path"`
	Codec         string `json:"codec" cbor:"codec"`
	Format        string `json:"format" cbor:"format"`
	Library       string `json:"library" cbor:"library"`
	SHA256        string `json:"sha256,omitempty" cbor:"sha256,omitempty"`
}

// Key is the row identity used by the grid.
func (s Song) Key() string { return strconv.FormatInt(s.ID, 10) }

// Length renders LengthSeconds as m:ss.
func (s Song) Length() string {
	if s.LengthSeconds <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d:%02d", s.LengthSeconds/60, s.LengthSeconds%60)
}
