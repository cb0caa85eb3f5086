// Package grid implements an incremental, windowed data grid over a paged
// remote collection.
//
// A Grid keeps a gap-free local cache of fetched pages, decides when the next
// page is needed from scroll geometry, renders only the rows that intersect
// the viewport, and couples sort changes with a cache reset and a scroll reset.
// Nothing in this package blocks: page fetches are handed back to the caller as
// *Fetch values to be run off the event loop, and their results are fed back
// through Grid.Deliver.
//
// Grid and its components are not safe for concurrent use. They are meant to be
// owned by a single event loop (a bubbletea Update function, for example).
package grid

import (
	"context"
	"strings"
)

// Item is the only requirement the grid puts on a row: a stable identity.
type Item interface {
	Key() string
}

// Page is one fetched batch of items plus the total item count the remote side
// reported when the page was produced.
type Page[T any] struct {
	Index      int
	Items      []T
	TotalCount int
}

// SortDirection is asc or desc.
type SortDirection string

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

// SortKey orders by one column.
type SortKey struct {
	ColumnID  string        `json:"column" cbor:"column"`
	Direction SortDirection `json:"direction" cbor:"direction"`
}

// SortSpec is an ordered list of sort keys. Empty means server default order.
type SortSpec []SortKey

// Equal reports whether two specs order identically.
func (s SortSpec) Equal(o SortSpec) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not share the backing array.
func (s SortSpec) Clone() SortSpec {
	if s == nil {
		return nil
	}
	out := make(SortSpec, len(s))
	copy(out, s)
	return out
}

// String renders the spec as "artist:asc,title:desc".
func (s SortSpec) String() string {
	parts := make([]string, 0, len(s))
	for _, k := range s {
		parts = append(parts, k.ColumnID+":"+string(k.Direction))
	}
	return strings.Join(parts, ",")
}

// ParseSortSpec parses the String form. Keys without a direction sort ascending.
func ParseSortSpec(s string) (SortSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var spec SortSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		col, dir, found := strings.Cut(part, ":")
		key := SortKey{ColumnID: strings.TrimSpace(col), Direction: Asc}
		if found {
			switch SortDirection(strings.ToLower(strings.TrimSpace(dir))) {
			case Asc:
			case Desc:
				key.Direction = Desc
			default:
				return nil, &SortParseError{Input: part}
			}
		}
		if key.ColumnID == "" {
			return nil, &SortParseError{Input: part}
		}
		spec = append(spec, key)
	}
	return spec, nil
}

// Query is the full argument set of one remote page request.
type Query struct {
	PageIndex int
	PageSize  int
	Sort      SortSpec
	Filters   map[string]string
}

// PageSource is the remote collection. FetchPage must be idempotent for
// identical queries so that a failed page can be retried, and the returned
// Page.Index must echo q.PageIndex; a page answering another index fails the
// request.
type PageSource[T any] interface {
	FetchPage(ctx context.Context, q Query) (Page[T], error)
}

// PageSourceFunc adapts a function to PageSource.
type PageSourceFunc[T any] func(ctx context.Context, q Query) (Page[T], error)

// FetchPage implements PageSource.
func (f PageSourceFunc[T]) FetchPage(ctx context.Context, q Query) (Page[T], error) {
	return f(ctx, q)
}

// Column describes one grid column.
type Column[T any] struct {
	ID       string
	Label    string
	SizeHint int // preferred width; 0 lets the renderer decide
	Sortable bool
	Render   func(T) string
}
