package grid

// SortMode picks how a toggle combines with the existing spec.
type SortMode int

const (
	// SortSingle cycles one column none -> asc -> desc -> none and drops the rest.
	SortSingle SortMode = iota
	// SortMulti cycles the toggled column in place and keeps the others.
	SortMulti
)

// ParseSortMode maps "single" and "multi".
func ParseSortMode(s string) (SortMode, bool) {
	switch s {
	case "", "single":
		return SortSingle, true
	case "multi":
		return SortMulti, true
	}
	return SortSingle, false
}

// CacheResetter is the coordinator hook the sort controller drives.
type CacheResetter interface {
	Reset()
}

// ScrollResetter is the virtualizer hook the sort controller drives.
type ScrollResetter interface {
	ScrollTo(offset int)
}

// SortController holds the active sort spec. It is the only component that
// resets the page cache: every change clears the cache and returns the
// viewport to the top before control goes back to the caller, so old rows are
// never shown under a new order and new rows never appear at a stale offset.
type SortController struct {
	mode   SortMode
	spec   SortSpec
	cache  CacheResetter
	scroll ScrollResetter
}

func NewSortController(mode SortMode, cache CacheResetter, scroll ScrollResetter) *SortController {
	return &SortController{mode: mode, cache: cache, scroll: scroll}
}

// Spec returns a copy of the active spec.
func (s *SortController) Spec() SortSpec { return s.spec.Clone() }

func (s *SortController) Mode() SortMode { return s.mode }

// Sorted reports whether any sort is active.
func (s *SortController) Sorted() bool { return len(s.spec) > 0 }

// Direction returns the direction of column and its position in the spec.
func (s *SortController) Direction(columnID string) (dir SortDirection, pos int, ok bool) {
	for i, k := range s.spec {
		if k.ColumnID == columnID {
			return k.Direction, i, true
		}
	}
	return "", -1, false
}

// Toggle advances column through its sort cycle and applies the result.
func (s *SortController) Toggle(columnID string) SortSpec {
	next := NextSortSpec(s.spec, columnID, s.mode)
	s.apply(next)
	return next.Clone()
}

// Set replaces the spec. It reports whether anything changed; an unchanged
// spec leaves the cache alone.
func (s *SortController) Set(spec SortSpec) bool {
	if spec.Equal(s.spec) {
		return false
	}
	s.apply(spec.Clone())
	return true
}

func (s *SortController) apply(spec SortSpec) {
	s.spec = spec
	s.cache.Reset()
	s.scroll.ScrollTo(0)
}

// NextSortSpec computes the spec that follows a toggle on columnID.
func NextSortSpec(cur SortSpec, columnID string, mode SortMode) SortSpec {
	pos := -1
	for i, k := range cur {
		if k.ColumnID == columnID {
			pos = i
			break
		}
	}

	var nextDir SortDirection
	switch {
	case pos < 0:
		nextDir = Asc
	case cur[pos].Direction == Asc:
		nextDir = Desc
	default:
		nextDir = "" // removed
	}

	if mode == SortSingle {
		if nextDir == "" {
			return nil
		}
		return SortSpec{{ColumnID: columnID, Direction: nextDir}}
	}

	out := cur.Clone()
	switch {
	case pos < 0:
		out = append(out, SortKey{ColumnID: columnID, Direction: nextDir})
	case nextDir == "":
		out = append(out[:pos], out[pos+1:]...)
	default:
		out[pos].Direction = nextDir
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
