package grid

// ViewportMetrics is the scroll geometry the prefetcher looks at.
type ViewportMetrics struct {
	ScrollOffset   int
	ViewportHeight int
	ContentHeight  int
}

// Remaining is the unscrolled distance below the viewport.
func (m ViewportMetrics) Remaining() int {
	return m.ContentHeight - m.ScrollOffset - m.ViewportHeight
}

// FetchStatus is the read-only view of the coordinator the prefetcher needs.
type FetchStatus interface {
	State() FetchState
	TotalFetched() int
	TotalCount() (int, bool)
	NextIndex() int
}

// Prefetcher signals that the next page should be requested once the
// remaining distance drops below Threshold.
type Prefetcher struct {
	Threshold int
}

// ShouldFetch returns the page index to request, if any. It never fires while
// a request is outstanding or once the remote total has been reached.
func (p Prefetcher) ShouldFetch(m ViewportMetrics, st FetchStatus) (index int, ok bool) {
	threshold := p.Threshold
	if threshold <= 0 {
		threshold = DefaultPrefetchThreshold
	}
	if m.Remaining() >= threshold {
		return 0, false
	}
	if st.State() != Idle {
		return 0, false
	}
	if total, known := st.TotalCount(); known && st.TotalFetched() >= total {
		return 0, false
	}
	return st.NextIndex(), true
}
