package grid

import (
	"fmt"

	"pkt.systems/pslog"
)

// FetchState is the coordinator's request state.
type FetchState int

const (
	Idle FetchState = iota
	InFlight
	Exhausted
)

func (s FetchState) String() string {
	switch s {
	case Idle:
		return "idle"
	case InFlight:
		return "in-flight"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Ticket identifies one admitted page request.
type Ticket struct {
	Index    int
	Epoch    uint64
	PageSize int
}

// Coordinator owns the page cache and the fetch state. At most one page
// request is admitted at a time, pages are appended strictly in index order,
// and every Reset bumps the epoch so late results of the previous generation
// can be recognised and dropped.
type Coordinator[T any] struct {
	pageSize int
	log      pslog.Logger

	pageLens   []int
	items      []T
	total      int
	totalKnown bool

	state    FetchState
	inFlight int
	epoch    uint64
}

// NewCoordinator returns an empty, idle coordinator. log may be nil.
func NewCoordinator[T any](pageSize int, log pslog.Logger) *Coordinator[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Coordinator[T]{pageSize: pageSize, log: log, inFlight: -1}
}

// RequestPage admits a request for index when nothing is in flight, the cache
// is not exhausted and index is the next page the cache needs. Otherwise it is
// a no-op and ok is false.
func (c *Coordinator[T]) RequestPage(index int) (t Ticket, ok bool) {
	if c.state != Idle || index != len(c.pageLens) {
		return Ticket{}, false
	}
	c.state = InFlight
	c.inFlight = index
	return Ticket{Index: index, Epoch: c.epoch, PageSize: c.pageSize}, true
}

// OnPageResult applies a page fetched under epoch. Stale, duplicate and
// out-of-order results are discarded and reported through the returned error
// without touching the cache. A mis-indexed answer to the request in flight
// fails that request: the coordinator goes back to idle and the error is a
// *FetchError for the in-flight index, so the next signal asks again. A
// shrinking remote total truncates the cache and returns
// *InconsistentTotalCountError after the page has been applied.
func (c *Coordinator[T]) OnPageResult(epoch uint64, page Page[T]) error {
	if epoch != c.epoch {
		return ErrStaleEpoch
	}
	if c.state == InFlight && page.Index != c.inFlight {
		reason := ErrOutOfOrder
		if page.Index < len(c.pageLens) {
			reason = ErrDuplicatePage
		}
		index := c.inFlight
		c.state = Idle
		c.inFlight = -1
		return &FetchError{Index: index, Err: fmt.Errorf("%w: got page %d", reason, page.Index)}
	}
	if page.Index < len(c.pageLens) {
		return ErrDuplicatePage
	}
	if c.state != InFlight {
		return ErrOutOfOrder
	}

	c.items = append(c.items, page.Items...)
	c.pageLens = append(c.pageLens, len(page.Items))
	c.total = page.TotalCount
	c.totalKnown = true
	c.inFlight = -1

	var err error
	if cached := len(c.items); cached > c.total {
		err = &InconsistentTotalCountError{Cached: cached, Reported: c.total}
		c.truncate(c.total)
		if c.log != nil {
			c.log.Warn("grid total count shrank", "cached", cached, "reported", c.total, "page", page.Index)
		}
	}

	// An empty page can never make progress; treat it as the end.
	if len(c.items) >= c.total || len(page.Items) == 0 {
		c.state = Exhausted
	} else {
		c.state = Idle
	}
	return err
}

// OnPageError records a failed request. The cache is left untouched and the
// coordinator becomes idle so the same index is retried on the next signal.
func (c *Coordinator[T]) OnPageError(epoch uint64, index int, cause error) error {
	if epoch != c.epoch {
		return ErrStaleEpoch
	}
	if c.state != InFlight || index != c.inFlight {
		return ErrOutOfOrder
	}
	c.state = Idle
	c.inFlight = -1
	return &FetchError{Index: index, Err: cause}
}

// Reset clears the cache, forgets the total and starts a new epoch.
func (c *Coordinator[T]) Reset() {
	c.pageLens = nil
	c.items = nil
	c.total = 0
	c.totalKnown = false
	c.state = Idle
	c.inFlight = -1
	c.epoch++
}

// Items returns the cached items in page order. The slice is shared with the
// coordinator and must be treated as read-only.
func (c *Coordinator[T]) Items() []T { return c.items }

// TotalFetched is the number of cached items.
func (c *Coordinator[T]) TotalFetched() int { return len(c.items) }

// TotalCount is the latest remote total; ok is false until a page arrived.
func (c *Coordinator[T]) TotalCount() (total int, ok bool) { return c.total, c.totalKnown }

// NextIndex is the page index the cache needs next.
func (c *Coordinator[T]) NextIndex() int { return len(c.pageLens) }

// Pages is the number of cached pages.
func (c *Coordinator[T]) Pages() int { return len(c.pageLens) }

func (c *Coordinator[T]) State() FetchState { return c.state }

// InFlightIndex is the page being fetched, or -1.
func (c *Coordinator[T]) InFlightIndex() int { return c.inFlight }

func (c *Coordinator[T]) Epoch() uint64 { return c.epoch }

func (c *Coordinator[T]) PageSize() int { return c.pageSize }

func (c *Coordinator[T]) truncate(n int) {
	if n < 0 {
		n = 0
	}
	c.items = c.items[:n]
	kept := 0
	for i, l := range c.pageLens {
		if kept+l >= n {
			c.pageLens[i] = n - kept
			c.pageLens = c.pageLens[:i+1]
			return
		}
		kept += l
	}
}
