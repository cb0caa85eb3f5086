package grid

import (
	"context"
	"errors"
	"maps"

	"pkt.systems/pslog"
)

const (
	DefaultPageSize          = 100
	DefaultPrefetchThreshold = 500
	DefaultRowEstimate       = 33
	DefaultOverscan          = 5
)

// Options configures a Grid. Zero values take the defaults above.
type Options struct {
	PageSize          int
	PrefetchThreshold int
	RowEstimate       int
	Overscan          int
	Measure           MeasureStrategy
	SortMode          SortMode
	Sort              SortSpec
	Filters           map[string]string
	Logger            pslog.Logger
}

// Fetch is an admitted page request, ready to run off the event loop. Its
// result goes back through Grid.Deliver.
type Fetch[T any] struct {
	Epoch  uint64
	Query  Query
	ctx    context.Context
	source PageSource[T]
}

// FetchResult is the outcome of Fetch.Run.
type FetchResult[T any] struct {
	Epoch uint64
	Index int
	Page  Page[T]
	Err   error
}

// Run calls the page source. It blocks and is safe to call from any goroutine.
// The page keeps the index the source reported; Deliver checks it against the
// request.
func (f *Fetch[T]) Run() FetchResult[T] {
	page, err := f.source.FetchPage(f.ctx, f.Query)
	return FetchResult[T]{Epoch: f.Epoch, Index: f.Query.PageIndex, Page: page, Err: err}
}

// Row is one rendered row of a snapshot. Loaded is false when the virtual
// window reaches past the items that have arrived.
type Row[T any] struct {
	VirtualItem
	Item   T
	Loaded bool
}

// Snapshot is everything the presentation layer needs for one frame.
type Snapshot[T any] struct {
	Columns      []Column[T]
	Rows         []Row[T]
	TotalHeight  int
	ScrollOffset int
	Viewport     int
	Sort         SortSpec
	SortMode     SortMode
	Fetched      int
	Total        int
	TotalKnown   bool
	State        FetchState
	Err          error
}

// Grid wires the coordinator, prefetcher, virtualizer and sort controller to
// a page source. Every event method returns the fetch to run next, or nil.
type Grid[T Item] struct {
	ctx     context.Context
	source  PageSource[T]
	columns []Column[T]
	filters map[string]string
	log     pslog.Logger

	cache      *Coordinator[T]
	prefetch   Prefetcher
	virtual    *Virtualizer
	sort       *SortController
	cancelLast context.CancelFunc
	lastErr    error
}

// New builds a grid. ctx bounds every fetch the grid issues.
func New[T Item](ctx context.Context, source PageSource[T], columns []Column[T], opts Options) *Grid[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Overscan == 0 {
		opts.Overscan = DefaultOverscan
	}
	g := &Grid[T]{
		ctx:      ctx,
		source:   source,
		columns:  columns,
		filters:  maps.Clone(opts.Filters),
		log:      opts.Logger,
		cache:    NewCoordinator[T](opts.PageSize, opts.Logger),
		prefetch: Prefetcher{Threshold: opts.PrefetchThreshold},
		virtual: NewVirtualizer(VirtualizerOptions{
			Estimate: opts.RowEstimate,
			Overscan: opts.Overscan,
			Strategy: opts.Measure,
		}),
	}
	g.sort = NewSortController(opts.SortMode, g.cache, g.virtual)
	if len(opts.Sort) > 0 {
		g.sort.spec = opts.Sort.Clone()
	}
	return g
}

// Mount runs the initial prefetch check.
func (g *Grid[T]) Mount() *Fetch[T] { return g.check() }

// OnScroll moves the viewport to offset.
func (g *Grid[T]) OnScroll(offset int) *Fetch[T] {
	g.virtual.SetScrollOffset(offset)
	return g.check()
}

// ScrollBy moves the viewport by delta.
func (g *Grid[T]) ScrollBy(delta int) *Fetch[T] {
	g.virtual.ScrollBy(delta)
	return g.check()
}

// ScrollToIndex brings row i to the top of the viewport.
func (g *Grid[T]) ScrollToIndex(i int) *Fetch[T] {
	g.virtual.ScrollToIndex(i)
	return g.check()
}

// OnResize records a new viewport height.
func (g *Grid[T]) OnResize(height int) *Fetch[T] {
	g.virtual.SetViewportHeight(height)
	return g.check()
}

// Retry re-runs the prefetch check, typically after a failed fetch.
func (g *Grid[T]) Retry() *Fetch[T] { return g.check() }

// Measure reports the rendered size of row i.
func (g *Grid[T]) Measure(i, size int) error { return g.virtual.Measure(i, size) }

// ToggleSort advances the sort cycle of a sortable column. The cache is
// empty and the viewport at the top when it returns; the returned fetch asks
// for page 0 under the new order.
func (g *Grid[T]) ToggleSort(columnID string) (*Fetch[T], error) {
	col, ok := g.column(columnID)
	if !ok {
		return nil, ErrUnknownColumn
	}
	if !col.Sortable {
		return nil, ErrNotSortable
	}
	g.abandonInFlight()
	spec := g.sort.Toggle(columnID)
	g.afterReset(spec)
	return g.check(), nil
}

// SetSort replaces the sort spec. Unknown or unsortable columns are rejected
// and nothing changes.
func (g *Grid[T]) SetSort(spec SortSpec) (*Fetch[T], error) {
	for _, k := range spec {
		col, ok := g.column(k.ColumnID)
		if !ok {
			return nil, ErrUnknownColumn
		}
		if !col.Sortable {
			return nil, ErrNotSortable
		}
	}
	if spec.Equal(g.sort.spec) {
		return nil, nil
	}
	g.abandonInFlight()
	g.sort.Set(spec)
	g.afterReset(spec)
	return g.check(), nil
}

// Deliver applies a fetch result and runs the prefetch check again so that a
// short page in a tall viewport keeps loading without another scroll event.
// The returned error is informational: stale and duplicate results come back
// as ErrStaleEpoch/ErrDuplicatePage, failures as *FetchError.
func (g *Grid[T]) Deliver(res FetchResult[T]) (*Fetch[T], error) {
	if res.Epoch == g.cache.Epoch() && g.cancelLast != nil && res.Index == g.cache.InFlightIndex() {
		g.cancelLast()
		g.cancelLast = nil
	}

	if res.Err != nil {
		err := g.cache.OnPageError(res.Epoch, res.Index, res.Err)
		var fe *FetchError
		if errors.As(err, &fe) {
			g.lastErr = fe
			if g.log != nil {
				g.log.Warn("grid fetch failed", "page", res.Index, "epoch", res.Epoch, "err", res.Err)
			}
		} else if g.log != nil {
			g.log.Debug("grid fetch error discarded", "page", res.Index, "epoch", res.Epoch, "reason", err)
		}
		return nil, err
	}

	err := g.cache.OnPageResult(res.Epoch, res.Page)
	var inconsistent *InconsistentTotalCountError
	var fe *FetchError
	switch {
	case errors.As(err, &fe):
		g.lastErr = fe
		if g.log != nil {
			g.log.Warn("grid page rejected", "page", fe.Index, "got", res.Page.Index, "epoch", res.Epoch, "err", fe.Err)
		}
		return nil, err
	case err != nil && !errors.As(err, &inconsistent):
		if g.log != nil {
			g.log.Debug("grid page discarded", "page", res.Page.Index, "epoch", res.Epoch, "reason", err)
		}
		return nil, err
	}
	g.lastErr = nil
	g.virtual.SetCount(g.cache.TotalFetched())
	if g.log != nil {
		total, _ := g.cache.TotalCount()
		g.log.Debug("grid page applied", "page", res.Page.Index, "items", len(res.Page.Items), "fetched", g.cache.TotalFetched(), "total", total)
	}
	return g.check(), err
}

// Snapshot derives the current frame. It does not change any state.
func (g *Grid[T]) Snapshot() Snapshot[T] {
	w := g.virtual.Window()
	items := g.cache.Items()
	rows := make([]Row[T], 0, len(w.Items))
	for _, vi := range w.Items {
		r := Row[T]{VirtualItem: vi}
		if vi.Index < len(items) {
			r.Item = items[vi.Index]
			r.Loaded = true
		}
		rows = append(rows, r)
	}
	total, known := g.cache.TotalCount()
	return Snapshot[T]{
		Columns:      g.columns,
		Rows:         rows,
		TotalHeight:  w.TotalHeight,
		ScrollOffset: w.ScrollOffset,
		Viewport:     g.virtual.ViewportHeight(),
		Sort:         g.sort.Spec(),
		SortMode:     g.sort.Mode(),
		Fetched:      g.cache.TotalFetched(),
		Total:        total,
		TotalKnown:   known,
		State:        g.cache.State(),
		Err:          g.lastErr,
	}
}

func (g *Grid[T]) Columns() []Column[T]       { return g.columns }
func (g *Grid[T]) Items() []T                 { return g.cache.Items() }
func (g *Grid[T]) State() FetchState          { return g.cache.State() }
func (g *Grid[T]) Sort() SortSpec             { return g.sort.Spec() }
func (g *Grid[T]) Filters() map[string]string { return maps.Clone(g.filters) }
func (g *Grid[T]) Epoch() uint64              { return g.cache.Epoch() }
func (g *Grid[T]) Err() error                 { return g.lastErr }

// SortDirection reports how a column is sorted, if at all.
func (g *Grid[T]) SortDirection(columnID string) (SortDirection, int, bool) {
	return g.sort.Direction(columnID)
}

// Virtualizer exposes row geometry to the presentation layer.
func (g *Grid[T]) Virtualizer() *Virtualizer { return g.virtual }

func (g *Grid[T]) check() *Fetch[T] {
	m := ViewportMetrics{
		ScrollOffset:   g.virtual.ScrollOffset(),
		ViewportHeight: g.virtual.ViewportHeight(),
		ContentHeight:  g.virtual.TotalHeight(),
	}
	index, ok := g.prefetch.ShouldFetch(m, g.cache)
	if !ok {
		return nil
	}
	t, ok := g.cache.RequestPage(index)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithCancel(g.ctx)
	g.cancelLast = cancel
	return &Fetch[T]{
		Epoch: t.Epoch,
		Query: Query{
			PageIndex: t.Index,
			PageSize:  t.PageSize,
			Sort:      g.sort.Spec(),
			Filters:   maps.Clone(g.filters),
		},
		ctx:    ctx,
		source: g.source,
	}
}

func (g *Grid[T]) afterReset(spec SortSpec) {
	g.lastErr = nil
	g.virtual.SetCount(0)
	if g.log != nil {
		g.log.Info("grid sort changed", "sort", spec.String(), "epoch", g.cache.Epoch())
	}
}

// abandonInFlight cancels a request that the coming reset will orphan.
func (g *Grid[T]) abandonInFlight() {
	if g.cancelLast != nil {
		g.cancelLast()
		g.cancelLast = nil
	}
}

func (g *Grid[T]) column(id string) (Column[T], bool) {
	for _, c := range g.columns {
		if c.ID == id {
			return c, true
		}
	}
	return Column[T]{}, false
}
