package grid

import "sort"

// MeasureStrategy selects whether rendered row sizes are fed back.
type MeasureStrategy int

const (
	// MeasureLive uses reported row sizes.
	MeasureLive MeasureStrategy = iota
	// MeasureFixed ignores reports and sizes every row by the estimate. Hosts
	// whose layout reporting is unreliable select this.
	MeasureFixed
)

// ParseMeasureStrategy maps "live" and "fixed".
func ParseMeasureStrategy(s string) (MeasureStrategy, bool) {
	switch s {
	case "", "live":
		return MeasureLive, true
	case "fixed":
		return MeasureFixed, true
	}
	return MeasureLive, false
}

// VirtualItem is one row of the window.
type VirtualItem struct {
	Index int
	Start int
	Size  int
}

// End is the offset just past the row.
func (v VirtualItem) End() int { return v.Start + v.Size }

// Window is the set of rows to render.
type Window struct {
	Items        []VirtualItem
	TotalHeight  int
	ScrollOffset int
}

// Indices returns the window's row indices in order.
func (w Window) Indices() []int {
	out := make([]int, len(w.Items))
	for i, it := range w.Items {
		out[i] = it.Index
	}
	return out
}

// Virtualizer computes which rows intersect the viewport. It owns the
// per-row measured sizes and the scroll offset.
type Virtualizer struct {
	estimate int
	overscan int
	strategy MeasureStrategy

	count int
	sizes map[int]int

	// starts[i] is the offset of row i; entries up to valid are current.
	starts []int
	valid  int

	scroll   int
	viewport int
}

// VirtualizerOptions configures a Virtualizer. Zero values take the defaults.
type VirtualizerOptions struct {
	Estimate int
	Overscan int
	Strategy MeasureStrategy
}

func NewVirtualizer(opts VirtualizerOptions) *Virtualizer {
	if opts.Estimate <= 0 {
		opts.Estimate = DefaultRowEstimate
	}
	if opts.Overscan < 0 {
		opts.Overscan = 0
	}
	return &Virtualizer{
		estimate: opts.Estimate,
		overscan: opts.Overscan,
		strategy: opts.Strategy,
		sizes:    map[int]int{},
		starts:   []int{0},
	}
}

func (v *Virtualizer) Count() int          { return v.count }
func (v *Virtualizer) ScrollOffset() int   { return v.scroll }
func (v *Virtualizer) ViewportHeight() int { return v.viewport }
func (v *Virtualizer) Estimate() int       { return v.estimate }
func (v *Virtualizer) Strategy() MeasureStrategy {
	return v.strategy
}

// SetCount changes the number of rows. Sizes measured for rows that no longer
// exist are dropped.
func (v *Virtualizer) SetCount(n int) {
	if n < 0 {
		n = 0
	}
	if n == v.count {
		return
	}
	if n < v.count {
		for i := range v.sizes {
			if i >= n {
				delete(v.sizes, i)
			}
		}
		v.starts = v.starts[:n+1]
		if v.valid > n {
			v.valid = n
		}
	} else {
		v.starts = append(v.starts, make([]int, n-v.count)...)
	}
	v.count = n
	v.clampScroll()
}

// SetViewportHeight records the visible height.
func (v *Virtualizer) SetViewportHeight(h int) {
	if h < 0 {
		h = 0
	}
	v.viewport = h
	v.clampScroll()
}

// SetScrollOffset moves the viewport, clamped to the content.
func (v *Virtualizer) SetScrollOffset(off int) {
	v.scroll = off
	v.clampScroll()
}

// ScrollBy moves the viewport by delta.
func (v *Virtualizer) ScrollBy(delta int) { v.SetScrollOffset(v.scroll + delta) }

// ScrollTo is SetScrollOffset; it is the reset hook used on sort changes.
func (v *Virtualizer) ScrollTo(off int) { v.SetScrollOffset(off) }

// ScrollToIndex aligns row i with the top of the viewport.
func (v *Virtualizer) ScrollToIndex(i int) {
	if v.count == 0 {
		v.SetScrollOffset(0)
		return
	}
	if i < 0 {
		i = 0
	}
	if i >= v.count {
		i = v.count - 1
	}
	v.SetScrollOffset(v.Offset(i))
}

// Size is the best-known size of row i.
func (v *Virtualizer) Size(i int) int {
	if s, ok := v.sizes[i]; ok {
		return s
	}
	return v.estimate
}

// Offset is the sum of the sizes of rows 0..i-1.
func (v *Virtualizer) Offset(i int) int {
	if i <= 0 {
		return 0
	}
	if i > v.count {
		i = v.count
	}
	v.ensure(i)
	return v.starts[i]
}

// TotalHeight is the sum of all rows' best-known sizes.
func (v *Virtualizer) TotalHeight() int {
	v.ensure(v.count)
	return v.starts[v.count]
}

// Measure records the rendered size of row i. Offsets of the following rows
// shift; if the row starts above the viewport the scroll offset shifts with
// them so that the rows on screen stay where they are.
func (v *Virtualizer) Measure(i, size int) error {
	if v.strategy == MeasureFixed || size <= 0 {
		return ErrMeasurementUnavailable
	}
	if i < 0 || i >= v.count {
		return nil
	}
	old := v.Size(i)
	if old == size {
		return nil
	}
	start := v.Offset(i)
	v.sizes[i] = size
	if v.valid > i {
		v.valid = i
	}
	if start < v.scroll {
		v.scroll += size - old
		v.clampScroll()
	}
	return nil
}

// Window computes the rows to render: every row intersecting the viewport
// plus Overscan rows on either side. The result is always a contiguous range.
func (v *Virtualizer) Window() Window {
	total := v.TotalHeight()
	w := Window{TotalHeight: total, ScrollOffset: v.scroll}
	if v.count == 0 {
		return w
	}

	lo, hi := v.scroll, v.scroll+v.viewport
	first := sort.Search(v.count, func(i int) bool { return v.starts[i+1] > lo })
	if first >= v.count {
		first = v.count - 1
	}
	last := sort.Search(v.count, func(i int) bool { return v.starts[i] >= hi }) - 1
	if last < first {
		last = first
	}

	start := max(0, first-v.overscan)
	end := min(v.count-1, last+v.overscan)
	w.Items = make([]VirtualItem, 0, end-start+1)
	for i := start; i <= end; i++ {
		w.Items = append(w.Items, VirtualItem{Index: i, Start: v.starts[i], Size: v.starts[i+1] - v.starts[i]})
	}
	return w
}

// ensure brings starts up to date through index n.
func (v *Virtualizer) ensure(n int) {
	for i := v.valid; i < n; i++ {
		v.starts[i+1] = v.starts[i] + v.Size(i)
	}
	if n > v.valid {
		v.valid = n
	}
}

func (v *Virtualizer) clampScroll() {
	maxScroll := v.TotalHeight() - v.viewport
	if v.scroll > maxScroll {
		v.scroll = maxScroll
	}
	if v.scroll < 0 {
		v.scroll = 0
	}
}
