package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	lru "github.com/hashicorp/golang-lru/v2"
	"pkt.systems/pslog"

	"songgrid/internal/api"
	"songgrid/internal/grid"
	"songgrid/internal/library"
	"songgrid/internal/logx"
)

// Lines around the grid body: title, header, separator, status, banner, keys.
const browseChrome = 6

// How many passes the live measurement may take before the frame is drawn.
const maxMeasurePasses = 4

const rowCacheSize = 1024

func songColumns() []grid.Column[library.Song] {
	return []grid.Column[library.Song]{
		{ID: "title", Label: "Title", Sortable: true, Render: func(s library.Song) string { return s.Title }},
		{ID: "artist", Label: "Artist", Sortable: true, Render: func(s library.Song) string { return s.Artist }},
		{ID: "album", Label: "Album", Sortable: true, Render: func(s library.Song) string { return s.Album }},
		{ID: "length", Label: "Length", SizeHint: 6, Sortable: true, Render: library.Song.Length},
		{ID: "size", Label: "Size", SizeHint: 9, Sortable: true, Render: func(s library.Song) string { return formatSize(s.Size) }},
		{ID: "codec", Label: "Codec", SizeHint: 6, Sortable: true, Render: func(s library.Song) string { return s.Codec }},
		{ID: "format", Label: "Format", SizeHint: 6, Sortable: true, Render: func(s library.Song) string { return s.Format }},
	}
}

type fetchResultMsg struct {
	res grid.FetchResult[library.Song]
}

type rowKey struct {
	song  string
	width int
	wrap  bool
}

type browseModel struct {
	grid   *grid.Grid[library.Song]
	log    pslog.Logger
	remote *api.RemoteLogger
	rows   *lru.Cache[rowKey, string]

	spin    spinner.Model
	jump    textinput.Model
	jumping bool
	help    bool
	wrap    bool

	width  int
	height int
	banner string
}

func newBrowseModel(g *grid.Grid[library.Song], log pslog.Logger, remote *api.RemoteLogger, wrap bool) browseModel {
	rows, _ := lru.New[rowKey, string](rowCacheSize)

	s := spinner.New()
	s.Spinner = spinner.Dot

	jump := textinput.New()
	jump.Prompt = "Go to row: "
	jump.Placeholder = "1"
	jump.CharLimit = 12

	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return browseModel{
		grid:   g,
		log:    log,
		remote: remote,
		rows:   rows,
		spin:   s,
		jump:   jump,
		wrap:   wrap,
	}
}

func (m browseModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.fetch(m.grid.Mount()), m.remoteInfo("grid mounted"))
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width != m.width {
			m.rows.Purge()
		}
		m.width, m.height = msg.Width, msg.Height
		f := m.grid.OnResize(m.bodyHeight())
		return m, tea.Batch(m.fetch(f), m.fetch(m.measure()))

	case fetchResultMsg:
		next, err := m.grid.Deliver(msg.res)
		var cmds []tea.Cmd
		var fe *grid.FetchError
		switch {
		case errors.As(err, &fe):
			m.banner = fmt.Sprintf("Could not load page %d: %v (r to retry)", fe.Index+1, fe.Err)
			cmds = append(cmds, m.remoteError(fe.Error()))
		case err == nil:
			m.banner = ""
		}
		cmds = append(cmds, m.fetch(next), m.fetch(m.measure()))
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.jumping {
			return m.updateJump(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m browseModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.help {
		m.help = false
		if msg.String() != "q" && msg.String() != "ctrl+c" {
			return m, nil
		}
	}

	var f *grid.Fetch[library.Song]
	switch key := msg.String(); key {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "j", "down":
		f = m.grid.ScrollBy(1)
	case "k", "up":
		f = m.grid.ScrollBy(-1)
	case "pgdown", " ", "f":
		f = m.grid.ScrollBy(m.bodyHeight())
	case "pgup", "b":
		f = m.grid.ScrollBy(-m.bodyHeight())
	case "g", "home":
		f = m.grid.OnScroll(0)
	case "G", "end":
		f = m.grid.OnScroll(m.grid.Virtualizer().TotalHeight())
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		n := int(key[0] - '1')
		cols := m.grid.Columns()
		if n >= len(cols) {
			return m, nil
		}
		var err error
		f, err = m.grid.ToggleSort(cols[n].ID)
		if err != nil {
			m.banner = err.Error()
			return m, nil
		}
		m.banner = ""
		m.log.Info("sort toggled", "column", cols[n].ID, "sort", m.grid.Sort().String())
	case ":":
		m.jumping = true
		m.jump.SetValue("")
		return m, m.jump.Focus()
	case "r":
		m.banner = ""
		f = m.grid.Retry()
	case "?":
		m.help = true
		return m, nil
	default:
		return m, nil
	}
	return m, tea.Batch(m.fetch(f), m.fetch(m.measure()))
}

func (m browseModel) updateJump(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.jumping = false
		m.jump.Blur()
		return m, nil
	case "enter":
		m.jumping = false
		m.jump.Blur()
		row, err := strconv.Atoi(strings.TrimSpace(m.jump.Value()))
		if err != nil || row < 1 {
			m.banner = fmt.Sprintf("Not a row number: %q", m.jump.Value())
			return m, nil
		}
		f := m.grid.ScrollToIndex(row - 1)
		return m, tea.Batch(m.fetch(f), m.fetch(m.measure()))
	}
	var cmd tea.Cmd
	m.jump, cmd = m.jump.Update(msg)
	return m, cmd
}

// fetch runs f off the event loop and feeds the result back as a message.
func (m browseModel) fetch(f *grid.Fetch[library.Song]) tea.Cmd {
	if f == nil {
		return nil
	}
	log := logx.WithSort(logx.WithPage(logx.WithEpoch(m.log, f.Epoch), f.Query.PageIndex, f.Query.PageSize), f.Query.Sort.String())
	return func() tea.Msg {
		start := time.Now()
		res := f.Run()
		if res.Err != nil {
			log.Warn("page fetch failed", "elapsed", time.Since(start), "err", res.Err)
		} else {
			log.Debug("page fetched", "elapsed", time.Since(start), "items", len(res.Page.Items), "total", res.Page.TotalCount)
		}
		return fetchResultMsg{res: res}
	}
}

// measure reports the rendered height of every visible row until the window
// stops moving, then re-runs the prefetch check against the new geometry.
func (m browseModel) measure() *grid.Fetch[library.Song] {
	v := m.grid.Virtualizer()
	if v.Strategy() == grid.MeasureFixed || m.width == 0 {
		return nil
	}
	widths := columnWidths(m.grid.Columns(), m.width)
	items := m.grid.Items()
	for pass := 0; pass < maxMeasurePasses; pass++ {
		changed := false
		for _, vi := range v.Window().Items {
			if vi.Index >= len(items) {
				continue
			}
			h := lipgloss.Height(m.renderRow(items[vi.Index], widths))
			if h != v.Size(vi.Index) {
				if err := m.grid.Measure(vi.Index, h); err == nil {
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
	return m.grid.OnScroll(v.ScrollOffset())
}

func (m browseModel) renderRow(s library.Song, widths []int) string {
	key := rowKey{song: s.Key(), width: m.width, wrap: m.wrap}
	if out, ok := m.rows.Get(key); ok {
		return out
	}
	cols := m.grid.Columns()
	cells := make([]string, len(cols))
	for i, c := range cols {
		cells[i] = c.Render(s)
	}
	out := renderCells(cells, widths, m.wrap, cellStyle)
	m.rows.Add(key, out)
	return out
}

func (m browseModel) bodyHeight() int {
	return max(m.height-browseChrome, 1)
}

func (m browseModel) remoteInfo(msg string) tea.Cmd {
	return func() tea.Msg {
		m.remote.Info(msg)
		return nil
	}
}

func (m browseModel) remoteError(msg string) tea.Cmd {
	return func() tea.Msg {
		m.remote.Error(msg)
		return nil
	}
}

func (m browseModel) View() string {
	if m.width == 0 {
		return m.spin.View() + " Loading songs..."
	}
	if m.help {
		return m.viewHelp()
	}

	snap := m.grid.Snapshot()
	widths := columnWidths(snap.Columns, m.width)
	body := m.bodyHeight()

	var b strings.Builder
	b.WriteString(m.viewTitle(snap))
	b.WriteString("\n")
	b.WriteString(renderHeaderRow(m.headerLabels(snap), widths))
	b.WriteString("\n")
	b.WriteString(m.viewBody(snap, widths, body))
	b.WriteString("\n")
	b.WriteString(m.viewStatus(snap))
	b.WriteString("\n")
	switch {
	case m.jumping:
		b.WriteString(m.jump.View())
	case m.banner != "":
		b.WriteString(bannerStyle.Render(truncateText(m.banner, max(m.width-2, 1))))
	}
	b.WriteString("\n")
	b.WriteString(renderKeyHelp([]string{"j/k scroll", "1-9 sort", ": jump", "? help", "q quit"}))
	return b.String()
}

func (m browseModel) headerLabels(snap grid.Snapshot[library.Song]) []string {
	labels := make([]string, len(snap.Columns))
	multi := snap.SortMode == grid.SortMulti
	for i, c := range snap.Columns {
		label := fmt.Sprintf("%d %s", i+1, c.Label)
		if dir, pos, ok := m.grid.SortDirection(c.ID); ok {
			label += " " + sortGlyph(dir, pos, multi)
		}
		labels[i] = label
	}
	return labels
}

// viewBody places each window row at its offset relative to the scroll
// position. Lines outside the viewport are clipped.
func (m browseModel) viewBody(snap grid.Snapshot[library.Song], widths []int, height int) string {
	lines := make([]string, height)
	for _, row := range snap.Rows {
		var rendered string
		if row.Loaded {
			rendered = m.renderRow(row.Item, widths)
		} else {
			rendered = renderPlaceholderRow(widths)
		}
		top := row.Start - snap.ScrollOffset
		for j, line := range strings.Split(rendered, "\n") {
			if j >= row.Size {
				break
			}
			y := top + j
			if y >= 0 && y < height {
				lines[y] = line
			}
		}
	}
	if len(snap.Rows) == 0 && snap.State == grid.Exhausted {
		lines[0] = subtitleStyle.Render("No songs to display")
	}
	return strings.Join(lines, "\n")
}

func (m browseModel) viewTitle(snap grid.Snapshot[library.Song]) string {
	title := headingStyle.Render("songgrid")
	sort := "natural order"
	if len(snap.Sort) > 0 {
		sort = snap.Sort.String()
	}
	parts := []string{title, labelStyle.Render("sort:") + " " + valueStyle.Render(sort)}
	filters := m.grid.Filters()
	for _, k := range sortedKeys(filters) {
		if v := filters[k]; v != "" {
			parts = append(parts, labelStyle.Render(k+":")+" "+valueStyle.Render(v))
		}
	}
	return truncateText(strings.Join(parts, "  "), m.width)
}

func (m browseModel) viewStatus(snap grid.Snapshot[library.Song]) string {
	total := "?"
	if snap.TotalKnown {
		total = formatCount(int64(snap.Total))
	}
	status := fmt.Sprintf("%s of %s rows", formatCount(int64(snap.Fetched)), total)
	state := stateLabel(snap.State)
	if snap.State == grid.InFlight {
		state = m.spin.View() + " " + state
	}
	if snap.Err != nil {
		state = errorStyle.Render("failed")
	}
	first := 0
	if len(snap.Rows) > 0 {
		first = m.firstVisible(snap) + 1
	}
	pos := subtitleStyle.Render(fmt.Sprintf("row %s", formatCount(int64(first))))
	return truncateText(strings.Join([]string{valueStyle.Render(status), state, pos}, "  "), m.width)
}

func (m browseModel) firstVisible(snap grid.Snapshot[library.Song]) int {
	for _, row := range snap.Rows {
		if row.End() > snap.ScrollOffset {
			return row.Index
		}
	}
	return snap.Rows[0].Index
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}

func (m browseModel) viewHelp() string {
	var b strings.Builder
	b.WriteString(headingStyle.Render("Keys"))
	b.WriteString("\n\n")
	help := [][2]string{
		{"j / ↓", "scroll down one line"},
		{"k / ↑", "scroll up one line"},
		{"pgdn / space", "page down"},
		{"pgup / b", "page up"},
		{"g / G", "top / bottom of loaded rows"},
		{"1-9", "toggle sort on column N"},
		{":", "jump to row"},
		{"r", "retry a failed page"},
		{"q / esc", "quit"},
	}
	for _, h := range help {
		fmt.Fprintf(&b, "  %s %s\n", accentStyle.Width(14).Render(h[0]), subtitleStyle.Render(h[1]))
	}
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render("Press any key to return"))
	return b.String()
}
