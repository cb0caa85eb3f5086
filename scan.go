package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"songgrid/internal/library"
)

type progressMsg library.ScanProgress
type estimationMsg struct{ totalFiles int64 }
type doneMsg struct {
	stats library.ScanProgress
	err   error
}

// scanClosedMsg means the scan ended without its doneMsg reaching the view.
type scanClosedMsg struct{}

type scanModel struct {
	root   string
	dbPath string
	spin   spinner.Model
	start  time.Time
	stats  library.ScanProgress
	events <-chan tea.Msg
	cancel context.CancelFunc

	done       bool
	err        error
	windowSize tea.WindowSizeMsg
}

// Room for progress updates the view has not drained yet.
const scanEventBuffer = 16

// scanJob walks root into store on its own goroutine. Progress, the file
// estimate and the final result arrive on the returned channel, which is
// closed after the doneMsg.
func scanJob(ctx context.Context, store *library.Store, root string, opts library.ScanOptions) <-chan tea.Msg {
	events := make(chan tea.Msg, scanEventBuffer)
	go emitScan(ctx, store, root, opts, events)
	return events
}

// emitScan runs the scan and closes events. Once ctx is done a message is
// only delivered if the reader can take it without blocking, so a reader
// that has gone away never holds the scan open.
func emitScan(ctx context.Context, store *library.Store, root string, opts library.ScanOptions, events chan<- tea.Msg) {
	defer close(events)
	send := func(msg tea.Msg) {
		select {
		case events <- msg:
		case <-ctx.Done():
			select {
			case events <- msg:
			default:
			}
		}
	}

	estimated := library.EstimateFileCount(root, opts.Extensions)
	send(estimationMsg{totalFiles: estimated})

	opts.Estimated = estimated
	opts.Progress = func(p library.ScanProgress) {
		// Progress is advisory; drop it rather than stall the walk.
		select {
		case events <- progressMsg(p):
		default:
		}
	}
	stats, err := store.Scan(ctx, root, opts)
	send(doneMsg{stats: stats, err: err})
}

func newScanModel(root, dbPath string, events <-chan tea.Msg, cancel context.CancelFunc) scanModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return scanModel{
		root:   root,
		dbPath: dbPath,
		spin:   s,
		start:  time.Now(),
		events: events,
		cancel: cancel,
	}
}

func waitForScan(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return scanClosedMsg{}
		}
		return msg
	}
}

func (m scanModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitForScan(m.events))
}

func (m scanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case estimationMsg:
		m.stats.Estimated = msg.totalFiles
		return m, waitForScan(m.events)
	case progressMsg:
		m.stats = library.ScanProgress(msg)
		return m, waitForScan(m.events)
	case doneMsg:
		m.done = true
		m.stats = msg.stats
		m.err = msg.err
		return m, nil
	case scanClosedMsg:
		if !m.done {
			m.done = true
			m.err = context.Canceled
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.windowSize = msg
		return m, nil
	case tea.KeyMsg:
		if m.done {
			return m, tea.Quit
		}
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			// Cancelling rolls back the open batch; committed batches stay.
			if m.cancel != nil {
				m.cancel()
			}
			return m, waitForScan(m.events)
		}
	}
	return m, nil
}

func (m scanModel) View() string {
	if m.done {
		return m.viewDone()
	}
	return m.viewScan()
}

func (m scanModel) viewScan() string {
	elapsed := time.Since(m.start)

	var speed string
	if elapsed > 0 {
		speed = formatSpeed(float64(m.stats.Files) / elapsed.Seconds())
	} else {
		speed = "0"
	}
	elapsedStr := elapsed.Round(time.Second).String()

	var b strings.Builder
	contentWidth := m.getWidth() - 6

	headerBox := lipgloss.NewStyle().
		Width(contentWidth).
		Align(lipgloss.Center).
		Border(lipgloss.DoubleBorder()).
		BorderForeground(accent).
		Padding(0, 2).
		MarginBottom(1)
	header := fmt.Sprintf("%s %s", m.spin.View(), accentStyle.Render("Scanning music library"))
	fmt.Fprintf(&b, "%s\n", headerBox.Render(header))

	card := max(contentWidth/4-2, 10)
	stats := lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatCard("Songs", formatCount(m.stats.Files), accent, card),
		renderStatCard("Folders", formatCount(m.stats.Folders), secondary, card),
		renderStatCard("Speed", speed+"/s", warning, card),
		renderStatCard("Elapsed", elapsedStr, info, card),
	)
	fmt.Fprintf(&b, "%s\n\n", stats)

	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Library: "), valueStyle.Render(m.root))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Database:"), subtitleStyle.Render(m.dbPath))
	if m.stats.Last != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Last:    "), valueStyle.Render(filepath.Base(m.stats.Last)))
	}

	width := m.getProgressBarWidth()
	var progressText string
	percent := m.stats.Percent()
	if m.stats.Estimated > 0 {
		progressText = fmt.Sprintf("%.1f%% (%s/%s files)", percent, formatCount(m.stats.Files), formatCount(m.stats.Estimated))
		if elapsed > 0 && percent > 0 {
			total := elapsed.Seconds() * 100 / percent
			remaining := time.Duration(total-elapsed.Seconds()) * time.Second
			if remaining > 0 {
				progressText += fmt.Sprintf(" • ~%s remaining", remaining.Round(time.Second))
			}
		}
	} else {
		progressText = "Counting files..."
	}
	fmt.Fprintf(&b, "\n%s %s\n", labelStyle.Render("Progress:"), renderProgressBar(percent, width))
	fmt.Fprintf(&b, "%s %s\n", strings.Repeat(" ", 9), accentStyle.Render(progressText))

	fmt.Fprintf(&b, "\n%s\n", subtitleStyle.Render("Press q/ESC to stop (committed batches are kept)"))
	return b.String()
}

func (m scanModel) viewDone() string {
	var b strings.Builder

	if m.err == nil {
		fmt.Fprintf(&b, "%s %s\n\n", successStyle.Render("✓"), successStyle.Render("Scan complete"))
	} else {
		fmt.Fprintf(&b, "%s %s\n\n", errorStyle.Render("✗"), errorStyle.Render("Scan stopped"))
		fmt.Fprintf(&b, "%s %v\n\n", labelStyle.Render("Error:"), m.err)
	}

	elapsed := time.Since(m.start)
	var avgSpeed float64
	if elapsed > 0 {
		avgSpeed = float64(m.stats.Files) / elapsed.Seconds()
	}

	rows := [][2]string{
		{"Database", m.dbPath},
		{"Songs cataloged", formatCount(m.stats.Files)},
		{"Folders scanned", formatCount(m.stats.Folders)},
		{"Time elapsed", elapsed.Round(time.Second).String()},
		{"Average speed", fmt.Sprintf("%s files/sec", formatSpeed(avgSpeed))},
	}
	var lines []string
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Width(16).Render(r[0]), valueStyle.Render(r[1])))
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
	fmt.Fprintf(&b, "%s\n\n", box)

	fmt.Fprintf(&b, "%s\n", valueStyle.Render("Next steps:"))
	fmt.Fprintf(&b, "• %s\n", subtitleStyle.Render("Browse the catalog: songgrid browse"))
	fmt.Fprintf(&b, "• %s\n", subtitleStyle.Render("Sort on open: songgrid browse --sort artist,album"))
	fmt.Fprintf(&b, "\n%s\n", subtitleStyle.Render("Press any key to exit"))
	return b.String()
}

func (m scanModel) getWidth() int {
	if m.windowSize.Width > 0 {
		return m.windowSize.Width
	}
	return 80
}

func (m scanModel) getProgressBarWidth() int {
	width := m.getWidth()
	if width < 60 {
		return 20
	} else if width < 100 {
		return 40
	}
	return 50
}
