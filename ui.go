package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"songgrid/internal/grid"
)

// Color palette - Modern, professional, with great contrast
var (
	// Primary colors
	primary   = lipgloss.Color("#7c3aed") // Purple
	secondary = lipgloss.Color("#06b6d4") // Cyan
	accent    = lipgloss.Color("#10b981") // Emerald

	// Semantic colors
	success = lipgloss.Color("#22c55e") // Green
	warning = lipgloss.Color("#f59e0b") // Amber
	danger  = lipgloss.Color("#ef4444") // Red
	info    = lipgloss.Color("#3b82f6") // Blue

	// Neutral colors
	background = lipgloss.Color("#0f172a") // Slate-900
	surface    = lipgloss.Color("#1e293b") // Slate-800
	border     = lipgloss.Color("#334155") // Slate-700
	muted      = lipgloss.Color("#64748b") // Slate-500
	text       = lipgloss.Color("#f1f5f9") // Slate-100
	textMuted  = lipgloss.Color("#94a3b8") // Slate-400
)

// Typography styles
var (
	headingStyle = lipgloss.NewStyle().
			Foreground(primary).
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(textMuted)

	labelStyle = lipgloss.NewStyle().
			Foreground(textMuted).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(text).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(danger).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(success).
			Bold(true)

	accentStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)

	cellStyle = lipgloss.NewStyle().
			Foreground(text)

	placeholderStyle = lipgloss.NewStyle().
				Foreground(muted).
				Faint(true)

	bannerStyle = lipgloss.NewStyle().
			Background(danger).
			Foreground(background).
			Bold(true).
			Padding(0, 1)
)

const (
	sortAscGlyph  = "▲"
	sortDescGlyph = "▼"
	cellGap       = " │ "
)

// columnWidths splits the terminal width across columns. Columns with a size
// hint get it (capped by what is left); the rest share the remainder evenly.
func columnWidths[T any](cols []grid.Column[T], total int) []int {
	widths := make([]int, len(cols))
	if len(cols) == 0 {
		return widths
	}
	avail := total - lipgloss.Width(cellGap)*(len(cols)-1)
	flex := 0
	for i, c := range cols {
		if c.SizeHint > 0 {
			widths[i] = min(c.SizeHint, max(avail, 0))
			avail -= widths[i]
		} else {
			flex++
		}
	}
	if flex > 0 {
		share := max(avail/flex, 4)
		for i, c := range cols {
			if c.SizeHint <= 0 {
				widths[i] = share
			}
		}
	}
	for i := range widths {
		widths[i] = max(widths[i], 1)
	}
	return widths
}

// sortGlyph marks a sorted column header. Multi-column sorts carry the key's
// position so the order is visible.
func sortGlyph(dir grid.SortDirection, pos int, multi bool) string {
	g := sortAscGlyph
	if dir == grid.Desc {
		g = sortDescGlyph
	}
	if multi {
		g += fmt.Sprintf("%d", pos+1)
	}
	return g
}

func renderHeaderRow(labels []string, widths []int) string {
	var cells []string
	for i, label := range labels {
		cells = append(cells, headingStyle.Width(widths[i]).MaxWidth(widths[i]).Render(truncateText(label, widths[i])))
	}
	header := strings.Join(cells, lipgloss.NewStyle().Foreground(border).Render(cellGap))

	var sep []string
	for _, w := range widths {
		sep = append(sep, strings.Repeat("─", w))
	}
	separator := lipgloss.NewStyle().Foreground(border).Render(strings.Join(sep, "─┼─"))
	return header + "\n" + separator
}

// renderCells draws one data row. With wrap the cells grow downwards and the
// row may span several lines; otherwise each cell is cut to its width.
func renderCells(cells []string, widths []int, wrap bool, style lipgloss.Style) string {
	rendered := make([]string, 0, len(cells)*2)
	gap := lipgloss.NewStyle().Foreground(border).Render(cellGap)
	for i, cell := range cells {
		if i > 0 {
			rendered = append(rendered, gap)
		}
		s := style.Width(widths[i])
		if !wrap {
			cell = truncateText(cell, widths[i])
			s = s.MaxHeight(1)
		}
		rendered = append(rendered, s.Render(cell))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func renderPlaceholderRow(widths []int) string {
	cells := make([]string, len(widths))
	for i, w := range widths {
		cells[i] = strings.Repeat("·", min(w, 3))
	}
	return renderCells(cells, widths, false, placeholderStyle)
}

func truncateText(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	if width <= 1 {
		return ansi.Truncate(s, width, "")
	}
	return ansi.Truncate(s, width, "…")
}

func renderKeyHelp(keys []string) string {
	var parts []string
	colors := []lipgloss.Color{primary, accent, secondary, info}

	for i, key := range keys {
		keyStyle := lipgloss.NewStyle().
			Background(colors[i%len(colors)]).
			Foreground(background).
			Padding(0, 1).
			Bold(true).
			MarginRight(1)

		parts = append(parts, keyStyle.Render(key))
	}

	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

// Progress bar component
func renderProgressBar(percent float64, width int) string {
	if width <= 0 {
		width = 40
	}

	filled := int(percent * float64(width) / 100)
	filled = min(max(filled, 0), width)

	progressStyle := lipgloss.NewStyle().
		Foreground(accent).
		Background(surface)

	emptyStyle := lipgloss.NewStyle().
		Foreground(muted).
		Background(surface)

	filledBar := progressStyle.Render(strings.Repeat("█", filled))
	emptyBar := emptyStyle.Render(strings.Repeat("░", width-filled))

	return lipgloss.JoinHorizontal(lipgloss.Left, filledBar, emptyBar)
}

func renderStatCard(title, value string, color lipgloss.Color, width int) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		lipgloss.NewStyle().Foreground(color).Bold(true).Render(value),
		subtitleStyle.Render(title),
	)
	return lipgloss.NewStyle().
		Width(width).
		Align(lipgloss.Center).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Render(content)
}

// formatSize renders a byte count the way file managers do.
func formatSize(bytes int64) string {
	if bytes < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}

func formatCount(n int64) string {
	return humanize.Comma(n)
}

func formatSpeed(filesPerSec float64) string {
	if filesPerSec < 1 {
		return fmt.Sprintf("%.2f", filesPerSec)
	} else if filesPerSec < 100 {
		return fmt.Sprintf("%.1f", filesPerSec)
	}
	return fmt.Sprintf("%.0f", filesPerSec)
}

func stateLabel(s grid.FetchState) string {
	switch s {
	case grid.InFlight:
		return accentStyle.Render("loading")
	case grid.Exhausted:
		return successStyle.Render("complete")
	default:
		return subtitleStyle.Render("idle")
	}
}
