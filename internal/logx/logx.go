// Package logx holds pslog helpers shared by the grid browser, the bridge
// host and the scanner.
package logx

import (
	"context"
	"io"
	"strings"

	"pkt.systems/pslog"
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// ParseLevel maps a config log_level to a pslog level.
func ParseLevel(s string) (pslog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return pslog.TraceLevel, true
	case "debug":
		return pslog.DebugLevel, true
	case "", "info":
		return pslog.InfoLevel, true
	case "warn", "warning":
		return pslog.WarnLevel, true
	case "error":
		return pslog.ErrorLevel, true
	}
	return pslog.InfoLevel, false
}

// NewFile returns a structured logger writing JSON lines to w. The browser
// uses it so log output never lands on the terminal it draws on.
func NewFile(w io.Writer, level string) pslog.Logger {
	lvl, _ := ParseLevel(level)
	return pslog.NewWithOptions(w, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      lvl,
		VerboseFields: true,
	})
}

// WithEpoch annotates the logger with the grid's sort epoch.
func WithEpoch(log pslog.Logger, epoch uint64) pslog.Logger {
	return log.With("epoch", epoch)
}

// WithPage annotates the logger with a page index and size.
func WithPage(log pslog.Logger, index, size int) pslog.Logger {
	log = log.With("page", index)
	if size > 0 {
		log = log.With("page_size", size)
	}
	return log
}

// WithSort annotates the logger with a rendered sort spec. An empty spec is
// the source's natural order.
func WithSort(log pslog.Logger, sort string) pslog.Logger {
	if sort == "" {
		sort = "natural"
	}
	return log.With("sort", sort)
}

// WithFilters annotates the logger with active filters, skipping blanks.
func WithFilters(log pslog.Logger, filters map[string]string) pslog.Logger {
	for k, v := range filters {
		if v != "" {
			log = log.With("filter_"+k, v)
		}
	}
	return log
}

// WithRoot annotates the logger with a scan root.
func WithRoot(log pslog.Logger, root string) pslog.Logger {
	if root != "" {
		log = log.With("root", root)
	}
	return log
}
