package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"pkt.systems/pslog"
)

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

func TestGridFields(t *testing.T) {
	capture := &logCapture{}
	log := WithSort(WithPage(WithEpoch(newCaptureLogger(capture), 3), 2, 100), "artist:asc")
	log.Info("page applied")

	entry := capture.firstEntry(t)
	if entry["epoch"] != float64(3) {
		t.Fatalf("expected epoch field, got %+v", entry)
	}
	if entry["page"] != float64(2) || entry["page_size"] != float64(100) {
		t.Fatalf("expected page fields, got %+v", entry)
	}
	if entry["sort"] != "artist:asc" {
		t.Fatalf("expected sort field, got %+v", entry)
	}
}

func TestEmptySortIsNatural(t *testing.T) {
	capture := &logCapture{}
	WithSort(newCaptureLogger(capture), "").Info("mounted")

	entry := capture.firstEntry(t)
	if entry["sort"] != "natural" {
		t.Fatalf("expected natural sort, got %+v", entry)
	}
}

func TestWithFiltersSkipsBlank(t *testing.T) {
	capture := &logCapture{}
	log := WithFilters(newCaptureLogger(capture), map[string]string{"artist": "low", "album": ""})
	log.Info("filtered")

	entry := capture.firstEntry(t)
	if entry["filter_artist"] != "low" {
		t.Fatalf("expected artist filter field, got %+v", entry)
	}
	if _, ok := entry["filter_album"]; ok {
		t.Fatalf("did not expect blank album filter")
	}
}

func TestCtxUsesContextLogger(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newCaptureLogger(capture))
	WithRoot(Ctx(ctx), "/music").Info("scan finished")

	entry := capture.firstEntry(t)
	if entry["root"] != "/music" {
		t.Fatalf("expected root field, got %+v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want pslog.Level
		ok   bool
	}{
		{"", pslog.InfoLevel, true},
		{"debug", pslog.DebugLevel, true},
		{" ERROR ", pslog.ErrorLevel, true},
		{"loud", pslog.InfoLevel, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNewFileHonoursLevel(t *testing.T) {
	capture := &logCapture{}
	log := NewFile(capture, "warn")
	log.Info("quiet")
	log.Warn("slow page", "page", 4)

	entry := capture.firstEntry(t)
	if entry["page"] != float64(4) {
		t.Fatalf("expected only the warning to be written, got %+v", entry)
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
