package api

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"pkt.systems/pslog"

	"songgrid/internal/bridge"
	"songgrid/internal/grid"
	"songgrid/internal/library"
)

type logCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *logCapture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

type fixture struct {
	store  *library.Store
	client *bridge.Client
	source *SongSource
	logs   *logCapture
}

func newFixture(t *testing.T, songs int) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	store, err := library.Open(ctx, filepath.Join(t.TempDir(), "songs.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Seed(ctx, songs, 7); err != nil {
		t.Fatal(err)
	}

	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.DebugLevel,
		VerboseFields: true,
	})
	host := bridge.NewHost()
	Register(host, store, logger)
	client := bridge.Pipe(ctx, host)
	t.Cleanup(func() {
		client.Close()
		cancel()
		store.Close()
	})
	return &fixture{store: store, client: client, source: NewSongSource(client), logs: capture}
}

func TestSongsListPaging(t *testing.T) {
	f := newFixture(t, 250)
	ctx := context.Background()

	var resp SongPage
	if err := f.client.Call(ctx, MethodSongsList, &resp, 2, 100); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 250 || resp.Page != 2 || resp.Limit != 100 || resp.Offset != 200 || len(resp.Data) != 50 {
		t.Errorf("page 2 = count %d page %d limit %d offset %d data %d", resp.Count, resp.Page, resp.Limit, resp.Offset, len(resp.Data))
	}

	if err := f.client.Call(ctx, MethodSongsList, &resp, 0); err != nil {
		t.Fatal(err)
	}
	if resp.Offset != 0 || resp.Limit != grid.DefaultPageSize || len(resp.Data) != grid.DefaultPageSize {
		t.Errorf("page 0 with default limit = offset %d limit %d data %d", resp.Offset, resp.Limit, len(resp.Data))
	}

	if err := f.client.Call(ctx, MethodSongsList, &resp, 0, 5000); err != nil {
		t.Fatal(err)
	}
	if resp.Limit != MaxLimit {
		t.Errorf("limit = %d, want %d", resp.Limit, MaxLimit)
	}
}

func TestSongsListErrors(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	var re *bridge.RemoteError

	if err := f.client.Call(ctx, MethodSongsList, nil, -1, 10); !errors.As(err, &re) {
		t.Errorf("negative page = %v", err)
	}
	bad := grid.SortSpec{{ColumnID: "bpm", Direction: grid.Asc}}
	if err := f.client.Call(ctx, MethodSongsList, nil, 0, 10, nil, bad); !errors.As(err, &re) || !strings.Contains(re.Message, "bpm") {
		t.Errorf("unknown sort column = %v", err)
	}
	if err := f.client.Call(ctx, MethodSongsList, nil); !errors.As(err, &re) {
		t.Errorf("missing page = %v", err)
	}
}

func TestSongSourceFetchPage(t *testing.T) {
	f := newFixture(t, 120)
	ctx := context.Background()
	q := grid.Query{
		PageIndex: 0,
		PageSize:  50,
		Sort:      grid.SortSpec{{ColumnID: "size", Direction: grid.Desc}},
	}

	page, err := f.source.FetchPage(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if page.Index != 0 || page.TotalCount != 120 || len(page.Items) != 50 {
		t.Fatalf("page = index %d total %d items %d", page.Index, page.TotalCount, len(page.Items))
	}
	for i := 1; i < len(page.Items); i++ {
		if page.Items[i-1].Size < page.Items[i].Size {
			t.Fatalf("items not sorted by size desc at %d", i)
		}
	}

	again, err := f.source.FetchPage(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	for i := range page.Items {
		if page.Items[i].ID != again.Items[i].ID {
			t.Fatalf("identical queries returned different pages at %d", i)
		}
	}

	song, err := f.source.Get(ctx, page.Items[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if song != page.Items[0] {
		t.Errorf("Get() = %+v, want %+v", song, page.Items[0])
	}
	if _, err := f.source.Get(ctx, 99999); err == nil {
		t.Error("Get(99999) succeeded")
	}
}

func TestSongSourceFilters(t *testing.T) {
	f := newFixture(t, 200)
	page, err := f.source.FetchPage(context.Background(), grid.Query{
		PageSize: 200,
		Filters:  map[string]string{"artist": "slowdive"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalCount != len(page.Items) {
		t.Errorf("total %d, items %d", page.TotalCount, len(page.Items))
	}
	for _, s := range page.Items {
		if s.Artist != "Slowdive" {
			t.Errorf("filter matched %q", s.Artist)
		}
	}
}

// The grid loads the whole catalog through the bridge, then a sort change
// starts over from page 0 under the new order.
func TestGridOverBridge(t *testing.T) {
	f := newFixture(t, 230)
	cols := []grid.Column[library.Song]{
		{ID: "title", Label: "Title", Sortable: true, Render: func(s library.Song) string { return s.Title }},
		{ID: "artist", Label: "Artist", Sortable: true, Render: func(s library.Song) string { return s.Artist }},
	}
	g := grid.New[library.Song](context.Background(), f.source, cols, grid.Options{
		PageSize:          100,
		PrefetchThreshold: 10,
		RowEstimate:       1,
	})

	run := func(fetch *grid.Fetch[library.Song]) {
		for fetch != nil {
			next, err := g.Deliver(fetch.Run())
			if err != nil {
				t.Fatalf("Deliver() = %v", err)
			}
			fetch = next
		}
	}

	run(g.Mount())
	run(g.OnResize(20))
	for g.State() != grid.Exhausted {
		fetch := g.ScrollToIndex(len(g.Items()))
		if fetch == nil {
			t.Fatalf("stalled at %d items in state %s", len(g.Items()), g.State())
		}
		run(fetch)
	}
	if n := len(g.Items()); n != 230 {
		t.Fatalf("loaded %d songs, want 230", n)
	}
	seen := map[string]bool{}
	for _, s := range g.Items() {
		if seen[s.Key()] {
			t.Fatalf("duplicate song %s", s.Key())
		}
		seen[s.Key()] = true
	}

	fetch, err := g.ToggleSort("artist")
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Items()) != 0 || fetch == nil || fetch.Query.PageIndex != 0 {
		t.Fatalf("sort did not restart paging: items=%d fetch=%v", len(g.Items()), fetch)
	}
	run(fetch)
	items := g.Items()
	for i := 1; i < len(items); i++ {
		if strings.ToLower(items[i-1].Artist) > strings.ToLower(items[i].Artist) {
			t.Fatalf("artist order broken at %d", i)
		}
	}
}

func TestRemoteLogger(t *testing.T) {
	f := newFixture(t, 1)
	rl := NewRemoteLogger(f.client)
	rl.Info("grid mounted")
	rl.Error("fetch page 3 failed")
	rl.Infof("loaded %d rows", 42)

	// Notifications are handled before the next request is read.
	if err := f.client.Call(context.Background(), MethodSongsList, nil, 0, 1); err != nil {
		t.Fatal(err)
	}
	out := f.logs.String()
	for _, want := range []string{"grid mounted", "fetch page 3 failed", "loaded 42 rows", "remote"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}

	var nilLogger *RemoteLogger
	nilLogger.Info("dropped")
}
