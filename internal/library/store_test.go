package library

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "songs.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seededStore(t *testing.T, n int) *Store {
	t.Helper()
	s := openTestStore(t)
	if err := s.Seed(context.Background(), n, 42); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	return s
}

func TestOpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)
	for _, table := range []string{"libraries", "songs"} {
		var count int
		query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
		if err := s.db.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to check for table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s not found", table)
		}
	}
}

func TestListPagesAreDisjoint(t *testing.T) {
	s := seededStore(t, 250)
	ctx := context.Background()

	seen := map[int64]bool{}
	sizes := []int{100, 100, 50}
	for page, want := range sizes {
		res, err := s.List(ctx, ListQuery{Offset: page * 100, Limit: 100, Order: []Order{{Column: "artist"}}})
		if err != nil {
			t.Fatalf("List(page %d) failed: %v", page, err)
		}
		if res.Count != 250 {
			t.Errorf("page %d count = %d, want 250", page, res.Count)
		}
		if len(res.Songs) != want {
			t.Errorf("page %d has %d songs, want %d", page, len(res.Songs), want)
		}
		for _, song := range res.Songs {
			if seen[song.ID] {
				t.Fatalf("song %d returned twice", song.ID)
			}
			seen[song.ID] = true
		}
	}
	if len(seen) != 250 {
		t.Errorf("saw %d distinct songs, want 250", len(seen))
	}
}

func TestListOrder(t *testing.T) {
	s := seededStore(t, 300)
	ctx := context.Background()

	res, err := s.List(ctx, ListQuery{Limit: 300, Order: []Order{{Column: "artist"}, {Column: "size", Desc: true}}})
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(res.Songs); i++ {
		a, b := res.Songs[i-1], res.Songs[i]
		ka, kb := strings.ToLower(a.Artist), strings.ToLower(b.Artist)
		if ka > kb {
			t.Fatalf("artist order broken at %d: %q before %q", i, a.Artist, b.Artist)
		}
		if ka == kb && a.Size < b.Size {
			t.Fatalf("size order broken at %d within %q", i, a.Artist)
		}
	}

	res, err = s.List(ctx, ListQuery{Limit: 300})
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(res.Songs); i++ {
		if res.Songs[i-1].ID >= res.Songs[i].ID {
			t.Fatalf("default order is not by id at %d", i)
		}
	}
}

func TestListFilters(t *testing.T) {
	s := seededStore(t, 400)
	ctx := context.Background()

	res, err := s.List(ctx, ListQuery{Limit: 400, Filters: map[string]string{"artist": "RADIO"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Count == 0 || res.Count != len(res.Songs) {
		t.Fatalf("count = %d, songs = %d", res.Count, len(res.Songs))
	}
	for _, song := range res.Songs {
		if song.Artist != "Radiohead" {
			t.Errorf("filter matched %q", song.Artist)
		}
	}

	res, err = s.List(ctx, ListQuery{Limit: 10, Filters: map[string]string{"title": "100%"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 0 {
		t.Errorf("wildcard in filter matched %d songs", res.Count)
	}

	res, err = s.List(ctx, ListQuery{Limit: 10, Filters: map[string]string{"album": "  "}})
	if err != nil || res.Count != 400 {
		t.Errorf("blank filter: count = %d, err = %v", res.Count, err)
	}
}

func TestListRejectsUnknownColumns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.List(ctx, ListQuery{Order: []Order{{Column: "bpm"}}}); !errors.Is(err, ErrUnknownSortColumn) {
		t.Errorf("unknown sort: %v", err)
	}
	if _, err := s.List(ctx, ListQuery{Filters: map[string]string{"genre": "jazz"}}); !errors.Is(err, ErrUnknownFilter) {
		t.Errorf("unknown filter: %v", err)
	}
}

func TestListPastTheEnd(t *testing.T) {
	s := seededStore(t, 30)
	res, err := s.List(context.Background(), ListQuery{Offset: 100, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Songs) != 0 || res.Count != 30 {
		t.Errorf("songs = %d, count = %d", len(res.Songs), res.Count)
	}
}

func TestGet(t *testing.T) {
	s := seededStore(t, 5)
	ctx := context.Background()
	res, err := s.List(ctx, ListQuery{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := res.Songs[0]
	got, err := s.Get(ctx, want.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Get(%d) = %+v, want %+v", want.ID, got, want)
	}
	if got.Library != SeedLibrary {
		t.Errorf("Library = %q, want %q", got.Library, SeedLibrary)
	}
	if _, err := s.Get(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(9999) = %v, want ErrNotFound", err)
	}
}

func TestSeedIsDeterministic(t *testing.T) {
	a := seededStore(t, 50)
	b := seededStore(t, 50)
	ctx := context.Background()
	ra, err := a.List(ctx, ListQuery{Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	rb, err := b.List(ctx, ListQuery{Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	for i := range ra.Songs {
		if ra.Songs[i].Path != rb.Songs[i].Path {
			t.Fatalf("song %d differs: %q vs %q", i, ra.Songs[i].Path, rb.Songs[i].Path)
		}
	}

	// Re-seeding upserts by path.
	if err := a.Seed(ctx, 50, 42); err != nil {
		t.Fatal(err)
	}
	if n, _ := a.Count(ctx); n != 50 {
		t.Errorf("Count() after reseed = %d, want 50", n)
	}
}

func TestSongLength(t *testing.T) {
	tests := []struct {
		secs int
		want string
	}{
		{0, "-"},
		{59, "0:59"},
		{61, "1:01"},
		{3600, "60:00"},
	}
	for _, tt := range tests {
		if got := (Song{LengthSeconds: tt.secs}).Length(); got != tt.want {
			t.Errorf("Length(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}

func TestSortColumns(t *testing.T) {
	cols := SortColumns()
	if len(cols) != len(sortColumns) {
		t.Fatalf("SortColumns() = %v", cols)
	}
	for i := 1; i < len(cols); i++ {
		if cols[i-1] >= cols[i] {
			t.Fatalf("SortColumns() not sorted: %v", cols)
		}
	}
}
