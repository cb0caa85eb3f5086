package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("library: song not found")
	// ErrUnknownSortColumn is returned for an order on a column the store cannot sort.
	ErrUnknownSortColumn = errors.New("library: unknown sort column")
	// ErrUnknownFilter is returned for a filter key the store does not support.
	ErrUnknownFilter = errors.New("library: unknown filter")
)

// sortColumns maps column ids to the expression they order by.
var sortColumns = map[string]string{
	"title":   "s.title COLLATE NOCASE",
	"artist":  "s.artist COLLATE NOCASE",
	"album":   "s.album COLLATE NOCASE",
	"length":  "s.length_seconds",
	"size":    "s.size",
	"path":    "s.path",
	"codec":   "s.codec",
	"format":  "s.format",
	"library": "l.path",
}

// filterColumns are matched case-insensitively as substrings.
var filterColumns = map[string]string{
	"title":   "s.title",
	"artist":  "s.artist",
	"album":   "s.album",
	"library": "l.path",
}

// SortColumns lists the column ids List can order by.
func SortColumns() []string {
	out := make([]string, 0, len(sortColumns))
	for k := range sortColumns {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Order sorts by one column.
type Order struct {
	Column string
	Desc   bool
}

// ListQuery selects one window of the catalog.
type ListQuery struct {
	Offset  int
	Limit   int
	Order   []Order
	Filters map[string]string
}

// ListResult is a window of songs plus the number of songs matching the
// filters.
type ListResult struct {
	Songs []Song
	Count int
}

// Store is a song catalog backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the catalog at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure %s: %w", path, err)
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Path is the database file.
func (s *Store) Path() string { return s.path }

func initSchema(ctx context.Context, db *sql.DB) error {
	ddl := `
CREATE TABLE IF NOT EXISTS libraries (
	id          INTEGER PRIMARY KEY,
	path        TEXT NOT NULL UNIQUE,
	scanned_utc TEXT
);
CREATE TABLE IF NOT EXISTS songs (
	id             INTEGER PRIMARY KEY,
	library_id     INTEGER NOT NULL REFERENCES libraries(id),
	title          TEXT NOT NULL,
	artist         TEXT NOT NULL DEFAULT '',
	album          TEXT NOT NULL DEFAULT '',
	length_seconds INTEGER NOT NULL DEFAULT 0,
	size           INTEGER NOT NULL DEFAULT 0,
	path           TEXT NOT NULL UNIQUE,
	file_name      TEXT NOT NULL,
	codec          TEXT NOT NULL DEFAULT '',
	format         TEXT NOT NULL DEFAULT '',
	mime           TEXT,
	mtime_utc      TEXT,
	sha256         TEXT
);
CREATE INDEX IF NOT EXISTS idx_songs_artist ON songs(artist);
CREATE INDEX IF NOT EXISTS idx_songs_size ON songs(size);
CREATE INDEX IF NOT EXISTS idx_songs_library ON songs(library_id);
`
	_, err := db.ExecContext(ctx, ddl)
	return err
}

const songColumns = `s.id, s.title, s.artist, s.album, s.length_seconds, s.size, s.path, s.codec, s.format, l.path, COALESCE(s.sha256, '')`

// List returns the songs in [Offset, Offset+Limit) under the given order and
// filters, and the total number of matching songs. Rows with equal sort keys
// are ordered by id so that consecutive windows never overlap.
func (s *Store) List(ctx context.Context, q ListQuery) (ListResult, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	where, args, err := buildWhere(q.Filters)
	if err != nil {
		return ListResult{}, err
	}
	orderBy, err := buildOrderBy(q.Order)
	if err != nil {
		return ListResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ListResult{}, err
	}
	defer tx.Rollback()

	var res ListResult
	countSQL := `SELECT COUNT(*) FROM songs s JOIN libraries l ON l.id = s.library_id` + where
	if err := tx.QueryRowContext(ctx, countSQL, args...).Scan(&res.Count); err != nil {
		return ListResult{}, fmt.Errorf("count songs: %w", err)
	}

	listSQL := `SELECT ` + songColumns + ` FROM songs s JOIN libraries l ON l.id = s.library_id` + where + orderBy + ` LIMIT ? OFFSET ?`
	rows, err := tx.QueryContext(ctx, listSQL, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return ListResult{}, fmt.Errorf("list songs: %w", err)
	}
	defer rows.Close()
	res.Songs = make([]Song, 0, q.Limit)
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return ListResult{}, err
		}
		res.Songs = append(res.Songs, song)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, err
	}
	return res, nil
}

// Get returns one song by id.
func (s *Store) Get(ctx context.Context, id int64) (Song, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+songColumns+` FROM songs s JOIN libraries l ON l.id = s.library_id WHERE s.id = ?`, id)
	song, err := scanSong(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Song{}, fmt.Errorf("song %d: %w", id, ErrNotFound)
	}
	return song, err
}

// Count is the number of songs in the catalog.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM songs`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSong(r rowScanner) (Song, error) {
	var s Song
	err := r.Scan(&s.ID, &s.Title, &s.Artist, &s.Album, &s.LengthSeconds, &s.Size, &s.Path, &s.Codec, &s.Format, &s.Library, &s.SHA256)
	return s, err
}

func buildWhere(filters map[string]string) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses []string
	var args []any
	for _, k := range keys {
		col, ok := filterColumns[k]
		if !ok {
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownFilter, k)
		}
		v := strings.TrimSpace(filters[k])
		if v == "" {
			continue
		}
		clauses = append(clauses, col+` LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(v)+"%")
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func buildOrderBy(order []Order) (string, error) {
	parts := make([]string, 0, len(order)+1)
	for _, o := range order {
		expr, ok := sortColumns[o.Column]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownSortColumn, o.Column)
		}
		if o.Desc {
			expr += " DESC"
		} else {
			expr += " ASC"
		}
		parts = append(parts, expr)
	}
	parts = append(parts, "s.id ASC")
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
