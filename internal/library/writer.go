package library

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const batchSize = 1000

const upsertSong = `
INSERT INTO songs(library_id, title, artist, album, length_seconds, size, path, file_name, codec, format, mime, mtime_utc, sha256)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
  library_id=excluded.library_id, title=excluded.title, artist=excluded.artist, album=excluded.album,
  length_seconds=excluded.length_seconds, size=excluded.size, codec=excluded.codec, format=excluded.format,
  mime=excluded.mime, mtime_utc=excluded.mtime_utc, sha256=COALESCE(excluded.sha256, songs.sha256)
`

// songRecord is a row for the songs table plus the columns List never reads.
type songRecord struct {
	Song
	FileName string
	MIME     string
	MTime    time.Time
}

// batchWriter upserts songs in transactions of batchSize rows.
type batchWriter struct {
	db      *sql.DB
	library int64
	tx      *sql.Tx
	stmt    *sql.Stmt
	pending int
	// onCommit runs after every committed batch.
	onCommit func()
}

func (s *Store) newBatchWriter(ctx context.Context, library int64) (*batchWriter, error) {
	w := &batchWriter{db: s.db, library: library}
	if err := w.begin(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *batchWriter) begin(ctx context.Context) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, upsertSong)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	w.tx, w.stmt, w.pending = tx, stmt, 0
	return nil
}

func (w *batchWriter) add(ctx context.Context, r songRecord) error {
	var sum, mtime any
	if r.SHA256 != "" {
		sum = r.SHA256
	}
	if !r.MTime.IsZero() {
		mtime = r.MTime.UTC().Format(time.RFC3339)
	}
	if _, err := w.stmt.ExecContext(ctx, w.library, r.Title, r.Artist, r.Album, r.LengthSeconds, r.Size,
		r.Path, r.FileName, r.Codec, r.Format, r.MIME, mtime, sum); err != nil {
		return fmt.Errorf("upsert %s: %w", r.Path, err)
	}
	w.pending++
	if w.pending < batchSize {
		return nil
	}
	if err := w.commit(); err != nil {
		return err
	}
	return w.begin(ctx)
}

func (w *batchWriter) commit() error {
	w.stmt.Close()
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	w.tx, w.stmt = nil, nil
	if w.onCommit != nil {
		w.onCommit()
	}
	return nil
}

// close commits the open batch.
func (w *batchWriter) close() error {
	if w.tx == nil {
		return nil
	}
	return w.commit()
}

// abort rolls back the open batch.
func (w *batchWriter) abort() {
	if w.tx == nil {
		return
	}
	w.stmt.Close()
	_ = w.tx.Rollback()
	w.tx, w.stmt = nil, nil
}

// ensureLibrary registers root and returns its id.
func (s *Store) ensureLibrary(ctx context.Context, root string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO libraries(path, scanned_utc) VALUES(?, ?)
		ON CONFLICT(path) DO UPDATE SET scanned_utc=excluded.scanned_utc
	`, root, now); err != nil {
		return 0, fmt.Errorf("register library %s: %w", root, err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM libraries WHERE path = ?`, root).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup library %s: %w", root, err)
	}
	return id, nil
}
