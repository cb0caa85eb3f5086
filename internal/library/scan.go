package library

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"songgrid/internal/logx"
)

// DefaultExtensions are the audio formats a scan picks up when no filter is
// configured.
const DefaultExtensions = ".mp3,.flac,.ogg,.oga,.opus,.m4a,.aac,.wav,.wma,.aiff"

// ScanProgress is reported after every committed batch and once at the end.
type ScanProgress struct {
	Files     int64
	Folders   int64
	Last      string
	Estimated int64
}

// Percent is Files over Estimated, capped at 100. It is 0 when nothing was
// estimated.
func (p ScanProgress) Percent() float64 {
	if p.Estimated <= 0 {
		return 0
	}
	return min(float64(p.Files)/float64(p.Estimated)*100, 100)
}

// ScanOptions configures Scan.
type ScanOptions struct {
	// Extensions restricts the scan; empty means every file.
	Extensions map[string]struct{}
	Hash       bool
	// Estimated is the expected file count; see EstimateFileCount.
	Estimated int64
	Progress  func(ScanProgress)
}

// Scan walks root and upserts every matching file as a song of the library
// rooted there. Unreadable entries are skipped. Progress is reported after
// every committed batch.
func (s *Store) Scan(ctx context.Context, root string, opts ScanOptions) (ScanProgress, error) {
	root = filepath.Clean(root)
	log := logx.WithRoot(logx.Ctx(ctx), root)

	libID, err := s.ensureLibrary(ctx, root)
	if err != nil {
		return ScanProgress{}, err
	}
	w, err := s.newBatchWriter(ctx, libID)
	if err != nil {
		return ScanProgress{}, err
	}

	prog := ScanProgress{Estimated: opts.Estimated}
	report := func() {
		if opts.Progress != nil {
			opts.Progress(prog)
		}
	}
	w.onCommit = report

	errWalk := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			log.Debug("scan skip", "path", p, "err", walkErr)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			prog.Folders++
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if !matchExt(opts.Extensions, ext) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}

		rec := songRecord{
			Song:     songFromPath(root, p),
			FileName: filepath.Base(p),
			MIME:     detectMIME(ext),
			MTime:    info.ModTime(),
		}
		rec.Size = info.Size()
		if opts.Hash {
			rec.SHA256 = hashFile(p)
		}
		prog.Files++
		prog.Last = p
		return w.add(ctx, rec)
	})
	if errWalk != nil {
		w.abort()
		return prog, fmt.Errorf("scan %s: %w", root, errWalk)
	}
	w.onCommit = nil
	if err := w.close(); err != nil {
		return prog, err
	}

	prog.Last = ""
	report()
	log.Info("scan finished", "files", prog.Files, "folders", prog.Folders)
	return prog, nil
}

// EstimateFileCount counts the files Scan would visit.
func EstimateFileCount(root string, exts map[string]struct{}) int64 {
	var count int64
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && matchExt(exts, strings.ToLower(filepath.Ext(p))) {
			count++
		}
		return nil
	})
	return count
}

func matchExt(exts map[string]struct{}, ext string) bool {
	if len(exts) == 0 {
		return true
	}
	_, ok := exts[ext]
	return ok
}

// ParseExtSet parses ".mp3,flac, .OGG" into a lower-cased set of dotted
// extensions.
func ParseExtSet(s string) map[string]struct{} {
	m := map[string]struct{}{}
	if s == "" {
		return m
	}
	for _, e := range strings.Split(s, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		m[e] = struct{}{}
	}
	return m
}

var audioMIME = map[string]string{
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".opus": "audio/opus",
	".oga":  "audio/ogg",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wav":  "audio/wav",
	".wma":  "audio/x-ms-wma",
	".aiff": "audio/aiff",
}

func detectMIME(ext string) string {
	if mt, ok := audioMIME[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

var codecs = map[string]string{
	".mp3":  "mp3",
	".flac": "flac",
	".ogg":  "vorbis",
	".oga":  "vorbis",
	".opus": "opus",
	".m4a":  "aac",
	".aac":  "aac",
	".wav":  "pcm",
	".aiff": "pcm",
	".wma":  "wmav2",
}

func hashFile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// songFromPath derives tags from the layout root/Artist/Album/NN - Title.ext.
// A file name of the form "Artist - Title" wins over the directory artist.
func songFromPath(root, p string) Song {
	ext := strings.ToLower(filepath.Ext(p))
	song := Song{
		Path:   p,
		Codec:  codecs[ext],
		Format: strings.TrimPrefix(ext, "."),
	}

	rel, err := filepath.Rel(root, p)
	if err != nil {
		rel = filepath.Base(p)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	dirs := parts[:len(parts)-1]
	switch len(dirs) {
	case 0:
	case 1:
		song.Artist = dirs[0]
	default:
		song.Artist = dirs[len(dirs)-2]
		song.Album = dirs[len(dirs)-1]
	}

	title := strings.TrimSuffix(parts[len(parts)-1], filepath.Ext(p))
	title = stripTrackNumber(title)
	if artist, rest, ok := strings.Cut(title, " - "); ok && strings.TrimSpace(rest) != "" {
		song.Artist = strings.TrimSpace(artist)
		title = stripTrackNumber(rest)
	}
	song.Title = strings.TrimSpace(title)
	if song.Title == "" {
		song.Title = filepath.Base(p)
	}
	return song
}

// stripTrackNumber removes a leading "01 ", "01. " or "01 - ".
func stripTrackNumber(s string) string {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if i <= 0 || i > 3 {
		return s
	}
	if _, err := strconv.Atoi(s[:i]); err != nil {
		return s
	}
	rest := strings.TrimLeft(s[i:], " .-_")
	if rest == "" || rest == s[i:] {
		return s
	}
	return rest
}
