package api

import (
	"context"
	"fmt"

	"songgrid/internal/grid"
	"songgrid/internal/library"
)

// Caller is the client half of the bridge.
type Caller interface {
	Call(ctx context.Context, method string, out any, args ...any) error
	Notify(method string, args ...any) error
}

// SongSource pages the remote catalog for the grid.
type SongSource struct {
	c Caller
}

func NewSongSource(c Caller) *SongSource { return &SongSource{c: c} }

// FetchPage implements grid.PageSource.
func (s *SongSource) FetchPage(ctx context.Context, q grid.Query) (grid.Page[library.Song], error) {
	var resp SongPage
	if err := s.c.Call(ctx, MethodSongsList, &resp, q.PageIndex, q.PageSize, q.Filters, q.Sort); err != nil {
		return grid.Page[library.Song]{}, err
	}
	if resp.Page != q.PageIndex {
		return grid.Page[library.Song]{}, fmt.Errorf("%s answered page %d for page %d", MethodSongsList, resp.Page, q.PageIndex)
	}
	return grid.Page[library.Song]{Index: resp.Page, Items: resp.Data, TotalCount: resp.Count}, nil
}

// Get fetches one song.
func (s *SongSource) Get(ctx context.Context, id int64) (library.Song, error) {
	var song library.Song
	err := s.c.Call(ctx, MethodSongsGet, &song, id)
	return song, err
}

// RemoteLogger forwards messages to the host's logger. Sends are
// fire-and-forget; a failed send is dropped.
type RemoteLogger struct {
	c Caller
}

func NewRemoteLogger(c Caller) *RemoteLogger { return &RemoteLogger{c: c} }

func (l *RemoteLogger) Info(message string)  { l.send(MethodLoggerInfo, message) }
func (l *RemoteLogger) Debug(message string) { l.send(MethodLoggerDebug, message) }
func (l *RemoteLogger) Error(message string) { l.send(MethodLoggerError, message) }

// Infof formats like fmt.Sprintf.
func (l *RemoteLogger) Infof(format string, args ...any) {
	l.send(MethodLoggerInfo, fmt.Sprintf(format, args...))
}

func (l *RemoteLogger) send(method, message string) {
	if l == nil || l.c == nil {
		return
	}
	_ = l.c.Notify(method, message)
}
