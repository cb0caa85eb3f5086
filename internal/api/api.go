// Package api is the song catalog API carried over the bridge: the host
// handlers backed by a library store, and the client-side page source and
// logger the browser uses.
package api

import (
	"context"
	"fmt"

	"pkt.systems/pslog"

	"songgrid/internal/bridge"
	"songgrid/internal/grid"
	"songgrid/internal/library"
)

// Method names.
const (
	MethodSongsList   = "songs.list"
	MethodSongsGet    = "songs.get"
	MethodLoggerInfo  = "logger.info"
	MethodLoggerDebug = "logger.debug"
	MethodLoggerError = "logger.error"
)

// MaxLimit caps the page size a caller may ask for.
const MaxLimit = 1000

// SongPage is the songs.list result.
type SongPage struct {
	Data   []library.Song `cbor:"data" json:"data"`
	Count  int            `cbor:"count" json:"count"`
	Offset int            `cbor:"offset" json:"offset"`
	Limit  int            `cbor:"limit" json:"limit"`
	Page   int            `cbor:"page" json:"page"`
}

// SongStore is what the host handlers need from the catalog.
type SongStore interface {
	List(ctx context.Context, q library.ListQuery) (library.ListResult, error)
	Get(ctx context.Context, id int64) (library.Song, error)
}

// Register installs the songs.* and logger.* handlers on h. Messages sent to
// logger.* are written to log.
func Register(h *bridge.Host, store SongStore, log pslog.Logger) {
	h.Register(MethodSongsList, func(ctx context.Context, args bridge.Args) (any, error) {
		var (
			page, limit int
			filters     map[string]string
			sort        grid.SortSpec
		)
		if err := args.Decode(0, &page); err != nil {
			return nil, err
		}
		if err := args.Optional(1, &limit); err != nil {
			return nil, err
		}
		if err := args.Optional(2, &filters); err != nil {
			return nil, err
		}
		if err := args.Optional(3, &sort); err != nil {
			return nil, err
		}
		return listSongs(ctx, store, page, limit, filters, sort)
	})

	h.Register(MethodSongsGet, func(ctx context.Context, args bridge.Args) (any, error) {
		var id int64
		if err := args.Decode(0, &id); err != nil {
			return nil, err
		}
		return store.Get(ctx, id)
	})

	remote := log.With("origin", "remote")
	logHandler := func(emit func(string, ...any)) bridge.Handler {
		return func(_ context.Context, args bridge.Args) (any, error) {
			var msg string
			if err := args.Decode(0, &msg); err != nil {
				return nil, err
			}
			emit(msg)
			return nil, nil
		}
	}
	h.Register(MethodLoggerInfo, logHandler(remote.Info))
	h.Register(MethodLoggerDebug, logHandler(remote.Debug))
	h.Register(MethodLoggerError, logHandler(remote.Error))
}

func listSongs(ctx context.Context, store SongStore, page, limit int, filters map[string]string, sort grid.SortSpec) (SongPage, error) {
	if page < 0 {
		return SongPage{}, fmt.Errorf("page %d is negative", page)
	}
	if limit <= 0 {
		limit = grid.DefaultPageSize
	}
	limit = min(limit, MaxLimit)

	order := make([]library.Order, 0, len(sort))
	for _, k := range sort {
		order = append(order, library.Order{Column: k.ColumnID, Desc: k.Direction == grid.Desc})
	}
	offset := page * limit
	res, err := store.List(ctx, library.ListQuery{Offset: offset, Limit: limit, Order: order, Filters: filters})
	if err != nil {
		return SongPage{}, err
	}
	return SongPage{Data: res.Songs, Count: res.Count, Offset: offset, Limit: limit, Page: page}, nil
}
