package library

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"pkt.systems/pslog"
)

// SeedLibrary is the library synthetic songs are filed under.
const SeedLibrary = "seed://"

var (
	seedArtists = []string{
		"Aphex Twin", "Boards of Canada", "Cocteau Twins", "Daft Punk", "Elliott Smith",
		"Fleetwood Mac", "Grimes", "Hiatus Kaiyote", "Iron & Wine", "Joy Division",
		"Khruangbin", "Low", "Massive Attack", "Nick Drake", "Portishead",
		"Radiohead", "Slowdive", "Talk Talk", "Underworld", "Yo La Tengo",
	}
	seedWords = []string{
		"Blue", "Static", "Northern", "Glass", "Summer", "Echo", "Velvet", "River",
		"Signal", "Hollow", "Neon", "Paper", "Silver", "Quiet", "Amber", "Distant",
		"Motion", "Garden", "Winter", "Light", "Orbit", "Harbor", "Fever", "Ghost",
	}
	seedFormats = []string{"mp3", "flac", "ogg", "m4a", "opus"}
)

// Seed inserts n synthetic songs. The same seed always produces the same
// catalog; songs already present are updated in place.
func (s *Store) Seed(ctx context.Context, n int, seed uint64) error {
	if n <= 0 {
		return nil
	}
	libID, err := s.ensureLibrary(ctx, SeedLibrary)
	if err != nil {
		return err
	}
	w, err := s.newBatchWriter(ctx, libID)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			w.abort()
			return err
		}
		artist := seedArtists[rng.IntN(len(seedArtists))]
		album := seedPhrase(rng, 2)
		title := seedPhrase(rng, 1+rng.IntN(3))
		format := seedFormats[rng.IntN(len(seedFormats))]
		path := fmt.Sprintf("%s%s/%s/%06d - %s.%s", SeedLibrary, artist, album, i, title, format)
		rec := songRecord{
			Song: Song{
				Title:         title,
				Artist:        artist,
				Album:         album,
				LengthSeconds: 90 + rng.IntN(420),
				Size:          int64(1<<20 + rng.IntN(60<<20)),
				Path:          path,
				Codec:         codecs["."+format],
				Format:        format,
			},
			FileName: path[strings.LastIndexByte(path, '/')+1:],
			MIME:     detectMIME("." + format),
		}
		if err := w.add(ctx, rec); err != nil {
			w.abort()
			return err
		}
	}
	if err := w.close(); err != nil {
		return err
	}
	pslog.Ctx(ctx).Info("seeded catalog", "songs", n, "seed", seed)
	return nil
}

func seedPhrase(rng *rand.Rand, words int) string {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = seedWords[rng.IntN(len(seedWords))]
	}
	return strings.Join(parts, " ")
}
