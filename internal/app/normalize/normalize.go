// Package normalize converts raw catalog records into tracks and entities.
package normalize

import (
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/saavnbox/internal/domain/catalog"
	"github.com/osa030/saavnbox/internal/domain/entity"
	"github.com/osa030/saavnbox/internal/domain/track"
)

var (
	ErrMissingID    = errors.New("record has no id")
	ErrMissingTitle = errors.New("record has no title")
)

// Ranks in the provider's ranked lists.
const (
	artworkRank  = 2 // 500x500
	playbackRank = 4 // 320kbps
)

// Song normalizes a raw song record into a track.
// Records without an id or a title are invalid.
func Song(raw catalog.Song) (track.Track, error) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return track.Track{}, ErrMissingID
	}
	title := firstNonEmpty(raw.Title, raw.Name)
	if title == "" {
		return track.Track{}, errors.Wrapf(ErrMissingTitle, "song %s", id)
	}

	return track.Track{
		ID:          id,
		Title:       title,
		Subtitle:    firstNonEmpty(first(raw.PrimaryArtists), raw.Label), // Empty when unknown; clients pick the placeholder
		ArtworkURI:  pick(raw.Images, artworkRank),
		PlaybackURI: pick(raw.Downloads, playbackRank),
		Album:       strings.TrimSpace(raw.Album),
		Duration:    Duration(raw.Duration, raw.Unit),
		Explicit:    raw.Explicit,
		Kind:        track.KindSong,
	}, nil
}

// Songs normalizes a list of raw songs, dropping invalid records.
func Songs(raws []catalog.Song) []track.Track {
	tracks := make([]track.Track, 0, len(raws))
	for _, raw := range raws {
		t, err := Song(raw)
		if err != nil {
			zlog.Debug().Msgf("normalize: dropping song record: id=%s err=%v", raw.ID, err)
			continue
		}
		tracks = append(tracks, t)
	}
	return tracks
}

// Album normalizes a raw album and its song list.
func Album(raw catalog.Album) entity.Entity {
	return entity.Entity{
		ID:         raw.ID,
		Kind:       entity.KindAlbum,
		Title:      firstNonEmpty(raw.Name, raw.Title),
		Subtitle:   firstNonEmpty(first(raw.PrimaryArtists), raw.Label, "Album"),
		ArtworkURI: pick(raw.Images, artworkRank),
		Tracks:     Songs(raw.Songs),
	}
}

// Artist normalizes a raw artist. The artist's own song list is used when
// present, otherwise its top songs.
func Artist(raw catalog.Artist) entity.Entity {
	songs := raw.Songs
	if len(songs) == 0 {
		songs = raw.TopSongs
	}
	return entity.Entity{
		ID:         raw.ID,
		Kind:       entity.KindArtist,
		Title:      firstNonEmpty(raw.Name, raw.Title),
		Subtitle:   "Artist",
		ArtworkURI: pick(raw.Images, artworkRank),
		Tracks:     Songs(songs),
	}
}

// Playlist normalizes a raw playlist and its song list.
func Playlist(raw catalog.Playlist) entity.Entity {
	return entity.Entity{
		ID:         raw.ID,
		Kind:       entity.KindPlaylist,
		Title:      firstNonEmpty(raw.Name, raw.Title),
		Subtitle:   firstNonEmpty(raw.Owner, raw.Description, "Playlist"),
		ArtworkURI: pick(raw.Images, artworkRank),
		Tracks:     Songs(raw.Songs),
	}
}

// Duration converts a provider duration into whole seconds.
// Negative and non-finite values become zero.
func Duration(value float64, unit catalog.DurationUnit) time.Duration {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return 0
	}
	var seconds float64
	switch unit {
	case catalog.Milliseconds:
		seconds = value / 1000
	case catalog.Minutes:
		seconds = value * 60
	default:
		seconds = value
	}
	return time.Duration(math.Round(seconds)) * time.Second
}

// pick returns the entry at rank when present, otherwise the last usable entry.
func pick(links []catalog.Link, rank int) string {
	if rank < len(links) {
		if href := strings.TrimSpace(links[rank].Href()); href != "" {
			return href
		}
	}
	for i := len(links) - 1; i >= 0; i-- {
		if href := strings.TrimSpace(links[i].Href()); href != "" {
			return href
		}
	}
	return ""
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
