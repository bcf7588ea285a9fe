// Package entity provides catalog containers (album, artist, playlist) resolved into tracks.
package entity

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/saavnbox/internal/domain/track"
)

// ErrUnknownKind is returned when an entity kind cannot be parsed.
var ErrUnknownKind = errors.New("unknown entity kind")

// Kind is the type of a catalog container.
type Kind string

const (
	KindAlbum    Kind = "album"
	KindArtist   Kind = "artist"
	KindPlaylist Kind = "playlist"
)

// ParseKind parses a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindAlbum:
		return KindAlbum, nil
	case KindArtist:
		return KindArtist, nil
	case KindPlaylist:
		return KindPlaylist, nil
	default:
		return "", errors.Wrapf(ErrUnknownKind, "%q", s)
	}
}

// Entity is a browsed container with its own resolved track list.
// It is distinct from the playback queue until applied to it.
type Entity struct {
	ID         string        `json:"id"`
	Kind       Kind          `json:"kind"`
	Title      string        `json:"title"`
	Subtitle   string        `json:"subtitle,omitempty"` // Primary artist, label, or kind fallback
	ArtworkURI string        `json:"artworkUri,omitempty"`
	Tracks     []track.Track `json:"tracks"`
}

// TrackIDs returns all track IDs in the entity.
func (e *Entity) TrackIDs() []string {
	return track.IDs(e.Tracks)
}

// TotalDuration returns the total duration of all tracks in seconds.
func (e *Entity) TotalDuration() int64 {
	var total int64
	for _, t := range e.Tracks {
		total += t.DurationSeconds()
	}
	return total
}

// PlayableCount returns the number of tracks that carry a playback URI.
func (e *Entity) PlayableCount() int {
	n := 0
	for i := range e.Tracks {
		if e.Tracks[i].Playable() {
			n++
		}
	}
	return n
}
