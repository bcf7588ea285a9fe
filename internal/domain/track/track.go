// Package track provides the Track domain entity.
package track

import "time"

// Kind identifies what a catalog record resolves to.
// The queue and favorites only ever hold songs.
type Kind string

const (
	KindSong Kind = "song"
)

// Track is a normalized playable unit.
// It is immutable once constructed; callers copy it by value.
type Track struct {
	ID          string        `json:"id" validate:"required"`
	Title       string        `json:"title" validate:"required"`
	Subtitle    string        `json:"subtitle,omitempty"`    // Artist or label
	ArtworkURI  string        `json:"artworkUri,omitempty"`  // Cover image
	PlaybackURI string        `json:"playbackUri,omitempty"` // Audio resource, may be absent
	Album       string        `json:"album,omitempty"`
	Duration    time.Duration `json:"duration"` // Whole seconds
	Explicit    bool          `json:"explicit,omitempty"`
	Kind        Kind          `json:"kind"`
}

// Playable reports whether the track has an audio resource to load.
func (t *Track) Playable() bool {
	return t.PlaybackURI != ""
}

// DurationSeconds returns the duration as whole seconds.
func (t *Track) DurationSeconds() int64 {
	return int64(t.Duration / time.Second)
}

// IDs returns the IDs of the given tracks in order.
func IDs(tracks []Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}
