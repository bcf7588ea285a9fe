// Package playback provides the queue and transport state machine that owns
// the single media output.
package playback

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/saavnbox/internal/domain/entity"
	"github.com/osa030/saavnbox/internal/domain/track"
)

// Status is the derived transport status.
type Status int

const (
	StatusIdle    Status = iota // No current track
	StatusPlaying               // Current track is playing
	StatusPaused                // Current track is loaded but not playing
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Mode governs how the next track is selected.
type Mode int

const (
	ModeSequential Mode = iota
	ModeShuffle
	ModeRepeatOne
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSequential:
		return "sequential"
	case ModeShuffle:
		return "shuffle"
	case ModeRepeatOne:
		return "repeat_one"
	default:
		return "unknown"
	}
}

// Next returns the mode that follows m in the toggle cycle.
func (m Mode) Next() Mode {
	switch m {
	case ModeSequential:
		return ModeShuffle
	case ModeShuffle:
		return ModeRepeatOne
	default:
		return ModeSequential
	}
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential", "normal", "":
		return ModeSequential, nil
	case "shuffle":
		return ModeShuffle, nil
	case "repeat_one", "repeatone", "repeat-one":
		return ModeRepeatOne, nil
	default:
		return ModeSequential, errors.Newf("unknown play mode: %q", s)
	}
}

// PlaybackState is a consistent snapshot of the controller.
type PlaybackState struct {
	CurrentTrack *track.Track
	CurrentIndex int // -1 when there is no current track
	QueueLength  int
	IsPlaying    bool
	Position     time.Duration
	Duration     time.Duration
	Mode         Mode
	ActiveEntity *entity.Entity
}

// Status derives the transport status from the snapshot.
func (s PlaybackState) Status() Status {
	switch {
	case s.CurrentTrack == nil:
		return StatusIdle
	case s.IsPlaying:
		return StatusPlaying
	default:
		return StatusPaused
	}
}
