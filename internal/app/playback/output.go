package playback

import (
	"context"
	"time"
)

// Source is what the controller hands to the output for one track.
// ID changes on every load so late events from a replaced source can be told apart.
type Source struct {
	ID       uint64
	URI      string
	Duration time.Duration // Catalog duration, used when the output cannot measure it
}

// OutputEventType is the kind of an asynchronous output notification.
type OutputEventType int

const (
	OutputPosition OutputEventType = iota // Periodic position report
	OutputEnded                           // Source finished, once per completion
	OutputError                           // Source failed after Play returned
)

// String returns the string representation of the output event type.
func (t OutputEventType) String() string {
	switch t {
	case OutputPosition:
		return "position"
	case OutputEnded:
		return "ended"
	case OutputError:
		return "error"
	default:
		return "unknown"
	}
}

// OutputEvent is emitted by an Output.
type OutputEvent struct {
	Type     OutputEventType
	SourceID uint64
	Position time.Duration
	Err      error
}

// Output is the single audio output handle owned by a Controller.
// Only the controller calls into it. Loading a source replaces whatever was
// loaded before, so at most one source is ever loaded.
// Implementations must not block on sending events.
type Output interface {
	Load(src Source) error
	Play(ctx context.Context) error
	Pause() error
	Seek(pos time.Duration) error
	Stop() error
	Events() <-chan OutputEvent
	Close() error
}
