package playback

import (
	"time"

	"github.com/osa030/saavnbox/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted    EventType = iota // A track was loaded and started
	EventTrackEnded                       // The output reported the end of the current track
	EventTrackSkipped                     // A track was skipped because it could not be played
	EventStateChanged                     // Play/pause flipped
	EventQueueChanged                     // Queue contents or current index changed
	EventModeChanged                      // Play mode changed
	EventPositionChanged                  // Position moved (tick or seek)
	EventQueueEnded                       // Advancement stopped at the end of the queue
	EventEntityLoaded                     // An entity replaced the queue
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventTrackSkipped:
		return "track_skipped"
	case EventStateChanged:
		return "state_changed"
	case EventQueueChanged:
		return "queue_changed"
	case EventModeChanged:
		return "mode_changed"
	case EventPositionChanged:
		return "position_changed"
	case EventQueueEnded:
		return "queue_ended"
	case EventEntityLoaded:
		return "entity_loaded"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type     EventType
	Track    *track.Track  // Track the event refers to (nil for some events)
	Index    int           // Queue index of Track, -1 if none
	Playing  bool          // isPlaying after the event
	Mode     Mode          // Mode after the event
	Position time.Duration // Position after the event
	Err      error         // Reason for EventTrackSkipped
}
