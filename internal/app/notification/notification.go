package notification

import (
	"time"

	"github.com/osa030/saavnbox/internal/app/playback"
	"github.com/osa030/saavnbox/internal/domain/track"
)

// TypeInitialState is sent once to every new subscriber.
const TypeInitialState = "initial_state"

// Notification is a state change pushed to subscribers.
type Notification struct {
	SequenceNo uint64
	Type       string // playback event type or TypeInitialState
	Timestamp  time.Time
	State      playback.PlaybackState
	Track      *track.Track  // Track the event refers to
	Queue      []track.Track // Set for queue changes and the initial state
	Reason     string        // Why a track was skipped
}

// FromEvent builds a notification for a playback event. queue is attached
// only for events that change the queue.
func FromEvent(ev playback.Event, state playback.PlaybackState, queue []track.Track) *Notification {
	n := &Notification{
		Type:      ev.Type.String(),
		Timestamp: time.Now(),
		State:     state,
		Track:     ev.Track,
	}
	if ev.Err != nil {
		n.Reason = ev.Err.Error()
	}
	switch ev.Type {
	case playback.EventQueueChanged, playback.EventEntityLoaded:
		n.Queue = queue
	}
	return n
}

// Initial builds the notification sent on subscribe.
func Initial(state playback.PlaybackState, queue []track.Track) *Notification {
	return &Notification{
		Type:      TypeInitialState,
		Timestamp: time.Now(),
		State:     state,
		Track:     state.CurrentTrack,
		Queue:     queue,
	}
}
