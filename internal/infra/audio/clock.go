// Package audio provides playback.Output implementations.
package audio

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/saavnbox/internal/app/playback"
)

// ErrNoSource is returned when Play is called before Load.
var ErrNoSource = errors.New("no source loaded")

// ErrClosed is returned by every call after Close.
var ErrClosed = errors.New("output is closed")

// ErrUnknownDuration is returned by Clock.Play for a source without a
// duration, which the clock could never end.
var ErrUnknownDuration = errors.New("source has no duration")

// ClockConfig holds configuration for the wall-clock output.
type ClockConfig struct {
	TickInterval time.Duration // Position report interval
	EventBuffer  int           // Size of the event channel buffer
}

// Clock is an output that produces no sound. Position advances with the wall
// clock and the source ends after its catalog duration, which lets a headless
// daemon drive the queue while clients stream the URI themselves.
type Clock struct {
	mu sync.Mutex

	src       *playback.Source
	playing   bool
	base      time.Duration // Position at startedAt
	startedAt time.Time
	endedSent bool

	tick   time.Duration
	now    func() time.Time
	events chan playback.OutputEvent

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
	closeOnce sync.Once
}

// NewClock creates a wall-clock output and starts its ticker.
func NewClock(cfg ClockConfig) *Clock {
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = 500 * time.Millisecond
	}
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 16
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Clock{
		tick:   tick,
		now:    func() time.Time { return toWallTime(time.Now()) },
		events: make(chan playback.OutputEvent, buffer),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

// Load replaces the current source. The new source starts paused at zero.
func (c *Clock) Load(src playback.Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	s := src
	c.src = &s
	c.playing = false
	c.base = 0
	c.endedSent = false
	return nil
}

// Play starts or resumes the loaded source.
func (c *Clock) Play(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.src == nil {
		return ErrNoSource
	}
	if c.src.Duration <= 0 {
		return errors.Wrapf(ErrUnknownDuration, "source=%d uri=%s", c.src.ID, c.src.URI)
	}
	if c.playing {
		return nil
	}

	c.playing = true
	c.startedAt = c.now()
	return nil
}

// Pause freezes the position.
func (c *Clock) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if !c.playing {
		return nil
	}

	c.base = c.positionLocked()
	c.playing = false
	return nil
}

// Seek moves the position. Seeking back before the end re-arms the ended event.
func (c *Clock) Seek(pos time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.src == nil {
		return ErrNoSource
	}

	c.base = max(pos, 0)
	c.startedAt = c.now()
	if c.src.Duration <= 0 || c.base < c.src.Duration {
		c.endedSent = false
	}
	return nil
}

// Stop drops the loaded source.
func (c *Clock) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.src = nil
	c.playing = false
	c.base = 0
	return nil
}

// Position returns the position of the loaded source.
func (c *Clock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

// Events returns the output event channel.
func (c *Clock) Events() <-chan playback.OutputEvent {
	return c.events
}

// Close stops the ticker. It is safe to call more than once.
func (c *Clock) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done

		c.mu.Lock()
		c.closed = true
		c.src = nil
		c.playing = false
		c.mu.Unlock()

		close(c.events)
		zlog.Debug().Msg("audio: clock output closed")
	})
	return nil
}

func (c *Clock) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.advance()
		}
	}
}

// advance reports the position of a playing source and ends it once its
// duration has elapsed. The ended event is sent outside the lock and is
// never dropped; Close waits for run before closing the channel.
func (c *Clock) advance() {
	c.mu.Lock()
	if c.src == nil || !c.playing {
		c.mu.Unlock()
		return
	}

	pos := c.positionLocked()
	id := c.src.ID
	if pos < c.src.Duration {
		c.sendLocked(playback.OutputEvent{Type: playback.OutputPosition, SourceID: id, Position: pos})
		c.mu.Unlock()
		return
	}

	end := c.src.Duration
	c.base = end
	c.playing = false
	if c.endedSent {
		c.mu.Unlock()
		return
	}
	c.endedSent = true
	c.sendLocked(playback.OutputEvent{Type: playback.OutputPosition, SourceID: id, Position: end})
	c.mu.Unlock()

	select {
	case c.events <- playback.OutputEvent{Type: playback.OutputEnded, SourceID: id, Position: end}:
	case <-c.ctx.Done():
	}
}

// Must be called with lock held.
func (c *Clock) positionLocked() time.Duration {
	if c.src == nil {
		return 0
	}
	pos := c.base
	if c.playing {
		pos += c.now().Sub(c.startedAt)
	}
	if c.src.Duration > 0 && pos > c.src.Duration {
		pos = c.src.Duration
	}
	return pos
}

// sendLocked sends a position event, dropping it when the channel is full.
// Must be called with lock held.
func (c *Clock) sendLocked(ev playback.OutputEvent) {
	select {
	case c.events <- ev:
	default:
		// Channel full, drop event
	}
}

// toWallTime returns the time with the monotonic clock reading stripped, so
// elapsed time follows the wall clock.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
