package playback

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/saavnbox/internal/domain/entity"
	"github.com/osa030/saavnbox/internal/domain/track"
)

// Errors
var (
	ErrUnplayable       = errors.New("track is not playable")
	ErrPlaybackRejected = errors.New("playback rejected by output")
	ErrEmptyQueue       = errors.New("queue is empty")
	ErrNoTrack          = errors.New("no current track")
	ErrIndexOutOfRange  = errors.New("queue index out of range")
	ErrClosed           = errors.New("controller is closed")
)

// Config holds controller configuration.
type Config struct {
	Mode        Mode            // Initial play mode
	EventBuffer int             // Size of the event channel buffer
	Intn        func(n int) int // Random source for shuffle, rand.Intn when nil
}

// Controller owns the queue, the transport state and the single Output.
// Every operation updates the queue and index before it talks to the
// output, so the last issued command always wins.
type Controller struct {
	mu sync.RWMutex

	out Output

	// Queue management
	queue []track.Track
	index int // -1 when there is no current track

	// Transport state
	mode     Mode
	playing  bool
	position time.Duration
	duration time.Duration
	active   *entity.Entity

	// Output bookkeeping
	sourceID uint64 // ID of the last source handed to the output
	loaded   bool   // The output holds the source of queue[index]
	failures int    // Consecutive asynchronous output failures

	intn func(n int) int

	// Events
	eventCh chan Event
	closed  bool

	// Context
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewController creates a controller bound to out and starts consuming its events.
func NewController(out Output, config Config) *Controller {
	ctx, cancel := context.WithCancel(context.Background())

	buffer := config.EventBuffer
	if buffer <= 0 {
		buffer = 64
	}
	intn := config.Intn
	if intn == nil {
		intn = rand.Intn
	}

	c := &Controller{
		out:     out,
		queue:   make([]track.Track, 0),
		index:   -1,
		mode:    config.Mode,
		intn:    intn,
		eventCh: make(chan Event, buffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.watchOutput()
	return c
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// PlaySingle replaces the queue with t and plays it.
// An unplayable track is reported with ErrUnplayable and playback stops.
func (c *Controller) PlaySingle(ctx context.Context, t track.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.replaceQueueLocked([]track.Track{t})
	return c.startLocked(ctx, 0)
}

// PlayQueue replaces the queue with tracks and plays the track at start,
// clamped into range. An empty list leaves everything unchanged.
// The returned error describes a failure of the requested track; the
// controller has already skipped ahead when it is ErrUnplayable or
// ErrPlaybackRejected.
func (c *Controller) PlayQueue(ctx context.Context, tracks []track.Track, start int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if len(tracks) == 0 {
		return ErrEmptyQueue
	}

	start = clamp(start, 0, len(tracks)-1)
	c.replaceQueueLocked(tracks)
	return c.startLocked(ctx, start)
}

// AddToQueue appends t without touching the current index or playback.
func (c *Controller) AddToQueue(t track.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.queue = append(c.queue, t)
	c.sendEventLocked(c.eventLocked(EventQueueChanged, nil))
}

// PlayNext advances according to the play mode.
// The output's end-of-track notification takes the same path.
func (c *Controller) PlayNext(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.failures = 0
	return c.playNextLocked(ctx)
}

// PlayPrev moves to the previous track, clamping at the start of the queue.
// At the first track it restarts that track.
func (c *Controller) PlayPrev(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if len(c.queue) == 0 {
		return nil
	}

	c.failures = 0
	prev := max(0, c.index-1)
	if prev == c.index {
		return c.restartLocked(ctx)
	}
	return c.startLocked(ctx, prev)
}

// TogglePlay flips between playing and paused. Without a current track it does nothing.
func (c *Controller) TogglePlay(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.index < 0 {
		return nil
	}
	if c.playing {
		c.pauseLocked()
		return nil
	}

	current := c.queue[c.index]
	if !c.loaded || !current.Playable() {
		return c.startLocked(ctx, c.index)
	}
	if c.duration > 0 && c.position >= c.duration {
		return c.restartLocked(ctx)
	}

	if err := c.out.Play(ctx); err != nil {
		return c.skipFromLocked(ctx, c.index, c.rejectLocked(current, c.index, err))
	}
	c.playing = true
	c.sendEventLocked(c.eventLocked(EventStateChanged, nil))
	return nil
}

// Pause pauses playback. Pausing while not playing is a no-op.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.pauseLocked()
	return nil
}

// ToggleMode cycles the play mode and returns the new mode.
// It only affects the next advancement.
func (c *Controller) ToggleMode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mode = c.mode.Next()
	zlog.Info().Msgf("playback: mode changed: mode=%s", c.mode)
	c.sendEventLocked(c.eventLocked(EventModeChanged, nil))
	return c.mode
}

// SetMode sets the play mode directly.
func (c *Controller) SetMode(mode Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == mode {
		return
	}
	c.mode = mode
	c.sendEventLocked(c.eventLocked(EventModeChanged, nil))
}

// Seek moves the output to pos, clamped into [0, duration].
func (c *Controller) Seek(pos time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.index < 0 {
		return ErrNoTrack
	}

	if pos < 0 {
		pos = 0
	}
	if c.duration > 0 && pos > c.duration {
		pos = c.duration
	}

	if c.loaded {
		if err := c.out.Seek(pos); err != nil {
			return errors.Wrap(err, "failed to seek")
		}
	}
	c.position = pos
	c.sendEventLocked(c.eventLocked(EventPositionChanged, nil))
	return nil
}

// ApplyEntity replaces the queue with the entity's tracks without starting
// playback and publishes the entity as active. The output is stopped so the
// previous track cannot keep playing without being current.
func (c *Controller) ApplyEntity(e entity.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.releaseLocked()
	c.queue = append(make([]track.Track, 0, len(e.Tracks)), e.Tracks...)
	c.index = -1
	c.position = 0
	c.duration = 0
	c.failures = 0

	e.Tracks = append([]track.Track(nil), e.Tracks...)
	c.active = &e

	zlog.Info().Msgf("playback: entity applied: kind=%s id=%s tracks=%d", e.Kind, e.ID, len(e.Tracks))
	c.sendEventLocked(c.eventLocked(EventEntityLoaded, nil))
	c.sendEventLocked(c.eventLocked(EventQueueChanged, nil))
}

// RemoveAt removes the track at index. Removing the current track stops playback.
func (c *Controller) RemoveAt(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if index < 0 || index >= len(c.queue) {
		return errors.Wrapf(ErrIndexOutOfRange, "index %d, queue length %d", index, len(c.queue))
	}

	switch {
	case index == c.index:
		c.releaseLocked()
		c.index = -1
		c.position = 0
		c.duration = 0
	case index < c.index:
		c.index--
	}
	c.queue = append(c.queue[:index:index], c.queue[index+1:]...)

	c.sendEventLocked(c.eventLocked(EventQueueChanged, nil))
	return nil
}

// ClearQueue stops playback and empties the queue.
func (c *Controller) ClearQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.releaseLocked()
	c.queue = make([]track.Track, 0)
	c.index = -1
	c.position = 0
	c.duration = 0
	c.sendEventLocked(c.eventLocked(EventQueueChanged, nil))
}

// State returns a snapshot of the playback state.
func (c *Controller) State() PlaybackState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := PlaybackState{
		CurrentIndex: c.index,
		QueueLength:  len(c.queue),
		IsPlaying:    c.playing,
		Position:     c.position,
		Duration:     c.duration,
		Mode:         c.mode,
	}
	if c.index >= 0 {
		t := c.queue[c.index]
		s.CurrentTrack = &t
	}
	if c.active != nil {
		e := *c.active
		e.Tracks = append([]track.Track(nil), c.active.Tracks...)
		s.ActiveEntity = &e
	}
	return s
}

// Queue returns a copy of the queued tracks.
func (c *Controller) Queue() []track.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]track.Track, len(c.queue))
	copy(result, c.queue)
	return result
}

// Close stops consuming output events and releases the output exactly once.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done

		c.mu.Lock()
		defer c.mu.Unlock()

		c.closed = true
		c.playing = false
		c.loaded = false
		err = c.out.Close()
		close(c.eventCh)
	})
	return err
}

// watchOutput routes output events into the state machine until Close.
func (c *Controller) watchOutput() {
	defer close(c.done)

	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("playback: output watcher panicked: %v", r)
		}
	}()

	events := c.out.Events()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleOutputEvent(ev)
		}
	}
}

// handleOutputEvent applies one output event. Events from a source that is
// no longer loaded are dropped.
func (c *Controller) handleOutputEvent(ev OutputEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.loaded || ev.SourceID != c.sourceID || c.index < 0 {
		zlog.Debug().Msgf("playback: dropping stale output event: type=%s source=%d current=%d",
			ev.Type, ev.SourceID, c.sourceID)
		return
	}

	switch ev.Type {
	case OutputPosition:
		if ev.Position > 0 {
			c.failures = 0
		}
		c.position = max(ev.Position, 0)
		if c.duration > 0 && c.position > c.duration {
			c.position = c.duration
		}
		c.sendEventLocked(c.eventLocked(EventPositionChanged, nil))

	case OutputEnded:
		c.failures = 0
		ended := c.queue[c.index]
		c.position = c.duration
		zlog.Debug().Msgf("playback: track ended: index=%d id=%s", c.index, ended.ID)
		c.sendEventLocked(c.eventLocked(EventTrackEnded, nil))
		if err := c.playNextLocked(c.ctx); err != nil {
			zlog.Warn().Msgf("playback: advance after end: %v", err)
		}

	case OutputError:
		cause := ev.Err
		if cause == nil {
			cause = errors.New("output error")
		}
		current := c.queue[c.index]
		err := c.rejectLocked(current, c.index, cause)
		c.failures++
		if c.failures >= len(c.queue) {
			zlog.Warn().Msgf("playback: giving up after %d consecutive output failures", c.failures)
			c.haltLocked(true)
			return
		}
		_ = c.skipFromLocked(c.ctx, c.index, err)
	}
}

// playNextLocked implements the advancement rule shared by PlayNext and the
// end-of-track event.
// Must be called with lock held.
func (c *Controller) playNextLocked(ctx context.Context) error {
	if c.mode == ModeRepeatOne {
		if c.index < 0 {
			return nil
		}
		return c.restartLocked(ctx)
	}
	if len(c.queue) == 0 {
		return nil
	}

	var next int
	switch c.mode {
	case ModeShuffle:
		next = c.intn(len(c.queue))
	default:
		next = c.index + 1
	}
	if next >= len(c.queue) {
		zlog.Info().Msg("playback: reached end of queue")
		c.haltLocked(false)
		return nil
	}
	return c.startLocked(ctx, next)
}

// restartLocked plays the current track again from the beginning.
// Must be called with lock held.
func (c *Controller) restartLocked(ctx context.Context) error {
	current := c.queue[c.index]
	if !c.loaded || !current.Playable() {
		return c.startLocked(ctx, c.index)
	}

	c.position = 0
	if err := c.out.Seek(0); err != nil {
		return c.skipFromLocked(ctx, c.index, c.rejectLocked(current, c.index, err))
	}
	if err := c.out.Play(ctx); err != nil {
		return c.skipFromLocked(ctx, c.index, c.rejectLocked(current, c.index, err))
	}
	c.playing = true
	c.sendEventLocked(c.eventLocked(EventTrackStarted, nil))
	return nil
}

// startLocked makes queue[index] current and plays it, skipping forward past
// tracks that cannot be played.
// Must be called with lock held.
func (c *Controller) startLocked(ctx context.Context, index int) error {
	return c.tryFromLocked(ctx, index, make(map[int]bool), nil)
}

// skipFromLocked advances past the failed track at index.
// Must be called with lock held.
func (c *Controller) skipFromLocked(ctx context.Context, failed int, cause error) error {
	tried := map[int]bool{failed: true}
	next, ok := c.failureNextLocked(failed, tried)
	if !ok {
		c.haltLocked(true)
		return cause
	}
	return c.tryFromLocked(ctx, next, tried, cause)
}

// tryFromLocked tries index and then the failure successors of it until a
// track plays or no candidate is left. Each index is tried at most once.
// Must be called with lock held.
func (c *Controller) tryFromLocked(ctx context.Context, index int, tried map[int]bool, firstErr error) error {
	for {
		tried[index] = true
		err := c.loadLocked(ctx, index)
		if err == nil {
			return firstErr
		}
		if firstErr == nil {
			firstErr = err
		}

		next, ok := c.failureNextLocked(index, tried)
		if !ok {
			c.haltLocked(true)
			return firstErr
		}
		index = next
	}
}

// failureNextLocked picks the track to try after a failure. Repeat-one falls
// back to the sequential rule so a broken track is not retried forever.
// Must be called with lock held.
func (c *Controller) failureNextLocked(index int, tried map[int]bool) (int, bool) {
	if c.mode == ModeShuffle {
		candidates := make([]int, 0, len(c.queue))
		for i := range c.queue {
			if !tried[i] {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) == 0 {
			return index, false
		}
		return candidates[c.intn(len(candidates))], true
	}

	next := index + 1
	if next >= len(c.queue) || tried[next] {
		return index, false
	}
	return next, true
}

// loadLocked makes queue[index] current, loads it into the output and plays it.
// Must be called with lock held.
func (c *Controller) loadLocked(ctx context.Context, index int) error {
	t := c.queue[index]
	c.index = index
	c.position = 0
	c.duration = t.Duration

	if !t.Playable() {
		err := errors.Wrapf(ErrUnplayable, "track %s (%s) has no playback uri", t.ID, t.Title)
		zlog.Warn().Msgf("playback: skipping unplayable track: index=%d id=%s title=%s", index, t.ID, t.Title)
		c.releaseLocked()
		c.sendEventLocked(Event{
			Type:    EventTrackSkipped,
			Track:   &t,
			Index:   index,
			Playing: c.playing,
			Mode:    c.mode,
			Err:     err,
		})
		return err
	}

	c.sourceID++
	src := Source{ID: c.sourceID, URI: t.PlaybackURI, Duration: t.Duration}
	if err := c.out.Load(src); err != nil {
		_ = c.out.Stop()
		c.loaded = false
		return c.rejectLocked(t, index, err)
	}
	c.loaded = true

	if err := c.out.Play(ctx); err != nil {
		return c.rejectLocked(t, index, err)
	}
	c.playing = true

	zlog.Info().Msgf("playback: track started: index=%d id=%s title=%s duration=%v",
		index, t.ID, t.Title, t.Duration)
	c.sendEventLocked(c.eventLocked(EventTrackStarted, nil))
	return nil
}

// rejectLocked records that the output refused t and returns the error to report.
// Must be called with lock held.
func (c *Controller) rejectLocked(t track.Track, index int, cause error) error {
	err := errors.Wrapf(errors.Mark(cause, ErrPlaybackRejected), "track %s (%s)", t.ID, t.Title)
	zlog.Warn().Msgf("playback: output rejected track: index=%d id=%s err=%v", index, t.ID, cause)
	c.playing = false
	c.sendEventLocked(Event{
		Type:    EventTrackSkipped,
		Track:   &t,
		Index:   index,
		Playing: c.playing,
		Mode:    c.mode,
		Err:     err,
	})
	return err
}

// haltLocked stops advancing. The current index is kept. With release the
// output drops its source, otherwise it is only paused.
// Must be called with lock held.
func (c *Controller) haltLocked(release bool) {
	c.playing = false
	if release {
		c.releaseLocked()
	} else if c.loaded {
		if err := c.out.Pause(); err != nil {
			zlog.Warn().Msgf("playback: failed to pause output: %v", err)
		}
	}
	c.sendEventLocked(c.eventLocked(EventQueueEnded, nil))
}

// pauseLocked pauses the output if playing.
// Must be called with lock held.
func (c *Controller) pauseLocked() {
	if !c.playing {
		return
	}
	if c.loaded {
		if err := c.out.Pause(); err != nil {
			zlog.Warn().Msgf("playback: failed to pause output: %v", err)
		}
	}
	c.playing = false
	c.sendEventLocked(c.eventLocked(EventStateChanged, nil))
}

// releaseLocked stops the output and forgets the loaded source.
// Must be called with lock held.
func (c *Controller) releaseLocked() {
	c.playing = false
	if !c.loaded {
		return
	}
	if err := c.out.Stop(); err != nil {
		zlog.Warn().Msgf("playback: failed to stop output: %v", err)
	}
	c.loaded = false
}

// replaceQueueLocked swaps in a copy of tracks and resets the index.
// Must be called with lock held.
func (c *Controller) replaceQueueLocked(tracks []track.Track) {
	c.queue = append(make([]track.Track, 0, len(tracks)), tracks...)
	c.index = -1
	c.failures = 0
	c.sendEventLocked(c.eventLocked(EventQueueChanged, nil))
}

// eventLocked builds an event describing the current track.
// Must be called with lock held.
func (c *Controller) eventLocked(typ EventType, err error) Event {
	e := Event{
		Type:     typ,
		Index:    c.index,
		Playing:  c.playing,
		Mode:     c.mode,
		Position: c.position,
		Err:      err,
	}
	if c.index >= 0 {
		t := c.queue[c.index]
		e.Track = &t
	}
	return e
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
		// Successfully sent
	case <-c.ctx.Done():
		// Context cancelled, don't send
	default:
		// Channel full, drop event
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
