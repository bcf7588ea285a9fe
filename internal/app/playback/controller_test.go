package playback

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/saavnbox/internal/domain/entity"
	"github.com/osa030/saavnbox/internal/domain/track"
)

// mockOutput records every call made by the controller.
type mockOutput struct {
	mu sync.Mutex

	loads    []Source
	plays    int
	pauses   int
	stops    int
	closes   int
	seeks    []time.Duration
	current  *Source
	reject   map[string]bool // URIs whose Play fails
	loadFail map[string]bool // URIs whose Load fails

	events chan OutputEvent
}

func newMockOutput() *mockOutput {
	return &mockOutput{
		reject:   make(map[string]bool),
		loadFail: make(map[string]bool),
		events:   make(chan OutputEvent),
	}
}

func (m *mockOutput) Load(src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadFail[src.URI] {
		return errors.New("load failed")
	}
	m.loads = append(m.loads, src)
	s := src
	m.current = &s
	return nil
}

func (m *mockOutput) Play(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return errors.New("nothing loaded")
	}
	if m.reject[m.current.URI] {
		return errors.New("autoplay blocked")
	}
	m.plays++
	return nil
}

func (m *mockOutput) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauses++
	return nil
}

func (m *mockOutput) Seek(pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeks = append(m.seeks, pos)
	return nil
}

func (m *mockOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.current = nil
	return nil
}

func (m *mockOutput) Events() <-chan OutputEvent {
	return m.events
}

func (m *mockOutput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *mockOutput) last() Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads[len(m.loads)-1]
}

func (m *mockOutput) loadedURIs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	uris := make([]string, len(m.loads))
	for i, s := range m.loads {
		uris[i] = s.URI
	}
	return uris
}

func song(id string) track.Track {
	return track.Track{
		ID:          id,
		Title:       "Song " + id,
		PlaybackURI: "https://cdn.example.com/" + id + "_320.mp4",
		Duration:    200 * time.Second,
		Kind:        track.KindSong,
	}
}

func broken(id string) track.Track {
	t := song(id)
	t.PlaybackURI = ""
	return t
}

func newTestController(t *testing.T, cfg Config) (*Controller, *mockOutput) {
	t.Helper()
	out := newMockOutput()
	c := NewController(out, cfg)
	t.Cleanup(func() { _ = c.Close() })
	return c, out
}

func ended(c *Controller, out *mockOutput) {
	c.handleOutputEvent(OutputEvent{Type: OutputEnded, SourceID: out.last().ID})
}

func currentID(c *Controller) string {
	s := c.State()
	if s.CurrentTrack == nil {
		return ""
	}
	return s.CurrentTrack.ID
}

func assertIndexInvariant(t *testing.T, c *Controller) {
	t.Helper()
	s := c.State()
	valid := s.CurrentIndex == -1 || (s.CurrentIndex >= 0 && s.CurrentIndex < s.QueueLength)
	assert.True(t, valid, "index %d out of range for queue of %d", s.CurrentIndex, s.QueueLength)
}

func TestController_InitialState(t *testing.T) {
	c, _ := newTestController(t, Config{})

	s := c.State()
	assert.Nil(t, s.CurrentTrack)
	assert.Equal(t, -1, s.CurrentIndex)
	assert.Equal(t, 0, s.QueueLength)
	assert.False(t, s.IsPlaying)
	assert.Equal(t, ModeSequential, s.Mode)
	assert.Equal(t, StatusIdle, s.Status())
}

func TestController_PlayQueue_RoundTrip(t *testing.T) {
	tracks := []track.Track{song("t1"), song("t2"), song("t3")}

	for i := range tracks {
		t.Run(fmt.Sprintf("index %d", i), func(t *testing.T) {
			c, out := newTestController(t, Config{})

			require.NoError(t, c.PlayQueue(context.Background(), tracks, i))

			s := c.State()
			require.NotNil(t, s.CurrentTrack)
			assert.Equal(t, tracks[i], *s.CurrentTrack)
			assert.Equal(t, i, s.CurrentIndex)
			assert.True(t, s.IsPlaying)
			assert.Equal(t, tracks[i].PlaybackURI, out.last().URI)
			assert.Equal(t, StatusPlaying, s.Status())
		})
	}
}

func TestController_PlayQueue_ClampsStartIndex(t *testing.T) {
	tests := []struct {
		name     string
		start    int
		expected string
	}{
		{name: "negative", start: -3, expected: "t1"},
		{name: "past end", start: 10, expected: "t3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestController(t, Config{})
			require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2"), song("t3")}, tt.start))
			assert.Equal(t, tt.expected, currentID(c))
		})
	}
}

func TestController_PlayQueue_EmptyLeavesStateUnchanged(t *testing.T) {
	c, out := newTestController(t, Config{})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2")}, 1))
	before := c.State()
	loads := len(out.loads)

	err := c.PlayQueue(context.Background(), nil, 0)
	assert.True(t, errors.Is(err, ErrEmptyQueue))
	assert.Equal(t, before, c.State())
	assert.Len(t, out.loads, loads)

	err = c.PlayQueue(context.Background(), []track.Track{}, 0)
	assert.True(t, errors.Is(err, ErrEmptyQueue))
	assert.Equal(t, before, c.State())
}

func TestController_PlaySingle(t *testing.T) {
	c, out := newTestController(t, Config{})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2")}, 0))

	require.NoError(t, c.PlaySingle(context.Background(), song("solo")))

	s := c.State()
	assert.Equal(t, 1, s.QueueLength)
	assert.Equal(t, 0, s.CurrentIndex)
	assert.Equal(t, "solo", s.CurrentTrack.ID)
	assert.True(t, s.IsPlaying)
	assert.Equal(t, song("solo").PlaybackURI, out.last().URI)
}

func TestController_PlaySingle_Unplayable(t *testing.T) {
	c, out := newTestController(t, Config{})
	require.NoError(t, c.PlaySingle(context.Background(), song("t1")))

	err := c.PlaySingle(context.Background(), broken("bad"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnplayable))

	s := c.State()
	assert.False(t, s.IsPlaying)
	assert.Equal(t, 0, s.CurrentIndex)
	assert.Equal(t, []string{song("t1").PlaybackURI}, out.loadedURIs())
	assert.Equal(t, 1, out.stops, "previous track must be released")
}

func TestController_AddToQueue(t *testing.T) {
	c, out := newTestController(t, Config{})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1")}, 0))

	c.AddToQueue(song("t2"))
	c.AddToQueue(broken("t3"))

	s := c.State()
	assert.Equal(t, 3, s.QueueLength)
	assert.Equal(t, 0, s.CurrentIndex)
	assert.True(t, s.IsPlaying)
	assert.Len(t, out.loads, 1)
	assert.Equal(t, []string{"t1", "t2", "t3"}, track.IDs(c.Queue()))
}

func TestController_AddToQueue_Empty(t *testing.T) {
	c, out := newTestController(t, Config{})

	c.AddToQueue(song("t1"))

	s := c.State()
	assert.Equal(t, -1, s.CurrentIndex)
	assert.False(t, s.IsPlaying)
	assert.Empty(t, out.loads)

	require.NoError(t, c.PlayNext(context.Background()))
	assert.Equal(t, "t1", currentID(c))
}

// Sequential queue advanced by the output three times.
func TestController_SequentialEndedEvents(t *testing.T) {
	c, out := newTestController(t, Config{})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2"), song("t3")}, 0))

	observed := []string{currentID(c)}
	for i := 0; i < 3; i++ {
		ended(c, out)
		observed = append(observed, currentID(c))
		assertIndexInvariant(t, c)
	}

	assert.Equal(t, []string{"t1", "t2", "t3", "t3"}, observed)
	s := c.State()
	assert.False(t, s.IsPlaying)
	assert.Equal(t, 2, s.CurrentIndex)
	assert.Equal(t, StatusPaused, s.Status())
}

// Repeat-one restarts the current track when it ends.
func TestController_RepeatOneEnded(t *testing.T) {
	c, out := newTestController(t, Config{Mode: ModeRepeatOne})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2"), song("t3")}, 1))
	source := out.last().ID

	c.handleOutputEvent(OutputEvent{Type: OutputPosition, SourceID: source, Position: 150 * time.Second})
	assert.Equal(t, 150*time.Second, c.State().Position)

	ended(c, out)

	s := c.State()
	assert.Equal(t, "t2", s.CurrentTrack.ID)
	assert.Equal(t, time.Duration(0), s.Position)
	assert.True(t, s.IsPlaying)
	assert.Len(t, out.loads, 1, "restart must not reload the source")
	assert.Equal(t, []time.Duration{0}, out.seeks)
	assert.Equal(t, 2, out.plays)
}

func TestController_RepeatOne_PlayNextRestarts(t *testing.T) {
	c, out := newTestController(t, Config{Mode: ModeRepeatOne})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2")}, 0))

	require.NoError(t, c.PlayNext(context.Background()))
	assert.Equal(t, "t1", currentID(c))
	assert.Equal(t, []time.Duration{0}, out.seeks)
}

// playPrev clamps to the first track.
func TestController_PlayPrevClamps(t *testing.T) {
	c, out := newTestController(t, Config{})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2")}, 1))

	require.NoError(t, c.PlayPrev(context.Background()))
	assert.Equal(t, "t1", currentID(c))

	require.NoError(t, c.PlayPrev(context.Background()))
	assert.Equal(t, "t1", currentID(c))
	assert.True(t, c.State().IsPlaying)
	assert.Equal(t, []time.Duration{0}, out.seeks, "second prev restarts t1")
}

func TestController_PlayPrev_EmptyQueue(t *testing.T) {
	c, out := newTestController(t, Config{})
	require.NoError(t, c.PlayPrev(context.Background()))
	assert.Equal(t, -1, c.State().CurrentIndex)
	assert.Empty(t, out.loads)
}

// An unplayable first entry is skipped in favor of the next valid track.
func TestController_SkipsUnplayable(t *testing.T) {
	c, out := newTestController(t, Config{})

	err := c.PlayQueue(context.Background(), []track.Track{broken("bad"), song("good")}, 0)
	assert.True(t, errors.Is(err, ErrUnplayable))

	s := c.State()
	assert.Equal(t, "good", s.CurrentTrack.ID)
	assert.Equal(t, 1, s.CurrentIndex)
	assert.True(t, s.IsPlaying)
	assert.Equal(t, []string{song("good").PlaybackURI}, out.loadedURIs())
}

func TestController_AllUnplayableStops(t *testing.T) {
	c, out := newTestController(t, Config{})

	err := c.PlayQueue(context.Background(), []track.Track{broken("a"), broken("b"), broken("c")}, 0)
	assert.True(t, errors.Is(err, ErrUnplayable))

	s := c.State()
	assert.False(t, s.IsPlaying)
	assert.Equal(t, 2, s.CurrentIndex)
	assert.Empty(t, out.loads)
	assertIndexInvariant(t, c)
}

func TestController_ShuffleSkipsUnplayableWithoutRepeats(t *testing.T) {
	c, _ := newTestController(t, Config{Mode: ModeShuffle, Intn: func(n int) int { return 0 }})

	err := c.PlayQueue(context.Background(), []track.Track{broken("a"), broken("b"), song("c")}, 0)
	assert.True(t, errors.Is(err, ErrUnplayable))
	assert.Equal(t, "c", currentID(c))
	assert.True(t, c.State().IsPlaying)
}

func TestController_PlaybackRejected(t *testing.T) {
	t.Run("skips to next track", func(t *testing.T) {
		c, out := newTestController(t, Config{})
		out.reject[song("t1").PlaybackURI] = true

		err := c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2")}, 0)
		assert.True(t, errors.Is(err, ErrPlaybackRejected))
		assert.Equal(t, "t2", currentID(c))
		assert.True(t, c.State().IsPlaying)
	})

	t.Run("only track stops quietly", func(t *testing.T) {
		c, out := newTestController(t, Config{})
		out.reject[song("t1").PlaybackURI] = true

		err := c.PlaySingle(context.Background(), song("t1"))
		assert.True(t, errors.Is(err, ErrPlaybackRejected))
		s := c.State()
		assert.False(t, s.IsPlaying)
		assert.Equal(t, 0, s.CurrentIndex)
	})

	t.Run("load failure", func(t *testing.T) {
		c, out := newTestController(t, Config{})
		out.loadFail[song("t1").PlaybackURI] = true

		err := c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2")}, 0)
		assert.True(t, errors.Is(err, ErrPlaybackRejected))
		assert.Equal(t, "t2", currentID(c))
	})
}

func TestController_OutputErrorAdvances(t *testing.T) {
	c, out := newTestController(t, Config{})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2"), song("t3")}, 0))

	c.handleOutputEvent(OutputEvent{Type: OutputError, SourceID: out.last().ID, Err: errors.New("network down")})

	assert.Equal(t, "t2", currentID(c))
	assert.True(t, c.State().IsPlaying)
}

func TestController_OutputErrorsAreBounded(t *testing.T) {
	c, out := newTestController(t, Config{Mode: ModeRepeatOne})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2")}, 0))

	c.handleOutputEvent(OutputEvent{Type: OutputError, SourceID: out.last().ID})
	assert.Equal(t, "t2", currentID(c), "repeat-one falls back to the next track on failure")

	c.handleOutputEvent(OutputEvent{Type: OutputError, SourceID: out.last().ID})
	s := c.State()
	assert.False(t, s.IsPlaying)
	assertIndexInvariant(t, c)
}

func TestController_StaleOutputEventsIgnored(t *testing.T) {
	c, out := newTestController(t, Config{})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2"), song("t3")}, 0))
	first := out.last().ID

	require.NoError(t, c.PlayNext(context.Background()))
	assert.Equal(t, "t2", currentID(c))

	c.handleOutputEvent(OutputEvent{Type: OutputEnded, SourceID: first})
	c.handleOutputEvent(OutputEvent{Type: OutputPosition, SourceID: first, Position: time.Minute})

	s := c.State()
	assert.Equal(t, "t2", s.CurrentTrack.ID)
	assert.Equal(t, time.Duration(0), s.Position)
}

func TestController_PlayNext(t *testing.T) {
	t.Run("empty queue is a no-op", func(t *testing.T) {
		c, out := newTestController(t, Config{})
		require.NoError(t, c.PlayNext(context.Background()))
		assert.Equal(t, -1, c.State().CurrentIndex)
		assert.Empty(t, out.loads)
	})

	t.Run("last index in sequential mode stops", func(t *testing.T) {
		c, out := newTestController(t, Config{})
		require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2")}, 1))

		require.NoError(t, c.PlayNext(context.Background()))

		s := c.State()
		assert.False(t, s.IsPlaying)
		assert.Equal(t, 1, s.CurrentIndex)
		assert.Equal(t, "t2", s.CurrentTrack.ID)
		assert.Equal(t, 1, out.pauses)
		assert.Len(t, out.loads, 1)
	})

	t.Run("shuffle picks from the random source", func(t *testing.T) {
		c, _ := newTestController(t, Config{Mode: ModeShuffle, Intn: func(n int) int { return n - 1 }})
		require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2"), song("t3")}, 0))

		require.NoError(t, c.PlayNext(context.Background()))
		assert.Equal(t, "t3", currentID(c))

		// Shuffle may land on the current track again.
		require.NoError(t, c.PlayNext(context.Background()))
		assert.Equal(t, "t3", currentID(c))
	})

	t.Run("unplayable next is skipped and previous released", func(t *testing.T) {
		c, out := newTestController(t, Config{})
		require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1"), broken("t2"), song("t3")}, 0))

		err := c.PlayNext(context.Background())
		assert.True(t, errors.Is(err, ErrUnplayable))
		assert.Equal(t, "t3", currentID(c))
		assert.Equal(t, 1, out.stops)
	})
}

func TestController_PauseIsIdempotent(t *testing.T) {
	c, out := newTestController(t, Config{})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1")}, 0))

	require.NoError(t, c.Pause())
	once := c.State()
	require.NoError(t, c.Pause())
	twice := c.State()

	assert.Equal(t, once, twice)
	assert.False(t, twice.IsPlaying)
	assert.Equal(t, 1, out.pauses)
}

func TestController_TogglePlay(t *testing.T) {
	t.Run("no current track", func(t *testing.T) {
		c, out := newTestController(t, Config{})
		c.AddToQueue(song("t1"))
		require.NoError(t, c.TogglePlay(context.Background()))
		assert.False(t, c.State().IsPlaying)
		assert.Empty(t, out.loads)
	})

	t.Run("flips play and pause", func(t *testing.T) {
		c, out := newTestController(t, Config{})
		require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1")}, 0))

		require.NoError(t, c.TogglePlay(context.Background()))
		assert.False(t, c.State().IsPlaying)
		require.NoError(t, c.TogglePlay(context.Background()))
		assert.True(t, c.State().IsPlaying)

		assert.Equal(t, 1, out.pauses)
		assert.Equal(t, 2, out.plays)
		assert.Len(t, out.loads, 1)
	})

	t.Run("restarts a finished track", func(t *testing.T) {
		c, out := newTestController(t, Config{})
		require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1")}, 0))
		ended(c, out)
		require.False(t, c.State().IsPlaying)

		require.NoError(t, c.TogglePlay(context.Background()))
		s := c.State()
		assert.True(t, s.IsPlaying)
		assert.Equal(t, time.Duration(0), s.Position)
	})
}

func TestController_ToggleMode(t *testing.T) {
	c, _ := newTestController(t, Config{})

	assert.Equal(t, ModeShuffle, c.ToggleMode())
	assert.Equal(t, ModeRepeatOne, c.ToggleMode())
	assert.Equal(t, ModeSequential, c.ToggleMode())
}

func TestController_ToggleModeKeepsCurrentTrack(t *testing.T) {
	c, out := newTestController(t, Config{})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2")}, 0))

	c.ToggleMode()
	c.ToggleMode()

	assert.Equal(t, "t1", currentID(c))
	assert.True(t, c.State().IsPlaying)
	assert.Len(t, out.loads, 1)
}

func TestController_Seek(t *testing.T) {
	c, out := newTestController(t, Config{})

	assert.True(t, errors.Is(c.Seek(time.Second), ErrNoTrack))

	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1")}, 0))

	tests := []struct {
		name     string
		pos      time.Duration
		expected time.Duration
	}{
		{name: "within range", pos: 42 * time.Second, expected: 42 * time.Second},
		{name: "past duration", pos: 10 * time.Minute, expected: 200 * time.Second},
		{name: "negative", pos: -time.Second, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, c.Seek(tt.pos))
			assert.Equal(t, tt.expected, c.State().Position)
			assert.Equal(t, tt.expected, out.seeks[len(out.seeks)-1])
		})
	}
}

func TestController_ApplyEntity(t *testing.T) {
	c, out := newTestController(t, Config{})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1")}, 0))

	e := entity.Entity{
		ID:     "album-1",
		Kind:   entity.KindAlbum,
		Title:  "Album",
		Tracks: []track.Track{song("a1"), song("a2")},
	}
	c.ApplyEntity(e)

	s := c.State()
	assert.Equal(t, -1, s.CurrentIndex)
	assert.Nil(t, s.CurrentTrack)
	assert.False(t, s.IsPlaying)
	assert.Equal(t, 2, s.QueueLength)
	require.NotNil(t, s.ActiveEntity)
	assert.Equal(t, "album-1", s.ActiveEntity.ID)
	assert.Equal(t, 1, out.stops)

	require.NoError(t, c.PlayNext(context.Background()))
	assert.Equal(t, "a1", currentID(c))
}

func TestController_RemoveAt(t *testing.T) {
	c, out := newTestController(t, Config{})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2"), song("t3")}, 1))

	require.NoError(t, c.RemoveAt(0))
	assert.Equal(t, 0, c.State().CurrentIndex)
	assert.Equal(t, "t2", currentID(c))

	require.NoError(t, c.RemoveAt(0))
	s := c.State()
	assert.Equal(t, -1, s.CurrentIndex)
	assert.False(t, s.IsPlaying)
	assert.Equal(t, 1, out.stops)

	assert.True(t, errors.Is(c.RemoveAt(5), ErrIndexOutOfRange))
	assert.Equal(t, []string{"t3"}, track.IDs(c.Queue()))
}

func TestController_ClearQueue(t *testing.T) {
	c, out := newTestController(t, Config{})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1"), song("t2")}, 0))

	c.ClearQueue()

	s := c.State()
	assert.Equal(t, 0, s.QueueLength)
	assert.Equal(t, -1, s.CurrentIndex)
	assert.False(t, s.IsPlaying)
	assert.Equal(t, 1, out.stops)
}

func TestController_LastCommandWins(t *testing.T) {
	c, out := newTestController(t, Config{})
	tracks := []track.Track{song("t1"), song("t2"), song("t3"), song("t4")}

	for i := range tracks {
		require.NoError(t, c.PlayQueue(context.Background(), tracks, i))
	}

	assert.Equal(t, "t4", currentID(c))
	assert.Equal(t, tracks[3].PlaybackURI, out.last().URI)
}

func TestController_IndexInvariantUnderRandomCommands(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c, out := newTestController(t, Config{Intn: rng.Intn})
	ctx := context.Background()

	pool := []track.Track{song("a"), broken("b"), song("c"), song("d"), broken("e")}
	for i := 0; i < 500; i++ {
		switch rng.Intn(11) {
		case 0:
			n := rng.Intn(len(pool) + 1)
			_ = c.PlayQueue(ctx, pool[:n], rng.Intn(6)-1)
		case 1:
			_ = c.PlaySingle(ctx, pool[rng.Intn(len(pool))])
		case 2:
			c.AddToQueue(pool[rng.Intn(len(pool))])
		case 3:
			_ = c.PlayNext(ctx)
		case 4:
			_ = c.PlayPrev(ctx)
		case 5:
			_ = c.TogglePlay(ctx)
		case 6:
			c.ToggleMode()
		case 7:
			_ = c.Seek(time.Duration(rng.Intn(400)-100) * time.Second)
		case 8:
			if len(out.loads) > 0 {
				ended(c, out)
			}
		case 9:
			if q := c.Queue(); len(q) > 0 {
				_ = c.RemoveAt(rng.Intn(len(q)))
			}
		case 10:
			c.ApplyEntity(entity.Entity{ID: "x", Kind: entity.KindPlaylist, Tracks: pool[:rng.Intn(len(pool))]})
		}
		assertIndexInvariant(t, c)

		s := c.State()
		if s.IsPlaying {
			require.NotNil(t, s.CurrentTrack)
			assert.True(t, s.CurrentTrack.Playable(), "unplayable track must never be playing")
		}
	}
}

func TestController_EmitsEvents(t *testing.T) {
	c, _ := newTestController(t, Config{})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1")}, 0))

	var types []EventType
	for len(c.Events()) > 0 {
		types = append(types, (<-c.Events()).Type)
	}
	assert.Equal(t, []EventType{EventQueueChanged, EventTrackStarted}, types)
}

func TestController_Close(t *testing.T) {
	out := newMockOutput()
	c := NewController(out, Config{})
	require.NoError(t, c.PlayQueue(context.Background(), []track.Track{song("t1")}, 0))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Equal(t, 1, out.closes)
	assert.True(t, errors.Is(c.PlayNext(context.Background()), ErrClosed))
	assert.True(t, errors.Is(c.Pause(), ErrClosed))
	assert.False(t, c.State().IsPlaying)

	_, open := <-c.Events()
	for open {
		_, open = <-c.Events()
	}
}
