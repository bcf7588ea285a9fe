package audio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/saavnbox/internal/app/playback"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name        string
		uri         string
		contentType string
		expected    string
	}{
		{name: "mp3 extension", uri: "https://cdn.example.com/a/song.mp3?x=1", expected: formatMP3},
		{name: "flac extension", uri: "https://cdn.example.com/a/song.FLAC", expected: formatFLAC},
		{name: "wav extension", uri: "https://cdn.example.com/a/song.wav", expected: formatWAV},
		{name: "content type", uri: "https://cdn.example.com/stream", contentType: "audio/mpeg; charset=binary", expected: formatMP3},
		{name: "aac is unsupported", uri: "https://cdn.example.com/a/song_320.mp4", contentType: "audio/mp4", expected: ""},
		{name: "nothing", uri: "https://cdn.example.com/stream", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, detectFormat(tt.uri, tt.contentType))
		})
	}
}

func TestSpeaker_Open(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.mp3":
			w.WriteHeader(http.StatusNotFound)
		case "/song.mp4":
			w.Header().Set("Content-Type", "audio/mp4")
			_, _ = w.Write([]byte("not decodable"))
		case "/garbage.mp3":
			_, _ = w.Write([]byte("definitely not an mp3 frame"))
		case "/big.wav":
			_, _ = w.Write(make([]byte, 2048))
		}
	}))
	defer server.Close()

	s := NewSpeaker(SpeakerConfig{MaxBytes: 1024, TickInterval: time.Hour})
	defer s.Close()

	_, _, err := s.open(context.Background(), server.URL+"/missing.mp3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")

	_, _, err = s.open(context.Background(), server.URL+"/song.mp4")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, _, err = s.open(context.Background(), server.URL+"/garbage.mp3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode mp3")

	_, _, err = s.open(context.Background(), server.URL+"/big.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source exceeds 1.0 KiB")
}

func TestSpeaker_LoadFailureReportsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	s := NewSpeaker(SpeakerConfig{TickInterval: time.Hour})
	defer s.Close()

	require.NoError(t, s.Load(playback.Source{ID: 9, URI: server.URL + "/song.mp3"}))
	require.NoError(t, s.Play(context.Background()))

	select {
	case ev := <-s.Events():
		assert.Equal(t, playback.OutputError, ev.Type)
		assert.Equal(t, uint64(9), ev.SourceID)
		require.Error(t, ev.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for error event")
	}
}

func TestSpeaker_WithoutSource(t *testing.T) {
	s := NewSpeaker(SpeakerConfig{TickInterval: time.Hour})

	assert.True(t, errors.Is(s.Play(context.Background()), ErrNoSource))
	assert.True(t, errors.Is(s.Seek(time.Second), ErrNoSource))
	assert.NoError(t, s.Pause())
	assert.NoError(t, s.Stop())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, errors.Is(s.Load(playback.Source{ID: 1}), ErrClosed))
}

// silence is a decoded source that never touches the sound device.
type silence struct {
	n, pos int
}

func (s *silence) Stream(samples [][2]float64) (int, bool) { return 0, false }
func (s *silence) Err() error                              { return nil }
func (s *silence) Len() int                                { return s.n }
func (s *silence) Position() int                           { return s.pos }
func (s *silence) Seek(p int) error                        { s.pos = p; return nil }
func (s *silence) Close() error                            { return nil }

func TestSpeaker_EndedSurvivesFullBuffer(t *testing.T) {
	s := NewSpeaker(SpeakerConfig{TickInterval: time.Hour, EventBuffer: 1})
	defer s.Close()

	s.mu.Lock()
	s.src = &playback.Source{ID: 5, URI: "u"}
	s.streamer = &silence{n: 44100}
	s.format = beep.Format{SampleRate: 44100, NumChannels: 2, Precision: 2}
	s.wantPlay = true
	s.sendLocked(playback.OutputEvent{Type: playback.OutputPosition, SourceID: 5, Position: time.Millisecond})
	s.mu.Unlock()

	s.ended(5)

	var got []playback.OutputEvent
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-s.Events():
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("ended event lost, got %v", got)
		}
	}
	assert.Equal(t, playback.OutputPosition, got[0].Type)
	assert.Equal(t, playback.OutputEnded, got[1].Type)
	assert.Equal(t, uint64(5), got[1].SourceID)
	assert.Equal(t, time.Second, got[1].Position)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.True(t, s.finished)
	assert.False(t, s.wantPlay)
}

func TestSpeaker_CloseWithPendingEvents(t *testing.T) {
	s := NewSpeaker(SpeakerConfig{TickInterval: time.Hour, EventBuffer: 1})

	s.mu.Lock()
	s.sendLocked(playback.OutputEvent{Type: playback.OutputPosition, SourceID: 1})
	s.deliverLocked(playback.OutputEvent{Type: playback.OutputEnded, SourceID: 1})
	s.deliverLocked(playback.OutputEvent{Type: playback.OutputError, SourceID: 2})
	s.mu.Unlock()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = s.Close()
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on pending events")
	}
}
