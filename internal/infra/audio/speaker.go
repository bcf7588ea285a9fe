package audio

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/saavnbox/internal/app/playback"
)

// ErrUnsupportedFormat is reported when a source cannot be decoded locally.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

const (
	formatMP3  = "mp3"
	formatFLAC = "flac"
	formatWAV  = "wav"
)

// The speaker is process-wide and initialised with the first decoded format.
var (
	speakerMu          sync.Mutex
	speakerInitialized bool
	speakerSampleRate  beep.SampleRate
)

// SpeakerConfig holds configuration for the speaker output.
type SpeakerConfig struct {
	HTTPClient   *http.Client
	MaxBytes     int64         // Largest source that will be buffered
	TickInterval time.Duration // Position report interval
	EventBuffer  int
}

// Speaker plays sources on the local sound device. Load returns at once;
// the source is fetched and decoded in the background and starts when both
// the decode has finished and Play has been requested.
type Speaker struct {
	mu sync.Mutex

	client   *http.Client
	maxBytes int64
	tick     time.Duration

	src         *playback.Source
	cancelFetch context.CancelFunc
	wantPlay    bool
	pendingSeek time.Duration
	finished    bool

	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl

	events chan playback.OutputEvent
	// Ended and error events wait here until report delivers them.
	pending []playback.OutputEvent
	wake    chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
	closeOnce sync.Once
}

// NewSpeaker creates a speaker output and starts its position reporter.
func NewSpeaker(cfg SpeakerConfig) *Speaker {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = 500 * time.Millisecond
	}
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 16
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Speaker{
		client:   client,
		maxBytes: maxBytes,
		tick:     tick,
		events:   make(chan playback.OutputEvent, buffer),
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.report()
	return s
}

// Load drops the current source and starts fetching src.
func (s *Speaker) Load(src playback.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.releaseLocked()

	ctx, cancel := context.WithCancel(s.ctx)
	loaded := src
	s.src = &loaded
	s.cancelFetch = cancel
	s.wantPlay = false
	s.pendingSeek = 0
	s.finished = false

	go s.fetch(ctx, loaded)
	return nil
}

// Play starts the source, or marks it to start once decoded.
func (s *Speaker) Play(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.src == nil {
		return ErrNoSource
	}

	s.wantPlay = true
	if s.ctrl == nil {
		return nil
	}
	if s.finished {
		s.finished = false
		s.startLocked()
	}
	speaker.Lock()
	s.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

// Pause pauses the source.
func (s *Speaker) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.wantPlay = false
	if s.ctrl != nil {
		speaker.Lock()
		s.ctrl.Paused = true
		speaker.Unlock()
	}
	return nil
}

// Seek moves within the decoded source. Before decoding finishes the
// position is remembered and applied once the source is ready.
func (s *Speaker) Seek(pos time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.src == nil {
		return ErrNoSource
	}

	pos = max(pos, 0)
	if s.streamer == nil {
		s.pendingSeek = pos
		return nil
	}

	speaker.Lock()
	err := s.seekLocked(pos)
	speaker.Unlock()
	if err != nil {
		return errors.Wrap(err, "failed to seek")
	}
	if s.finished && pos < s.format.SampleRate.D(s.streamer.Len()) {
		s.finished = false
		s.startLocked()
	}
	return nil
}

// Stop releases the current source.
func (s *Speaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()
	return nil
}

// Events returns the output event channel.
func (s *Speaker) Events() <-chan playback.OutputEvent {
	return s.events
}

// Close releases the source and stops the position reporter. It is safe to
// call more than once.
func (s *Speaker) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done

		s.mu.Lock()
		s.closed = true
		s.releaseLocked()
		s.mu.Unlock()

		close(s.events)
		zlog.Debug().Msg("audio: speaker output closed")
	})
	return nil
}

// fetch downloads and decodes src, then hands it to the speaker if src is
// still the loaded source.
func (s *Speaker) fetch(ctx context.Context, src playback.Source) {
	streamer, format, err := s.open(ctx, src.URI)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		zlog.Warn().Msgf("audio: failed to open source: id=%d uri=%s err=%v", src.ID, src.URI, err)
		s.mu.Lock()
		s.deliverLocked(playback.OutputEvent{Type: playback.OutputError, SourceID: src.ID, Err: err})
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.src == nil || s.src.ID != src.ID {
		_ = streamer.Close()
		return
	}

	if err := initSpeaker(format.SampleRate); err != nil {
		_ = streamer.Close()
		s.deliverLocked(playback.OutputEvent{Type: playback.OutputError, SourceID: src.ID, Err: err})
		return
	}

	s.streamer = streamer
	s.format = format

	var playStreamer beep.Streamer = streamer
	if format.SampleRate != speakerSampleRate {
		playStreamer = beep.Resample(4, format.SampleRate, speakerSampleRate, streamer)
	}
	s.ctrl = &beep.Ctrl{Streamer: playStreamer, Paused: !s.wantPlay}

	if s.pendingSeek > 0 {
		if err := s.seekLocked(s.pendingSeek); err != nil {
			zlog.Warn().Msgf("audio: failed to apply pending seek: id=%d err=%v", src.ID, err)
		}
	}
	s.startLocked()

	zlog.Info().Msgf("audio: source ready: id=%d format=%d Hz length=%v",
		src.ID, format.SampleRate, format.SampleRate.D(streamer.Len()))
}

// open fetches uri into memory and decodes it.
func (s *Speaker) open(ctx context.Context, uri string) (beep.StreamSeekCloser, beep.Format, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, beep.Format{}, errors.Wrap(err, "failed to create request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, beep.Format{}, errors.Wrap(err, "failed to fetch source")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, beep.Format{}, errors.Newf("failed to fetch source: status %d", resp.StatusCode)
	}

	format := detectFormat(uri, resp.Header.Get("Content-Type"))
	if format == "" {
		return nil, beep.Format{}, errors.Wrapf(ErrUnsupportedFormat, "uri=%s content-type=%s", uri, resp.Header.Get("Content-Type"))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, beep.Format{}, errors.Wrap(err, "failed to read source")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, beep.Format{}, errors.Newf("source exceeds %s", humanize.IBytes(uint64(s.maxBytes)))
	}
	zlog.Debug().Msgf("audio: fetched source: format=%s size=%s", format, humanize.IBytes(uint64(len(data))))

	return decode(format, memFile{bytes.NewReader(data)})
}

// Must be called with lock held.
func (s *Speaker) startLocked() {
	id := s.src.ID
	speaker.Play(beep.Seq(s.ctrl, beep.Callback(func() {
		// Runs on the speaker goroutine with the speaker locked.
		go s.ended(id)
	})))
}

func (s *Speaker) ended(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.src == nil || s.src.ID != id {
		return
	}
	s.finished = true
	s.wantPlay = false
	if s.streamer != nil {
		s.deliverLocked(playback.OutputEvent{
			Type:     playback.OutputEnded,
			SourceID: id,
			Position: s.format.SampleRate.D(s.streamer.Len()),
		})
	}
}

// Must be called with lock and speaker lock held.
func (s *Speaker) seekLocked(pos time.Duration) error {
	n := s.format.SampleRate.N(pos)
	if last := s.streamer.Len() - 1; n > last {
		n = max(last, 0)
	}
	return s.streamer.Seek(n)
}

// Must be called with lock held.
func (s *Speaker) releaseLocked() {
	if s.cancelFetch != nil {
		s.cancelFetch()
		s.cancelFetch = nil
	}
	if s.ctrl != nil {
		speaker.Clear()
		s.ctrl = nil
	}
	if s.streamer != nil {
		_ = s.streamer.Close()
		s.streamer = nil
	}
	s.src = nil
	s.wantPlay = false
	s.finished = false
}

func (s *Speaker) report() {
	defer close(s.done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
			s.flush()
		case <-ticker.C:
			s.mu.Lock()
			if s.streamer != nil && s.wantPlay && !s.finished {
				speaker.Lock()
				pos := s.format.SampleRate.D(s.streamer.Position())
				speaker.Unlock()
				s.sendLocked(playback.OutputEvent{Type: playback.OutputPosition, SourceID: s.src.ID, Position: pos})
			}
			s.mu.Unlock()
		}
	}
}

// flush hands pending events to the channel, blocking until they are read
// or the speaker closes. It runs on the report goroutine, which Close waits
// for before closing the channel.
func (s *Speaker) flush() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		ev := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		select {
		case s.events <- ev:
		case <-s.ctx.Done():
			return
		}
	}
}

// deliverLocked queues an event that must not be dropped.
// Must be called with lock held.
func (s *Speaker) deliverLocked(ev playback.OutputEvent) {
	if s.closed {
		return
	}
	s.pending = append(s.pending, ev)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// sendLocked sends a position event, dropping it when the channel is full.
// Must be called with lock held.
func (s *Speaker) sendLocked(ev playback.OutputEvent) {
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		// Channel full, drop event
	}
}

func initSpeaker(rate beep.SampleRate) error {
	speakerMu.Lock()
	defer speakerMu.Unlock()

	if speakerInitialized {
		return nil
	}
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return errors.Wrap(err, "failed to initialize speaker")
	}
	speakerSampleRate = rate
	speakerInitialized = true
	return nil
}

// detectFormat picks a decoder from the URI extension, then the content type.
func detectFormat(uri, contentType string) string {
	if u, err := url.Parse(uri); err == nil {
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".mp3":
			return formatMP3
		case ".flac":
			return formatFLAC
		case ".wav":
			return formatWAV
		}
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch strings.ToLower(mediaType) {
	case "audio/mpeg", "audio/mp3":
		return formatMP3
	case "audio/flac", "audio/x-flac":
		return formatFLAC
	case "audio/wav", "audio/x-wav", "audio/wave":
		return formatWAV
	}
	return ""
}

func decode(kind string, f memFile) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)
	switch kind {
	case formatMP3:
		streamer, format, err = mp3.Decode(f)
	case formatFLAC:
		streamer, format, err = flac.Decode(f)
	case formatWAV:
		streamer, format, err = wav.Decode(f)
	default:
		return nil, beep.Format{}, errors.Wrap(ErrUnsupportedFormat, kind)
	}
	if err != nil {
		return nil, beep.Format{}, errors.Wrapf(err, "failed to decode %s", kind)
	}
	return streamer, format, nil
}

// memFile is an in-memory source that keeps Seek available to the decoders.
type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }
