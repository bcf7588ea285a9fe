// Package session provides the session manager.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/saavnbox/internal/app/download"
	"github.com/osa030/saavnbox/internal/app/favorites"
	"github.com/osa030/saavnbox/internal/app/loader"
	"github.com/osa030/saavnbox/internal/app/normalize"
	"github.com/osa030/saavnbox/internal/app/notification"
	"github.com/osa030/saavnbox/internal/app/playback"
	"github.com/osa030/saavnbox/internal/domain/catalog"
	"github.com/osa030/saavnbox/internal/domain/entity"
	"github.com/osa030/saavnbox/internal/domain/track"
)

var (
	ErrFavoritesDisabled = errors.New("favorites are not configured")
	ErrDownloadsDisabled = errors.New("downloads are not configured")
	ErrNotStarted        = errors.New("session is not started")
)

// Catalog is the catalog surface the session needs.
type Catalog interface {
	loader.Catalog
	SearchSongs(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Song], error)
	SearchAlbums(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Album], error)
	SearchArtists(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Artist], error)
	SearchPlaylists(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Playlist], error)
	GetSong(ctx context.Context, id string) (catalog.Song, error)
}

// Options are the collaborators of a session.
type Options struct {
	Catalog           Catalog
	Output            playback.Output
	Favorites         *favorites.Store     // Optional
	Downloader        *download.Downloader // Optional
	DownloadRetention time.Duration        // How long finished downloads stay listed
	Mode              playback.Mode
	EventBuffer       int
	PlaylistPageSize  int
	SearchLimit       int
	Closers           []func() error // Released after the controller on Close
}

// Info describes the running session.
type Info struct {
	ID          string
	StartedAt   time.Time
	Subscribers int
}

// Manager owns the single playback controller and its output for the
// lifetime of the process, and fans its events out to subscribers.
type Manager struct {
	id        string
	startedAt time.Time

	// Components
	catalog      Catalog
	playback     *playback.Controller
	loader       *loader.Loader
	favorites    *favorites.Store
	downloader   *download.Downloader
	notification *notification.Manager
	closers      []func() error

	searchLimit       int
	downloadRetention time.Duration

	mu      sync.Mutex
	started bool

	// Channels
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a new session manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if opts.Output == nil {
		return nil, errors.New("output is required")
	}

	searchLimit := opts.SearchLimit
	if searchLimit <= 0 {
		searchLimit = 10
	}
	retention := opts.DownloadRetention
	if retention <= 0 {
		retention = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	controller := playback.NewController(opts.Output, playback.Config{
		Mode:        opts.Mode,
		EventBuffer: opts.EventBuffer,
	})

	return &Manager{
		id:                uuid.New().String(),
		catalog:           opts.Catalog,
		playback:          controller,
		loader:            loader.New(opts.Catalog, controller, opts.PlaylistPageSize),
		favorites:         opts.Favorites,
		downloader:        opts.Downloader,
		notification:      notification.NewManager(),
		closers:           opts.Closers,
		searchLimit:       searchLimit,
		downloadRetention: retention,
		ctx:               ctx,
		cancel:            cancel,
		done:              make(chan struct{}),
	}, nil
}

// Start starts the event loop. It is a no-op when already started or closed.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.ctx.Err() != nil {
		return
	}
	m.started = true
	m.startedAt = time.Now()

	go m.playbackLoop()
	if m.downloader != nil {
		go m.pruneLoop()
	}
	zlog.Info().Msgf("session started: session_id=%s mode=%s", m.id, m.playback.State().Mode)
}

// Info returns session metadata.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Info{
		ID:          m.id,
		StartedAt:   m.startedAt,
		Subscribers: m.notification.SubscriberCount(),
	}
}

// Done is closed when the event loop has stopped.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Closed reports whether Close has been called.
func (m *Manager) Closed() bool {
	return m.ctx.Err() != nil
}

// Close stops the session and releases the output and every collaborator.
func (m *Manager) Close() error {
	var errs []error
	m.closeOnce.Do(func() {
		m.cancel()
		if err := m.playback.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to close playback"))
		}
		if m.downloader != nil {
			m.downloader.Close()
		}
		m.notification.Close()
		for _, closer := range m.closers {
			if err := closer(); err != nil {
				errs = append(errs, err)
			}
		}

		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if !started {
			close(m.done)
		}
		zlog.Info().Msgf("session closed: session_id=%s", m.id)
	})
	if len(errs) > 0 {
		return errors.Newf("failed to close session: %v", errs)
	}
	return nil
}

// Transport commands

// PlaySingle replaces the queue with one track and plays it.
func (m *Manager) PlaySingle(ctx context.Context, t track.Track) error {
	return m.playback.PlaySingle(ctx, t)
}

// PlaySong resolves a song by catalog ID and plays it alone.
func (m *Manager) PlaySong(ctx context.Context, id string) (track.Track, error) {
	t, err := m.ResolveSong(ctx, id)
	if err != nil {
		return track.Track{}, err
	}
	return t, m.playback.PlaySingle(ctx, t)
}

// PlayQueue replaces the queue and plays from start.
func (m *Manager) PlayQueue(ctx context.Context, tracks []track.Track, start int) error {
	return m.playback.PlayQueue(ctx, tracks, start)
}

// AddToQueue appends a track without changing the current track.
func (m *Manager) AddToQueue(t track.Track) {
	m.playback.AddToQueue(t)
}

// PlayNext advances by the current mode.
func (m *Manager) PlayNext(ctx context.Context) error {
	return m.playback.PlayNext(ctx)
}

// PlayPrev steps back, clamped at the start of the queue.
func (m *Manager) PlayPrev(ctx context.Context) error {
	return m.playback.PlayPrev(ctx)
}

// TogglePlay flips between playing and paused.
func (m *Manager) TogglePlay(ctx context.Context) error {
	return m.playback.TogglePlay(ctx)
}

// Pause pauses playback.
func (m *Manager) Pause() error {
	return m.playback.Pause()
}

// ToggleMode cycles the play mode and returns the new mode.
func (m *Manager) ToggleMode() playback.Mode {
	return m.playback.ToggleMode()
}

// SetMode sets the play mode.
func (m *Manager) SetMode(mode playback.Mode) {
	m.playback.SetMode(mode)
}

// Seek moves the playback position.
func (m *Manager) Seek(pos time.Duration) error {
	return m.playback.Seek(pos)
}

// RemoveAt removes a queue entry.
func (m *Manager) RemoveAt(index int) error {
	return m.playback.RemoveAt(index)
}

// ClearQueue empties the queue.
func (m *Manager) ClearQueue() {
	m.playback.ClearQueue()
}

// State returns a playback snapshot.
func (m *Manager) State() playback.PlaybackState {
	return m.playback.State()
}

// Queue returns a copy of the queue.
func (m *Manager) Queue() []track.Track {
	return m.playback.Queue()
}

// LoadEntity loads an album, artist or playlist into the queue without
// starting playback.
func (m *Manager) LoadEntity(ctx context.Context, id string, kind entity.Kind) (entity.Entity, error) {
	return m.loader.LoadEntity(ctx, id, kind)
}

// ResolveSong fetches and normalizes one song.
func (m *Manager) ResolveSong(ctx context.Context, id string) (track.Track, error) {
	raw, err := m.catalog.GetSong(ctx, id)
	if err != nil {
		return track.Track{}, errors.Wrapf(err, "failed to resolve song %s", id)
	}
	return normalize.Song(raw)
}

// Favorites

// ToggleFavorite adds or removes a favorite and reports whether it is one afterwards.
func (m *Manager) ToggleFavorite(ctx context.Context, item favorites.Item) (bool, error) {
	if m.favorites == nil {
		return false, ErrFavoritesDisabled
	}
	return m.favorites.Toggle(ctx, item)
}

// IsFavorite reports whether id is a favorite.
func (m *Manager) IsFavorite(ctx context.Context, id string) (bool, error) {
	if m.favorites == nil {
		return false, ErrFavoritesDisabled
	}
	return m.favorites.IsFavorite(ctx, id)
}

// ListFavorites lists favorites, optionally filtered by kind.
func (m *Manager) ListFavorites(ctx context.Context, kind favorites.Kind) ([]favorites.Item, error) {
	if m.favorites == nil {
		return nil, ErrFavoritesDisabled
	}
	return m.favorites.List(ctx, kind)
}

// PlayFavorites queues all favorite songs and plays from the first.
func (m *Manager) PlayFavorites(ctx context.Context) error {
	if m.favorites == nil {
		return ErrFavoritesDisabled
	}
	tracks, err := m.favorites.Tracks(ctx)
	if err != nil {
		return err
	}
	return m.playback.PlayQueue(ctx, tracks, 0)
}

// Downloads

// Download starts a background download. An empty track downloads the current track.
func (m *Manager) Download(t track.Track) (string, error) {
	if m.downloader == nil {
		return "", ErrDownloadsDisabled
	}
	if t.ID == "" {
		current := m.playback.State().CurrentTrack
		if current == nil {
			return "", playback.ErrNoTrack
		}
		t = *current
	}
	return m.downloader.Enqueue(t)
}

// DownloadTask returns a download task snapshot.
func (m *Manager) DownloadTask(id string) (download.Task, error) {
	if m.downloader == nil {
		return download.Task{}, ErrDownloadsDisabled
	}
	return m.downloader.Task(id)
}

// DownloadTasks lists download tasks.
func (m *Manager) DownloadTasks() []download.Task {
	if m.downloader == nil {
		return nil
	}
	return m.downloader.Tasks()
}

// Subscriptions

// Subscribe registers a stream. The current state is queued for it before
// any later event.
func (m *Manager) Subscribe(stream notification.Stream) (string, error) {
	if m.ctx.Err() != nil {
		return "", playback.ErrClosed
	}
	id := m.notification.Subscribe(stream, notification.Initial(m.playback.State(), m.playback.Queue()))
	zlog.Debug().Msgf("subscriber joined: subscription=%s total=%d", id, m.notification.SubscriberCount())
	return id, nil
}

// SubscriptionDone is closed when a subscription ends, including when it is
// evicted for falling behind.
func (m *Manager) SubscriptionDone(id string) <-chan struct{} {
	return m.notification.Done(id)
}

// Unsubscribe removes a stream.
func (m *Manager) Unsubscribe(id string) {
	m.notification.Unsubscribe(id)
	zlog.Debug().Msgf("subscriber left: subscription=%s total=%d", id, m.notification.SubscriberCount())
}

// playbackLoop converts controller events into notifications.
func (m *Manager) playbackLoop() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-m.playback.Events():
			if !ok {
				return
			}
			m.handlePlaybackEvent(event)
		}
	}
}

// pruneLoop forgets finished download tasks once they are older than the
// retention period.
func (m *Manager) pruneLoop() {
	ticker := time.NewTicker(max(m.downloadRetention/2, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if n := m.downloader.Prune(m.downloadRetention); n > 0 {
				zlog.Debug().Msgf("pruned finished downloads: count=%d", n)
			}
		}
	}
}

// handlePlaybackEvent logs an event and broadcasts it. A panic while
// handling one event must not stop the loop.
func (m *Manager) handlePlaybackEvent(event playback.Event) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("playback event handler panicked: type=%s panic=%v", event.Type, r)
		}
	}()

	switch event.Type {
	case playback.EventTrackStarted:
		if event.Track != nil {
			zlog.Info().Msgf("track started: index=%d id=%s title=%q", event.Index, event.Track.ID, event.Track.Title)
		}
	case playback.EventTrackSkipped:
		if event.Track != nil {
			zlog.Warn().Msgf("track skipped: index=%d id=%s reason=%v", event.Index, event.Track.ID, event.Err)
		}
	case playback.EventQueueEnded:
		zlog.Info().Msg("queue ended")
	case playback.EventPositionChanged:
		// Ticks are frequent and only broadcast
	default:
		zlog.Debug().Msgf("playback event: type=%s", event.Type)
	}

	var queue []track.Track
	switch event.Type {
	case playback.EventQueueChanged, playback.EventEntityLoaded:
		queue = m.playback.Queue()
	}
	m.notification.Broadcast(notification.FromEvent(event, m.playback.State(), queue))
}
