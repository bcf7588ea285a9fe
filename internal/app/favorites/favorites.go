// Package favorites keeps the user's favorite songs and containers.
package favorites

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/saavnbox/internal/domain/entity"
	"github.com/osa030/saavnbox/internal/domain/track"
)

// ErrInvalidItem is returned for items without an id, title or kind.
var ErrInvalidItem = errors.New("invalid favorite item")

// Kind is the type of a favorite item.
type Kind string

const (
	KindSong     Kind = "song"
	KindAlbum    Kind = "album"
	KindArtist   Kind = "artist"
	KindPlaylist Kind = "playlist"
)

// Item is a favorite entry.
type Item struct {
	ID          string        `json:"id"`
	Kind        Kind          `json:"kind"`
	Title       string        `json:"title"`
	Subtitle    string        `json:"subtitle,omitempty"`
	ArtworkURI  string        `json:"artworkUri,omitempty"`
	PlaybackURI string        `json:"playbackUri,omitempty"` // Songs only
	Duration    time.Duration `json:"duration,omitempty"`    // Songs only
	AddedAt     time.Time     `json:"addedAt"`
}

// Repository persists favorite items.
type Repository interface {
	Add(ctx context.Context, item Item) error
	Remove(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	// List returns items in the order they were added.
	List(ctx context.Context) ([]Item, error)
}

// Normalize trims the item and fills its kind. Items carrying a playback
// URI default to songs. It returns false when the item cannot be stored.
func Normalize(item Item) (Item, bool) {
	item.ID = strings.TrimSpace(item.ID)
	item.Title = strings.TrimSpace(item.Title)
	if item.ID == "" || item.Title == "" {
		return Item{}, false
	}

	switch item.Kind {
	case KindSong, KindAlbum, KindArtist, KindPlaylist:
	case "":
		if item.PlaybackURI == "" {
			return Item{}, false
		}
		item.Kind = KindSong
	default:
		return Item{}, false
	}
	return item, true
}

// FromTrack builds a song item from a track.
func FromTrack(t track.Track) Item {
	return Item{
		ID:          t.ID,
		Kind:        KindSong,
		Title:       t.Title,
		Subtitle:    t.Subtitle,
		ArtworkURI:  t.ArtworkURI,
		PlaybackURI: t.PlaybackURI,
		Duration:    t.Duration,
	}
}

// FromEntity builds a container item from an entity.
func FromEntity(e entity.Entity) Item {
	return Item{
		ID:         e.ID,
		Kind:       Kind(e.Kind),
		Title:      e.Title,
		Subtitle:   e.Subtitle,
		ArtworkURI: e.ArtworkURI,
	}
}

// Store toggles and lists favorites.
type Store struct {
	repo Repository
	now  func() time.Time

	// Serializes toggles so the exists check and the write are atomic.
	mu sync.Mutex
}

// NewStore creates a new favorites store.
func NewStore(repo Repository) *Store {
	return &Store{repo: repo, now: time.Now}
}

// Toggle adds the item if absent and removes it otherwise.
// It reports whether the item is a favorite afterwards.
func (s *Store) Toggle(ctx context.Context, item Item) (bool, error) {
	normalized, ok := Normalize(item)
	if !ok {
		return false, errors.Wrapf(ErrInvalidItem, "id=%q kind=%q", item.ID, item.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.repo.Exists(ctx, normalized.ID)
	if err != nil {
		return false, errors.Wrap(err, "failed to check favorite")
	}

	if exists {
		if err := s.repo.Remove(ctx, normalized.ID); err != nil {
			return true, errors.Wrap(err, "failed to remove favorite")
		}
		zlog.Info().Msgf("favorites: removed: kind=%s id=%s", normalized.Kind, normalized.ID)
		return false, nil
	}

	normalized.AddedAt = s.now().UTC()
	if err := s.repo.Add(ctx, normalized); err != nil {
		return false, errors.Wrap(err, "failed to add favorite")
	}
	zlog.Info().Msgf("favorites: added: kind=%s id=%s title=%q", normalized.Kind, normalized.ID, normalized.Title)
	return true, nil
}

// IsFavorite reports whether id is a favorite.
func (s *Store) IsFavorite(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	return s.repo.Exists(ctx, id)
}

// List returns all favorites, optionally filtered by kind.
func (s *Store) List(ctx context.Context, kind Kind) ([]Item, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list favorites")
	}
	if kind == "" {
		return items, nil
	}
	filtered := items[:0]
	for _, item := range items {
		if item.Kind == kind {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

// Tracks returns favorite songs as playable tracks, in the order added.
func (s *Store) Tracks(ctx context.Context) ([]track.Track, error) {
	items, err := s.List(ctx, KindSong)
	if err != nil {
		return nil, err
	}
	tracks := make([]track.Track, 0, len(items))
	for _, item := range items {
		tracks = append(tracks, track.Track{
			ID:          item.ID,
			Title:       item.Title,
			Subtitle:    item.Subtitle,
			ArtworkURI:  item.ArtworkURI,
			PlaybackURI: item.PlaybackURI,
			Duration:    item.Duration,
			Kind:        track.KindSong,
		})
	}
	return tracks, nil
}
