// Package loader resolves albums, artists and playlists into track lists
// and applies the most recently requested one to the playback queue.
package loader

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/saavnbox/internal/app/normalize"
	"github.com/osa030/saavnbox/internal/domain/catalog"
	"github.com/osa030/saavnbox/internal/domain/entity"
)

var (
	// ErrEntityLoadFailed is returned when the catalog lookup fails.
	// The queue is left untouched.
	ErrEntityLoadFailed = errors.New("entity load failed")
	// ErrStale is returned to a request that was superseded by a newer one.
	ErrStale = errors.New("entity load superseded by a newer request")
)

// DefaultPageSize is the number of playlist songs fetched per load.
const DefaultPageSize = 100

// Catalog is the catalog lookup the loader depends on.
type Catalog interface {
	GetAlbum(ctx context.Context, id string) (catalog.Album, error)
	GetArtist(ctx context.Context, id string) (catalog.Artist, error)
	GetPlaylist(ctx context.Context, id string, page, limit int) (catalog.Playlist, error)
}

// Target receives a resolved entity. The playback controller implements it.
type Target interface {
	ApplyEntity(e entity.Entity)
}

// Loader loads entities with a stale-response guard: only the most recently
// requested entity is applied.
type Loader struct {
	catalog  Catalog
	target   Target
	pageSize int

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// New creates a new Loader. A non-positive pageSize uses DefaultPageSize.
func New(c Catalog, target Target, pageSize int) *Loader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Loader{
		catalog:  c,
		target:   target,
		pageSize: pageSize,
	}
}

// LoadEntity fetches the entity, normalizes its songs and applies it to the
// target. A call that is superseded before it resolves returns ErrStale and
// changes nothing.
func (l *Loader) LoadEntity(ctx context.Context, id string, kind entity.Kind) (entity.Entity, error) {
	if id == "" {
		return entity.Entity{}, errors.Wrap(ErrEntityLoadFailed, "entity id is required")
	}
	kind, err := entity.ParseKind(string(kind))
	if err != nil {
		return entity.Entity{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	l.seq++
	seq := l.seq
	if l.cancel != nil {
		// The superseded request's result would be discarded anyway
		l.cancel()
	}
	l.cancel = cancel
	l.mu.Unlock()

	zlog.Debug().Msgf("loader: loading entity: kind=%s id=%s seq=%d", kind, id, seq)

	e, err := l.fetch(ctx, id, kind)

	l.mu.Lock()
	defer l.mu.Unlock()

	if seq != l.seq {
		zlog.Debug().Msgf("loader: discarding stale response: kind=%s id=%s seq=%d latest=%d", kind, id, seq, l.seq)
		return entity.Entity{}, errors.Wrapf(ErrStale, "%s %s", kind, id)
	}
	l.cancel = nil

	if err != nil {
		zlog.Error().Msgf("loader: failed to load entity: kind=%s id=%s err=%v", kind, id, err)
		return entity.Entity{}, errors.Mark(errors.Wrapf(err, "failed to load %s %s", kind, id), ErrEntityLoadFailed)
	}

	if e.ID == "" {
		e.ID = id
	}

	// Applied under the lock so a newer request cannot interleave
	l.target.ApplyEntity(e)
	zlog.Info().Msgf("loader: entity loaded: kind=%s id=%s title=%q tracks=%d", kind, id, e.Title, len(e.Tracks))

	return e, nil
}

func (l *Loader) fetch(ctx context.Context, id string, kind entity.Kind) (entity.Entity, error) {
	switch kind {
	case entity.KindAlbum:
		raw, err := l.catalog.GetAlbum(ctx, id)
		if err != nil {
			return entity.Entity{}, err
		}
		return normalize.Album(raw), nil

	case entity.KindArtist:
		raw, err := l.catalog.GetArtist(ctx, id)
		if err != nil {
			return entity.Entity{}, err
		}
		return normalize.Artist(raw), nil

	case entity.KindPlaylist:
		raw, err := l.catalog.GetPlaylist(ctx, id, 1, l.pageSize)
		if err != nil {
			return entity.Entity{}, err
		}
		return normalize.Playlist(raw), nil

	default:
		return entity.Entity{}, errors.Wrapf(entity.ErrUnknownKind, "%q", kind)
	}
}
