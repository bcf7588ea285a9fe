package provider

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/saavnbox/internal/domain/catalog"
)

// ErrNoProviders is returned when every provider in the chain failed.
var ErrNoProviders = errors.New("all catalog providers failed")

// ProviderWithMetadata wraps a provider with its metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// ProviderChain tries providers in order and returns the first success.
type ProviderChain struct {
	providers []ProviderWithMetadata
}

// NewProviderChain creates a new provider chain.
func NewProviderChain(providers []ProviderWithMetadata) *ProviderChain {
	return &ProviderChain{
		providers: providers,
	}
}

// Providers returns the display names of the chained providers.
func (c *ProviderChain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, pm := range c.providers {
		names[i] = pm.DisplayName
	}
	return names
}

// Name returns the chain name.
func (c *ProviderChain) Name() string {
	return "provider_chain"
}

// SearchSongs searches songs.
func (c *ProviderChain) SearchSongs(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Song], error) {
	return first(ctx, c, "search_songs", func(p Provider) (catalog.Page[catalog.Song], error) {
		return p.SearchSongs(ctx, query, page, limit)
	})
}

// SearchAlbums searches albums.
func (c *ProviderChain) SearchAlbums(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Album], error) {
	return first(ctx, c, "search_albums", func(p Provider) (catalog.Page[catalog.Album], error) {
		return p.SearchAlbums(ctx, query, page, limit)
	})
}

// SearchArtists searches artists.
func (c *ProviderChain) SearchArtists(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Artist], error) {
	return first(ctx, c, "search_artists", func(p Provider) (catalog.Page[catalog.Artist], error) {
		return p.SearchArtists(ctx, query, page, limit)
	})
}

// SearchPlaylists searches playlists.
func (c *ProviderChain) SearchPlaylists(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Playlist], error) {
	return first(ctx, c, "search_playlists", func(p Provider) (catalog.Page[catalog.Playlist], error) {
		return p.SearchPlaylists(ctx, query, page, limit)
	})
}

// GetSong retrieves one song.
func (c *ProviderChain) GetSong(ctx context.Context, id string) (catalog.Song, error) {
	return first(ctx, c, "get_song", func(p Provider) (catalog.Song, error) {
		return p.GetSong(ctx, id)
	})
}

// GetAlbum retrieves an album with its songs.
func (c *ProviderChain) GetAlbum(ctx context.Context, id string) (catalog.Album, error) {
	return first(ctx, c, "get_album", func(p Provider) (catalog.Album, error) {
		return p.GetAlbum(ctx, id)
	})
}

// GetArtist retrieves an artist with its top songs.
func (c *ProviderChain) GetArtist(ctx context.Context, id string) (catalog.Artist, error) {
	return first(ctx, c, "get_artist", func(p Provider) (catalog.Artist, error) {
		return p.GetArtist(ctx, id)
	})
}

// GetPlaylist retrieves one page of a playlist.
func (c *ProviderChain) GetPlaylist(ctx context.Context, id string, page, limit int) (catalog.Playlist, error) {
	return first(ctx, c, "get_playlist", func(p Provider) (catalog.Playlist, error) {
		return p.GetPlaylist(ctx, id, page, limit)
	})
}

// first calls fn on each provider in order until one succeeds.
// A cancelled context stops the chain.
func first[T any](ctx context.Context, c *ProviderChain, op string, fn func(Provider) (T, error)) (T, error) {
	var zero T
	if len(c.providers) == 0 {
		return zero, errors.Wrap(ErrNoProviders, "no providers configured")
	}

	var errs []error
	for i, pm := range c.providers {
		zlog.Debug().Msgf("trying provider: op=%s index=%d total=%d name=%s provider_type=%s",
			op, i+1, len(c.providers), pm.DisplayName, pm.Provider.Name())

		result, err := fn(pm.Provider)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, errors.Wrap(ctx.Err(), op)
		}

		zlog.Warn().Msgf("provider failed, trying next: op=%s provider=%s error=%v", op, pm.DisplayName, err)
		errs = append(errs, errors.Wrapf(err, "provider %s", pm.DisplayName))
	}

	if len(errs) == 1 {
		// A single provider keeps its own error for errors.Is checks
		return zero, errs[0]
	}
	return zero, errors.Wrapf(ErrNoProviders, "%s: %v", op, errs)
}
