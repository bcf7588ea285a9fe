// Package provider resolves catalog lookups through an ordered chain of
// catalog providers.
package provider

import (
	"context"

	"github.com/osa030/saavnbox/internal/domain/catalog"
)

// Provider is the interface for catalog providers.
type Provider interface {
	SearchSongs(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Song], error)
	SearchAlbums(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Album], error)
	SearchArtists(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Artist], error)
	SearchPlaylists(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Playlist], error)

	GetSong(ctx context.Context, id string) (catalog.Song, error)
	GetAlbum(ctx context.Context, id string) (catalog.Album, error)
	GetArtist(ctx context.Context, id string) (catalog.Artist, error)
	// GetPlaylist returns one page of the playlist's songs.
	GetPlaylist(ctx context.Context, id string, page, limit int) (catalog.Playlist, error)

	// Name returns the provider name (used in config).
	Name() string
}
