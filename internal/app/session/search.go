package session

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/saavnbox/internal/app/normalize"
	"github.com/osa030/saavnbox/internal/domain/entity"
	"github.com/osa030/saavnbox/internal/domain/track"
)

// ErrUnknownSearchKind is returned for unsupported search kinds.
var ErrUnknownSearchKind = errors.New("unknown search kind")

// SearchKind selects what a search returns.
type SearchKind string

const (
	SearchSongs     SearchKind = "song"
	SearchAlbums    SearchKind = "album"
	SearchArtists   SearchKind = "artist"
	SearchPlaylists SearchKind = "playlist"
)

// ParseSearchKind parses a kind name. Plural forms are accepted and an
// empty name searches songs.
func ParseSearchKind(s string) (SearchKind, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s") {
	case "", "song":
		return SearchSongs, nil
	case "album":
		return SearchAlbums, nil
	case "artist":
		return SearchArtists, nil
	case "playlist":
		return SearchPlaylists, nil
	default:
		return "", errors.Wrapf(ErrUnknownSearchKind, "%q", s)
	}
}

// SearchResult is one page of normalized search results.
// Songs fill Tracks; containers fill Entities as summaries.
type SearchResult struct {
	Kind     SearchKind
	Total    int
	Start    int
	Tracks   []track.Track
	Entities []entity.Entity
}

// Search queries the catalog and normalizes the results.
func (m *Manager) Search(ctx context.Context, kind SearchKind, query string, page, limit int) (SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResult{}, errors.New("search query is required")
	}
	if limit <= 0 {
		limit = m.searchLimit
	}
	if page <= 0 {
		page = 1
	}

	result := SearchResult{Kind: kind}
	switch kind {
	case SearchSongs:
		p, err := m.catalog.SearchSongs(ctx, query, page, limit)
		if err != nil {
			return SearchResult{}, err
		}
		result.Total, result.Start = p.Total, p.Start
		result.Tracks = normalize.Songs(p.Results)

	case SearchAlbums:
		p, err := m.catalog.SearchAlbums(ctx, query, page, limit)
		if err != nil {
			return SearchResult{}, err
		}
		result.Total, result.Start = p.Total, p.Start
		result.Entities = summaries(p.Results, normalize.Album)

	case SearchArtists:
		p, err := m.catalog.SearchArtists(ctx, query, page, limit)
		if err != nil {
			return SearchResult{}, err
		}
		result.Total, result.Start = p.Total, p.Start
		result.Entities = summaries(p.Results, normalize.Artist)

	case SearchPlaylists:
		p, err := m.catalog.SearchPlaylists(ctx, query, page, limit)
		if err != nil {
			return SearchResult{}, err
		}
		result.Total, result.Start = p.Total, p.Start
		result.Entities = summaries(p.Results, normalize.Playlist)

	default:
		return SearchResult{}, errors.Wrapf(ErrUnknownSearchKind, "%q", kind)
	}

	return result, nil
}

// summaries normalizes raw containers, dropping those without a title.
func summaries[T any](raws []T, fn func(T) entity.Entity) []entity.Entity {
	out := make([]entity.Entity, 0, len(raws))
	for _, raw := range raws {
		e := fn(raw)
		if e.ID == "" || e.Title == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}
