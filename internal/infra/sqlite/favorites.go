package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/saavnbox/internal/app/favorites"
)

// FavoritesRepository stores favorites in the favorites table.
type FavoritesRepository struct {
	db *sql.DB
}

var _ favorites.Repository = (*FavoritesRepository)(nil)

// Favorites returns the favorites repository.
func (d *DB) Favorites() *FavoritesRepository {
	return &FavoritesRepository{db: d.db}
}

// Add inserts or replaces an item. A replaced item keeps its position.
func (r *FavoritesRepository) Add(ctx context.Context, item favorites.Item) error {
	return withTx(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO favorites (id, kind, title, subtitle, artwork_uri, playback_uri, duration_ms, added_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				kind = excluded.kind,
				title = excluded.title,
				subtitle = excluded.subtitle,
				artwork_uri = excluded.artwork_uri,
				playback_uri = excluded.playback_uri,
				duration_ms = excluded.duration_ms
		`, item.ID, string(item.Kind), item.Title,
			nullString(item.Subtitle), nullString(item.ArtworkURI), nullString(item.PlaybackURI),
			item.Duration.Milliseconds(), item.AddedAt.UnixMilli())
		if err != nil {
			return errors.Wrapf(err, "failed to insert favorite %s", item.ID)
		}
		return nil
	})
}

// Remove deletes an item. Removing a missing item is not an error.
func (r *FavoritesRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM favorites WHERE id = ?`, id); err != nil {
		return errors.Wrapf(err, "failed to delete favorite %s", id)
	}
	return nil
}

// Exists reports whether an item is stored.
func (r *FavoritesRepository) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM favorites WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "failed to query favorite %s", id)
	}
	return n > 0, nil
}

// List returns all items in insertion order.
func (r *FavoritesRepository) List(ctx context.Context) ([]favorites.Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, title, subtitle, artwork_uri, playback_uri, duration_ms, added_at
		FROM favorites
		ORDER BY seq
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query favorites")
	}
	defer rows.Close()

	var items []favorites.Item
	for rows.Next() {
		var (
			item                        favorites.Item
			kind                        string
			subtitle, artwork, playback sql.NullString
			durationMs, addedAt         int64
		)
		if err := rows.Scan(&item.ID, &kind, &item.Title, &subtitle, &artwork, &playback, &durationMs, &addedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan favorite")
		}
		item.Kind = favorites.Kind(kind)
		item.Subtitle = subtitle.String
		item.ArtworkURI = artwork.String
		item.PlaybackURI = playback.String
		item.Duration = time.Duration(durationMs) * time.Millisecond
		item.AddedAt = time.UnixMilli(addedAt).UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate favorites")
	}
	return items, nil
}
