package normalize

import (
	"math"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/saavnbox/internal/domain/catalog"
	"github.com/osa030/saavnbox/internal/domain/entity"
	"github.com/osa030/saavnbox/internal/domain/track"
)

func links(prefix string, n int) []catalog.Link {
	out := make([]catalog.Link, n)
	for i := range out {
		out[i] = catalog.Link{URL: prefix + string(rune('0'+i))}
	}
	return out
}

func TestSong(t *testing.T) {
	tests := []struct {
		name     string
		raw      catalog.Song
		expected track.Track
		wantErr  error
	}{
		{
			name: "full record prefers title and top ranks",
			raw: catalog.Song{
				ID:             "s1",
				Name:           "Name",
				Title:          "Title",
				PrimaryArtists: []string{"Arijit Singh", "Other"},
				Label:          "T-Series",
				Images:         links("img", 3),
				Downloads:      links("dl", 5),
				Duration:       245.4,
				Unit:           catalog.Seconds,
			},
			expected: track.Track{
				ID:          "s1",
				Title:       "Title",
				Subtitle:    "Arijit Singh",
				ArtworkURI:  "img2",
				PlaybackURI: "dl4",
				Duration:    245 * time.Second,
				Kind:        track.KindSong,
			},
		},
		{
			name: "name fallback and label subtitle",
			raw: catalog.Song{
				ID:        "s2",
				Name:      "  Only Name ",
				Label:     "Label",
				Images:    links("img", 2),
				Downloads: links("dl", 3),
				Duration:  180000,
				Unit:      catalog.Milliseconds,
			},
			expected: track.Track{
				ID:          "s2",
				Title:       "Only Name",
				Subtitle:    "Label",
				ArtworkURI:  "img1",
				PlaybackURI: "dl2",
				Duration:    180 * time.Second,
				Kind:        track.KindSong,
			},
		},
		{
			name: "legacy link field, no downloads and no subtitle",
			raw: catalog.Song{
				ID:       "s3",
				Title:    "Legacy",
				Images:   []catalog.Link{{Link: "legacy-img"}},
				Duration: 3.5,
				Unit:     catalog.Minutes,
			},
			expected: track.Track{
				ID:         "s3",
				Title:      "Legacy",
				ArtworkURI: "legacy-img",
				Duration:   210 * time.Second,
				Kind:       track.KindSong,
			},
		},
		{
			name:    "missing title",
			raw:     catalog.Song{ID: "s4", Name: " ", Title: ""},
			wantErr: ErrMissingTitle,
		},
		{
			name:    "missing id",
			raw:     catalog.Song{Title: "No ID"},
			wantErr: ErrMissingID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Song(tt.raw)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSongs_DropsInvalid(t *testing.T) {
	raws := []catalog.Song{
		{ID: "a", Title: "A"},
		{ID: "b"},
		{ID: "c", Name: "C"},
	}

	tracks := Songs(raws)
	assert.Equal(t, []string{"a", "c"}, track.IDs(tracks))
}

func TestPick(t *testing.T) {
	tests := []struct {
		name     string
		links    []catalog.Link
		rank     int
		expected string
	}{
		{name: "empty", links: nil, rank: 4, expected: ""},
		{name: "preferred present", links: links("x", 5), rank: 4, expected: "x4"},
		{name: "preferred absent falls back to last", links: links("x", 2), rank: 4, expected: "x1"},
		{
			name:     "preferred blank falls back to last usable",
			links:    []catalog.Link{{URL: "x0"}, {URL: "x1"}, {URL: ""}},
			rank:     2,
			expected: "x1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, pick(tt.links, tt.rank))
		})
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		unit     catalog.DurationUnit
		expected time.Duration
	}{
		{name: "seconds rounds", value: 199.6, unit: catalog.Seconds, expected: 200 * time.Second},
		{name: "milliseconds", value: 215499, unit: catalog.Milliseconds, expected: 215 * time.Second},
		{name: "fractional minutes", value: 4.1, unit: catalog.Minutes, expected: 246 * time.Second},
		{name: "zero", value: 0, unit: catalog.Seconds, expected: 0},
		{name: "negative", value: -5, unit: catalog.Seconds, expected: 0},
		{name: "nan", value: math.NaN(), unit: catalog.Seconds, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Duration(tt.value, tt.unit))
		})
	}
}

func TestEntities(t *testing.T) {
	songs := []catalog.Song{{ID: "a", Title: "A"}, {ID: "b"}}

	album := Album(catalog.Album{ID: "al", Name: "Album", Label: "Label", Images: links("i", 3), Songs: songs})
	assert.Equal(t, entity.KindAlbum, album.Kind)
	assert.Equal(t, "Album", album.Title)
	assert.Equal(t, "Label", album.Subtitle)
	assert.Equal(t, "i2", album.ArtworkURI)
	assert.Equal(t, []string{"a"}, album.TrackIDs())

	artist := Artist(catalog.Artist{ID: "ar", Title: "Singer", TopSongs: songs})
	assert.Equal(t, entity.KindArtist, artist.Kind)
	assert.Equal(t, "Singer", artist.Title)
	assert.Equal(t, "Artist", artist.Subtitle)
	assert.Equal(t, []string{"a"}, artist.TrackIDs())

	withSongs := Artist(catalog.Artist{ID: "ar", Name: "Singer", Songs: []catalog.Song{{ID: "z", Title: "Z"}}, TopSongs: songs})
	assert.Equal(t, []string{"z"}, withSongs.TrackIDs())

	playlist := Playlist(catalog.Playlist{ID: "pl", Name: "Mix", Songs: songs})
	assert.Equal(t, entity.KindPlaylist, playlist.Kind)
	assert.Equal(t, "Playlist", playlist.Subtitle)
	assert.Len(t, playlist.Tracks, 1)
}
