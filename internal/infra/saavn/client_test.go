package saavn

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/saavnbox/internal/domain/catalog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL, RetryDelay: time.Millisecond})
	require.NoError(t, err)
	return client, server
}

func TestSearchSongs(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/search/songs", r.URL.Path)
		assert.Equal(t, "kesariya", r.URL.Query().Get("query"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		response := `{
			"success": true,
			"data": {
				"total": 42,
				"start": 6,
				"results": [
					{
						"id": "abc",
						"name": "Kesariya",
						"type": "song",
						"duration": 268,
						"label": "Sony Music",
						"explicitContent": false,
						"album": {"id": "al1", "name": "Brahmastra"},
						"artists": {"primary": [{"id": "a1", "name": "Arijit Singh"}, {"id": "a2", "name": "Pritam"}]},
						"image": [
							{"quality": "50x50", "url": "https://img/50.jpg"},
							{"quality": "150x150", "url": "https://img/150.jpg"},
							{"quality": "500x500", "url": "https://img/500.jpg"}
						],
						"downloadUrl": [
							{"quality": "12kbps", "url": "https://aac/12.mp4"},
							{"quality": "48kbps", "url": "https://aac/48.mp4"},
							{"quality": "96kbps", "url": "https://aac/96.mp4"},
							{"quality": "160kbps", "url": "https://aac/160.mp4"},
							{"quality": "320kbps", "url": "https://aac/320.mp4"}
						]
					},
					{
						"id": "old",
						"title": "Legacy Song",
						"duration": "187",
						"primaryArtists": "Shreya Ghoshal, Sonu Nigam",
						"album": "Legacy Album",
						"explicitContent": "1",
						"downloadUrl": [{"quality": "96kbps", "link": "https://aac/legacy.mp4"}]
					}
				]
			}
		}`
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, response)
	})

	page, err := client.SearchSongs(context.Background(), "kesariya", 2, 5)
	require.NoError(t, err)

	assert.Equal(t, 42, page.Total)
	assert.Equal(t, 6, page.Start)
	require.Len(t, page.Results, 2)

	song := page.Results[0]
	assert.Equal(t, "abc", song.ID)
	assert.Equal(t, "Kesariya", song.Name)
	assert.Equal(t, []string{"Arijit Singh", "Pritam"}, song.PrimaryArtists)
	assert.Equal(t, "Brahmastra", song.Album)
	assert.Equal(t, 268.0, song.Duration)
	assert.Equal(t, catalog.Seconds, song.Unit)
	require.Len(t, song.Downloads, 5)
	assert.Equal(t, "https://aac/320.mp4", song.Downloads[4].Href())
	assert.Equal(t, "https://img/500.jpg", song.Images[2].Href())

	legacy := page.Results[1]
	assert.Equal(t, "Legacy Song", legacy.Title)
	assert.Equal(t, 187.0, legacy.Duration)
	assert.Equal(t, []string{"Shreya Ghoshal", "Sonu Nigam"}, legacy.PrimaryArtists)
	assert.Equal(t, "Legacy Album", legacy.Album)
	assert.True(t, legacy.Explicit)
	assert.Equal(t, "https://aac/legacy.mp4", legacy.Downloads[0].Href())
}

func TestSearch_RequiresQuery(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.SearchAlbums(context.Background(), "", 1, 10)
	assert.Error(t, err)
}

func TestSearchPlaylists_ClampsLimit(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"success": true, "data": {"total": "1", "start": 0, "results": [{"id": "p1", "name": "Chill", "songCount": "25"}]}}`)
	})

	page, err := client.SearchPlaylists(context.Background(), "chill", 0, 500)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 25, page.Results[0].SongCount)
}

func TestGetAlbum(t *testing.T) {
	var requests atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/api/albums", r.URL.Path)
		assert.Equal(t, "al1", r.URL.Query().Get("id"))
		assert.Equal(t, "100", r.URL.Query().Get("songCount"))
		fmt.Fprint(w, `{
			"success": true,
			"data": {
				"id": "al1",
				"name": "Brahmastra",
				"year": 2022,
				"songCount": 2,
				"artists": {"primary": [{"name": "Pritam"}]},
				"songs": [
					{"id": "s1", "name": "Kesariya", "duration": null},
					{"id": "s2", "name": "Deva Deva", "duration": "279"}
				]
			}
		}`)
	})

	album, err := client.GetAlbum(context.Background(), "al1")
	require.NoError(t, err)
	assert.Equal(t, "Brahmastra", album.Name)
	assert.Equal(t, "2022", album.Year)
	assert.Equal(t, []string{"Pritam"}, album.PrimaryArtists)
	require.Len(t, album.Songs, 2)
	assert.Equal(t, 0.0, album.Songs[0].Duration)
	assert.Equal(t, 279.0, album.Songs[1].Duration)

	cached, err := client.GetAlbum(context.Background(), "al1")
	require.NoError(t, err)
	assert.Equal(t, album, cached)
	assert.Equal(t, int32(1), requests.Load())
}

func TestGetArtist(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/artists", r.URL.Path)
		fmt.Fprint(w, `{"success": true, "data": {"id": "ar1", "name": "Arijit Singh", "topSongs": [{"id": "s1", "name": "Tum Hi Ho"}]}}`)
	})

	artist, err := client.GetArtist(context.Background(), "ar1")
	require.NoError(t, err)
	assert.Equal(t, "Arijit Singh", artist.Name)
	require.Len(t, artist.TopSongs, 1)
	assert.Equal(t, "Tum Hi Ho", artist.TopSongs[0].Name)
}

func TestGetPlaylist(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/playlists", r.URL.Path)
		assert.Equal(t, "pl1", r.URL.Query().Get("id"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"success": true, "data": {"id": "pl1", "name": "Top 50", "description": "Weekly", "songs": [{"id": "s1", "name": "One"}]}}`)
	})

	playlist, err := client.GetPlaylist(context.Background(), "pl1", 1, 50)
	require.NoError(t, err)
	assert.Equal(t, "Top 50", playlist.Name)
	assert.Equal(t, "Weekly", playlist.Description)
	assert.Len(t, playlist.Songs, 1)
}

func TestGetSong(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/songs/s1":
			fmt.Fprint(w, `{"success": true, "data": [{"id": "s1", "name": "One", "duration": 200}]}`)
		default:
			fmt.Fprint(w, `{"success": true, "data": []}`)
		}
	})

	song, err := client.GetSong(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "One", song.Name)

	_, err = client.GetSong(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRetry(t *testing.T) {
	t.Run("rate limit then success", func(t *testing.T) {
		var requests atomic.Int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if requests.Add(1) < 3 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			fmt.Fprint(w, `{"success": true, "data": {"id": "ar1", "name": "Artist"}}`)
		})

		artist, err := client.GetArtist(context.Background(), "ar1")
		require.NoError(t, err)
		assert.Equal(t, "Artist", artist.Name)
		assert.Equal(t, int32(3), requests.Load())
	})

	t.Run("rate limit exhausted", func(t *testing.T) {
		var requests atomic.Int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := client.GetArtist(context.Background(), "ar1")
		assert.True(t, errors.Is(err, ErrRateLimited))
		assert.Equal(t, int32(3), requests.Load())
	})

	t.Run("not found is not retried", func(t *testing.T) {
		var requests atomic.Int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusNotFound)
		})

		_, err := client.GetAlbum(context.Background(), "nope")
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.Equal(t, int32(1), requests.Load())
	})

	t.Run("server error exhausted", func(t *testing.T) {
		var requests atomic.Int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := client.GetPlaylist(context.Background(), "pl1", 1, 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries exceeded")
		assert.Equal(t, int32(3), requests.Load())
	})

	t.Run("unsuccessful envelope", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"success": false, "message": "invalid id"}`)
		})

		_, err := client.GetArtist(context.Background(), "bad")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid id")
	})
}

func TestRetry_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, RetryDelay: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.GetArtist(ctx, "ar1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "rate limit", err: &statusError{code: http.StatusTooManyRequests}, expected: true},
		{name: "server error 500", err: &statusError{code: 500}, expected: true},
		{name: "server error 503", err: &statusError{code: 503}, expected: true},
		{name: "client error 400", err: &statusError{code: 400}, expected: false},
		{name: "not found", err: errors.Wrap(ErrNotFound, "x"), expected: false},
		{name: "transport error", err: errors.New("connection reset"), expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryable(tt.err))
		})
	}
}
