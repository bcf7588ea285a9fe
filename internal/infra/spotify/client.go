// Package spotify provides a catalog client for the Spotify Web API.
package spotify

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/osa030/saavnbox/internal/domain/catalog"
)

// Client is a Spotify catalog client. Preview clips are the only audio the
// Web API exposes, so they become the playback URI.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
}

// New creates a new Spotify client authenticated with client credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return newClient(creds.Client(ctx), cfg.Market), nil
}

func newClient(httpClient *http.Client, market string, opts ...spotify.ClientOption) *Client {
	if market == "" {
		market = "IN"
	}
	return &Client{
		client:     spotify.New(httpClient, opts...),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "spotify"
}

// SearchSongs searches tracks.
func (c *Client) SearchSongs(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Song], error) {
	result, offset, err := c.search(ctx, query, spotify.SearchTypeTrack, page, limit)
	if err != nil {
		return catalog.Page[catalog.Song]{}, err
	}
	if result.Tracks == nil {
		return catalog.Page[catalog.Song]{Start: offset}, nil
	}

	songs := make([]catalog.Song, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		songs = append(songs, convertFullTrack(&result.Tracks.Tracks[i]))
	}
	return catalog.Page[catalog.Song]{Results: songs, Total: int(result.Tracks.Total), Start: offset}, nil
}

// SearchAlbums searches albums.
func (c *Client) SearchAlbums(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Album], error) {
	result, offset, err := c.search(ctx, query, spotify.SearchTypeAlbum, page, limit)
	if err != nil {
		return catalog.Page[catalog.Album]{}, err
	}
	if result.Albums == nil {
		return catalog.Page[catalog.Album]{Start: offset}, nil
	}

	albums := make([]catalog.Album, 0, len(result.Albums.Albums))
	for _, a := range result.Albums.Albums {
		albums = append(albums, convertSimpleAlbum(a))
	}
	return catalog.Page[catalog.Album]{Results: albums, Total: int(result.Albums.Total), Start: offset}, nil
}

// SearchArtists searches artists.
func (c *Client) SearchArtists(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Artist], error) {
	result, offset, err := c.search(ctx, query, spotify.SearchTypeArtist, page, limit)
	if err != nil {
		return catalog.Page[catalog.Artist]{}, err
	}
	if result.Artists == nil {
		return catalog.Page[catalog.Artist]{Start: offset}, nil
	}

	artists := make([]catalog.Artist, 0, len(result.Artists.Artists))
	for _, a := range result.Artists.Artists {
		artists = append(artists, catalog.Artist{
			ID:     string(a.ID),
			Name:   a.Name,
			Images: convertImages(a.Images),
		})
	}
	return catalog.Page[catalog.Artist]{Results: artists, Total: int(result.Artists.Total), Start: offset}, nil
}

// SearchPlaylists searches playlists.
func (c *Client) SearchPlaylists(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Playlist], error) {
	result, offset, err := c.search(ctx, query, spotify.SearchTypePlaylist, page, limit)
	if err != nil {
		return catalog.Page[catalog.Playlist]{}, err
	}
	if result.Playlists == nil {
		return catalog.Page[catalog.Playlist]{Start: offset}, nil
	}

	playlists := make([]catalog.Playlist, 0, len(result.Playlists.Playlists))
	for _, p := range result.Playlists.Playlists {
		playlists = append(playlists, catalog.Playlist{
			ID:          string(p.ID),
			Name:        p.Name,
			Description: p.Description,
			Owner:       p.Owner.DisplayName,
			Images:      convertImages(p.Images),
			SongCount:   int(p.Tracks.Total),
		})
	}
	return catalog.Page[catalog.Playlist]{Results: playlists, Total: int(result.Playlists.Total), Start: offset}, nil
}

// GetSong retrieves a track by ID, URL, or URI.
func (c *Client) GetSong(ctx context.Context, id string) (catalog.Song, error) {
	trackID := extractTrackID(id)
	if trackID == "" {
		return catalog.Song{}, errors.New("track id is required")
	}

	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(trackID), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return catalog.Song{}, errors.Wrap(err, "failed to get track")
	}
	return convertFullTrack(result), nil
}

// GetAlbum retrieves an album with its tracks.
func (c *Client) GetAlbum(ctx context.Context, id string) (catalog.Album, error) {
	albumID := extractID(id, "album")
	if albumID == "" {
		return catalog.Album{}, errors.New("album id is required")
	}

	var result *spotify.FullAlbum
	err := c.retry(func() error {
		a, err := c.client.GetAlbum(ctx, spotify.ID(albumID), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = a
		return nil
	})
	if err != nil {
		return catalog.Album{}, errors.Wrap(err, "failed to get album")
	}

	album := convertSimpleAlbum(result.SimpleAlbum)
	album.SongCount = len(result.Tracks.Tracks)
	album.Songs = make([]catalog.Song, 0, len(result.Tracks.Tracks))
	for _, t := range result.Tracks.Tracks {
		song := convertSimpleTrack(t)
		song.Album = result.Name
		song.Images = album.Images
		album.Songs = append(album.Songs, song)
	}
	return album, nil
}

// GetArtist retrieves an artist with its top tracks in the configured market.
func (c *Client) GetArtist(ctx context.Context, id string) (catalog.Artist, error) {
	artistID := extractID(id, "artist")
	if artistID == "" {
		return catalog.Artist{}, errors.New("artist id is required")
	}

	var artist *spotify.FullArtist
	err := c.retry(func() error {
		a, err := c.client.GetArtist(ctx, spotify.ID(artistID))
		if err != nil {
			return err
		}
		artist = a
		return nil
	})
	if err != nil {
		return catalog.Artist{}, errors.Wrap(err, "failed to get artist")
	}

	var top []spotify.FullTrack
	err = c.retry(func() error {
		t, err := c.client.GetArtistsTopTracks(ctx, spotify.ID(artistID), c.market)
		if err != nil {
			return err
		}
		top = t
		return nil
	})
	if err != nil {
		return catalog.Artist{}, errors.Wrap(err, "failed to get artist top tracks")
	}

	songs := make([]catalog.Song, 0, len(top))
	for i := range top {
		songs = append(songs, convertFullTrack(&top[i]))
	}
	return catalog.Artist{
		ID:       string(artist.ID),
		Name:     artist.Name,
		Images:   convertImages(artist.Images),
		TopSongs: songs,
	}, nil
}

// GetPlaylist retrieves one page of a playlist's tracks.
func (c *Client) GetPlaylist(ctx context.Context, id string, page, limit int) (catalog.Playlist, error) {
	playlistID := extractPlaylistID(id)
	if playlistID == "" {
		return catalog.Playlist{}, errors.New("invalid playlist URL")
	}
	page, limit = clampPage(page, limit, 100)

	var meta *spotify.FullPlaylist
	err := c.retry(func() error {
		p, err := c.client.GetPlaylist(ctx, spotify.ID(playlistID), spotify.Fields("id,name,description,owner,images"))
		if err != nil {
			return err
		}
		meta = p
		return nil
	})
	if err != nil {
		return catalog.Playlist{}, errors.Wrap(err, "failed to get playlist")
	}

	var items *spotify.PlaylistItemPage
	err = c.retry(func() error {
		p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(limit),
			spotify.Offset((page-1)*limit),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		items = p
		return nil
	})
	if err != nil {
		return catalog.Playlist{}, errors.Wrap(err, "failed to get playlist items")
	}

	songs := make([]catalog.Song, 0, len(items.Items))
	for _, item := range items.Items {
		// Only process tracks (exclude episodes)
		if item.Track.Track != nil && item.Track.Track.ID != "" {
			songs = append(songs, convertFullTrack(item.Track.Track))
		}
	}

	return catalog.Playlist{
		ID:          string(meta.ID),
		Name:        meta.Name,
		Description: meta.Description,
		Owner:       meta.Owner.DisplayName,
		Images:      convertImages(meta.Images),
		SongCount:   int(items.Total),
		Songs:       songs,
	}, nil
}

func (c *Client) search(ctx context.Context, query string, st spotify.SearchType, page, limit int) (*spotify.SearchResult, int, error) {
	if query == "" {
		return nil, 0, errors.New("search query is required")
	}
	page, limit = clampPage(page, limit, 50)
	offset := (page - 1) * limit

	var result *spotify.SearchResult
	err := c.retry(func() error {
		r, err := c.client.Search(ctx, query, st,
			spotify.Limit(limit),
			spotify.Offset(offset),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to search")
	}
	return result, offset, nil
}

func convertFullTrack(t *spotify.FullTrack) catalog.Song {
	song := convertSimpleTrack(t.SimpleTrack)
	song.Album = t.Album.Name
	song.Images = convertImages(t.Album.Images)
	return song
}

func convertSimpleTrack(t spotify.SimpleTrack) catalog.Song {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}

	var downloads []catalog.Link
	if t.PreviewURL != "" {
		downloads = []catalog.Link{{Quality: "preview", URL: t.PreviewURL}}
	}

	return catalog.Song{
		ID:             string(t.ID),
		Name:           t.Name,
		PrimaryArtists: artists,
		Downloads:      downloads,
		Duration:       float64(t.Duration),
		Unit:           catalog.Milliseconds,
		Explicit:       t.Explicit,
	}
}

func convertSimpleAlbum(a spotify.SimpleAlbum) catalog.Album {
	artists := make([]string, 0, len(a.Artists))
	for _, ar := range a.Artists {
		artists = append(artists, ar.Name)
	}
	year := a.ReleaseDate
	if len(year) > 4 {
		year = year[:4]
	}
	return catalog.Album{
		ID:             string(a.ID),
		Name:           a.Name,
		PrimaryArtists: artists,
		Year:           year,
		Images:         convertImages(a.Images),
	}
}

// convertImages reverses Spotify's widest-first order into the ascending
// quality order used by catalog links.
func convertImages(images []spotify.Image) []catalog.Link {
	links := make([]catalog.Link, 0, len(images))
	for i := len(images) - 1; i >= 0; i-- {
		links = append(links, catalog.Link{
			Quality: imageQuality(images[i]),
			URL:     images[i].URL,
		})
	}
	return links
}

func imageQuality(img spotify.Image) string {
	if img.Width == 0 {
		return ""
	}
	return strconv.Itoa(int(img.Width)) + "x" + strconv.Itoa(int(img.Height))
}

// retry retries an operation with exponential backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			zlog.Debug().Msgf("spotify: retrying request: attempt=%d err=%v", i+1, err)
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se spotify.Error
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	return extractID(input, "playlist")
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	return extractID(input, "track")
}

// extractID extracts the ID of a kind ("track", "album", "artist", "playlist")
// from a Spotify URL or URI. Anything else is assumed to be an ID already.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:<kind>:ID
	if prefix := "spotify:" + kind + ":"; strings.HasPrefix(input, prefix) {
		return strings.TrimPrefix(input, prefix)
	}

	// Handle URL format: https://open.spotify.com/<kind>/ID or https://open.spotify.com/intl-XX/<kind>/ID
	segment := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, segment) {
		parts := strings.Split(input, segment)
		// Remove query parameters and trailing slashes
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	return input
}

func clampPage(page, limit, maxLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}
