// Package saavn provides a client for the JioSaavn catalog API.
package saavn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/saavnbox/internal/domain/catalog"
)

// DefaultBaseURL is the public catalog API.
const DefaultBaseURL = "https://jiosaavn-api-by-aneesh.vercel.app"

var (
	ErrNotFound    = errors.New("catalog record not found")
	ErrRateLimited = errors.New("catalog rate limit exceeded")
)

// statusError is a non-2xx response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("catalog API error: status %d", e.code)
}

// Client is a catalog API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration

	// Album lookups are cached; album track lists do not change.
	albumCache map[string]catalog.Album
	cacheMu    sync.RWMutex
}

// Config represents catalog client configuration.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration // Base delay, doubled on every retry
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.Wrap(err, "invalid base URL")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		albumCache: make(map[string]catalog.Album),
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "saavn"
}

// SearchSongs searches songs.
func (c *Client) SearchSongs(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Song], error) {
	var data searchData[songJSON]
	if err := c.search(ctx, "/api/search/songs", query, page, limit, &data); err != nil {
		return catalog.Page[catalog.Song]{}, err
	}
	return catalog.Page[catalog.Song]{
		Results: toSongs(data.Results),
		Total:   int(data.Total),
		Start:   int(data.Start),
	}, nil
}

// SearchAlbums searches albums.
func (c *Client) SearchAlbums(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Album], error) {
	var data searchData[albumJSON]
	if err := c.search(ctx, "/api/search/albums", query, page, limit, &data); err != nil {
		return catalog.Page[catalog.Album]{}, err
	}
	results := make([]catalog.Album, 0, len(data.Results))
	for _, a := range data.Results {
		results = append(results, a.toCatalog())
	}
	return catalog.Page[catalog.Album]{Results: results, Total: int(data.Total), Start: int(data.Start)}, nil
}

// SearchArtists searches artists.
func (c *Client) SearchArtists(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Artist], error) {
	var data searchData[artistJSON]
	if err := c.search(ctx, "/api/search/artists", query, page, limit, &data); err != nil {
		return catalog.Page[catalog.Artist]{}, err
	}
	results := make([]catalog.Artist, 0, len(data.Results))
	for _, a := range data.Results {
		results = append(results, a.toCatalog())
	}
	return catalog.Page[catalog.Artist]{Results: results, Total: int(data.Total), Start: int(data.Start)}, nil
}

// SearchPlaylists searches playlists.
func (c *Client) SearchPlaylists(ctx context.Context, query string, page, limit int) (catalog.Page[catalog.Playlist], error) {
	var data searchData[playlistJSON]
	if err := c.search(ctx, "/api/search/playlists", query, page, limit, &data); err != nil {
		return catalog.Page[catalog.Playlist]{}, err
	}
	results := make([]catalog.Playlist, 0, len(data.Results))
	for _, p := range data.Results {
		results = append(results, p.toCatalog())
	}
	return catalog.Page[catalog.Playlist]{Results: results, Total: int(data.Total), Start: int(data.Start)}, nil
}

// GetSong retrieves one song.
func (c *Client) GetSong(ctx context.Context, id string) (catalog.Song, error) {
	if id == "" {
		return catalog.Song{}, errors.New("song id is required")
	}

	var songs []songJSON
	if err := c.get(ctx, "/api/songs/"+url.PathEscape(id), nil, &songs); err != nil {
		return catalog.Song{}, errors.Wrapf(err, "failed to get song %s", id)
	}
	if len(songs) == 0 {
		return catalog.Song{}, errors.Wrapf(ErrNotFound, "song %s", id)
	}
	return songs[0].toCatalog(), nil
}

// GetAlbum retrieves an album with its songs.
func (c *Client) GetAlbum(ctx context.Context, id string) (catalog.Album, error) {
	if id == "" {
		return catalog.Album{}, errors.New("album id is required")
	}

	c.cacheMu.RLock()
	if album, ok := c.albumCache[id]; ok {
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("saavn: using cached album: id=%s", id)
		return album, nil
	}
	c.cacheMu.RUnlock()

	params := url.Values{}
	params.Set("id", id)
	params.Set("page", "1")
	params.Set("songCount", "100")

	var data albumJSON
	if err := c.get(ctx, "/api/albums", params, &data); err != nil {
		return catalog.Album{}, errors.Wrapf(err, "failed to get album %s", id)
	}
	album := data.toCatalog()

	c.cacheMu.Lock()
	c.albumCache[id] = album
	c.cacheMu.Unlock()
	zlog.Debug().Msgf("saavn: cached album: id=%s songs=%d", id, len(album.Songs))

	return album, nil
}

// GetArtist retrieves an artist with its top songs.
func (c *Client) GetArtist(ctx context.Context, id string) (catalog.Artist, error) {
	if id == "" {
		return catalog.Artist{}, errors.New("artist id is required")
	}

	params := url.Values{}
	params.Set("id", id)
	params.Set("page", "1")
	params.Set("songCount", "100")

	var data artistJSON
	if err := c.get(ctx, "/api/artists", params, &data); err != nil {
		return catalog.Artist{}, errors.Wrapf(err, "failed to get artist %s", id)
	}
	return data.toCatalog(), nil
}

// GetPlaylist retrieves one page of a playlist's songs.
func (c *Client) GetPlaylist(ctx context.Context, id string, page, limit int) (catalog.Playlist, error) {
	if id == "" {
		return catalog.Playlist{}, errors.New("playlist id is required")
	}
	page, limit = clampPage(page, limit, 100)

	params := url.Values{}
	params.Set("id", id)
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))

	var data playlistJSON
	if err := c.get(ctx, "/api/playlists", params, &data); err != nil {
		return catalog.Playlist{}, errors.Wrapf(err, "failed to get playlist %s", id)
	}
	return data.toCatalog(), nil
}

func (c *Client) search(ctx context.Context, path, query string, page, limit int, out any) error {
	if query == "" {
		return errors.New("search query is required")
	}
	page, limit = clampPage(page, limit, 50)

	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))

	if err := c.get(ctx, path, params, out); err != nil {
		return errors.Wrapf(err, "failed to search %q", query)
	}
	return nil
}

// get fetches path and decodes the envelope's data into out. Rate limiting,
// server errors and transport failures are retried with exponential backoff.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		body, err := c.fetch(ctx, reqURL)
		if err == nil {
			return decodeEnvelope(body, out)
		}
		lastErr = err

		if ctx.Err() != nil || !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			wait := c.retryDelay * time.Duration(1<<i)
			zlog.Warn().Msgf("saavn: request failed, retrying: url=%s attempt=%d/%d wait=%v err=%v",
				reqURL, i+1, c.maxRetries, wait, err)
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry cancelled")
			case <-time.After(wait):
			}
		}
	}

	var se *statusError
	if errors.As(lastErr, &se) && se.code == http.StatusTooManyRequests {
		return errors.Wrapf(ErrRateLimited, "after %d attempts", c.maxRetries)
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

func (c *Client) fetch(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrap(ErrNotFound, reqURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	return body, nil
}

func decodeEnvelope(body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	if env.Success != nil && !*env.Success {
		if env.Message == "" {
			env.Message = "request was not successful"
		}
		return errors.Newf("catalog API error: %s", env.Message)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return errors.Wrap(ErrNotFound, "empty response data")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.Wrap(err, "failed to parse response data")
	}
	return nil
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	// Transport failures
	return true
}

func clampPage(page, limit, maxLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}
