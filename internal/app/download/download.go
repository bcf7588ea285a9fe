// Package download saves track audio to the local music directory.
// Downloads run in the background and never touch playback state.
package download

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/saavnbox/internal/domain/track"
)

var (
	// ErrNoPlaybackURI is returned for tracks without an audio resource.
	ErrNoPlaybackURI = errors.New("track has no playback URI")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("downloader is closed")
)

const maxNameRunes = 120

// Config represents downloader configuration.
type Config struct {
	Dir        string
	MaxBytes   int64
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Downloader runs fire-and-forget downloads.
type Downloader struct {
	dir        string
	maxBytes   int64
	timeout    time.Duration
	httpClient *http.Client
	tasks      *TaskRegistry
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Reserves target paths so concurrent downloads never share a file.
	pathMu   sync.Mutex
	reserved map[string]bool

	mu     sync.Mutex
	closed bool
}

// New creates a new Downloader.
func New(cfg Config) *Downloader {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 200 << 20
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Downloader{
		dir:        cfg.Dir,
		maxBytes:   maxBytes,
		timeout:    timeout,
		httpClient: client,
		tasks:      NewTaskRegistry(),
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		reserved:   make(map[string]bool),
	}
}

// Enqueue starts downloading the track and returns the task ID immediately.
func (d *Downloader) Enqueue(t track.Track) (string, error) {
	if !t.Playable() {
		return "", errors.Wrapf(ErrNoPlaybackURI, "track %s", t.ID)
	}
	if _, err := url.ParseRequestURI(t.PlaybackURI); err != nil {
		return "", errors.Wrapf(err, "invalid playback URI for track %s", t.ID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", ErrClosed
	}

	id := d.tasks.Create(t, d.now())
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(id, t)
	}()

	zlog.Info().Msgf("download: queued: task=%s track=%s title=%q", id, t.ID, t.Title)
	return id, nil
}

// Task returns a snapshot of the task.
func (d *Downloader) Task(id string) (Task, error) {
	return d.tasks.Get(id)
}

// Tasks returns all tasks, oldest first.
func (d *Downloader) Tasks() []Task {
	return d.tasks.List()
}

// Prune forgets finished tasks older than age.
func (d *Downloader) Prune(age time.Duration) int {
	return d.tasks.Prune(d.now().Add(-age))
}

// Close cancels running downloads and waits for them to stop.
func (d *Downloader) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

func (d *Downloader) run(id string, t track.Track) {
	_ = d.tasks.Update(id, func(task *Task) { task.Status = StatusRunning })

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	dest, n, err := d.download(ctx, t)
	finished := d.now()
	if err != nil {
		zlog.Error().Msgf("download: failed: task=%s track=%s err=%v", id, t.ID, err)
		_ = d.tasks.Update(id, func(task *Task) {
			task.Status = StatusFailed
			task.Error = err.Error()
			task.FinishedAt = finished
		})
		return
	}

	zlog.Info().Msgf("download: completed: task=%s track=%s path=%s size=%s",
		id, t.ID, dest, humanize.IBytes(uint64(n)))
	_ = d.tasks.Update(id, func(task *Task) {
		task.Status = StatusCompleted
		task.Path = dest
		task.Bytes = n
		task.FinishedAt = finished
	})
}

func (d *Downloader) download(ctx context.Context, t track.Track) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.PlaybackURI, nil)
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to create request")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, errors.Newf("unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > d.maxBytes {
		return "", 0, errors.Newf("resource exceeds %s", humanize.IBytes(uint64(d.maxBytes)))
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", 0, errors.Wrap(err, "failed to create download directory")
	}

	ext := extension(t.PlaybackURI, resp.Header.Get("Content-Type"))
	dest := d.reserve(FileName(t) + ext)
	defer d.release(dest)

	tmp, err := os.CreateTemp(d.dir, ".download-*")
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to create temporary file")
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, d.maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to write file")
	}
	if n > d.maxBytes {
		return "", 0, errors.Newf("resource exceeds %s", humanize.IBytes(uint64(d.maxBytes)))
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", 0, errors.Wrap(err, "failed to move file into place")
	}
	return dest, n, nil
}

// reserve returns a free path in the download directory for name.
func (d *Downloader) reserve(name string) string {
	d.pathMu.Lock()
	defer d.pathMu.Unlock()

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(d.dir, name)
	for i := 2; ; i++ {
		if !d.reserved[candidate] {
			if _, err := os.Stat(candidate); os.IsNotExist(err) {
				d.reserved[candidate] = true
				return candidate
			}
		}
		candidate = filepath.Join(d.dir, fmt.Sprintf("%s (%d)%s", base, i, ext))
	}
}

func (d *Downloader) release(p string) {
	d.pathMu.Lock()
	defer d.pathMu.Unlock()
	delete(d.reserved, p)
}

// FileName returns a file-system safe base name for the track.
func FileName(t track.Track) string {
	name := t.Title
	if t.Subtitle != "" {
		name = t.Subtitle + " - " + t.Title
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r), unicode.IsControl(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	clean := strings.Trim(strings.TrimSpace(b.String()), ".")
	if runes := []rune(clean); len(runes) > maxNameRunes {
		clean = strings.TrimSpace(string(runes[:maxNameRunes]))
	}
	if clean == "" {
		clean = "track-" + t.ID
	}
	return clean
}

// extension picks the file extension from the URI path, then the content type.
func extension(uri, contentType string) string {
	if u, err := url.Parse(uri); err == nil {
		switch ext := strings.ToLower(path.Ext(u.Path)); ext {
		case ".mp3", ".mp4", ".m4a", ".aac", ".flac", ".wav", ".ogg", ".opus":
			return ext
		}
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "audio/mpeg":
			return ".mp3"
		case "audio/mp4", "audio/x-m4a", "video/mp4":
			return ".m4a"
		case "audio/flac", "audio/x-flac":
			return ".flac"
		case "audio/wav", "audio/x-wav", "audio/wave":
			return ".wav"
		case "audio/ogg":
			return ".ogg"
		}
	}
	return ".mp3"
}
