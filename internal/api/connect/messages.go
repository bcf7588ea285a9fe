package connect

import (
	"time"

	"github.com/osa030/saavnbox/internal/app/download"
	"github.com/osa030/saavnbox/internal/app/favorites"
	"github.com/osa030/saavnbox/internal/app/notification"
	"github.com/osa030/saavnbox/internal/app/playback"
	"github.com/osa030/saavnbox/internal/app/session"
	"github.com/osa030/saavnbox/internal/domain/entity"
	"github.com/osa030/saavnbox/internal/domain/track"
)

// Track is the wire form of a track.
type Track struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle,omitempty"`
	ArtworkURI  string `json:"artworkUri,omitempty"`
	PlaybackURI string `json:"playbackUri,omitempty"`
	Album       string `json:"album,omitempty"`
	DurationSec int64  `json:"durationSec"`
	Explicit    bool   `json:"explicit,omitempty"`
}

// Entity is the wire form of an album, artist or playlist.
type Entity struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	Title      string  `json:"title"`
	Subtitle   string  `json:"subtitle,omitempty"`
	ArtworkURI string  `json:"artworkUri,omitempty"`
	TrackCount int     `json:"trackCount"`
	Tracks     []Track `json:"tracks,omitempty"`
}

// State is the wire form of the playback state.
type State struct {
	CurrentTrack *Track  `json:"currentTrack,omitempty"`
	CurrentIndex int     `json:"currentIndex"`
	QueueLength  int     `json:"queueLength"`
	IsPlaying    bool    `json:"isPlaying"`
	Status       string  `json:"status"`
	PositionMs   int64   `json:"positionMs"`
	DurationMs   int64   `json:"durationMs"`
	Mode         string  `json:"mode"`
	ActiveEntity *Entity `json:"activeEntity,omitempty"`
}

// Favorite is the wire form of a favorite item.
type Favorite struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind,omitempty"`
	Title       string    `json:"title"`
	Subtitle    string    `json:"subtitle,omitempty"`
	ArtworkURI  string    `json:"artworkUri,omitempty"`
	PlaybackURI string    `json:"playbackUri,omitempty"`
	DurationSec int64     `json:"durationSec,omitempty"`
	AddedAt     time.Time `json:"addedAt,omitempty"`
}

// DownloadTask is the wire form of a download task.
type DownloadTask struct {
	ID      string `json:"id"`
	TrackID string `json:"trackId"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	Path    string `json:"path,omitempty"`
	Bytes   int64  `json:"bytes"`
	Error   string `json:"error,omitempty"`
}

// Notification is a pushed state change.
type Notification struct {
	SequenceNo uint64    `json:"sequenceNo"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	State      State     `json:"state"`
	Track      *Track    `json:"track,omitempty"`
	Queue      []Track   `json:"queue,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Requests and responses

type Empty struct{}

// TrackRef names a track either inline or by catalog song ID.
type TrackRef struct {
	Track  *Track `json:"track,omitempty"`
	SongID string `json:"songId,omitempty"`
}

type PlayQueueRequest struct {
	Tracks     []Track `json:"tracks"`
	StartIndex int     `json:"startIndex"`
}

type SeekRequest struct {
	PositionMs int64 `json:"positionMs"`
}

type SetModeRequest struct {
	Mode string `json:"mode,omitempty"` // Empty cycles to the next mode
}

type RemoveRequest struct {
	Index int `json:"index"`
}

type LoadEntityRequest struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type LoadEntityResponse struct {
	Entity Entity `json:"entity"`
	State  State  `json:"state"`
}

// StateResponse carries the state after a command. Warning reports a
// recovered failure such as a skipped unplayable track.
type StateResponse struct {
	State   State  `json:"state"`
	Warning string `json:"warning,omitempty"`
}

type GetStateResponse struct {
	State State   `json:"state"`
	Queue []Track `json:"queue"`
}

type SearchRequest struct {
	Kind  string `json:"kind,omitempty"`
	Query string `json:"query"`
	Page  int    `json:"page,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type SearchResponse struct {
	Kind     string   `json:"kind"`
	Total    int      `json:"total"`
	Start    int      `json:"start"`
	Tracks   []Track  `json:"tracks,omitempty"`
	Entities []Entity `json:"entities,omitempty"`
}

// ToggleFavoriteRequest names the item inline or as a catalog song ID.
type ToggleFavoriteRequest struct {
	Item   Favorite `json:"item"`
	SongID string   `json:"songId,omitempty"`
}

type ToggleFavoriteResponse struct {
	Favorite bool `json:"favorite"`
}

type IsFavoriteRequest struct {
	ID string `json:"id"`
}

type IsFavoriteResponse struct {
	Favorite bool `json:"favorite"`
}

type ListFavoritesRequest struct {
	Kind string `json:"kind,omitempty"`
}

type ListFavoritesResponse struct {
	Items []Favorite `json:"items"`
}

type DownloadResponse struct {
	TaskID string `json:"taskId"`
}

type GetDownloadRequest struct {
	TaskID string `json:"taskId"`
}

type ListDownloadsResponse struct {
	Tasks []DownloadTask `json:"tasks"`
}

// Conversions

func toTrack(t track.Track) Track {
	return Track{
		ID:          t.ID,
		Title:       t.Title,
		Subtitle:    t.Subtitle,
		ArtworkURI:  t.ArtworkURI,
		PlaybackURI: t.PlaybackURI,
		Album:       t.Album,
		DurationSec: t.DurationSeconds(),
		Explicit:    t.Explicit,
	}
}

func toTracks(ts []track.Track) []Track {
	out := make([]Track, len(ts))
	for i, t := range ts {
		out[i] = toTrack(t)
	}
	return out
}

func fromTrack(t Track) track.Track {
	return track.Track{
		ID:          t.ID,
		Title:       t.Title,
		Subtitle:    t.Subtitle,
		ArtworkURI:  t.ArtworkURI,
		PlaybackURI: t.PlaybackURI,
		Album:       t.Album,
		Duration:    time.Duration(t.DurationSec) * time.Second,
		Explicit:    t.Explicit,
		Kind:        track.KindSong,
	}
}

func fromTracks(ts []Track) []track.Track {
	out := make([]track.Track, len(ts))
	for i, t := range ts {
		out[i] = fromTrack(t)
	}
	return out
}

func toEntity(e entity.Entity, withTracks bool) Entity {
	msg := Entity{
		ID:         e.ID,
		Kind:       string(e.Kind),
		Title:      e.Title,
		Subtitle:   e.Subtitle,
		ArtworkURI: e.ArtworkURI,
		TrackCount: len(e.Tracks),
	}
	if withTracks {
		msg.Tracks = toTracks(e.Tracks)
	}
	return msg
}

func toState(s playback.PlaybackState) State {
	msg := State{
		CurrentIndex: s.CurrentIndex,
		QueueLength:  s.QueueLength,
		IsPlaying:    s.IsPlaying,
		Status:       s.Status().String(),
		PositionMs:   s.Position.Milliseconds(),
		DurationMs:   s.Duration.Milliseconds(),
		Mode:         s.Mode.String(),
	}
	if s.CurrentTrack != nil {
		t := toTrack(*s.CurrentTrack)
		msg.CurrentTrack = &t
	}
	if s.ActiveEntity != nil {
		e := toEntity(*s.ActiveEntity, false)
		msg.ActiveEntity = &e
	}
	return msg
}

func toFavorite(item favorites.Item) Favorite {
	return Favorite{
		ID:          item.ID,
		Kind:        string(item.Kind),
		Title:       item.Title,
		Subtitle:    item.Subtitle,
		ArtworkURI:  item.ArtworkURI,
		PlaybackURI: item.PlaybackURI,
		DurationSec: int64(item.Duration / time.Second),
		AddedAt:     item.AddedAt,
	}
}

func fromFavorite(f Favorite) favorites.Item {
	return favorites.Item{
		ID:          f.ID,
		Kind:        favorites.Kind(f.Kind),
		Title:       f.Title,
		Subtitle:    f.Subtitle,
		ArtworkURI:  f.ArtworkURI,
		PlaybackURI: f.PlaybackURI,
		Duration:    time.Duration(f.DurationSec) * time.Second,
	}
}

func toDownloadTask(t download.Task) DownloadTask {
	return DownloadTask{
		ID:      t.ID,
		TrackID: t.TrackID,
		Title:   t.Title,
		Status:  string(t.Status),
		Path:    t.Path,
		Bytes:   t.Bytes,
		Error:   t.Error,
	}
}

func toNotification(n *notification.Notification) *Notification {
	msg := &Notification{
		SequenceNo: n.SequenceNo,
		Type:       n.Type,
		Timestamp:  n.Timestamp,
		State:      toState(n.State),
		Reason:     n.Reason,
	}
	if n.Track != nil {
		t := toTrack(*n.Track)
		msg.Track = &t
	}
	if n.Queue != nil {
		msg.Queue = toTracks(n.Queue)
	}
	return msg
}

func toSearchResponse(r session.SearchResult) *SearchResponse {
	msg := &SearchResponse{
		Kind:  string(r.Kind),
		Total: r.Total,
		Start: r.Start,
	}
	if r.Tracks != nil {
		msg.Tracks = toTracks(r.Tracks)
	}
	for _, e := range r.Entities {
		msg.Entities = append(msg.Entities, toEntity(e, false))
	}
	return msg
}
