package connect

import (
	"context"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/saavnbox/internal/app/notification"
	"github.com/osa030/saavnbox/internal/app/playback"
	"github.com/osa030/saavnbox/internal/app/session"
	"github.com/osa030/saavnbox/internal/domain/entity"
	"github.com/osa030/saavnbox/internal/domain/track"
)

// PlayerServiceName is the fully-qualified name of the PlayerService.
const PlayerServiceName = "saavnbox.v1.PlayerService"

// PlayerService procedure paths.
const (
	PlayerPlaySingleProcedure      = "/saavnbox.v1.PlayerService/PlaySingle"
	PlayerPlayQueueProcedure       = "/saavnbox.v1.PlayerService/PlayQueue"
	PlayerAddToQueueProcedure      = "/saavnbox.v1.PlayerService/AddToQueue"
	PlayerPlayNextProcedure        = "/saavnbox.v1.PlayerService/PlayNext"
	PlayerPlayPrevProcedure        = "/saavnbox.v1.PlayerService/PlayPrev"
	PlayerTogglePlayProcedure      = "/saavnbox.v1.PlayerService/TogglePlay"
	PlayerPauseProcedure           = "/saavnbox.v1.PlayerService/Pause"
	PlayerToggleModeProcedure      = "/saavnbox.v1.PlayerService/ToggleMode"
	PlayerSeekProcedure            = "/saavnbox.v1.PlayerService/Seek"
	PlayerRemoveFromQueueProcedure = "/saavnbox.v1.PlayerService/RemoveFromQueue"
	PlayerClearQueueProcedure      = "/saavnbox.v1.PlayerService/ClearQueue"
	PlayerLoadEntityProcedure      = "/saavnbox.v1.PlayerService/LoadEntity"
	PlayerGetStateProcedure        = "/saavnbox.v1.PlayerService/GetState"
	PlayerSubscribeProcedure       = "/saavnbox.v1.PlayerService/Subscribe"
)

// PlayerService implements the transport and queue RPCs.
type PlayerService struct {
	session *session.Manager
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(session *session.Manager) *PlayerService {
	return &PlayerService{session: session}
}

// NewPlayerServiceHandler builds an HTTP handler serving every PlayerService
// procedure. It returns the path to mount the handler on.
func NewPlayerServiceHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(PlayerPlaySingleProcedure, connect.NewUnaryHandler(PlayerPlaySingleProcedure, svc.PlaySingle, opts...))
	mux.Handle(PlayerPlayQueueProcedure, connect.NewUnaryHandler(PlayerPlayQueueProcedure, svc.PlayQueue, opts...))
	mux.Handle(PlayerAddToQueueProcedure, connect.NewUnaryHandler(PlayerAddToQueueProcedure, svc.AddToQueue, opts...))
	mux.Handle(PlayerPlayNextProcedure, connect.NewUnaryHandler(PlayerPlayNextProcedure, svc.PlayNext, opts...))
	mux.Handle(PlayerPlayPrevProcedure, connect.NewUnaryHandler(PlayerPlayPrevProcedure, svc.PlayPrev, opts...))
	mux.Handle(PlayerTogglePlayProcedure, connect.NewUnaryHandler(PlayerTogglePlayProcedure, svc.TogglePlay, opts...))
	mux.Handle(PlayerPauseProcedure, connect.NewUnaryHandler(PlayerPauseProcedure, svc.Pause, opts...))
	mux.Handle(PlayerToggleModeProcedure, connect.NewUnaryHandler(PlayerToggleModeProcedure, svc.ToggleMode, opts...))
	mux.Handle(PlayerSeekProcedure, connect.NewUnaryHandler(PlayerSeekProcedure, svc.Seek, opts...))
	mux.Handle(PlayerRemoveFromQueueProcedure, connect.NewUnaryHandler(PlayerRemoveFromQueueProcedure, svc.RemoveFromQueue, opts...))
	mux.Handle(PlayerClearQueueProcedure, connect.NewUnaryHandler(PlayerClearQueueProcedure, svc.ClearQueue, opts...))
	mux.Handle(PlayerLoadEntityProcedure, connect.NewUnaryHandler(PlayerLoadEntityProcedure, svc.LoadEntity, opts...))
	mux.Handle(PlayerGetStateProcedure, connect.NewUnaryHandler(PlayerGetStateProcedure, svc.GetState, opts...))
	mux.Handle(PlayerSubscribeProcedure, connect.NewServerStreamHandler(PlayerSubscribeProcedure, svc.Subscribe, opts...))
	return "/" + PlayerServiceName + "/", mux
}

// PlaySingle replaces the queue with one track and plays it.
func (s *PlayerService) PlaySingle(
	ctx context.Context,
	req *connect.Request[TrackRef],
) (*connect.Response[StateResponse], error) {
	if req.Msg.SongID != "" {
		_, err := s.session.PlaySong(ctx, req.Msg.SongID)
		return s.reply(err)
	}
	t, err := refTrack(*req.Msg)
	if err != nil {
		return nil, err
	}
	return s.reply(s.session.PlaySingle(ctx, t))
}

// PlayQueue replaces the queue and plays from the start index.
func (s *PlayerService) PlayQueue(
	ctx context.Context,
	req *connect.Request[PlayQueueRequest],
) (*connect.Response[StateResponse], error) {
	return s.reply(s.session.PlayQueue(ctx, fromTracks(req.Msg.Tracks), req.Msg.StartIndex))
}

// AddToQueue appends a track, resolving it from the catalog when only an ID is given.
func (s *PlayerService) AddToQueue(
	ctx context.Context,
	req *connect.Request[TrackRef],
) (*connect.Response[StateResponse], error) {
	var t track.Track
	if req.Msg.SongID != "" {
		resolved, err := s.session.ResolveSong(ctx, req.Msg.SongID)
		if err != nil {
			return nil, toConnectError(err)
		}
		t = resolved
	} else {
		inline, err := refTrack(*req.Msg)
		if err != nil {
			return nil, err
		}
		t = inline
	}
	s.session.AddToQueue(t)
	return s.reply(nil)
}

// PlayNext advances by the current mode.
func (s *PlayerService) PlayNext(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StateResponse], error) {
	return s.reply(s.session.PlayNext(ctx))
}

// PlayPrev steps back.
func (s *PlayerService) PlayPrev(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StateResponse], error) {
	return s.reply(s.session.PlayPrev(ctx))
}

// TogglePlay flips between playing and paused.
func (s *PlayerService) TogglePlay(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StateResponse], error) {
	return s.reply(s.session.TogglePlay(ctx))
}

// Pause pauses playback.
func (s *PlayerService) Pause(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StateResponse], error) {
	return s.reply(s.session.Pause())
}

// ToggleMode sets the play mode, or cycles it when no mode is given.
func (s *PlayerService) ToggleMode(
	ctx context.Context,
	req *connect.Request[SetModeRequest],
) (*connect.Response[StateResponse], error) {
	if req.Msg.Mode == "" {
		s.session.ToggleMode()
		return s.reply(nil)
	}
	mode, err := playback.ParseMode(req.Msg.Mode)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	s.session.SetMode(mode)
	return s.reply(nil)
}

// Seek moves the playback position.
func (s *PlayerService) Seek(
	ctx context.Context,
	req *connect.Request[SeekRequest],
) (*connect.Response[StateResponse], error) {
	if req.Msg.PositionMs < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("position must not be negative"))
	}
	return s.reply(s.session.Seek(time.Duration(req.Msg.PositionMs) * time.Millisecond))
}

// RemoveFromQueue removes one queue entry.
func (s *PlayerService) RemoveFromQueue(
	ctx context.Context,
	req *connect.Request[RemoveRequest],
) (*connect.Response[StateResponse], error) {
	return s.reply(s.session.RemoveAt(req.Msg.Index))
}

// ClearQueue stops playback and empties the queue.
func (s *PlayerService) ClearQueue(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StateResponse], error) {
	s.session.ClearQueue()
	return s.reply(nil)
}

// LoadEntity loads an album, artist or playlist into the queue.
func (s *PlayerService) LoadEntity(
	ctx context.Context,
	req *connect.Request[LoadEntityRequest],
) (*connect.Response[LoadEntityResponse], error) {
	kind, err := entity.ParseKind(req.Msg.Kind)
	if err != nil {
		return nil, toConnectError(err)
	}
	e, err := s.session.LoadEntity(ctx, req.Msg.ID, kind)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&LoadEntityResponse{
		Entity: toEntity(e, true),
		State:  toState(s.session.State()),
	}), nil
}

// GetState returns the playback state and the queue.
func (s *PlayerService) GetState(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[GetStateResponse], error) {
	return connect.NewResponse(&GetStateResponse{
		State: toState(s.session.State()),
		Queue: toTracks(s.session.Queue()),
	}), nil
}

// Subscribe streams state changes until the client leaves or the session ends.
func (s *PlayerService) Subscribe(
	ctx context.Context,
	req *connect.Request[Empty],
	stream *connect.ServerStream[Notification],
) error {
	adapter := &notificationStreamAdapter{stream: stream}
	defer adapter.close()

	subscriptionID, err := s.session.Subscribe(adapter)
	if err != nil {
		return toConnectError(err)
	}
	defer s.session.Unsubscribe(subscriptionID)

	select {
	case <-ctx.Done():
	case <-s.session.Done():
	case <-s.session.SubscriptionDone(subscriptionID):
		if !s.session.Closed() {
			return connect.NewError(connect.CodeResourceExhausted, errors.New("subscriber fell behind"))
		}
	}
	return nil
}

// reply builds a state response. Recovered failures become a warning.
func (s *PlayerService) reply(err error) (*connect.Response[StateResponse], error) {
	return stateReply(s.session, err)
}

func stateReply(m *session.Manager, err error) (*connect.Response[StateResponse], error) {
	if err != nil && !recovered(err) {
		return nil, toConnectError(err)
	}
	res := &StateResponse{State: toState(m.State())}
	if err != nil {
		res.Warning = err.Error()
	}
	return connect.NewResponse(res), nil
}

// refTrack returns the inline track of a reference.
func refTrack(ref TrackRef) (track.Track, error) {
	if ref.Track == nil || ref.Track.ID == "" {
		return track.Track{}, connect.NewError(connect.CodeInvalidArgument, errors.New("track or songId is required"))
	}
	return fromTrack(*ref.Track), nil
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
// Sends are serialized and refused once the handler has returned.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[Notification]
	closed bool
}

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("stream closed")
	}
	return a.stream.Send(toNotification(n))
}

func (a *notificationStreamAdapter) close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}
