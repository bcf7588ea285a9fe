package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/osa030/saavnbox/internal/app/favorites"
	"github.com/osa030/saavnbox/internal/app/session"
	"github.com/osa030/saavnbox/internal/domain/track"
)

// LibraryServiceName is the fully-qualified name of the LibraryService.
const LibraryServiceName = "saavnbox.v1.LibraryService"

// LibraryService procedure paths.
const (
	LibrarySearchProcedure         = "/saavnbox.v1.LibraryService/Search"
	LibraryToggleFavoriteProcedure = "/saavnbox.v1.LibraryService/ToggleFavorite"
	LibraryIsFavoriteProcedure     = "/saavnbox.v1.LibraryService/IsFavorite"
	LibraryListFavoritesProcedure  = "/saavnbox.v1.LibraryService/ListFavorites"
	LibraryPlayFavoritesProcedure  = "/saavnbox.v1.LibraryService/PlayFavorites"
	LibraryDownloadProcedure       = "/saavnbox.v1.LibraryService/Download"
	LibraryGetDownloadProcedure    = "/saavnbox.v1.LibraryService/GetDownload"
	LibraryListDownloadsProcedure  = "/saavnbox.v1.LibraryService/ListDownloads"
)

// LibraryService implements search, favorites and download RPCs.
type LibraryService struct {
	session *session.Manager
}

// NewLibraryService creates a new LibraryService.
func NewLibraryService(session *session.Manager) *LibraryService {
	return &LibraryService{session: session}
}

// NewLibraryServiceHandler builds an HTTP handler serving every LibraryService
// procedure. It returns the path to mount the handler on.
func NewLibraryServiceHandler(svc *LibraryService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(LibrarySearchProcedure, connect.NewUnaryHandler(LibrarySearchProcedure, svc.Search, opts...))
	mux.Handle(LibraryToggleFavoriteProcedure, connect.NewUnaryHandler(LibraryToggleFavoriteProcedure, svc.ToggleFavorite, opts...))
	mux.Handle(LibraryIsFavoriteProcedure, connect.NewUnaryHandler(LibraryIsFavoriteProcedure, svc.IsFavorite, opts...))
	mux.Handle(LibraryListFavoritesProcedure, connect.NewUnaryHandler(LibraryListFavoritesProcedure, svc.ListFavorites, opts...))
	mux.Handle(LibraryPlayFavoritesProcedure, connect.NewUnaryHandler(LibraryPlayFavoritesProcedure, svc.PlayFavorites, opts...))
	mux.Handle(LibraryDownloadProcedure, connect.NewUnaryHandler(LibraryDownloadProcedure, svc.Download, opts...))
	mux.Handle(LibraryGetDownloadProcedure, connect.NewUnaryHandler(LibraryGetDownloadProcedure, svc.GetDownload, opts...))
	mux.Handle(LibraryListDownloadsProcedure, connect.NewUnaryHandler(LibraryListDownloadsProcedure, svc.ListDownloads, opts...))
	return "/" + LibraryServiceName + "/", mux
}

// Search queries the catalog.
func (s *LibraryService) Search(
	ctx context.Context,
	req *connect.Request[SearchRequest],
) (*connect.Response[SearchResponse], error) {
	kind, err := session.ParseSearchKind(req.Msg.Kind)
	if err != nil {
		return nil, toConnectError(err)
	}
	result, err := s.session.Search(ctx, kind, req.Msg.Query, req.Msg.Page, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toSearchResponse(result)), nil
}

// ToggleFavorite adds or removes a favorite.
func (s *LibraryService) ToggleFavorite(
	ctx context.Context,
	req *connect.Request[ToggleFavoriteRequest],
) (*connect.Response[ToggleFavoriteResponse], error) {
	item := fromFavorite(req.Msg.Item)
	if req.Msg.SongID != "" {
		t, err := s.session.ResolveSong(ctx, req.Msg.SongID)
		if err != nil {
			return nil, toConnectError(err)
		}
		item = favorites.FromTrack(t)
	}
	favorite, err := s.session.ToggleFavorite(ctx, item)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ToggleFavoriteResponse{Favorite: favorite}), nil
}

// IsFavorite reports whether an item is a favorite.
func (s *LibraryService) IsFavorite(
	ctx context.Context,
	req *connect.Request[IsFavoriteRequest],
) (*connect.Response[IsFavoriteResponse], error) {
	favorite, err := s.session.IsFavorite(ctx, req.Msg.ID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&IsFavoriteResponse{Favorite: favorite}), nil
}

// ListFavorites lists favorites in the order they were added.
func (s *LibraryService) ListFavorites(
	ctx context.Context,
	req *connect.Request[ListFavoritesRequest],
) (*connect.Response[ListFavoritesResponse], error) {
	items, err := s.session.ListFavorites(ctx, favorites.Kind(req.Msg.Kind))
	if err != nil {
		return nil, toConnectError(err)
	}
	res := &ListFavoritesResponse{Items: make([]Favorite, 0, len(items))}
	for _, item := range items {
		res.Items = append(res.Items, toFavorite(item))
	}
	return connect.NewResponse(res), nil
}

// PlayFavorites queues every favorite song and plays from the first.
func (s *LibraryService) PlayFavorites(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StateResponse], error) {
	return stateReply(s.session, s.session.PlayFavorites(ctx))
}

// Download starts a background download of a track, or of the current
// track when the reference is empty.
func (s *LibraryService) Download(
	ctx context.Context,
	req *connect.Request[TrackRef],
) (*connect.Response[DownloadResponse], error) {
	var t track.Track
	switch {
	case req.Msg.SongID != "":
		resolved, err := s.session.ResolveSong(ctx, req.Msg.SongID)
		if err != nil {
			return nil, toConnectError(err)
		}
		t = resolved
	case req.Msg.Track != nil:
		t = fromTrack(*req.Msg.Track)
	}

	taskID, err := s.session.Download(t)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DownloadResponse{TaskID: taskID}), nil
}

// GetDownload returns one download task.
func (s *LibraryService) GetDownload(
	ctx context.Context,
	req *connect.Request[GetDownloadRequest],
) (*connect.Response[DownloadTask], error) {
	task, err := s.session.DownloadTask(req.Msg.TaskID)
	if err != nil {
		return nil, toConnectError(err)
	}
	res := toDownloadTask(task)
	return connect.NewResponse(&res), nil
}

// ListDownloads lists download tasks.
func (s *LibraryService) ListDownloads(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[ListDownloadsResponse], error) {
	tasks := s.session.DownloadTasks()
	res := &ListDownloadsResponse{Tasks: make([]DownloadTask, 0, len(tasks))}
	for _, t := range tasks {
		res.Tasks = append(res.Tasks, toDownloadTask(t))
	}
	return connect.NewResponse(res), nil
}
