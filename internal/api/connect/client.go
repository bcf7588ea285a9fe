package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client is a typed client for the player and library services.
type Client struct {
	playSingle      *connect.Client[TrackRef, StateResponse]
	playQueue       *connect.Client[PlayQueueRequest, StateResponse]
	addToQueue      *connect.Client[TrackRef, StateResponse]
	playNext        *connect.Client[Empty, StateResponse]
	playPrev        *connect.Client[Empty, StateResponse]
	togglePlay      *connect.Client[Empty, StateResponse]
	pause           *connect.Client[Empty, StateResponse]
	toggleMode      *connect.Client[SetModeRequest, StateResponse]
	seek            *connect.Client[SeekRequest, StateResponse]
	removeFromQueue *connect.Client[RemoveRequest, StateResponse]
	clearQueue      *connect.Client[Empty, StateResponse]
	loadEntity      *connect.Client[LoadEntityRequest, LoadEntityResponse]
	getState        *connect.Client[Empty, GetStateResponse]
	subscribe       *connect.Client[Empty, Notification]

	search         *connect.Client[SearchRequest, SearchResponse]
	toggleFavorite *connect.Client[ToggleFavoriteRequest, ToggleFavoriteResponse]
	isFavorite     *connect.Client[IsFavoriteRequest, IsFavoriteResponse]
	listFavorites  *connect.Client[ListFavoritesRequest, ListFavoritesResponse]
	playFavorites  *connect.Client[Empty, StateResponse]
	download       *connect.Client[TrackRef, DownloadResponse]
	getDownload    *connect.Client[GetDownloadRequest, DownloadTask]
	listDownloads  *connect.Client[Empty, ListDownloadsResponse]
}

// NewClient creates a client for the server at baseURL. A non-empty token is
// sent with every call.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{
		WithJSON(),
		connect.WithInterceptors(&clientTokenInterceptor{token: token}),
	}, opts...)

	return &Client{
		playSingle:      connect.NewClient[TrackRef, StateResponse](httpClient, baseURL+PlayerPlaySingleProcedure, opts...),
		playQueue:       connect.NewClient[PlayQueueRequest, StateResponse](httpClient, baseURL+PlayerPlayQueueProcedure, opts...),
		addToQueue:      connect.NewClient[TrackRef, StateResponse](httpClient, baseURL+PlayerAddToQueueProcedure, opts...),
		playNext:        connect.NewClient[Empty, StateResponse](httpClient, baseURL+PlayerPlayNextProcedure, opts...),
		playPrev:        connect.NewClient[Empty, StateResponse](httpClient, baseURL+PlayerPlayPrevProcedure, opts...),
		togglePlay:      connect.NewClient[Empty, StateResponse](httpClient, baseURL+PlayerTogglePlayProcedure, opts...),
		pause:           connect.NewClient[Empty, StateResponse](httpClient, baseURL+PlayerPauseProcedure, opts...),
		toggleMode:      connect.NewClient[SetModeRequest, StateResponse](httpClient, baseURL+PlayerToggleModeProcedure, opts...),
		seek:            connect.NewClient[SeekRequest, StateResponse](httpClient, baseURL+PlayerSeekProcedure, opts...),
		removeFromQueue: connect.NewClient[RemoveRequest, StateResponse](httpClient, baseURL+PlayerRemoveFromQueueProcedure, opts...),
		clearQueue:      connect.NewClient[Empty, StateResponse](httpClient, baseURL+PlayerClearQueueProcedure, opts...),
		loadEntity:      connect.NewClient[LoadEntityRequest, LoadEntityResponse](httpClient, baseURL+PlayerLoadEntityProcedure, opts...),
		getState:        connect.NewClient[Empty, GetStateResponse](httpClient, baseURL+PlayerGetStateProcedure, opts...),
		subscribe:       connect.NewClient[Empty, Notification](httpClient, baseURL+PlayerSubscribeProcedure, opts...),

		search:         connect.NewClient[SearchRequest, SearchResponse](httpClient, baseURL+LibrarySearchProcedure, opts...),
		toggleFavorite: connect.NewClient[ToggleFavoriteRequest, ToggleFavoriteResponse](httpClient, baseURL+LibraryToggleFavoriteProcedure, opts...),
		isFavorite:     connect.NewClient[IsFavoriteRequest, IsFavoriteResponse](httpClient, baseURL+LibraryIsFavoriteProcedure, opts...),
		listFavorites:  connect.NewClient[ListFavoritesRequest, ListFavoritesResponse](httpClient, baseURL+LibraryListFavoritesProcedure, opts...),
		playFavorites:  connect.NewClient[Empty, StateResponse](httpClient, baseURL+LibraryPlayFavoritesProcedure, opts...),
		download:       connect.NewClient[TrackRef, DownloadResponse](httpClient, baseURL+LibraryDownloadProcedure, opts...),
		getDownload:    connect.NewClient[GetDownloadRequest, DownloadTask](httpClient, baseURL+LibraryGetDownloadProcedure, opts...),
		listDownloads:  connect.NewClient[Empty, ListDownloadsResponse](httpClient, baseURL+LibraryListDownloadsProcedure, opts...),
	}
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], msg *Req) (*Res, error) {
	res, err := c.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

// Player

func (c *Client) PlaySingle(ctx context.Context, ref TrackRef) (*StateResponse, error) {
	return call(ctx, c.playSingle, &ref)
}

func (c *Client) PlayQueue(ctx context.Context, req PlayQueueRequest) (*StateResponse, error) {
	return call(ctx, c.playQueue, &req)
}

func (c *Client) AddToQueue(ctx context.Context, ref TrackRef) (*StateResponse, error) {
	return call(ctx, c.addToQueue, &ref)
}

func (c *Client) PlayNext(ctx context.Context) (*StateResponse, error) {
	return call(ctx, c.playNext, &Empty{})
}

func (c *Client) PlayPrev(ctx context.Context) (*StateResponse, error) {
	return call(ctx, c.playPrev, &Empty{})
}

func (c *Client) TogglePlay(ctx context.Context) (*StateResponse, error) {
	return call(ctx, c.togglePlay, &Empty{})
}

func (c *Client) Pause(ctx context.Context) (*StateResponse, error) {
	return call(ctx, c.pause, &Empty{})
}

// ToggleMode sets mode, or cycles to the next mode when mode is empty.
func (c *Client) ToggleMode(ctx context.Context, mode string) (*StateResponse, error) {
	return call(ctx, c.toggleMode, &SetModeRequest{Mode: mode})
}

func (c *Client) Seek(ctx context.Context, positionMs int64) (*StateResponse, error) {
	return call(ctx, c.seek, &SeekRequest{PositionMs: positionMs})
}

func (c *Client) RemoveFromQueue(ctx context.Context, index int) (*StateResponse, error) {
	return call(ctx, c.removeFromQueue, &RemoveRequest{Index: index})
}

func (c *Client) ClearQueue(ctx context.Context) (*StateResponse, error) {
	return call(ctx, c.clearQueue, &Empty{})
}

func (c *Client) LoadEntity(ctx context.Context, id, kind string) (*LoadEntityResponse, error) {
	return call(ctx, c.loadEntity, &LoadEntityRequest{ID: id, Kind: kind})
}

func (c *Client) GetState(ctx context.Context) (*GetStateResponse, error) {
	return call(ctx, c.getState, &Empty{})
}

// Subscribe opens the notification stream. The caller must close it.
func (c *Client) Subscribe(ctx context.Context) (*connect.ServerStreamForClient[Notification], error) {
	return c.subscribe.CallServerStream(ctx, connect.NewRequest(&Empty{}))
}

// Library

func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	return call(ctx, c.search, &req)
}

func (c *Client) ToggleFavorite(ctx context.Context, req ToggleFavoriteRequest) (*ToggleFavoriteResponse, error) {
	return call(ctx, c.toggleFavorite, &req)
}

func (c *Client) IsFavorite(ctx context.Context, id string) (*IsFavoriteResponse, error) {
	return call(ctx, c.isFavorite, &IsFavoriteRequest{ID: id})
}

func (c *Client) ListFavorites(ctx context.Context, kind string) (*ListFavoritesResponse, error) {
	return call(ctx, c.listFavorites, &ListFavoritesRequest{Kind: kind})
}

func (c *Client) PlayFavorites(ctx context.Context) (*StateResponse, error) {
	return call(ctx, c.playFavorites, &Empty{})
}

func (c *Client) Download(ctx context.Context, ref TrackRef) (*DownloadResponse, error) {
	return call(ctx, c.download, &ref)
}

func (c *Client) GetDownload(ctx context.Context, taskID string) (*DownloadTask, error) {
	return call(ctx, c.getDownload, &GetDownloadRequest{TaskID: taskID})
}

func (c *Client) ListDownloads(ctx context.Context) (*ListDownloadsResponse, error) {
	return call(ctx, c.listDownloads, &Empty{})
}
