package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/saavnbox/internal/app/download"
	"github.com/osa030/saavnbox/internal/app/favorites"
	"github.com/osa030/saavnbox/internal/app/loader"
	"github.com/osa030/saavnbox/internal/app/normalize"
	"github.com/osa030/saavnbox/internal/app/playback"
	"github.com/osa030/saavnbox/internal/app/provider"
	"github.com/osa030/saavnbox/internal/app/session"
	"github.com/osa030/saavnbox/internal/domain/entity"
	"github.com/osa030/saavnbox/internal/infra/saavn"
)

// recovered reports failures the player already recovered from by skipping
// or ignoring the command. They are returned as a warning, not an RPC error.
func recovered(err error) bool {
	return errors.IsAny(err, playback.ErrUnplayable, playback.ErrPlaybackRejected, playback.ErrEmptyQueue)
}

// toConnectError maps application errors to Connect codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}

	var code connect.Code
	switch {
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.IsAny(err,
		playback.ErrIndexOutOfRange,
		entity.ErrUnknownKind,
		session.ErrUnknownSearchKind,
		favorites.ErrInvalidItem,
		normalize.ErrMissingID,
		normalize.ErrMissingTitle,
		download.ErrNoPlaybackURI):
		code = connect.CodeInvalidArgument
	case errors.IsAny(err, saavn.ErrNotFound, download.ErrUnknownTask):
		code = connect.CodeNotFound
	case errors.IsAny(err, playback.ErrNoTrack, playback.ErrEmptyQueue, playback.ErrUnplayable, playback.ErrPlaybackRejected):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, loader.ErrStale):
		code = connect.CodeAborted
	case errors.Is(err, saavn.ErrRateLimited):
		code = connect.CodeResourceExhausted
	case errors.IsAny(err, loader.ErrEntityLoadFailed, provider.ErrNoProviders, playback.ErrClosed, download.ErrClosed):
		code = connect.CodeUnavailable
	case errors.IsAny(err, session.ErrFavoritesDisabled, session.ErrDownloadsDisabled):
		code = connect.CodeUnimplemented
	default:
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}
