package session

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/saavnbox/internal/app/download"
	"github.com/osa030/saavnbox/internal/app/favorites"
	"github.com/osa030/saavnbox/internal/app/playback"
	"github.com/osa030/saavnbox/internal/app/provider"
	"github.com/osa030/saavnbox/internal/infra/audio"
	"github.com/osa030/saavnbox/internal/infra/config"
	"github.com/osa030/saavnbox/internal/infra/sqlite"
)

// NewManagerFromConfig wires the catalog chain, the output, favorites and
// downloads from configuration.
func NewManagerFromConfig(ctx context.Context, cfg *config.Config) (*Manager, error) {
	mode, err := playback.ParseMode(cfg.Player.Mode)
	if err != nil {
		return nil, errors.Wrap(err, "invalid player mode")
	}

	chain, err := provider.NewProviderChainFromConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create catalog provider chain")
	}

	db, err := sqlite.Open(cfg.Favorites.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open favorites database")
	}

	out, err := NewOutput(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	m, err := NewManager(Options{
		Catalog:   chain,
		Output:    out,
		Favorites: favorites.NewStore(db.Favorites()),
		Downloader: download.New(download.Config{
			Dir:      cfg.Download.Dir,
			MaxBytes: cfg.Download.MaxBytes,
			Timeout:  cfg.DownloadTimeout(),
		}),
		DownloadRetention: cfg.DownloadRetention(),
		Mode:              mode,
		EventBuffer:       cfg.Player.EventBuffer,
		PlaylistPageSize:  cfg.Catalog.PlaylistPageSize,
		SearchLimit:       cfg.Catalog.SearchLimit,
		Closers:           []func() error{db.Close},
	})
	if err != nil {
		out.Close()
		db.Close()
		return nil, err
	}

	zlog.Info().Msgf("session configured: output=%s providers=%v favorites=%s downloads=%s",
		cfg.Player.Output, chain.Providers(), cfg.Favorites.DBPath, cfg.Download.Dir)
	return m, nil
}

// NewOutput creates the configured audio output.
func NewOutput(cfg *config.Config) (playback.Output, error) {
	switch cfg.Player.Output {
	case "clock", "":
		return audio.NewClock(audio.ClockConfig{
			TickInterval: cfg.TickInterval(),
			EventBuffer:  cfg.Player.EventBuffer,
		}), nil
	case "speaker":
		return audio.NewSpeaker(audio.SpeakerConfig{
			MaxBytes:     cfg.Player.MaxSourceBytes,
			TickInterval: cfg.TickInterval(),
			EventBuffer:  cfg.Player.EventBuffer,
		}), nil
	default:
		return nil, errors.Newf("unsupported output: %s", cfg.Player.Output)
	}
}
