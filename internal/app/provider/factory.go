package provider

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/saavnbox/internal/infra/config"
	"github.com/osa030/saavnbox/internal/infra/saavn"
	"github.com/osa030/saavnbox/internal/infra/spotify"
)

var (
	_ Provider = (*saavn.Client)(nil)
	_ Provider = (*spotify.Client)(nil)
)

// SaavnSettings are the settings of a "saavn" provider.
type SaavnSettings struct {
	BaseURL      string `mapstructure:"base_url" default:"https://jiosaavn-api-by-aneesh.vercel.app" validate:"url"`
	TimeoutSec   int    `mapstructure:"timeout_sec" default:"10" validate:"gte=1,lte=120"`
	MaxRetries   int    `mapstructure:"max_retries" default:"3" validate:"gte=1,lte=10"`
	RetryDelayMs int    `mapstructure:"retry_delay_ms" default:"1000" validate:"gte=1"`
}

// SpotifySettings are the settings of a "spotify" provider.
type SpotifySettings struct {
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"`
	Market       string `mapstructure:"market" default:"IN" validate:"len=2"`
}

// NewProviderChainFromConfig creates a provider chain from configuration.
func NewProviderChainFromConfig(ctx context.Context, cfg *config.Config) (*ProviderChain, error) {
	if len(cfg.Catalog.Providers) == 0 {
		return nil, errors.New("no catalog providers configured")
	}

	var providers []ProviderWithMetadata

	for i, pcfg := range cfg.Catalog.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("creating catalog provider: index=%d type=%s", i+1, pcfg.Type)
		switch pcfg.Type {
		case "saavn":
			provider, err = newSaavnProvider(pcfg.Settings)

		case "spotify":
			provider, err = newSpotifyProvider(ctx, pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, ProviderWithMetadata{
			Provider:    provider,
			DisplayName: pcfg.DisplayName,
		})

		zlog.Info().Msgf("registered catalog provider: index=%d type=%s display_name=%s", i+1, pcfg.Type, pcfg.DisplayName)
	}

	return NewProviderChain(providers), nil
}

// decodeSettings decodes, defaults and validates provider settings.
func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.WeakDecode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

func newSaavnProvider(settings map[string]any) (*saavn.Client, error) {
	var s SaavnSettings
	if err := decodeSettings(settings, &s); err != nil {
		return nil, err
	}
	return saavn.New(saavn.Config{
		BaseURL:    s.BaseURL,
		Timeout:    time.Duration(s.TimeoutSec) * time.Second,
		MaxRetries: s.MaxRetries,
		RetryDelay: time.Duration(s.RetryDelayMs) * time.Millisecond,
	})
}

func newSpotifyProvider(ctx context.Context, settings map[string]any) (*spotify.Client, error) {
	var s SpotifySettings
	if err := decodeSettings(settings, &s); err != nil {
		return nil, err
	}
	return spotify.New(ctx, spotify.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		Market:       s.Market,
	})
}
