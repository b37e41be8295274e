package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/avatar-synth/internal/did"
	"github.com/spigell/avatar-synth/internal/limiter"
	"github.com/spigell/avatar-synth/internal/replicate"
	"github.com/spigell/avatar-synth/internal/secrets"
	"github.com/spigell/avatar-synth/internal/synthesis"
	"github.com/spigell/avatar-synth/internal/veo"
)

// newSynthesizer builds the configured provider, wraps it with the submission
// limiter and attaches the polling policy.
func newSynthesizer(ctx context.Context, config *Config, logger *zap.Logger) (*synthesis.Synthesizer, error) {
	provider, err := newProvider(ctx, config, logger)
	if err != nil {
		return nil, err
	}

	l := limiter.New(config.RateLimit.PerMinute, config.RateLimit.Burst)
	provider = limiter.NewProvider(l, provider)

	return synthesis.New(provider, config.Polling, logger), nil
}

// newProvider never fails on missing credentials; those surface as
// configuration errors when the first operation starts.
func newProvider(ctx context.Context, config *Config, logger *zap.Logger) (synthesis.Provider, error) {
	name := strings.TrimSpace(strings.ToLower(config.Provider))

	switch name {
	case "", did.Name, "did":
		return newDIDProvider(config.DID, logger)
	case veo.Name:
		return newVeoProvider(ctx, config.Veo, logger)
	case replicate.Name:
		return newReplicateProvider(config.Replicate, logger)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
}

func newDIDProvider(cfg DIDConfig, logger *zap.Logger) (*did.Client, error) {
	apiKey, err := secrets.LoadOptional(secrets.Source{
		Name:  "d-id api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
	})
	if err != nil {
		return nil, err
	}

	client := did.New(logger.With(zap.String("provider", did.Name)), apiKey, did.Endpoint(cfg.Endpoint))

	if cfg.APIURL != "" {
		client.APIURL = strings.TrimRight(cfg.APIURL, "/")
	}
	if cfg.UserAgent != "" {
		client.UserAgent = cfg.UserAgent
	}
	if cfg.EncodeKey != nil {
		client.EncodeKey = *cfg.EncodeKey
	}
	if cfg.Voice.Provider != "" {
		client.Voice.Provider = cfg.Voice.Provider
	}
	if cfg.Voice.ID != "" {
		client.Voice.ID = cfg.Voice.ID
	}
	if cfg.Presenter.ID != "" {
		client.Presenter.ID = cfg.Presenter.ID
	}
	if cfg.Presenter.SourceURL != "" {
		client.Presenter.SourceURL = cfg.Presenter.SourceURL
	}
	if cfg.Presenter.BackgroundColor != "" {
		client.Presenter.BackgroundColor = cfg.Presenter.BackgroundColor
	}
	if cfg.ResultFormat != "" {
		client.Format.ResultFormat = cfg.ResultFormat
	}

	return client, nil
}

func newVeoProvider(ctx context.Context, cfg VeoConfig, logger *zap.Logger) (*veo.Generator, error) {
	apiKey, err := secrets.LoadOptional(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
	})
	if err != nil {
		return nil, err
	}

	return veo.NewGenerator(ctx, veo.Config{
		APIKey:          apiKey,
		Model:           cfg.Model,
		BaseURL:         cfg.BaseURL,
		AspectRatio:     cfg.AspectRatio,
		DurationSeconds: cfg.DurationSeconds,
		NegativePrompt:  cfg.NegativePrompt,
	}, logger.With(zap.String("provider", veo.Name)))
}

func newReplicateProvider(cfg ReplicateConfig, logger *zap.Logger) (*replicate.Client, error) {
	token, err := secrets.LoadOptional(secrets.Source{
		Name:  "replicate api token",
		Value: cfg.APIToken,
		File:  cfg.APITokenFile,
	})
	if err != nil {
		return nil, err
	}

	return replicate.New(replicate.Config{
		APIToken:   token,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		TextInput:  cfg.TextInput,
		VoiceInput: cfg.VoiceInput,
		Input:      cfg.Input,
	}, logger.With(zap.String("provider", replicate.Name)))
}
