package session

import (
	"context"
	"fmt"

	"github.com/mgpai22/chitra/internal/config"
	"github.com/mgpai22/chitra/internal/imagesearch"
	"github.com/mgpai22/chitra/internal/suggest"
	"github.com/mgpai22/chitra/internal/transcribe"
)

// NewServices builds the providers selected in cfg. Missing credentials
// are reported together before any client is created.
func NewServices(ctx context.Context, cfg *config.Config) (Services, error) {
	if err := cfg.Validate(); err != nil {
		return Services{}, err
	}

	transcriber, err := transcribe.Factory(
		ctx,
		transcribe.Provider(cfg.Transcriber),
		cfg.Key(config.EnvVarFor(cfg.Transcriber)),
		transcribe.Options{},
	)
	if err != nil {
		return Services{}, fmt.Errorf("failed to create transcriber: %w", err)
	}

	suggester, err := suggest.Factory(
		ctx,
		suggest.Provider(cfg.Suggester),
		cfg.Key(config.EnvVarFor(cfg.Suggester)),
		suggest.Options{
			Model:     cfg.SuggestModel,
			Languages: suggest.NewLanguageDetector(),
		},
	)
	if err != nil {
		return Services{}, fmt.Errorf("failed to create suggester: %w", err)
	}

	searcher, err := imagesearch.Factory(
		imagesearch.Provider(cfg.Images),
		cfg.Key(config.EnvVarFor(cfg.Images)),
		imagesearch.Options{},
	)
	if err != nil {
		return Services{}, fmt.Errorf("failed to create image searcher: %w", err)
	}

	return Services{
		Transcriber: transcriber,
		Suggester:   suggester,
		Searcher:    searcher,
	}, nil
}
