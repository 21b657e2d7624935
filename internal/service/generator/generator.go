package generator

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ifuryst/postpilot/internal/config"
	"github.com/ifuryst/postpilot/internal/service/content"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the backend named by cfg.Provider. The returned closer releases
// any client resources and is never nil.
func New(ctx context.Context, cfg config.GeneratorConfig, logger *zap.Logger) (content.Generator, io.Closer, error) {
	logger = logger.With(zap.String("provider", cfg.Provider))

	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, logger), nopCloser{}, nil
	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	default:
		return nil, nil, errors.Newf("unknown generator provider %q", cfg.Provider)
	}
}
