// Package generation talks to the external text-generation service.
package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/kkkkikiki/surveyreview/internal/config"
	"github.com/kkkkikiki/surveyreview/internal/logger"
)

// Request is one completion call.
type Request struct {
	System string
	Prompt string
}

// Generator produces review text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// New builds the generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.GenerationConfig, log *logger.Logger) (Generator, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(OpenAIOptions{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.GenerationTimeout(),
			MaxRetries:  cfg.MaxRetries,
			RateLimit:   cfg.RateLimit,
		}, log)
	case "gemini":
		return NewGeminiClient(ctx, GeminiOptions{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			MaxRetries:  cfg.MaxRetries,
		}, log)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

// backoff returns the wait before retry attempt n (0-based), capped at max.
func backoff(n int, base, max time.Duration) time.Duration {
	d := base << n
	if d <= 0 || d > max {
		return max
	}
	return d
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
