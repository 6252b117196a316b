package generation

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/kkkkikiki/surveyreview/internal/logger"
)

// GeminiOptions configures GeminiClient.
type GeminiOptions struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	MaxRetries  int
}

// GeminiClient generates reviews with the Gemini API.
type GeminiClient struct {
	log    *logger.Logger
	client *genai.Client
	opts   GeminiOptions
}

// NewGeminiClient creates a Gemini-backed generator.
func NewGeminiClient(ctx context.Context, opts GeminiOptions, log *logger.Logger) (*GeminiClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, &Error{Kind: KindMisconfigured, Err: errors.New("missing API key")}
	}
	if opts.Model == "" || strings.HasPrefix(opts.Model, "gpt-") {
		opts.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &Error{Kind: KindMisconfigured, Err: err}
	}

	return &GeminiClient{
		log:    log.With("service", "GeminiClient"),
		client: client,
		opts:   opts,
	}, nil
}

// Generate sends one GenerateContent call, retrying transient failures.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(c.opts.Temperature)),
		MaxOutputTokens: int32(c.opts.MaxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	for attempt := 0; ; attempt++ {
		resp, err := c.client.Models.GenerateContent(ctx, c.opts.Model, contents, cfg)
		if err == nil {
			text := resp.Text()
			if strings.TrimSpace(text) == "" {
				return "", ErrEmptyResponse
			}
			return text, nil
		}

		gerr := geminiError(ctx, err)
		if !retryable(gerr.Kind) || attempt >= c.opts.MaxRetries || ctx.Err() != nil {
			return "", gerr
		}
		wait := backoff(attempt, time.Second, 10*time.Second)
		c.log.Warn("Generation request retrying", "attempt", attempt+1, "kind", gerr.Kind, "sleep", wait.String())
		if err := sleep(ctx, wait); err != nil {
			return "", geminiError(ctx, err)
		}
	}
}

// geminiError maps genai failures into the generation taxonomy.
func geminiError(ctx context.Context, err error) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiError(*apiErrPtr, err)
	}
	return &Error{Kind: Classify(err), Err: err}
}

func apiError(apiErr genai.APIError, err error) *Error {
	kind := KindForStatus(apiErr.Code)
	switch apiErr.Status {
	case "RESOURCE_EXHAUSTED":
		kind = KindRateLimited
	case "DEADLINE_EXCEEDED":
		kind = KindTimeout
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		kind = KindMisconfigured
	}
	if kind == KindUnknown && strings.Contains(strings.ToLower(apiErr.Message), "api key") {
		kind = KindMisconfigured
	}
	return &Error{Kind: kind, StatusCode: apiErr.Code, Err: err}
}
