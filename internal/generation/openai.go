package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kkkkikiki/surveyreview/internal/logger"
)

// OpenAIOptions configures OpenAIClient.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
	RateLimit   float64 // requests per second, 0 disables
	RetryBase   time.Duration
	HTTPClient  *http.Client
}

// OpenAIClient calls the chat completions endpoint.
type OpenAIClient struct {
	log        *logger.Logger
	opts       OpenAIOptions
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewOpenAIClient validates opts and creates a client.
func NewOpenAIClient(opts OpenAIOptions, log *logger.Logger) (*OpenAIClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, &Error{Kind: KindMisconfigured, Err: errors.New("missing API key")}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	c := &OpenAIClient{
		log:        log.With("service", "OpenAIClient"),
		opts:       opts,
		httpClient: httpClient,
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Generate sends one completion request, retrying transient failures.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model:       c.opts.Model,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", c.contextError(ctx, err)
			}
		}

		content, retryAfter, err := c.doOnce(ctx, body)
		if err == nil {
			return content, nil
		}
		if ctx.Err() != nil {
			return "", c.contextError(ctx, err)
		}
		kind := Classify(err)
		if !retryable(kind) || attempt >= c.opts.MaxRetries {
			return "", err
		}

		wait := backoff(attempt, c.opts.RetryBase, 10*time.Second)
		if retryAfter > 0 {
			wait = retryAfter
		}
		c.log.Warn("Generation request retrying",
			"attempt", attempt+1,
			"max_retries", c.opts.MaxRetries,
			"kind", kind,
			"sleep", wait.String(),
		)
		if err := sleep(ctx, wait); err != nil {
			return "", c.contextError(ctx, err)
		}
	}
}

func (c *OpenAIClient) doOnce(ctx context.Context, body chatRequest) (string, time.Duration, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return "", 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return "", 0, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, err
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", 0, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", retryAfter(resp), statusError(resp.StatusCode, raw)
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", 0, fmt.Errorf("decode chat completion: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", 0, ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, 0, nil
}

func (c *OpenAIClient) contextError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return err
}

func statusError(code int, raw []byte) *Error {
	var body apiErrorBody
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}
	kind := KindForStatus(code)
	if body.Error.Code == "invalid_api_key" {
		kind = KindMisconfigured
	}
	return &Error{Kind: kind, StatusCode: code, Err: errors.New(msg)}
}

func retryAfter(resp *http.Response) time.Duration {
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
