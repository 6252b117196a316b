package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/surveyreview/internal/apperr"
	"github.com/kkkkikiki/surveyreview/internal/logger"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"typed", fmt.Errorf("wrap: %w", &Error{Kind: KindRateLimited}), KindRateLimited},
		{"sentinel", ErrMisconfigured, KindMisconfigured},
		{"context deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout},
		{"message timeout", errors.New("Request TIMEOUT after 280s"), KindTimeout},
		{"message rate limit", errors.New("429 rate limit exceeded"), KindRateLimited},
		{"message quota", errors.New("You exceeded your current quota"), KindRateLimited},
		{"message api key", errors.New("Incorrect API key provided"), KindMisconfigured},
		{"other", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestAppError(t *testing.T) {
	assert.Equal(t, apperr.KindGenerationTimeout, AppError(ErrTimeout).Kind)
	assert.Equal(t, apperr.KindGenerationRateLimited, AppError(ErrRateLimited).Kind)
	assert.Equal(t, apperr.KindGenerationMisconfigured, AppError(ErrMisconfigured).Kind)
	assert.Equal(t, apperr.KindUnknown, AppError(ErrEmptyResponse).Kind)
}

func TestKindForStatus(t *testing.T) {
	assert.Equal(t, KindMisconfigured, KindForStatus(http.StatusUnauthorized))
	assert.Equal(t, KindMisconfigured, KindForStatus(http.StatusNotFound))
	assert.Equal(t, KindRateLimited, KindForStatus(http.StatusTooManyRequests))
	assert.Equal(t, KindTimeout, KindForStatus(http.StatusGatewayTimeout))
	assert.Equal(t, KindUnavailable, KindForStatus(http.StatusBadGateway))
	assert.Equal(t, KindUnknown, KindForStatus(http.StatusBadRequest))
}

func newTestClient(t *testing.T, url string, retries int) *OpenAIClient {
	t.Helper()
	c, err := NewOpenAIClient(OpenAIOptions{
		APIKey:     "sk-test",
		BaseURL:    url,
		MaxTokens:  600,
		MaxRetries: retries,
		RetryBase:  time.Millisecond,
	}, logger.Nop())
	require.NoError(t, err)
	return c
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": content}}},
	})
	return string(b)
}

func TestOpenAIGenerate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, completion("駅近で便利なお店でした。"))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL, 0).Generate(context.Background(), Request{System: "sys", Prompt: "user"})
	require.NoError(t, err)
	assert.Equal(t, "駅近で便利なお店でした。", out)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 600, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, chatMessage{Role: "system", Content: "sys"}, got.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "user"}, got.Messages[1])
}

func TestOpenAIRetries(t *testing.T) {
	t.Run("transient then success", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, completion("ok"))
		}))
		defer srv.Close()

		out, err := newTestClient(t, srv.URL, 3).Generate(context.Background(), Request{Prompt: "p"})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	})

	t.Run("rate limited exhausts retries", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"Rate limit reached","type":"requests"}}`)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL, 2).Generate(context.Background(), Request{Prompt: "p"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRateLimited)
		assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	})

	t.Run("auth failure is not retried", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","code":"invalid_api_key"}}`)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL, 3).Generate(context.Background(), Request{Prompt: "p"})
		assert.ErrorIs(t, err, ErrMisconfigured)
		assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	})
}

func TestOpenAIEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 3).Generate(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAITimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, srv.URL, 3).Generate(ctx, Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, apperr.KindGenerationTimeout, AppError(err).Kind)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIOptions{}, logger.Nop())
	assert.ErrorIs(t, err, ErrMisconfigured)

	_, err = NewGeminiClient(context.Background(), GeminiOptions{}, logger.Nop())
	assert.ErrorIs(t, err, ErrMisconfigured)
}
