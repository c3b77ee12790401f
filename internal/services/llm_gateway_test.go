package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"examprep/internal/config"
	"examprep/internal/observability"
	contextutils "examprep/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
}

func completionHandler(t *testing.T, byKey map[string]int, content string, seen *[]string, mu *sync.Mutex) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Authorization")[len("Bearer "):]
		mu.Lock()
		*seen = append(*seen, key)
		mu.Unlock()

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		if assert.Len(t, req.Messages, 1) {
			assert.Equal(t, "user", req.Messages[0].Role)
		}

		if status, ok := byKey[key]; ok && status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}
}

func newTestGateway(url string, keys ...string) *OpenAIGateway {
	return NewOpenAIGateway(config.LLMConfig{
		BaseURL:         url,
		CompletionsPath: "/chat/completions",
		Model:           "test-model",
		Temperature:     0.7,
	}, NewCredentialRotator(keys), nil, testLogger())
}

func TestCredentialRotator(t *testing.T) {
	r := NewCredentialRotator([]string{"a", " ", "b", "c"})
	require.Equal(t, 3, r.Size())

	idx, key := r.Current()
	assert.Equal(t, 0, idx)
	assert.Equal(t, "a", key)

	r.Advance()
	r.Advance()
	r.Advance()
	idx, key = r.Current()
	assert.Equal(t, 0, idx, "cursor wraps modulo pool size")
	assert.Equal(t, "a", key)
}

func TestCredentialRotator_ConcurrentAdvance(t *testing.T) {
	r := NewCredentialRotator([]string{"a", "b"})
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Advance()
			_, _ = r.Current()
		}()
	}
	wg.Wait()
	idx, _ := r.Current()
	assert.Equal(t, 0, idx)
}

func TestOpenAIGateway_Generate(t *testing.T) {
	t.Run("first key succeeds", func(t *testing.T) {
		var seen []string
		var mu sync.Mutex
		srv := httptest.NewServer(completionHandler(t, nil, `{"title":"x"}`, &seen, &mu))
		defer srv.Close()

		g := newTestGateway(srv.URL, "k1", "k2")
		out, err := g.Generate(context.Background(), "prompt")
		require.NoError(t, err)
		assert.Equal(t, `{"title":"x"}`, out)
		assert.Equal(t, []string{"k1"}, seen)
	})

	t.Run("rotates past rate limited and unauthorized keys", func(t *testing.T) {
		var seen []string
		var mu sync.Mutex
		srv := httptest.NewServer(completionHandler(t, map[string]int{
			"k1": http.StatusTooManyRequests,
			"k2": http.StatusUnauthorized,
		}, "ok", &seen, &mu))
		defer srv.Close()

		g := newTestGateway(srv.URL, "k1", "k2", "k3")
		out, err := g.Generate(context.Background(), "prompt")
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, []string{"k1", "k2", "k3"}, seen)

		// the shared cursor stays on the working key
		idx, _ := g.rotator.Current()
		assert.Equal(t, 2, idx)
	})

	t.Run("all keys fail", func(t *testing.T) {
		var seen []string
		var mu sync.Mutex
		srv := httptest.NewServer(completionHandler(t, map[string]int{
			"k1": http.StatusForbidden,
			"k2": http.StatusInternalServerError,
		}, "", &seen, &mu))
		defer srv.Close()

		g := newTestGateway(srv.URL, "k1", "k2")
		_, err := g.Generate(context.Background(), "prompt")
		require.Error(t, err)
		assert.True(t, contextutils.IsError(err, contextutils.ErrGenerationFailure))
		assert.Contains(t, err.Error(), "500")
		assert.Len(t, seen, 2, "each key is tried exactly once")
	})

	t.Run("empty content counts as failure", func(t *testing.T) {
		var seen []string
		var mu sync.Mutex
		srv := httptest.NewServer(completionHandler(t, nil, "  ", &seen, &mu))
		defer srv.Close()

		g := newTestGateway(srv.URL, "k1")
		_, err := g.Generate(context.Background(), "prompt")
		assert.True(t, contextutils.IsError(err, contextutils.ErrGenerationFailure))
	})

	t.Run("no credentials", func(t *testing.T) {
		g := newTestGateway("http://unused", "")
		_, err := g.Generate(context.Background(), "prompt")
		assert.True(t, contextutils.IsError(err, contextutils.ErrAIConfigInvalid))
	})

	t.Run("cancellation mid rotation reports attempts made", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			cancel()
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		g := newTestGateway(srv.URL, "k1", "k2", "k3")
		_, err := g.Generate(ctx, "prompt")
		require.Error(t, err)
		assert.True(t, contextutils.IsError(err, contextutils.ErrGenerationFailure))
		assert.Equal(t, int32(1), calls.Load())
		assert.Contains(t, err.Error(), "1 of 3 credentials")
		assert.NotContains(t, err.Error(), "all 3 credentials failed")
	})

	t.Run("cancelled context stops rotation", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		g := newTestGateway(srv.URL, "k1", "k2", "k3")
		_, err := g.Generate(ctx, "prompt")
		assert.True(t, contextutils.IsError(err, contextutils.ErrGenerationFailure))
		assert.Equal(t, int32(0), calls.Load())
	})
}
