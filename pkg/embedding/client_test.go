package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"docqa-go/internal/config"
	"docqa-go/internal/testutil"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/retry"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

type embeddingsRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// newOpenAIServer 模拟 OpenAI 兼容的 /embeddings 接口，向量第一维为输入文本长度。
func newOpenAIServer(t *testing.T, status int, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			return
		}
		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data := make([]map[string]interface{}, 0, len(req.Input))
		// 逆序返回，验证按 index 还原顺序
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(req.Input[i])), 1, 0},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newOpenAITestClient(t *testing.T, srv *httptest.Server, batchSize, retries int) Client {
	t.Helper()
	c, err := NewClient(context.Background(), config.EmbeddingConfig{
		Provider:   "openai",
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
		Model:      "text-embedding-3-small",
		BatchSize:  batchSize,
		Timeout:    5 * time.Second,
		MaxRetries: retries,
	})
	require.NoError(t, err)
	return c
}

func TestOpenAIEmbeddingsBatchedAndOrdered(t *testing.T) {
	var calls int32
	srv := newOpenAIServer(t, http.StatusOK, &calls)
	c := newOpenAITestClient(t, srv, 2, 0)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := c.CreateEmbeddings(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, v := range vecs {
		assert.Equal(t, float32(len(texts[i])), v[0])
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "text-embedding-3-small", c.Model())

	one, err := c.CreateEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, float32(5), one[0])
}

func TestOpenAIEmbeddingAuthFailureIsNotRetried(t *testing.T) {
	var calls int32
	srv := newOpenAIServer(t, http.StatusUnauthorized, &calls)
	c := newOpenAITestClient(t, srv, 8, 3)

	_, err := c.CreateEmbedding(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrEmbeddingService))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenAIEmbeddingServerErrorRetriedWhenConfigured(t *testing.T) {
	var calls int32
	srv := newOpenAIServer(t, http.StatusInternalServerError, &calls)

	_, err := newOpenAITestClient(t, srv, 8, 0).CreateEmbedding(context.Background(), "x")
	assert.True(t, errors.Is(err, errs.ErrEmbeddingService))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	atomic.StoreInt32(&calls, 0)
	_, err = newOpenAITestClient(t, srv, 8, 1).CreateEmbedding(context.Background(), "x")
	assert.True(t, errors.Is(err, errs.ErrEmbeddingService))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGeminiClientErrorsArePermanent(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), retry.Policy{MaxRetries: 3, InitialInterval: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return classifyGeminiError(&googleapi.Error{Code: http.StatusForbidden, Message: "API key not valid"})
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = retry.Do(context.Background(), retry.Policy{MaxRetries: 1, InitialInterval: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return classifyGeminiError(&googleapi.Error{Code: http.StatusInternalServerError})
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestNewClientRejectsUnknownProviderAndMissingKey(t *testing.T) {
	_, err := NewClient(context.Background(), config.EmbeddingConfig{Provider: "cohere"})
	assert.Error(t, err)

	_, err = NewClient(context.Background(), config.EmbeddingConfig{Provider: "gemini", APIKeyEnv: "GOOGLE_API_KEY"})
	assert.Error(t, err)
}

func TestCachedClient(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	inner := testutil.NewHashEmbedder()
	c := NewCachedClient(inner, rdb, time.Hour)
	ctx := context.Background()

	first, err := c.CreateEmbeddings(ctx, []string{"alpha beta", "gamma"})
	require.NoError(t, err)
	_, texts := inner.Calls()
	assert.Equal(t, 2, texts)

	second, err := c.CreateEmbeddings(ctx, []string{"gamma", "alpha beta", "delta"})
	require.NoError(t, err)
	_, texts = inner.Calls()
	assert.Equal(t, 3, texts, "只有未命中的 delta 需要重新计算")
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[1])
	assert.True(t, mr.Exists(c.(*cachedClient).key("delta")))
}

func TestCachedClientDegradesWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	c := NewCachedClient(testutil.NewHashEmbedder(), rdb, time.Hour)
	vec, err := c.CreateEmbedding(context.Background(), "still works")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
}
