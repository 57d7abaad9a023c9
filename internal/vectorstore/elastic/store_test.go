package elastic

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/internal/testutil"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/es"
	"docqa-go/pkg/vector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeES 是一个只实现了本包所需接口的内存版 Elasticsearch。
type fakeES struct {
	mu      sync.Mutex
	indices map[string]map[string]model.EsSegment
}

func newFakeES(t *testing.T) (*fakeES, *es.Client) {
	t.Helper()
	f := &fakeES{indices: map[string]map[string]model.EsSegment{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	client, err := es.NewClient(config.ElasticsearchConfig{Addresses: srv.URL})
	require.NoError(t, err)
	return f, client
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	name := parts[0]
	docs, exists := f.indices[name]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodHead:
			if !exists {
				w.WriteHeader(http.StatusNotFound)
			}
		case http.MethodPut:
			f.indices[name] = map[string]model.EsSegment{}
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		case http.MethodDelete:
			if !exists {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception"},"status":404}`))
				return
			}
			delete(f.indices, name)
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		}
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception"},"status":404}`))
		return
	}

	switch parts[1] {
	case "_bulk":
		sc := bufio.NewScanner(r.Body)
		sc.Buffer(make([]byte, 1<<20), 1<<24)
		for sc.Scan() {
			var meta struct {
				Index struct {
					ID string `json:"_id"`
				} `json:"index"`
			}
			_ = json.Unmarshal(sc.Bytes(), &meta)
			if !sc.Scan() {
				break
			}
			var doc model.EsSegment
			_ = json.Unmarshal(sc.Bytes(), &doc)
			docs[meta.Index.ID] = doc
		}
		_, _ = w.Write([]byte(`{"errors":false,"items":[]}`))
	case "_count":
		_ = json.NewEncoder(w).Encode(map[string]int{"count": len(docs)})
	case "_search":
		var q struct {
			KNN struct {
				QueryVector   []float32 `json:"query_vector"`
				K             int       `json:"k"`
				NumCandidates int       `json:"num_candidates"`
			} `json:"knn"`
			Size int `json:"size"`
		}
		_ = json.NewDecoder(r.Body).Decode(&q)
		if q.KNN.NumCandidates > 10000 || q.KNN.K > q.KNN.NumCandidates {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"type":"illegal_argument_exception","reason":"[num_candidates] cannot exceed [10000]"},"status":400}`))
			return
		}
		type hit struct {
			Score  float64         `json:"_score"`
			Source model.EsSegment `json:"_source"`
		}
		hits := make([]hit, 0, len(docs))
		for _, d := range docs {
			score := (1 + vector.Cosine(q.KNN.QueryVector, d.Vector)) / 2
			d.Vector = nil
			hits = append(hits, hit{Score: score, Source: d})
		}
		sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
		if len(hits) > q.Size {
			hits = hits[:q.Size]
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"hits": map[string]interface{}{"hits": hits}})
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func segments(docID string, texts ...string) []model.Segment {
	out := make([]model.Segment, len(texts))
	for i, t := range texts {
		out[i] = model.Segment{ID: model.SegmentID(docID, i), DocumentID: docID, ChunkIndex: i, Page: 1, Text: t}
	}
	return out
}

var corpus = []string{
	"The capital of France is Paris.",
	"Bananas are rich in potassium.",
	"Mount Everest is the highest mountain above sea level.",
}

func TestBuildSearchClear(t *testing.T) {
	fake, client := newFakeES(t)
	s := NewStore(client, testutil.NewHashEmbedder(), "docqa")

	idx, err := s.Build(context.Background(), "abc", segments("abc", corpus...))
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Contains(t, fake.indices, "docqa-abc")

	results, err := idx.Search(context.Background(), "capital of France", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, corpus[0], results[0].Text)
	assert.Equal(t, "abc_0", results[0].ID)
	assert.LessOrEqual(t, results[0].Score, 1.0+1e-6)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	require.NoError(t, idx.Clear(context.Background()))
	assert.NotContains(t, fake.indices, "docqa-abc")

	err = idx.Clear(context.Background())
	assert.True(t, errors.Is(err, errs.ErrIndexDeletion))

	_, err = idx.Search(context.Background(), "Paris", 1)
	assert.True(t, errors.Is(err, errs.ErrIndexNotFound))
}

func TestSearchLargeK(t *testing.T) {
	_, client := newFakeES(t)
	store := NewStore(client, testutil.NewHashEmbedder(), "docqa")
	idx, err := store.Build(context.Background(), "doc-large-k", segments("doc-large-k", corpus...))
	require.NoError(t, err)

	for _, k := range []int{1000, 1001, 5000, 20000} {
		results, err := idx.Search(context.Background(), "capital of France", k)
		require.NoError(t, err, "k=%d", k)
		assert.Len(t, results, len(corpus))
	}
}

func TestBuildTwiceReplaces(t *testing.T) {
	fake, client := newFakeES(t)
	s := NewStore(client, testutil.NewHashEmbedder(), "")

	_, err := s.Build(context.Background(), "abc", segments("abc", corpus...))
	require.NoError(t, err)
	idx, err := s.Build(context.Background(), "abc", segments("abc", corpus[:1]...))
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	assert.Len(t, fake.indices["abc"], 1)
}

func TestBuildEmpty(t *testing.T) {
	fake, client := newFakeES(t)
	_, err := NewStore(client, testutil.NewHashEmbedder(), "docqa").Build(context.Background(), "abc", nil)
	assert.True(t, errors.Is(err, errs.ErrIndexBuild))
	assert.Empty(t, fake.indices)
}

func TestOpen(t *testing.T) {
	_, client := newFakeES(t)
	s := NewStore(client, testutil.NewHashEmbedder(), "docqa")

	_, err := s.Open(context.Background(), "abc")
	assert.True(t, errors.Is(err, errs.ErrIndexNotFound))

	_, err = s.Build(context.Background(), "abc", segments("abc", corpus...))
	require.NoError(t, err)
	idx, err := s.Open(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, "elasticsearch://docqa-abc", idx.Location())
}

func TestCosineFromScore(t *testing.T) {
	assert.InDelta(t, 1.0, cosineFromScore(1.0), 1e-9)
	assert.InDelta(t, 0.0, cosineFromScore(0.5), 1e-9)
	assert.InDelta(t, -1.0, cosineFromScore(0.0), 1e-9)
}
