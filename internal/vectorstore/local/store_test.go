package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docqa-go/internal/model"
	"docqa-go/internal/testutil"
	"docqa-go/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func segments(docID string, texts ...string) []model.Segment {
	out := make([]model.Segment, len(texts))
	for i, t := range texts {
		out[i] = model.Segment{ID: model.SegmentID(docID, i), DocumentID: docID, ChunkIndex: i, Page: i + 1, Text: t}
	}
	return out
}

var corpus = []string{
	"The capital of France is Paris.",
	"Bananas are rich in potassium and grow in tropical climates.",
	"The Rust compiler enforces memory safety through ownership.",
	"Mount Everest is the highest mountain above sea level.",
	"Photosynthesis converts sunlight into chemical energy in plants.",
}

func TestBuildEmptyCreatesNothing(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, testutil.NewHashEmbedder())

	_, err := s.Build(context.Background(), "doc", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrIndexBuild))

	_, statErr := os.Stat(filepath.Join(root, "doc"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuildEmbeddingFailureCreatesNothing(t *testing.T) {
	root := t.TempDir()
	emb := testutil.NewHashEmbedder()
	emb.Err = errors.New("quota exceeded")

	_, err := NewStore(root, emb).Build(context.Background(), "doc", segments("a", corpus...))
	assert.True(t, errors.Is(err, errs.ErrEmbeddingService))
	_, statErr := os.Stat(filepath.Join(root, "doc"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSearchOrderingAndLimit(t *testing.T) {
	s := NewStore(t.TempDir(), testutil.NewHashEmbedder())
	idx, err := s.Build(context.Background(), "doc", segments("a", corpus...))
	require.NoError(t, err)
	defer idx.Close()
	assert.Equal(t, len(corpus), idx.Len())

	results, err := idx.Search(context.Background(), "What is the capital of France?", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, corpus[0], results[0].Text)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	all, err := idx.Search(context.Background(), "mountain", 0)
	require.NoError(t, err)
	assert.Len(t, all, len(corpus))

	_, err = idx.Search(context.Background(), "", 3)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestRecallOfSegmentText(t *testing.T) {
	s := NewStore(t.TempDir(), testutil.NewHashEmbedder())
	idx, err := s.Build(context.Background(), "doc", segments("a", corpus...))
	require.NoError(t, err)
	defer idx.Close()

	for _, text := range corpus {
		results, err := idx.Search(context.Background(), text, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, text, results[0].Text)
	}
}

func TestBuildTwiceDoesNotDuplicate(t *testing.T) {
	s := NewStore(t.TempDir(), testutil.NewHashEmbedder())
	first, err := s.Build(context.Background(), "doc", segments("a", corpus...))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := s.Build(context.Background(), "doc", segments("a", corpus...))
	require.NoError(t, err)
	require.NoError(t, second.Close())

	reopened, err := s.Open(context.Background(), "doc")
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, len(corpus), reopened.Len())
}

func TestOpenAfterBuild(t *testing.T) {
	root := t.TempDir()
	emb := testutil.NewHashEmbedder()
	built, err := NewStore(root, emb).Build(context.Background(), "doc", segments("a", corpus...))
	require.NoError(t, err)
	require.NoError(t, built.Close())

	idx, err := NewStore(root, emb).Open(context.Background(), "doc")
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Search(context.Background(), "highest mountain", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, corpus[3], results[0].Text)
	assert.Equal(t, 4, results[0].Page)
	assert.Equal(t, "a_3", results[0].ID)
}

func TestOpenMissingOrCorrupt(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, testutil.NewHashEmbedder())

	_, err := s.Open(context.Background(), "missing")
	assert.True(t, errors.Is(err, errs.ErrIndexNotFound))

	// 目录存在但没有索引文件
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))
	_, err = s.Open(context.Background(), "empty")
	assert.True(t, errors.Is(err, errs.ErrIndexNotFound))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "garbage"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "garbage", indexFile), []byte("not a database"), 0o644))
	_, err = s.Open(context.Background(), "garbage")
	assert.True(t, errors.Is(err, errs.ErrIndexNotFound))

	_, err = s.Open(context.Background(), "../escape")
	assert.True(t, errors.Is(err, errs.ErrIndexNotFound))
}

func TestClear(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, testutil.NewHashEmbedder())
	idx, err := s.Build(context.Background(), "doc", segments("a", corpus...))
	require.NoError(t, err)

	require.NoError(t, idx.Clear(context.Background()))
	_, statErr := os.Stat(filepath.Join(root, "doc"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = idx.Search(context.Background(), "Paris", 1)
	assert.True(t, errors.Is(err, errs.ErrIndexNotFound))

	_, err = s.Open(context.Background(), "doc")
	assert.True(t, errors.Is(err, errs.ErrIndexNotFound))
}

func TestClearExternallyRemoved(t *testing.T) {
	root := t.TempDir()
	idx, err := NewStore(root, testutil.NewHashEmbedder()).Build(context.Background(), "doc", segments("a", corpus...))
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.NoError(t, os.RemoveAll(filepath.Join(root, "doc")))

	err = idx.Clear(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrIndexDeletion))
}

func TestDedupeKeepsLast(t *testing.T) {
	in := []entry{
		{segment: model.Segment{ID: "x_0", Text: "old"}},
		{segment: model.Segment{ID: "x_1", Text: "one"}},
		{segment: model.Segment{ID: "x_0", Text: "new"}},
	}
	out := dedupe(in)
	require.Len(t, out, 2)
	assert.Equal(t, "new", out[0].segment.Text)
	assert.Equal(t, "one", out[1].segment.Text)
}
