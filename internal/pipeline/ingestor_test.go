package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/internal/testutil"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/pdf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIngestor(chunkSize int) *Ingestor {
	return NewIngestor(pdf.NewExtractor(), config.IngestConfig{ChunkSize: chunkSize, ChunkOverlap: 0})
}

func TestIngestThreePagePDF(t *testing.T) {
	data := testutil.BuildPDF([]string{
		"Introduction to European geography.",
		"The capital of France is Paris.",
		"Closing remarks about rivers and mountains.",
	})

	res, err := newTestIngestor(1000).Ingest(context.Background(), model.SourceDocument{FileName: "geo.pdf", Data: data})
	require.NoError(t, err)
	assert.Equal(t, 3, res.PageCount)

	var hits []model.Segment
	for i, seg := range res.Segments {
		assert.Equal(t, i, seg.ChunkIndex)
		assert.Equal(t, FileMD5(data), seg.DocumentID)
		assert.Equal(t, model.SegmentID(seg.DocumentID, i), seg.ID)
		if strings.Contains(seg.Text, "The capital of France is Paris") {
			hits = append(hits, seg)
		}
	}
	require.Len(t, hits, 1)
	assert.Equal(t, 2, hits[0].Page)
}

func TestIngestRejectsNonPDF(t *testing.T) {
	_, err := newTestIngestor(1000).Ingest(context.Background(), model.SourceDocument{
		FileName: "notes.pdf",
		Data:     []byte("just some plain text, definitely not a pdf"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUnreadableDocument))
}

func TestIngestRejectsEmptyAndTextlessDocuments(t *testing.T) {
	ing := newTestIngestor(1000)

	_, err := ing.Ingest(context.Background(), model.SourceDocument{FileName: "empty.pdf"})
	assert.True(t, errors.Is(err, errs.ErrUnreadableDocument))

	scanned := testutil.BuildPDF([]string{"", ""})
	_, err = ing.Ingest(context.Background(), model.SourceDocument{FileName: "scan.pdf", Data: scanned})
	assert.True(t, errors.Is(err, errs.ErrUnreadableDocument))
}

func TestIngestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	data := testutil.BuildPDF([]string{"Hello from a file on disk."})
	require.NoError(t, os.WriteFile(path, data, 0o644))

	res, doc, err := newTestIngestor(1000).IngestFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "doc.pdf", doc.FileName)
	assert.Equal(t, FileMD5(data), doc.FileMD5)
	require.Len(t, res.Segments, 1)
	assert.Contains(t, res.Segments[0].Text, "Hello from a file on disk.")

	_, _, err = newTestIngestor(1000).IngestFile(context.Background(), filepath.Join(dir, "missing.pdf"))
	assert.True(t, errors.Is(err, errs.ErrUnreadableDocument))
}

type failingExtractor struct{ err error }

func (f failingExtractor) ExtractPages(context.Context, []byte, string) ([]model.Page, error) {
	return nil, f.err
}

func TestIngestPropagatesCancellation(t *testing.T) {
	ing := NewIngestor(failingExtractor{err: context.Canceled}, config.IngestConfig{ChunkSize: 100})
	_, err := ing.Ingest(context.Background(), model.SourceDocument{FileName: "a.pdf", Data: []byte("%PDF-")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, errs.ErrUnreadableDocument))
}

func TestIsPDFName(t *testing.T) {
	assert.True(t, IsPDFName("a.PDF"))
	assert.False(t, IsPDFName("a.txt"))
}
