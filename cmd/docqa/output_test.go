package main

import (
	"bytes"
	"strings"
	"testing"

	"docqa-go/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestPrintSourcesTruncatesToFirstLine(t *testing.T) {
	var buf bytes.Buffer
	long := strings.Repeat("é", 100)
	printSources(&buf, []model.ScoredSegment{
		{Segment: model.Segment{Page: 2, Text: "  The capital of France is Paris.\nsecond line"}, Score: 0.91},
		{Segment: model.Segment{Page: 5, Text: long}, Score: 0.5},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Equal(t, " 1. [page 2, score 0.910] The capital of France is Paris.", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], strings.Repeat("é", 80)+"..."))
}

func TestPrintDocument(t *testing.T) {
	var buf bytes.Buffer
	printDocument(&buf, &model.DocumentDTO{ID: 3, FileName: "geo.pdf", Status: "indexed", PageCount: 3, SegmentCount: 4, Location: "vector_store/abc"})
	assert.Equal(t, "#3 geo.pdf [indexed] pages=3 segments=4 vector_store/abc\n", buf.String())

	buf.Reset()
	printDocument(&buf, &model.DocumentDTO{ID: 4, FileName: "bad.pdf", Status: "failed", ErrorMsg: "no text"})
	assert.Equal(t, "#4 bad.pdf [failed] pages=0 segments=0 error=\"no text\"\n", buf.String())
}

func TestRootCommandRejectsMissingArgs(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"ingest"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}
