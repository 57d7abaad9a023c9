package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/internal/pipeline"
	"docqa-go/internal/repository"
	"docqa-go/internal/service"
	"docqa-go/internal/session"
	"docqa-go/internal/testutil"
	"docqa-go/internal/vectorstore/local"
	"docqa-go/pkg/database"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/llm"
	"docqa-go/pkg/pdf"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	root := t.TempDir()
	db, err := database.OpenSQLite(filepath.Join(root, "docqa.db"), nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.DocumentRecord{}))
	t.Cleanup(func() { _ = database.Close(db) })

	ingestCfg := config.IngestConfig{ChunkSize: 1000, ChunkOverlap: 200, Mode: "sync", MaxUploadBytes: 1 << 20}
	retrieval := config.RetrievalConfig{TopK: 10}
	fakeLLM := &testutil.FakeLLM{Reply: func(msgs []llm.Message) string {
		if strings.Contains(msgs[0].Content, "Paris") {
			return "The capital of France is Paris."
		}
		return "Unknown."
	}}

	docs := service.NewDocumentService(
		pipeline.NewIngestor(pdf.NewExtractor(), ingestCfg),
		local.NewStore(filepath.Join(root, "vector_store"), testutil.NewHashEmbedder()),
		repository.NewDocumentRepository(db), nil, nil)
	history := service.NewConversationService(repository.NewMemoryConversationRepository())
	chat := service.NewChatService(fakeLLM, config.LLMPromptConfig{System: config.DefaultSystemPrompt}, retrieval, history)
	search := service.NewSearchService(retrieval)

	r := gin.New()
	RegisterRoutes(r, session.New(), ingestCfg, docs, chat, search, history)
	return r
}

func do(t *testing.T, r http.Handler, req *http.Request) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func uploadRequest(t *testing.T, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func askRequest(question string) *http.Request {
	body := fmt.Sprintf(`{"question":%q,"topK":10}`, question)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestDocumentLifecycle(t *testing.T) {
	r := newTestRouter(t)
	parisPDF := testutil.BuildPDF([]string{"Intro.", "The capital of France is Paris.", "Outro."})

	code, _ := do(t, r, askRequest("What is the capital of France?"))
	assert.Equal(t, http.StatusConflict, code)

	code, env := do(t, r, uploadRequest(t, "geo.pdf", parisPDF))
	require.Equal(t, http.StatusOK, code, env.Message)
	var outcome service.IngestOutcome
	require.NoError(t, json.Unmarshal(env.Data, &outcome))
	assert.Equal(t, "geo.pdf", outcome.Document.FileName)
	assert.Equal(t, "indexed", outcome.Document.Status)

	code, env = do(t, r, askRequest("What is the capital of France?"))
	require.Equal(t, http.StatusOK, code, env.Message)
	var answer model.Answer
	require.NoError(t, json.Unmarshal(env.Data, &answer))
	assert.Contains(t, answer.Text, "Paris")
	assert.NotEmpty(t, answer.Sources)

	code, env = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/chat/history", nil))
	require.Equal(t, http.StatusOK, code)
	var history []model.ChatRecord
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "What is the capital of France?", history[0].Question)

	code, env = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/search?query=capital%20of%20France&topK=1", nil))
	require.Equal(t, http.StatusOK, code)
	var results []model.ScoredSegment
	require.NoError(t, json.Unmarshal(env.Data, &results))
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Page)

	code, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/documents/current", nil))
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, r, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/current", nil))
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/documents/current", nil))
	assert.Equal(t, http.StatusConflict, code)

	code, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/chat/history", nil))
	assert.Equal(t, http.StatusConflict, code)
}

func TestUploadValidation(t *testing.T) {
	r := newTestRouter(t)

	code, _ := do(t, r, uploadRequest(t, "notes.txt", []byte("hello")))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, uploadRequest(t, "broken.pdf", []byte("not really a pdf")))
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = do(t, r, uploadRequest(t, "huge.pdf", bytes.Repeat([]byte("x"), 2<<20)))
	assert.Equal(t, http.StatusBadRequest, code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", nil)
	code, _ = do(t, r, req)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestBadRequests(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	code, _ := do(t, r, req)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/search", nil))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/search?query=x&topK=abc", nil))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		errs.E(errs.KindInvalidArgument, "op", nil):    http.StatusBadRequest,
		errs.E(errs.KindIndexNotFound, "op", nil):      http.StatusNotFound,
		errs.E(errs.KindNoActiveDocument, "op", nil):   http.StatusConflict,
		errs.E(errs.KindUnreadableDocument, "op", nil): http.StatusUnprocessableEntity,
		errs.E(errs.KindEmbeddingService, "op", nil):   http.StatusBadGateway,
		errs.E(errs.KindGenerationService, "op", nil):  http.StatusBadGateway,
		errs.E(errs.KindIndexBuild, "op", nil):         http.StatusInternalServerError,
		errors.New("boom"):                             http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusFor(err), err.Error())
	}
}
