package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"docqa-go/pkg/errs"
	"docqa-go/pkg/llm"
)

// HashEmbedder 是确定性的词袋哈希向量器，词重叠越多的文本余弦相似度越高。
type HashEmbedder struct {
	Dim int
	// Err 不为空时所有调用都返回 EmbeddingServiceError。
	Err error

	mu    sync.Mutex
	calls int
	texts int
}

// NewHashEmbedder 创建一个 256 维的哈希向量器。
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{Dim: 256}
}

func (e *HashEmbedder) Model() string { return "hash-256" }

func (e *HashEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *HashEmbedder) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.texts += len(texts)
	e.mu.Unlock()
	if e.Err != nil {
		return nil, errs.E(errs.KindEmbeddingService, "hash.Embed", e.Err)
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.E(errs.KindEmbeddingService, "hash.Embed", err)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

// Calls 返回调用次数与累计嵌入的文本条数。
func (e *HashEmbedder) Calls() (calls, texts int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls, e.texts
}

func (e *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, e.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(e.Dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// FakeLLM 记录收到的消息，并返回预设答案或由 Reply 计算的答案。
type FakeLLM struct {
	Answer string
	Reply  func(messages []llm.Message) string
	Err    error

	mu       sync.Mutex
	Messages [][]llm.Message
	Params   []*llm.GenerationParams
}

func (f *FakeLLM) Generate(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.mu.Lock()
	f.Messages = append(f.Messages, messages)
	f.Params = append(f.Params, gen)
	f.mu.Unlock()
	if f.Err != nil {
		return "", errs.E(errs.KindGenerationService, "fake.Generate", f.Err)
	}
	if f.Reply != nil {
		return f.Reply(messages), nil
	}
	if f.Answer == "" {
		return "", errs.E(errs.KindGenerationService, "fake.Generate", errors.New("empty answer"))
	}
	return f.Answer, nil
}

func (f *FakeLLM) Model() string { return "fake-llm" }

// LastMessages 返回最后一次调用的消息。
func (f *FakeLLM) LastMessages() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Messages) == 0 {
		return nil
	}
	return f.Messages[len(f.Messages)-1]
}
