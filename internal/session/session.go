// Package session 定义了一次交互会话的上下文：当前激活的向量索引与对应的文档记录。
//
// Session 由服务端或命令行持有，业务层在单次调用期间借用它。同一会话内的上传、清除与问答
// 通过信号量串行执行。
package session

import (
	"context"
	"sync"

	"docqa-go/internal/model"
	"docqa-go/internal/vectorstore"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Session 保存一个会话的可变状态。
type Session struct {
	ID string

	sem *semaphore.Weighted

	mu       sync.RWMutex
	index    vectorstore.Index
	document *model.DocumentRecord
}

// New 创建一个没有激活文档的会话。
func New() *Session {
	return &Session{
		ID:  uuid.NewString(),
		sem: semaphore.NewWeighted(1),
	}
}

// Acquire 独占会话直到调用返回的 release。ctx 取消时放弃等待并返回 ctx.Err()。
func (s *Session) Acquire(ctx context.Context) (release func(), err error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { s.sem.Release(1) }) }, nil
}

// Index 返回当前激活的索引，没有时返回 nil。
func (s *Session) Index() vectorstore.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Document 返回当前激活文档记录的副本。
func (s *Session) Document() *model.DocumentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.document == nil {
		return nil
	}
	doc := *s.document
	return &doc
}

// Attach 将 idx 设为激活索引。调用方负责在此之前释放旧索引。
func (s *Session) Attach(idx vectorstore.Index, doc *model.DocumentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = idx
	s.document = doc
}

// Detach 解除当前索引并返回它。
func (s *Session) Detach() (vectorstore.Index, *model.DocumentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, doc := s.index, s.document
	s.index, s.document = nil, nil
	return idx, doc
}
