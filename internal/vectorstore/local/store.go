// Package local 实现了基于本地目录的向量索引：每个存储是 <root>/<name>/index.db 的 SQLite 文件，
// 检索时在内存中做暴力余弦相似度计算。
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"docqa-go/internal/model"
	"docqa-go/internal/repository"
	"docqa-go/internal/vectorstore"
	"docqa-go/pkg/database"
	"docqa-go/pkg/embedding"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/log"
	"docqa-go/pkg/vector"

	"gorm.io/gorm"
)

const indexFile = "index.db"

// Store 在 root 目录下管理多个命名存储。
type Store struct {
	root     string
	embedder embedding.Client
}

// NewStore 创建一个本地存储。
func NewStore(root string, embedder embedding.Client) *Store {
	return &Store{root: root, embedder: embedder}
}

func (s *Store) Backend() string { return "local" }

func (s *Store) dir(name string) string {
	return filepath.Join(s.root, name)
}

// Build 先完成向量化再落盘，因此向量化失败不会留下任何文件。
func (s *Store) Build(ctx context.Context, name string, segments []model.Segment) (vectorstore.Index, error) {
	const op = "local.Build"
	if err := vectorstore.CheckBuildInput(op, name, segments); err != nil {
		return nil, err
	}
	log.Infof("[LocalStore] 开始构建索引, name: %s, 分块数: %d", name, len(segments))

	// 1. 向量化
	vecs, err := vectorstore.EmbedSegments(ctx, s.embedder, segments)
	if err != nil {
		return nil, err
	}

	// 2. 写入 SQLite
	dir := s.dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.E(errs.KindIndexBuild, op, err)
	}
	db, err := database.OpenSQLite(filepath.Join(dir, indexFile), nil)
	if err != nil {
		return nil, errs.E(errs.KindIndexBuild, op, err)
	}
	if err := db.AutoMigrate(&model.DocumentVector{}); err != nil {
		_ = database.Close(db)
		return nil, errs.E(errs.KindIndexBuild, op, err)
	}

	rows := make([]*model.DocumentVector, len(segments))
	entries := make([]entry, len(segments))
	for i, seg := range segments {
		rows[i] = &model.DocumentVector{
			VectorID:     seg.ID,
			DocumentID:   seg.DocumentID,
			ChunkIndex:   seg.ChunkIndex,
			Page:         seg.Page,
			TextContent:  seg.Text,
			Vector:       vector.Encode(vecs[i]),
			ModelVersion: s.embedder.Model(),
		}
		entries[i] = entry{segment: seg, vec: vecs[i]}
	}
	if err := repository.NewDocumentVectorRepository(db).ReplaceAll(rows); err != nil {
		_ = database.Close(db)
		return nil, errs.E(errs.KindIndexBuild, op, err)
	}
	log.Infof("[LocalStore] 索引构建完成, 位置: %s", dir)

	return &index{name: name, dir: dir, db: db, embedder: s.embedder, entries: dedupe(entries)}, nil
}

// Open 加载既有存储。目录或文件缺失、表结构不完整或数据损坏都视为 IndexNotFound。
func (s *Store) Open(ctx context.Context, name string) (vectorstore.Index, error) {
	const op = "local.Open"
	if err := vectorstore.ValidateName(name); err != nil {
		return nil, errs.E(errs.KindIndexNotFound, op, err)
	}
	dir := s.dir(name)
	path := filepath.Join(dir, indexFile)
	if _, err := os.Stat(path); err != nil {
		return nil, errs.E(errs.KindIndexNotFound, op, err)
	}

	db, err := database.OpenSQLite(path, nil)
	if err != nil {
		return nil, errs.E(errs.KindIndexNotFound, op, err)
	}
	entries, err := load(db, s.embedder.Model())
	if err != nil {
		_ = database.Close(db)
		return nil, errs.E(errs.KindIndexNotFound, op, err)
	}
	log.Infof("[LocalStore] 已打开索引, name: %s, 分块数: %d", name, len(entries))
	return &index{name: name, dir: dir, db: db, embedder: s.embedder, entries: entries}, nil
}

func load(db *gorm.DB, modelVersion string) ([]entry, error) {
	if !db.Migrator().HasTable(&model.DocumentVector{}) {
		return nil, errors.New("document_vectors table missing")
	}
	rows, err := repository.NewDocumentVectorRepository(db).FindAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("store contains no segments")
	}
	entries := make([]entry, 0, len(rows))
	for _, r := range rows {
		vec, err := vector.Decode(r.Vector)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", r.VectorID, err)
		}
		if r.ModelVersion != "" && r.ModelVersion != modelVersion {
			log.Warnf("[LocalStore] 分块 %s 由模型 %s 生成, 当前模型为 %s, 相似度可能不可比", r.VectorID, r.ModelVersion, modelVersion)
		}
		entries = append(entries, entry{segment: r.Segment(), vec: vec})
	}
	return entries, nil
}

type entry struct {
	segment model.Segment
	vec     []float32
}

// dedupe 保留同一 ID 的最后一次出现，与数据库中的主键语义一致。
func dedupe(entries []entry) []entry {
	pos := make(map[string]int, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if i, ok := pos[e.segment.ID]; ok {
			out[i] = e
			continue
		}
		pos[e.segment.ID] = len(out)
		out = append(out, e)
	}
	return out
}

type index struct {
	name     string
	dir      string
	embedder embedding.Client

	mu      sync.RWMutex
	db      *gorm.DB
	entries []entry
	cleared bool
}

func (i *index) Name() string     { return i.name }
func (i *index) Location() string { return i.dir }

func (i *index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

func (i *index) Search(ctx context.Context, query string, k int) ([]model.ScoredSegment, error) {
	const op = "local.Search"
	k = vectorstore.NormalizeK(k)

	i.mu.RLock()
	cleared := i.cleared
	i.mu.RUnlock()
	if cleared {
		return nil, errs.Ef(errs.KindIndexNotFound, op, "index %s has been cleared", i.name)
	}

	qv, err := vectorstore.EmbedQuery(ctx, i.embedder, query)
	if err != nil {
		return nil, err
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	results := make([]model.ScoredSegment, 0, len(i.entries))
	for _, e := range i.entries {
		if len(e.vec) != len(qv) {
			return nil, errs.Ef(errs.KindIndexNotFound, op, "query dimension %d does not match index dimension %d", len(qv), len(e.vec))
		}
		results = append(results, model.ScoredSegment{Segment: e.segment, Score: vector.Cosine(qv, e.vec)})
	}
	return vectorstore.RankTopK(results, k), nil
}

// Clear 关闭连接并删除存储目录。目录已被外部删除时同样返回 IndexDeletionError。
func (i *index) Clear(ctx context.Context) error {
	const op = "local.Clear"
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := database.Close(i.db); err != nil {
		log.Warnf("[LocalStore] 关闭索引数据库失败: %v", err)
	}
	i.db = nil
	i.entries = nil
	i.cleared = true

	if _, err := os.Stat(i.dir); err != nil {
		return errs.E(errs.KindIndexDeletion, op, err)
	}
	if err := os.RemoveAll(i.dir); err != nil {
		return errs.E(errs.KindIndexDeletion, op, err)
	}
	log.Infof("[LocalStore] 索引已删除, 位置: %s", i.dir)
	return nil
}

func (i *index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	err := database.Close(i.db)
	i.db = nil
	return err
}
