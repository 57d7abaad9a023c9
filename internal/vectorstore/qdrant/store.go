// Package qdrant 使用 Qdrant 集合实现向量索引，每个存储对应一个集合。
package qdrant

import (
	"context"
	"fmt"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/internal/vectorstore"
	"docqa-go/pkg/embedding"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/log"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const upsertBatchSize = 100

// pointIDSpace 是分块 ID 转换为 Qdrant UUID 时使用的命名空间。
var pointIDSpace = uuid.MustParse("6f1c4a52-2d0e-4a8e-9d7b-3c1b5e0f9a21")

// API 是本包用到的 Qdrant 客户端方法子集，*qdrant.Client 满足该接口。
type API interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Close() error
}

// NewClient 按配置连接 Qdrant 的 gRPC 端口。
func NewClient(cfg config.QdrantConfig) (*qdrant.Client, error) {
	port := cfg.Port
	if port == 0 {
		port = 6334
	}
	return qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
}

type Store struct {
	client   API
	embedder embedding.Client
	prefix   string
}

func NewStore(client API, embedder embedding.Client, prefix string) *Store {
	return &Store{client: client, embedder: embedder, prefix: prefix}
}

func (s *Store) Backend() string { return "qdrant" }

// Close 关闭底层连接。
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) collection(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "_" + name
}

// Build 删除同名集合后重建。
func (s *Store) Build(ctx context.Context, name string, segments []model.Segment) (vectorstore.Index, error) {
	const op = "qdrant.Build"
	if err := vectorstore.CheckBuildInput(op, name, segments); err != nil {
		return nil, err
	}
	collection := s.collection(name)
	log.Infof("[QdrantStore] 开始构建集合 '%s', 分块数: %d", collection, len(segments))

	vecs, err := vectorstore.EmbedSegments(ctx, s.embedder, segments)
	if err != nil {
		return nil, err
	}

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, errs.E(errs.KindIndexBuild, op, err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, collection); err != nil {
			return nil, errs.E(errs.KindIndexBuild, op, err)
		}
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(len(vecs[0])),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return nil, errs.E(errs.KindIndexBuild, op, err)
	}

	points := make([]*qdrant.PointStruct, len(segments))
	for i, seg := range segments {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(seg.ID)),
			Vectors: qdrant.NewVectors(vecs[i]...),
			Payload: payload(seg, s.embedder.Model()),
		}
	}
	wait := true
	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           &wait,
			Points:         points[start:end],
		})
		if err != nil {
			return nil, errs.E(errs.KindIndexBuild, op, fmt.Errorf("upsert %d-%d: %w", start, end, err))
		}
	}
	log.Infof("[QdrantStore] 集合 '%s' 构建完成", collection)
	return &index{name: name, collection: collection, client: s.client, embedder: s.embedder, size: len(points)}, nil
}

func (s *Store) Open(ctx context.Context, name string) (vectorstore.Index, error) {
	const op = "qdrant.Open"
	if err := vectorstore.ValidateName(name); err != nil {
		return nil, errs.E(errs.KindIndexNotFound, op, err)
	}
	collection := s.collection(name)
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, errs.E(errs.KindIndexNotFound, op, err)
	}
	if !exists {
		return nil, errs.Ef(errs.KindIndexNotFound, op, "collection %s does not exist", collection)
	}
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: collection, Exact: &exact})
	if err != nil {
		return nil, errs.E(errs.KindIndexNotFound, op, err)
	}
	if n == 0 {
		return nil, errs.Ef(errs.KindIndexNotFound, op, "collection %s is empty", collection)
	}
	return &index{name: name, collection: collection, client: s.client, embedder: s.embedder, size: int(n)}, nil
}

// PointID 将分块 ID 确定性地映射为 UUID，Qdrant 只接受整数或 UUID 作为点 ID。
func PointID(segmentID string) string {
	return uuid.NewSHA1(pointIDSpace, []byte(segmentID)).String()
}

func payload(seg model.Segment, modelVersion string) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		"vector_id":     qdrant.NewValueString(seg.ID),
		"document_id":   qdrant.NewValueString(seg.DocumentID),
		"chunk_index":   qdrant.NewValueInt(int64(seg.ChunkIndex)),
		"page":          qdrant.NewValueInt(int64(seg.Page)),
		"text_content":  qdrant.NewValueString(seg.Text),
		"model_version": qdrant.NewValueString(modelVersion),
	}
}

func segmentFromPayload(p map[string]*qdrant.Value) model.Segment {
	return model.Segment{
		ID:         p["vector_id"].GetStringValue(),
		DocumentID: p["document_id"].GetStringValue(),
		ChunkIndex: int(p["chunk_index"].GetIntegerValue()),
		Page:       int(p["page"].GetIntegerValue()),
		Text:       p["text_content"].GetStringValue(),
	}
}

type index struct {
	name       string
	collection string
	client     API
	embedder   embedding.Client
	size       int
}

func (i *index) Name() string     { return i.name }
func (i *index) Location() string { return "qdrant://" + i.collection }
func (i *index) Len() int         { return i.size }

func (i *index) Search(ctx context.Context, query string, k int) ([]model.ScoredSegment, error) {
	const op = "qdrant.Search"
	k = vectorstore.NormalizeK(k)
	qv, err := vectorstore.EmbedQuery(ctx, i.embedder, query)
	if err != nil {
		return nil, err
	}
	limit := uint64(k)
	points, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQuery(qv...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		exists, existsErr := i.client.CollectionExists(ctx, i.collection)
		if existsErr == nil && !exists {
			return nil, errs.E(errs.KindIndexNotFound, op, err)
		}
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}
	results := make([]model.ScoredSegment, 0, len(points))
	for _, p := range points {
		results = append(results, model.ScoredSegment{Segment: segmentFromPayload(p.GetPayload()), Score: float64(p.GetScore())})
	}
	return vectorstore.RankTopK(results, k), nil
}

func (i *index) Clear(ctx context.Context) error {
	const op = "qdrant.Clear"
	exists, err := i.client.CollectionExists(ctx, i.collection)
	if err != nil {
		return errs.E(errs.KindIndexDeletion, op, err)
	}
	if !exists {
		return errs.Ef(errs.KindIndexDeletion, op, "collection %s does not exist", i.collection)
	}
	if err := i.client.DeleteCollection(ctx, i.collection); err != nil {
		return errs.E(errs.KindIndexDeletion, op, err)
	}
	i.size = 0
	log.Infof("[QdrantStore] 集合 '%s' 已删除", i.collection)
	return nil
}

func (i *index) Close() error { return nil }
