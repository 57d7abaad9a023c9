// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"

	"docqa-go/internal/model"
	"docqa-go/internal/pipeline"
	"docqa-go/internal/repository"
	"docqa-go/internal/session"
	"docqa-go/internal/vectorstore"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/log"
	"docqa-go/pkg/tasks"
)

// IngestOutcome 是一次文档处理的结果。Warnings 中是不影响本次处理的问题，例如旧索引未能完全删除。
type IngestOutcome struct {
	Document model.DocumentDTO `json:"document"`
	Warnings []string          `json:"warnings,omitempty"`
}

// ObjectStore 暂存待异步处理的原始文件。
type ObjectStore interface {
	Put(ctx context.Context, objectName string, data []byte) error
	Get(ctx context.Context, objectName string) ([]byte, error)
	Remove(ctx context.Context, objectName string) error
}

// TaskQueue 投递异步处理任务。
type TaskQueue interface {
	Enqueue(ctx context.Context, task tasks.IngestTask) error
}

// DocumentService 接口定义了文档生命周期相关的业务操作。
type DocumentService interface {
	// Ingest 同步处理一个上传的 PDF，并将其设为会话的激活文档。
	Ingest(ctx context.Context, sess *session.Session, fileName string, data []byte) (*IngestOutcome, error)
	// Submit 将 PDF 暂存到对象存储并投递异步任务。
	Submit(ctx context.Context, sess *session.Session, fileName string, data []byte) (*model.DocumentDTO, error)
	// ProcessTask 由异步消费者调用，处理一个已暂存的文档。
	ProcessTask(ctx context.Context, sess *session.Session, task tasks.IngestTask, data []byte) (*IngestOutcome, error)
	// AbandonTask 在任务重试耗尽后将对应记录标记为失败。
	AbandonTask(ctx context.Context, task tasks.IngestTask, cause error) error
	// Clear 删除激活文档的索引。删除失败以警告返回，会话依然可用。
	Clear(ctx context.Context, sess *session.Session) ([]string, error)
	Current(sess *session.Session) (*model.DocumentDTO, error)
	List(ctx context.Context) ([]model.DocumentDTO, error)
	// Restore 在启动时重新打开最近一次成功建立的索引。
	Restore(ctx context.Context, sess *session.Session) error
}

type documentService struct {
	ingestor *pipeline.Ingestor
	store    vectorstore.Store
	docRepo  repository.DocumentRepository
	objects  ObjectStore
	queue    TaskQueue
}

// NewDocumentService 创建一个新的 DocumentService 实例。objects 与 queue 仅在异步模式下需要，可以为 nil。
func NewDocumentService(ingestor *pipeline.Ingestor, store vectorstore.Store, docRepo repository.DocumentRepository, objects ObjectStore, queue TaskQueue) DocumentService {
	return &documentService{
		ingestor: ingestor,
		store:    store,
		docRepo:  docRepo,
		objects:  objects,
		queue:    queue,
	}
}

// StagingObjectName 返回文档在对象存储中的暂存路径。
func StagingObjectName(fileMD5 string) string {
	return fmt.Sprintf("staging/%s.pdf", fileMD5)
}

func (s *documentService) newRecord(sess *session.Session, fileName string, data []byte, status int) (*model.DocumentRecord, error) {
	fileMD5 := pipeline.FileMD5(data)
	record := &model.DocumentRecord{
		SessionID: sess.ID,
		FileMD5:   fileMD5,
		FileName:  fileName,
		TotalSize: int64(len(data)),
		Status:    status,
		Backend:   s.store.Backend(),
		StoreName: fileMD5,
	}
	if err := s.docRepo.Create(record); err != nil {
		return nil, fmt.Errorf("创建文档记录失败: %w", err)
	}
	return record, nil
}

func (s *documentService) Ingest(ctx context.Context, sess *session.Session, fileName string, data []byte) (*IngestOutcome, error) {
	release, err := sess.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := s.newRecord(sess, fileName, data, model.DocumentStatusProcessing)
	if err != nil {
		return nil, err
	}
	return s.process(ctx, sess, record, data)
}

func (s *documentService) ProcessTask(ctx context.Context, sess *session.Session, task tasks.IngestTask, data []byte) (*IngestOutcome, error) {
	release, err := sess.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := s.docRepo.FindByID(task.RecordID)
	if err != nil {
		log.Warnf("[DocumentService] 任务对应的文档记录 %d 不存在, 重新创建: %v", task.RecordID, err)
		if record, err = s.newRecord(sess, task.FileName, data, model.DocumentStatusProcessing); err != nil {
			return nil, err
		}
	} else if err := s.docRepo.UpdateStatus(record.ID, model.DocumentStatusProcessing, ""); err != nil {
		log.Warnf("[DocumentService] 更新文档状态失败: %v", err)
	}
	if record.FileMD5 != pipeline.FileMD5(data) {
		err := errs.Ef(errs.KindUnreadableDocument, "DocumentService.ProcessTask", "staged object does not match file md5 %s", record.FileMD5)
		s.fail(record, err)
		return nil, err
	}
	return s.process(ctx, sess, record, data)
}

func (s *documentService) AbandonTask(ctx context.Context, task tasks.IngestTask, cause error) error {
	record, err := s.docRepo.FindByID(task.RecordID)
	if err != nil {
		return err
	}
	if record.Status != model.DocumentStatusQueued && record.Status != model.DocumentStatusProcessing {
		return nil
	}
	s.fail(record, cause)
	return nil
}

// process 依次执行解析、释放旧索引、构建新索引。解析失败时会话状态保持不变。
func (s *documentService) process(ctx context.Context, sess *session.Session, record *model.DocumentRecord, data []byte) (*IngestOutcome, error) {
	log.Infof("[DocumentService] 开始处理文档, ID: %d, FileName: %s, FileMD5: %s", record.ID, record.FileName, record.FileMD5)

	// 1. 解析与切分
	res, err := s.ingestor.Ingest(ctx, model.SourceDocument{FileName: record.FileName, FileMD5: record.FileMD5, Data: data})
	if err != nil {
		s.fail(record, err)
		return nil, err
	}
	log.Infof("[DocumentService] 步骤1: 解析完成, 页数: %d, 分块数: %d", res.PageCount, len(res.Segments))

	// 2. 释放旧索引，确保检索结果不会混入上一份文档
	outcome := &IngestOutcome{}
	if warning := s.releaseActive(ctx, sess); warning != "" {
		outcome.Warnings = append(outcome.Warnings, warning)
	}

	// 3. 构建新索引
	idx, err := s.store.Build(ctx, record.StoreName, res.Segments)
	if err != nil {
		log.Errorf("[DocumentService] 步骤3: 构建索引失败, FileMD5: %s, Error: %v", record.FileMD5, err)
		s.fail(record, err)
		return nil, err
	}
	log.Infof("[DocumentService] 步骤3: 索引构建完成, %s", vectorstore.Describe(idx))

	record.PageCount = res.PageCount
	record.SegmentCount = len(res.Segments)
	record.Location = idx.Location()
	if err := s.docRepo.MarkIndexed(record); err != nil {
		log.Warnf("[DocumentService] 更新文档记录失败: %v", err)
	}
	sess.Attach(idx, record)

	outcome.Document = record.ToDTO()
	return outcome, nil
}

// releaseActive 删除会话当前的索引。删除失败不会中止流程，只返回警告文本。
func (s *documentService) releaseActive(ctx context.Context, sess *session.Session) string {
	idx, doc := sess.Detach()
	if idx == nil {
		return ""
	}
	log.Infof("[DocumentService] 释放旧索引: %s", vectorstore.Describe(idx))
	clearErr := idx.Clear(ctx)
	if err := idx.Close(); err != nil {
		log.Warnf("[DocumentService] 关闭旧索引失败: %v", err)
	}
	if doc != nil {
		msg := ""
		if clearErr != nil {
			msg = clearErr.Error()
		}
		if err := s.docRepo.UpdateStatus(doc.ID, model.DocumentStatusCleared, msg); err != nil {
			log.Warnf("[DocumentService] 更新旧文档状态失败: %v", err)
		}
	}
	if clearErr != nil {
		log.Warnw("[DocumentService] 旧索引未能完全删除", "location", idx.Location(), "error", clearErr)
		return fmt.Sprintf("previous index at %s could not be fully removed: %v", idx.Location(), clearErr)
	}
	return ""
}

func (s *documentService) fail(record *model.DocumentRecord, cause error) {
	record.Status = model.DocumentStatusFailed
	record.ErrorMsg = cause.Error()
	if err := s.docRepo.UpdateStatus(record.ID, model.DocumentStatusFailed, cause.Error()); err != nil {
		log.Warnf("[DocumentService] 更新文档状态失败: %v", err)
	}
}

func (s *documentService) Submit(ctx context.Context, sess *session.Session, fileName string, data []byte) (*model.DocumentDTO, error) {
	const op = "DocumentService.Submit"
	if s.objects == nil || s.queue == nil {
		return nil, errs.Ef(errs.KindInvalidArgument, op, "asynchronous ingestion is not configured")
	}
	if len(data) == 0 {
		return nil, errs.Ef(errs.KindUnreadableDocument, op, "文件 '%s' 内容为空", fileName)
	}
	record, err := s.newRecord(sess, fileName, data, model.DocumentStatusQueued)
	if err != nil {
		return nil, err
	}

	objectName := StagingObjectName(record.FileMD5)
	log.Infof("[DocumentService] 暂存文件到对象存储: %s", objectName)
	if err := s.objects.Put(ctx, objectName, data); err != nil {
		s.fail(record, err)
		return nil, fmt.Errorf("暂存文件失败: %w", err)
	}

	task := tasks.IngestTask{
		FileMD5:    record.FileMD5,
		FileName:   record.FileName,
		ObjectName: objectName,
		RecordID:   record.ID,
		SessionID:  sess.ID,
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.fail(record, err)
		if rmErr := s.objects.Remove(ctx, objectName); rmErr != nil {
			log.Warnf("[DocumentService] 清理暂存文件失败: %v", rmErr)
		}
		return nil, fmt.Errorf("投递处理任务失败: %w", err)
	}
	log.Infof("[DocumentService] 任务已投递, RecordID: %d", record.ID)

	dto := record.ToDTO()
	return &dto, nil
}

func (s *documentService) Clear(ctx context.Context, sess *session.Session) ([]string, error) {
	release, err := sess.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if sess.Index() == nil {
		return nil, errs.E(errs.KindNoActiveDocument, "DocumentService.Clear", errors.New("no document has been processed"))
	}
	if warning := s.releaseActive(ctx, sess); warning != "" {
		return []string{warning}, nil
	}
	return nil, nil
}

func (s *documentService) Current(sess *session.Session) (*model.DocumentDTO, error) {
	doc := sess.Document()
	if doc == nil {
		return nil, errs.E(errs.KindNoActiveDocument, "DocumentService.Current", errors.New("no document has been processed"))
	}
	dto := doc.ToDTO()
	return &dto, nil
}

func (s *documentService) List(ctx context.Context) ([]model.DocumentDTO, error) {
	records, err := s.docRepo.List(50)
	if err != nil {
		return nil, err
	}
	dtos := make([]model.DocumentDTO, 0, len(records))
	for _, r := range records {
		dtos = append(dtos, r.ToDTO())
	}
	return dtos, nil
}

func (s *documentService) Restore(ctx context.Context, sess *session.Session) error {
	record, err := s.docRepo.FindLatestIndexed()
	if err != nil {
		return fmt.Errorf("查询最近的文档记录失败: %w", err)
	}
	if record == nil {
		log.Info("[DocumentService] 没有可恢复的文档")
		return nil
	}
	if record.Backend != s.store.Backend() {
		log.Warnf("[DocumentService] 最近的文档由 %s 后端建立, 当前后端为 %s, 跳过恢复", record.Backend, s.store.Backend())
		return nil
	}

	idx, err := s.store.Open(ctx, record.StoreName)
	if err != nil {
		log.Warnf("[DocumentService] 无法恢复文档 '%s' 的索引: %v", record.FileName, err)
		if upErr := s.docRepo.UpdateStatus(record.ID, model.DocumentStatusCleared, err.Error()); upErr != nil {
			log.Warnf("[DocumentService] 更新文档状态失败: %v", upErr)
		}
		return nil
	}
	sess.Attach(idx, record)
	log.Infof("[DocumentService] 已恢复文档 '%s', %s", record.FileName, vectorstore.Describe(idx))
	return nil
}
