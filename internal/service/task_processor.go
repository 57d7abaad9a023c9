package service

import (
	"context"
	"errors"
	"fmt"

	"docqa-go/internal/session"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/log"
	"docqa-go/pkg/tasks"
)

// TaskProcessor 处理异步模式下由 Kafka 投递的文档任务。
type TaskProcessor struct {
	objects    ObjectStore
	docService DocumentService
	sess       *session.Session
}

// NewTaskProcessor 创建一个新的 TaskProcessor 实例。
func NewTaskProcessor(objects ObjectStore, docService DocumentService, sess *session.Session) *TaskProcessor {
	return &TaskProcessor{objects: objects, docService: docService, sess: sess}
}

// Process 下载暂存文件并交给 DocumentService 处理。文档无法解析时不再重试。
func (p *TaskProcessor) Process(ctx context.Context, task tasks.IngestTask) error {
	log.Infof("[Processor] 开始处理文件, FileMD5: %s, FileName: %s, RecordID: %d", task.FileMD5, task.FileName, task.RecordID)

	// 1. 从对象存储下载文件
	data, err := p.objects.Get(ctx, task.ObjectName)
	if err != nil {
		log.Errorf("[Processor] 步骤1: 下载暂存文件失败, Object: %s, Error: %v", task.ObjectName, err)
		return fmt.Errorf("下载暂存文件失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d字节", len(data))

	// 2. 解析并建立索引
	outcome, err := p.docService.ProcessTask(ctx, p.sess, task, data)
	if err != nil {
		if !errors.Is(err, errs.ErrUnreadableDocument) {
			return err
		}
		log.Warnf("[Processor] 文档无法解析, 放弃处理: %v", err)
	} else {
		for _, w := range outcome.Warnings {
			log.Warnf("[Processor] %s", w)
		}
		log.Infof("[Processor] 步骤2: 文档处理完成, 分块数: %d", outcome.Document.SegmentCount)
	}

	// 3. 删除暂存文件
	if err := p.objects.Remove(ctx, task.ObjectName); err != nil {
		log.Warnf("[Processor] 删除暂存文件失败, Object: %s, Error: %v", task.ObjectName, err)
	}
	return nil
}

// Abandon 在消费者放弃任务后调用：删除暂存文件并将记录标记为失败。
func (p *TaskProcessor) Abandon(ctx context.Context, task tasks.IngestTask, cause error) {
	log.Warnf("[Processor] 放弃任务, FileMD5: %s, 原因: %v", task.FileMD5, cause)
	if err := p.docService.AbandonTask(ctx, task, cause); err != nil {
		log.Warnf("[Processor] 标记文档失败状态出错, RecordID: %d, Error: %v", task.RecordID, err)
	}
	if err := p.objects.Remove(ctx, task.ObjectName); err != nil {
		log.Warnf("[Processor] 删除暂存文件失败, Object: %s, Error: %v", task.ObjectName, err)
	}
}
