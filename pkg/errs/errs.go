// Package errs 定义了问答流水线中各阶段的错误分类。
//
// 每个错误都携带一个 Kind，调用方通过 errors.Is(err, errs.ErrIndexBuild) 等哨兵值判断类别，
// 通过 errors.Unwrap 获取底层原因。
package errs

import (
	"errors"
	"fmt"
)

// Kind 标识错误所属的类别。
type Kind int

const (
	KindUnknown Kind = iota
	KindUnreadableDocument
	KindEmbeddingService
	KindIndexBuild
	KindIndexNotFound
	KindIndexDeletion
	KindGenerationService
	KindNoActiveDocument
	KindInvalidArgument
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindUnreadableDocument: "unreadable document",
	KindEmbeddingService:   "embedding service",
	KindIndexBuild:         "index build",
	KindIndexNotFound:      "index not found",
	KindIndexDeletion:      "index deletion",
	KindGenerationService:  "generation service",
	KindNoActiveDocument:   "no active document",
	KindInvalidArgument:    "invalid argument",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error 是带有类别和操作名的错误。
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 仅比较类别，使得哨兵值可以匹配任意操作名和原因。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// 哨兵错误，用于 errors.Is。
var (
	ErrUnreadableDocument = &Error{Kind: KindUnreadableDocument}
	ErrEmbeddingService   = &Error{Kind: KindEmbeddingService}
	ErrIndexBuild         = &Error{Kind: KindIndexBuild}
	ErrIndexNotFound      = &Error{Kind: KindIndexNotFound}
	ErrIndexDeletion      = &Error{Kind: KindIndexDeletion}
	ErrGenerationService  = &Error{Kind: KindGenerationService}
	ErrNoActiveDocument   = &Error{Kind: KindNoActiveDocument}
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
)

// E 创建一个指定类别的错误。若 err 已经是同类别的 *Error，则原样返回以避免重复包装。
func E(kind Kind, op string, err error) error {
	var existing *Error
	if err != nil && errors.As(err, &existing) && existing.Kind == kind {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef 使用格式化消息创建一个指定类别的错误。
func Ef(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf 返回错误链中第一个 *Error 的类别。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
