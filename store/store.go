package store

import (
	"context"
	"errors"
	"fmt"

	"barzo_social/model"

	"github.com/google/uuid"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// ErrConflict 违反唯一约束
var ErrConflict = errors.New("record already exists")

// StorageError 底层存储错误（原样向上传递）
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// PersonaQuery 人设列表查询条件
type PersonaQuery struct {
	Search     string
	IncludeIDs []uuid.UUID // 非 nil 时只返回这些 ID
	ExcludeIDs []uuid.UUID
	Limit      int
	Offset     int // 负数按 0 处理
}

// Subscription 实时订阅句柄，调用方负责 Close
type Subscription interface {
	Close() error
}

// NotificationHandler 新通知回调
type NotificationHandler func(n *model.Notification)

// Tx 事务作用域：Commit 或 Rollback 二选一
type Tx interface {
	// CreatePersona 立即分配 ID，handle 重复时返回 ErrConflict
	CreatePersona(p *model.Persona) error
	UpsertRelationship(rel *model.UserRelationship) error
	CreateNotification(n *model.Notification) error
	Commit() error
	Rollback() error
}

// DataStore 社交关系的数据存储能力（CRUD + 事务 + 订阅）
type DataStore interface {
	// GetRelationship 没有记录时返回 (nil, nil)
	GetRelationship(ctx context.Context, subjectID, targetID uuid.UUID) (*model.UserRelationship, error)
	ListRelationshipTargets(ctx context.Context, subjectID uuid.UUID, kinds ...model.RelationshipKind) ([]uuid.UUID, error)
	UpsertRelationship(ctx context.Context, rel *model.UserRelationship) error
	// DeleteRelationship 只删除指定类型的记录，返回删除行数
	DeleteRelationship(ctx context.Context, subjectID, targetID uuid.UUID, kind model.RelationshipKind) (int64, error)

	CreateBlock(ctx context.Context, block *model.UserBlock) error
	DeleteBlock(ctx context.Context, subjectID, blockedID uuid.UUID) (int64, error)
	ListBlocks(ctx context.Context, subjectID uuid.UUID) ([]model.UserBlock, error)
	CountBlocks(ctx context.Context, subjectID, blockedID uuid.UUID) (int64, error)

	ListNotifications(ctx context.Context, recipientID uuid.UUID, limit, offset int, unreadOnly bool) ([]model.Notification, error)
	// MarkNotificationRead 不属于该接收者时返回 ErrNotFound
	MarkNotificationRead(ctx context.Context, recipientID, notificationID uuid.UUID) (*model.Notification, error)

	ListPersonas(ctx context.Context, q PersonaQuery) ([]model.Persona, int64, error)

	Begin(ctx context.Context) (Tx, error)
	SubscribeNotifications(ctx context.Context, recipientID uuid.UUID, fn NotificationHandler) (Subscription, error)
}
