package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"barzo_social/model"
	"barzo_social/store"

	"github.com/google/uuid"
)

// Session 已认证的会话
type Session struct {
	UserID    uuid.UUID
	ExpiresAt time.Time // 零值表示不过期
}

func (s *Session) valid(now time.Time) bool {
	if s == nil || s.UserID == uuid.Nil {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// SocialService 当前用户的关系读写入口，写入前经过转换校验
//
// 同一对 (actor, target) 的并发 SetRelationship 不做串行化，最后提交的生效。
type SocialService struct {
	store store.DataStore

	mu      sync.RWMutex // 只保护 session
	session *Session

	now func() time.Time
}

// NewSocialService 没有有效会话时返回 ErrAuthenticationRequired
func NewSocialService(st store.DataStore, session *Session) (*SocialService, error) {
	if !session.valid(time.Now()) {
		return nil, ErrAuthenticationRequired
	}
	return &SocialService{
		store:   st,
		session: session,
		now:     time.Now,
	}, nil
}

// SetSession 认证状态变化时更新当前用户，传 nil 表示已登出
func (s *SocialService) SetSession(session *Session) {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
}

// CurrentUserID 当前用户 ID
func (s *SocialService) CurrentUserID() (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.session.valid(s.now()) {
		return uuid.Nil, ErrAuthenticationRequired
	}
	return s.session.UserID, nil
}

// GetRelationship 获取当前用户对目标的有效关系，没有记录时为 public
func (s *SocialService) GetRelationship(ctx context.Context, targetID uuid.UUID, targetType model.TargetType) (model.RelationshipKind, error) {
	userID, err := s.CurrentUserID()
	if err != nil {
		return "", err
	}
	return s.effectiveKind(ctx, userID, targetID)
}

func (s *SocialService) effectiveKind(ctx context.Context, userID, targetID uuid.UUID) (model.RelationshipKind, error) {
	rel, err := s.store.GetRelationship(ctx, userID, targetID)
	if err != nil {
		return "", err
	}
	if rel == nil {
		return model.KindPublic, nil
	}
	return rel.Kind, nil
}

// SetRelationship 校验转换后在同一事务内写入关系和通知
//
// 与当前关系相同时不写入也不通知。
func (s *SocialService) SetRelationship(ctx context.Context, targetID uuid.UUID, targetType model.TargetType, newKind model.RelationshipKind) (*model.UserRelationship, error) {
	userID, err := s.CurrentUserID()
	if err != nil {
		return nil, err
	}
	if !targetType.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownTargetType, targetType)
	}
	if targetType == model.TargetUser && targetID == userID {
		return nil, ErrSelfRelationship
	}

	// 1. 读取当前关系
	current, err := s.effectiveKind(ctx, userID, targetID)
	if err != nil {
		return nil, err
	}

	if current == newKind && newKind.Valid() && newKind != model.KindPublic {
		transitionsTotal.WithLabelValues(string(newKind), "unchanged").Inc()
		return s.store.GetRelationship(ctx, userID, targetID)
	}

	// 2. 校验转换（未知类型一律拒绝）
	if !IsValidTransition(current, newKind) {
		transitionsTotal.WithLabelValues(string(newKind), "rejected").Inc()
		return nil, &InvalidTransitionError{From: current, To: newKind}
	}

	now := s.now()
	metadata, err := json.Marshal(model.RelationshipChangeMetadata{
		OldType:   current,
		NewType:   newKind,
		Timestamp: now,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}

	rel := &model.UserRelationship{
		SubjectID:  userID,
		TargetID:   targetID,
		TargetType: targetType,
		Kind:       newKind,
	}
	notification := &model.Notification{
		RecipientID:      targetID,
		RecipientType:    targetType,
		NotificationType: model.NotificationTypeRelationshipChange,
		SourceID:         userID,
		Metadata:         metadata,
	}

	// 3. 开启事务
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}

	// 4. 写入关系 5. 写入通知，任一失败都回滚并返回原始错误
	if err := tx.UpsertRelationship(rel); err != nil {
		s.rollback(tx, err)
		return nil, err
	}
	if err := tx.CreateNotification(notification); err != nil {
		s.rollback(tx, err)
		return nil, err
	}

	// 6. 提交
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	transitionsTotal.WithLabelValues(string(newKind), "accepted").Inc()
	notificationsCreated.Inc()
	return rel, nil
}

func (s *SocialService) rollback(tx store.Tx, cause error) {
	transactionRollbacks.Inc()
	if err := tx.Rollback(); err != nil {
		log.Printf("[ERROR] Rollback failed after %v: %v", cause, err)
	}
}

// IsValidTransition 供调用方提前判断（例如禁用按钮）
func (s *SocialService) IsValidTransition(from, to model.RelationshipKind) bool {
	return IsValidTransition(from, to)
}

// GetRelationshipLevel 未知类型返回 -1
func (s *SocialService) GetRelationshipLevel(kind model.RelationshipKind) int {
	return RelationshipLevel(kind)
}

func (s *SocialService) IsRelationshipUpgrade(from, to model.RelationshipKind) bool {
	return IsRelationshipUpgrade(from, to)
}

// HasPermission 有效关系的等级是否不低于 required
//
// 按固定顺序比较下标，不走转换图。required 为 public 时总是满足。
func (s *SocialService) HasPermission(ctx context.Context, targetID uuid.UUID, targetType model.TargetType, required model.RelationshipKind) (bool, error) {
	if !required.Valid() {
		return false, fmt.Errorf("%w: %q", model.ErrUnknownKind, required)
	}
	kind, err := s.GetRelationship(ctx, targetID, targetType)
	if err != nil {
		return false, err
	}
	if required == model.KindPublic {
		return true, nil
	}
	return RelationshipLevel(kind) >= RelationshipLevel(required), nil
}
