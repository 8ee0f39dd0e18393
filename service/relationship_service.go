package service

import (
	"context"

	"barzo_social/model"

	"github.com/google/uuid"
)

// BlockUser 拉黑用户（不经过转换校验，重复拉黑只保留一条记录）
func (s *SocialService) BlockUser(ctx context.Context, targetUserID uuid.UUID, reason *string) (*model.UserBlock, error) {
	userID, err := s.CurrentUserID()
	if err != nil {
		return nil, err
	}
	if userID == targetUserID {
		return nil, ErrSelfRelationship
	}

	block := &model.UserBlock{
		SubjectID: userID,
		BlockedID: targetUserID,
		Reason:    reason,
	}
	if err := s.store.CreateBlock(ctx, block); err != nil {
		return nil, err
	}
	return block, nil
}

// UnblockUser 取消拉黑
func (s *SocialService) UnblockUser(ctx context.Context, targetUserID uuid.UUID) error {
	userID, err := s.CurrentUserID()
	if err != nil {
		return err
	}

	deleted, err := s.store.DeleteBlock(ctx, userID, targetUserID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotBlocked
	}
	return nil
}

// GetBlockedUsers 获取拉黑列表
func (s *SocialService) GetBlockedUsers(ctx context.Context) ([]model.UserBlock, error) {
	userID, err := s.CurrentUserID()
	if err != nil {
		return nil, err
	}
	return s.store.ListBlocks(ctx, userID)
}

// IsBlocked 检查当前用户是否拉黑了目标
func (s *SocialService) IsBlocked(ctx context.Context, targetUserID uuid.UUID) (bool, error) {
	userID, err := s.CurrentUserID()
	if err != nil {
		return false, err
	}
	count, err := s.store.CountBlocks(ctx, userID, targetUserID)
	return count > 0, err
}

// MuteUser 静音用户（任意状态都可以静音，不发送通知）
func (s *SocialService) MuteUser(ctx context.Context, targetUserID uuid.UUID) (*model.UserRelationship, error) {
	userID, err := s.CurrentUserID()
	if err != nil {
		return nil, err
	}
	if userID == targetUserID {
		return nil, ErrSelfRelationship
	}

	rel := &model.UserRelationship{
		SubjectID:  userID,
		TargetID:   targetUserID,
		TargetType: model.TargetUser,
		Kind:       model.KindMuted,
	}
	if err := s.store.UpsertRelationship(ctx, rel); err != nil {
		return nil, err
	}
	return rel, nil
}

// UnmuteUser 取消静音，直接删除 muted 记录（关系回到 public）
func (s *SocialService) UnmuteUser(ctx context.Context, targetUserID uuid.UUID) error {
	userID, err := s.CurrentUserID()
	if err != nil {
		return err
	}

	deleted, err := s.store.DeleteRelationship(ctx, userID, targetUserID, model.KindMuted)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotMuted
	}
	return nil
}
