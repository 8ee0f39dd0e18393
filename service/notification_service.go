package service

import (
	"context"
	"errors"

	"barzo_social/model"
	"barzo_social/store"

	"github.com/google/uuid"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// GetNotifications 获取当前用户收到的通知（最新的在前）
func (s *SocialService) GetNotifications(ctx context.Context, limit, offset int, unreadOnly bool) ([]model.Notification, error) {
	userID, err := s.CurrentUserID()
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	if offset < 0 {
		offset = 0
	}

	return s.store.ListNotifications(ctx, userID, limit, offset, unreadOnly)
}

// MarkNotificationRead 标记为已读，只能操作自己的通知
func (s *SocialService) MarkNotificationRead(ctx context.Context, notificationID uuid.UUID) (*model.Notification, error) {
	userID, err := s.CurrentUserID()
	if err != nil {
		return nil, err
	}

	notification, err := s.store.MarkNotificationRead(ctx, userID, notificationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return notification, nil
}

// SubscribeToNotifications 订阅当前用户的新通知
//
// 每条新通知至少投递一次；订阅断开期间的通知不会补发，重连由调用方负责。
// 返回的句柄必须 Close。
func (s *SocialService) SubscribeToNotifications(ctx context.Context, callback func(*model.Notification)) (store.Subscription, error) {
	userID, err := s.CurrentUserID()
	if err != nil {
		return nil, err
	}

	return s.store.SubscribeNotifications(ctx, userID, func(n *model.Notification) {
		notificationsDelivered.Inc()
		callback(n)
	})
}
