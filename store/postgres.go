package store

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"barzo_social/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// subscribeTimeout 等待 Redis 订阅确认的上限
const subscribeTimeout = 5 * time.Second

// notificationChannel Redis Pub/Sub channel（每个接收者一个）
func notificationChannel(recipientID uuid.UUID) string {
	return "notifications:" + recipientID.String()
}

// PostgresStore gorm + Postgres 实现，新通知通过 Redis Pub/Sub 推送
type PostgresStore struct {
	db  *gorm.DB
	rdb *redis.Client
}

func NewPostgresStore(db *gorm.DB, rdb *redis.Client) *PostgresStore {
	return &PostgresStore{db: db, rdb: rdb}
}

// AutoMigrate 创建/更新表结构
func (s *PostgresStore) AutoMigrate() error {
	return s.db.AutoMigrate(
		&model.UserRelationship{},
		&model.UserBlock{},
		&model.Notification{},
		&model.Persona{},
	)
}

func (s *PostgresStore) GetRelationship(ctx context.Context, subjectID, targetID uuid.UUID) (*model.UserRelationship, error) {
	var rel model.UserRelationship
	err := s.db.WithContext(ctx).
		Where("subject_id = ? AND target_id = ?", subjectID, targetID).
		First(&rel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrap(OpGetRelationship, err)
	}
	return &rel, nil
}

func (s *PostgresStore) ListRelationshipTargets(ctx context.Context, subjectID uuid.UUID, kinds ...model.RelationshipKind) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := s.db.WithContext(ctx).Model(&model.UserRelationship{}).Where("subject_id = ?", subjectID)
	if len(kinds) > 0 {
		query = query.Where("kind IN ?", kinds)
	}
	if err := query.Pluck("target_id", &ids).Error; err != nil {
		return nil, wrap("list_relationship_targets", err)
	}
	return ids, nil
}

// upsertRelationship 每对 (subject_id, target_id) 只保留一行
func upsertRelationship(db *gorm.DB, rel *model.UserRelationship) *gorm.DB {
	rel.UpdatedAt = time.Now()
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject_id"}, {Name: "target_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "target_type", "updated_at"}),
	}).Create(rel)
}

// filterPersonas 搜索和 ID 过滤条件，IncludeIDs 为空集合时由调用方提前返回
func filterPersonas(db *gorm.DB, q PersonaQuery) *gorm.DB {
	if q.Search != "" {
		pattern := "%" + q.Search + "%"
		db = db.Where("name ILIKE ? OR handle ILIKE ?", pattern, pattern)
	}
	if len(q.IncludeIDs) > 0 {
		db = db.Where("id IN ?", q.IncludeIDs)
	}
	if len(q.ExcludeIDs) > 0 {
		db = db.Where("id NOT IN ?", q.ExcludeIDs)
	}
	return db
}

func (s *PostgresStore) UpsertRelationship(ctx context.Context, rel *model.UserRelationship) error {
	return wrap(OpUpsertRelationship, upsertRelationship(s.db.WithContext(ctx), rel).Error)
}

func (s *PostgresStore) DeleteRelationship(ctx context.Context, subjectID, targetID uuid.UUID, kind model.RelationshipKind) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("subject_id = ? AND target_id = ? AND kind = ?", subjectID, targetID, kind).
		Delete(&model.UserRelationship{})
	if result.Error != nil {
		return 0, wrap(OpDeleteRelationship, result.Error)
	}
	return result.RowsAffected, nil
}

func (s *PostgresStore) CreateBlock(ctx context.Context, block *model.UserBlock) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject_id"}, {Name: "blocked_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason"}),
	}).Create(block).Error
	return wrap(OpCreateBlock, err)
}

func (s *PostgresStore) DeleteBlock(ctx context.Context, subjectID, blockedID uuid.UUID) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("subject_id = ? AND blocked_id = ?", subjectID, blockedID).
		Delete(&model.UserBlock{})
	if result.Error != nil {
		return 0, wrap(OpDeleteBlock, result.Error)
	}
	return result.RowsAffected, nil
}

func (s *PostgresStore) ListBlocks(ctx context.Context, subjectID uuid.UUID) ([]model.UserBlock, error) {
	var blocks []model.UserBlock
	err := s.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("created_at DESC").
		Find(&blocks).Error
	if err != nil {
		return nil, wrap("list_blocks", err)
	}
	return blocks, nil
}

func (s *PostgresStore) CountBlocks(ctx context.Context, subjectID, blockedID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.UserBlock{}).
		Where("subject_id = ? AND blocked_id = ?", subjectID, blockedID).
		Count(&count).Error
	return count, wrap("count_blocks", err)
}

func (s *PostgresStore) ListNotifications(ctx context.Context, recipientID uuid.UUID, limit, offset int, unreadOnly bool) ([]model.Notification, error) {
	var notifications []model.Notification
	query := s.db.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}
	err := query.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&notifications).Error
	if err != nil {
		return nil, wrap(OpListNotifications, err)
	}
	return notifications, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, recipientID, notificationID uuid.UUID) (*model.Notification, error) {
	var notification model.Notification
	db := s.db.WithContext(ctx)
	if err := db.Where("id = ? AND recipient_id = ?", notificationID, recipientID).First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, wrap(OpMarkNotificationRead, err)
	}

	// 已读的不再更新 read_at
	if notification.ReadAt == nil {
		now := time.Now()
		if err := db.Model(&notification).Update("read_at", now).Error; err != nil {
			return nil, wrap(OpMarkNotificationRead, err)
		}
		notification.ReadAt = &now
	}
	return &notification, nil
}

func (s *PostgresStore) ListPersonas(ctx context.Context, q PersonaQuery) ([]model.Persona, int64, error) {
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.IncludeIDs != nil && len(q.IncludeIDs) == 0 {
		return []model.Persona{}, 0, nil
	}
	query := filterPersonas(s.db.WithContext(ctx).Model(&model.Persona{}), q)
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrap("count_personas", err)
	}

	var personas []model.Persona
	err := query.Order("created_at DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&personas).Error
	if err != nil {
		return nil, 0, wrap("list_personas", err)
	}
	return personas, total, nil
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, wrap(OpBegin, tx.Error)
	}
	return &postgresTx{ctx: ctx, tx: tx, rdb: s.rdb}, nil
}

type postgresTx struct {
	ctx           context.Context
	tx            *gorm.DB
	rdb           *redis.Client
	notifications []*model.Notification
}

func (t *postgresTx) CreatePersona(p *model.Persona) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := t.tx.Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return wrap(OpTxCreatePersona, err)
}

func (t *postgresTx) UpsertRelationship(rel *model.UserRelationship) error {
	return wrap(OpTxUpsertRelationship, upsertRelationship(t.tx, rel).Error)
}

func (t *postgresTx) CreateNotification(n *model.Notification) error {
	if err := t.tx.Create(n).Error; err != nil {
		return wrap(OpTxCreateNotification, err)
	}
	t.notifications = append(t.notifications, n)
	return nil
}

func (t *postgresTx) Commit() error {
	if err := t.tx.Commit().Error; err != nil {
		return wrap(OpCommit, err)
	}

	// 提交成功后才推送，订阅方不会收到被回滚的通知
	if t.rdb != nil {
		for _, n := range t.notifications {
			payload, err := json.Marshal(n)
			if err != nil {
				log.Printf("[ERROR] Failed to marshal notification %s: %v", n.ID, err)
				continue
			}
			if err := t.rdb.Publish(t.ctx, notificationChannel(n.RecipientID), payload).Err(); err != nil {
				log.Printf("[ERROR] Failed to publish notification %s: %v", n.ID, err)
			}
		}
	}
	return nil
}

func (t *postgresTx) Rollback() error {
	return wrap("rollback", t.tx.Rollback().Error)
}

func (s *PostgresStore) SubscribeNotifications(ctx context.Context, recipientID uuid.UUID, fn NotificationHandler) (Subscription, error) {
	if s.rdb == nil {
		return nil, wrap(OpSubscribeNotification, errors.New("redis client not configured"))
	}

	pubsub := s.rdb.Subscribe(ctx, notificationChannel(recipientID))
	// 等待订阅确认，保证返回后不会漏掉新通知
	confirmCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()
	if _, err := pubsub.Receive(confirmCtx); err != nil {
		pubsub.Close()
		return nil, wrap(OpSubscribeNotification, err)
	}

	sub := &redisSubscription{pubsub: pubsub, done: make(chan struct{})}
	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-sub.done:
				return
			case <-ctx.Done():
				sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var n model.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					log.Printf("[ERROR] Invalid notification payload on %s: %v", msg.Channel, err)
					continue
				}
				fn(&n)
			}
		}
	}()
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
	err    error
}

func (r *redisSubscription) Close() error {
	r.once.Do(func() {
		close(r.done)
		r.err = r.pubsub.Close()
	})
	return r.err
}
