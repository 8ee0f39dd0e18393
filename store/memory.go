package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"barzo_social/model"

	"github.com/google/uuid"
)

// 可注入故障的操作名
const (
	OpGetRelationship       = "get_relationship"
	OpUpsertRelationship    = "upsert_relationship"
	OpDeleteRelationship    = "delete_relationship"
	OpCreateBlock           = "create_block"
	OpDeleteBlock           = "delete_block"
	OpListNotifications     = "list_notifications"
	OpMarkNotificationRead  = "mark_notification_read"
	OpBegin                 = "begin"
	OpTxUpsertRelationship  = "tx_upsert_relationship"
	OpTxCreateNotification  = "tx_create_notification"
	OpTxCreatePersona       = "tx_create_persona"
	OpCommit                = "commit"
	OpSubscribeNotification = "subscribe_notifications"
)

var errTxDone = errors.New("transaction already committed or rolled back")

type pairKey struct {
	subject uuid.UUID
	target  uuid.UUID
}

// MemoryStore 内存实现，唯一约束与 PostgresStore 一致（测试和本地开发使用）
type MemoryStore struct {
	mu            sync.RWMutex
	relationships map[pairKey]model.UserRelationship
	blocks        map[pairKey]model.UserBlock
	notifications []model.Notification
	personas      []model.Persona

	failures map[string]error

	subMu  sync.RWMutex
	subs   map[uuid.UUID]map[int]NotificationHandler
	nextID int

	commits   int
	rollbacks int

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		relationships: make(map[pairKey]model.UserRelationship),
		blocks:        make(map[pairKey]model.UserBlock),
		failures:      make(map[string]error),
		subs:          make(map[uuid.UUID]map[int]NotificationHandler),
		now:           time.Now,
	}
}

// FailOn 让指定操作返回 err，传 nil 取消
func (s *MemoryStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *MemoryStore) failure(op string) error {
	if err, ok := s.failures[op]; ok {
		return wrap(op, err)
	}
	return nil
}

func (s *MemoryStore) checkFailure(op string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure(op)
}

// Commits 已提交事务数
func (s *MemoryStore) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// Rollbacks 已回滚事务数
func (s *MemoryStore) Rollbacks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rollbacks
}

// RelationshipCount 关系记录行数
func (s *MemoryStore) RelationshipCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.relationships)
}

// NotificationCount 通知记录行数
func (s *MemoryStore) NotificationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notifications)
}

func (s *MemoryStore) GetRelationship(ctx context.Context, subjectID, targetID uuid.UUID) (*model.UserRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(OpGetRelationship); err != nil {
		return nil, err
	}
	rel, ok := s.relationships[pairKey{subjectID, targetID}]
	if !ok {
		return nil, nil
	}
	return &rel, nil
}

func (s *MemoryStore) ListRelationshipTargets(ctx context.Context, subjectID uuid.UUID, kinds ...model.RelationshipKind) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[model.RelationshipKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var ids []uuid.UUID
	for key, rel := range s.relationships {
		if key.subject != subjectID {
			continue
		}
		if len(want) == 0 || want[rel.Kind] {
			ids = append(ids, key.target)
		}
	}
	return ids, nil
}

// upsertLocked 调用方持有写锁
func (s *MemoryStore) upsertLocked(rel *model.UserRelationship) {
	key := pairKey{rel.SubjectID, rel.TargetID}
	now := s.now()
	if existing, ok := s.relationships[key]; ok {
		rel.ID = existing.ID
		rel.CreatedAt = existing.CreatedAt
	} else {
		if rel.ID == uuid.Nil {
			rel.ID = uuid.New()
		}
		rel.CreatedAt = now
	}
	rel.UpdatedAt = now
	s.relationships[key] = *rel
}

func (s *MemoryStore) UpsertRelationship(ctx context.Context, rel *model.UserRelationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpUpsertRelationship); err != nil {
		return err
	}
	s.upsertLocked(rel)
	return nil
}

func (s *MemoryStore) DeleteRelationship(ctx context.Context, subjectID, targetID uuid.UUID, kind model.RelationshipKind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpDeleteRelationship); err != nil {
		return 0, err
	}
	key := pairKey{subjectID, targetID}
	rel, ok := s.relationships[key]
	if !ok || rel.Kind != kind {
		return 0, nil
	}
	delete(s.relationships, key)
	return 1, nil
}

func (s *MemoryStore) CreateBlock(ctx context.Context, block *model.UserBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpCreateBlock); err != nil {
		return err
	}
	key := pairKey{block.SubjectID, block.BlockedID}
	if existing, ok := s.blocks[key]; ok {
		block.ID = existing.ID
		block.CreatedAt = existing.CreatedAt
		existing.Reason = block.Reason
		s.blocks[key] = existing
		return nil
	}
	if block.ID == uuid.Nil {
		block.ID = uuid.New()
	}
	block.CreatedAt = s.now()
	s.blocks[key] = *block
	return nil
}

func (s *MemoryStore) DeleteBlock(ctx context.Context, subjectID, blockedID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpDeleteBlock); err != nil {
		return 0, err
	}
	key := pairKey{subjectID, blockedID}
	if _, ok := s.blocks[key]; !ok {
		return 0, nil
	}
	delete(s.blocks, key)
	return 1, nil
}

func (s *MemoryStore) ListBlocks(ctx context.Context, subjectID uuid.UUID) ([]model.UserBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var blocks []model.UserBlock
	for key, b := range s.blocks {
		if key.subject == subjectID {
			blocks = append(blocks, b)
		}
	}
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].CreatedAt.After(blocks[j].CreatedAt)
	})
	return blocks, nil
}

func (s *MemoryStore) CountBlocks(ctx context.Context, subjectID, blockedID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.blocks[pairKey{subjectID, blockedID}]; ok {
		return 1, nil
	}
	return 0, nil
}

func (s *MemoryStore) ListNotifications(ctx context.Context, recipientID uuid.UUID, limit, offset int, unreadOnly bool) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(OpListNotifications); err != nil {
		return nil, err
	}
	result := []model.Notification{}
	skipped := 0
	// 最新的在前
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.RecipientID != recipientID || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		result = append(result, n)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) MarkNotificationRead(ctx context.Context, recipientID, notificationID uuid.UUID) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpMarkNotificationRead); err != nil {
		return nil, err
	}
	for i := range s.notifications {
		n := &s.notifications[i]
		if n.ID != notificationID || n.RecipientID != recipientID {
			continue
		}
		if n.ReadAt == nil {
			now := s.now()
			n.ReadAt = &now
		}
		result := *n
		return &result, nil
	}
	return nil, ErrNotFound
}

// CreatePersona 不经过事务直接写入（测试准备数据用）
func (s *MemoryStore) CreatePersona(ctx context.Context, p *model.Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handleTakenLocked(p.Handle) {
		return ErrConflict
	}
	s.insertPersonaLocked(p)
	return nil
}

// PersonaCount 人设记录行数
func (s *MemoryStore) PersonaCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.personas)
}

func (s *MemoryStore) handleTakenLocked(handle string) bool {
	for _, existing := range s.personas {
		if strings.EqualFold(existing.Handle, handle) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) insertPersonaLocked(p *model.Persona) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = s.now()
	s.personas = append(s.personas, *p)
}

func (s *MemoryStore) ListPersonas(ctx context.Context, q PersonaQuery) ([]model.Persona, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	include := idSet(q.IncludeIDs)
	exclude := idSet(q.ExcludeIDs)
	search := strings.ToLower(q.Search)

	// 按创建时间倒序
	matched := []model.Persona{}
	for i := len(s.personas) - 1; i >= 0; i-- {
		p := s.personas[i]
		if q.IncludeIDs != nil && !include[p.ID] {
			continue
		}
		if exclude[p.ID] {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Handle), search) {
			continue
		}
		matched = append(matched, p)
	}

	total := int64(len(matched))
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Offset >= len(matched) {
		return []model.Persona{}, total, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func idSet(ids []uuid.UUID) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	if err := s.checkFailure(OpBegin); err != nil {
		return nil, err
	}
	return &memoryTx{store: s}, nil
}

func (s *MemoryStore) SubscribeNotifications(ctx context.Context, recipientID uuid.UUID, fn NotificationHandler) (Subscription, error) {
	if err := s.checkFailure(OpSubscribeNotification); err != nil {
		return nil, err
	}

	s.subMu.Lock()
	if s.subs[recipientID] == nil {
		s.subs[recipientID] = make(map[int]NotificationHandler)
	}
	s.nextID++
	id := s.nextID
	s.subs[recipientID][id] = fn
	s.subMu.Unlock()

	sub := &memorySubscription{store: s, recipientID: recipientID, id: id, done: make(chan struct{})}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Close()
			case <-sub.done:
			}
		}()
	}
	return sub, nil
}

func (s *MemoryStore) publish(notifications []model.Notification) {
	for i := range notifications {
		n := notifications[i]
		s.subMu.RLock()
		handlers := make([]NotificationHandler, 0, len(s.subs[n.RecipientID]))
		for _, fn := range s.subs[n.RecipientID] {
			handlers = append(handlers, fn)
		}
		s.subMu.RUnlock()

		for _, fn := range handlers {
			copied := n
			fn(&copied)
		}
	}
}

type memorySubscription struct {
	store       *MemoryStore
	recipientID uuid.UUID
	id          int
	once        sync.Once
	done        chan struct{}
}

func (m *memorySubscription) Close() error {
	m.once.Do(func() {
		m.store.subMu.Lock()
		delete(m.store.subs[m.recipientID], m.id)
		if len(m.store.subs[m.recipientID]) == 0 {
			delete(m.store.subs, m.recipientID)
		}
		m.store.subMu.Unlock()
		close(m.done)
	})
	return nil
}

// memoryTx 写入先缓存，Commit 时一次性落库
type memoryTx struct {
	store         *MemoryStore
	personas      []*model.Persona
	relationships []*model.UserRelationship
	notifications []*model.Notification
	done          bool
}

func (t *memoryTx) CreatePersona(p *model.Persona) error {
	if t.done {
		return errTxDone
	}
	if err := t.store.checkFailure(OpTxCreatePersona); err != nil {
		return err
	}
	for _, pending := range t.personas {
		if strings.EqualFold(pending.Handle, p.Handle) {
			return ErrConflict
		}
	}
	t.store.mu.RLock()
	taken := t.store.handleTakenLocked(p.Handle)
	t.store.mu.RUnlock()
	if taken {
		return ErrConflict
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	t.personas = append(t.personas, p)
	return nil
}

func (t *memoryTx) UpsertRelationship(rel *model.UserRelationship) error {
	if t.done {
		return errTxDone
	}
	if err := t.store.checkFailure(OpTxUpsertRelationship); err != nil {
		return err
	}
	t.relationships = append(t.relationships, rel)
	return nil
}

func (t *memoryTx) CreateNotification(n *model.Notification) error {
	if t.done {
		return errTxDone
	}
	if err := t.store.checkFailure(OpTxCreateNotification); err != nil {
		return err
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	t.notifications = append(t.notifications, n)
	return nil
}

func (t *memoryTx) Commit() error {
	if t.done {
		return errTxDone
	}
	s := t.store
	s.mu.Lock()
	if err := s.failure(OpCommit); err != nil {
		s.mu.Unlock()
		return err
	}
	// 并发事务可能已占用 handle
	for _, p := range t.personas {
		if s.handleTakenLocked(p.Handle) {
			s.mu.Unlock()
			t.done = true
			return ErrConflict
		}
	}
	for _, p := range t.personas {
		s.insertPersonaLocked(p)
	}
	for _, rel := range t.relationships {
		s.upsertLocked(rel)
	}
	created := make([]model.Notification, 0, len(t.notifications))
	for _, n := range t.notifications {
		n.CreatedAt = s.now()
		s.notifications = append(s.notifications, *n)
		created = append(created, *n)
	}
	s.commits++
	s.mu.Unlock()

	t.done = true
	s.publish(created)
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.store.mu.Lock()
	t.store.rollbacks++
	t.store.mu.Unlock()
	return nil
}
