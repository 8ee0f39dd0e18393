package service

import (
	"context"
	"fmt"
	"strings"

	"barzo_social/model"
	"barzo_social/store"

	"github.com/google/uuid"
)

// RelationshipFilter 人设搜索的关系过滤
type RelationshipFilter string

const (
	FilterAll     RelationshipFilter = "all"
	FilterBlocked RelationshipFilter = "blocked"
	FilterMuted   RelationshipFilter = "muted"
	FilterActive  RelationshipFilter = "active" // 排除拉黑和静音
)

// ParseRelationshipFilter 空字符串视为 all
func ParseRelationshipFilter(s string) (RelationshipFilter, error) {
	switch f := RelationshipFilter(s); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterBlocked, FilterMuted, FilterActive:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFilter, s)
}

const (
	defaultPersonaPageSize = 20
	maxPersonaPageSize     = 100
	maxPersonaPage         = 10000
)

// SearchPersonasOptions 分页从 1 开始
type SearchPersonasOptions struct {
	Query    string
	Filter   RelationshipFilter
	Page     int
	PageSize int
}

// PersonaPage 一页搜索结果
type PersonaPage struct {
	Personas []model.Persona `json:"personas"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	HasMore  bool            `json:"has_more"`
}

// SearchPersonas 分页搜索人设，先取出当前用户的拉黑/静音集合再按过滤条件包含或排除
func (s *SocialService) SearchPersonas(ctx context.Context, opts SearchPersonasOptions) (*PersonaPage, error) {
	userID, err := s.CurrentUserID()
	if err != nil {
		return nil, err
	}

	if opts.Filter == "" {
		opts.Filter = FilterAll
	}
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Page > maxPersonaPage {
		opts.Page = maxPersonaPage
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPersonaPageSize
	}
	if opts.PageSize > maxPersonaPageSize {
		opts.PageSize = maxPersonaPageSize
	}

	query := store.PersonaQuery{
		Search: strings.TrimSpace(opts.Query),
		Limit:  opts.PageSize,
		Offset: (opts.Page - 1) * opts.PageSize,
	}

	switch opts.Filter {
	case FilterAll:
	case FilterBlocked:
		blocked, err := s.blockedIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
		query.IncludeIDs = nonNil(blocked)
	case FilterMuted:
		muted, err := s.store.ListRelationshipTargets(ctx, userID, model.KindMuted)
		if err != nil {
			return nil, err
		}
		query.IncludeIDs = nonNil(muted)
	case FilterActive:
		blocked, err := s.blockedIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
		muted, err := s.store.ListRelationshipTargets(ctx, userID, model.KindMuted)
		if err != nil {
			return nil, err
		}
		query.ExcludeIDs = append(blocked, muted...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilter, opts.Filter)
	}

	personas, total, err := s.store.ListPersonas(ctx, query)
	if err != nil {
		return nil, err
	}

	return &PersonaPage{
		Personas: personas,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.PageSize,
		HasMore:  int64(query.Offset+len(personas)) < total,
	}, nil
}

// blockedIDs 关系表中的 blocked 记录和拉黑表合并去重
func (s *SocialService) blockedIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.store.ListRelationshipTargets(ctx, userID, model.KindBlocked)
	if err != nil {
		return nil, err
	}
	blocks, err := s.store.ListBlocks(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(ids)+len(blocks))
	result := make([]uuid.UUID, 0, len(ids)+len(blocks))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}
	for _, b := range blocks {
		if !seen[b.BlockedID] {
			seen[b.BlockedID] = true
			result = append(result, b.BlockedID)
		}
	}
	return result, nil
}

func nonNil(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

// CreatePersona 为当前用户创建人设，人设和 owner 关系在同一事务内写入
func (s *SocialService) CreatePersona(ctx context.Context, name, handle string, bio *string) (*model.Persona, error) {
	userID, err := s.CurrentUserID()
	if err != nil {
		return nil, err
	}

	persona := &model.Persona{
		OwnerID: userID,
		Name:    strings.TrimSpace(name),
		Handle:  strings.ToLower(strings.TrimSpace(handle)),
		Bio:     bio,
	}
	if persona.Name == "" || persona.Handle == "" {
		return nil, ErrInvalidPersona
	}
	// owner 关系直接写入，不走逐级转换
	owner := &model.UserRelationship{
		SubjectID:  userID,
		TargetType: model.TargetPersona,
		Kind:       model.KindOwner,
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if err := tx.CreatePersona(persona); err != nil {
		s.rollback(tx, err)
		return nil, err
	}
	owner.TargetID = persona.ID
	if err := tx.UpsertRelationship(owner); err != nil {
		s.rollback(tx, err)
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return persona, nil
}
