package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RelationshipKind 关系类型（按权限等级排序，public 为默认值）
type RelationshipKind string

const (
	KindPublic       RelationshipKind = "public"
	KindBlocked      RelationshipKind = "blocked"
	KindMuted        RelationshipKind = "muted"
	KindFollower     RelationshipKind = "follower"
	KindAcquaintance RelationshipKind = "acquaintance"
	KindFriend       RelationshipKind = "friend"
	KindMember       RelationshipKind = "member"
	KindModerator    RelationshipKind = "moderator"
	KindManager      RelationshipKind = "manager"
	KindOwner        RelationshipKind = "owner"
)

// ErrUnknownKind 不在枚举范围内的关系类型
var ErrUnknownKind = errors.New("unknown relationship kind")

// Valid 是否为已知的关系类型（包括 public）
func (k RelationshipKind) Valid() bool {
	switch k {
	case KindPublic, KindBlocked, KindMuted, KindFollower, KindAcquaintance,
		KindFriend, KindMember, KindModerator, KindManager, KindOwner:
		return true
	}
	return false
}

func (k RelationshipKind) String() string {
	return string(k)
}

// ParseRelationshipKind 解析关系类型，未知值直接拒绝
func ParseRelationshipKind(s string) (RelationshipKind, error) {
	k := RelationshipKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// TargetType 关系目标类型
type TargetType string

const (
	TargetUser    TargetType = "user"
	TargetPersona TargetType = "persona"
)

// ErrUnknownTargetType 未知的目标类型
var ErrUnknownTargetType = errors.New("unknown target type")

func (t TargetType) Valid() bool {
	return t == TargetUser || t == TargetPersona
}

// ParseTargetType 解析目标类型，空字符串视为 user
func ParseTargetType(s string) (TargetType, error) {
	if s == "" {
		return TargetUser, nil
	}
	t := TargetType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTargetType, s)
	}
	return t, nil
}

// UserRelationship 用户关系表（每对 subject/target 最多一行）
type UserRelationship struct {
	ID         uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SubjectID  uuid.UUID        `json:"subject_id" gorm:"type:uuid;not null;uniqueIndex:idx_relationship_pair"`
	TargetID   uuid.UUID        `json:"target_id" gorm:"type:uuid;not null;uniqueIndex:idx_relationship_pair;index"`
	TargetType TargetType       `json:"target_type" gorm:"type:varchar(20);not null"`
	Kind       RelationshipKind `json:"kind" gorm:"type:varchar(20);not null;index"`
	CreatedAt  time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}

func (UserRelationship) TableName() string {
	return "user_relationships"
}
