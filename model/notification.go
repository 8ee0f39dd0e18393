package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NotificationTypeRelationshipChange 关系变更通知
const NotificationTypeRelationshipChange = "relationship_change"

// Notification 通知表（创建后只允许设置 read_at）
type Notification struct {
	ID               uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RecipientID      uuid.UUID       `json:"recipient_id" gorm:"type:uuid;not null;index"`
	RecipientType    TargetType      `json:"recipient_type" gorm:"type:varchar(20);not null"`
	NotificationType string          `json:"notification_type" gorm:"type:varchar(30);not null"`
	SourceID         uuid.UUID       `json:"source_id" gorm:"type:uuid;not null"`
	Metadata         json.RawMessage `json:"metadata,omitempty" gorm:"type:jsonb"`
	ReadAt           *time.Time      `json:"read_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at" gorm:"autoCreateTime;index"`
}

func (Notification) TableName() string {
	return "notifications"
}

// IsRead 是否已读
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// RelationshipChangeMetadata relationship_change 通知的元数据
type RelationshipChangeMetadata struct {
	OldType   RelationshipKind `json:"old_type"`
	NewType   RelationshipKind `json:"new_type"`
	Timestamp time.Time        `json:"timestamp"`
}

// DecodeRelationshipChange 解析关系变更元数据
func (n *Notification) DecodeRelationshipChange() (*RelationshipChangeMetadata, error) {
	var meta RelationshipChangeMetadata
	if err := json.Unmarshal(n.Metadata, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
