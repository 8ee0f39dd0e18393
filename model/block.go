package model

import (
	"time"

	"github.com/google/uuid"
)

// UserBlock 拉黑记录（独立于关系表）
type UserBlock struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SubjectID uuid.UUID `json:"subject_id" gorm:"type:uuid;not null;uniqueIndex:idx_block_pair"`
	BlockedID uuid.UUID `json:"blocked_id" gorm:"type:uuid;not null;uniqueIndex:idx_block_pair"`
	Reason    *string   `json:"reason,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (UserBlock) TableName() string {
	return "user_blocks"
}
