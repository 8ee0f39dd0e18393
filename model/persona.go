package model

import (
	"time"

	"github.com/google/uuid"
)

// Persona 可被关注/拥有的身份（场所、群组等）
type Persona struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OwnerID   uuid.UUID `json:"owner_id" gorm:"type:uuid;not null;index"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null"`
	Handle    string    `json:"handle" gorm:"type:varchar(50);not null;uniqueIndex"`
	Bio       *string   `json:"bio,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

func (Persona) TableName() string {
	return "personas"
}
