package service

import (
	"errors"
	"fmt"

	"barzo_social/model"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInvalidTransition      = errors.New("invalid relationship transition")
	ErrSelfRelationship       = errors.New("cannot create a relationship with yourself")
	ErrNotBlocked             = errors.New("user not blocked")
	ErrNotMuted               = errors.New("user not muted")
	ErrNotificationNotFound   = errors.New("notification not found")
	ErrInvalidFilter          = errors.New("invalid relationship filter")
	ErrInvalidPersona         = errors.New("persona name and handle are required")
)

// InvalidTransitionError 关系转换被拒绝，携带当前和目标类型
type InvalidTransitionError struct {
	From model.RelationshipKind
	To   model.RelationshipKind
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid relationship transition from %q to %q", e.From, e.To)
}

// Is 支持 errors.Is(err, ErrInvalidTransition)
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
