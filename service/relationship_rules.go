package service

import (
	"barzo_social/model"
)

// relationshipOrder 固定的权限顺序（下标即等级），用于权限比较，与转换图无关
var relationshipOrder = []model.RelationshipKind{
	model.KindBlocked,
	model.KindMuted,
	model.KindFollower,
	model.KindAcquaintance,
	model.KindFriend,
	model.KindMember,
	model.KindModerator,
	model.KindManager,
	model.KindOwner,
}

var relationshipLevels = func() map[model.RelationshipKind]int {
	levels := make(map[model.RelationshipKind]int, len(relationshipOrder))
	for i, k := range relationshipOrder {
		levels[k] = i
	}
	return levels
}()

// publicTransitions 无关系时只能关注、拉黑或静音
var publicTransitions = []model.RelationshipKind{
	model.KindFollower,
	model.KindBlocked,
	model.KindMuted,
}

// relationshipTransitions 每次只能升降一级，任意等级都可以直接拉黑/静音
var relationshipTransitions = map[model.RelationshipKind][]model.RelationshipKind{
	model.KindBlocked:      {model.KindMuted, model.KindFollower},
	model.KindMuted:        {model.KindBlocked, model.KindFollower},
	model.KindFollower:     {model.KindBlocked, model.KindMuted, model.KindAcquaintance},
	model.KindAcquaintance: {model.KindBlocked, model.KindMuted, model.KindFollower, model.KindFriend},
	model.KindFriend:       {model.KindBlocked, model.KindMuted, model.KindAcquaintance, model.KindMember},
	model.KindMember:       {model.KindBlocked, model.KindMuted, model.KindFriend, model.KindModerator},
	model.KindModerator:    {model.KindBlocked, model.KindMuted, model.KindMember, model.KindManager},
	model.KindManager:      {model.KindBlocked, model.KindMuted, model.KindModerator, model.KindOwner},
	model.KindOwner:        {model.KindBlocked, model.KindMuted, model.KindManager},
}

// AllowedTransitions 返回 from 可以转换到的关系类型，未知类型返回 nil
func AllowedTransitions(from model.RelationshipKind) []model.RelationshipKind {
	if from == model.KindPublic {
		return append([]model.RelationshipKind(nil), publicTransitions...)
	}
	next, ok := relationshipTransitions[from]
	if !ok {
		return nil
	}
	return append([]model.RelationshipKind(nil), next...)
}

// IsValidTransition 检查 from -> to 是否允许
func IsValidTransition(from, to model.RelationshipKind) bool {
	for _, k := range AllowedTransitions(from) {
		if k == to {
			return true
		}
	}
	return false
}

// RelationshipLevel 关系等级 0(blocked)..8(owner)，未知类型（包括 public）返回 -1
func RelationshipLevel(kind model.RelationshipKind) int {
	level, ok := relationshipLevels[kind]
	if !ok {
		return -1
	}
	return level
}

// IsRelationshipUpgrade to 的等级是否高于 from
func IsRelationshipUpgrade(from, to model.RelationshipKind) bool {
	return RelationshipLevel(to) > RelationshipLevel(from)
}
