package handler

import (
	"barzo_social/model"
	"barzo_social/service"
	"barzo_social/store"
	"barzo_social/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RelationshipHandler struct {
	store store.DataStore
}

func NewRelationshipHandler(st store.DataStore) *RelationshipHandler {
	return &RelationshipHandler{store: st}
}

type targetRequest struct {
	TargetUserID uuid.UUID `json:"target_user_id" binding:"required"`
}

// GetRelationship 获取与目标的有效关系
func (h *RelationshipHandler) GetRelationship(c *gin.Context) {
	svc, ok := socialServiceFor(c, h.store)
	if !ok {
		return
	}

	targetID, err := uuid.Parse(c.Param("target_id"))
	if err != nil {
		utils.BadRequest(c, "invalid target id")
		return
	}
	targetType, err := model.ParseTargetType(c.Query("target_type"))
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	kind, err := svc.GetRelationship(c.Request.Context(), targetID, targetType)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"target_id":   targetID,
		"target_type": targetType,
		"kind":        kind,
		"level":       svc.GetRelationshipLevel(kind),
		"allowed":     service.AllowedTransitions(kind),
	})
}

// SetRelationship 修改与目标的关系
func (h *RelationshipHandler) SetRelationship(c *gin.Context) {
	svc, ok := socialServiceFor(c, h.store)
	if !ok {
		return
	}

	var req struct {
		TargetID   uuid.UUID `json:"target_id" binding:"required"`
		TargetType string    `json:"target_type"`
		Kind       string    `json:"kind" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	// 在边界处拒绝未知类型
	kind, err := model.ParseRelationshipKind(req.Kind)
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	targetType, err := model.ParseTargetType(req.TargetType)
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	rel, err := svc.SetRelationship(c.Request.Context(), req.TargetID, targetType, kind)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"relationship": rel})
}

// CheckTransition 预先检查转换是否允许（不写入）
func (h *RelationshipHandler) CheckTransition(c *gin.Context) {
	from, err := model.ParseRelationshipKind(c.DefaultQuery("from", string(model.KindPublic)))
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	to, err := model.ParseRelationshipKind(c.Query("to"))
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"from":    from,
		"to":      to,
		"valid":   service.IsValidTransition(from, to),
		"upgrade": service.IsRelationshipUpgrade(from, to),
	})
}

// CheckPermission 检查与目标的关系是否达到要求的等级
func (h *RelationshipHandler) CheckPermission(c *gin.Context) {
	svc, ok := socialServiceFor(c, h.store)
	if !ok {
		return
	}

	targetID, err := uuid.Parse(c.Param("target_id"))
	if err != nil {
		utils.BadRequest(c, "invalid target id")
		return
	}
	targetType, err := model.ParseTargetType(c.Query("target_type"))
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	required, err := model.ParseRelationshipKind(c.Query("required"))
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	allowed, err := svc.HasPermission(c.Request.Context(), targetID, targetType, required)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"required": required, "allowed": allowed})
}

// BlockUser 拉黑用户
func (h *RelationshipHandler) BlockUser(c *gin.Context) {
	svc, ok := socialServiceFor(c, h.store)
	if !ok {
		return
	}

	var req struct {
		TargetUserID uuid.UUID `json:"target_user_id" binding:"required"`
		Reason       *string   `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	block, err := svc.BlockUser(c.Request.Context(), req.TargetUserID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessWithMessage(c, "user blocked successfully", gin.H{"block": block})
}

// UnblockUser 取消拉黑
func (h *RelationshipHandler) UnblockUser(c *gin.Context) {
	svc, ok := socialServiceFor(c, h.store)
	if !ok {
		return
	}

	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	if err := svc.UnblockUser(c.Request.Context(), req.TargetUserID); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessWithMessage(c, "user unblocked successfully", nil)
}

// GetBlockedUsers 获取拉黑列表
func (h *RelationshipHandler) GetBlockedUsers(c *gin.Context) {
	svc, ok := socialServiceFor(c, h.store)
	if !ok {
		return
	}

	blocked, err := svc.GetBlockedUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"blocked_users": blocked})
}

// MuteUser 静音用户
func (h *RelationshipHandler) MuteUser(c *gin.Context) {
	svc, ok := socialServiceFor(c, h.store)
	if !ok {
		return
	}

	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	rel, err := svc.MuteUser(c.Request.Context(), req.TargetUserID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessWithMessage(c, "user muted successfully", gin.H{"relationship": rel})
}

// UnmuteUser 取消静音
func (h *RelationshipHandler) UnmuteUser(c *gin.Context) {
	svc, ok := socialServiceFor(c, h.store)
	if !ok {
		return
	}

	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	if err := svc.UnmuteUser(c.Request.Context(), req.TargetUserID); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessWithMessage(c, "user unmuted successfully", nil)
}
