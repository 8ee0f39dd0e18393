package handler

import (
	"errors"
	"net/http"

	"barzo_social/middleware"
	"barzo_social/model"
	"barzo_social/service"
	"barzo_social/store"
	"barzo_social/utils"

	"github.com/gin-gonic/gin"
)

// socialServiceFor 为当前请求的会话创建服务
func socialServiceFor(c *gin.Context, st store.DataStore) (*service.SocialService, bool) {
	session, _ := middleware.GetSession(c)
	svc, err := service.NewSocialService(st, session)
	if err != nil {
		utils.Unauthorized(c, err.Error())
		return nil, false
	}
	return svc, true
}

// respondError 把服务层错误映射为 HTTP 响应
func respondError(c *gin.Context, err error) {
	var transitionErr *service.InvalidTransitionError
	var storageErr *store.StorageError

	switch {
	case errors.Is(err, service.ErrAuthenticationRequired):
		utils.Unauthorized(c, err.Error())
	case errors.As(err, &transitionErr):
		utils.ErrorWithData(c, http.StatusConflict, err.Error(), gin.H{
			"from":    transitionErr.From,
			"to":      transitionErr.To,
			"allowed": service.AllowedTransitions(transitionErr.From),
		})
	case errors.Is(err, model.ErrUnknownKind),
		errors.Is(err, model.ErrUnknownTargetType),
		errors.Is(err, service.ErrSelfRelationship),
		errors.Is(err, service.ErrInvalidFilter),
		errors.Is(err, service.ErrInvalidPersona):
		utils.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrNotBlocked),
		errors.Is(err, service.ErrNotMuted),
		errors.Is(err, service.ErrNotificationNotFound):
		utils.NotFound(c, err.Error())
	case errors.Is(err, store.ErrConflict):
		utils.Conflict(c, err.Error())
	case errors.As(err, &storageErr):
		_ = c.Error(err)
		utils.InternalServerError(c, "storage error")
	default:
		_ = c.Error(err)
		utils.InternalServerError(c, err.Error())
	}
}
