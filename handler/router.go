package handler

import (
	"time"

	"barzo_social/middleware"
	"barzo_social/store"
	"barzo_social/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig 路由依赖
type RouterConfig struct {
	Store       store.DataStore
	Hub         *Hub
	CORSOrigins []string
}

// NewRouter 注册所有路由
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(middleware.ErrorHandlerMiddleware())

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	relHandler := NewRelationshipHandler(cfg.Store)
	notifHandler := NewNotificationHandler(cfg.Store)
	personaHandler := NewPersonaHandler(cfg.Store)

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		utils.SuccessResponse(c, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket 连接（使用 token 认证，不需要 HTTP 中间件）
	if cfg.Hub != nil {
		r.GET("/ws", HandleWebSocket(cfg.Hub))
	}

	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware())
	{
		// 用户关系
		api.GET("/relationships/transitions", relHandler.CheckTransition)
		api.GET("/relationships/blocked", relHandler.GetBlockedUsers)
		api.POST("/relationships", relHandler.SetRelationship)
		api.POST("/relationships/block", relHandler.BlockUser)
		api.POST("/relationships/unblock", relHandler.UnblockUser)
		api.POST("/relationships/mute", relHandler.MuteUser)
		api.POST("/relationships/unmute", relHandler.UnmuteUser)
		api.GET("/relationships/target/:target_id", relHandler.GetRelationship)
		api.GET("/relationships/target/:target_id/permission", relHandler.CheckPermission)

		// 通知
		api.GET("/notifications", notifHandler.GetNotifications)
		api.POST("/notifications/:id/read", notifHandler.MarkNotificationRead)

		// 人设
		api.GET("/personas", personaHandler.SearchPersonas)
		api.POST("/personas", personaHandler.CreatePersona)
	}

	return r
}
