package middleware

import (
	"log"

	"barzo_social/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// ErrorHandlerMiddleware 为请求分配 request id，恢复 panic，记录 handler 挂上的错误
//
// 5xx 响应带上 request id，方便对照日志。
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)

		defer func() {
			if err := recover(); err != nil {
				log.Printf("[ERROR] [%s] panic on %s %s: %v", requestID, c.Request.Method, c.FullPath(), err)
				if !c.Writer.Written() {
					utils.ErrorWithData(c, 500, "internal server error", gin.H{requestIDKey: requestID})
				}
				c.Abort()
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()
		log.Printf("[ERROR] [%s] %s %s failed: %v", requestID, c.Request.Method, c.FullPath(), err.Err)
		if !c.Writer.Written() {
			utils.ErrorWithData(c, 500, err.Error(), gin.H{requestIDKey: requestID})
		}
	}
}

// GetRequestID 当前请求的 request id
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
