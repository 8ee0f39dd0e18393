package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构，code 为 0 表示成功，否则与 HTTP 状态码一致
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func respond(c *gin.Context, httpStatus, code int, message string, data interface{}) {
	c.JSON(httpStatus, Response{Code: code, Message: message, Data: data})
}

// SuccessResponse 200，message 固定为 success
func SuccessResponse(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, 0, "success", data)
}

func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	respond(c, http.StatusOK, 0, message, data)
}

func ErrorResponse(c *gin.Context, httpStatus int, message string) {
	respond(c, httpStatus, httpStatus, message, nil)
}

// ErrorWithData 错误响应附带诊断数据（例如被拒绝的转换和可选的下一步）
func ErrorWithData(c *gin.Context, httpStatus int, message string, data interface{}) {
	respond(c, httpStatus, httpStatus, message, data)
}

func BadRequest(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusUnauthorized, message)
}

func NotFound(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusNotFound, message)
}

func Conflict(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusConflict, message)
}

func InternalServerError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusInternalServerError, message)
}
