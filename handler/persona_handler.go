package handler

import (
	"strconv"

	"barzo_social/service"
	"barzo_social/store"
	"barzo_social/utils"

	"github.com/gin-gonic/gin"
)

type PersonaHandler struct {
	store store.DataStore
}

func NewPersonaHandler(st store.DataStore) *PersonaHandler {
	return &PersonaHandler{store: st}
}

// SearchPersonas 搜索人设（支持按关系过滤）
func (h *PersonaHandler) SearchPersonas(c *gin.Context) {
	svc, ok := socialServiceFor(c, h.store)
	if !ok {
		return
	}

	filter, err := service.ParseRelationshipFilter(c.Query("filter"))
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := svc.SearchPersonas(c.Request.Context(), service.SearchPersonasOptions{
		Query:    c.Query("q"),
		Filter:   filter,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}

// CreatePersona 创建人设
func (h *PersonaHandler) CreatePersona(c *gin.Context) {
	svc, ok := socialServiceFor(c, h.store)
	if !ok {
		return
	}

	var req struct {
		Name   string  `json:"name" binding:"required"`
		Handle string  `json:"handle" binding:"required"`
		Bio    *string `json:"bio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	persona, err := svc.CreatePersona(c.Request.Context(), req.Name, req.Handle, req.Bio)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"persona": persona})
}
