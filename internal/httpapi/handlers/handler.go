package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"llm-backend/internal/chat"
	"llm-backend/internal/config"
	"llm-backend/internal/httpapi/middleware"
)

type Handler struct {
	DB      *gorm.DB
	Cfg     config.Config
	ChatSvc *chat.Service
	Repo    *chat.Repo
}

func NewHandler(db *gorm.DB, cfg config.Config, svc *chat.Service, repo *chat.Repo) *Handler {
	return &Handler{DB: db, Cfg: cfg, ChatSvc: svc, Repo: repo}
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
