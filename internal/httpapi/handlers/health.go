package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"llm-backend/internal/common"
)

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func (h *Handler) Health(c *gin.Context) {
	model := h.Cfg.OllamaModel
	if h.Cfg.AIProvider == "openrouter" {
		model = h.Cfg.OpenRouterModel
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"provider": h.Cfg.AIProvider,
		"model":    model,
	})
}
