package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"llm-backend/internal/chat"
	"llm-backend/internal/common"
	"llm-backend/internal/observability"
)

type feedbackReq struct {
	MessageID uint64 `json:"message_id" binding:"required"`
	Rating    int    `json:"rating" binding:"required,min=1,max=10"`
	Comment   string `json:"comment" binding:"max=500"`
}

func (h *Handler) SubmitFeedback(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req feedbackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid request payload")
		return
	}

	msg, err := h.Repo.GetMessage(c.Request.Context(), req.MessageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40406, "message not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	var thread chat.Thread
	if err := h.DB.First(&thread, "id = ?", msg.ThreadID).Error; err != nil || thread.UserID != uid {
		common.Fail(c, http.StatusNotFound, 40406, "message not found")
		return
	}

	fb := &chat.Feedback{
		MessageID: req.MessageID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	}
	if err := h.Repo.CreateFeedback(c.Request.Context(), fb); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50005, "failed to create feedback")
		return
	}

	observability.LoggerFromContext(c.Request.Context()).Info("feedback.created",
		"id", fb.ID, "message_id", fb.MessageID, "rating", fb.Rating)

	common.Created(c, fb)
}
