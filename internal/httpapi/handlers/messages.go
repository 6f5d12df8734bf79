package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"llm-backend/internal/chat"
	"llm-backend/internal/common"
)

// ownedThread loads a thread by public id and hides other users' threads.
func (h *Handler) ownedThread(c *gin.Context, uid uint64, publicID string) (*chat.Thread, bool) {
	thread, err := h.Repo.GetThreadByPublicID(c.Request.Context(), publicID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "thread not found")
			return nil, false
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return nil, false
	}
	if thread.UserID != uid {
		common.Fail(c, http.StatusNotFound, 40404, "thread not found")
		return nil, false
	}
	return thread, true
}

func (h *Handler) ListThreads(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	threads, err := h.Repo.ListThreadsByUser(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list threads")
		return
	}
	common.OK(c, gin.H{"threads": threads})
}

func (h *Handler) ListThreadMessages(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	thread, ok := h.ownedThread(c, uid, c.Param("thread_id"))
	if !ok {
		return
	}

	msgs, err := h.Repo.ListMessagesByThread(c.Request.Context(), thread.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}
	common.OK(c, gin.H{"messages": msgs})
}

func (h *Handler) ListTurnMessages(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	thread, ok := h.ownedThread(c, uid, c.Param("thread_id"))
	if !ok {
		return
	}

	turn, err := strconv.Atoi(c.Param("turn"))
	if err != nil || turn <= 0 {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid turn")
		return
	}

	msgs, err := h.Repo.ListMessagesByTurn(c.Request.Context(), thread.ID, turn)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}
	if len(msgs) == 0 {
		common.Fail(c, http.StatusNotFound, 40405, "no messages for turn")
		return
	}
	common.OK(c, gin.H{"messages": msgs})
}

func (h *Handler) GetMessage(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	id, err := strconv.ParseUint(c.Param("message_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10005, "invalid message id")
		return
	}

	msg, err := h.Repo.GetMessage(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40406, "message not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	// ownership via the containing thread
	var thread chat.Thread
	if err := h.DB.First(&thread, "id = ?", msg.ThreadID).Error; err != nil || thread.UserID != uid {
		common.Fail(c, http.StatusNotFound, 40406, "message not found")
		return
	}

	common.OK(c, msg)
}
