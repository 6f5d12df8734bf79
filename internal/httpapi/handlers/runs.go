package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"llm-backend/internal/chat"
	"llm-backend/internal/common"
)

func (h *Handler) ListRuns(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	threadID := c.Query("thread_id")
	if threadID == "" {
		common.Fail(c, http.StatusBadRequest, 10006, "thread_id required")
		return
	}
	thread, ok := h.ownedThread(c, uid, threadID)
	if !ok {
		return
	}

	runs, err := h.Repo.ListRunsByThread(c.Request.Context(), thread.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to list runs")
		return
	}
	common.OK(c, gin.H{"runs": runs})
}

type usageLogReq struct {
	MessageID    uint64 `json:"message_id" binding:"required"`
	ModelName    string `json:"model_name"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	CostCents    int    `json:"cost_cents"`
}

// LogUsage records one model inference directly; token counts default
// to zero when absent.
func (h *Handler) LogUsage(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req usageLogReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid request payload")
		return
	}

	msg, err := h.Repo.GetMessage(c.Request.Context(), req.MessageID)
	if err != nil {
		common.Fail(c, http.StatusNotFound, 40406, "message not found")
		return
	}

	var thread chat.Thread
	if err := h.DB.First(&thread, "id = ?", msg.ThreadID).Error; err != nil || thread.UserID != uid {
		common.Fail(c, http.StatusNotFound, 40406, "message not found")
		return
	}

	if req.ModelName == "" {
		req.ModelName = "unknown"
	}
	if req.InputTokens < 0 {
		req.InputTokens = 0
	}
	if req.OutputTokens < 0 {
		req.OutputTokens = 0
	}

	run := &chat.Run{
		ThreadID:     msg.ThreadID,
		MessageID:    msg.ID,
		Turn:         msg.Turn,
		ModelName:    req.ModelName,
		InputTokens:  req.InputTokens,
		OutputTokens: req.OutputTokens,
		TotalTokens:  req.InputTokens + req.OutputTokens,
		CostCents:    req.CostCents,
	}
	if err := h.Repo.CreateRun(c.Request.Context(), run); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to log usage")
		return
	}

	common.OK(c, gin.H{"status": "ok", "run_id": run.ID})
}
