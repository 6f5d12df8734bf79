package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"llm-backend/internal/chat"
	"llm-backend/internal/common"
)

type chatReq struct {
	Input    string         `json:"input"`
	ThreadID string         `json:"thread_id"`
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Stream   *bool          `json:"stream"`
	Config   map[string]any `json:"config"`
}

// Chat handles POST /api/v1/chat. With stream on (the default) the
// response is an SSE stream of {id, model, delta, done} chunks; the
// terminal chunk has done:true and the persisted row ids. Otherwise the
// pipeline runs to completion and returns one JSON body.
func (h *Handler) Chat(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid request payload")
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "input must be a non-empty string")
		return
	}

	sreq := chat.StreamRequest{
		UserID:   uid,
		ThreadID: strings.TrimSpace(req.ThreadID),
		Input:    req.Input,
		Provider: req.Provider,
		Model:    req.Model,
		Config:   req.Config,
	}

	if req.Stream != nil && !*req.Stream {
		resp, err := h.ChatSvc.Complete(c.Request.Context(), sreq)
		if err != nil {
			common.Fail(c, http.StatusBadGateway, 50201, err.Error())
			return
		}
		common.OK(c, resp)
		return
	}

	h.streamChat(c, sreq)
}

func (h *Handler) streamChat(c *gin.Context, sreq chat.StreamRequest) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx

	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "data: {\"id\":\"error\",\"delta\":\"streaming unsupported\",\"done\":true}\n\n")
		return
	}

	writeChunk := func(chunk chat.StreamChunk) {
		b, err := json.Marshal(chunk)
		if err != nil {
			fmt.Fprintf(c.Writer, "data: {\"id\":\"error\",\"delta\":\"encode failed\",\"done\":true}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", b)
		flusher.Flush()
	}

	ctx := c.Request.Context()
	chunks, errs := h.ChatSvc.StreamCompletion(ctx, sreq)

	// heartbeat comments keep intermediaries from closing idle streams
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				// errs decides whether this was a clean end
				if errs != nil {
					if err := <-errs; err != nil {
						writeChunk(errorChunk(err))
					}
				}
				return
			}
			writeChunk(chunk)

		case err := <-errs:
			if err == nil {
				// closed without an error; stop selecting on it
				errs = nil
				continue
			}
			// drain whatever was already produced, then terminate cleanly
			for chunk := range chunks {
				writeChunk(chunk)
			}
			writeChunk(errorChunk(err))
			return

		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": ping\n\n")
			flusher.Flush()

		case <-ctx.Done():
			return
		}
	}
}

// errorChunk is the synthetic terminal chunk: the connection always
// ends with done:true instead of hanging.
func errorChunk(err error) chat.StreamChunk {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	if errors.Is(err, chat.ErrJobTimeout) {
		msg = "job timed out"
	}
	return chat.StreamChunk{ID: "error", Delta: msg, Done: true}
}
