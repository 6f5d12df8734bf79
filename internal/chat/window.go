package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"llm-backend/internal/ai"
	"llm-backend/internal/broker"
	"llm-backend/internal/observability"
)

// SanitizeWindow normalizes a context window: only user/assistant roles
// survive, content is trimmed, empties are dropped, and the result is
// capped to the most recent max entries, oldest first. Applying it to an
// already-sanitized window is a no-op.
func SanitizeWindow(entries []ai.Message, max int) []ai.Message {
	out := make([]ai.Message, 0, len(entries))
	for _, e := range entries {
		role := strings.TrimSpace(e.Role)
		if role != "user" && role != "assistant" {
			continue
		}
		content := strings.TrimSpace(e.Content)
		if content == "" {
			continue
		}
		out = append(out, ai.Message{Role: role, Content: content})
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

// ContextCache holds the last turns of a thread under a short TTL so a
// request does not re-read full history from the store. Keys are
// thread-scoped; concurrent writers for the same thread race with
// last-writer-wins, which is acceptable for duplicate submissions.
type ContextCache struct {
	kv  broker.KV
	ttl time.Duration
	max int
}

func NewContextCache(kv broker.KV, ttl time.Duration, max int) *ContextCache {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	if max <= 0 || max > 100 {
		max = 20
	}
	return &ContextCache{kv: kv, ttl: ttl, max: max}
}

func (c *ContextCache) Max() int { return c.max }

func (c *ContextCache) key(threadKey string) string {
	return "chatctx:" + threadKey
}

// Get returns the cached window, or ok=false on miss. A corrupt cache
// entry counts as a miss.
func (c *ContextCache) Get(ctx context.Context, threadKey string) ([]ai.Message, bool) {
	raw, err := c.kv.Get(ctx, c.key(threadKey))
	if err != nil {
		if err != broker.ErrNotFound {
			observability.LoggerFromContext(ctx).Warn("chat.context_cache.read_failed",
				"thread", threadKey, "err", err.Error())
		}
		return nil, false
	}
	var window []ai.Message
	if err := json.Unmarshal(raw, &window); err != nil {
		observability.LoggerFromContext(ctx).Warn("chat.context_cache.corrupt",
			"thread", threadKey, "err", err.Error())
		return nil, false
	}
	return SanitizeWindow(window, c.max), true
}

// Set sanitizes and writes the window back with a refreshed TTL.
func (c *ContextCache) Set(ctx context.Context, threadKey string, window []ai.Message) error {
	raw, err := json.Marshal(SanitizeWindow(window, c.max))
	if err != nil {
		return err
	}
	return c.kv.SetEX(ctx, c.key(threadKey), raw, c.ttl)
}
