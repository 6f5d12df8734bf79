package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"llm-backend/internal/ai"
	"llm-backend/internal/broker"
	"llm-backend/internal/common"
	"llm-backend/internal/observability"
)

var (
	ErrEmptyInput = errors.New("chat: input must be a non-empty string")
	ErrJobTimeout = errors.New("chat: job deadline exceeded")
)

type ServiceConfig struct {
	ReceiveTimeout  time.Duration
	JobTimeout      time.Duration
	DefaultProvider string
	DefaultModel    string
}

// Service is the streaming orchestrator: it enqueues a job, subscribes
// to its result channel, forwards chunks to the caller while
// accumulating the full response, and persists the turn plus its usage
// record once the stream ends.
type Service struct {
	repo  *Repo
	queue broker.JobQueue
	bus   broker.ResultBus
	cache *ContextCache

	receiveTimeout  time.Duration
	jobTimeout      time.Duration
	defaultProvider string
	defaultModel    string
}

func NewService(repo *Repo, queue broker.JobQueue, bus broker.ResultBus, cache *ContextCache, cfg ServiceConfig) *Service {
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = 30 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "ollama"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "llama3.2:1b"
	}
	return &Service{
		repo:            repo,
		queue:           queue,
		bus:             bus,
		cache:           cache,
		receiveTimeout:  cfg.ReceiveTimeout,
		jobTimeout:      cfg.JobTimeout,
		defaultProvider: cfg.DefaultProvider,
		defaultModel:    cfg.DefaultModel,
	}
}

type StreamRequest struct {
	UserID   uint64
	ThreadID string // public id; empty or unknown creates a new thread
	Input    string
	Provider string
	Model    string
	Config   map[string]any
}

// StreamChunk is one caller-facing SSE payload. The terminal chunk has
// Done set and carries the correlation ids for the persisted rows.
type StreamChunk struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Delta string `json:"delta"`
	Done  bool   `json:"done"`

	ThreadID  string `json:"thread_id,omitempty"`
	Turn      int    `json:"turn,omitempty"`
	MessageID uint64 `json:"message_id,omitempty"`
}

// StreamCompletion runs the full pipeline for one request. Chunks are
// delivered on the first channel; a value on the second aborts the
// stream. Both channels are closed when the request is over.
func (s *Service) StreamCompletion(ctx context.Context, req StreamRequest) (<-chan StreamChunk, <-chan error) {
	out := make(chan StreamChunk, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		log := observability.LoggerFromContext(ctx)

		input := strings.TrimSpace(req.Input)
		if input == "" {
			errs <- ErrEmptyInput
			return
		}

		// 1) resolve thread + next turn
		thread, err := s.resolveThread(ctx, req.UserID, req.ThreadID, input)
		if err != nil {
			errs <- err
			return
		}
		turn, err := s.repo.NextTurn(ctx, thread.ID)
		if err != nil {
			errs <- err
			return
		}

		// 2) context window: cache first, store on miss
		window, err := s.loadWindow(ctx, thread)
		if err != nil {
			errs <- err
			return
		}

		// 3) build the job
		jobID := uuid.NewString()
		job := Job{
			ID:      jobID,
			Input:   input,
			Context: window,
			Config:  s.jobConfig(req),
		}
		payload, err := json.Marshal(job)
		if err != nil {
			errs <- err
			return
		}

		// 4) subscribe before enqueue so a fast worker cannot publish
		// into a channel nobody listens on yet.
		sub, err := s.bus.Subscribe(ctx, ResultChannel(jobID))
		if err != nil {
			errs <- err
			return
		}
		defer sub.Close()

		if err := s.queue.Enqueue(ctx, payload); err != nil {
			errs <- err
			return
		}

		log.Info("chat.job.enqueued",
			"job_id", jobID, "thread_id", thread.PublicID, "turn", turn,
			"context_len", len(window))

		// 5) receive loop
		var b strings.Builder
		modelName, _ := job.Config["model"].(string)
		inputTokens, outputTokens := 0, 0
		sawUsage := false
		deadline := time.Now().Add(s.jobTimeout)

	recv:
		for {
			// the deadline bounds the whole loop, not just idle gaps;
			// a worker emitting chunks forever must still be cut off
			wait := time.Until(deadline)
			if wait <= 0 {
				log.Error("chat.job.deadline", "job_id", jobID)
				errs <- ErrJobTimeout
				return
			}
			if wait > s.receiveTimeout {
				wait = s.receiveTimeout
			}
			raw, err := sub.Receive(ctx, wait)
			if err != nil {
				if errors.Is(err, broker.ErrNoMessage) {
					continue
				}
				errs <- err
				return
			}

			var ev ResultEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				// tolerate partial/truncated lines
				continue
			}

			switch ev.Type {
			case EventChunk:
				b.WriteString(ev.Content)
				// an abandoned caller stops draining; never block on
				// the send or the subscription is held forever
				select {
				case out <- StreamChunk{ID: jobID, Model: modelName, Delta: ev.Content}:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			case EventMetadata:
				if ev.Usage != nil {
					inputTokens = usageCount(ctx, ev.Usage, "input_tokens")
					outputTokens = usageCount(ctx, ev.Usage, "output_tokens")
					sawUsage = true
				}
				if m, ok := ev.ResponseMetadata["model"].(string); ok && m != "" {
					modelName = m
				}
			case EventError:
				errs <- fmt.Errorf("worker: %s", ev.Message)
				return
			case EventEnd:
				break recv
			default:
				// worker announce and future event types
			}
		}

		// 6) bookkeeping; the caller already has their answer, so
		// failures here are logged and swallowed.
		if !sawUsage {
			log.Warn("chat.usage.missing", "job_id", jobID)
		}
		assistantText := b.String()

		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		var assistantID uint64
		_, assistantMsg, err := s.repo.CreateTurn(pctx, thread.ID, turn, input, assistantText)
		if err != nil {
			log.Error("chat.turn.persist_failed",
				"job_id", jobID, "thread_id", thread.PublicID, "turn", turn, "err", err.Error())
		} else {
			assistantID = assistantMsg.ID
			log.Info("thread_turn.created",
				"thread_id", thread.PublicID, "turn", turn,
				"assistant_message_id", assistantID)

			run := &Run{
				ThreadID:     thread.ID,
				MessageID:    assistantID,
				Turn:         turn,
				ModelName:    modelName,
				InputTokens:  inputTokens,
				OutputTokens: outputTokens,
				TotalTokens:  inputTokens + outputTokens,
			}
			if err := s.repo.CreateRun(pctx, run); err != nil {
				log.Error("chat.run.persist_failed",
					"job_id", jobID, "thread_id", thread.PublicID, "err", err.Error())
			}
		}

		next := append(window,
			ai.Message{Role: "user", Content: input},
			ai.Message{Role: "assistant", Content: assistantText},
		)
		if err := s.cache.Set(pctx, thread.PublicID, next); err != nil {
			log.Warn("chat.context_cache.write_failed",
				"thread_id", thread.PublicID, "err", err.Error())
		}

		// 7) terminal chunk correlating the stream with persisted rows
		select {
		case out <- StreamChunk{
			ID:        jobID,
			Model:     modelName,
			Done:      true,
			ThreadID:  thread.PublicID,
			Turn:      turn,
			MessageID: assistantID,
		}:
		case <-ctx.Done():
		}
	}()

	return out, errs
}

type ChatResponse struct {
	ID        string `json:"id"`
	Model     string `json:"model"`
	Content   string `json:"content"`
	ThreadID  string `json:"thread_id"`
	Turn      int    `json:"turn"`
	MessageID uint64 `json:"message_id"`
}

// Complete runs the same pipeline but collects the stream into a single
// response.
func (s *Service) Complete(ctx context.Context, req StreamRequest) (*ChatResponse, error) {
	chunks, errs := s.StreamCompletion(ctx, req)

	var b strings.Builder
	resp := &ChatResponse{}
	for ch := range chunks {
		b.WriteString(ch.Delta)
		resp.ID = ch.ID
		resp.Model = ch.Model
		if ch.Done {
			resp.ThreadID = ch.ThreadID
			resp.Turn = ch.Turn
			resp.MessageID = ch.MessageID
		}
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	resp.Content = b.String()
	return resp, nil
}

func (s *Service) resolveThread(ctx context.Context, userID uint64, publicID, input string) (*Thread, error) {
	if publicID != "" {
		t, err := s.repo.GetThreadByPublicID(ctx, publicID)
		if err == nil && t.UserID == userID {
			return t, nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		// unknown or foreign id: start a fresh thread
	}

	pid, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	t := &Thread{PublicID: pid, UserID: userID, Title: titleFromInput(input)}
	if err := s.repo.CreateThread(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) loadWindow(ctx context.Context, thread *Thread) ([]ai.Message, error) {
	if win, ok := s.cache.Get(ctx, thread.PublicID); ok {
		return win, nil
	}

	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, thread.ID, s.cache.Max())
	if err != nil {
		return nil, err
	}
	// reverse to ASC (oldest -> newest)
	win := make([]ai.Message, 0, len(recentDesc))
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		win = append(win, ai.Message{Role: m.Role, Content: m.Content})
	}
	return SanitizeWindow(win, s.cache.Max()), nil
}

// jobConfig merges caller configuration with resolved provider/model so
// the worker needs no further lookups.
func (s *Service) jobConfig(req StreamRequest) map[string]any {
	cfg := make(map[string]any, len(req.Config)+2)
	for k, v := range req.Config {
		cfg[k] = v
	}
	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		provider = s.defaultProvider
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = s.defaultModel
	}
	cfg["provider"] = provider
	cfg["model"] = model
	return cfg
}

// usageCount pulls a token count out of loosely typed usage metadata.
// Anything missing or non-numeric degrades to 0 with a warning instead
// of failing bookkeeping.
func usageCount(ctx context.Context, usage map[string]any, key string) int {
	v, ok := usage[key]
	if !ok || v == nil {
		observability.LoggerFromContext(ctx).Warn("chat.usage.count_missing", "key", key)
		return 0
	}
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0
		}
		return int(n)
	case int:
		if n < 0 {
			return 0
		}
		return n
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil && parsed >= 0 {
			return parsed
		}
	}
	observability.LoggerFromContext(ctx).Warn("chat.usage.count_invalid", "key", key)
	return 0
}

func titleFromInput(input string) string {
	runes := []rune(input)
	if len(runes) > 80 {
		return string(runes[:80])
	}
	return input
}
