package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"llm-backend/internal/ai"
	"llm-backend/internal/broker"
	"llm-backend/internal/chat"
)

// captureBus records every published event in order, keyed by channel.
type captureBus struct {
	mu     sync.Mutex
	events map[string][]chat.ResultEvent
}

func newCaptureBus() *captureBus {
	return &captureBus{events: make(map[string][]chat.ResultEvent)}
}

func (b *captureBus) Publish(ctx context.Context, channel string, payload []byte) error {
	var ev chat.ResultEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	b.mu.Lock()
	b.events[channel] = append(b.events[channel], ev)
	b.mu.Unlock()
	return nil
}

func (b *captureBus) Subscribe(ctx context.Context, channel string) (broker.Subscription, error) {
	return nil, fmt.Errorf("not supported")
}

func (b *captureBus) channelEvents(channel string) []chat.ResultEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]chat.ResultEvent(nil), b.events[channel]...)
}

type nopQueue struct{}

func (nopQueue) Enqueue(ctx context.Context, payload []byte) error { return nil }
func (nopQueue) Dequeue(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (nopQueue) Close() error { return nil }

func ndjsonServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range lines {
			fmt.Fprintln(w, line)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}))
}

func newTestLoop(bus *captureBus, baseURL string) *Loop {
	registry := ai.NewRegistry()
	registry.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewOllamaProvider(baseURL, model), nil
	})
	return NewLoop(nopQueue{}, bus, registry, "test-worker")
}

func jobPayload(t *testing.T, job chat.Job) []byte {
	t.Helper()
	payload, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return payload
}

func TestHandlePublishesChunksMetadataEnd(t *testing.T) {
	srv := ndjsonServer(t, []string{
		`{"model":"llama3.2:1b","message":{"role":"assistant","content":"Hi"}}`,
		`{"model":"llama3.2:1b","message":{"role":"assistant","content":" there"}}`,
		`{"model":"llama3.2:1b","done":true,"done_reason":"stop","prompt_eval_count":5,"eval_count":2}`,
	})
	defer srv.Close()

	bus := newCaptureBus()
	loop := newTestLoop(bus, srv.URL)

	job := chat.Job{
		ID:    "job-1",
		Input: "Hello",
		Config: map[string]any{
			"provider": "ollama",
			"model":    "llama3.2:1b",
		},
	}
	loop.handle(context.Background(), jobPayload(t, job))

	events := bus.channelEvents(chat.ResultChannel("job-1"))
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != chat.EventWorker || events[0].WorkerID != "test-worker" {
		t.Fatalf("expected worker announce first, got %+v", events[0])
	}
	if events[1].Type != chat.EventChunk || events[1].Content != "Hi" {
		t.Fatalf("chunk 1: %+v", events[1])
	}
	if events[2].Type != chat.EventChunk || events[2].Content != " there" {
		t.Fatalf("chunk 2: %+v", events[2])
	}
	meta := events[3]
	if meta.Type != chat.EventMetadata {
		t.Fatalf("expected metadata, got %+v", meta)
	}
	if meta.Usage["input_tokens"] != float64(5) || meta.Usage["output_tokens"] != float64(2) {
		t.Fatalf("unexpected usage: %+v", meta.Usage)
	}
	if meta.ResponseMetadata["model"] != "llama3.2:1b" {
		t.Fatalf("unexpected response metadata: %+v", meta.ResponseMetadata)
	}
	if events[4].Type != chat.EventEnd {
		t.Fatalf("expected end last, got %+v", events[4])
	}
}

func TestHandlePublishesErrorThenEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusInternalServerError)
	}))
	defer srv.Close()

	bus := newCaptureBus()
	loop := newTestLoop(bus, srv.URL)

	job := chat.Job{
		ID:     "job-2",
		Input:  "Hello",
		Config: map[string]any{"provider": "ollama", "model": "missing"},
	}
	loop.handle(context.Background(), jobPayload(t, job))

	events := bus.channelEvents(chat.ResultChannel("job-2"))
	if len(events) != 3 {
		t.Fatalf("expected worker/error/end, got %+v", events)
	}
	if events[1].Type != chat.EventError || !strings.Contains(events[1].Message, "status 500") {
		t.Fatalf("unexpected error event: %+v", events[1])
	}
	if events[2].Type != chat.EventEnd {
		t.Fatalf("the end event must follow even on failure: %+v", events[2])
	}
}

func TestHandleEmptyInputFailsJob(t *testing.T) {
	bus := newCaptureBus()
	loop := newTestLoop(bus, "http://127.0.0.1:1")

	job := chat.Job{
		ID:     "job-3",
		Input:  "   ",
		Config: map[string]any{"provider": "ollama", "model": "llama3.2:1b"},
	}
	loop.handle(context.Background(), jobPayload(t, job))

	events := bus.channelEvents(chat.ResultChannel("job-3"))
	if len(events) != 3 {
		t.Fatalf("expected worker/error/end, got %+v", events)
	}
	if events[1].Type != chat.EventError || !strings.Contains(events[1].Message, "empty") {
		t.Fatalf("unexpected error event: %+v", events[1])
	}
}

func TestHandleUnknownProviderFailsJob(t *testing.T) {
	bus := newCaptureBus()
	loop := newTestLoop(bus, "http://127.0.0.1:1")

	job := chat.Job{
		ID:     "job-4",
		Input:  "Hello",
		Config: map[string]any{"provider": "nope", "model": "m"},
	}
	loop.handle(context.Background(), jobPayload(t, job))

	events := bus.channelEvents(chat.ResultChannel("job-4"))
	if len(events) != 3 {
		t.Fatalf("expected worker/error/end, got %+v", events)
	}
	if events[1].Type != chat.EventError || !strings.Contains(events[1].Message, "unknown ai provider") {
		t.Fatalf("unexpected error event: %+v", events[1])
	}
}

func TestHandleBadPayloadPublishesNothing(t *testing.T) {
	bus := newCaptureBus()
	loop := newTestLoop(bus, "http://127.0.0.1:1")

	loop.handle(context.Background(), []byte("{not json"))
	loop.handle(context.Background(), jobPayload(t, chat.Job{Input: "no id"}))

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.events) != 0 {
		t.Fatalf("nothing should be published without a job id: %+v", bus.events)
	}
}

func TestHandleToleratesMalformedStreamLines(t *testing.T) {
	srv := ndjsonServer(t, []string{
		`{"message":{"role":"assistant","content":"ok"}}`,
		`{truncated`,
		`{"done":true,"model":"llama3.2:1b","prompt_eval_count":1,"eval_count":1}`,
	})
	defer srv.Close()

	bus := newCaptureBus()
	loop := newTestLoop(bus, srv.URL)

	job := chat.Job{
		ID:     "job-5",
		Input:  "Hello",
		Config: map[string]any{"provider": "ollama", "model": "llama3.2:1b"},
	}
	loop.handle(context.Background(), jobPayload(t, job))

	events := bus.channelEvents(chat.ResultChannel("job-5"))
	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	want := []string{chat.EventWorker, chat.EventChunk, chat.EventMetadata, chat.EventEnd}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", types, want)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	bus := newCaptureBus()
	loop := newTestLoop(bus, "http://127.0.0.1:1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}
