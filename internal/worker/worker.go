package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"llm-backend/internal/ai"
	"llm-backend/internal/broker"
	"llm-backend/internal/chat"
	"llm-backend/internal/observability"
)

// Loop pulls jobs off the queue one at a time and streams model output
// back over the per-job result channel. One dequeue, one terminal
// outcome: a failed job is published as an error event, never requeued.
// Horizontal scaling is more Loops competing on the same queue.
type Loop struct {
	queue    broker.JobQueue
	bus      broker.ResultBus
	registry *ai.Registry
	workerID string
}

func NewLoop(queue broker.JobQueue, bus broker.ResultBus, registry *ai.Registry, workerID string) *Loop {
	return &Loop{queue: queue, bus: bus, registry: registry, workerID: workerID}
}

// Run blocks until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	log := observability.Logger().With("worker_id", l.workerID)
	log.Info("worker.started")

	for {
		payload, err := l.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker.stopped")
				return ctx.Err()
			}
			log.Error("worker.dequeue_failed", "err", err.Error())
			time.Sleep(time.Second)
			continue
		}
		l.handle(ctx, payload)
	}
}

func (l *Loop) handle(ctx context.Context, payload []byte) {
	log := observability.Logger().With("worker_id", l.workerID)

	var job chat.Job
	if err := json.Unmarshal(payload, &job); err != nil || job.ID == "" {
		// no job id means no channel to report on
		log.Error("worker.job.bad_payload", "err", fmt.Sprintf("%v", err))
		return
	}

	channel := chat.ResultChannel(job.ID)
	start := time.Now()

	// publishes must survive a shutdown mid-job so the subscriber is
	// never left hanging without an end event
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
	defer cancel()

	// announce which worker took the job; the orchestrator ignores it
	l.publish(pctx, channel, chat.ResultEvent{Type: chat.EventWorker, WorkerID: l.workerID})

	log.Info("worker.job.received",
		"job_id", job.ID, "preview", preview(job.Input, 120))

	defer l.publish(pctx, channel, chat.ResultEvent{Type: chat.EventEnd})

	if err := l.stream(ctx, pctx, channel, &job); err != nil {
		l.publish(pctx, channel, chat.ResultEvent{Type: chat.EventError, Message: err.Error()})
		log.Error("worker.job.failed",
			"job_id", job.ID, "cost", time.Since(start).String(), "err", err.Error())
		return
	}

	log.Info("worker.job.finished",
		"job_id", job.ID, "cost", time.Since(start).String())
}

// stream runs the model call and republishes deltas as chunk events,
// then the terminal record as a metadata event.
func (l *Loop) stream(ctx, pctx context.Context, channel string, job *chat.Job) error {
	input := strings.TrimSpace(job.Input)
	if input == "" {
		return errors.New("job input is empty")
	}
	for _, m := range job.Context {
		if m.Role == "" {
			return errors.New("context message missing role")
		}
	}

	providerName, _ := job.Config["provider"].(string)
	model, _ := job.Config["model"].(string)

	p, err := l.registry.Get(ctx, providerName, model)
	if err != nil {
		return err
	}
	sp, ok := p.(ai.StreamProvider)
	if !ok {
		return fmt.Errorf("provider %q does not support streaming", providerName)
	}

	messages := make([]ai.Message, 0, len(job.Context)+1)
	messages = append(messages, job.Context...)
	messages = append(messages, ai.Message{Role: "user", Content: input})

	opts := ParseOptions(job.Config)

	events, errs := sp.StreamChat(ctx, messages, opts)
	for ev := range events {
		if ev.Done {
			meta := chat.ResultEvent{Type: chat.EventMetadata}
			if ev.HasUsage {
				meta.Usage = map[string]any{
					"input_tokens":  ev.InputTokens,
					"output_tokens": ev.OutputTokens,
				}
			}
			if ev.Model != "" {
				meta.ResponseMetadata = map[string]any{"model": ev.Model}
			}
			l.publish(pctx, channel, meta)
			continue
		}
		if ev.Delta != "" {
			l.publish(pctx, channel, chat.ResultEvent{Type: chat.EventChunk, Content: ev.Delta})
		}
	}

	if err := <-errs; err != nil {
		return err
	}
	return nil
}

func (l *Loop) publish(ctx context.Context, channel string, ev chat.ResultEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		observability.Logger().Error("worker.publish.marshal_failed", "err", err.Error())
		return
	}
	if err := l.bus.Publish(ctx, channel, payload); err != nil {
		observability.Logger().Error("worker.publish_failed",
			"channel", channel, "type", ev.Type, "err", err.Error())
	}
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n])
	}
	return s
}
