package chat

import (
	"llm-backend/internal/ai"
)

// resultChannelPrefix + job id names the per-job pub/sub channel,
// isolating concurrent jobs from each other.
const resultChannelPrefix = "ollama:result:"

func ResultChannel(jobID string) string {
	return resultChannelPrefix + jobID
}

// Job is the queue payload. Created once at enqueue time, consumed by
// whichever worker pops it; it has no lifecycle beyond the queue.
type Job struct {
	ID      string         `json:"id"`
	Input   string         `json:"input"`
	Context []ai.Message   `json:"context"`
	Config  map[string]any `json:"config"`
}

// Result event types published by the worker.
const (
	EventChunk    = "chunk"
	EventMetadata = "metadata"
	EventError    = "error"
	EventEnd      = "end"
	// worker announce, ignored by the orchestrator
	EventWorker = "worker"
)

// ResultEvent is one JSON line on the result channel. Chunk events may
// repeat; Metadata and End each appear at most once; End terminates.
type ResultEvent struct {
	Type             string         `json:"type"`
	Content          string         `json:"content,omitempty"`
	Message          string         `json:"message,omitempty"`
	Usage            map[string]any `json:"usage,omitempty"`
	ResponseMetadata map[string]any `json:"response_metadata,omitempty"`
	WorkerID         string         `json:"worker_id,omitempty"`
}
