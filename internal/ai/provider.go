package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options is the allow-listed set of generation parameters forwarded to
// the model runtime. Nil fields are omitted from the request. Extra
// carries unrecognized keys through untouched for the runtime to judge.
type Options struct {
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"top_p,omitempty"`
	TopK          *int     `json:"top_k,omitempty"`
	Seed          *int     `json:"seed,omitempty"`
	NumCtx        *int     `json:"num_ctx,omitempty"`
	NumPredict    *int     `json:"num_predict,omitempty"`
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty"`

	Extra map[string]any `json:"-"`
}

// Map flattens the options into the runtime's options object.
func (o Options) Map() map[string]any {
	out := make(map[string]any)
	for k, v := range o.Extra {
		out[k] = v
	}
	if o.Temperature != nil {
		out["temperature"] = *o.Temperature
	}
	if o.TopP != nil {
		out["top_p"] = *o.TopP
	}
	if o.TopK != nil {
		out["top_k"] = *o.TopK
	}
	if o.Seed != nil {
		out["seed"] = *o.Seed
	}
	if o.NumCtx != nil {
		out["num_ctx"] = *o.NumCtx
	}
	if o.NumPredict != nil {
		out["num_predict"] = *o.NumPredict
	}
	if o.RepeatPenalty != nil {
		out["repeat_penalty"] = *o.RepeatPenalty
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// StreamEvent is one record of a streamed completion. Delta events
// carry content; the terminal event has Done set and, when the runtime
// reports them, token counts.
type StreamEvent struct {
	Delta string
	Done  bool

	Model        string
	InputTokens  int
	OutputTokens int
	HasUsage     bool
}

type Provider interface {
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
}

// StreamProvider is an optional interface. Providers may implement streaming chat.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message, opts Options) (<-chan StreamEvent, <-chan error)
}
