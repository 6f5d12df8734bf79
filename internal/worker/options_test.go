package worker

import (
	"reflect"
	"testing"
)

func TestParseOptionsNumericCoercion(t *testing.T) {
	opts := ParseOptions(map[string]any{
		"temperature":    "0.2",
		"top_p":          float64(0.9),
		"top_k":          "3",
		"seed":           float64(7),
		"num_ctx":        4096,
		"num_predict":    "256",
		"repeat_penalty": "1.1",
		"provider":       "ollama",
		"model":          "llama3.2:1b",
	})

	if opts.Temperature == nil || *opts.Temperature != 0.2 {
		t.Fatalf("temperature: %v", opts.Temperature)
	}
	if opts.TopP == nil || *opts.TopP != 0.9 {
		t.Fatalf("top_p: %v", opts.TopP)
	}
	if opts.TopK == nil || *opts.TopK != 3 {
		t.Fatalf("top_k: %v", opts.TopK)
	}
	if opts.Seed == nil || *opts.Seed != 7 {
		t.Fatalf("seed: %v", opts.Seed)
	}
	if opts.NumCtx == nil || *opts.NumCtx != 4096 {
		t.Fatalf("num_ctx: %v", opts.NumCtx)
	}
	if opts.NumPredict == nil || *opts.NumPredict != 256 {
		t.Fatalf("num_predict: %v", opts.NumPredict)
	}
	if opts.RepeatPenalty == nil || *opts.RepeatPenalty != 1.1 {
		t.Fatalf("repeat_penalty: %v", opts.RepeatPenalty)
	}
	// provider/model are routing keys, never generation options
	if opts.Extra != nil {
		t.Fatalf("unexpected extras: %+v", opts.Extra)
	}
}

func TestParseOptionsBadValuesPassThrough(t *testing.T) {
	opts := ParseOptions(map[string]any{
		"top_k":       "3.5",
		"seed":        true,
		"temperature": "warm",
	})

	if opts.TopK != nil || opts.Seed != nil || opts.Temperature != nil {
		t.Fatalf("bad values must not coerce: %+v", opts)
	}
	want := map[string]any{
		"top_k":       "3.5",
		"seed":        true,
		"temperature": "warm",
	}
	if !reflect.DeepEqual(opts.Extra, want) {
		t.Fatalf("got extras %+v, want %+v", opts.Extra, want)
	}
}

func TestParseOptionsFractionalIntRejected(t *testing.T) {
	opts := ParseOptions(map[string]any{"top_k": float64(3.5)})
	if opts.TopK != nil {
		t.Fatalf("3.5 must not truncate to an int")
	}
	if opts.Extra["top_k"] != float64(3.5) {
		t.Fatalf("original value must survive: %+v", opts.Extra)
	}
}

func TestParseOptionsEmptyConfig(t *testing.T) {
	opts := ParseOptions(nil)
	if !reflect.DeepEqual(opts, ParseOptions(map[string]any{})) {
		t.Fatalf("nil and empty config must parse the same")
	}
	if opts.Temperature != nil || opts.Extra != nil {
		t.Fatalf("expected zero options, got %+v", opts)
	}
}
