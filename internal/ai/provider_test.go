package ai

import (
	"reflect"
	"testing"
)

func TestOptionsMapEmpty(t *testing.T) {
	if got := (Options{}).Map(); got != nil {
		t.Fatalf("empty options must flatten to nil, got %+v", got)
	}
}

func TestOptionsMapFlattens(t *testing.T) {
	temp := 0.2
	topK := 3
	opts := Options{
		Temperature: &temp,
		TopK:        &topK,
		Extra:       map[string]any{"mirostat": 1},
	}
	want := map[string]any{
		"temperature": 0.2,
		"top_k":       3,
		"mirostat":    1,
	}
	if got := opts.Map(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestOptionsMapTypedKeysWinOverExtra(t *testing.T) {
	temp := 0.7
	opts := Options{
		Temperature: &temp,
		Extra:       map[string]any{"temperature": "warm"},
	}
	got := opts.Map()
	if got["temperature"] != 0.7 {
		t.Fatalf("typed value must win: %+v", got)
	}
}
