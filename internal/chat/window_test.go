package chat

import (
	"context"
	"reflect"
	"testing"
	"time"

	"llm-backend/internal/ai"
)

func TestSanitizeWindow(t *testing.T) {
	in := []ai.Message{
		{Role: "system", Content: "you are helpful"},
		{Role: "user", Content: "  hello  "},
		{Role: "assistant", Content: ""},
		{Role: "assistant", Content: "hi"},
		{Role: "tool", Content: "lookup result"},
		{Role: "user", Content: "   "},
	}
	got := SanitizeWindow(in, 20)
	want := []ai.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSanitizeWindowCapKeepsMostRecent(t *testing.T) {
	var in []ai.Message
	for i := 0; i < 10; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		in = append(in, ai.Message{Role: role, Content: string(rune('a' + i))})
	}
	got := SanitizeWindow(in, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(got))
	}
	if got[0].Content != "g" || got[3].Content != "j" {
		t.Fatalf("cap must keep the newest entries in order: %+v", got)
	}
}

func TestSanitizeWindowIdempotent(t *testing.T) {
	in := []ai.Message{
		{Role: "system", Content: "drop me"},
		{Role: "user", Content: " q1 "},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "q2"},
	}
	once := SanitizeWindow(in, 3)
	twice := SanitizeWindow(once, 3)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("sanitize not idempotent: %+v vs %+v", once, twice)
	}
}

func TestContextCacheRoundTrip(t *testing.T) {
	kv := newFakeKV()
	cache := NewContextCache(kv, time.Minute, 20)
	ctx := context.Background()

	window := []ai.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	}
	if err := cache.Set(ctx, "thread-a", window); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok := cache.Get(ctx, "thread-a")
	if !ok {
		t.Fatalf("expected a hit")
	}
	if !reflect.DeepEqual(got, window) {
		t.Fatalf("got %+v, want %+v", got, window)
	}

	if _, ok := cache.Get(ctx, "thread-b"); ok {
		t.Fatalf("expected a miss for an unknown thread")
	}
}

func TestContextCacheCorruptEntryIsMiss(t *testing.T) {
	kv := newFakeKV()
	cache := NewContextCache(kv, time.Minute, 20)
	ctx := context.Background()

	if err := kv.SetEX(ctx, "chatctx:thread-a", []byte("{not json"), time.Minute); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok := cache.Get(ctx, "thread-a"); ok {
		t.Fatalf("corrupt entry must read as a miss")
	}
}

func TestContextCacheSetSanitizes(t *testing.T) {
	kv := newFakeKV()
	cache := NewContextCache(kv, time.Minute, 2)
	ctx := context.Background()

	if err := cache.Set(ctx, "thread-a", []ai.Message{
		{Role: "system", Content: "drop"},
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "q2"},
	}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok := cache.Get(ctx, "thread-a")
	if !ok {
		t.Fatalf("expected a hit")
	}
	want := []ai.Message{
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "q2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
