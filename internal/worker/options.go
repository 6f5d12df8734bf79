package worker

import (
	"strconv"
	"strings"

	"llm-backend/internal/ai"
)

// Allow-listed generation parameters and their coercions. String values
// like "0.2" are converted to their declared numeric type; anything
// that does not coerce is passed through untouched for the runtime to
// reject.
func ParseOptions(cfg map[string]any) ai.Options {
	var opts ai.Options

	setFloat := func(key string, dst **float64) {
		v, ok := cfg[key]
		if !ok || v == nil {
			return
		}
		if f, ok := coerceFloat(v); ok {
			*dst = &f
			return
		}
		passThrough(&opts, key, v)
	}
	setInt := func(key string, dst **int) {
		v, ok := cfg[key]
		if !ok || v == nil {
			return
		}
		if n, ok := coerceInt(v); ok {
			*dst = &n
			return
		}
		passThrough(&opts, key, v)
	}

	setFloat("temperature", &opts.Temperature)
	setFloat("top_p", &opts.TopP)
	setInt("top_k", &opts.TopK)
	setInt("seed", &opts.Seed)
	setInt("num_ctx", &opts.NumCtx)
	setInt("num_predict", &opts.NumPredict)
	setFloat("repeat_penalty", &opts.RepeatPenalty)

	return opts
}

func passThrough(opts *ai.Options, key string, v any) {
	if opts.Extra == nil {
		opts.Extra = make(map[string]any)
	}
	opts.Extra[key] = v
}

func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func coerceInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		// "3.5" for an int key must not silently truncate
		if n == float64(int(n)) {
			return int(n), true
		}
		return 0, false
	case string:
		s := strings.TrimSpace(n)
		i, err := strconv.Atoi(s)
		return i, err == nil
	}
	return 0, false
}
