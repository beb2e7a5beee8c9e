package runner

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNormalizeUsageAliases(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]any
		want TokenUsage
	}{
		{
			name: "anthropic style",
			raw: map[string]any{
				"input_tokens":                float64(100),
				"output_tokens":               float64(50),
				"cache_read_input_tokens":     float64(30),
				"cache_creation_input_tokens": float64(10),
			},
			want: TokenUsage{Input: 100, Output: 50, CacheRead: 30, CacheWrite: 10, Total: 150},
		},
		{
			name: "openai style",
			raw: map[string]any{
				"prompt_tokens":     float64(20),
				"completion_tokens": float64(5),
				"total_tokens":      float64(25),
			},
			want: TokenUsage{Input: 20, Output: 5, Total: 25},
		},
		{
			name: "total only",
			raw:  map[string]any{"total_tokens": float64(42)},
			want: TokenUsage{Total: 42},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeUsage(tc.raw)
			if got == nil {
				t.Fatal("got nil")
			}
			if *got != tc.want {
				t.Errorf("got %+v, want %+v", *got, tc.want)
			}
		})
	}
}

func TestNormalizeUsageNoNumericFields(t *testing.T) {
	if got := NormalizeUsage(map[string]any{"model": "gpt-5", "note": "hi"}); got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestUsageFromTextJSONL(t *testing.T) {
	text := `{"type":"progress","usage":{"input_tokens":10,"output_tokens":2}}
{"type":"result","usage":{"input_tokens":300,"output_tokens":40}}`
	got := usageFromText(text)
	if got == nil {
		t.Fatal("got nil")
	}
	// The last usage record in document order wins.
	if got.Input != 300 || got.Output != 40 || got.Total != 340 {
		t.Errorf("got %+v, want input=300 output=40 total=340", got)
	}
}

func TestUsageFromTextNoUsage(t *testing.T) {
	if got := usageFromText("plain prose, no json at all"); got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestUsageFromSessionLogNewestFile(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "rollout-old.jsonl")
	if err := os.WriteFile(old, []byte(`{"usage":{"input_tokens":1,"output_tokens":1}}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	newest := filepath.Join(dir, "rollout-new.jsonl")
	if err := os.WriteFile(newest, []byte(`{"usage":{"input_tokens":500,"output_tokens":70}}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := usageFromSessionLog(dir, "rollout-*.jsonl")
	if got == nil {
		t.Fatal("got nil")
	}
	if got.Input != 500 || got.Output != 70 {
		t.Errorf("got %+v, want the newest log's usage", got)
	}
}

func TestUsageFromSessionLogMissingDir(t *testing.T) {
	if got := usageFromSessionLog(filepath.Join(t.TempDir(), "nope"), "*.jsonl"); got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}
