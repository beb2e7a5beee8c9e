package runner

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGeminiRunAgentUnreadableSpec(t *testing.T) {
	r := NewGeminiRunner(t.TempDir())

	res, err := r.RunAgent(context.Background(), filepath.Join(t.TempDir(), "ghost.md"), "do it", nil, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("an unreadable spec must fail the invocation")
	}
	if !strings.Contains(res.Error, "agent spec") {
		t.Errorf("Error = %q, should name the spec", res.Error)
	}
}
