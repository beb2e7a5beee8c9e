package runner

import "testing"

func TestExtractJSONFencedBlock(t *testing.T) {
	output := "Done! ```json\n{\"dod_achieved\": true}\n``` Thanks."
	got := ExtractJSON(output)
	if got == nil {
		t.Fatal("expected a payload, got nil")
	}
	if v, ok := got["dod_achieved"].(bool); !ok || !v {
		t.Errorf("dod_achieved = %v, want true", got["dod_achieved"])
	}
}

func TestExtractJSONLastFenceWins(t *testing.T) {
	output := "```json\n{\"n\": 1}\n```\nrevised:\n```json\n{\"n\": 2}\n```"
	got := ExtractJSON(output)
	if got == nil {
		t.Fatal("expected a payload, got nil")
	}
	if n, _ := got["n"].(float64); n != 2 {
		t.Errorf("n = %v, want 2", got["n"])
	}
}

func TestExtractJSONBareObject(t *testing.T) {
	output := `agent says {"passed": false, "issues": ["lint"]} end`
	got := ExtractJSON(output)
	if got == nil {
		t.Fatal("expected a payload, got nil")
	}
	if v, ok := got["passed"].(bool); !ok || v {
		t.Errorf("passed = %v, want false", got["passed"])
	}
}

func TestExtractJSONBracesInsideStrings(t *testing.T) {
	output := `{"msg": "unbalanced } inside { string", "ok": true}`
	got := ExtractJSON(output)
	if got == nil {
		t.Fatal("expected a payload, got nil")
	}
	if got["msg"] != "unbalanced } inside { string" {
		t.Errorf("msg = %q", got["msg"])
	}
}

func TestExtractJSONNested(t *testing.T) {
	output := `result: {"outer": {"inner": 3}}`
	got := ExtractJSON(output)
	if got == nil {
		t.Fatal("expected a payload, got nil")
	}
	inner, ok := got["outer"].(map[string]any)
	if !ok {
		t.Fatalf("outer = %T, want map", got["outer"])
	}
	if n, _ := inner["inner"].(float64); n != 3 {
		t.Errorf("inner = %v, want 3", inner["inner"])
	}
}

func TestExtractJSONAbsent(t *testing.T) {
	for _, output := range []string{
		"no structured data here",
		"",
		"broken {\"a\": ",
		"```json\nnot json\n```",
	} {
		if got := ExtractJSON(output); got != nil {
			t.Errorf("ExtractJSON(%q) = %v, want nil", output, got)
		}
	}
}

func TestExtractJSONInvalidFenceFallsThrough(t *testing.T) {
	// A fence with broken JSON must not mask a valid bare object later.
	output := "```json\n{bad\n```\nbut also {\"ok\": true}"
	got := ExtractJSON(output)
	if got == nil {
		t.Fatal("expected fallback to bare object")
	}
	if v, _ := got["ok"].(bool); !v {
		t.Errorf("ok = %v, want true", got["ok"])
	}
}
