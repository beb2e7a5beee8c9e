package runner

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Alias map for the usage field names the different backends emit.
var usageAliases = map[string][]string{
	"input":       {"input_tokens", "prompt_tokens", "prompt", "input"},
	"output":      {"output_tokens", "completion_tokens", "completion", "output"},
	"cache_read":  {"cache_read_input_tokens", "cache_read_tokens", "cached_tokens", "cache_read"},
	"cache_write": {"cache_creation_input_tokens", "cache_write_input_tokens", "cache_creation", "cache_write"},
	"total":       {"total_tokens", "total_token_usage", "total"},
}

// NormalizeUsage maps a raw usage payload onto TokenUsage, tolerating the
// field-name variants the backends use. Returns nil when the payload holds
// no numeric usage field at all.
func NormalizeUsage(raw map[string]any) *TokenUsage {
	pick := func(aliases []string) (int, bool) {
		for _, alias := range aliases {
			if v, ok := raw[alias]; ok {
				switch n := v.(type) {
				case float64:
					return int(n), true
				case int:
					return n, true
				}
			}
		}
		return 0, false
	}

	usage := &TokenUsage{}
	found := false
	if v, ok := pick(usageAliases["input"]); ok {
		usage.Input = v
		found = true
	}
	if v, ok := pick(usageAliases["output"]); ok {
		usage.Output = v
		found = true
	}
	if v, ok := pick(usageAliases["cache_read"]); ok {
		usage.CacheRead = v
		found = true
	}
	if v, ok := pick(usageAliases["cache_write"]); ok {
		usage.CacheWrite = v
		found = true
	}
	if v, ok := pick(usageAliases["total"]); ok {
		usage.Total = v
		found = true
	}
	if !found {
		return nil
	}
	if usage.Total == 0 {
		usage.Total = usage.Input + usage.Output
	}
	return usage
}

// collectUsageCandidates walks a decoded JSON payload and gathers every
// dict that looks like a usage record, in document order. The last
// candidate wins, matching how backends restate cumulative usage at the
// end of a session.
func collectUsageCandidates(payload any, out *[]map[string]any) {
	switch v := payload.(type) {
	case map[string]any:
		if usage, ok := v["usage"].(map[string]any); ok {
			*out = append(*out, usage)
		}
		if usage, ok := v["token_usage"].(map[string]any); ok {
			*out = append(*out, usage)
		}
		if NormalizeUsage(v) != nil {
			*out = append(*out, v)
		}
		for _, nested := range v {
			collectUsageCandidates(nested, out)
		}
	case []any:
		for _, item := range v {
			collectUsageCandidates(item, out)
		}
	}
}

// usageFromText scans raw backend output (single JSON document or JSONL)
// for usage-shaped fragments.
func usageFromText(text string) *TokenUsage {
	var candidates []map[string]any
	for _, payload := range parseJSONPayloads(text) {
		collectUsageCandidates(payload, &candidates)
	}
	if len(candidates) == 0 {
		return nil
	}
	return NormalizeUsage(candidates[len(candidates)-1])
}

// parseJSONPayloads decodes a string as a single JSON document, then as
// JSONL, then via the embedded-object extractor.
func parseJSONPayloads(text string) []any {
	var payloads []any
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return payloads
	}

	var whole any
	if err := json.Unmarshal([]byte(trimmed), &whole); err == nil {
		return append(payloads, whole)
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var payload any
		if err := json.Unmarshal([]byte(line), &payload); err == nil {
			payloads = append(payloads, payload)
		}
	}

	if parsed := ExtractJSON(text); parsed != nil {
		payloads = append(payloads, parsed)
	}
	return payloads
}

// usageFromSessionLog reads the newest session log under dir and extracts
// the last usage record from its tail. Best effort: any failure yields nil.
func usageFromSessionLog(dir, globPattern string) *TokenUsage {
	if dir == "" {
		return nil
	}
	var logs []string
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(globPattern, filepath.Base(path)); ok {
			logs = append(logs, path)
		}
		return nil
	})
	if len(logs) == 0 {
		return nil
	}
	sort.Slice(logs, func(i, j int) bool {
		si, _ := os.Stat(logs[i])
		sj, _ := os.Stat(logs[j])
		if si == nil || sj == nil {
			return false
		}
		return si.ModTime().After(sj.ModTime())
	})

	f, err := os.Open(logs[0])
	if err != nil {
		return nil
	}
	defer f.Close()

	// Keep only the tail of the log; usage records trail the session.
	const tailLines = 200
	var tail []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		tail = append(tail, scanner.Text())
		if len(tail) > tailLines {
			tail = tail[1:]
		}
	}

	var candidates []map[string]any
	for _, line := range tail {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var payload any
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			continue
		}
		collectUsageCandidates(payload, &candidates)
	}
	if len(candidates) == 0 {
		return nil
	}
	return NormalizeUsage(candidates[len(candidates)-1])
}
