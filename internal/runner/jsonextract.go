package runner

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n\\s*```")

// ExtractJSON pulls an embedded JSON object out of unreliable backend text.
//
// Two stages, in precedence order:
//  1. Fenced ```json``` code blocks, tried from last to first — models tend
//     to restate their final answer at the end of the output.
//  2. The first syntactically balanced brace-delimited object anywhere in
//     the text, found by counting braces while respecting string literals
//     and escape sequences.
//
// A nil return means no parseable object was found. That is a normal
// outcome, not an error; callers fall back to defaults.
func ExtractJSON(output string) map[string]any {
	matches := fencedJSONPattern.FindAllStringSubmatch(output, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(matches[i][1])), &parsed); err == nil {
			return parsed
		}
	}

	for start := 0; start < len(output); start++ {
		if output[start] != '{' {
			continue
		}
		end, ok := matchBalancedBraces(output, start)
		if !ok {
			// No balanced object starts here or later with this brace;
			// keep scanning from the next character.
			continue
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(output[start:end+1]), &parsed); err == nil {
			return parsed
		}
		// Unparseable despite balanced braces (e.g. pseudo-code).
		// Continue the scan past this opening brace.
	}

	return nil
}

// matchBalancedBraces returns the index of the brace closing the object
// opened at start. Braces inside JSON string literals are ignored, and
// escaped quotes do not terminate a string.
func matchBalancedBraces(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
