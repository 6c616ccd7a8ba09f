// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// Backticks are written as \x60 because Go raw strings cannot contain them.
	fencedJSONRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json|JSON)?\\s*([\\[{].*[\\]}])\\s*\x60\x60\x60")
	codeBlockRegex  = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z0-9_+-]*[ \\t]*\\n?(.*?)\\s*\x60\x60\x60")
	// programHeaderRegex finds the start of a Leo program declaration.
	programHeaderRegex = regexp.MustCompile(`(?m)^\s*(?:import\s+[\w.]+;\s*)*program\s+[a-z][a-z0-9_]*\.aleo\s*\{`)
)

// ParseJSONResponse parses a model response into T. It tolerates markdown
// fences and conversational text around the JSON payload.
func ParseJSONResponse[T any](response string) (*T, error) {
	payload := ExtractJSON(response)

	var result T
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(payload, 500))
	}
	return &result, nil
}

// ExtractJSON returns the most likely JSON document inside response. When no
// object or array can be located the trimmed input is returned unchanged.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response
	}
	if m := fencedJSONRegex.FindStringSubmatch(response); len(m) > 1 {
		return m[1]
	}

	// Prefer whichever structure opens first.
	obj, arr := strings.Index(response, "{"), strings.Index(response, "[")
	open, closer := "{", "}"
	if obj == -1 || (arr != -1 && arr < obj) {
		open, closer = "[", "]"
	}
	first := strings.Index(response, open)
	last := strings.LastIndex(response, closer)
	if first != -1 && last > first {
		return response[first : last+1]
	}
	return response
}

// CleanCodeOutput strips a surrounding markdown fence (```leo, ```aleo, ...)
// from generated code.
func CleanCodeOutput(content string) string {
	content = strings.TrimSpace(content)
	if !strings.Contains(content, "```") {
		return content
	}
	if m := codeBlockRegex.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(strings.Trim(content, "`"))
}

// ExtractProgram isolates a Leo program from text that may contain prose
// before or after it. The program block is found by brace matching from the
// program header; if no header is present the cleaned content is returned.
func ExtractProgram(content string) string {
	content = CleanCodeOutput(content)
	loc := programHeaderRegex.FindStringIndex(content)
	if loc == nil {
		return content
	}

	depth := 0
	for i := loc[1] - 1; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(content[loc[0] : i+1])
			}
		}
	}
	// Unbalanced braces: keep everything from the header so the compiler
	// reports the real problem.
	return strings.TrimSpace(content[loc[0]:])
}

func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
