// internal/toolchain/diagnostics.go
package toolchain

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/leoforge/internal/refinement"
)

var (
	ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
	// Matches "error: ..." as well as Leo's coded form "Error [ETYC0372067]: ...".
	errorHeader = regexp.MustCompile(`(?i)\berror(?:\s*\[[A-Za-z0-9]+\])?:\s*(.*)$`)
	helpLine    = regexp.MustCompile(`(?i)\bhelp:\s*(.*)$`)
)

// StripANSI removes terminal color sequences from compiler output.
func StripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// SplitDiagnostics sorts compiler output lines into errors and warnings.
// A line mentioning both counts as an error.
func SplitDiagnostics(output string) (errs, warnings []string) {
	for _, line := range strings.Split(StripANSI(output), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		switch {
		case strings.Contains(lower, "error"):
			errs = append(errs, trimmed)
		case strings.Contains(lower, "warning"):
			warnings = append(warnings, trimmed)
		}
	}
	return errs, warnings
}

// ParseErrorDetails groups each error header with the "-->" location and
// "help:" suggestion lines that follow it.
func ParseErrorDetails(output string) []refinement.ErrorDetail {
	var (
		details []refinement.ErrorDetail
		current *refinement.ErrorDetail
	)
	flush := func() {
		if current != nil {
			details = append(details, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(StripANSI(output), "\n") {
		if m := errorHeader.FindStringSubmatch(line); m != nil {
			flush()
			current = &refinement.ErrorDetail{Message: strings.TrimSpace(m[1])}
			continue
		}
		if current == nil {
			continue
		}
		if idx := strings.Index(line, "-->"); idx >= 0 && current.Location == "" {
			current.Location = strings.TrimSpace(line[idx+len("-->"):])
			continue
		}
		if m := helpLine.FindStringSubmatch(line); m != nil && current.Suggestion == "" {
			current.Suggestion = strings.TrimSpace(m[1])
		}
	}
	flush()
	return details
}
