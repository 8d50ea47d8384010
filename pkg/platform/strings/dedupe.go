// Package strings holds small string-slice helpers shared across services.
package strings

import "strings"

// DedupeAndTrim trims whitespace, drops empties, and removes duplicates from
// a slice while preserving first-seen order. Scan launches pass region and
// workflow lists through this before they are persisted.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
