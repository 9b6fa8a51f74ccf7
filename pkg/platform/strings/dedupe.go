// Package strings holds small string-slice helpers shared across the
// certifier's configuration parsing.
package strings

import "strings"

// DedupeAndTrim normalizes a comma-split list such as the Kafka broker
// addresses from the environment: whitespace is trimmed, empty entries are
// dropped, and the first occurrence of each value wins so order is stable.
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
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
