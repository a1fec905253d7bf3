// Package suggest proposes close matches for mistyped flags, commands and
// config keys using Levenshtein distance.
package suggest

import (
	"cmp"
	"slices"
	"strings"
)

// levenshtein calculates the edit distance between two strings
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Closest returns up to three candidates within a few edits of unknown,
// best first. Leading dashes are ignored on both sides.
func Closest(unknown string, candidates []string) []string {
	unknown = strings.ToLower(strings.TrimLeft(unknown, "-"))

	type scored struct {
		value string
		score int
	}
	var found []scored
	maxDist := max(2, len(unknown)/2)
	for _, c := range candidates {
		d := levenshtein(unknown, strings.ToLower(strings.TrimLeft(c, "-")))
		if d <= maxDist {
			found = append(found, scored{c, d})
		}
	}
	slices.SortStableFunc(found, func(a, b scored) int { return cmp.Compare(a.score, b.score) })

	var out []string
	for i := 0; i < len(found) && i < 3; i++ {
		out = append(out, found[i].value)
	}
	return out
}

// flagHints maps flags people reach for to the ones hearth has.
var flagHints = map[string]string{
	"quantity":   "--qty",
	"amount":     "--qty",
	"assign":     "--assignee",
	"owner":      "--assignee",
	"date":       "--due (tasks) or --start (events)",
	"when":       "--start",
	"recurrence": "--repeat",
	"recur":      "--repeat",
	"every":      "--repeat",
	"weekdays":   "--days",
	"who":        "--for",
	"token":      "use: hearth config set token <token>",
	"version":    "use: hearth version",
	"v":          "use: hearth version",
}

// FlagHint returns a hint for a commonly misused flag.
func FlagHint(flag string) string {
	return flagHints[strings.ToLower(strings.TrimLeft(flag, "-"))]
}
