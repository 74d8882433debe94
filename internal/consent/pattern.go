// Package consent implements the cookie categorization and blocking core:
// wildcard pattern matching, the priority-ordered mapping table, preference
// snapshot sanitization and the blocking decision engine. Everything in this
// package is pure; storage and enforcement live elsewhere.
package consent

import "strings"

// Match reports whether candidate matches pattern. '*' matches any run of
// zero or more characters, matching is case-insensitive and anchored: the
// whole candidate must be consumed, so "_ga*" matches "_ga" and "_ga_123"
// but not "xx_ga". An empty pattern always matches (the dimension is
// unconstrained).
func Match(candidate, pattern string) bool {
	if pattern == "" {
		return true
	}
	return matchWildcard(strings.ToLower(candidate), strings.ToLower(pattern))
}

// matchWildcard is a linear-scan glob over already-folded strings. Greedy
// star placement with single-point backtracking; no regex compilation on
// the decision path.
func matchWildcard(s, p string) bool {
	var si, pi int
	starP, starS := -1, 0

	for si < len(s) {
		switch {
		case pi < len(p) && p[pi] == '*':
			starP = pi
			starS = si
			pi++
		case pi < len(p) && p[pi] == s[si]:
			pi++
			si++
		case starP >= 0:
			// Retry the last star against one more character.
			starS++
			si = starS
			pi = starP + 1
		default:
			return false
		}
	}

	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
