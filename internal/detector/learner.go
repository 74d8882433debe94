package detector

import (
	"strings"
	"unicode"

	"github.com/xkilldash9x/consentgate/api/schemas"
)

// SuggestionThreshold is the minimum confidence a learned pattern needs
// before the detector will surface it as a suggestion.
const SuggestionThreshold = 0.6

// extractPatterns derives candidate wildcard patterns from a cookie name,
// from most to least specific. A name like "_ga_12345" yields the exact
// name, the underscore prefix "_ga_*", and the non-numeric stem "_ga_*"
// deduplicated.
func extractPatterns(name string) []string {
	if name == "" {
		return nil
	}

	seen := map[string]bool{}
	var patterns []string
	add := func(p string) {
		if p != "" && p != "*" && !seen[p] {
			seen[p] = true
			patterns = append(patterns, p)
		}
	}

	add(name)

	// Prefix up to and including the last underscore.
	if idx := strings.LastIndex(name, "_"); idx > 0 {
		add(name[:idx+1] + "*")
	}

	// Strip a trailing run of digits: session counters, timestamps.
	trimmed := strings.TrimRightFunc(name, unicode.IsDigit)
	if trimmed != name && trimmed != "" {
		add(trimmed + "*")
	}

	// Leading alphabetic stem, at least three characters.
	stem := name
	for i, r := range name {
		if !unicode.IsLetter(r) && r != '_' {
			stem = name[:i]
			break
		}
	}
	if len(stem) >= 3 && stem != name {
		add(stem + "*")
	}

	return patterns
}

// confidence blends the pattern's accuracy with how often it has been
// exercised, so a pattern confirmed once does not immediately dominate.
func confidence(accuracy, total int) float64 {
	if total == 0 {
		return 0
	}
	acc := float64(accuracy) / float64(total)
	volume := float64(total) / 10.0
	if volume > 1 {
		volume = 1
	}
	return acc*0.7 + volume*0.3
}

// reinforce records a manual category assignment against every pattern
// extracted from the cookie name. Patterns that already point at the
// assigned category gain accuracy; patterns pointing elsewhere are diluted.
func reinforce(learned map[string]schemas.LearnedPattern, name, categoryID string) map[string]schemas.LearnedPattern {
	updated := make(map[string]schemas.LearnedPattern)
	for _, pattern := range extractPatterns(name) {
		key := pattern + "|" + categoryID
		entry, ok := learned[key]
		if !ok {
			entry = schemas.LearnedPattern{Pattern: pattern, Category: categoryID}
		}
		entry.AccuracyCount++
		entry.TotalCount++
		entry.Confidence = confidence(entry.AccuracyCount, entry.TotalCount)
		updated[key] = entry

		// A conflicting assignment weakens earlier associations of the
		// same pattern with other categories.
		for otherKey, other := range learned {
			if other.Pattern == pattern && other.Category != categoryID {
				other.TotalCount++
				other.Confidence = confidence(other.AccuracyCount, other.TotalCount)
				updated[otherKey] = other
			}
		}
	}
	return updated
}

// suggestLearned returns the highest-confidence learned category for the
// cookie name, or "" when nothing clears the threshold.
func suggestLearned(learned map[string]schemas.LearnedPattern, name string, threshold float64) string {
	if threshold <= 0 {
		threshold = SuggestionThreshold
	}
	best := ""
	bestConfidence := threshold
	for _, pattern := range extractPatterns(name) {
		for _, entry := range learned {
			if entry.Pattern != pattern {
				continue
			}
			if entry.Confidence >= bestConfidence {
				best = entry.Category
				bestConfidence = entry.Confidence
			}
		}
	}
	return best
}
