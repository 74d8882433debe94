package consent

import (
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/consentgate/api/schemas"
)

// Table is the ordered mapping-rule collection. It resolves a cookie
// identity to a category by first match over rules sorted by priority
// (highest first), ties broken by insertion position. Resolution is a
// linear scan; the expected scale is tens of rules.
type Table struct {
	rules  []schemas.MappingRule
	logger *zap.Logger
}

// NewTable builds a table from rules in persisted order. The input slice is
// not retained.
func NewTable(rules []schemas.MappingRule, logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}
	sorted := make([]schemas.MappingRule, len(rules))
	copy(sorted, rules)

	// Normalize to insertion order first so the priority sort's stability
	// yields the documented tie-break even if the caller shuffled the slice.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	return &Table{
		rules:  sorted,
		logger: logger.Named("mapping_table"),
	}
}

// Len returns the number of rules, malformed ones included.
func (t *Table) Len() int {
	return len(t.rules)
}

// Resolve returns the category of the highest-priority rule fully matching
// id, or ("", false) when no rule matches. All three dimensions must match;
// a rule with an empty name pattern is malformed and skipped rather than
// treated as match-all.
func (t *Table) Resolve(id schemas.Identity) (string, bool) {
	for _, rule := range t.rules {
		if rule.Pattern == "" {
			t.logger.Debug("Skipping mapping rule without a pattern", zap.String("rule_id", rule.ID))
			continue
		}
		if !Match(id.Name, rule.Pattern) {
			continue
		}
		if !Match(id.Domain, rule.Domain) || !Match(id.Path, rule.Path) {
			continue
		}
		return rule.Category, true
	}
	return "", false
}
