package consent

import "github.com/xkilldash9x/consentgate/api/schemas"

// Sanitize normalizes a raw preference snapshot against the known category
// set: unknown category IDs are dropped, every known category gets an entry
// (defaulting to required || default_enabled when the caller supplied none)
// and required categories are forced to allowed. A snapshot that reached the
// decision engine without passing through here would be a bug; the engine
// sanitizes on construction as a belt.
func Sanitize(prefs schemas.Snapshot, categories []schemas.Category) schemas.Snapshot {
	out := make(schemas.Snapshot, len(categories))
	for _, cat := range categories {
		if cat.ID == "" {
			continue
		}
		allowed, ok := prefs[cat.ID]
		if !ok {
			allowed = cat.Required || cat.DefaultEnabled
		}
		if cat.Required {
			allowed = true
		}
		out[cat.ID] = allowed
	}
	return out
}

// DefaultSnapshot is the pre-consent state: required and default-enabled
// categories allowed, everything else declined.
func DefaultSnapshot(categories []schemas.Category) schemas.Snapshot {
	return Sanitize(nil, categories)
}

// AllNonEssentialDeclined reports whether every non-required category reads
// as declined in prefs. This is the gate for blocking unmapped cookies: only
// a visitor who accepted nothing optional gets the conservative treatment.
func AllNonEssentialDeclined(prefs schemas.Snapshot, categories []schemas.Category) bool {
	for _, cat := range categories {
		if cat.Required {
			continue
		}
		if prefs[cat.ID] {
			return false
		}
	}
	return true
}
