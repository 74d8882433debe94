package consent

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentgate/api/schemas"
)

// Engine makes the blocking decision for one cookie identity against one
// frozen view of the consent state. An Engine is constructed per request or
// per page load and threaded through the enforcement sites; it holds no
// ambient global state and ShouldBlock is pure given the construction
// inputs.
//
// Every failure path resolves to a boolean: when the engine lacks the data
// for a precise decision it fails open (allow), because breaking the hosting
// site is judged worse than letting an uncategorized cookie through.
type Engine struct {
	mode       schemas.Mode
	simple     schemas.SimplePreference
	prefs      schemas.Snapshot
	categories []schemas.Category
	table      *Table
	logger     *zap.Logger
}

// NewEngine builds a decision engine. prefs is sanitized against categories
// on construction, so required categories are always seen as allowed
// regardless of what the caller stored. A nil table behaves as an empty
// mapping set.
func NewEngine(mode schemas.Mode, simple schemas.SimplePreference, prefs schemas.Snapshot, categories []schemas.Category, table *Table, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !mode.Valid() {
		mode = schemas.ModeSimple
	}
	return &Engine{
		mode:       mode,
		simple:     simple,
		prefs:      Sanitize(prefs, categories),
		categories: categories,
		table:      table,
		logger:     logger.Named("decision_engine"),
	}
}

// Mode returns the mode the engine was built for.
func (e *Engine) Mode() schemas.Mode {
	return e.mode
}

// Snapshot returns the sanitized preference snapshot the engine decides with.
func (e *Engine) Snapshot() schemas.Snapshot {
	return e.prefs.Clone()
}

// BlocksEverything reports whether the current state blocks every write:
// simple mode with an explicit decline, or category mode with all optional
// categories declined. The client gate uses this to pick between a full
// sweep and a per-category sweep.
func (e *Engine) BlocksEverything() bool {
	if e == nil {
		return false
	}
	if e.mode == schemas.ModeSimple {
		return e.simple == schemas.PreferenceDeclined
	}
	return AllNonEssentialDeclined(e.prefs, e.categories)
}

// Restricted reports whether any enforcement is warranted at all. The gate
// tears itself down when this turns false (full opt-in, or simple mode
// without a decline).
func (e *Engine) Restricted() bool {
	if e == nil {
		return false
	}
	if e.mode == schemas.ModeSimple {
		return e.simple == schemas.PreferenceDeclined
	}
	for _, cat := range e.categories {
		if !cat.Required && !e.prefs[cat.ID] {
			return true
		}
	}
	return false
}

// ShouldBlock decides whether the write of the identified cookie must be
// suppressed.
//
// Simple mode blocks everything iff the visitor explicitly declined; an
// unset preference allows (fail-open until a choice is recorded).
//
// Category mode resolves the cookie through the mapping table. A mapped
// cookie is blocked unless its category reads as allowed — an unknown
// category ID therefore blocks (fail-closed), required categories having
// been pre-seeded as allowed by sanitization. An unmapped cookie is blocked
// only when the visitor declined every optional category. The two defaults
// are intentionally asymmetric; do not unify them.
func (e *Engine) ShouldBlock(id schemas.Identity) bool {
	if e == nil || id.Name == "" {
		return false
	}

	if e.mode == schemas.ModeSimple {
		return e.simple == schemas.PreferenceDeclined
	}

	if e.table != nil {
		if category, ok := e.table.Resolve(id); ok {
			blocked := !e.prefs[category]
			if blocked {
				e.logger.Debug("Blocking mapped cookie",
					zap.String("cookie", id.Name),
					zap.String("category", category),
				)
			}
			return blocked
		}
	}

	return AllNonEssentialDeclined(e.prefs, e.categories)
}

// DecideRecord builds an Engine from a stored preference record, the shape
// the server-side enforcement works with. A nil record means the visitor is
// undetermined: simple mode stays unset and category mode falls back to the
// default snapshot, exactly as a fresh visitor would be treated.
func DecideRecord(settings schemas.Settings, rec *schemas.PreferenceRecord, categories []schemas.Category, table *Table, logger *zap.Logger) *Engine {
	simple := schemas.PreferenceUnset
	var prefs schemas.Snapshot
	if rec != nil {
		simple = rec.Simple
		prefs = rec.Categories
	}
	return NewEngine(settings.Mode, simple, prefs, categories, table, logger)
}
