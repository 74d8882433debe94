package schemas

import "time"

// -- Consent Models --
// These types are shared by the decision engine, both enforcement sites,
// the persistence layer and the HTTP API. They mirror the persisted wire
// shape, which carries no version field; schema evolution is not supported.

// Mode selects between the legacy single accept/decline preference and
// per-category consent. It is a process-wide setting.
type Mode string

const (
	// ModeSimple blocks everything once the visitor has declined, and
	// nothing before a choice is recorded.
	ModeSimple Mode = "simple"
	// ModeCategories evaluates every cookie against the mapping table and
	// the per-category preference snapshot.
	ModeCategories Mode = "categories"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeSimple || m == ModeCategories
}

// SimplePreference is the legacy single-value consent state.
type SimplePreference string

const (
	PreferenceUnset    SimplePreference = ""
	PreferenceAccepted SimplePreference = "accepted"
	PreferenceDeclined SimplePreference = "declined"
)

// Category is a user-facing consent bucket cookies are grouped into.
type Category struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Required       bool   `json:"required"`
	DefaultEnabled bool   `json:"default_enabled"`
	Order          int    `json:"order"`
}

// MappingRule associates a wildcard cookie pattern with a category.
// Rules carry a stable generated ID; the persisted form is never addressed
// by array position. Position records insertion order and is the tie-break
// among rules of equal priority.
type MappingRule struct {
	ID       string `json:"id"`
	Pattern  string `json:"pattern"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Category string `json:"category"`
	Priority int    `json:"priority"`
	Position int    `json:"position"`
}

// DefaultRulePriority is applied when a rule is stored without one.
const DefaultRulePriority = 10

// Snapshot maps category IDs to the visitor's allow/deny choice. A sanitized
// snapshot contains an entry for every known category, with required
// categories forced true.
type Snapshot map[string]bool

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// PreferenceRecord is what the server-side store holds per pseudo-session:
// the legacy simple preference and, in category mode, the full snapshot.
// The server copy is a lagging mirror of the client's; it expires after
// SessionTTL and an expired record reads as "undetermined".
type PreferenceRecord struct {
	Simple     SimplePreference `json:"simple,omitempty"`
	Categories Snapshot         `json:"categories,omitempty"`
	SavedAt    time.Time        `json:"saved_at"`
}

// Settings is the persisted global configuration consulted on every decision.
type Settings struct {
	Mode Mode `json:"mode"`
}

// DetectedCookie is an observation record fed to the admin UI. It never
// influences blocking.
type DetectedCookie struct {
	Name              string    `json:"name"`
	Domain            string    `json:"domain"`
	Path              string    `json:"path"`
	Source            string    `json:"source"`
	SuggestedCategory string    `json:"suggested_category,omitempty"`
	AssignedCategory  string    `json:"assigned_category,omitempty"`
	DetectedAt        time.Time `json:"detected_at"`
	LastDetected      time.Time `json:"last_detected"`
	DetectionCount    int       `json:"detection_count"`
	Context           string    `json:"context,omitempty"`
}

// LearnedPattern is a frequency-counter entry produced by the pattern
// learner from manual category assignments.
type LearnedPattern struct {
	Pattern       string  `json:"pattern"`
	Category      string  `json:"category"`
	Confidence    float64 `json:"confidence"`
	AccuracyCount int     `json:"accuracy_count"`
	TotalCount    int     `json:"total_count"`
}
