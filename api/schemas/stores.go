package schemas

import (
	"context"
	"time"
)

// -- Persistence Contracts --
// Concrete implementations live in internal/store (rules, detections) and
// internal/session (per-visitor preferences). All of them are expected to
// fail fast; callers on the decision path treat any error as "no data".

// RuleStore persists the consent configuration: categories, the ordered
// mapping table and the global settings blob.
type RuleStore interface {
	Categories(ctx context.Context) ([]Category, error)
	SaveCategory(ctx context.Context, cat Category) error
	DeleteCategory(ctx context.Context, id string) error

	Mappings(ctx context.Context) ([]MappingRule, error)
	// SaveMapping inserts rule when its ID is empty (assigning a fresh ID and
	// the next insertion position) and updates the addressed rule otherwise.
	SaveMapping(ctx context.Context, rule MappingRule) (MappingRule, error)
	DeleteMapping(ctx context.Context, id string) error

	Settings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// PreferenceStore is the server-side preference mirror, keyed by the salted
// pseudo-session hash. Records expire after the configured TTL; Get returns
// (nil, nil) for a missing or expired record.
type PreferenceStore interface {
	Get(ctx context.Context, key string) (*PreferenceRecord, error)
	Set(ctx context.Context, key string, rec PreferenceRecord, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// DetectionStore persists cookie observation records and learned patterns.
type DetectionStore interface {
	Detected(ctx context.Context) (map[string]DetectedCookie, error)
	UpsertDetected(ctx context.Context, key string, c DetectedCookie) error
	AssignCategory(ctx context.Context, key, categoryID string) error
	PurgeDetectedBefore(ctx context.Context, cutoff time.Time) (int, error)

	LearnedPatterns(ctx context.Context) (map[string]LearnedPattern, error)
	SaveLearnedPattern(ctx context.Context, key string, p LearnedPattern) error
}
