package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/consentgate/api/schemas"
)

// MemoryStore is an in-process implementation of schemas.RuleStore and
// schemas.DetectionStore, used when no database is configured and in tests.
type MemoryStore struct {
	mu         sync.RWMutex
	categories map[string]schemas.Category
	mappings   []schemas.MappingRule
	settings   schemas.Settings
	detected   map[string]schemas.DetectedCookie
	learned    map[string]schemas.LearnedPattern
}

// NewMemoryStore returns a store seeded with the stock categories and
// mapping rules.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		categories: make(map[string]schemas.Category),
		mappings:   schemas.DefaultMappings(),
		settings:   schemas.Settings{Mode: schemas.ModeSimple},
		detected:   make(map[string]schemas.DetectedCookie),
		learned:    make(map[string]schemas.LearnedPattern),
	}
	for _, cat := range schemas.DefaultCategories() {
		s.categories[cat.ID] = cat
	}
	return s
}

func (s *MemoryStore) Categories(_ context.Context) ([]schemas.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cats := make([]schemas.Category, 0, len(s.categories))
	for _, c := range s.categories {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].Order != cats[j].Order {
			return cats[i].Order < cats[j].Order
		}
		return cats[i].ID < cats[j].ID
	})
	return cats, nil
}

func (s *MemoryStore) SaveCategory(_ context.Context, cat schemas.Category) error {
	if cat.ID == "" {
		return fmt.Errorf("category id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[cat.ID] = cat
	return nil
}

func (s *MemoryStore) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.categories, id)
	return nil
}

func (s *MemoryStore) Mappings(_ context.Context) ([]schemas.MappingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]schemas.MappingRule, len(s.mappings))
	copy(rules, s.mappings)
	return rules, nil
}

func (s *MemoryStore) SaveMapping(_ context.Context, rule schemas.MappingRule) (schemas.MappingRule, error) {
	if rule.Priority == 0 {
		rule.Priority = schemas.DefaultRulePriority
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.NewString()
		rule.Position = s.nextPosition()
		s.mappings = append(s.mappings, rule)
		return rule, nil
	}

	for i, existing := range s.mappings {
		if existing.ID == rule.ID {
			rule.Position = existing.Position
			s.mappings[i] = rule
			return rule, nil
		}
	}
	return schemas.MappingRule{}, fmt.Errorf("mapping %s not found", rule.ID)
}

func (s *MemoryStore) nextPosition() int {
	next := 0
	for _, r := range s.mappings {
		if r.Position >= next {
			next = r.Position + 1
		}
	}
	return next
}

func (s *MemoryStore) DeleteMapping(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.mappings {
		if r.ID == id {
			s.mappings = append(s.mappings[:i], s.mappings[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) Settings(_ context.Context) (schemas.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *MemoryStore) SaveSettings(_ context.Context, settings schemas.Settings) error {
	if !settings.Mode.Valid() {
		settings.Mode = schemas.ModeSimple
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

func (s *MemoryStore) Detected(_ context.Context) (map[string]schemas.DetectedCookie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]schemas.DetectedCookie, len(s.detected))
	for k, v := range s.detected {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) UpsertDetected(_ context.Context, key string, c schemas.DetectedCookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.detected[key]; ok {
		existing.LastDetected = c.LastDetected
		existing.DetectionCount++
		s.detected[key] = existing
		return nil
	}
	s.detected[key] = c
	return nil
}

func (s *MemoryStore) AssignCategory(_ context.Context, key, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.detected[key]
	if !ok {
		return fmt.Errorf("detected cookie %s not found", key)
	}
	c.AssignedCategory = categoryID
	s.detected[key] = c
	return nil
}

func (s *MemoryStore) PurgeDetectedBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for k, c := range s.detected {
		if c.DetectedAt.Before(cutoff) {
			delete(s.detected, k)
			purged++
		}
	}
	return purged, nil
}

func (s *MemoryStore) LearnedPatterns(_ context.Context) (map[string]schemas.LearnedPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]schemas.LearnedPattern, len(s.learned))
	for k, v := range s.learned {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) SaveLearnedPattern(_ context.Context, key string, p schemas.LearnedPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learned[key] = p
	return nil
}
