package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/consentgate/api/schemas"
)

// DefaultTTL is the session-like lifetime of a stored preference record.
// Expiry silently reverts the visitor to "undetermined", which re-prompts.
const DefaultTTL = 24 * time.Hour

// JanitorInterval is how often the memory store sweeps expired records.
const JanitorInterval = 10 * time.Minute

type memoryEntry struct {
	rec       schemas.PreferenceRecord
	expiresAt time.Time
}

// MemoryStore is the in-process PreferenceStore. Suitable for single-node
// deployments and tests; multi-node deployments want the Redis backend.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	logger  *zap.Logger
	stop    chan struct{}
	stopped sync.Once
}

// NewMemoryStore creates a memory store and starts its expiry janitor.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		logger:  logger.Named("session_memory"),
		stop:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*schemas.PreferenceRecord, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		// Expired entries read as missing; the janitor reclaims them later.
		return nil, nil
	}
	rec := entry.rec
	rec.Categories = rec.Categories.Clone()
	return &rec, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, rec schemas.PreferenceRecord, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rec.Categories = rec.Categories.Clone()
	s.mu.Lock()
	s.entries[key] = memoryEntry{rec: rec, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Close stops the janitor. Safe to call more than once.
func (s *MemoryStore) Close() error {
	s.stopped.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(JanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reclaimed int
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
			reclaimed++
		}
	}
	if reclaimed > 0 {
		s.logger.Debug("Reclaimed expired preference records", zap.Int("count", reclaimed))
	}
}
