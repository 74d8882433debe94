// Package detector records cookies observed in live traffic and suggests
// categories for them. Detection is informational: nothing here influences
// a blocking decision.
package detector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/consentgate/api/schemas"
	"github.com/xkilldash9x/consentgate/internal/consent"
)

// DefaultRetention is how long a detected cookie record is kept without
// being re-observed before the janitor removes it.
const DefaultRetention = 90 * 24 * time.Hour

// Options tune the detector.
type Options struct {
	// Retention overrides DefaultRetention when positive.
	Retention time.Duration
	// AutoAssign copies a suggestion into the assigned category when the
	// learner's confidence clears ConfidenceThreshold.
	AutoAssign bool
	// ConfidenceThreshold overrides SuggestionThreshold when positive.
	ConfidenceThreshold float64
	// JanitorInterval bounds how often the retention sweep runs. Zero
	// disables the background janitor.
	JanitorInterval time.Duration
}

// Detector observes cookie writes and maintains the detected-cookie
// inventory. Safe for concurrent use.
type Detector struct {
	store schemas.DetectionStore
	rules schemas.RuleStore
	opts  Options
	log   *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New builds a detector over the given stores.
func New(store schemas.DetectionStore, rules schemas.RuleStore, opts Options, logger *zap.Logger) *Detector {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = SuggestionThreshold
	}
	d := &Detector{
		store: store,
		rules: rules,
		opts:  opts,
		log:   logger.Named("detector"),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	if opts.JanitorInterval > 0 {
		go d.janitor(opts.JanitorInterval)
	} else {
		close(d.done)
	}
	return d
}

// Key derives the stable identifier for a detected cookie record.
func Key(id schemas.Identity) string {
	sum := sha256.Sum256([]byte(id.Name + "|" + id.Domain + "|" + id.Path))
	return hex.EncodeToString(sum[:16])
}

// Observe records a cookie sighting. First observation creates the record
// with a category suggestion; repeats bump the count and timestamp.
func (d *Detector) Observe(ctx context.Context, id schemas.Identity, source, detail string) error {
	if id.Name == "" {
		return schemas.ErrEmptyCookieName
	}

	key := Key(id)
	now := time.Now().UTC()

	detected, err := d.store.Detected(ctx)
	if err != nil {
		return fmt.Errorf("failed to load detected cookies: %w", err)
	}
	if existing, ok := detected[key]; ok {
		existing.LastDetected = now
		existing.DetectionCount++
		return d.store.UpsertDetected(ctx, key, existing)
	}

	record := schemas.DetectedCookie{
		Name:           id.Name,
		Domain:         id.Domain,
		Path:           id.Path,
		Source:         source,
		Context:        detail,
		DetectedAt:     now,
		LastDetected:   now,
		DetectionCount: 1,
	}
	record.SuggestedCategory = d.suggest(ctx, id)
	if record.SuggestedCategory != "" {
		d.log.Debug("New cookie detected with suggestion",
			zap.String("cookie", id.Name),
			zap.String("category", record.SuggestedCategory))
		if d.opts.AutoAssign {
			record.AssignedCategory = record.SuggestedCategory
		}
	} else {
		d.log.Debug("New cookie detected", zap.String("cookie", id.Name))
	}

	return d.store.UpsertDetected(ctx, key, record)
}

// suggest consults the mapping table first, then the learner. Either source
// failing is not an error; suggestion is best-effort.
func (d *Detector) suggest(ctx context.Context, id schemas.Identity) string {
	rules, err := d.rules.Mappings(ctx)
	if err == nil {
		table := consent.NewTable(rules, d.log)
		if category, ok := table.Resolve(id); ok {
			return category
		}
	} else {
		d.log.Warn("Failed to load mappings for suggestion", zap.Error(err))
	}

	learned, err := d.store.LearnedPatterns(ctx)
	if err != nil {
		d.log.Warn("Failed to load learned patterns", zap.Error(err))
		return ""
	}
	return suggestLearned(learned, id.Name, d.opts.ConfidenceThreshold)
}

// Inventory returns every detected cookie record, keyed by Key.
func (d *Detector) Inventory(ctx context.Context) (map[string]schemas.DetectedCookie, error) {
	detected, err := d.store.Detected(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load detected cookies: %w", err)
	}
	return detected, nil
}

// Assign records an admin's category choice for a detected cookie and feeds
// it to the pattern learner.
func (d *Detector) Assign(ctx context.Context, key, categoryID string) error {
	detected, err := d.store.Detected(ctx)
	if err != nil {
		return fmt.Errorf("failed to load detected cookies: %w", err)
	}
	record, ok := detected[key]
	if !ok {
		return fmt.Errorf("detected cookie %s not found", key)
	}

	if err := d.store.AssignCategory(ctx, key, categoryID); err != nil {
		return err
	}

	learned, err := d.store.LearnedPatterns(ctx)
	if err != nil {
		d.log.Warn("Failed to load learned patterns, skipping reinforcement", zap.Error(err))
		return nil
	}
	for patternKey, entry := range reinforce(learned, record.Name, categoryID) {
		if err := d.store.SaveLearnedPattern(ctx, patternKey, entry); err != nil {
			d.log.Warn("Failed to persist learned pattern",
				zap.String("pattern", entry.Pattern), zap.Error(err))
		}
	}

	d.log.Info("Category assigned to detected cookie",
		zap.String("cookie", record.Name),
		zap.String("category", categoryID))
	return nil
}

// Sweep removes detected records older than the retention window.
func (d *Detector) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-d.opts.Retention)
	purged, err := d.store.PurgeDetectedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention sweep failed: %w", err)
	}
	if purged > 0 {
		d.log.Info("Purged stale detected cookies", zap.Int("count", purged))
	}
	return purged, nil
}

func (d *Detector) janitor(interval time.Duration) {
	defer close(d.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := d.Sweep(ctx); err != nil {
				d.log.Warn("Background sweep failed", zap.Error(err))
			}
			cancel()
		case <-d.stop:
			return
		}
	}
}

// Close stops the background janitor.
func (d *Detector) Close() {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done
}
