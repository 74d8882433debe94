package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentgate/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the store can be exercised with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides the PostgreSQL implementation of schemas.RuleStore and
// schemas.DetectionStore. The persisted blobs carry no version field;
// migrations rewrite rows in place.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// -- Categories --

func (s *Store) Categories(ctx context.Context) ([]schemas.Category, error) {
	query := `
        SELECT id, name, description, required, default_enabled, ord
        FROM consent_categories
        ORDER BY ord ASC, id ASC;
    `
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var cats []schemas.Category
	for rows.Next() {
		var c schemas.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Required, &c.DefaultEnabled, &c.Order); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during category iteration: %w", err)
	}
	return cats, nil
}

func (s *Store) SaveCategory(ctx context.Context, cat schemas.Category) error {
	if cat.ID == "" {
		return errors.New("category id is required")
	}
	sql := `
        INSERT INTO consent_categories (id, name, description, required, default_enabled, ord)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            description = EXCLUDED.description,
            required = EXCLUDED.required,
            default_enabled = EXCLUDED.default_enabled,
            ord = EXCLUDED.ord;
    `
	if _, err := s.pool.Exec(ctx, sql, cat.ID, cat.Name, cat.Description, cat.Required, cat.DefaultEnabled, cat.Order); err != nil {
		return fmt.Errorf("failed to save category %s: %w", cat.ID, err)
	}
	return nil
}

// DeleteCategory removes a category. Mapping rules referencing it are left
// in place; a dangling reference resolves to no category.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM consent_categories WHERE id = $1;`, id); err != nil {
		return fmt.Errorf("failed to delete category %s: %w", id, err)
	}
	return nil
}

// -- Mapping rules --

func (s *Store) Mappings(ctx context.Context) ([]schemas.MappingRule, error) {
	query := `
        SELECT id, pattern, domain, path, category, priority, position
        FROM consent_mappings
        ORDER BY position ASC;
    `
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var rules []schemas.MappingRule
	for rows.Next() {
		var r schemas.MappingRule
		if err := rows.Scan(&r.ID, &r.Pattern, &r.Domain, &r.Path, &r.Category, &r.Priority, &r.Position); err != nil {
			return nil, fmt.Errorf("failed to scan mapping row: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during mapping iteration: %w", err)
	}
	return rules, nil
}

// SaveMapping inserts the rule when its ID is empty, assigning a fresh UUID
// and the next insertion position; otherwise it updates the addressed rule
// while keeping its position, so the tie-break order survives edits.
func (s *Store) SaveMapping(ctx context.Context, rule schemas.MappingRule) (schemas.MappingRule, error) {
	if rule.Priority == 0 {
		rule.Priority = schemas.DefaultRulePriority
	}

	if rule.ID == "" {
		rule.ID = uuid.NewString()
		sql := `
        INSERT INTO consent_mappings (id, pattern, domain, path, category, priority, position)
        VALUES ($1, $2, $3, $4, $5, $6, (SELECT COALESCE(MAX(position) + 1, 0) FROM consent_mappings))
        RETURNING position;
    `
		if err := s.pool.QueryRow(ctx, sql, rule.ID, rule.Pattern, rule.Domain, rule.Path, rule.Category, rule.Priority).Scan(&rule.Position); err != nil {
			return schemas.MappingRule{}, fmt.Errorf("failed to insert mapping: %w", err)
		}
		return rule, nil
	}

	sql := `
        UPDATE consent_mappings
        SET pattern = $2, domain = $3, path = $4, category = $5, priority = $6
        WHERE id = $1
        RETURNING position;
    `
	if err := s.pool.QueryRow(ctx, sql, rule.ID, rule.Pattern, rule.Domain, rule.Path, rule.Category, rule.Priority).Scan(&rule.Position); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schemas.MappingRule{}, fmt.Errorf("mapping %s not found", rule.ID)
		}
		return schemas.MappingRule{}, fmt.Errorf("failed to update mapping %s: %w", rule.ID, err)
	}
	return rule, nil
}

func (s *Store) DeleteMapping(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM consent_mappings WHERE id = $1;`, id); err != nil {
		return fmt.Errorf("failed to delete mapping %s: %w", id, err)
	}
	return nil
}

// -- Settings --

func (s *Store) Settings(ctx context.Context) (schemas.Settings, error) {
	var mode string
	err := s.pool.QueryRow(ctx, `SELECT mode FROM consent_settings WHERE singleton = TRUE;`).Scan(&mode)
	if errors.Is(err, pgx.ErrNoRows) {
		return schemas.Settings{Mode: schemas.ModeSimple}, nil
	}
	if err != nil {
		return schemas.Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	settings := schemas.Settings{Mode: schemas.Mode(mode)}
	if !settings.Mode.Valid() {
		settings.Mode = schemas.ModeSimple
	}
	return settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings schemas.Settings) error {
	if !settings.Mode.Valid() {
		settings.Mode = schemas.ModeSimple
	}
	sql := `
        INSERT INTO consent_settings (singleton, mode)
        VALUES (TRUE, $1)
        ON CONFLICT (singleton) DO UPDATE SET mode = EXCLUDED.mode;
    `
	if _, err := s.pool.Exec(ctx, sql, string(settings.Mode)); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// -- Detected cookies --

func (s *Store) Detected(ctx context.Context) (map[string]schemas.DetectedCookie, error) {
	query := `
        SELECT key, name, domain, path, source, suggested_category, assigned_category,
               detected_at, last_detected, detection_count, context
        FROM detected_cookies;
    `
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query detected cookies: %w", err)
	}
	defer rows.Close()

	detected := make(map[string]schemas.DetectedCookie)
	for rows.Next() {
		var key string
		var c schemas.DetectedCookie
		if err := rows.Scan(&key, &c.Name, &c.Domain, &c.Path, &c.Source, &c.SuggestedCategory,
			&c.AssignedCategory, &c.DetectedAt, &c.LastDetected, &c.DetectionCount, &c.Context); err != nil {
			return nil, fmt.Errorf("failed to scan detected cookie row: %w", err)
		}
		detected[key] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during detected cookie iteration: %w", err)
	}
	return detected, nil
}

func (s *Store) UpsertDetected(ctx context.Context, key string, c schemas.DetectedCookie) error {
	sql := `
        INSERT INTO detected_cookies
            (key, name, domain, path, source, suggested_category, assigned_category,
             detected_at, last_detected, detection_count, context)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (key) DO UPDATE SET
            last_detected = EXCLUDED.last_detected,
            detection_count = detected_cookies.detection_count + 1;
    `
	_, err := s.pool.Exec(ctx, sql, key, c.Name, c.Domain, c.Path, c.Source,
		c.SuggestedCategory, c.AssignedCategory, c.DetectedAt, c.LastDetected, c.DetectionCount, c.Context)
	if err != nil {
		return fmt.Errorf("failed to upsert detected cookie %s: %w", c.Name, err)
	}
	return nil
}

func (s *Store) AssignCategory(ctx context.Context, key, categoryID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE detected_cookies SET assigned_category = $2 WHERE key = $1;`, key, categoryID)
	if err != nil {
		return fmt.Errorf("failed to assign category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("detected cookie %s not found", key)
	}
	return nil
}

func (s *Store) PurgeDetectedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM detected_cookies WHERE detected_at < $1;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge detected cookies: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// -- Learned patterns --

func (s *Store) LearnedPatterns(ctx context.Context) (map[string]schemas.LearnedPattern, error) {
	query := `
        SELECT key, pattern, category, confidence, accuracy_count, total_count
        FROM learned_patterns;
    `
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned patterns: %w", err)
	}
	defer rows.Close()

	learned := make(map[string]schemas.LearnedPattern)
	for rows.Next() {
		var key string
		var p schemas.LearnedPattern
		if err := rows.Scan(&key, &p.Pattern, &p.Category, &p.Confidence, &p.AccuracyCount, &p.TotalCount); err != nil {
			return nil, fmt.Errorf("failed to scan learned pattern row: %w", err)
		}
		learned[key] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during learned pattern iteration: %w", err)
	}
	return learned, nil
}

func (s *Store) SaveLearnedPattern(ctx context.Context, key string, p schemas.LearnedPattern) error {
	sql := `
        INSERT INTO learned_patterns (key, pattern, category, confidence, accuracy_count, total_count)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (key) DO UPDATE SET
            confidence = EXCLUDED.confidence,
            accuracy_count = EXCLUDED.accuracy_count,
            total_count = EXCLUDED.total_count;
    `
	if _, err := s.pool.Exec(ctx, sql, key, p.Pattern, p.Category, p.Confidence, p.AccuracyCount, p.TotalCount); err != nil {
		return fmt.Errorf("failed to save learned pattern %s: %w", p.Pattern, err)
	}
	return nil
}

// Seed installs the default categories and mappings when the store is empty.
// Called once at startup; a populated store is left untouched.
func (s *Store) Seed(ctx context.Context) error {
	cats, err := s.Categories(ctx)
	if err != nil {
		return err
	}
	if len(cats) > 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback seed transaction", zap.Error(rollbackErr))
		}
	}()

	for _, cat := range schemas.DefaultCategories() {
		if _, err := tx.Exec(ctx,
			`INSERT INTO consent_categories (id, name, description, required, default_enabled, ord) VALUES ($1, $2, $3, $4, $5, $6);`,
			cat.ID, cat.Name, cat.Description, cat.Required, cat.DefaultEnabled, cat.Order); err != nil {
			return fmt.Errorf("failed to seed category %s: %w", cat.ID, err)
		}
	}
	for _, rule := range schemas.DefaultMappings() {
		if _, err := tx.Exec(ctx,
			`INSERT INTO consent_mappings (id, pattern, domain, path, category, priority, position) VALUES ($1, $2, $3, $4, $5, $6, $7);`,
			rule.ID, rule.Pattern, rule.Domain, rule.Path, rule.Category, rule.Priority, rule.Position); err != nil {
			return fmt.Errorf("failed to seed mapping %s: %w", rule.Pattern, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}
	s.log.Info("Seeded default consent configuration")
	return nil
}
