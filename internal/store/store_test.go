package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentgate/api/schemas"
)

// -- Test Cases --

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing().WillReturnError(nil)
	s, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestCategories(t *testing.T) {
	ctx := context.Background()

	t.Run("should return categories in display order", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		rows := pgxmock.NewRows([]string{"id", "name", "description", "required", "default_enabled", "ord"}).
			AddRow("essential", "Essential", "Required for the site to work.", true, true, 0).
			AddRow("analytics", "Analytics", "Usage measurement.", false, false, 1)
		mockPool.ExpectQuery(`SELECT id, name, description, required, default_enabled, ord`).WillReturnRows(rows)

		cats, err := s.Categories(ctx)
		require.NoError(t, err)
		require.Len(t, cats, 2)
		assert.Equal(t, "essential", cats[0].ID)
		assert.True(t, cats[0].Required)
		assert.Equal(t, "analytics", cats[1].ID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should upsert a category", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		mockPool.ExpectExec(`INSERT INTO consent_categories`).
			WithArgs("functional", "Functional", "Preferences.", false, true, 3).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := s.SaveCategory(ctx, schemas.Category{
			ID: "functional", Name: "Functional", Description: "Preferences.",
			DefaultEnabled: true, Order: 3,
		})
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should reject category without id", func(t *testing.T) {
		s, _ := newMockStore(t)
		err := s.SaveCategory(ctx, schemas.Category{Name: "No ID"})
		require.Error(t, err)
	})
}

func TestSaveMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("should assign id and next position on insert", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		mockPool.ExpectQuery(`INSERT INTO consent_mappings`).
			WithArgs(pgxmock.AnyArg(), "_hjid*", "", "", "analytics", 50).
			WillReturnRows(pgxmock.NewRows([]string{"position"}).AddRow(14))

		saved, err := s.SaveMapping(ctx, schemas.MappingRule{
			Pattern: "_hjid*", Category: "analytics", Priority: 50,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID, "Inserted rule should get a generated ID")
		_, parseErr := uuid.Parse(saved.ID)
		assert.NoError(t, parseErr)
		assert.Equal(t, 14, saved.Position)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should keep position on update", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		id := uuid.NewString()

		mockPool.ExpectQuery(regexp.QuoteMeta(`UPDATE consent_mappings`)).
			WithArgs(id, "_ga*", "", "", "marketing", 60).
			WillReturnRows(pgxmock.NewRows([]string{"position"}).AddRow(3))

		saved, err := s.SaveMapping(ctx, schemas.MappingRule{
			ID: id, Pattern: "_ga*", Category: "marketing", Priority: 60,
		})
		require.NoError(t, err)
		assert.Equal(t, id, saved.ID)
		assert.Equal(t, 3, saved.Position)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should apply default priority when unset", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		mockPool.ExpectQuery(`INSERT INTO consent_mappings`).
			WithArgs(pgxmock.AnyArg(), "sbjs_*", "", "", "analytics", schemas.DefaultRulePriority).
			WillReturnRows(pgxmock.NewRows([]string{"position"}).AddRow(0))

		saved, err := s.SaveMapping(ctx, schemas.MappingRule{Pattern: "sbjs_*", Category: "analytics"})
		require.NoError(t, err)
		assert.Equal(t, schemas.DefaultRulePriority, saved.Priority)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestSettings(t *testing.T) {
	ctx := context.Background()

	t.Run("should default to simple mode when no row exists", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		mockPool.ExpectQuery(`SELECT mode FROM consent_settings`).
			WillReturnRows(pgxmock.NewRows([]string{"mode"}))

		settings, err := s.Settings(ctx)
		require.NoError(t, err)
		assert.Equal(t, schemas.ModeSimple, settings.Mode)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should coerce an unknown stored mode to simple", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		mockPool.ExpectQuery(`SELECT mode FROM consent_settings`).
			WillReturnRows(pgxmock.NewRows([]string{"mode"}).AddRow("granular"))

		settings, err := s.Settings(ctx)
		require.NoError(t, err)
		assert.Equal(t, schemas.ModeSimple, settings.Mode)
	})
}

func TestDetected(t *testing.T) {
	ctx := context.Background()

	t.Run("should upsert a detected cookie", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		now := time.Now().UTC()

		mockPool.ExpectExec(`INSERT INTO detected_cookies`).
			WithArgs("abc123", "_hjid", "example.com", "/", "http", "analytics", "",
				now, now, 1, "").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := s.UpsertDetected(ctx, "abc123", schemas.DetectedCookie{
			Name: "_hjid", Domain: "example.com", Path: "/", Source: "http",
			SuggestedCategory: "analytics", DetectedAt: now, LastDetected: now, DetectionCount: 1,
		})
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should error when assigning to an unknown key", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		mockPool.ExpectExec(`UPDATE detected_cookies SET assigned_category`).
			WithArgs("missing", "analytics").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := s.AssignCategory(ctx, "missing", "analytics")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("should report purge count", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		cutoff := time.Now().Add(-30 * 24 * time.Hour)

		mockPool.ExpectExec(`DELETE FROM detected_cookies WHERE detected_at`).
			WithArgs(cutoff).
			WillReturnResult(pgxmock.NewResult("DELETE", 7))

		purged, err := s.PurgeDetectedBefore(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 7, purged)
	})
}

func TestSeed(t *testing.T) {
	ctx := context.Background()

	t.Run("should not seed a populated store", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		rows := pgxmock.NewRows([]string{"id", "name", "description", "required", "default_enabled", "ord"}).
			AddRow("essential", "Essential", "", true, true, 0)
		mockPool.ExpectQuery(`SELECT id, name, description, required, default_enabled, ord`).WillReturnRows(rows)

		require.NoError(t, s.Seed(ctx))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should seed defaults into an empty store", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		mockPool.ExpectQuery(`SELECT id, name, description, required, default_enabled, ord`).
			WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description", "required", "default_enabled", "ord"}))
		mockPool.ExpectBegin()
		for range schemas.DefaultCategories() {
			mockPool.ExpectExec(`INSERT INTO consent_categories`).
				WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		for range schemas.DefaultMappings() {
			mockPool.ExpectExec(`INSERT INTO consent_mappings`).
				WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		mockPool.ExpectCommit()

		require.NoError(t, s.Seed(ctx))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should seed defaults", func(t *testing.T) {
		s := NewMemoryStore()

		cats, err := s.Categories(ctx)
		require.NoError(t, err)
		assert.Len(t, cats, 4)
		assert.Equal(t, "essential", cats[0].ID)

		rules, err := s.Mappings(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, rules)
	})

	t.Run("should assign id and position on insert", func(t *testing.T) {
		s := NewMemoryStore()
		before, err := s.Mappings(ctx)
		require.NoError(t, err)

		saved, err := s.SaveMapping(ctx, schemas.MappingRule{Pattern: "_pin_*", Category: "marketing", Priority: 50})
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID)
		assert.Equal(t, len(before), saved.Position)
	})

	t.Run("should keep position on update", func(t *testing.T) {
		s := NewMemoryStore()
		rules, err := s.Mappings(ctx)
		require.NoError(t, err)
		target := rules[2]

		target.Category = "marketing"
		saved, err := s.SaveMapping(ctx, target)
		require.NoError(t, err)
		assert.Equal(t, rules[2].Position, saved.Position)
	})

	t.Run("should error updating an unknown rule", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.SaveMapping(ctx, schemas.MappingRule{ID: uuid.NewString(), Pattern: "x", Category: "analytics"})
		require.Error(t, err)
	})

	t.Run("should increment detection count on repeat upsert", func(t *testing.T) {
		s := NewMemoryStore()
		now := time.Now()

		c := schemas.DetectedCookie{Name: "_fbp", Domain: "example.com", Path: "/", DetectedAt: now, LastDetected: now, DetectionCount: 1}
		require.NoError(t, s.UpsertDetected(ctx, "k1", c))
		c.LastDetected = now.Add(time.Minute)
		require.NoError(t, s.UpsertDetected(ctx, "k1", c))

		detected, err := s.Detected(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, detected["k1"].DetectionCount)
		assert.Equal(t, now.Add(time.Minute), detected["k1"].LastDetected)
	})

	t.Run("should purge only old detections", func(t *testing.T) {
		s := NewMemoryStore()
		now := time.Now()

		old := schemas.DetectedCookie{Name: "old", DetectedAt: now.Add(-40 * 24 * time.Hour)}
		fresh := schemas.DetectedCookie{Name: "fresh", DetectedAt: now}
		require.NoError(t, s.UpsertDetected(ctx, "old", old))
		require.NoError(t, s.UpsertDetected(ctx, "fresh", fresh))

		purged, err := s.PurgeDetectedBefore(ctx, now.Add(-30*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, purged)

		detected, err := s.Detected(ctx)
		require.NoError(t, err)
		assert.Contains(t, detected, "fresh")
		assert.NotContains(t, detected, "old")
	})
}
