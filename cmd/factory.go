package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentgate/api/schemas"
	"github.com/xkilldash9x/consentgate/internal/api"
	"github.com/xkilldash9x/consentgate/internal/config"
	"github.com/xkilldash9x/consentgate/internal/detector"
	"github.com/xkilldash9x/consentgate/internal/observability"
	"github.com/xkilldash9x/consentgate/internal/session"
	"github.com/xkilldash9x/consentgate/internal/store"
)

// Components holds all the initialized services the server runs on. The
// struct centralizes lifecycle management of the dependencies.
type Components struct {
	Rules    schemas.RuleStore
	Prefs    schemas.PreferenceStore
	Detector *detector.Detector
	Server   *api.Server
	DBPool   *pgxpool.Pool

	prefsCloser interface{ Close() error }
}

// buildComponents wires the stores, detector, and HTTP server from the
// loaded configuration. Postgres and redis are both optional; either falls
// back to its in-memory implementation.
func buildComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		pg, err := store.New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := pg.Seed(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		c.DBPool = pool
		c.Rules = pg
		// The Postgres store also holds the detection inventory.
		c.Detector = detector.New(pg, pg, detectorOptions(cfg), logger)
	} else {
		logger.Info("No database configured, using in-memory rule store")
		mem := store.NewMemoryStore()
		c.Rules = mem
		c.Detector = detector.New(mem, mem, detectorOptions(cfg), logger)
	}

	prefs, err := session.NewStore(ctx, session.Options{
		Backend:   sessionBackend(cfg),
		RedisAddr: cfg.Redis.Addr,
		RedisPass: cfg.Redis.Password,
		RedisDB:   cfg.Redis.DB,
	}, logger)
	if err != nil {
		c.Shutdown()
		return nil, fmt.Errorf("failed to create preference store: %w", err)
	}
	c.Prefs = prefs
	if closer, ok := prefs.(interface{ Close() error }); ok {
		c.prefsCloser = closer
	}

	c.Server = api.NewServer(api.Config{
		Secret:     cfg.Consent.SessionSecret,
		SessionTTL: cfg.Consent.SessionTTL,
	}, c.Rules, c.Prefs, c.Detector, logger)

	return c, nil
}

func sessionBackend(cfg *config.Config) session.Backend {
	if cfg.Redis.Addr != "" {
		return session.BackendRedis
	}
	return session.BackendMemory
}

func detectorOptions(cfg *config.Config) detector.Options {
	return detector.Options{
		Retention:           time.Duration(cfg.Detection.RetentionDays) * 24 * time.Hour,
		AutoAssign:          cfg.Detection.AutoAssign,
		ConfidenceThreshold: cfg.Detection.ConfidenceThreshold,
		JanitorInterval:     cfg.Detection.JanitorInterval,
	}
}

// Shutdown closes all components, releasing resources in reverse
// dependency order.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.Detector != nil {
		c.Detector.Close()
		logger.Debug("Detector stopped.")
	}

	if c.prefsCloser != nil {
		if err := c.prefsCloser.Close(); err != nil {
			logger.Warn("Failed to close preference store", zap.Error(err))
		} else {
			logger.Debug("Preference store closed.")
		}
	}

	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database pool closed.")
	}

	logger.Debug("Components shutdown complete.")
}
