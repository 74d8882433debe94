package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/consentgate/api/schemas"
)

// Backend identifies a preference store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// Options carries backend-specific connection settings.
type Options struct {
	Backend   Backend
	RedisAddr string
	RedisPass string
	RedisDB   int
	KeyPrefix string
}

// NewStore creates a PreferenceStore for the configured backend. An empty
// backend defaults to memory.
func NewStore(ctx context.Context, opts Options, logger *zap.Logger) (schemas.PreferenceStore, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(logger), nil
	case BackendRedis:
		return NewRedisStore(ctx, opts.RedisAddr, opts.RedisPass, opts.RedisDB, opts.KeyPrefix)
	default:
		return nil, fmt.Errorf("unknown session store backend: %s", opts.Backend)
	}
}
