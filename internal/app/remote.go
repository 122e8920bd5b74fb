package app

import (
	"context"
	"fmt"

	"github.com/emaamul/core/internal/config"
	"github.com/emaamul/core/internal/logging"
	"github.com/emaamul/core/internal/outbox"
	"github.com/emaamul/core/internal/remote/memory"
	"github.com/emaamul/core/internal/remote/postgres"
	"github.com/emaamul/core/internal/remote/redis"
)

// Remote is a remote document store the engine can drain into.
type Remote interface {
	outbox.Sender
	Close() error
}

var (
	_ Remote = (*memory.Store)(nil)
	_ Remote = (*postgres.Store)(nil)
	_ Remote = (*redis.Store)(nil)
)

// OpenRemote connects the remote store selected by cfg.Kind. It returns a
// nil Remote for RemoteNone; sessions then keep their outbox queued.
func OpenRemote(ctx context.Context, cfg config.RemoteConfig) (Remote, error) {
	switch cfg.Kind {
	case config.RemoteNone, "":
		return nil, nil
	case config.RemoteMemory:
		logging.Warn("Remote store is in memory; synced entries are lost on exit", nil)
		return memory.New(), nil
	case config.RemotePostgres:
		return postgres.Open(ctx, postgres.Config{DatabaseURL: cfg.DatabaseURL})
	case config.RemoteRedis:
		return redis.Open(ctx, redis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	default:
		return nil, fmt.Errorf("unknown remote kind %q", cfg.Kind)
	}
}
