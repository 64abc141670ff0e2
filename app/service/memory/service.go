package memory

import (
	"context"
	"gastobot/app/config"

	"github.com/samber/do"
)

// Store is the conversation window contract. It is a best-effort
// accelerator: Read reports degraded=true instead of failing when the
// backend is unreachable, and callers must treat that the same as an
// empty history, minus the "no history" assumption.
type Store interface {
	Append(ctx context.Context, userID string, turn Turn) error
	Read(ctx context.Context, userID string) (turns []Turn, degraded bool)
	Clear(ctx context.Context, userID string) error
}

// New wires the configured backend: Redis when enabled, otherwise the
// in-process window with the same cap and TTL semantics.
func New(di *do.Injector) (Store, error) {
	cfg := do.MustInvoke[*config.Config](di)

	if !cfg.Redis.Enabled {
		return NewInMemoryStore(cfg.Policy.WindowSize, cfg.Policy.WindowTTL), nil
	}

	return NewRedisStore(cfg)
}
