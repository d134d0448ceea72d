package gatewaywebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/orderflow-backend/pkg/redis"
)

// IdempotencyGuard remembers which (transaction id, transaction status) pairs
// were already applied so exact replays skip the database entirely.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// ReplayKey identifies one notification outcome for a payment attempt.
func ReplayKey(transactionID, transactionStatus string) string {
	return strings.TrimSpace(transactionID) + ":" + strings.ToLower(strings.TrimSpace(transactionStatus))
}

// CheckAndMark reports true when the key was already marked.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("replay key is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, key), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

func (g *IdempotencyGuard) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("replay key is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, key))
}
