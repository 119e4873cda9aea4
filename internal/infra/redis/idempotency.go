package redis

import (
	"context"
	"time"
)

// IdempotencyStore maps a request key to the payout id created for it, so
// a repeated request while the prior payout is still pending returns the
// existing record instead of submitting a duplicate provider call.
//
// Begin claims the key with SETNX; the claim is released on Fail (so the
// caller may retry after a submission error) and overwritten with the
// payout id on Bind.
type IdempotencyStore struct {
	cli RedisClient
	ttl time.Duration
}

func NewIdempotencyStore(cli RedisClient, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &IdempotencyStore{cli: cli, ttl: ttl}
}

const claimMarker = "__claimed__"

// Begin tries to claim the key. It returns the already-bound payout id when
// a previous request holds the key, or ok=true when the claim succeeded.
func (s *IdempotencyStore) Begin(ctx context.Context, key string) (existingPayoutID string, ok bool, err error) {
	claimed, err := s.cli.SetNX(ctx, key, claimMarker, s.ttl)
	if err != nil {
		return "", false, err
	}
	if claimed {
		return "", true, nil
	}
	v, err := s.cli.Get(ctx, key)
	if err != nil {
		if IsNil(err) {
			// Claim expired between SETNX and GET; treat as contention.
			return "", false, nil
		}
		return "", false, err
	}
	if v == claimMarker {
		// Another request is mid-flight for the same key.
		return "", false, nil
	}
	return v, false, nil
}

// Bind records the payout created for the key.
func (s *IdempotencyStore) Bind(ctx context.Context, key, payoutID string) error {
	return s.cli.Set(ctx, key, payoutID, s.ttl)
}

// Fail releases the claim after a submission that produced no pending payout.
func (s *IdempotencyStore) Fail(ctx context.Context, key string) error {
	return s.cli.Del(ctx, key)
}
