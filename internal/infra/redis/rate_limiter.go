package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter bounds payout requests per user in a fixed window.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = r.client.Expire(ctx, key, window)
		if err != nil {
			return false, err
		}
	}

	if count > int64(limit) {
		return false, nil
	}

	return true, nil
}

func UserPayoutKey(userID string) string {
	return fmt.Sprintf("rate_limit:payout:%s", userID)
}

// PayoutRequestLimiter binds a RateLimiter to the payout-creation limit,
// keyed per user.
type PayoutRequestLimiter struct {
	rl     *RateLimiter
	limit  int
	window time.Duration
}

func NewPayoutRequestLimiter(rl *RateLimiter, limit int, window time.Duration) *PayoutRequestLimiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &PayoutRequestLimiter{rl: rl, limit: limit, window: window}
}

func (l *PayoutRequestLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	return l.rl.Allow(ctx, UserPayoutKey(userID), l.limit, l.window)
}
