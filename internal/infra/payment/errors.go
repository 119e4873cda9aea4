package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hodhod22/payout-engine/internal/domain"
)

// classifyTransport maps a transport-level failure onto the domain taxonomy.
func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}

// classifyHTTP maps a non-2xx provider response onto the domain taxonomy.
// 5xx means the provider is unavailable; anything else in 4xx territory is
// a business rejection.
func classifyHTTP(status int, body string) error {
	if status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d: %s", domain.ErrProviderUnavailable, status, truncate(body, 256))
	}
	return fmt.Errorf("%w: status %d: %s", domain.ErrProviderRejected, status, truncate(body, 256))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
