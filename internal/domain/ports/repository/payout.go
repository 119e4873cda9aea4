package repository

import (
	"context"
	"time"

	"github.com/hodhod22/payout-engine/internal/domain/model"
)

// PayoutRepository persists payout records. Payouts are append-only: Save
// inserts, UpdateStatusIfPending is the only mutation path and enforces
// the pending->terminal state machine at the storage layer.
type PayoutRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payout) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payout, error)
	FindByReference(ctx context.Context, tx Tx, reference string) (*model.Payout, error)
	// FindPendingByIdempotencyKey returns the pending payout created for a
	// caller-supplied idempotency key, or ErrNotFound.
	FindPendingByIdempotencyKey(ctx context.Context, tx Tx, userID, key string) (*model.Payout, error)
	// UpdateStatusIfPending atomically applies status, failureReason and
	// updated_at only when the current status is 'pending'. Returns false
	// when the row was already terminal (or missing), so concurrent pollers
	// and resent callbacks apply a terminal status at most once.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, status model.PayoutStatus, failureReason string) (bool, error)
	// ListPendingOlderThan returns pending payouts for the named provider
	// created before the cutoff, oldest first, for background reconciliation.
	ListPendingOlderThan(ctx context.Context, tx Tx, provider string, olderThan time.Time, limit int) ([]*model.Payout, error)
	ListByUser(ctx context.Context, tx Tx, userID string, offset, limit int) ([]*model.Payout, error)
}
