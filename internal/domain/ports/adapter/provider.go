package adapter

import (
	"context"

	"github.com/hodhod22/payout-engine/internal/domain/model"
)

// SubmitRequest is the normalized, validated payload handed to a provider.
// Exactly the fields required by the target rail are populated.
type SubmitRequest struct {
	UserID        string
	Amount        int64 // minor units
	Currency      string
	Email         string // paypal
	IBAN          string // bank
	CardNumber    string // card
	RecipientName string
	Description   string
	CallbackURL   string // redirect rails only
}

// SubmitResult reports the provider's immediate response to a payout
// submission. Reference uniquely identifies the operation at the provider
// and is the join key for reconciliation and verification.
type SubmitResult struct {
	Reference   string
	Status      model.PayoutStatus
	Reason      string // provider failure code when Status is already terminal
	RedirectURL string // set by redirect-based rails
	Raw         string // provider response body, kept for audit logging
}

// StatusResult is one provider status observation.
type StatusResult struct {
	Status model.PayoutStatus
	Reason string // provider reason code on denied/failed
	Raw    string
}

// ProviderAdapter wraps one external payment rail. Submit must normalize
// provider failures into the domain taxonomy: ErrProviderUnavailable
// (network/5xx), ErrProviderRejected (4xx/business rule), or
// ErrProviderTimeout.
type ProviderAdapter interface {
	Name() string
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
}

// StatusChecker is implemented by adapters whose provider reports
// completion asynchronously and must be polled (PayPal batches).
// CheckStatus is a side-effect-free read and safe to call concurrently.
type StatusChecker interface {
	CheckStatus(ctx context.Context, reference string) (*StatusResult, error)
}

// Verifier is implemented by redirect-based adapters. Verify finalizes the
// operation identified by the authority token after the browser callback.
type Verifier interface {
	Verify(ctx context.Context, amount int64, authority string) (refID string, err error)
}
