package model

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hodhod22/payout-engine/internal/domain"
)

type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending" // submitted to provider; awaiting reconciliation or verification
	PayoutStatusSuccess PayoutStatus = "success" // provider confirmed the money moved
	PayoutStatusDenied  PayoutStatus = "denied"  // provider denied the payout (business rule)
	PayoutStatusFailed  PayoutStatus = "failed"  // provider failed it, or submission could not complete
)

// IsTerminal reports whether no further transition is permitted.
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusSuccess || s == PayoutStatusDenied || s == PayoutStatusFailed
}

type PayoutMethod string

const (
	PayoutMethodPayPal PayoutMethod = "paypal"
	PayoutMethodBank   PayoutMethod = "bank"
	PayoutMethodCard   PayoutMethod = "card"
)

// ParsePayoutMethod maps a wire string onto a known method.
func ParsePayoutMethod(s string) (PayoutMethod, error) {
	switch PayoutMethod(strings.ToLower(strings.TrimSpace(s))) {
	case PayoutMethodPayPal:
		return PayoutMethodPayPal, nil
	case PayoutMethodBank:
		return PayoutMethodBank, nil
	case PayoutMethodCard:
		return PayoutMethodCard, nil
	default:
		return "", domain.ErrInvalidArgument
	}
}

// PayoutRequest is the caller's payout intent. MethodFields is a tagged
// union resolved at the validation boundary: only the fields required by
// Method are read; the rest are ignored.
type PayoutRequest struct {
	UserID         string
	Amount         int64 // minor units (cents, rials)
	Currency       string
	Method         PayoutMethod
	Email          string // paypal
	IBAN           string // bank
	CardNumber     string // card
	RecipientName  string // bank, card
	Description    string // optional free-text note forwarded to the provider
	IdempotencyKey string // optional caller-supplied token
}

// Payout is the persisted, append-only money-movement record. Created once
// by the request manager; status mutated only through compare-and-set
// transitions by the reconciler or the verification handler.
type Payout struct {
	ID                string
	UserID            string
	Amount            int64
	Currency          string
	Method            PayoutMethod
	Provider          string // adapter name, e.g. "paypal", "stripe", "zarinpal"
	ProviderReference string // batch id, payout id, or authority token
	Status            PayoutStatus
	FailureReason     string
	IdempotencyKey    string
	Description       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewPayout builds a payout record for a submitted provider request.
func NewPayout(req PayoutRequest, provider, reference string, status PayoutStatus) (*Payout, error) {
	if req.UserID == "" || provider == "" {
		return nil, domain.ErrInvalidArgument
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Payout{
		ID:                ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		UserID:            req.UserID,
		Amount:            req.Amount,
		Currency:          strings.ToUpper(req.Currency),
		Method:            req.Method,
		Provider:          provider,
		ProviderReference: reference,
		Status:            status,
		IdempotencyKey:    req.IdempotencyKey,
		Description:       req.Description,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// CanTransition reports whether the payout may move to next. Only
// pending payouts transition; terminal states are immutable.
func (p *Payout) CanTransition(next PayoutStatus) bool {
	if p.Status.IsTerminal() {
		return false
	}
	return next.IsTerminal() || next == PayoutStatusPending
}

// VerificationCallback is the ephemeral out-of-band redirect payload for
// redirect-based providers. It resolves exactly one payout by
// ProviderReference == Authority and is never persisted.
type VerificationCallback struct {
	Authority string
	Status    string // provider-native code, e.g. "OK" / "NOK"
}
