package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hodhod22/payout-engine/internal/domain"
	"github.com/hodhod22/payout-engine/internal/domain/model"
	"github.com/hodhod22/payout-engine/internal/domain/ports/adapter"
	"github.com/hodhod22/payout-engine/internal/domain/ports/repository"
	"github.com/hodhod22/payout-engine/internal/infra/logging"
	"github.com/hodhod22/payout-engine/internal/infra/metrics"
	"github.com/hodhod22/payout-engine/internal/validate"
)

// Compile-time check
var _ PayoutUseCase = (*payoutUC)(nil)

// StatusView is the caller-facing projection of a payout's state. Pending
// payouts expose no error; once the polling deadline has passed they carry
// a reconciliation_timeout advisory instead of a guessed terminal status.
type StatusView struct {
	PayoutID          string             `json:"payoutId"`
	Status            model.PayoutStatus `json:"status"`
	ProviderReference string             `json:"providerReference,omitempty"`
	FailureReason     string             `json:"failureReason,omitempty"`
	Advisory          string             `json:"advisory,omitempty"`
}

const AdvisoryReconciliationTimeout = "reconciliation_timeout"

type PayoutUseCase interface {
	// Create validates the request, dispatches it to the provider selected
	// for the method, and persists the resulting payout. The returned
	// string is the redirect URL when the redirect rail was selected.
	Create(ctx context.Context, req model.PayoutRequest) (*model.Payout, string, error)
	GetByID(ctx context.Context, id string) (*model.Payout, error)
	GetByReference(ctx context.Context, reference string) (*model.Payout, error)
	// Status resolves a payout by id or provider reference and projects it
	// for the caller, attaching the deadline advisory when applicable.
	Status(ctx context.Context, idOrReference string) (*StatusView, error)
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]*model.Payout, error)
}

// IdempotencyStore keeps the request-key -> payout-id binding while the
// payout is in flight, backed by Redis in production.
type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (existingPayoutID string, claimed bool, err error)
	Bind(ctx context.Context, key, payoutID string) error
	Fail(ctx context.Context, key string) error
}

// RequestLimiter caps payout creation per user.
type RequestLimiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// PayoutConfig carries the request-manager tunables.
type PayoutConfig struct {
	// MinAmount is the exclusive lower bound in minor units.
	MinAmount int64
	// RetryBase is the backoff base for the single transient retry.
	RetryBase time.Duration
	// RedirectCurrency routes payouts in this currency through the
	// redirect rail (the gateway only settles its home currency).
	RedirectCurrency string
	// PollDeadline bounds how long a pending poll-capable payout may go
	// unresolved before status queries carry the timeout advisory.
	PollDeadline time.Duration
}

func (c *PayoutConfig) normalize() {
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.RedirectCurrency == "" {
		c.RedirectCurrency = "IRR"
	}
	if c.PollDeadline <= 0 {
		c.PollDeadline = 10 * time.Minute
	}
}

type payoutUC struct {
	payouts  repository.PayoutRepository
	adapters map[model.PayoutMethod]adapter.ProviderAdapter
	redirect adapter.ProviderAdapter // redirect rail, may be nil
	idem     IdempotencyStore        // may be nil
	limiter  RequestLimiter          // may be nil
	cfg      PayoutConfig
	log      *zerolog.Logger
}

func NewPayoutUseCase(
	payouts repository.PayoutRepository,
	adapters map[model.PayoutMethod]adapter.ProviderAdapter,
	redirect adapter.ProviderAdapter,
	idem IdempotencyStore,
	limiter RequestLimiter,
	cfg PayoutConfig,
	logger *zerolog.Logger,
) *payoutUC {
	cfg.normalize()
	return &payoutUC{
		payouts:  payouts,
		adapters: adapters,
		redirect: redirect,
		idem:     idem,
		limiter:  limiter,
		cfg:      cfg,
		log:      logger,
	}
}

// requestKey derives the idempotency key from the request identity tuple.
func requestKey(req model.PayoutRequest) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s|%s",
		req.UserID, req.Method, req.Amount, strings.ToUpper(req.Currency), req.IdempotencyKey)))
	return "payout:idem:" + hex.EncodeToString(h[:16])
}

func (u *payoutUC) Create(ctx context.Context, req model.PayoutRequest) (*model.Payout, string, error) {
	if errs := validate.Request(req, u.cfg.MinAmount); len(errs) > 0 {
		return nil, "", &domain.ValidationError{Fields: errs}
	}
	log := logging.With(ctx, u.log)

	if u.limiter != nil {
		allowed, err := u.limiter.Allow(ctx, req.UserID)
		if err != nil {
			log.Warn().Err(err).Msg("rate limiter unavailable; allowing request")
		} else if !allowed {
			return nil, "", domain.ErrRateLimited
		}
	}

	// Idempotency: a repeat of the same logical request while a prior
	// payout for it is still pending returns the existing record and
	// issues no provider call. Without a caller token duplicates are the
	// caller's responsibility.
	var idemKey string
	if req.IdempotencyKey != "" && u.idem != nil {
		idemKey = requestKey(req)
		existingID, claimed, err := u.idem.Begin(ctx, idemKey)
		if err != nil {
			log.Warn().Err(err).Msg("idempotency store unavailable; proceeding without dedupe")
			idemKey = ""
		} else if !claimed {
			if existingID != "" {
				if p, err := u.payouts.FindByID(ctx, nil, existingID); err == nil && p.Status == model.PayoutStatusPending {
					return p, "", nil
				}
			}
			// The binding was lost or points at a finished payout; fall
			// back to the repository before giving up.
			if p, err := u.payouts.FindPendingByIdempotencyKey(ctx, nil, req.UserID, req.IdempotencyKey); err == nil {
				return p, "", nil
			}
			return nil, "", domain.ErrAlreadyExists
		}
	}

	prov, sreq := u.route(req)
	if prov == nil {
		if idemKey != "" {
			_ = u.idem.Fail(ctx, idemKey)
		}
		return nil, "", fmt.Errorf("%w: no provider configured for method %q", domain.ErrInvalidArgument, req.Method)
	}

	res, submitErr := u.submitWithRetry(ctx, prov, sreq)
	if submitErr != nil {
		p, err := u.recordSubmitFailure(ctx, req, prov.Name(), submitErr)
		if idemKey != "" {
			_ = u.idem.Fail(ctx, idemKey)
		}
		if err != nil {
			return nil, "", err
		}
		return p, "", submitErr
	}

	p, err := model.NewPayout(req, prov.Name(), res.Reference, res.Status)
	if err != nil {
		return nil, "", err
	}
	// A synchronous rail can come back already terminal; its reason code
	// must land on the record like any other terminal transition.
	if p.Status == model.PayoutStatusFailed || p.Status == model.PayoutStatusDenied {
		p.FailureReason = res.Reason
		if p.FailureReason == "" {
			p.FailureReason = "provider_failed"
		}
	}
	if err := u.payouts.Save(ctx, nil, p); err != nil {
		log.Error().Err(err).Str("reference", res.Reference).Msg("payout submitted but not persisted")
		return nil, "", err
	}
	if idemKey != "" {
		if p.Status == model.PayoutStatusPending {
			_ = u.idem.Bind(ctx, idemKey, p.ID)
		} else {
			_ = u.idem.Fail(ctx, idemKey)
		}
	}

	metrics.IncPayout(string(req.Method), string(p.Status))
	if p.Status == model.PayoutStatusSuccess {
		metrics.AddPayoutAmount(p.Currency, p.Amount)
	}
	ev := log.Info().
		Str("payout_id", p.ID).
		Str("provider", p.Provider).
		Str("reference", p.ProviderReference).
		Str("status", string(p.Status))
	if dest := destination(req); dest != "" {
		ev = ev.Str("destination", logging.Redact(dest, false))
	}
	ev.Msg("payout created")

	return p, res.RedirectURL, nil
}

// destination returns the payout's target identifier, for redacted logging.
func destination(req model.PayoutRequest) string {
	switch {
	case req.Email != "":
		return strings.TrimSpace(req.Email)
	case req.IBAN != "":
		return validate.CleanIBAN(req.IBAN)
	case req.CardNumber != "":
		return validate.CleanCardNumber(req.CardNumber)
	}
	return ""
}

// route selects the provider for a request and builds its normalized
// submission payload. Payouts in the redirect rail's home currency go
// through the redirect gateway; otherwise paypal maps to PayPal and
// bank/card map to the transfer rail.
func (u *payoutUC) route(req model.PayoutRequest) (adapter.ProviderAdapter, adapter.SubmitRequest) {
	sreq := adapter.SubmitRequest{
		UserID:        req.UserID,
		Amount:        req.Amount,
		Currency:      strings.ToUpper(req.Currency),
		Email:         strings.TrimSpace(req.Email),
		IBAN:          validate.CleanIBAN(req.IBAN),
		CardNumber:    validate.CleanCardNumber(req.CardNumber),
		RecipientName: strings.TrimSpace(req.RecipientName),
		Description:   req.Description,
	}
	if u.redirect != nil && strings.EqualFold(req.Currency, u.cfg.RedirectCurrency) {
		return u.redirect, sreq
	}
	return u.adapters[req.Method], sreq
}

// submitWithRetry retries exactly once, with exponential backoff from the
// configured base, and only on transient failures.
func (u *payoutUC) submitWithRetry(ctx context.Context, prov adapter.ProviderAdapter, sreq adapter.SubmitRequest) (*adapter.SubmitResult, error) {
	start := time.Now()
	res, err := prov.Submit(ctx, sreq)
	metrics.ObserveProviderRequest(prov.Name(), "submit", time.Since(start), err == nil)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, domain.ErrProviderUnavailable) && !errors.Is(err, domain.ErrProviderTimeout) {
		return nil, err
	}

	logging.With(ctx, u.log).Warn().Err(err).Str("provider", prov.Name()).Msg("transient provider failure; retrying once")
	select {
	case <-time.After(u.cfg.RetryBase):
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderTimeout, ctx.Err())
	}

	start = time.Now()
	res, err = prov.Submit(ctx, sreq)
	metrics.ObserveProviderRequest(prov.Name(), "submit", time.Since(start), err == nil)
	return res, err
}

// recordSubmitFailure persists the terminal failed payout for a submission
// that could not complete, so no request ends with neither a record nor an
// error.
func (u *payoutUC) recordSubmitFailure(ctx context.Context, req model.PayoutRequest, provider string, submitErr error) (*model.Payout, error) {
	reason := "provider_unavailable"
	switch {
	case errors.Is(submitErr, domain.ErrProviderTimeout):
		reason = "provider_timeout"
	case errors.Is(submitErr, domain.ErrProviderRejected):
		reason = "provider_rejected"
		if code := domain.RejectionReason(submitErr); code != "" {
			reason = code
		}
	}

	p, err := model.NewPayout(req, provider, "", model.PayoutStatusFailed)
	if err != nil {
		return nil, err
	}
	p.FailureReason = reason
	if err := u.payouts.Save(ctx, nil, p); err != nil {
		return nil, err
	}
	metrics.IncPayout(string(req.Method), string(model.PayoutStatusFailed))
	logging.With(ctx, u.log).Warn().
		Str("payout_id", p.ID).
		Str("provider", provider).
		Str("failure_reason", reason).
		Msg("payout failed at submission")
	return p, nil
}

func (u *payoutUC) GetByID(ctx context.Context, id string) (*model.Payout, error) {
	return u.payouts.FindByID(ctx, nil, id)
}

func (u *payoutUC) GetByReference(ctx context.Context, reference string) (*model.Payout, error) {
	return u.payouts.FindByReference(ctx, nil, reference)
}

func (u *payoutUC) Status(ctx context.Context, idOrReference string) (*StatusView, error) {
	p, err := u.payouts.FindByID(ctx, nil, idOrReference)
	if errors.Is(err, domain.ErrNotFound) {
		p, err = u.payouts.FindByReference(ctx, nil, idOrReference)
	}
	if err != nil {
		return nil, err
	}

	view := &StatusView{
		PayoutID:          p.ID,
		Status:            p.Status,
		ProviderReference: p.ProviderReference,
		FailureReason:     p.FailureReason,
	}
	if p.Status == model.PayoutStatusPending && time.Since(p.CreatedAt) > u.cfg.PollDeadline {
		view.Advisory = AdvisoryReconciliationTimeout
	}
	return view, nil
}

func (u *payoutUC) ListByUser(ctx context.Context, userID string, offset, limit int) ([]*model.Payout, error) {
	return u.payouts.ListByUser(ctx, nil, userID, offset, limit)
}
