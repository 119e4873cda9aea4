package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/hodhod22/payout-engine/internal/domain"
	"github.com/hodhod22/payout-engine/internal/domain/model"
	"github.com/hodhod22/payout-engine/internal/domain/ports/adapter"
	"github.com/hodhod22/payout-engine/internal/domain/ports/repository"
	"github.com/hodhod22/payout-engine/internal/infra/logging"
	"github.com/hodhod22/payout-engine/internal/infra/metrics"
)

var _ VerificationUseCase = (*verificationUC)(nil)

// CallbackStatusOK is the gateway's native "user approved" callback status.
const CallbackStatusOK = "OK"

// VerifyResult reports the outcome of one verification callback.
type VerifyResult struct {
	Payout *model.Payout
	// RefID is the gateway settlement reference, set on fresh successes.
	RefID string
	// Repeated is true when the callback arrived for an already-terminal
	// payout and no provider call was made.
	Repeated bool
}

type VerificationUseCase interface {
	// Verify settles a redirect-rail callback. It is idempotent: repeated
	// callbacks for the same authority return the recorded outcome.
	Verify(ctx context.Context, authority, nativeStatus string) (*VerifyResult, error)
}

// Locker serializes concurrent callbacks for one authority.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

type verificationUC struct {
	payouts  repository.PayoutRepository
	verifier adapter.Verifier
	tm       repository.TransactionManager // may be nil
	locker   Locker                        // may be nil
	log      *zerolog.Logger
}

func NewVerificationUseCase(
	payouts repository.PayoutRepository,
	verifier adapter.Verifier,
	tm repository.TransactionManager,
	locker Locker,
	logger *zerolog.Logger,
) *verificationUC {
	return &verificationUC{
		payouts:  payouts,
		verifier: verifier,
		tm:       tm,
		locker:   locker,
		log:      logger,
	}
}

// settle applies the terminal transition, inside a transaction when a
// manager is wired so the row is locked for the compare-and-set.
func (u *verificationUC) settle(ctx context.Context, id string, status model.PayoutStatus, reason string) (bool, error) {
	if u.tm == nil {
		return u.payouts.UpdateStatusIfPending(ctx, nil, id, status, reason)
	}
	var applied bool
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := u.payouts.FindByID(ctx, tx, id); err != nil {
			return err
		}
		var err error
		applied, err = u.payouts.UpdateStatusIfPending(ctx, tx, id, status, reason)
		return err
	})
	return applied, err
}

func (u *verificationUC) Verify(ctx context.Context, authority, nativeStatus string) (*VerifyResult, error) {
	start := time.Now()
	res, err := u.verify(ctx, authority, nativeStatus)
	result := "ok"
	if err != nil {
		result = "fail"
	}
	metrics.ObserveVerifyDuration(result, time.Since(start).Seconds())
	return res, err
}

func (u *verificationUC) verify(ctx context.Context, authority, nativeStatus string) (*VerifyResult, error) {
	p, err := u.payouts.FindByReference(ctx, nil, authority)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncVerify("fail", "unknown_authority")
		return nil, domain.ErrUnknownAuthority
	}
	if err != nil {
		return nil, err
	}
	ctx = logging.WithPayoutID(ctx, p.ID)
	log := logging.With(ctx, u.log)

	// A repeated callback must not hit the provider again. The first
	// outcome, whatever it was, is the answer.
	if p.Status.IsTerminal() {
		metrics.IncVerify("ok", "already_terminal")
		return &VerifyResult{Payout: p, Repeated: true}, nil
	}

	if nativeStatus != CallbackStatusOK {
		if _, err := u.settle(ctx, p.ID, model.PayoutStatusFailed, "callback_rejected"); err != nil {
			return nil, err
		}
		p.Status = model.PayoutStatusFailed
		p.FailureReason = "callback_rejected"
		metrics.IncPayout(string(p.Method), string(model.PayoutStatusFailed))
		metrics.IncVerify("fail", "callback_rejected")
		log.Info().Str("authority", authority).Msg("callback reported user cancellation")
		return &VerifyResult{Payout: p}, nil
	}

	if u.locker != nil {
		token, err := u.locker.TryLock(ctx, "verify:"+authority, 30*time.Second)
		if err != nil {
			// Another callback for this authority is in flight; report the
			// current state instead of double-confirming.
			metrics.IncVerify("fail", "locked")
			return &VerifyResult{Payout: p, Repeated: true}, nil
		}
		defer func() { _ = u.locker.Unlock(ctx, "verify:"+authority, token) }()
	}

	callStart := time.Now()
	refID, err := u.verifier.Verify(ctx, p.Amount, authority)
	metrics.ObserveProviderRequest(p.Provider, "verify", time.Since(callStart), err == nil)
	if err != nil {
		if errors.Is(err, domain.ErrProviderRejected) {
			// Persist the gateway's own reason code when it gave one.
			reason := domain.RejectionReason(err)
			if reason == "" {
				reason = "verification_rejected"
			}
			if _, uerr := u.settle(ctx, p.ID, model.PayoutStatusFailed, reason); uerr != nil {
				return nil, uerr
			}
			p.Status = model.PayoutStatusFailed
			p.FailureReason = reason
			metrics.IncPayout(string(p.Method), string(model.PayoutStatusFailed))
			metrics.IncVerify("fail", "confirm_error")
			log.Warn().Err(err).Msg("gateway rejected verification")
			return &VerifyResult{Payout: p}, nil
		}
		// Transient: leave the payout pending so a retried callback or the
		// reconciler can settle it.
		metrics.IncVerify("fail", "confirm_error")
		return nil, err
	}

	applied, err := u.settle(ctx, p.ID, model.PayoutStatusSuccess, "")
	if err != nil {
		return nil, err
	}
	if !applied {
		p, err = u.payouts.FindByID(ctx, nil, p.ID)
		if err != nil {
			return nil, err
		}
		metrics.IncVerify("ok", "already_terminal")
		return &VerifyResult{Payout: p, Repeated: true}, nil
	}

	p.Status = model.PayoutStatusSuccess
	p.FailureReason = ""
	metrics.IncPayout(string(p.Method), string(model.PayoutStatusSuccess))
	metrics.AddPayoutAmount(p.Currency, p.Amount)
	metrics.IncVerify("ok", "")
	log.Info().
		Str("authority", authority).
		Str("ref_id", refID).
		Msg("payout verified")
	return &VerifyResult{Payout: p, RefID: refID}, nil
}
