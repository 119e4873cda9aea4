package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hodhod22/payout-engine/internal/domain"
	"github.com/hodhod22/payout-engine/internal/domain/model"
	"github.com/hodhod22/payout-engine/internal/domain/ports/adapter"
	"github.com/hodhod22/payout-engine/internal/domain/ports/repository"
	"github.com/hodhod22/payout-engine/internal/infra/metrics"
)

var _ ReconcileUseCase = (*reconcileUC)(nil)

type ReconcileUseCase interface {
	// ReconcileOnce re-reads the provider status of one payout and applies
	// any terminal transition. It reports whether a transition was applied.
	// A payout that is already terminal is returned unchanged.
	ReconcileOnce(ctx context.Context, payoutID string) (*model.Payout, bool, error)
	// Poll blocks until the payout reaches a terminal status, the deadline
	// expires, or ctx is canceled. On deadline the payout stays pending
	// and is returned as-is for the reconciler to pick up later.
	Poll(ctx context.Context, payoutID string) (*model.Payout, error)
	// StalePending lists pending payouts eligible for a reconciliation
	// sweep for the given provider.
	StalePending(ctx context.Context, provider string, staleAfter time.Duration, limit int) ([]*model.Payout, error)
}

// ReconcileConfig carries the polling tunables.
type ReconcileConfig struct {
	PollInterval time.Duration
	PollDeadline time.Duration
}

func (c *ReconcileConfig) normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.PollDeadline <= 0 {
		c.PollDeadline = 10 * time.Minute
	}
}

type reconcileUC struct {
	payouts  repository.PayoutRepository
	checkers map[string]adapter.StatusChecker // keyed by provider name
	cfg      ReconcileConfig
	log      *zerolog.Logger
}

func NewReconcileUseCase(
	payouts repository.PayoutRepository,
	checkers map[string]adapter.StatusChecker,
	cfg ReconcileConfig,
	logger *zerolog.Logger,
) *reconcileUC {
	cfg.normalize()
	return &reconcileUC{
		payouts:  payouts,
		checkers: checkers,
		cfg:      cfg,
		log:      logger,
	}
}

func (u *reconcileUC) ReconcileOnce(ctx context.Context, payoutID string) (*model.Payout, bool, error) {
	p, err := u.payouts.FindByID(ctx, nil, payoutID)
	if err != nil {
		return nil, false, err
	}
	if p.Status.IsTerminal() {
		return p, false, nil
	}

	checker, ok := u.checkers[p.Provider]
	if !ok {
		return nil, false, fmt.Errorf("%w: provider %q has no status checker", domain.ErrInvalidArgument, p.Provider)
	}

	start := time.Now()
	res, err := checker.CheckStatus(ctx, p.ProviderReference)
	metrics.ObserveProviderRequest(p.Provider, "check_status", time.Since(start), err == nil)
	if err != nil {
		// Transient provider trouble leaves the payout pending; the next
		// sweep or poll tick tries again.
		return p, false, err
	}
	if !res.Status.IsTerminal() {
		return p, false, nil
	}

	applied, err := u.payouts.UpdateStatusIfPending(ctx, nil, p.ID, res.Status, res.Reason)
	if err != nil {
		return nil, false, err
	}
	if !applied {
		// Lost the race to another writer; re-read for the actual state.
		p, err = u.payouts.FindByID(ctx, nil, payoutID)
		return p, false, err
	}

	p.Status = res.Status
	p.FailureReason = res.Reason
	p.UpdatedAt = time.Now()
	metrics.IncReconcileTransition(string(res.Status))
	if res.Status == model.PayoutStatusSuccess {
		metrics.AddPayoutAmount(p.Currency, p.Amount)
	}
	u.log.Info().
		Str("payout_id", p.ID).
		Str("provider", p.Provider).
		Str("status", string(res.Status)).
		Str("reason", res.Reason).
		Msg("payout reconciled to terminal status")
	return p, true, nil
}

func (u *reconcileUC) Poll(ctx context.Context, payoutID string) (*model.Payout, error) {
	deadline := time.NewTimer(u.cfg.PollDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(u.cfg.PollInterval)
	defer ticker.Stop()

	p, applied, err := u.ReconcileOnce(ctx, payoutID)
	if err != nil && !isTransient(err) {
		return nil, err
	}
	if applied || (p != nil && p.Status.IsTerminal()) {
		return p, nil
	}

	for {
		select {
		case <-ctx.Done():
			return p, ctx.Err()
		case <-deadline.C:
			u.log.Warn().Str("payout_id", payoutID).Msg("poll deadline reached; payout left pending")
			return p, nil
		case <-ticker.C:
			next, applied, err := u.ReconcileOnce(ctx, payoutID)
			if err != nil {
				if isTransient(err) {
					continue
				}
				return nil, err
			}
			p = next
			if applied || p.Status.IsTerminal() {
				return p, nil
			}
		}
	}
}

func (u *reconcileUC) StalePending(ctx context.Context, provider string, staleAfter time.Duration, limit int) ([]*model.Payout, error) {
	return u.payouts.ListPendingOlderThan(ctx, nil, provider, time.Now().Add(-staleAfter), limit)
}

func isTransient(err error) bool {
	return errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, domain.ErrProviderTimeout)
}
