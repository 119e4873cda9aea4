package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hodhod22/payout-engine/internal/infra/metrics"
	"github.com/hodhod22/payout-engine/internal/infra/worker"
	"github.com/hodhod22/payout-engine/internal/usecase"
)

// PayoutReconciler periodically sweeps stale pending payouts of poll-capable
// providers and re-reads their status at the provider. This covers payouts
// whose poll loop was cut short (crash, deployment, client gone) past the
// polling deadline.
type PayoutReconciler struct {
	uc         usecase.ReconcileUseCase
	pool       *worker.Pool
	providers  []string
	interval   time.Duration // how often to sweep
	staleAfter time.Duration // how old a pending payout must be to retry
	log        *zerolog.Logger
}

func NewPayoutReconciler(
	uc usecase.ReconcileUseCase,
	pool *worker.Pool,
	providers []string,
	interval, staleAfter time.Duration,
	logger *zerolog.Logger,
) *PayoutReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if len(providers) == 0 {
		providers = []string{"paypal"}
	}
	return &PayoutReconciler{
		uc:         uc,
		pool:       pool,
		providers:  providers,
		interval:   interval,
		staleAfter: staleAfter,
		log:        logger,
	}
}

func (w *PayoutReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PayoutReconciler) tick(ctx context.Context) {
	metrics.IncReconcileScan()
	for _, provider := range w.providers {
		stale, err := w.uc.StalePending(ctx, provider, w.staleAfter, 200)
		if err != nil {
			w.log.Error().Err(err).Str("provider", provider).Msg("reconciler: list pending failed")
			continue
		}
		for _, p := range stale {
			id := p.ID
			task := func(ctx context.Context) error {
				_, applied, err := w.uc.ReconcileOnce(ctx, id)
				if err != nil {
					return err
				}
				if applied {
					w.log.Info().Str("payout_id", id).Msg("reconciler: payout settled")
				}
				return nil
			}
			if err := w.pool.Submit(task); err != nil {
				// Queue is full; the payout stays pending and the next
				// sweep picks it up again.
				w.log.Warn().Err(err).Str("payout_id", id).Msg("reconciler: task dropped")
			}
		}
	}
}
