package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/hodhod22/payout-engine/internal/domain"
	"github.com/hodhod22/payout-engine/internal/domain/model"
	"github.com/hodhod22/payout-engine/internal/domain/ports/repository"
)

var _ repository.PayoutRepository = (*payoutRepo)(nil)

type payoutRepo struct{ pool *pgxpool.Pool }

func NewPostgresPayoutRepo(pool *pgxpool.Pool) *payoutRepo {
	return &payoutRepo{pool: pool}
}

const payoutColumns = `id, user_id, amount, currency, method, provider, provider_reference, status, failure_reason, idempotency_key, description, created_at, updated_at`

func scanPayout(row pgx.Row) (*model.Payout, error) {
	p := &model.Payout{}
	var failureReason, idemKey, description *string
	if err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Method, &p.Provider, &p.ProviderReference, &p.Status, &failureReason, &idemKey, &description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if failureReason != nil {
		p.FailureReason = *failureReason
	}
	if idemKey != nil {
		p.IdempotencyKey = *idemKey
	}
	if description != nil {
		p.Description = *description
	}
	return p, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *payoutRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payout) error {
	const q = `
INSERT INTO payouts (
  id, user_id, amount, currency, method, provider, provider_reference, status, failure_reason, idempotency_key, description, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
);`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.Amount, p.Currency, p.Method, p.Provider, p.ProviderReference,
		p.Status, nullable(p.FailureReason), nullable(p.IdempotencyKey), nullable(p.Description),
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *payoutRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payout, error) {
	q := `SELECT ` + payoutColumns + ` FROM payouts WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayout(row)
}

func (r *payoutRepo) FindByReference(ctx context.Context, tx repository.Tx, reference string) (*model.Payout, error) {
	q := `SELECT ` + payoutColumns + ` FROM payouts WHERE provider_reference=$1 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, reference)
	if err != nil {
		return nil, err
	}
	return scanPayout(row)
}

func (r *payoutRepo) FindPendingByIdempotencyKey(ctx context.Context, tx repository.Tx, userID, key string) (*model.Payout, error) {
	const q = `SELECT ` + payoutColumns + ` FROM payouts WHERE user_id=$1 AND idempotency_key=$2 AND status='pending' LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, key)
	if err != nil {
		return nil, err
	}
	return scanPayout(row)
}

// UpdateStatusIfPending atomically transitions a payout out of 'pending'.
// Returns false when no row changed, i.e. the payout was already terminal
// or does not exist; concurrent observers of the same terminal status
// therefore apply it at most once.
func (r *payoutRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.PayoutStatus, failureReason string) (bool, error) {
	const q = `
UPDATE payouts
   SET status = $2,
       failure_reason = COALESCE($3, failure_reason),
       updated_at = NOW()
 WHERE id = $1
   AND status = 'pending';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status), nullable(failureReason))
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *payoutRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, provider string, olderThan time.Time, limit int) ([]*model.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + payoutColumns + ` FROM payouts WHERE status='pending' AND provider=$1 AND created_at < $2 ORDER BY created_at ASC LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, provider, olderThan, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *payoutRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.Payout, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const q = `SELECT ` + payoutColumns + ` FROM payouts WHERE user_id=$1 ORDER BY created_at DESC OFFSET $2 LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, offset, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
