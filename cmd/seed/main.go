package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/hodhod22/payout-engine/internal/config"
	"github.com/hodhod22/payout-engine/internal/domain/model"
	pg "github.com/hodhod22/payout-engine/internal/infra/db/postgres"
)

// schema is applied idempotently; there is no separate migrations step.
const schema = `
CREATE TABLE IF NOT EXISTS payouts (
    id                 TEXT PRIMARY KEY,
    user_id            TEXT        NOT NULL,
    amount             BIGINT      NOT NULL,
    currency           TEXT        NOT NULL,
    method             TEXT        NOT NULL,
    provider           TEXT        NOT NULL,
    provider_reference TEXT        NOT NULL DEFAULT '',
    status             TEXT        NOT NULL DEFAULT 'pending',
    failure_reason     TEXT,
    idempotency_key    TEXT,
    description        TEXT,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_payouts_reference ON payouts (provider_reference) WHERE provider_reference <> '';
CREATE INDEX IF NOT EXISTS idx_payouts_pending ON payouts (provider, created_at) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_payouts_user ON payouts (user_id, created_at DESC);
`

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	fmt.Println("schema applied")

	repo := pg.NewPostgresPayoutRepo(pool)

	// If payouts already exist, do nothing
	existing, err := repo.ListByUser(ctx, nil, "demo-user", 0, 1)
	if err != nil {
		log.Fatalf("list payouts: %v", err)
	}
	if len(existing) > 0 {
		fmt.Println("demo payouts already present. No changes.")
		return
	}

	// Seed a few sample payouts for exercising the status and verify flows
	seeds := []struct {
		req       model.PayoutRequest
		provider  string
		reference string
		status    model.PayoutStatus
	}{
		{
			req: model.PayoutRequest{
				UserID: "demo-user", Amount: 25_00, Currency: "USD",
				Method: model.PayoutMethodPayPal, Email: "payee@example.com",
			},
			provider: "paypal", reference: "DEMOBATCH1", status: model.PayoutStatusPending,
		},
		{
			req: model.PayoutRequest{
				UserID: "demo-user", Amount: 120_00, Currency: "EUR",
				Method: model.PayoutMethodBank, IBAN: "DE89370400440532013000", RecipientName: "Jane Doe",
			},
			provider: "stripe", reference: "po_demo_1", status: model.PayoutStatusSuccess,
		},
		{
			req: model.PayoutRequest{
				UserID: "demo-user", Amount: 500_000_0, Currency: "IRR",
				Method: model.PayoutMethodCard, CardNumber: "4532015112830366", RecipientName: "Jane Doe",
			},
			provider: "zarinpal", reference: "A00000000000000000000000000000000demo", status: model.PayoutStatusPending,
		},
	}

	for _, s := range seeds {
		p, err := model.NewPayout(s.req, s.provider, s.reference, s.status)
		if err != nil {
			log.Fatalf("build payout: %v", err)
		}
		if err := repo.Save(ctx, nil, p); err != nil {
			log.Fatalf("save payout %s: %v", p.ID, err)
		}
		fmt.Printf("seeded: %s (%s %d %s via %s, %s)\n", p.ID, p.Method, p.Amount, p.Currency, p.Provider, p.Status)
	}

	fmt.Println("✅ Seeding complete.")
}
