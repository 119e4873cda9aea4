//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/hodhod22/payout-engine/internal/domain"
	"github.com/hodhod22/payout-engine/internal/domain/model"
	"github.com/hodhod22/payout-engine/internal/domain/ports/adapter"
	"github.com/hodhod22/payout-engine/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// MockPayoutRepo is a small in-memory implementation used by unit tests.
type MockPayoutRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Payout // by ID

	SaveFunc func(ctx context.Context, tx repository.Tx, p *model.Payout) error
}

func NewMockPayoutRepo() *MockPayoutRepo {
	return &MockPayoutRepo{store: make(map[string]*model.Payout)}
}

func (m *MockPayoutRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payout) error {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, tx, p); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *MockPayoutRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPayoutRepo) FindByReference(ctx context.Context, tx repository.Tx, reference string) (*model.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.ProviderReference == reference && reference != "" {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPayoutRepo) FindPendingByIdempotencyKey(ctx context.Context, tx repository.Tx, userID, key string) (*model.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.UserID == userID && p.IdempotencyKey == key && p.Status == model.PayoutStatusPending {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPayoutRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.PayoutStatus, failureReason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || p.Status != model.PayoutStatusPending {
		return false, nil
	}
	p.Status = status
	if failureReason != "" {
		p.FailureReason = failureReason
	}
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockPayoutRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, provider string, olderThan time.Time, limit int) ([]*model.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Payout
	for _, p := range m.store {
		if p.Status == model.PayoutStatusPending && p.Provider == provider && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockPayoutRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Payout
	for _, p := range m.store {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MockAdapter stands in for a payment rail.
type MockAdapter struct {
	mu          sync.Mutex
	name        string
	submitCalls int
	checkCalls  int

	SubmitFunc      func(ctx context.Context, req adapter.SubmitRequest) (*adapter.SubmitResult, error)
	CheckStatusFunc func(ctx context.Context, reference string) (*adapter.StatusResult, error)
}

func NewMockAdapter(name string) *MockAdapter {
	return &MockAdapter{name: name}
}

func (m *MockAdapter) Name() string { return m.name }

func (m *MockAdapter) Submit(ctx context.Context, req adapter.SubmitRequest) (*adapter.SubmitResult, error) {
	m.mu.Lock()
	m.submitCalls++
	m.mu.Unlock()
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, req)
	}
	return &adapter.SubmitResult{Reference: "ref-" + m.name, Status: model.PayoutStatusPending}, nil
}

func (m *MockAdapter) CheckStatus(ctx context.Context, reference string) (*adapter.StatusResult, error) {
	m.mu.Lock()
	m.checkCalls++
	m.mu.Unlock()
	if m.CheckStatusFunc != nil {
		return m.CheckStatusFunc(ctx, reference)
	}
	return &adapter.StatusResult{Status: model.PayoutStatusPending}, nil
}

func (m *MockAdapter) SubmitCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitCalls
}

func (m *MockAdapter) CheckCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkCalls
}

// MockVerifier stands in for the redirect gateway's verify endpoint.
type MockVerifier struct {
	mu    sync.Mutex
	calls int

	VerifyFunc func(ctx context.Context, amount int64, authority string) (string, error)
}

func (m *MockVerifier) Verify(ctx context.Context, amount int64, authority string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, amount, authority)
	}
	return "ref-id", nil
}

func (m *MockVerifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockIdemStore is an in-memory idempotency claim store.
type MockIdemStore struct {
	mu    sync.Mutex
	store map[string]string
}

func NewMockIdemStore() *MockIdemStore {
	return &MockIdemStore{store: make(map[string]string)}
}

func (m *MockIdemStore) Begin(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.store[key]; ok {
		return v, false, nil
	}
	m.store[key] = ""
	return "", true, nil
}

func (m *MockIdemStore) Bind(ctx context.Context, key, payoutID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = payoutID
	return nil
}

func (m *MockIdemStore) Fail(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, key)
	return nil
}

// MockTxManager runs the callback without a real transaction.
type MockTxManager struct{}

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// MockLimiter allows or denies every request.
type MockLimiter struct {
	Denied bool
	Err    error
}

func (m *MockLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	return !m.Denied, nil
}

// MockLocker grants or refuses every lock.
type MockLocker struct {
	Contended bool
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.Contended {
		return "", domain.ErrAlreadyExists
	}
	return "token", nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error { return nil }
