//go:build !integration

package api_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hodhod22/payout-engine/internal/domain"
	"github.com/hodhod22/payout-engine/internal/domain/model"
	"github.com/hodhod22/payout-engine/internal/infra/api"
	"github.com/hodhod22/payout-engine/internal/usecase"
)

// stubPayoutUC scripts the request-manager behavior per test.
type stubPayoutUC struct {
	createFunc func(ctx context.Context, req model.PayoutRequest) (*model.Payout, string, error)
	statusFunc func(ctx context.Context, key string) (*usecase.StatusView, error)
	listFunc   func(ctx context.Context, userID string, offset, limit int) ([]*model.Payout, error)
}

func (s *stubPayoutUC) Create(ctx context.Context, req model.PayoutRequest) (*model.Payout, string, error) {
	return s.createFunc(ctx, req)
}

func (s *stubPayoutUC) GetByID(ctx context.Context, id string) (*model.Payout, error) {
	return nil, domain.ErrNotFound
}

func (s *stubPayoutUC) GetByReference(ctx context.Context, reference string) (*model.Payout, error) {
	return nil, domain.ErrNotFound
}

func (s *stubPayoutUC) Status(ctx context.Context, key string) (*usecase.StatusView, error) {
	if s.statusFunc != nil {
		return s.statusFunc(ctx, key)
	}
	return nil, domain.ErrNotFound
}

func (s *stubPayoutUC) ListByUser(ctx context.Context, userID string, offset, limit int) ([]*model.Payout, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, userID, offset, limit)
	}
	return nil, nil
}

type stubVerifyUC struct {
	verifyFunc func(ctx context.Context, authority, status string) (*usecase.VerifyResult, error)
}

func (s *stubVerifyUC) Verify(ctx context.Context, authority, status string) (*usecase.VerifyResult, error) {
	return s.verifyFunc(ctx, authority, status)
}

func newTestRouter(p *stubPayoutUC, v *stubVerifyUC) *chi.Mux {
	logger := zerolog.Nop()
	srv := api.NewServer(p, v, &logger)
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	return r
}

func pendingPayout() *model.Payout {
	p, _ := model.NewPayout(model.PayoutRequest{
		UserID:   "user-1",
		Amount:   25_00,
		Currency: "USD",
		Method:   model.PayoutMethodPayPal,
	}, "paypal", "BATCH-1", model.PayoutStatusPending)
	return p
}

func TestHandleRequestPayout(t *testing.T) {
	t.Run("valid request returns the created payout", func(t *testing.T) {
		p := pendingPayout()
		uc := &stubPayoutUC{
			createFunc: func(ctx context.Context, req model.PayoutRequest) (*model.Payout, string, error) {
				if req.Method != model.PayoutMethodPayPal || req.Amount != 25_00 {
					t.Errorf("request not passed through: %+v", req)
				}
				return p, "", nil
			},
		}
		r := newTestRouter(uc, &stubVerifyUC{})

		body := `{"userId":"user-1","amount":2500,"currency":"USD","method":"paypal","email":"payee@example.com"}`
		req := httptest.NewRequest(http.MethodPost, "/api/request-payout", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var got struct {
			PayoutID string `json:"payoutId"`
			Status   string `json:"status"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("bad response body: %v", err)
		}
		if got.PayoutID != p.ID || got.Status != "pending" {
			t.Errorf("unexpected response: %+v", got)
		}
	})

	t.Run("redirect payout carries the payment url", func(t *testing.T) {
		p := pendingPayout()
		uc := &stubPayoutUC{
			createFunc: func(ctx context.Context, req model.PayoutRequest) (*model.Payout, string, error) {
				return p, "https://gateway.example/StartPay/A-1", nil
			},
		}
		r := newTestRouter(uc, &stubVerifyUC{})

		body := `{"userId":"user-1","amount":2500,"currency":"IRR","method":"paypal","email":"payee@example.com"}`
		req := httptest.NewRequest(http.MethodPost, "/api/request-payout", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		var got struct {
			PaymentURL string `json:"paymentUrl"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		if got.PaymentURL == "" {
			t.Error("expected paymentUrl in the response")
		}
	})

	t.Run("validation failure maps to 422 with field kinds", func(t *testing.T) {
		uc := &stubPayoutUC{
			createFunc: func(ctx context.Context, req model.PayoutRequest) (*model.Payout, string, error) {
				return nil, "", &domain.ValidationError{Fields: []domain.FieldError{
					{Field: "email", Kind: "required"},
					{Field: "amount", Kind: "invalid_amount"},
				}}
			},
		}
		r := newTestRouter(uc, &stubVerifyUC{})

		body := `{"userId":"user-1","amount":0,"currency":"USD","method":"paypal"}`
		req := httptest.NewRequest(http.MethodPost, "/api/request-payout", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		var got struct {
			Errors map[string]string `json:"errors"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		if got.Errors["email"] != "required" || got.Errors["amount"] != "invalid_amount" {
			t.Errorf("unexpected error map: %v", got.Errors)
		}
	})

	t.Run("unknown method maps to 422 as unsupported", func(t *testing.T) {
		r := newTestRouter(&stubPayoutUC{}, &stubVerifyUC{})

		body := `{"userId":"user-1","amount":2500,"currency":"USD","method":"cheque"}`
		req := httptest.NewRequest(http.MethodPost, "/api/request-payout", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		var got struct {
			Errors map[string]string `json:"errors"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		if got.Errors["method"] != "unsupported_method" {
			t.Errorf("expected method/unsupported_method, got %v", got.Errors)
		}
	})

	t.Run("missing method maps to 422 as required", func(t *testing.T) {
		r := newTestRouter(&stubPayoutUC{}, &stubVerifyUC{})

		body := `{"userId":"user-1","amount":2500,"currency":"USD"}`
		req := httptest.NewRequest(http.MethodPost, "/api/request-payout", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		var got struct {
			Errors map[string]string `json:"errors"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		if got.Errors["method"] != "required" {
			t.Errorf("expected method/required, got %v", got.Errors)
		}
	})

	t.Run("provider unavailable maps to 502 with the payout id", func(t *testing.T) {
		failed := pendingPayout()
		failed.Status = model.PayoutStatusFailed
		failed.FailureReason = "provider_unavailable"
		uc := &stubPayoutUC{
			createFunc: func(ctx context.Context, req model.PayoutRequest) (*model.Payout, string, error) {
				return failed, "", domain.ErrProviderUnavailable
			},
		}
		r := newTestRouter(uc, &stubVerifyUC{})

		body := `{"userId":"user-1","amount":2500,"currency":"USD","method":"paypal","email":"payee@example.com"}`
		req := httptest.NewRequest(http.MethodPost, "/api/request-payout", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
		var got struct {
			Code     string `json:"code"`
			PayoutID string `json:"payoutId"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		if got.Code != "provider_unavailable" || got.PayoutID != failed.ID {
			t.Errorf("unexpected error body: %+v", got)
		}
	})

	t.Run("rate limit maps to 429", func(t *testing.T) {
		uc := &stubPayoutUC{
			createFunc: func(ctx context.Context, req model.PayoutRequest) (*model.Payout, string, error) {
				return nil, "", domain.ErrRateLimited
			},
		}
		r := newTestRouter(uc, &stubVerifyUC{})

		body := `{"userId":"user-1","amount":2500,"currency":"USD","method":"paypal","email":"payee@example.com"}`
		req := httptest.NewRequest(http.MethodPost, "/api/request-payout", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
	})

	t.Run("malformed body maps to 400", func(t *testing.T) {
		r := newTestRouter(&stubPayoutUC{}, &stubVerifyUC{})

		req := httptest.NewRequest(http.MethodPost, "/api/request-payout", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestHandlePayoutStatus(t *testing.T) {
	t.Run("returns the status view", func(t *testing.T) {
		uc := &stubPayoutUC{
			statusFunc: func(ctx context.Context, key string) (*usecase.StatusView, error) {
				if key != "01ABC" {
					t.Errorf("unexpected lookup key %q", key)
				}
				return &usecase.StatusView{PayoutID: "01ABC", Status: model.PayoutStatusPending}, nil
			},
		}
		r := newTestRouter(uc, &stubVerifyUC{})

		req := httptest.NewRequest(http.MethodGet, "/api/payout-status?payoutId=01ABC", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("missing id maps to 400", func(t *testing.T) {
		r := newTestRouter(&stubPayoutUC{}, &stubVerifyUC{})

		req := httptest.NewRequest(http.MethodGet, "/api/payout-status", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("unknown payout maps to 404", func(t *testing.T) {
		r := newTestRouter(&stubPayoutUC{}, &stubVerifyUC{})

		req := httptest.NewRequest(http.MethodGet, "/api/payout-status?payoutId=nope", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestHandleVerifyPayout(t *testing.T) {
	t.Run("successful callback returns the settled payout", func(t *testing.T) {
		p := pendingPayout()
		p.Status = model.PayoutStatusSuccess
		v := &stubVerifyUC{
			verifyFunc: func(ctx context.Context, authority, status string) (*usecase.VerifyResult, error) {
				if authority != "A-1" || status != "OK" {
					t.Errorf("callback not passed through: %s/%s", authority, status)
				}
				return &usecase.VerifyResult{Payout: p, RefID: "12345"}, nil
			},
		}
		r := newTestRouter(&stubPayoutUC{}, v)

		req := httptest.NewRequest(http.MethodGet, "/api/verify-payout?Authority=A-1&Status=OK", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var got struct {
			Status string `json:"status"`
			RefID  string `json:"refId"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		if got.Status != "success" || got.RefID != "12345" {
			t.Errorf("unexpected response: %+v", got)
		}
	})

	t.Run("unknown authority maps to 404", func(t *testing.T) {
		v := &stubVerifyUC{
			verifyFunc: func(ctx context.Context, authority, status string) (*usecase.VerifyResult, error) {
				return nil, domain.ErrUnknownAuthority
			},
		}
		r := newTestRouter(&stubPayoutUC{}, v)

		req := httptest.NewRequest(http.MethodGet, "/api/verify-payout?Authority=A-nope&Status=OK", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("missing authority maps to 400", func(t *testing.T) {
		r := newTestRouter(&stubPayoutUC{}, &stubVerifyUC{})

		req := httptest.NewRequest(http.MethodGet, "/api/verify-payout?Status=OK", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("transient verification error maps to 502", func(t *testing.T) {
		v := &stubVerifyUC{
			verifyFunc: func(ctx context.Context, authority, status string) (*usecase.VerifyResult, error) {
				return nil, domain.ErrProviderUnavailable
			},
		}
		r := newTestRouter(&stubPayoutUC{}, v)

		req := httptest.NewRequest(http.MethodGet, "/api/verify-payout?Authority=A-1&Status=OK", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
	})
}

func TestHandleZarinpalWebhook(t *testing.T) {
	sign := func(secret, amount, authority, status string) string {
		h := hmac.New(sha256.New, []byte(secret))
		h.Write([]byte(amount + authority + status + secret))
		return hex.EncodeToString(h.Sum(nil))
	}

	newSignedRouter := func(secret string, v *stubVerifyUC) *chi.Mux {
		logger := zerolog.Nop()
		srv := api.NewServer(&stubPayoutUC{}, v, &logger).WithWebhookSecret(secret)
		r := chi.NewRouter()
		srv.RegisterRoutes(r)
		return r
	}

	t.Run("valid signature settles the payout", func(t *testing.T) {
		p := pendingPayout()
		p.Status = model.PayoutStatusSuccess
		v := &stubVerifyUC{
			verifyFunc: func(ctx context.Context, authority, status string) (*usecase.VerifyResult, error) {
				return &usecase.VerifyResult{Payout: p, RefID: "777"}, nil
			},
		}
		r := newSignedRouter("hush", v)

		body := map[string]string{
			"amount":    "2500",
			"authority": "A-1",
			"status":    "OK",
			"signature": sign("hush", "2500", "A-1", "OK"),
		}
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/api/webhook/zarinpal", bytes.NewBuffer(raw))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("signature mismatch maps to 401", func(t *testing.T) {
		v := &stubVerifyUC{
			verifyFunc: func(ctx context.Context, authority, status string) (*usecase.VerifyResult, error) {
				t.Error("verify must not run for a forged webhook")
				return nil, nil
			},
		}
		r := newSignedRouter("hush", v)

		body := `{"amount":"2500","authority":"A-1","status":"OK","signature":"deadbeef"}`
		req := httptest.NewRequest(http.MethodPost, "/api/webhook/zarinpal", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestHandleListPayouts(t *testing.T) {
	t.Run("lists the user's payouts", func(t *testing.T) {
		p := pendingPayout()
		uc := &stubPayoutUC{
			listFunc: func(ctx context.Context, userID string, offset, limit int) ([]*model.Payout, error) {
				return []*model.Payout{p}, nil
			},
		}
		r := newTestRouter(uc, &stubVerifyUC{})

		req := httptest.NewRequest(http.MethodGet, "/api/payouts?userId=user-1", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var got struct {
			Items []struct {
				PayoutID string `json:"payoutId"`
			} `json:"items"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		if len(got.Items) != 1 || got.Items[0].PayoutID != p.ID {
			t.Errorf("unexpected items: %+v", got.Items)
		}
	})

	t.Run("missing userId maps to 400", func(t *testing.T) {
		r := newTestRouter(&stubPayoutUC{}, &stubVerifyUC{})

		req := httptest.NewRequest(http.MethodGet, "/api/payouts", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
