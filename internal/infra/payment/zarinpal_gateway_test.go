//go:build !integration

package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hodhod22/payout-engine/internal/domain"
	"github.com/hodhod22/payout-engine/internal/domain/model"
	"github.com/hodhod22/payout-engine/internal/domain/ports/adapter"
)

func TestZarinpalGateway_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("code 100 returns authority and redirect URL", func(t *testing.T) {
		var gotBody map[string]interface{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/request.json" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			_, _ = w.Write([]byte(`{"data":{"code":100,"message":"Success","authority":"A00000123"},"errors":[]}`))
		}))
		defer srv.Close()

		g := NewZarinpalGateway("merchant-1", "https://app.example.com/verify-payout", true).WithBaseURL(srv.URL)
		res, err := g.Submit(ctx, adapter.SubmitRequest{UserID: "user-1", Amount: 250000, Currency: "IRR"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Reference != "A00000123" {
			t.Errorf("expected authority reference, got %q", res.Reference)
		}
		if res.Status != model.PayoutStatusPending {
			t.Errorf("expected pending, got %s", res.Status)
		}
		if !strings.HasSuffix(res.RedirectURL, "/StartPay/A00000123") {
			t.Errorf("unexpected redirect URL %q", res.RedirectURL)
		}
		if gotBody["merchant_id"] != "merchant-1" {
			t.Errorf("merchant_id missing from request body: %v", gotBody)
		}
		if gotBody["callback_url"] != "https://app.example.com/verify-payout" {
			t.Errorf("callback_url not forwarded: %v", gotBody)
		}
	})

	t.Run("non-100 code maps to ErrProviderRejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"code":-9,"message":"Validation error"},"errors":[]}`))
		}))
		defer srv.Close()

		g := NewZarinpalGateway("merchant-1", "", true).WithBaseURL(srv.URL)
		_, err := g.Submit(ctx, adapter.SubmitRequest{UserID: "u", Amount: 100, Currency: "IRR"})
		if !errors.Is(err, domain.ErrProviderRejected) {
			t.Errorf("expected ErrProviderRejected, got %v", err)
		}
	})
}

func TestZarinpalGateway_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("code 100 verified", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/verify.json" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			_, _ = w.Write([]byte(`{"data":{"code":100,"ref_id":987654},"errors":[]}`))
		}))
		defer srv.Close()

		g := NewZarinpalGateway("merchant-1", "", true).WithBaseURL(srv.URL)
		ref, err := g.Verify(ctx, 250000, "A00000123")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ref != "987654" {
			t.Errorf("expected ref 987654, got %q", ref)
		}
	})

	t.Run("code 101 already verified is still success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"code":101,"ref_id":987654},"errors":[]}`))
		}))
		defer srv.Close()

		g := NewZarinpalGateway("merchant-1", "", true).WithBaseURL(srv.URL)
		if _, err := g.Verify(ctx, 250000, "A00000123"); err != nil {
			t.Fatalf("expected 101 to verify, got %v", err)
		}
	})

	t.Run("failure code maps to ErrProviderRejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"code":-51,"message":"Session expired"},"errors":[]}`))
		}))
		defer srv.Close()

		g := NewZarinpalGateway("merchant-1", "", true).WithBaseURL(srv.URL)
		_, err := g.Verify(ctx, 250000, "A00000123")
		if !errors.Is(err, domain.ErrProviderRejected) {
			t.Errorf("expected ErrProviderRejected, got %v", err)
		}
		if got := domain.RejectionReason(err); got != "code_-51" {
			t.Errorf("expected the gateway code as rejection reason, got %q", got)
		}
	})
}

func TestVerifyZarinpalCallbackSignature(t *testing.T) {
	data := map[string]string{"amount": "250000", "authority": "A00000123", "status": "OK"}
	// Signature computed with the same scheme; a tampered field must fail.
	good := VerifyZarinpalCallbackSignature("secret", data, signFor(t, "secret", data))
	if !good {
		t.Error("expected valid signature to verify")
	}
	data["amount"] = "1"
	if VerifyZarinpalCallbackSignature("secret", data, signFor(t, "secret", map[string]string{"amount": "250000", "authority": "A00000123", "status": "OK"})) {
		t.Error("expected tampered payload to fail verification")
	}
}

func signFor(t *testing.T, secret string, data map[string]string) string {
	t.Helper()
	// Mirror of the production scheme, kept local to the test.
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data["amount"] + data["authority"] + data["status"] + secret))
	return hex.EncodeToString(h.Sum(nil))
}
