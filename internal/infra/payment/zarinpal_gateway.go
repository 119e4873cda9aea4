package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hodhod22/payout-engine/internal/domain"
	"github.com/hodhod22/payout-engine/internal/domain/model"
	"github.com/hodhod22/payout-engine/internal/domain/ports/adapter"
)

const (
	zarinpalSandboxBase = "https://sandbox.zarinpal.com/pg/v4/payment"
	zarinpalLiveBase    = "https://payment.zarinpal.com/pg/v4/payment"

	zarinpalSandboxPay = "https://sandbox.zarinpal.com/pg/StartPay/"
	zarinpalLivePay    = "https://payment.zarinpal.com/pg/StartPay/"
)

// ZarinpalGateway implements the redirect-based rail. Submit returns an
// authority token plus a StartPay redirect URL; the terminal transition
// happens exclusively through Verify after the browser callback, never by
// polling.
type ZarinpalGateway struct {
	merchantID  string
	callbackURL string
	sandbox     bool
	baseURL     string
	payURL      string
	client      *http.Client
}

func NewZarinpalGateway(merchantID, callbackURL string, sandbox bool) *ZarinpalGateway {
	baseURL, payURL := zarinpalLiveBase, zarinpalLivePay
	if sandbox {
		baseURL, payURL = zarinpalSandboxBase, zarinpalSandboxPay
	}
	return &ZarinpalGateway{
		merchantID:  merchantID,
		callbackURL: callbackURL,
		sandbox:     sandbox,
		baseURL:     baseURL,
		payURL:      payURL,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

// WithBaseURL overrides API and StartPay bases, used by tests.
func (g *ZarinpalGateway) WithBaseURL(u string) *ZarinpalGateway {
	g.baseURL = strings.TrimRight(u, "/")
	g.payURL = g.baseURL + "/StartPay/"
	return g
}

func (g *ZarinpalGateway) Name() string { return "zarinpal" }

type zarinpalRequestResponse struct {
	Data struct {
		Code      int    `json:"code"`
		Message   string `json:"message"`
		Authority string `json:"authority"`
	} `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

type zarinpalVerifyResponse struct {
	Data struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		RefID   int64  `json:"ref_id"`
		CardPan string `json:"card_pan"`
	} `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

func (g *ZarinpalGateway) post(ctx context.Context, path string, payload map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return classifyHTTP(resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v, body: %s", domain.ErrProviderUnavailable, err, truncate(string(raw), 256))
	}
	return nil
}

// Submit initiates a payment request. Reference is the authority token.
func (g *ZarinpalGateway) Submit(ctx context.Context, req adapter.SubmitRequest) (*adapter.SubmitResult, error) {
	callback := req.CallbackURL
	if callback == "" {
		callback = g.callbackURL
	}
	description := req.Description
	if description == "" {
		description = "Payout"
	}

	var out zarinpalRequestResponse
	err := g.post(ctx, "/request.json", map[string]interface{}{
		"merchant_id":  g.merchantID,
		"amount":       req.Amount,
		"callback_url": callback,
		"description":  description,
		"metadata":     map[string]interface{}{"user_id": req.UserID},
	}, &out)
	if err != nil {
		return nil, err
	}

	if out.Data.Code != 100 {
		return nil, &domain.ProviderRejection{Code: fmt.Sprintf("code_%d", out.Data.Code), Message: out.Data.Message}
	}
	if len(out.Errors) > 0 && string(out.Errors) != "[]" && string(out.Errors) != "null" {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderRejected, string(out.Errors))
	}

	return &adapter.SubmitResult{
		Reference:   out.Data.Authority,
		Status:      model.PayoutStatusPending,
		RedirectURL: g.payURL + out.Data.Authority,
	}, nil
}

// Verify finalizes the payment identified by authority. Codes 100 and 101
// both mean verified; 101 is the gateway's own already-verified answer and
// keeps a resent callback idempotent at the provider side too.
func (g *ZarinpalGateway) Verify(ctx context.Context, amount int64, authority string) (string, error) {
	var out zarinpalVerifyResponse
	err := g.post(ctx, "/verify.json", map[string]interface{}{
		"merchant_id": g.merchantID,
		"amount":      amount,
		"authority":   authority,
	}, &out)
	if err != nil {
		return "", err
	}

	if out.Data.Code != 100 && out.Data.Code != 101 {
		return "", &domain.ProviderRejection{Code: fmt.Sprintf("code_%d", out.Data.Code), Message: out.Data.Message}
	}
	return strconv.FormatInt(out.Data.RefID, 10), nil
}

var (
	_ adapter.ProviderAdapter = (*ZarinpalGateway)(nil)
	_ adapter.Verifier        = (*ZarinpalGateway)(nil)
)
