package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hodhod22/payout-engine/internal/domain"
	"github.com/hodhod22/payout-engine/internal/domain/model"
	"github.com/hodhod22/payout-engine/internal/domain/ports/adapter"
)

const stripeBase = "https://api.stripe.com"

// StripeGateway submits payouts through the Stripe Payouts API. The
// response is synchronous: the payout object carries its status in the
// create response, so no polling contract is needed.
type StripeGateway struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{
		secretKey: secretKey,
		baseURL:   stripeBase,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// WithBaseURL overrides the API base, used by tests.
func (g *StripeGateway) WithBaseURL(u string) *StripeGateway {
	g.baseURL = strings.TrimRight(u, "/")
	return g
}

func (g *StripeGateway) Name() string { return "stripe" }

type stripePayoutResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	FailureCode    string `json:"failure_code"`
	FailureMessage string `json:"failure_message"`
	Error          *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Submit creates a payout. Destination details (IBAN or card) travel in
// metadata; the connected account's external account is the actual target,
// matching how the upstream dashboard wires recipients.
func (g *StripeGateway) Submit(ctx context.Context, req adapter.SubmitRequest) (*adapter.SubmitResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	form.Set("metadata[user_id]", req.UserID)
	form.Set("metadata[recipient_name]", req.RecipientName)
	if req.IBAN != "" {
		form.Set("metadata[iban]", req.IBAN)
	}
	if req.CardNumber != "" {
		// PAN is never sent in full; last four only, for traceability.
		form.Set("metadata[card_last4]", lastFour(req.CardNumber))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/payouts",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrProviderUnavailable, err)
	}

	var out stripePayoutResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		if out.Error != nil && resp.StatusCode < http.StatusInternalServerError {
			return nil, &domain.ProviderRejection{Code: out.Error.Code, Message: out.Error.Message}
		}
		return nil, classifyHTTP(resp.StatusCode, string(raw))
	}

	res := &adapter.SubmitResult{
		Reference: out.ID,
		Status:    mapStripeStatus(out.Status),
		Raw:       string(raw),
	}
	// A synchronous failure carries its reason in the payout object itself,
	// not in an error envelope.
	if res.Status == model.PayoutStatusFailed {
		res.Reason = out.FailureCode
		if res.Reason == "" {
			res.Reason = out.FailureMessage
		}
	}
	return res, nil
}

// mapStripeStatus folds Stripe's payout status vocabulary into the engine's.
func mapStripeStatus(s string) model.PayoutStatus {
	switch s {
	case "paid":
		return model.PayoutStatusSuccess
	case "failed", "canceled":
		return model.PayoutStatusFailed
	default: // "pending", "in_transit"
		return model.PayoutStatusPending
	}
}

func lastFour(pan string) string {
	if len(pan) < 4 {
		return pan
	}
	return pan[len(pan)-4:]
}

var _ adapter.ProviderAdapter = (*StripeGateway)(nil)
