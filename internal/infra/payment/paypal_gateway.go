package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hodhod22/payout-engine/internal/domain"
	"github.com/hodhod22/payout-engine/internal/domain/model"
	"github.com/hodhod22/payout-engine/internal/domain/ports/adapter"
)

const (
	paypalSandboxBase = "https://api-m.sandbox.paypal.com"
	paypalLiveBase    = "https://api-m.paypal.com"
)

// PayPalGateway submits batch payouts through the PayPal Payouts API.
// Submission is asynchronous: the initial status is always pending and the
// batch must be polled via CheckStatus until a terminal batch status.
type PayPalGateway struct {
	clientID     string
	clientSecret string
	baseURL      string
	client       *http.Client

	mu          sync.RWMutex
	token       string
	tokenExpiry time.Time
}

func NewPayPalGateway(clientID, clientSecret string, sandbox bool) *PayPalGateway {
	baseURL := paypalLiveBase
	if sandbox {
		baseURL = paypalSandboxBase
	}
	return &PayPalGateway{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      baseURL,
		client:       &http.Client{Timeout: 15 * time.Second},
	}
}

// WithBaseURL overrides the API base, used by tests against httptest servers.
func (g *PayPalGateway) WithBaseURL(u string) *PayPalGateway {
	g.baseURL = strings.TrimRight(u, "/")
	return g
}

func (g *PayPalGateway) Name() string { return "paypal" }

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached OAuth token, fetching a fresh one when the
// cached token is within 60s of expiry.
func (g *PayPalGateway) accessToken(ctx context.Context) (string, error) {
	g.mu.RLock()
	if g.token != "" && time.Now().Before(g.tokenExpiry) {
		tok := g.token
		g.mu.RUnlock()
		return tok, nil
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token != "" && time.Now().Before(g.tokenExpiry) {
		return g.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.clientID, g.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", classifyHTTP(resp.StatusCode, string(body))
	}

	var tok paypalTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("%w: decode token: %v", domain.ErrProviderUnavailable, err)
	}
	g.token = tok.AccessToken
	// Renew a minute early, but never let a tiny expires_in produce an
	// already-expired cache entry.
	ttl := time.Duration(tok.ExpiresIn)*time.Second - time.Minute
	if ttl < 30*time.Second {
		ttl = 30 * time.Second
	}
	g.tokenExpiry = time.Now().Add(ttl)
	return g.token, nil
}

type paypalBatchHeader struct {
	PayoutBatchID string `json:"payout_batch_id"`
	BatchStatus   string `json:"batch_status"`
}

type paypalPayoutResponse struct {
	BatchHeader paypalBatchHeader `json:"batch_header"`
}

// Submit creates a single-item payout batch. The reference is the batch id.
func (g *PayPalGateway) Submit(ctx context.Context, req adapter.SubmitRequest) (*adapter.SubmitResult, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	note := req.Description
	if note == "" {
		note = "Payout"
	}
	payload := map[string]interface{}{
		"sender_batch_header": map[string]string{
			"sender_batch_id": "payout_" + uuid.NewString(),
			"email_subject":   "You have a payout!",
		},
		"items": []map[string]interface{}{
			{
				"recipient_type": "EMAIL",
				"amount": map[string]string{
					"value":    fmt.Sprintf("%d.%02d", req.Amount/100, req.Amount%100),
					"currency": req.Currency,
				},
				"note":     note,
				"receiver": req.Email,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/payments/payouts", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, classifyHTTP(resp.StatusCode, string(raw))
	}

	var out paypalPayoutResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrProviderUnavailable, err)
	}
	if out.BatchHeader.PayoutBatchID == "" {
		return nil, fmt.Errorf("%w: missing payout_batch_id", domain.ErrProviderRejected)
	}

	return &adapter.SubmitResult{
		Reference: out.BatchHeader.PayoutBatchID,
		Status:    model.PayoutStatusPending,
		Raw:       string(raw),
	}, nil
}

// CheckStatus fetches the batch and maps PayPal's batch status vocabulary
// onto the engine's enum. Anything outside SUCCESS/DENIED/FAILED reads as
// pending (PROCESSING, PENDING, ...).
func (g *PayPalGateway) CheckStatus(ctx context.Context, batchID string) (*adapter.StatusResult, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/payments/payouts/"+batchID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: batch %s", domain.ErrNotFound, batchID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTP(resp.StatusCode, string(raw))
	}

	var out paypalPayoutResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrProviderUnavailable, err)
	}

	res := &adapter.StatusResult{Raw: string(raw)}
	switch out.BatchHeader.BatchStatus {
	case "SUCCESS":
		res.Status = model.PayoutStatusSuccess
	case "DENIED":
		res.Status = model.PayoutStatusDenied
		res.Reason = "batch_denied"
	case "FAILED":
		res.Status = model.PayoutStatusFailed
		res.Reason = "batch_failed"
	default:
		res.Status = model.PayoutStatusPending
	}
	return res, nil
}

var (
	_ adapter.ProviderAdapter = (*PayPalGateway)(nil)
	_ adapter.StatusChecker   = (*PayPalGateway)(nil)
)
