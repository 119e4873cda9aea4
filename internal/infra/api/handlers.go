package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/hodhod22/payout-engine/internal/domain"
	"github.com/hodhod22/payout-engine/internal/domain/model"
	"github.com/hodhod22/payout-engine/internal/infra/logging"
	"github.com/hodhod22/payout-engine/internal/infra/payment"
	"github.com/hodhod22/payout-engine/internal/validate"
)

// payoutRequest is the JSON body of POST /api/request-payout. Only the
// fields required by method are read; extraneous fields are ignored.
type payoutRequest struct {
	UserID         string `json:"userId"`
	Amount         int64  `json:"amount"` // minor units
	Currency       string `json:"currency"`
	Method         string `json:"method"`
	Email          string `json:"email,omitempty"`
	IBAN           string `json:"iban,omitempty"`
	CardNumber     string `json:"cardNumber,omitempty"`
	RecipientName  string `json:"recipientName,omitempty"`
	Description    string `json:"description,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

type payoutResponse struct {
	PayoutID          string `json:"payoutId"`
	Status            string `json:"status"`
	ProviderReference string `json:"providerReference,omitempty"`
	PaymentURL        string `json:"paymentUrl,omitempty"`
	FailureReason     string `json:"failureReason,omitempty"`
}

type apiError struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	PayoutID string            `json:"payoutId,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"` // field -> kind, validation only
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Code: code, Message: message})
}

func toPayoutResponse(p *model.Payout, paymentURL string) payoutResponse {
	return payoutResponse{
		PayoutID:          p.ID,
		Status:            string(p.Status),
		ProviderReference: p.ProviderReference,
		PaymentURL:        paymentURL,
		FailureReason:     p.FailureReason,
	}
}

func (s *Server) handleRequestPayout(w http.ResponseWriter, r *http.Request) {
	var body payoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	method, err := model.ParsePayoutMethod(body.Method)
	if err != nil {
		kind := validate.KindUnsupportedMethod
		if strings.TrimSpace(body.Method) == "" {
			kind = validate.KindRequired
		}
		writeJSON(w, http.StatusUnprocessableEntity, apiError{
			Code:    "validation_failed",
			Message: "invalid payout request",
			Errors:  map[string]string{"method": kind},
		})
		return
	}

	req := model.PayoutRequest{
		UserID:         body.UserID,
		Amount:         body.Amount,
		Currency:       body.Currency,
		Method:         method,
		Email:          body.Email,
		IBAN:           body.IBAN,
		CardNumber:     body.CardNumber,
		RecipientName:  body.RecipientName,
		Description:    body.Description,
		IdempotencyKey: body.IdempotencyKey,
	}

	ctx := logging.WithUserID(r.Context(), body.UserID)
	p, redirectURL, err := s.payoutUC.Create(ctx, req)
	if err != nil {
		s.writeCreateError(w, p, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutResponse(p, redirectURL))
}

// writeCreateError maps creation failures onto the API error surface. When
// a payout record was still created (provider failures), its id rides along
// so the caller can query it later.
func (s *Server) writeCreateError(w http.ResponseWriter, p *model.Payout, err error) {
	if ve, ok := domain.AsValidationError(err); ok {
		fields := make(map[string]string, len(ve.Fields))
		for _, fe := range ve.Fields {
			fields[fe.Field] = fe.Kind
		}
		writeJSON(w, http.StatusUnprocessableEntity, apiError{
			Code:    "validation_failed",
			Message: "invalid payout request",
			Errors:  fields,
		})
		return
	}

	payoutID := ""
	if p != nil {
		payoutID = p.ID
	}
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many payout requests")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "request_in_flight", "a payout for this request is already being processed")
	case errors.Is(err, domain.ErrProviderRejected):
		writeJSON(w, http.StatusUnprocessableEntity, apiError{
			Code:     "provider_rejected",
			Message:  "the payment provider rejected the payout",
			PayoutID: payoutID,
		})
	case errors.Is(err, domain.ErrProviderTimeout):
		writeJSON(w, http.StatusGatewayTimeout, apiError{
			Code:     "provider_timeout",
			Message:  "the payment provider did not respond in time",
			PayoutID: payoutID,
		})
	case errors.Is(err, domain.ErrProviderUnavailable):
		writeJSON(w, http.StatusBadGateway, apiError{
			Code:     "provider_unavailable",
			Message:  "the payment provider is unavailable",
			PayoutID: payoutID,
		})
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		s.log.Error().Err(err).Msg("payout creation failed")
		writeError(w, http.StatusInternalServerError, "internal", "payout creation failed")
	}
}

func (s *Server) handlePayoutStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("payoutId")
	if key == "" {
		key = q.Get("reference")
	}
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing_id", "payoutId or reference is required")
		return
	}

	view, err := s.payoutUC.Status(r.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no payout matches the given id")
			return
		}
		s.log.Error().Err(err).Str("key", key).Msg("status lookup failed")
		writeError(w, http.StatusInternalServerError, "internal", "status lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type verifyResponse struct {
	PayoutID      string `json:"payoutId"`
	Status        string `json:"status"`
	RefID         string `json:"refId,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
	Repeated      bool   `json:"repeated,omitempty"`
}

// handleVerifyPayout settles the redirect-gateway browser callback. The
// gateway resends callbacks, so the handler is safe to hit repeatedly.
func (s *Server) handleVerifyPayout(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	authority := q.Get("Authority")
	status := q.Get("Status")
	if authority == "" {
		writeError(w, http.StatusBadRequest, "missing_authority", "Authority is required")
		return
	}

	res, err := s.verifyUC.Verify(r.Context(), authority, status)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownAuthority):
			writeError(w, http.StatusNotFound, "unknown_authority", "no payout matches the callback authority")
		case errors.Is(err, domain.ErrProviderTimeout):
			writeError(w, http.StatusGatewayTimeout, "provider_timeout", "verification timed out; retry the callback")
		case errors.Is(err, domain.ErrProviderUnavailable):
			writeError(w, http.StatusBadGateway, "provider_unavailable", "verification is temporarily unavailable; retry the callback")
		default:
			s.log.Error().Err(err).Str("authority", authority).Msg("verification failed")
			writeError(w, http.StatusInternalServerError, "internal", "verification failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		PayoutID:      res.Payout.ID,
		Status:        string(res.Payout.Status),
		RefID:         res.RefID,
		FailureReason: res.Payout.FailureReason,
		Repeated:      res.Repeated,
	})
}

// zarinpalWebhook is the server-to-server notification body. Unlike the
// browser callback it carries the amount, which is covered by the HMAC
// signature when a webhook secret is configured.
type zarinpalWebhook struct {
	Amount    string `json:"amount"`
	Authority string `json:"authority"`
	Status    string `json:"status"`
	Signature string `json:"signature"`
}

func (s *Server) handleZarinpalWebhook(w http.ResponseWriter, r *http.Request) {
	var body zarinpalWebhook
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid webhook body")
		return
	}
	if body.Authority == "" {
		writeError(w, http.StatusBadRequest, "missing_authority", "authority is required")
		return
	}
	if s.webhookSecret != "" {
		ok := payment.VerifyZarinpalCallbackSignature(s.webhookSecret, map[string]string{
			"amount":    body.Amount,
			"authority": body.Authority,
			"status":    body.Status,
		}, body.Signature)
		if !ok {
			s.log.Warn().Str("authority", body.Authority).Msg("webhook signature mismatch")
			writeError(w, http.StatusUnauthorized, "bad_signature", "webhook signature mismatch")
			return
		}
	}

	res, err := s.verifyUC.Verify(r.Context(), body.Authority, body.Status)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownAuthority) {
			writeError(w, http.StatusNotFound, "unknown_authority", "no payout matches the webhook authority")
			return
		}
		s.log.Error().Err(err).Str("authority", body.Authority).Msg("webhook verification failed")
		writeError(w, http.StatusBadGateway, "verification_failed", "verification failed; the webhook will be retried")
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		PayoutID:      res.Payout.ID,
		Status:        string(res.Payout.Status),
		RefID:         res.RefID,
		FailureReason: res.Payout.FailureReason,
		Repeated:      res.Repeated,
	})
}

func (s *Server) handleListPayouts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user", "userId is required")
		return
	}
	payouts, err := s.payoutUC.ListByUser(r.Context(), userID, 0, 100)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("list payouts failed")
		writeError(w, http.StatusInternalServerError, "internal", "listing payouts failed")
		return
	}
	items := make([]payoutResponse, 0, len(payouts))
	for _, p := range payouts {
		items = append(items, toPayoutResponse(p, ""))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
