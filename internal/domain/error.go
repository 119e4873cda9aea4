package domain

import (
	"errors"
	"fmt"
)

// ProviderRejection is a provider-side business rejection that carries the
// provider's reason code. It matches ErrProviderRejected under errors.Is,
// so callers that only branch on the taxonomy keep working; callers that
// persist a failure reason read Code.
type ProviderRejection struct {
	Code    string // provider reason code, e.g. "balance_insufficient", "code_-53"
	Message string
}

func (e *ProviderRejection) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", ErrProviderRejected.Error(), e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", ErrProviderRejected.Error(), e.Code, e.Message)
}

func (e *ProviderRejection) Unwrap() error { return ErrProviderRejected }

// RejectionReason extracts the provider reason code when err carries one,
// or returns the empty string.
func RejectionReason(err error) string {
	var rej *ProviderRejection
	if errors.As(err, &rej) {
		return rej.Code
	}
	return ""
}

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrAlreadyExists    = errors.New("entity already exists")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrTerminalStatus   = errors.New("payout already in a terminal status")
	ErrUnknownAuthority = errors.New("no payout matches the callback authority")
	ErrRateLimited      = errors.New("too many payout requests")

	// Provider error taxonomy. Adapters normalize provider-specific
	// failures into exactly one of these before returning.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderRejected    = errors.New("payment provider rejected the request")
	ErrProviderTimeout     = errors.New("payment provider timed out")

	// Infrastructure errors surfaced by repositories.
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid transaction executor")
)

// FieldError names one invalid request field and the kind of failure.
// Kind values are stable machine-readable codes (invalid_amount,
// invalid_email, invalid_iban, invalid_card_number, required).
type FieldError struct {
	Field string `json:"field"`
	Kind  string `json:"kind"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Kind)
}

// ValidationError aggregates all field failures for a payout request.
// It is client-correctable and never retried automatically.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return "validation failed: " + e.Fields[0].Error()
	}
	return fmt.Sprintf("validation failed: %d invalid fields", len(e.Fields))
}

// AsValidationError unwraps err into a *ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
