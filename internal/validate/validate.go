// Package validate holds the pure request-validation predicates and the
// display formatters for payout method fields. Nothing here performs I/O;
// validation always runs before any provider call.
package validate

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/hodhod22/payout-engine/internal/domain"
	"github.com/hodhod22/payout-engine/internal/domain/model"
)

// Failure kinds, stable across the API surface.
const (
	KindInvalidAmount     = "invalid_amount"
	KindInvalidEmail      = "invalid_email"
	KindInvalidIBAN       = "invalid_iban"
	KindInvalidCardNumber = "invalid_card_number"
	KindRequired          = "required"
	KindUnsupportedMethod = "unsupported_method"
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	ibanRe  = regexp.MustCompile(`^[A-Z0-9]{15,34}$`)
	digitRe = regexp.MustCompile(`^\d{13,19}$`)
)

// Email checks the RFC-light local@domain.tld shape with no whitespace.
func Email(s string) bool {
	return emailRe.MatchString(s)
}

// CleanIBAN strips whitespace and uppercases.
func CleanIBAN(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// IBAN is a format-only check: 15-34 alphanumerics after cleaning.
// No mod-97 checksum is performed.
func IBAN(s string) bool {
	return ibanRe.MatchString(CleanIBAN(s))
}

// CleanCardNumber strips spaces and dashes.
func CleanCardNumber(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, s)
}

// CardNumber requires 13-19 digits after cleaning and a valid Luhn checksum.
func CardNumber(s string) bool {
	cleaned := CleanCardNumber(s)
	if !digitRe.MatchString(cleaned) {
		return false
	}
	sum := 0
	double := false
	for i := len(cleaned) - 1; i >= 0; i-- {
		d := int(cleaned[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// Amount accepts a raw string and reports whether it parses to a finite
// number strictly greater than min.
func Amount(raw string, min float64) bool {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return false
	}
	return v > min
}

// Name requires a trimmed length of at least minLen (2 by default).
func Name(s string, minLen int) bool {
	if minLen <= 0 {
		minLen = 2
	}
	return len(strings.TrimSpace(s)) >= minLen
}

// FormatCardNumber groups the cleaned digits into 4-character chunks for
// display. The value passed to validation and submission is always the
// unformatted string.
func FormatCardNumber(s string) string {
	return chunk4(CleanCardNumber(s))
}

// FormatIBAN groups the cleaned, uppercased IBAN into 4-character chunks.
func FormatIBAN(s string) string {
	return chunk4(CleanIBAN(s))
}

func chunk4(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		end := i + 4
		if end > len(s) {
			end = len(s)
		}
		b.WriteString(s[i:end])
	}
	return b.String()
}

// Request applies the method-required-field matrix:
//
//	paypal: amount, email
//	bank:   amount, iban, recipientName
//	card:   amount, cardNumber, recipientName
//
// minAmount is in minor units (exclusive lower bound). The returned slice
// lists every failing field; an empty slice means the request is valid.
func Request(req model.PayoutRequest, minAmount int64) []domain.FieldError {
	var errs []domain.FieldError
	add := func(field, kind string) {
		errs = append(errs, domain.FieldError{Field: field, Kind: kind})
	}

	if req.Amount <= minAmount {
		add("amount", KindInvalidAmount)
	}
	if req.Currency == "" {
		add("currency", KindRequired)
	}

	switch req.Method {
	case model.PayoutMethodPayPal:
		if req.Email == "" {
			add("email", KindRequired)
		} else if !Email(req.Email) {
			add("email", KindInvalidEmail)
		}
	case model.PayoutMethodBank:
		if req.IBAN == "" {
			add("iban", KindRequired)
		} else if !IBAN(req.IBAN) {
			add("iban", KindInvalidIBAN)
		}
		if !Name(req.RecipientName, 0) {
			add("recipientName", KindRequired)
		}
	case model.PayoutMethodCard:
		if req.CardNumber == "" {
			add("cardNumber", KindRequired)
		} else if !CardNumber(req.CardNumber) {
			add("cardNumber", KindInvalidCardNumber)
		}
		if !Name(req.RecipientName, 0) {
			add("recipientName", KindRequired)
		}
	default:
		if req.Method == "" {
			add("method", KindRequired)
		} else {
			add("method", KindUnsupportedMethod)
		}
	}
	return errs
}
