package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyZarinpalCallbackSignature checks an HMAC-SHA256 callback signature:
// signature = HMAC-SHA256(amount + authority + status + secret).
func VerifyZarinpalCallbackSignature(secret string, data map[string]string, signature string) bool {
	signatureData := data["amount"] + data["authority"] + data["status"] + secret

	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(signatureData))
	expected := hex.EncodeToString(h.Sum(nil))

	return strings.EqualFold(expected, signature)
}
