package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrSignatureMismatch is returned when a callback signature does not match the expected digest.
var ErrSignatureMismatch = errors.New("payments: signature mismatch")

// SignatureVerifier checks gateway callbacks signed as
// hex(HMAC-SHA256(secret, gatewayOrderID + "|" + paymentID)).
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier builds a verifier for the shared gateway secret.
func NewSignatureVerifier(secret string) (*SignatureVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("payments: signature secret is required")
	}
	return &SignatureVerifier{secret: []byte(secret)}, nil
}

// Sign returns the expected hex signature for the pair.
func (v *SignatureVerifier) Sign(gatewayOrderID, paymentID string) string {
	return hex.EncodeToString(v.digest(gatewayOrderID, paymentID))
}

// Verify compares the supplied hex signature in constant time.
func (v *SignatureVerifier) Verify(gatewayOrderID, paymentID, signature string) error {
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) == 0 {
		return ErrSignatureMismatch
	}
	if !hmac.Equal(provided, v.digest(gatewayOrderID, paymentID)) {
		return ErrSignatureMismatch
	}
	return nil
}

func (v *SignatureVerifier) digest(gatewayOrderID, paymentID string) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return mac.Sum(nil)
}
