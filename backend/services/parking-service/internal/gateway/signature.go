package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidSignature means the callback was not signed with our server key.
var ErrInvalidSignature = errors.New("gateway: invalid signature")

// Config holds the merchant credentials. It is passed by reference to whoever needs
// it; there is no package-level key.
type Config struct {
	ServerKey       string
	VerifySignature bool
}

// Verifier checks callback signatures.
type Verifier struct {
	cfg Config
}

func NewVerifier(cfg Config) *Verifier {
	return &Verifier{cfg: cfg}
}

// Sign returns hex(sha512(order_id + status_code + gross_amount + server_key)).
func (v *Verifier) Sign(orderID, statusCode, grossAmount string) string {
	var b strings.Builder
	b.WriteString(orderID)
	b.WriteString(statusCode)
	b.WriteString(grossAmount)
	b.WriteString(v.cfg.ServerKey)
	sum := sha512.Sum512([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify accepts any callback when verification is disabled.
func (v *Verifier) Verify(c *Callback) error {
	if !v.cfg.VerifySignature {
		return nil
	}
	if c.SignatureKey == nil {
		return ErrInvalidSignature
	}
	want := v.Sign(c.OrderID, value(c.StatusCode), value(c.GrossAmount))
	got := strings.ToLower(strings.TrimSpace(*c.SignatureKey))
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
