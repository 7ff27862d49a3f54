package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"easypark/backend/services/parking-service/internal/models"
)

// Gateway transaction statuses the engine reacts to.
const (
	StatusSettlement = "settlement"
	StatusSettled    = "settled"
	StatusCapture    = "capture"
	StatusPending    = "pending"
	StatusDeny       = "deny"
	StatusCancel     = "cancel"
	StatusExpire     = "expire"
	StatusFailure    = "failure"
	StatusRefund     = "refund"

	FraudAccept = "accept"
)

// TimeLayout is the timestamp format used in callback payloads.
const TimeLayout = "2006-01-02 15:04:05"

// ErrMissingOrderID is returned by Validate for a payload without correlation id.
var ErrMissingOrderID = errors.New("gateway: order_id is required")

// Callback is the settlement notification posted by the payment gateway. Every field
// except OrderID is optional.
type Callback struct {
	TransactionTime   *string `json:"transaction_time,omitempty"`
	TransactionStatus *string `json:"transaction_status,omitempty"`
	TransactionID     *string `json:"transaction_id,omitempty"`
	StatusMessage     *string `json:"status_message,omitempty"`
	StatusCode        *string `json:"status_code,omitempty"`
	SignatureKey      *string `json:"signature_key,omitempty"`
	SettlementTime    *string `json:"settlement_time,omitempty"`
	PaymentType       *string `json:"payment_type,omitempty"`
	OrderID           string  `json:"order_id"`
	MerchantID        *string `json:"merchant_id,omitempty"`
	GrossAmount       *string `json:"gross_amount,omitempty"`
	FraudStatus       *string `json:"fraud_status,omitempty"`
	Currency          *string `json:"currency,omitempty"`
}

// Validate checks the fields the engine cannot work without.
func (c *Callback) Validate() error {
	if strings.TrimSpace(c.OrderID) == "" {
		return ErrMissingOrderID
	}
	if c.GrossAmount != nil {
		if _, err := decimal.NewFromString(*c.GrossAmount); err != nil {
			return fmt.Errorf("gateway: gross_amount %q: %w", *c.GrossAmount, err)
		}
	}
	return nil
}

// GatewayID returns the gateway transaction id or "".
func (c *Callback) GatewayID() string {
	return value(c.TransactionID)
}

// Status returns the lower-cased transaction status or "".
func (c *Callback) Status() string {
	return strings.ToLower(value(c.TransactionStatus))
}

// IsFinal reports whether the status ends the payment. Only pending and an absent
// status are non-final.
func (c *Callback) IsFinal() bool {
	return IsFinalStatus(c.Status())
}

// IsSettled reports whether the callback confirms the money arrived.
func (c *Callback) IsSettled() bool {
	return IsSettledStatus(c.Status(), value(c.FraudStatus))
}

// IsFinalStatus is IsFinal for a stored status.
func IsFinalStatus(status string) bool {
	switch strings.ToLower(status) {
	case "", StatusPending:
		return false
	}
	return true
}

// IsSettledStatus treats settlement, settled and a fraud-accepted capture as paid.
func IsSettledStatus(status, fraud string) bool {
	switch strings.ToLower(status) {
	case StatusSettlement, StatusSettled:
		return true
	case StatusCapture:
		f := strings.ToLower(fraud)
		return f == "" || f == FraudAccept
	}
	return false
}

// Patch converts the callback into a coalesce update. The order id is recorded so
// that later callbacks still resolve after the transaction is renamed.
func (c *Callback) Patch() (models.TransactionPatch, error) {
	patch := models.TransactionPatch{
		TransactionTime:      c.TransactionTime,
		TransactionStatus:    c.TransactionStatus,
		GatewayTransactionID: c.TransactionID,
		StatusCode:           c.StatusCode,
		StatusMessage:        c.StatusMessage,
		SignatureKey:         c.SignatureKey,
		SettlementTime:       c.SettlementTime,
		PaymentType:          c.PaymentType,
		MerchantID:           c.MerchantID,
		FraudStatus:          c.FraudStatus,
		Currency:             c.Currency,
	}
	orderID := c.OrderID
	patch.OrderID = &orderID

	if c.GrossAmount != nil {
		amount, err := decimal.NewFromString(*c.GrossAmount)
		if err != nil {
			return models.TransactionPatch{}, fmt.Errorf("gateway: gross_amount %q: %w", *c.GrossAmount, err)
		}
		patch.GrossAmount = &amount
	}
	return patch, nil
}

// Digest identifies a delivery by its content, independent of field order.
func (c *Callback) Digest() string {
	raw, _ := json.Marshal(c)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
