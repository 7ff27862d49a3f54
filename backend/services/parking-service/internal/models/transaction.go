package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction correlates a ticket with its payment-gateway settlement. It is created
// empty at issuance and enriched by settlement callbacks.
type Transaction struct {
	ID                   string              `json:"id"`
	TransactionTime      *string             `json:"transaction_time"`
	TransactionStatus    *string             `json:"transaction_status"`
	GatewayTransactionID *string             `json:"transaction_id"`
	StatusCode           *string             `json:"status_code"`
	StatusMessage        *string             `json:"status_message"`
	SignatureKey         *string             `json:"signature_key"`
	SettlementTime       *string             `json:"settlement_time"`
	PaymentType          *string             `json:"payment_type"`
	OrderID              *string             `json:"order_id"`
	MerchantID           *string             `json:"merchant_id"`
	GrossAmount          decimal.NullDecimal `json:"gross_amount"`
	FraudStatus          *string             `json:"fraud_status"`
	Currency             *string             `json:"currency"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// Status returns the stored gateway status or "" when none arrived yet.
func (t *Transaction) Status() string {
	if t.TransactionStatus == nil {
		return ""
	}
	return *t.TransactionStatus
}

// TransactionPatch is a coalesce-style update: every non-nil field overwrites the
// stored value, nil fields keep it.
type TransactionPatch struct {
	TransactionTime      *string
	TransactionStatus    *string
	GatewayTransactionID *string
	StatusCode           *string
	StatusMessage        *string
	SignatureKey         *string
	SettlementTime       *string
	PaymentType          *string
	OrderID              *string
	MerchantID           *string
	GrossAmount          *decimal.Decimal
	FraudStatus          *string
	Currency             *string
}

// Apply merges the patch into t and reports whether any stored value changed.
func (p TransactionPatch) Apply(t *Transaction) bool {
	changed := false
	merge := func(dst **string, src *string) {
		if src == nil {
			return
		}
		if *dst != nil && **dst == *src {
			return
		}
		v := *src
		*dst = &v
		changed = true
	}

	merge(&t.TransactionTime, p.TransactionTime)
	merge(&t.TransactionStatus, p.TransactionStatus)
	merge(&t.GatewayTransactionID, p.GatewayTransactionID)
	merge(&t.StatusCode, p.StatusCode)
	merge(&t.StatusMessage, p.StatusMessage)
	merge(&t.SignatureKey, p.SignatureKey)
	merge(&t.SettlementTime, p.SettlementTime)
	merge(&t.PaymentType, p.PaymentType)
	merge(&t.OrderID, p.OrderID)
	merge(&t.MerchantID, p.MerchantID)
	merge(&t.FraudStatus, p.FraudStatus)
	merge(&t.Currency, p.Currency)

	if p.GrossAmount != nil && !(t.GrossAmount.Valid && t.GrossAmount.Decimal.Equal(*p.GrossAmount)) {
		t.GrossAmount = decimal.NullDecimal{Decimal: *p.GrossAmount, Valid: true}
		changed = true
	}
	return changed
}
