package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ticket is one parking visit from check-in to settlement.
type Ticket struct {
	ID            uuid.UUID       `json:"id"`
	Status        TicketStatus    `json:"ticket_status"`
	VehicleClass  VehicleClass    `json:"vehicle_type"`
	PaymentMethod PaymentMethod   `json:"payment"`
	Amount        decimal.Decimal `json:"amount"`
	LotID         uuid.UUID       `json:"parking_lot_id"`
	PatronID      uuid.UUID       `json:"patron_id"`
	KeeperID      uuid.UUID       `json:"keeper_id"`
	OwnerID       uuid.UUID       `json:"owner_id"`
	TransactionID string          `json:"transaction_id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CheckInAt     time.Time       `json:"check_in_date"`
	CheckOutAt    *time.Time      `json:"check_out_date"`
}

// TicketPatch carries the fields a keeper may amend on an open ticket.
// A nil field keeps the stored value. Status is not patchable.
type TicketPatch struct {
	VehicleClass  *VehicleClass
	PaymentMethod *PaymentMethod
	Amount        *decimal.Decimal
}

// Empty reports whether the patch changes nothing.
func (p TicketPatch) Empty() bool {
	return p.VehicleClass == nil && p.PaymentMethod == nil && p.Amount == nil
}

// Apply merges the patch into t.
func (p TicketPatch) Apply(t *Ticket) {
	if p.VehicleClass != nil {
		t.VehicleClass = *p.VehicleClass
	}
	if p.PaymentMethod != nil {
		t.PaymentMethod = *p.PaymentMethod
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
}
