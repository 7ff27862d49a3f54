package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TicketFilter narrows report queries. Nil fields are not applied.
type TicketFilter struct {
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	PatronID      *uuid.UUID
	KeeperID      *uuid.UUID
	OwnerID       *uuid.UUID
	Status        *TicketStatus
	PaymentMethod *PaymentMethod
}

// Scope returns the single participant filter that applies. Patron wins over keeper,
// keeper wins over owner; ok is false when none was given.
func (f TicketFilter) Scope() (role Role, id uuid.UUID, ok bool) {
	switch {
	case f.PatronID != nil:
		return RolePatron, *f.PatronID, true
	case f.KeeperID != nil:
		return RoleKeeper, *f.KeeperID, true
	case f.OwnerID != nil:
		return RoleOwner, *f.OwnerID, true
	}
	return RoleUnspecified, uuid.Nil, false
}

// Page is take/skip pagination.
type Page struct {
	Take int `json:"take"`
	Skip int `json:"skip"`
}

// TicketView is a ticket joined with its lot, patron and settlement amounts.
type TicketView struct {
	Ticket
	LotName        string          `json:"area_name"`
	LotAddress     string          `json:"address"`
	LotImageURL    string          `json:"image_url"`
	PatronName     string          `json:"patron_name"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ForecastAmount decimal.Decimal `json:"forecast_amount"`
}

// TicketDetail is a ticket with every related record resolved.
type TicketDetail struct {
	Ticket      Ticket      `json:"parking_ticket"`
	Transaction Transaction `json:"transaction"`
	Lot         Lot         `json:"parking_lot"`
	Patron      Account     `json:"patron"`
	Keeper      Account     `json:"keeper"`
	Owner       Account     `json:"owner"`
}

// MonthlyCount is one row of the per-owner monthly rollup.
type MonthlyCount struct {
	Month string `json:"month"`
	Count int64  `json:"total_history"`
}

// TimeRange is an inclusive creation-time window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SettlementSummary sums gross amounts of closed tickets.
type SettlementSummary struct {
	Sum   decimal.Decimal `json:"sum_all"`
	Count int64           `json:"total_history"`
}
