package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Lot is the read-only view of a parking lot and its rate card.
type Lot struct {
	ID        uuid.UUID       `json:"id"`
	AreaName  string          `json:"area_name"`
	Address   string          `json:"address"`
	ImageURL  string          `json:"image_url"`
	CarRate   decimal.Decimal `json:"car_cost"`
	MotorRate decimal.Decimal `json:"motor_cost"`
	OwnerID   uuid.UUID       `json:"owner_id"`
}

// Account is the read-only view of a user account owned by the identity service.
type Account struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	PhoneNumber string     `json:"phone_number"`
	Role        Role       `json:"role"`
	LotID       *uuid.UUID `json:"parking_lot_id"`
}

// AssignedTo reports whether a keeper account works at lotID.
func (a *Account) AssignedTo(lotID uuid.UUID) bool {
	return a.LotID != nil && *a.LotID == lotID
}
