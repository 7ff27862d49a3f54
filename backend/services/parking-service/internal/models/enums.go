package models

import (
	"fmt"
	"strings"
)

// TicketStatus is the lifecycle state of a parking ticket.
type TicketStatus string

const (
	TicketStatusPending TicketStatus = "pending"
	TicketStatusActive  TicketStatus = "active"
	TicketStatusClosed  TicketStatus = "closed"
)

// ParseTicketStatus accepts the canonical names and the legacy ones
// (default, not_active) still found in older clients.
func ParseTicketStatus(raw string) (TicketStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "default":
		return TicketStatusPending, nil
	case "active":
		return TicketStatusActive, nil
	case "closed", "not_active":
		return TicketStatusClosed, nil
	}
	return "", fmt.Errorf("models: unknown ticket status %q", raw)
}

// Open reports whether the ticket still blocks its patron from a new issuance.
func (s TicketStatus) Open() bool {
	switch s {
	case TicketStatusPending, TicketStatusActive:
		return true
	case TicketStatusClosed:
		return false
	}
	return false
}

// CanTransitionTo encodes the state machine: only open tickets may close.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	switch s {
	case TicketStatusPending:
		return next == TicketStatusActive || next == TicketStatusClosed
	case TicketStatusActive:
		return next == TicketStatusClosed
	case TicketStatusClosed:
		return false
	}
	return false
}

// VehicleClass selects the rate card entry.
type VehicleClass string

const (
	VehicleUnspecified VehicleClass = "unspecified"
	VehicleCar         VehicleClass = "car"
	VehicleMotor       VehicleClass = "motor"
)

// ParseVehicleClass maps an empty or "default" value to VehicleUnspecified.
func ParseVehicleClass(raw string) (VehicleClass, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "default", "unspecified":
		return VehicleUnspecified, nil
	case "car":
		return VehicleCar, nil
	case "motor", "motorcycle":
		return VehicleMotor, nil
	}
	return "", fmt.Errorf("models: unknown vehicle class %q", raw)
}

// PaymentMethod is how the patron intends to settle.
type PaymentMethod string

const (
	PaymentUnspecified PaymentMethod = "unspecified"
	PaymentCash        PaymentMethod = "cash"
	PaymentQR          PaymentMethod = "qr"
)

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "default", "unspecified":
		return PaymentUnspecified, nil
	case "cash":
		return PaymentCash, nil
	case "qr", "qris":
		return PaymentQR, nil
	}
	return "", fmt.Errorf("models: unknown payment method %q", raw)
}

// Role is the account role as seen by the ticket engine.
type Role string

const (
	RoleUnspecified Role = "unspecified"
	RolePatron      Role = "patron"
	RoleKeeper      Role = "keeper"
	RoleOwner       Role = "owner"
)

// ParseRole understands both the engine names and the identity service column values
// (easypark, park_keeper, park_owner).
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "default", "unspecified":
		return RoleUnspecified, nil
	case "patron", "easypark":
		return RolePatron, nil
	case "keeper", "park_keeper":
		return RoleKeeper, nil
	case "owner", "park_owner":
		return RoleOwner, nil
	}
	return "", fmt.Errorf("models: unknown role %q", raw)
}
