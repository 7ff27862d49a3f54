package service

import (
	"time"

	"github.com/shopspring/decimal"

	"easypark/backend/services/parking-service/internal/models"
)

// BilledHours rounds the elapsed time up to whole hours. Zero or negative elapsed
// time still bills one hour.
func BilledHours(checkIn, reference time.Time) int64 {
	elapsed := reference.Sub(checkIn)
	if elapsed <= 0 {
		return 1
	}
	hours := int64(elapsed / time.Hour)
	if elapsed%time.Hour != 0 {
		hours++
	}
	return hours
}

// FareCalculator prices tickets from a lot's rate card. It has no state.
type FareCalculator struct{}

// Rate returns the hourly rate for the class. Unspecified is billed as a car.
func (FareCalculator) Rate(class models.VehicleClass, lot *models.Lot) decimal.Decimal {
	if class == models.VehicleMotor {
		return lot.MotorRate
	}
	return lot.CarRate
}

// Initial is the flat first-hour charge frozen on the ticket at issuance.
func (c FareCalculator) Initial(class models.VehicleClass, lot *models.Lot) decimal.Decimal {
	return c.Rate(class, lot)
}

// Compute bills every started hour between checkIn and reference.
func (c FareCalculator) Compute(class models.VehicleClass, checkIn, reference time.Time, lot *models.Lot) decimal.Decimal {
	return c.Rate(class, lot).Mul(decimal.NewFromInt(BilledHours(checkIn, reference)))
}

// Forecast bills the ticket's frozen hourly amount up to its check-out, or up to now
// while it is still open.
func (FareCalculator) Forecast(t *models.Ticket, now time.Time) decimal.Decimal {
	end := now
	if t.CheckOutAt != nil {
		end = *t.CheckOutAt
	}
	return t.Amount.Mul(decimal.NewFromInt(BilledHours(t.CheckInAt, end)))
}
