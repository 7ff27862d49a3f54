package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"easypark/backend/services/parking-service/internal/gateway"
	"easypark/backend/services/parking-service/internal/models"
)

// CashCheckout lets the keeper on duty settle a cash ticket. It produces the same
// callback the gateway would send so that cash and QR tickets close along one path.
type CashCheckout struct {
	tx           Transactor
	tickets      TicketStore
	transactions TransactionStore
	accounts     AccountDirectory
	reconciler   *SettlementReconciler
	fare         FareCalculator
	now          func() time.Time
}

func NewCashCheckout(
	tx Transactor,
	tickets TicketStore,
	transactions TransactionStore,
	accounts AccountDirectory,
	reconciler *SettlementReconciler,
) *CashCheckout {
	return &CashCheckout{
		tx:           tx,
		tickets:      tickets,
		transactions: transactions,
		accounts:     accounts,
		reconciler:   reconciler,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Settle charges the forecast fare and closes the ticket. A ticket that is already
// closed is returned unchanged. The open check, the fare and the close all run under
// the transaction row lock, so overlapping checkouts settle the ticket once.
func (c *CashCheckout) Settle(ctx context.Context, ticketID, keeperID uuid.UUID) (*Settlement, error) {
	ticket, err := c.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	keeper, err := c.accounts.FindByID(ctx, keeperID)
	if err != nil {
		return nil, participantErr("keeper", keeperID.String(), err)
	}
	if keeper.Role != models.RoleKeeper || !keeper.AssignedTo(ticket.LotID) {
		return nil, fmt.Errorf("%w: keeper %s may not settle tickets of lot %s", ErrInvalidParticipant, keeperID, ticket.LotID)
	}
	if ticket.PaymentMethod != models.PaymentCash {
		return nil, fmt.Errorf("%w: ticket %s is paid by %s", ErrInvalidInput, ticket.ID, ticket.PaymentMethod)
	}

	var (
		result *Settlement
		cb     *gateway.Callback
	)
	err = c.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		locked, err := c.transactions.FindForCallback(ctx, ticket.TransactionID, "")
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: ticket %s has no transaction", ErrInvariantViolation, ticket.ID)
		}
		if err != nil {
			return err
		}
		current, err := c.tickets.GetByTransaction(ctx, locked.ID)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: transaction %s has no ticket", ErrInvariantViolation, locked.ID)
		}
		if err != nil {
			return err
		}
		if !current.Status.Open() {
			result = &Settlement{Ticket: *current, Transaction: *locked, Duplicate: true}
			return nil
		}

		cb = c.callback(current, keeperID)
		patch, err := prepare(cb)
		if err != nil {
			return err
		}
		result, err = c.reconciler.apply(ctx, cb, patch)
		return err
	})
	if err != nil {
		if cb != nil {
			c.reconciler.failed(cb, err)
		}
		return nil, err
	}
	if cb != nil {
		c.reconciler.reconciled(cb, result)
	}
	return result, nil
}

func (c *CashCheckout) callback(ticket *models.Ticket, keeperID uuid.UUID) *gateway.Callback {
	now := c.now()
	stamp := now.Format(gateway.TimeLayout)
	return &gateway.Callback{
		OrderID:           ticket.TransactionID,
		TransactionTime:   &stamp,
		SettlementTime:    &stamp,
		TransactionStatus: strPtr(gateway.StatusSettlement),
		StatusCode:        strPtr("200"),
		StatusMessage:     strPtr("cash settlement by keeper " + keeperID.String()),
		PaymentType:       strPtr("cash"),
		GrossAmount:       strPtr(c.fare.Forecast(ticket, now).StringFixed(2)),
	}
}

func strPtr(s string) *string { return &s }
