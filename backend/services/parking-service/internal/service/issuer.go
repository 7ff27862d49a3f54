package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"easypark/backend/services/parking-service/internal/gateway"
	"easypark/backend/services/parking-service/internal/metrics"
	"easypark/backend/services/parking-service/internal/models"
	"easypark/backend/services/parking-service/internal/repository"
)

// IssueRequest is a keeper checking a patron into a lot.
type IssueRequest struct {
	Patron        PatronRef
	KeeperID      uuid.UUID
	LotID         uuid.UUID
	VehicleClass  models.VehicleClass
	PaymentMethod models.PaymentMethod
}

// Issued is a freshly created ticket with its pending transaction.
type Issued struct {
	Ticket      models.Ticket      `json:"parking_ticket"`
	Transaction models.Transaction `json:"transaction"`
}

// AmendRequest changes an open ticket. Nil fields are kept.
type AmendRequest struct {
	VehicleClass  *models.VehicleClass
	PaymentMethod *models.PaymentMethod
}

// TicketIssuer creates tickets and amends open ones.
type TicketIssuer struct {
	tx           Transactor
	tickets      TicketStore
	transactions TransactionStore
	lots         LotDirectory
	participants *ParticipantValidator
	fare         FareCalculator
	metrics      *metrics.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// NewTicketIssuer builds issuer. m may be nil.
func NewTicketIssuer(
	tx Transactor,
	tickets TicketStore,
	transactions TransactionStore,
	accounts AccountDirectory,
	lots LotDirectory,
	m *metrics.Metrics,
	logger *zap.Logger,
) *TicketIssuer {
	return &TicketIssuer{
		tx:           tx,
		tickets:      tickets,
		transactions: transactions,
		lots:         lots,
		participants: NewParticipantValidator(accounts, lots),
		metrics:      m,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Issue checks the patron in. The open-ticket check and the inserts run in one store
// transaction under a per-patron lock, so concurrent requests for the same patron
// yield exactly one ticket.
func (s *TicketIssuer) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	var issued *Issued
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		patron, err := s.participants.Patron(ctx, req.Patron)
		if err != nil {
			return err
		}

		if err := s.tickets.LockPatron(ctx, patron.ID); err != nil {
			return err
		}
		open, err := s.tickets.FindOpenByPatron(ctx, patron.ID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: ticket %s is %s", ErrConflictAlreadyIssued, open.ID, open.Status)
		case !errors.Is(err, ErrNotFound):
			return err
		}

		keeper, lot, err := s.participants.Keeper(ctx, req.KeeperID, req.LotID)
		if err != nil {
			return err
		}

		now := s.now()
		transaction := &models.Transaction{ID: uuid.NewString(), TransactionStatus: strPtr(gateway.StatusPending)}
		if err := s.transactions.Create(ctx, transaction); err != nil {
			return err
		}

		ticket := &models.Ticket{
			ID:            uuid.New(),
			Status:        models.TicketStatusActive,
			VehicleClass:  req.VehicleClass,
			PaymentMethod: req.PaymentMethod,
			Amount:        s.fare.Initial(req.VehicleClass, lot),
			LotID:         lot.ID,
			PatronID:      patron.ID,
			KeeperID:      keeper.ID,
			OwnerID:       lot.OwnerID,
			TransactionID: transaction.ID,
			CheckInAt:     now,
		}
		if err := s.tickets.Create(ctx, ticket); err != nil {
			return err
		}

		issued = &Issued{Ticket: *ticket, Transaction: *transaction}
		return nil
	})
	if errors.Is(err, repository.ErrOpenTicketExists) {
		err = fmt.Errorf("%w: %v", ErrConflictAlreadyIssued, err)
	}

	s.metrics.Issued(issueResult(err))
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket issued",
		zap.String("ticket_id", issued.Ticket.ID.String()),
		zap.String("patron_id", issued.Ticket.PatronID.String()),
		zap.String("lot_id", issued.Ticket.LotID.String()),
		zap.String("transaction_id", issued.Transaction.ID),
		zap.String("amount", issued.Ticket.Amount.String()),
	)
	return issued, nil
}

// Amend changes the vehicle class or payment method of an open ticket. A new vehicle
// class re-prices the frozen amount from the lot's rate card.
func (s *TicketIssuer) Amend(ctx context.Context, id uuid.UUID, req AmendRequest) (*models.Ticket, error) {
	requested := models.TicketPatch{VehicleClass: req.VehicleClass, PaymentMethod: req.PaymentMethod}
	if requested.Empty() {
		return nil, fmt.Errorf("%w: nothing to amend", ErrInvalidInput)
	}

	var amended *models.Ticket
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		ticket, err := s.tickets.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !ticket.Status.Open() {
			return fmt.Errorf("%w: ticket %s", ErrTicketClosed, id)
		}

		patch := requested
		if req.VehicleClass != nil && *req.VehicleClass != ticket.VehicleClass {
			lot, err := s.lots.FindByID(ctx, ticket.LotID)
			if err != nil {
				return fmt.Errorf("resolve lot %s: %w", ticket.LotID, err)
			}
			amount := s.fare.Initial(*req.VehicleClass, lot)
			patch.Amount = &amount
		}

		amended, err = s.tickets.UpdateOpen(ctx, id, patch)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: ticket %s", ErrTicketClosed, id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket amended",
		zap.String("ticket_id", amended.ID.String()),
		zap.String("vehicle_type", string(amended.VehicleClass)),
		zap.String("payment", string(amended.PaymentMethod)),
	)
	return amended, nil
}

func issueResult(err error) string {
	switch {
	case err == nil:
		return metrics.IssueOK
	case errors.Is(err, ErrConflictAlreadyIssued):
		return metrics.IssueConflict
	case errors.Is(err, ErrInvalidParticipant), errors.Is(err, ErrInvalidInput):
		return metrics.IssueInvalid
	case errors.Is(err, ErrStoreUnavailable):
		return metrics.IssueUnavailable
	}
	return metrics.IssueError
}
