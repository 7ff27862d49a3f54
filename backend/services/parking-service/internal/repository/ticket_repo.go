package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"easypark/backend/services/parking-service/internal/models"
)

const ticketColumns = `
	t.id, t.status, t.vehicle_type, t.payment, t.amount,
	t.parking_lot_id, t.patron_id, t.keeper_id, t.owner_id, t.transaction_id,
	t.created_at, t.updated_at, t.check_in_date, t.check_out_date`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// TicketRepository persists parking tickets.
type TicketRepository struct {
	db *sql.DB
}

// NewTicketRepository returns repository.
func NewTicketRepository(db *sql.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// LockPatron serialises issuance for one patron until the surrounding transaction ends.
// It must be called inside WithinTransaction.
func (r *TicketRepository) LockPatron(ctx context.Context, patronID uuid.UUID) error {
	const query = `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, patronID.String()); err != nil {
		return fmt.Errorf("lock patron %s: %w", patronID, classify(err))
	}
	return nil
}

// FindOpenByPatron returns the patron's pending or active ticket, or ErrNotFound.
func (r *TicketRepository) FindOpenByPatron(ctx context.Context, patronID uuid.UUID) (*models.Ticket, error) {
	query := `SELECT` + ticketColumns + `
		FROM parking_tickets t
		WHERE t.patron_id = $1 AND t.status IN ('pending', 'active')
		ORDER BY t.created_at
		LIMIT 1`
	ticket, err := scanTicket(conn(ctx, r.db).QueryRowContext(ctx, query, patronID))
	if err != nil {
		return nil, classify(err)
	}
	return ticket, nil
}

// Create inserts a ticket. A concurrent open ticket for the same patron surfaces as
// ErrOpenTicketExists.
func (r *TicketRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	const query = `
		INSERT INTO parking_tickets (
			id, status, vehicle_type, payment, amount,
			parking_lot_id, patron_id, keeper_id, owner_id, transaction_id,
			check_in_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING created_at, updated_at`
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		ticket.ID,
		string(ticket.Status),
		string(ticket.VehicleClass),
		string(ticket.PaymentMethod),
		ticket.Amount,
		ticket.LotID,
		ticket.PatronID,
		ticket.KeeperID,
		ticket.OwnerID,
		ticket.TransactionID,
		ticket.CheckInAt,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", classify(err))
	}
	return nil
}

// GetByID returns one ticket or ErrNotFound.
func (r *TicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	query := `SELECT` + ticketColumns + ` FROM parking_tickets t WHERE t.id = $1`
	ticket, err := scanTicket(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, classify(err)
	}
	return ticket, nil
}

// GetByTransaction returns the ticket bound to a transaction id or ErrNotFound.
func (r *TicketRepository) GetByTransaction(ctx context.Context, transactionID string) (*models.Ticket, error) {
	query := `SELECT` + ticketColumns + ` FROM parking_tickets t WHERE t.transaction_id = $1`
	ticket, err := scanTicket(conn(ctx, r.db).QueryRowContext(ctx, query, transactionID))
	if err != nil {
		return nil, classify(err)
	}
	return ticket, nil
}

// UpdateOpen applies a patch to a ticket that is still open and returns the stored
// row. ErrNotFound means the ticket is missing or already closed.
func (r *TicketRepository) UpdateOpen(ctx context.Context, id uuid.UUID, patch models.TicketPatch) (*models.Ticket, error) {
	var vehicle, payment *string
	if patch.VehicleClass != nil {
		v := string(*patch.VehicleClass)
		vehicle = &v
	}
	if patch.PaymentMethod != nil {
		p := string(*patch.PaymentMethod)
		payment = &p
	}
	var amount any
	if patch.Amount != nil {
		amount = *patch.Amount
	}

	query := `
		UPDATE parking_tickets t SET
			vehicle_type = COALESCE($2, t.vehicle_type),
			payment = COALESCE($3, t.payment),
			amount = COALESCE($4::numeric, t.amount),
			updated_at = NOW()
		WHERE t.id = $1 AND t.status IN ('pending', 'active')
		RETURNING` + ticketColumns
	ticket, err := scanTicket(conn(ctx, r.db).QueryRowContext(ctx, query, id, vehicle, payment, amount))
	if err != nil {
		return nil, classify(err)
	}
	return ticket, nil
}

// CloseByTransaction closes the open ticket bound to transactionID and stamps its
// check-out time. A ticket that is already closed is left untouched and reported with
// closed=false.
func (r *TicketRepository) CloseByTransaction(ctx context.Context, transactionID string, at time.Time) (ticket *models.Ticket, closed bool, err error) {
	query := `
		UPDATE parking_tickets t SET
			status = 'closed',
			check_out_date = $2,
			updated_at = NOW()
		WHERE t.transaction_id = $1 AND t.status IN ('pending', 'active')
		RETURNING` + ticketColumns
	ticket, err = scanTicket(conn(ctx, r.db).QueryRowContext(ctx, query, transactionID, at))
	if err == nil {
		return ticket, true, nil
	}
	if err = classify(err); !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("close ticket: %w", err)
	}
	ticket, err = r.GetByTransaction(ctx, transactionID)
	if err != nil {
		return nil, false, err
	}
	return ticket, false, nil
}

func scanTicket(row rowScanner) (*models.Ticket, error) {
	var (
		t                        models.Ticket
		status, vehicle, payment string
	)
	if err := row.Scan(
		&t.ID,
		&status,
		&vehicle,
		&payment,
		&t.Amount,
		&t.LotID,
		&t.PatronID,
		&t.KeeperID,
		&t.OwnerID,
		&t.TransactionID,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.CheckInAt,
		&t.CheckOutAt,
	); err != nil {
		return nil, err
	}

	var err error
	if t.Status, err = models.ParseTicketStatus(status); err != nil {
		return nil, err
	}
	if t.VehicleClass, err = models.ParseVehicleClass(vehicle); err != nil {
		return nil, err
	}
	if t.PaymentMethod, err = models.ParsePaymentMethod(payment); err != nil {
		return nil, err
	}
	return &t, nil
}
