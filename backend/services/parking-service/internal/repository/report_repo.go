package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"easypark/backend/services/parking-service/internal/models"
)

// ReportRepository serves the read-only ticket projections.
type ReportRepository struct {
	db *sql.DB
}

// NewReportRepository returns repository.
func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// whereBuilder accumulates AND-ed predicates with positional arguments.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(format string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(format, len(w.args)))
}

func (w *whereBuilder) addRaw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func ticketFilterWhere(f models.TicketFilter) *whereBuilder {
	w := &whereBuilder{}
	if f.CreatedFrom != nil {
		w.add("t.created_at >= $%d", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		w.add("t.created_at <= $%d", *f.CreatedTo)
	}
	if role, id, ok := f.Scope(); ok {
		switch role {
		case models.RolePatron:
			w.add("t.patron_id = $%d", id)
		case models.RoleKeeper:
			w.add("t.keeper_id = $%d", id)
		case models.RoleOwner:
			w.add("t.owner_id = $%d", id)
		}
	}
	if f.Status != nil {
		w.add("t.status = $%d", string(*f.Status))
	}
	if f.PaymentMethod != nil {
		w.add("t.payment = $%d", string(*f.PaymentMethod))
	}
	return w
}

// ticketViewFrom is shared by Count and Query so the total matches the pages.
const ticketViewFrom = `
		FROM parking_tickets t
		JOIN parking_lots l ON l.id = t.parking_lot_id
		JOIN users p ON p.id = t.patron_id
		LEFT JOIN parking_transactions x ON x.id = t.transaction_id`

// Count returns how many tickets match the filter.
func (r *ReportRepository) Count(ctx context.Context, f models.TicketFilter) (int64, error) {
	w := ticketFilterWhere(f)
	var total int64
	if err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*)`+ticketViewFrom+w.String(), w.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count tickets: %w", classify(err))
	}
	return total, nil
}

// Query returns one page of tickets joined with their lot, patron and gross amount,
// newest first. Forecast amounts are left for the caller.
func (r *ReportRepository) Query(ctx context.Context, f models.TicketFilter, page models.Page) ([]models.TicketView, error) {
	w := ticketFilterWhere(f)
	args := append(w.args, page.Take, page.Skip)
	query := `SELECT` + ticketColumns + `,
			l.area_name, l.address, COALESCE(l.image_url, ''), p.name, x.gross_amount` +
		ticketViewFrom + w.String() + fmt.Sprintf(`
		ORDER BY t.created_at DESC, t.id
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", classify(err))
	}
	defer rows.Close()

	views := make([]models.TicketView, 0, page.Take)
	for rows.Next() {
		view, err := scanTicketView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return views, nil
}

func scanTicketView(rows *sql.Rows) (*models.TicketView, error) {
	var (
		view                     models.TicketView
		status, vehicle, payment string
		gross                    decimal.NullDecimal
	)
	t := &view.Ticket
	if err := rows.Scan(
		&t.ID, &status, &vehicle, &payment, &t.Amount,
		&t.LotID, &t.PatronID, &t.KeeperID, &t.OwnerID, &t.TransactionID,
		&t.CreatedAt, &t.UpdatedAt, &t.CheckInAt, &t.CheckOutAt,
		&view.LotName, &view.LotAddress, &view.LotImageURL, &view.PatronName, &gross,
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
	if gross.Valid {
		view.TotalAmount = gross.Decimal
	}
	return &view, nil
}

// Monthly counts an owner's tickets per calendar month of year, in month order.
func (r *ReportRepository) Monthly(ctx context.Context, ownerID uuid.UUID, year int) ([]models.MonthlyCount, error) {
	const query = `
		SELECT to_char(created_at, 'FMMonth') AS month, COUNT(*)
		FROM parking_tickets
		WHERE owner_id = $1 AND EXTRACT(YEAR FROM created_at) = $2
		GROUP BY month
		ORDER BY MIN(created_at)`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, ownerID, year)
	if err != nil {
		return nil, fmt.Errorf("monthly rollup: %w", classify(err))
	}
	defer rows.Close()

	counts := []models.MonthlyCount{}
	for rows.Next() {
		var c models.MonthlyCount
		if err := rows.Scan(&c.Month, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return counts, nil
}

// Summary sums the gross amount of closed tickets created inside the range. A keeper
// filter only counts cash tickets.
func (r *ReportRepository) Summary(ctx context.Context, rng models.TimeRange, ownerID, keeperID *uuid.UUID) (*models.SettlementSummary, error) {
	w := &whereBuilder{}
	w.addRaw("t.status = 'closed'")
	w.add("t.created_at >= $%d", rng.Start)
	w.add("t.created_at <= $%d", rng.End)
	if ownerID != nil {
		w.add("t.owner_id = $%d", *ownerID)
	}
	if keeperID != nil {
		w.add("t.keeper_id = $%d", *keeperID)
		w.addRaw("t.payment = 'cash'")
	}

	query := `
		SELECT COALESCE(SUM(x.gross_amount), 0), COUNT(*)
		FROM parking_tickets t
		LEFT JOIN parking_transactions x ON x.id = t.transaction_id` + w.String()
	var sum models.SettlementSummary
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, w.args...).Scan(&sum.Sum, &sum.Count); err != nil {
		return nil, fmt.Errorf("summary rollup: %w", classify(err))
	}
	return &sum, nil
}
