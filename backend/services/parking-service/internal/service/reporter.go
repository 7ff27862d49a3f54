package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"easypark/backend/services/parking-service/internal/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// TicketPage is one page of a report query.
type TicketPage struct {
	Items []models.TicketView `json:"items"`
	Total int64               `json:"total"`
	Take  int                 `json:"take"`
	Skip  int                 `json:"skip"`
}

// TicketReporter serves read-only views over tickets.
type TicketReporter struct {
	tx           Transactor
	reports      ReportStore
	tickets      TicketStore
	transactions TransactionStore
	accounts     AccountDirectory
	lots         LotDirectory
	fare         FareCalculator
	now          func() time.Time
}

func NewTicketReporter(
	tx Transactor,
	reports ReportStore,
	tickets TicketStore,
	transactions TransactionStore,
	accounts AccountDirectory,
	lots LotDirectory,
) *TicketReporter {
	return &TicketReporter{
		tx:           tx,
		reports:      reports,
		tickets:      tickets,
		transactions: transactions,
		accounts:     accounts,
		lots:         lots,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// NormalizePage clamps take to (0, MaxPageSize] and skip to >= 0.
func NormalizePage(p models.Page) models.Page {
	if p.Take <= 0 {
		p.Take = DefaultPageSize
	}
	if p.Take > MaxPageSize {
		p.Take = MaxPageSize
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	return p
}

// Query returns a page of tickets and the total match count, both read from one
// snapshot. At most one participant filter applies: patron, then keeper, then owner.
func (r *TicketReporter) Query(ctx context.Context, f models.TicketFilter, page models.Page) (*TicketPage, error) {
	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedFrom.After(*f.CreatedTo) {
		return nil, fmt.Errorf("%w: created range is inverted", ErrInvalidInput)
	}
	f = scoped(f)
	page = NormalizePage(page)

	result := &TicketPage{Take: page.Take, Skip: page.Skip}
	err := r.tx.WithinSnapshot(ctx, func(ctx context.Context) error {
		total, err := r.reports.Count(ctx, f)
		if err != nil {
			return err
		}
		items, err := r.reports.Query(ctx, f, page)
		if err != nil {
			return err
		}
		result.Total, result.Items = total, items
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := r.now()
	for i := range result.Items {
		result.Items[i].ForecastAmount = r.fare.Forecast(&result.Items[i].Ticket, now)
	}
	return result, nil
}

// ActiveTicket returns the patron's oldest open ticket or ErrNotFound.
func (r *TicketReporter) ActiveTicket(ctx context.Context, patronID uuid.UUID) (*models.Ticket, error) {
	return r.tickets.FindOpenByPatron(ctx, patronID)
}

// MonthlyRollup counts the owner's tickets per month of the current year.
func (r *TicketReporter) MonthlyRollup(ctx context.Context, ownerID uuid.UUID) ([]models.MonthlyCount, error) {
	return r.reports.Monthly(ctx, ownerID, r.now().Year())
}

// FilteredRollup sums settled amounts of closed tickets created within rng. A keeper
// filter restricts the rollup to cash tickets handled by that keeper.
func (r *TicketReporter) FilteredRollup(ctx context.Context, rng models.TimeRange, ownerID, keeperID *uuid.UUID) (*models.SettlementSummary, error) {
	if rng.Start.IsZero() || rng.End.IsZero() {
		return nil, fmt.Errorf("%w: time range is required", ErrInvalidInput)
	}
	if rng.Start.After(rng.End) {
		return nil, fmt.Errorf("%w: time range is inverted", ErrInvalidInput)
	}
	return r.reports.Summary(ctx, rng, ownerID, keeperID)
}

// Detail resolves a ticket and every record it refers to.
func (r *TicketReporter) Detail(ctx context.Context, id uuid.UUID) (*models.TicketDetail, error) {
	detail := &models.TicketDetail{}
	err := r.tx.WithinSnapshot(ctx, func(ctx context.Context) error {
		ticket, err := r.tickets.GetByID(ctx, id)
		if err != nil {
			return err
		}
		tx, err := r.transactions.GetByID(ctx, ticket.TransactionID)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: ticket %s references missing transaction %s", ErrInvariantViolation, ticket.ID, ticket.TransactionID)
		}
		if err != nil {
			return err
		}
		lot, err := r.lots.FindByID(ctx, ticket.LotID)
		if err != nil {
			return fmt.Errorf("resolve lot %s: %w", ticket.LotID, err)
		}

		detail.Ticket, detail.Transaction, detail.Lot = *ticket, *tx, *lot
		for _, p := range []struct {
			id  uuid.UUID
			dst *models.Account
		}{
			{ticket.PatronID, &detail.Patron},
			{ticket.KeeperID, &detail.Keeper},
			{ticket.OwnerID, &detail.Owner},
		} {
			acc, err := r.accounts.FindByID(ctx, p.id)
			if err != nil {
				return fmt.Errorf("resolve account %s: %w", p.id, err)
			}
			*p.dst = *acc
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// scoped drops every participant filter but the one that takes precedence.
func scoped(f models.TicketFilter) models.TicketFilter {
	role, id, ok := f.Scope()
	f.PatronID, f.KeeperID, f.OwnerID = nil, nil, nil
	if !ok {
		return f
	}
	switch role {
	case models.RolePatron:
		f.PatronID = &id
	case models.RoleKeeper:
		f.KeeperID = &id
	case models.RoleOwner:
		f.OwnerID = &id
	}
	return f
}
