package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"easypark/backend/services/parking-service/internal/models"
	redisstore "easypark/backend/services/parking-service/internal/redis"
)

// Transactor runs fn inside one store transaction. WithinSnapshot is read-only.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	WithinSnapshot(ctx context.Context, fn func(ctx context.Context) error) error
}

// TicketStore persists tickets.
type TicketStore interface {
	LockPatron(ctx context.Context, patronID uuid.UUID) error
	FindOpenByPatron(ctx context.Context, patronID uuid.UUID) (*models.Ticket, error)
	Create(ctx context.Context, ticket *models.Ticket) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	GetByTransaction(ctx context.Context, transactionID string) (*models.Ticket, error)
	UpdateOpen(ctx context.Context, id uuid.UUID, patch models.TicketPatch) (*models.Ticket, error)
	CloseByTransaction(ctx context.Context, transactionID string, at time.Time) (*models.Ticket, bool, error)
}

// TransactionStore persists gateway transactions.
type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	FindForCallback(ctx context.Context, orderID, gatewayID string) (*models.Transaction, error)
	Rename(ctx context.Context, oldID, newID string) error
	Merge(ctx context.Context, id string, patch models.TransactionPatch) (*models.Transaction, error)
}

// AccountDirectory reads accounts owned by the identity service.
type AccountDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindByPatronKey(ctx context.Context, key string) (*models.Account, error)
}

// LotDirectory reads parking lots.
type LotDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Lot, error)
}

// ReportStore serves read-only projections.
type ReportStore interface {
	Count(ctx context.Context, f models.TicketFilter) (int64, error)
	Query(ctx context.Context, f models.TicketFilter, page models.Page) ([]models.TicketView, error)
	Monthly(ctx context.Context, ownerID uuid.UUID, year int) ([]models.MonthlyCount, error)
	Summary(ctx context.Context, rng models.TimeRange, ownerID, keeperID *uuid.UUID) (*models.SettlementSummary, error)
}

// DeliveryLedger remembers committed callbacks.
type DeliveryLedger interface {
	Seen(ctx context.Context, digest string) (*redisstore.Delivery, bool, error)
	Remember(ctx context.Context, digest string, d redisstore.Delivery) error
	Forget(ctx context.Context, digest string) error
}
