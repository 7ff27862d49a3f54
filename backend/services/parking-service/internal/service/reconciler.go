package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"easypark/backend/services/parking-service/internal/gateway"
	"easypark/backend/services/parking-service/internal/metrics"
	"easypark/backend/services/parking-service/internal/models"
	redisstore "easypark/backend/services/parking-service/internal/redis"
	"easypark/backend/services/parking-service/internal/repository"
)

// Settlement is the state after a callback was applied.
type Settlement struct {
	Ticket      models.Ticket      `json:"parking_ticket"`
	Transaction models.Transaction `json:"transaction"`
	Renamed     bool               `json:"renamed"`
	Closed      bool               `json:"closed"`
	Duplicate   bool               `json:"duplicate"`
}

// SettlementReconciler applies payment gateway callbacks. Delivery is at-least-once
// and possibly reordered, so applying the same callback twice must leave the same
// state as applying it once.
type SettlementReconciler struct {
	tx           Transactor
	tickets      TicketStore
	transactions TransactionStore
	ledger       DeliveryLedger
	metrics      *metrics.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// NewSettlementReconciler builds reconciler. ledger and m may be nil.
func NewSettlementReconciler(
	tx Transactor,
	tickets TicketStore,
	transactions TransactionStore,
	ledger DeliveryLedger,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SettlementReconciler {
	return &SettlementReconciler{
		tx:           tx,
		tickets:      tickets,
		transactions: transactions,
		ledger:       ledger,
		metrics:      m,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile merges the callback into its transaction, renames the transaction to the
// gateway id when one is supplied, and closes the ticket once the payment settled.
func (r *SettlementReconciler) Reconcile(ctx context.Context, cb *gateway.Callback) (*Settlement, error) {
	patch, err := prepare(cb)
	if err != nil {
		return nil, err
	}
	digest := cb.Digest()

	if settlement, ok := r.replayed(ctx, digest); ok {
		r.metrics.Settled(metrics.SettlementDuplicate)
		r.logger.Debug("duplicate callback skipped",
			zap.String("order_id", cb.OrderID),
			zap.String("transaction_id", settlement.Transaction.ID),
		)
		return settlement, nil
	}

	var result *Settlement
	err = r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		result, err = r.apply(ctx, cb, patch)
		return err
	})
	if err != nil {
		r.failed(cb, err)
		return nil, err
	}

	r.remember(ctx, digest, cb, result)
	r.reconciled(cb, result)
	return result, nil
}

func prepare(cb *gateway.Callback) (models.TransactionPatch, error) {
	if err := cb.Validate(); err != nil {
		return models.TransactionPatch{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	patch, err := cb.Patch()
	if err != nil {
		return models.TransactionPatch{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return patch, nil
}

func (r *SettlementReconciler) failed(cb *gateway.Callback, err error) {
	if errors.Is(err, ErrUnknownTransaction) {
		r.metrics.Settled(metrics.SettlementUnknown)
		r.logger.Warn("callback for unknown transaction",
			zap.String("order_id", cb.OrderID),
			zap.String("gateway_transaction_id", cb.GatewayID()),
		)
		return
	}
	r.metrics.Settled(metrics.SettlementError)
}

func (r *SettlementReconciler) reconciled(cb *gateway.Callback, result *Settlement) {
	switch {
	case result.Closed:
		r.metrics.Settled(metrics.SettlementClosed)
	case result.Duplicate:
		r.metrics.Settled(metrics.SettlementDuplicate)
	default:
		r.metrics.Settled(metrics.SettlementMerged)
	}
	r.logger.Info("settlement reconciled",
		zap.String("order_id", cb.OrderID),
		zap.String("transaction_id", result.Transaction.ID),
		zap.String("ticket_id", result.Ticket.ID.String()),
		zap.String("transaction_status", result.Transaction.Status()),
		zap.Bool("closed", result.Closed),
		zap.Bool("duplicate", result.Duplicate),
	)
}

func (r *SettlementReconciler) apply(ctx context.Context, cb *gateway.Callback, patch models.TransactionPatch) (*Settlement, error) {
	current, err := r.transactions.FindForCallback(ctx, cb.OrderID, cb.GatewayID())
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: order %s", ErrUnknownTransaction, cb.OrderID)
	}
	if err != nil {
		return nil, err
	}

	result := &Settlement{}
	if gatewayID := cb.GatewayID(); gatewayID != "" && gatewayID != current.ID {
		if err := r.transactions.Rename(ctx, current.ID, gatewayID); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return nil, fmt.Errorf("%w: gateway id %s already bound to another transaction", ErrInvariantViolation, gatewayID)
			}
			return nil, err
		}
		r.logger.Info("transaction renamed",
			zap.String("from", current.ID),
			zap.String("to", gatewayID),
		)
		current.ID = gatewayID
		result.Renamed = true
	}

	// A late pending notification must not undo a final status.
	if !cb.IsFinal() && gateway.IsFinalStatus(current.Status()) {
		patch.TransactionStatus = nil
	}

	candidate := *current
	merged := patch.Apply(&candidate)
	if merged {
		if current, err = r.transactions.Merge(ctx, current.ID, patch); err != nil {
			return nil, err
		}
	}

	ticket, err := r.tickets.GetByTransaction(ctx, current.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: transaction %s has no ticket", ErrInvariantViolation, current.ID)
	}
	if err != nil {
		return nil, err
	}

	if ticket.Status.Open() && gateway.IsSettledStatus(current.Status(), value(current.FraudStatus)) {
		if !ticket.Status.CanTransitionTo(models.TicketStatusClosed) {
			return nil, fmt.Errorf("%w: ticket %s cannot close from %s", ErrInvariantViolation, ticket.ID, ticket.Status)
		}
		if ticket, result.Closed, err = r.tickets.CloseByTransaction(ctx, current.ID, r.now()); err != nil {
			return nil, err
		}
	}

	result.Ticket = *ticket
	result.Transaction = *current
	result.Duplicate = !result.Renamed && !merged && !result.Closed
	return result, nil
}

// replayed answers a delivery the ledger has already seen from the current store
// state. Any ledger or lookup failure falls back to the write path.
func (r *SettlementReconciler) replayed(ctx context.Context, digest string) (*Settlement, bool) {
	if r.ledger == nil {
		return nil, false
	}
	delivery, ok, err := r.ledger.Seen(ctx, digest)
	if err != nil {
		r.logger.Warn("delivery ledger lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	settlement := &Settlement{Duplicate: true}
	err = r.tx.WithinSnapshot(ctx, func(ctx context.Context) error {
		tx, err := r.transactions.GetByID(ctx, delivery.TransactionID)
		if err != nil {
			return err
		}
		ticket, err := r.tickets.GetByTransaction(ctx, tx.ID)
		if err != nil {
			return err
		}
		settlement.Transaction = *tx
		settlement.Ticket = *ticket
		return nil
	})
	if err != nil {
		r.logger.Warn("delivery ledger entry is stale", zap.String("transaction_id", delivery.TransactionID), zap.Error(err))
		if errors.Is(err, ErrNotFound) {
			if err := r.ledger.Forget(ctx, digest); err != nil {
				r.logger.Warn("failed to drop stale delivery", zap.Error(err))
			}
		}
		return nil, false
	}
	return settlement, true
}

func (r *SettlementReconciler) remember(ctx context.Context, digest string, cb *gateway.Callback, s *Settlement) {
	if r.ledger == nil {
		return
	}
	err := r.ledger.Remember(ctx, digest, redisstore.Delivery{
		OrderID:       cb.OrderID,
		TransactionID: s.Transaction.ID,
		Status:        s.Transaction.Status(),
		CommittedAt:   r.now(),
	})
	if err != nil {
		r.logger.Warn("failed to record delivery", zap.Error(err))
	}
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
