package repository

import (
	"context"
	"database/sql"
	"fmt"

	"easypark/backend/services/parking-service/internal/models"
)

const transactionColumns = `
	x.id, x.transaction_time, x.transaction_status, x.gateway_transaction_id,
	x.status_code, x.status_message, x.signature_key, x.settlement_time,
	x.payment_type, x.order_id, x.merchant_id, x.gross_amount,
	x.fraud_status, x.currency, x.created_at, x.updated_at`

// TransactionRepository persists gateway transactions.
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository returns repository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a transaction carrying only its id and initial status.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	const query = `
		INSERT INTO parking_transactions (id, transaction_status, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING created_at, updated_at`
	row := conn(ctx, r.db).QueryRowContext(ctx, query, tx.ID, tx.TransactionStatus)
	if err := row.Scan(&tx.CreatedAt, &tx.UpdatedAt); err != nil {
		return fmt.Errorf("insert transaction: %w", classify(err))
	}
	return nil
}

// GetByID returns one transaction or ErrNotFound.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	query := `SELECT` + transactionColumns + ` FROM parking_transactions x WHERE x.id = $1`
	tx, err := scanTransaction(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, classify(err)
	}
	return tx, nil
}

// FindForCallback resolves the transaction a gateway callback refers to. The order id
// is matched against the current id and the stored order_id, the gateway id against
// the current id. The row is held FOR UPDATE until the surrounding transaction ends.
func (r *TransactionRepository) FindForCallback(ctx context.Context, orderID, gatewayID string) (*models.Transaction, error) {
	query := `SELECT` + transactionColumns + `
		FROM parking_transactions x
		WHERE x.id = $1
		   OR ($2 <> '' AND x.id = $2)
		   OR x.order_id = $1
		ORDER BY (x.id = $1) DESC, (x.id = $2) DESC
		LIMIT 1
		FOR UPDATE`
	tx, err := scanTransaction(conn(ctx, r.db).QueryRowContext(ctx, query, orderID, gatewayID))
	if err != nil {
		return nil, classify(err)
	}
	return tx, nil
}

// Rename moves a transaction to a new id and rewrites the ticket reference. Both
// statements must run in the same transaction; the foreign key is checked at commit.
func (r *TransactionRepository) Rename(ctx context.Context, oldID, newID string) error {
	db := conn(ctx, r.db)

	res, err := db.ExecContext(ctx,
		`UPDATE parking_transactions SET id = $2, updated_at = NOW() WHERE id = $1`, oldID, newID)
	if err != nil {
		return fmt.Errorf("rename transaction: %w", classify(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if _, err := db.ExecContext(ctx,
		`UPDATE parking_tickets SET transaction_id = $2, updated_at = NOW() WHERE transaction_id = $1`, oldID, newID); err != nil {
		return fmt.Errorf("rename ticket reference: %w", classify(err))
	}
	return nil
}

// Merge coalesces the patch into the stored row: provided fields overwrite, absent
// fields keep their value.
func (r *TransactionRepository) Merge(ctx context.Context, id string, patch models.TransactionPatch) (*models.Transaction, error) {
	var gross any
	if patch.GrossAmount != nil {
		gross = *patch.GrossAmount
	}

	query := `
		UPDATE parking_transactions x SET
			transaction_time = COALESCE($2, x.transaction_time),
			transaction_status = COALESCE($3, x.transaction_status),
			gateway_transaction_id = COALESCE($4, x.gateway_transaction_id),
			status_code = COALESCE($5, x.status_code),
			status_message = COALESCE($6, x.status_message),
			signature_key = COALESCE($7, x.signature_key),
			settlement_time = COALESCE($8, x.settlement_time),
			payment_type = COALESCE($9, x.payment_type),
			order_id = COALESCE($10, x.order_id),
			merchant_id = COALESCE($11, x.merchant_id),
			gross_amount = COALESCE($12::numeric, x.gross_amount),
			fraud_status = COALESCE($13, x.fraud_status),
			currency = COALESCE($14, x.currency),
			updated_at = NOW()
		WHERE x.id = $1
		RETURNING` + transactionColumns
	tx, err := scanTransaction(conn(ctx, r.db).QueryRowContext(ctx, query,
		id,
		patch.TransactionTime,
		patch.TransactionStatus,
		patch.GatewayTransactionID,
		patch.StatusCode,
		patch.StatusMessage,
		patch.SignatureKey,
		patch.SettlementTime,
		patch.PaymentType,
		patch.OrderID,
		patch.MerchantID,
		gross,
		patch.FraudStatus,
		patch.Currency,
	))
	if err != nil {
		return nil, classify(err)
	}
	return tx, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	if err := row.Scan(
		&tx.ID,
		&tx.TransactionTime,
		&tx.TransactionStatus,
		&tx.GatewayTransactionID,
		&tx.StatusCode,
		&tx.StatusMessage,
		&tx.SignatureKey,
		&tx.SettlementTime,
		&tx.PaymentType,
		&tx.OrderID,
		&tx.MerchantID,
		&tx.GrossAmount,
		&tx.FraudStatus,
		&tx.Currency,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &tx, nil
}
