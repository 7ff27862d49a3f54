package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"easypark/backend/services/parking-service/internal/models"
)

// AccountRepository reads user accounts owned by the identity service.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository returns repository.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindByID returns an account or ErrNotFound.
func (r *AccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	const query = `SELECT id, name, COALESCE(phone_number, ''), role, parking_lot_id FROM users WHERE id = $1`
	acc, err := scanAccount(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, classify(err)
	}
	return acc, nil
}

// FindByPatronKey looks an account up by the key printed on the patron's card,
// which is the phone number.
func (r *AccountRepository) FindByPatronKey(ctx context.Context, key string) (*models.Account, error) {
	const query = `SELECT id, name, COALESCE(phone_number, ''), role, parking_lot_id FROM users WHERE phone_number = $1`
	acc, err := scanAccount(conn(ctx, r.db).QueryRowContext(ctx, query, key))
	if err != nil {
		return nil, classify(err)
	}
	return acc, nil
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		acc   models.Account
		role  string
		lotID uuid.NullUUID
	)
	if err := row.Scan(&acc.ID, &acc.Name, &acc.PhoneNumber, &role, &lotID); err != nil {
		return nil, err
	}
	parsed, err := models.ParseRole(role)
	if err != nil {
		return nil, err
	}
	acc.Role = parsed
	if lotID.Valid {
		acc.LotID = &lotID.UUID
	}
	return &acc, nil
}
