package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"easypark/backend/services/parking-service/internal/models"
)

// LotRepository reads parking lots and their rate cards.
type LotRepository struct {
	db *sql.DB
}

// NewLotRepository returns repository.
func NewLotRepository(db *sql.DB) *LotRepository {
	return &LotRepository{db: db}
}

// FindByID returns a lot or ErrNotFound.
func (r *LotRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	const query = `
		SELECT id, area_name, address, COALESCE(image_url, ''), car_cost, motor_cost, owner_id
		FROM parking_lots
		WHERE id = $1`
	var lot models.Lot
	err := conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&lot.ID,
		&lot.AreaName,
		&lot.Address,
		&lot.ImageURL,
		&lot.CarRate,
		&lot.MotorRate,
		&lot.OwnerID,
	)
	if err != nil {
		return nil, classify(err)
	}
	return &lot, nil
}
