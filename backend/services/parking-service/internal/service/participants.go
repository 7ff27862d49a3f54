package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"easypark/backend/services/parking-service/internal/models"
)

// PatronRef identifies a patron by id or by the key on their card.
type PatronRef struct {
	ID  uuid.UUID
	Key string
}

func (r PatronRef) String() string {
	if r.ID != uuid.Nil {
		return r.ID.String()
	}
	return "key:" + r.Key
}

// ParticipantValidator resolves and checks the accounts and lot named in a request.
type ParticipantValidator struct {
	accounts AccountDirectory
	lots     LotDirectory
}

func NewParticipantValidator(accounts AccountDirectory, lots LotDirectory) *ParticipantValidator {
	return &ParticipantValidator{accounts: accounts, lots: lots}
}

// Patron resolves ref and requires the patron role.
func (v *ParticipantValidator) Patron(ctx context.Context, ref PatronRef) (*models.Account, error) {
	var (
		acc *models.Account
		err error
	)
	switch {
	case ref.ID != uuid.Nil:
		acc, err = v.accounts.FindByID(ctx, ref.ID)
	case strings.TrimSpace(ref.Key) != "":
		acc, err = v.accounts.FindByPatronKey(ctx, strings.TrimSpace(ref.Key))
	default:
		return nil, fmt.Errorf("%w: patron id or key required", ErrInvalidInput)
	}
	if err != nil {
		return nil, participantErr("patron", ref.String(), err)
	}
	if acc.Role != models.RolePatron {
		return nil, fmt.Errorf("%w: account %s has role %s, want patron", ErrInvalidParticipant, acc.ID, acc.Role)
	}
	return acc, nil
}

// Keeper resolves the keeper and the lot and requires the keeper to be assigned there.
func (v *ParticipantValidator) Keeper(ctx context.Context, keeperID, lotID uuid.UUID) (*models.Account, *models.Lot, error) {
	keeper, err := v.accounts.FindByID(ctx, keeperID)
	if err != nil {
		return nil, nil, participantErr("keeper", keeperID.String(), err)
	}
	if keeper.Role != models.RoleKeeper {
		return nil, nil, fmt.Errorf("%w: account %s has role %s, want keeper", ErrInvalidParticipant, keeper.ID, keeper.Role)
	}

	lot, err := v.lots.FindByID(ctx, lotID)
	if err != nil {
		return nil, nil, participantErr("lot", lotID.String(), err)
	}
	if !keeper.AssignedTo(lot.ID) {
		return nil, nil, fmt.Errorf("%w: keeper %s is not assigned to lot %s", ErrInvalidParticipant, keeper.ID, lot.ID)
	}
	return keeper, lot, nil
}

// participantErr turns a lookup miss into ErrInvalidParticipant and passes store
// failures through.
func participantErr(kind, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s %s not found", ErrInvalidParticipant, kind, id)
	}
	return fmt.Errorf("resolve %s %s: %w", kind, id, err)
}
