package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates a missing row.
	ErrNotFound = errors.New("repository: record not found")
	// ErrOpenTicketExists is raised by the one-open-ticket-per-patron index.
	ErrOpenTicketExists = errors.New("repository: patron already holds an open ticket")
	// ErrDuplicateKey is any other unique violation.
	ErrDuplicateKey = errors.New("repository: duplicate key")
	// ErrStoreUnavailable wraps connectivity, serialization and timeout failures.
	ErrStoreUnavailable = errors.New("repository: store unavailable")
)

const openTicketIndex = "parking_tickets_one_open_per_patron"

// classify maps driver errors onto the package sentinels, keeping the original
// error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505" && pgErr.ConstraintName == openTicketIndex:
			return errors.Join(ErrOpenTicketExists, err)
		case pgErr.Code == "23505":
			return errors.Join(ErrDuplicateKey, err)
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "40001",
			pgErr.Code == "40P01",
			pgErr.Code == "57P01",
			pgErr.Code == "57014":
			return errors.Join(ErrStoreUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.As(err, &netErr) {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return err
}
