package service

import (
	"errors"

	"easypark/backend/services/parking-service/internal/repository"
)

var (
	// ErrInvalidParticipant means a role or lot assignment does not match the request.
	ErrInvalidParticipant = errors.New("service: invalid participant")
	// ErrConflictAlreadyIssued means the patron already holds a pending or active ticket.
	ErrConflictAlreadyIssued = errors.New("service: patron already holds an open ticket")
	// ErrUnknownTransaction means a callback refers to no known transaction.
	ErrUnknownTransaction = errors.New("service: unknown transaction")
	// ErrInvariantViolation means a ticket and its transaction are no longer paired.
	ErrInvariantViolation = errors.New("service: internal invariant violation")
	// ErrInvalidInput means the request itself is malformed.
	ErrInvalidInput = errors.New("service: invalid input")
	// ErrTicketClosed means the ticket can no longer be amended.
	ErrTicketClosed = errors.New("service: ticket is closed")

	ErrNotFound         = repository.ErrNotFound
	ErrStoreUnavailable = repository.ErrStoreUnavailable
)
