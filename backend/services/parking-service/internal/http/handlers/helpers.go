package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"easypark/backend/services/parking-service/internal/gateway"
	"easypark/backend/services/parking-service/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the service error taxonomy onto status codes. Anything
// unrecognised is logged and reported as 500 without details.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidParticipant), errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrConflictAlreadyIssued), errors.Is(err, service.ErrTicketClosed):
		status = http.StatusConflict
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrUnknownTransaction):
		status = http.StatusNotFound
	case errors.Is(err, gateway.ErrInvalidSignature):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Error(err))
		writeError(w, status, "internal error")
		return
	}
	if status == http.StatusServiceUnavailable {
		logger.Warn(op+" failed: store unavailable", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func optionalUUID(q url.Values, key string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, errors.New(key + " must be a uuid")
	}
	return &id, nil
}

// optionalTime accepts RFC3339 timestamps and plain dates.
func optionalTime(q url.Values, key string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.New(key + " must be an RFC3339 timestamp or a date")
}

func optionalInt(q url.Values, key string) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}
