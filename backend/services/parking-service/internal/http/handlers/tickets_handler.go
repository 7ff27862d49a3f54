package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"easypark/backend/services/parking-service/internal/http/middleware"
	"easypark/backend/services/parking-service/internal/models"
	"easypark/backend/services/parking-service/internal/service"
)

// Issuer is implemented by *service.TicketIssuer.
type Issuer interface {
	Issue(ctx context.Context, req service.IssueRequest) (*service.Issued, error)
	Amend(ctx context.Context, id uuid.UUID, req service.AmendRequest) (*models.Ticket, error)
}

// CashSettler is implemented by *service.CashCheckout.
type CashSettler interface {
	Settle(ctx context.Context, ticketID, keeperID uuid.UUID) (*service.Settlement, error)
}

// Reporter is implemented by *service.TicketReporter.
type Reporter interface {
	Query(ctx context.Context, f models.TicketFilter, page models.Page) (*service.TicketPage, error)
	ActiveTicket(ctx context.Context, patronID uuid.UUID) (*models.Ticket, error)
	MonthlyRollup(ctx context.Context, ownerID uuid.UUID) ([]models.MonthlyCount, error)
	FilteredRollup(ctx context.Context, rng models.TimeRange, ownerID, keeperID *uuid.UUID) (*models.SettlementSummary, error)
	Detail(ctx context.Context, id uuid.UUID) (*models.TicketDetail, error)
}

// TicketHandlers serves /tickets.
type TicketHandlers struct {
	issuer   Issuer
	cash     CashSettler
	reporter Reporter
	logger   *zap.Logger
}

func NewTicketHandlers(issuer Issuer, cash CashSettler, reporter Reporter, logger *zap.Logger) *TicketHandlers {
	return &TicketHandlers{issuer: issuer, cash: cash, reporter: reporter, logger: logger}
}

type issueRequest struct {
	PatronID    string `json:"patron_id"`
	PatronKey   string `json:"patron_key"`
	KeeperID    string `json:"keeper_id"`
	LotID       string `json:"parking_lot_id"`
	VehicleType string `json:"vehicle_type"`
	Payment     string `json:"payment"`
}

func (req issueRequest) toService(caller middleware.Principal) (service.IssueRequest, error) {
	var out service.IssueRequest
	var err error

	out.Patron.Key = req.PatronKey
	if s := strings.TrimSpace(req.PatronID); s != "" {
		if out.Patron.ID, err = uuid.Parse(s); err != nil {
			return out, errors.New("patron_id must be a uuid")
		}
	}

	switch s := strings.TrimSpace(req.KeeperID); {
	case s != "":
		if out.KeeperID, err = uuid.Parse(s); err != nil {
			return out, errors.New("keeper_id must be a uuid")
		}
	case caller.Role == models.RoleKeeper:
		out.KeeperID = caller.UserID
	default:
		return out, errors.New("keeper_id is required")
	}

	if out.LotID, err = uuid.Parse(strings.TrimSpace(req.LotID)); err != nil {
		return out, errors.New("parking_lot_id must be a uuid")
	}
	if out.VehicleClass, err = models.ParseVehicleClass(req.VehicleType); err != nil {
		return out, err
	}
	if out.PaymentMethod, err = models.ParsePaymentMethod(req.Payment); err != nil {
		return out, err
	}
	return out, nil
}

// Issue handles POST /tickets.
func (h *TicketHandlers) Issue(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.PrincipalFromContext(r.Context())

	var body issueRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req, err := body.toService(caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	issued, err := h.issuer.Issue(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "issue ticket", err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

// List handles GET /tickets. A patron only ever sees their own tickets.
func (h *TicketHandlers) List(w http.ResponseWriter, r *http.Request) {
	filter, page, err := parseTicketQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if caller, ok := middleware.PrincipalFromContext(r.Context()); ok && caller.Role == models.RolePatron {
		filter.PatronID = &caller.UserID
	}

	result, err := h.reporter.Query(r.Context(), filter, page)
	if err != nil {
		writeServiceError(w, h.logger, "query tickets", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseTicketQuery(r *http.Request) (models.TicketFilter, models.Page, error) {
	q := r.URL.Query()
	var (
		f    models.TicketFilter
		page models.Page
		err  error
	)
	if f.CreatedFrom, err = optionalTime(q, "created_from"); err != nil {
		return f, page, err
	}
	if f.CreatedTo, err = optionalTime(q, "created_to"); err != nil {
		return f, page, err
	}
	if f.PatronID, err = optionalUUID(q, "patron_id"); err != nil {
		return f, page, err
	}
	if f.KeeperID, err = optionalUUID(q, "keeper_id"); err != nil {
		return f, page, err
	}
	if f.OwnerID, err = optionalUUID(q, "owner_id"); err != nil {
		return f, page, err
	}
	if raw := q.Get("status"); raw != "" {
		status, err := models.ParseTicketStatus(raw)
		if err != nil {
			return f, page, err
		}
		f.Status = &status
	}
	if raw := q.Get("payment"); raw != "" {
		method, err := models.ParsePaymentMethod(raw)
		if err != nil {
			return f, page, err
		}
		f.PaymentMethod = &method
	}
	if page.Take, err = optionalInt(q, "take"); err != nil {
		return f, page, err
	}
	if page.Skip, err = optionalInt(q, "skip"); err != nil {
		return f, page, err
	}
	return f, page, nil
}

// Active handles GET /tickets/active. A patron caller only sees their own ticket;
// other callers name the patron with patron_id.
func (h *TicketHandlers) Active(w http.ResponseWriter, r *http.Request) {
	patronID, err := optionalUUID(r.URL.Query(), "patron_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if caller, ok := middleware.PrincipalFromContext(r.Context()); ok && caller.Role == models.RolePatron {
		patronID = &caller.UserID
	}
	if patronID == nil {
		writeError(w, http.StatusBadRequest, "patron_id is required")
		return
	}

	ticket, err := h.reporter.ActiveTicket(r.Context(), *patronID)
	if err != nil {
		writeServiceError(w, h.logger, "active ticket", err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// Detail handles GET /tickets/{id}.
func (h *TicketHandlers) Detail(w http.ResponseWriter, r *http.Request) {
	id, ok := ticketID(w, r)
	if !ok {
		return
	}
	detail, err := h.reporter.Detail(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "ticket detail", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type amendRequest struct {
	VehicleType *string `json:"vehicle_type"`
	Payment     *string `json:"payment"`
}

// Amend handles PATCH /tickets/{id}.
func (h *TicketHandlers) Amend(w http.ResponseWriter, r *http.Request) {
	id, ok := ticketID(w, r)
	if !ok {
		return
	}
	var body amendRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	var req service.AmendRequest
	if body.VehicleType != nil {
		class, err := models.ParseVehicleClass(*body.VehicleType)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.VehicleClass = &class
	}
	if body.Payment != nil {
		method, err := models.ParsePaymentMethod(*body.Payment)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.PaymentMethod = &method
	}

	ticket, err := h.issuer.Amend(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, h.logger, "amend ticket", err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// CashCheckout handles POST /tickets/{id}/cash-checkout. The caller is the keeper.
func (h *TicketHandlers) CashCheckout(w http.ResponseWriter, r *http.Request) {
	id, ok := ticketID(w, r)
	if !ok {
		return
	}
	caller, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing caller")
		return
	}

	settlement, err := h.cash.Settle(r.Context(), id, caller.UserID)
	if err != nil {
		writeServiceError(w, h.logger, "cash checkout", err)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}

func ticketID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "ticket id must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}
