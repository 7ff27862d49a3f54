package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"easypark/backend/services/parking-service/internal/gateway"
	"easypark/backend/services/parking-service/internal/http/middleware"
	"easypark/backend/services/parking-service/internal/models"
	"easypark/backend/services/parking-service/internal/service"
)

type fakeIssuer struct {
	req     service.IssueRequest
	amendID uuid.UUID
	amend   service.AmendRequest
	err     error
}

func (f *fakeIssuer) Issue(_ context.Context, req service.IssueRequest) (*service.Issued, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &service.Issued{Ticket: models.Ticket{ID: uuid.New(), PatronID: req.Patron.ID}}, nil
}

func (f *fakeIssuer) Amend(_ context.Context, id uuid.UUID, req service.AmendRequest) (*models.Ticket, error) {
	f.amendID, f.amend = id, req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Ticket{ID: id}, nil
}

type fakeCash struct {
	ticketID, keeperID uuid.UUID
	err                error
}

func (f *fakeCash) Settle(_ context.Context, ticketID, keeperID uuid.UUID) (*service.Settlement, error) {
	f.ticketID, f.keeperID = ticketID, keeperID
	if f.err != nil {
		return nil, f.err
	}
	return &service.Settlement{Closed: true}, nil
}

type fakeReporter struct {
	filter models.TicketFilter
	page   models.Page
	patron uuid.UUID
	owner  uuid.UUID
	rng    models.TimeRange
	keeper *uuid.UUID
	err    error
}

func (f *fakeReporter) Query(_ context.Context, filter models.TicketFilter, page models.Page) (*service.TicketPage, error) {
	f.filter, f.page = filter, page
	if f.err != nil {
		return nil, f.err
	}
	return &service.TicketPage{Items: []models.TicketView{}, Total: 0, Take: page.Take}, nil
}

func (f *fakeReporter) ActiveTicket(_ context.Context, patronID uuid.UUID) (*models.Ticket, error) {
	f.patron = patronID
	if f.err != nil {
		return nil, f.err
	}
	return &models.Ticket{PatronID: patronID}, nil
}

func (f *fakeReporter) MonthlyRollup(_ context.Context, ownerID uuid.UUID) ([]models.MonthlyCount, error) {
	f.owner = ownerID
	return []models.MonthlyCount{{Month: "March", Count: 3}}, f.err
}

func (f *fakeReporter) FilteredRollup(_ context.Context, rng models.TimeRange, ownerID, keeperID *uuid.UUID) (*models.SettlementSummary, error) {
	f.rng, f.keeper = rng, keeperID
	if f.err != nil {
		return nil, f.err
	}
	return &models.SettlementSummary{Sum: decimal.NewFromInt(15000), Count: 2}, nil
}

func (f *fakeReporter) Detail(_ context.Context, id uuid.UUID) (*models.TicketDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.TicketDetail{Ticket: models.Ticket{ID: id}}, nil
}

type fakeReconciler struct {
	cb  *gateway.Callback
	err error
}

func (f *fakeReconciler) Reconcile(_ context.Context, cb *gateway.Callback) (*service.Settlement, error) {
	f.cb = cb
	if f.err != nil {
		return nil, f.err
	}
	return &service.Settlement{Transaction: models.Transaction{ID: cb.OrderID}}, nil
}

func withCaller(r *http.Request, id uuid.UUID, role models.Role) *http.Request {
	return r.WithContext(middleware.WithPrincipal(r.Context(), middleware.Principal{UserID: id, Role: role}))
}

func serve(h http.HandlerFunc, pattern string, r *http.Request) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	router.HandleFunc(pattern, h)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	return rec
}

func TestWriteServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", service.ErrInvalidParticipant), http.StatusBadRequest},
		{service.ErrInvalidInput, http.StatusBadRequest},
		{service.ErrConflictAlreadyIssued, http.StatusConflict},
		{service.ErrTicketClosed, http.StatusConflict},
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrUnknownTransaction, http.StatusNotFound},
		{gateway.ErrInvalidSignature, http.StatusForbidden},
		{errors.Join(service.ErrStoreUnavailable, errors.New("dial tcp")), http.StatusServiceUnavailable},
		{service.ErrInvariantViolation, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeServiceError(rec, zap.NewNop(), "op", tc.err)
		if rec.Code != tc.want {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}

	rec := httptest.NewRecorder()
	writeServiceError(rec, zap.NewNop(), "op", errors.New("secret detail"))
	if strings.Contains(rec.Body.String(), "secret detail") {
		t.Fatalf("internal errors must not leak: %s", rec.Body.String())
	}
}

func TestIssueUsesCallerAsKeeper(t *testing.T) {
	issuer := &fakeIssuer{}
	h := NewTicketHandlers(issuer, &fakeCash{}, &fakeReporter{}, zap.NewNop())
	keeper, patron, lot := uuid.New(), uuid.New(), uuid.New()

	body := fmt.Sprintf(`{"patron_id":%q,"parking_lot_id":%q,"vehicle_type":"motor","payment":"qris"}`, patron, lot)
	req := withCaller(httptest.NewRequest(http.MethodPost, "/tickets", strings.NewReader(body)), keeper, models.RoleKeeper)
	rec := serve(h.Issue, "/tickets", req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := issuer.req
	if got.KeeperID != keeper || got.Patron.ID != patron || got.LotID != lot {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.VehicleClass != models.VehicleMotor || got.PaymentMethod != models.PaymentQR {
		t.Fatalf("enums not parsed: %+v", got)
	}
}

func TestIssueRejectsBadInput(t *testing.T) {
	h := NewTicketHandlers(&fakeIssuer{}, &fakeCash{}, &fakeReporter{}, zap.NewNop())
	lot := uuid.New()
	cases := map[string]string{
		"malformed json": `{`,
		"unknown field":  `{"ticket_status":"closed"}`,
		"no keeper":      fmt.Sprintf(`{"patron_key":"+62","parking_lot_id":%q}`, lot),
		"bad lot":        `{"patron_key":"+62","keeper_id":"` + uuid.NewString() + `","parking_lot_id":"x"}`,
		"bad vehicle":    fmt.Sprintf(`{"patron_key":"+62","keeper_id":%q,"parking_lot_id":%q,"vehicle_type":"truck"}`, uuid.New(), lot),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := withCaller(httptest.NewRequest(http.MethodPost, "/tickets", strings.NewReader(body)), uuid.New(), models.RoleOwner)
			if rec := serve(h.Issue, "/tickets", req); rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
		})
	}
}

func TestIssueConflict(t *testing.T) {
	h := NewTicketHandlers(&fakeIssuer{err: service.ErrConflictAlreadyIssued}, &fakeCash{}, &fakeReporter{}, zap.NewNop())
	body := fmt.Sprintf(`{"patron_key":"+62","keeper_id":%q,"parking_lot_id":%q}`, uuid.New(), uuid.New())
	req := httptest.NewRequest(http.MethodPost, "/tickets", strings.NewReader(body))
	if rec := serve(h.Issue, "/tickets", req); rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListParsesFiltersAndScopesPatrons(t *testing.T) {
	reporter := &fakeReporter{}
	h := NewTicketHandlers(&fakeIssuer{}, &fakeCash{}, reporter, zap.NewNop())
	owner := uuid.New()

	url := "/tickets?owner_id=" + owner.String() + "&status=closed&payment=cash&take=10&skip=20&created_from=2026-03-01&created_to=2026-03-31T23:59:59Z"
	req := withCaller(httptest.NewRequest(http.MethodGet, url, nil), owner, models.RoleOwner)
	rec := serve(h.List, "/tickets", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	f := reporter.filter
	if f.OwnerID == nil || *f.OwnerID != owner || f.PatronID != nil {
		t.Fatalf("owner filter not applied: %+v", f)
	}
	if f.Status == nil || *f.Status != models.TicketStatusClosed || f.PaymentMethod == nil || *f.PaymentMethod != models.PaymentCash {
		t.Fatalf("status or payment filter missing: %+v", f)
	}
	if f.CreatedFrom == nil || f.CreatedTo == nil || reporter.page != (models.Page{Take: 10, Skip: 20}) {
		t.Fatalf("range or page missing: %+v %+v", f, reporter.page)
	}

	patron := uuid.New()
	req = withCaller(httptest.NewRequest(http.MethodGet, "/tickets?patron_id="+uuid.NewString(), nil), patron, models.RolePatron)
	serve(h.List, "/tickets", req)
	if reporter.filter.PatronID == nil || *reporter.filter.PatronID != patron {
		t.Fatalf("patron callers must be scoped to themselves")
	}

	req = httptest.NewRequest(http.MethodGet, "/tickets?take=many", nil)
	if rec := serve(h.List, "/tickets", req); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad take: status = %d", rec.Code)
	}
}

func TestActiveScopesPatronCallers(t *testing.T) {
	reporter := &fakeReporter{}
	h := NewTicketHandlers(&fakeIssuer{}, &fakeCash{}, reporter, zap.NewNop())
	patron, other := uuid.New(), uuid.New()

	req := withCaller(httptest.NewRequest(http.MethodGet, "/tickets/active", nil), patron, models.RolePatron)
	if rec := serve(h.Active, "/tickets/active", req); rec.Code != http.StatusOK || reporter.patron != patron {
		t.Fatalf("status = %d patron = %s", rec.Code, reporter.patron)
	}

	req = withCaller(httptest.NewRequest(http.MethodGet, "/tickets/active?patron_id="+other.String(), nil), patron, models.RolePatron)
	if rec := serve(h.Active, "/tickets/active", req); rec.Code != http.StatusOK || reporter.patron != patron {
		t.Fatalf("patron read another patron's ticket: status = %d patron = %s", rec.Code, reporter.patron)
	}

	keeper := uuid.New()
	req = withCaller(httptest.NewRequest(http.MethodGet, "/tickets/active?patron_id="+other.String(), nil), keeper, models.RoleKeeper)
	if rec := serve(h.Active, "/tickets/active", req); rec.Code != http.StatusOK || reporter.patron != other {
		t.Fatalf("keeper lookup: status = %d patron = %s", rec.Code, reporter.patron)
	}

	req = withCaller(httptest.NewRequest(http.MethodGet, "/tickets/active", nil), keeper, models.RoleKeeper)
	if rec := serve(h.Active, "/tickets/active", req); rec.Code != http.StatusBadRequest {
		t.Fatalf("keeper without patron_id: status = %d", rec.Code)
	}

	reporter.err = service.ErrNotFound
	req = httptest.NewRequest(http.MethodGet, "/tickets/active?patron_id="+patron.String(), nil)
	if rec := serve(h.Active, "/tickets/active", req); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAmendAndDetail(t *testing.T) {
	issuer := &fakeIssuer{}
	h := NewTicketHandlers(issuer, &fakeCash{}, &fakeReporter{}, zap.NewNop())
	id := uuid.New()

	req := httptest.NewRequest(http.MethodPatch, "/tickets/"+id.String(), strings.NewReader(`{"payment":"cash"}`))
	rec := serve(h.Amend, "/tickets/{id}", req)
	if rec.Code != http.StatusOK || issuer.amendID != id {
		t.Fatalf("status = %d id = %s", rec.Code, issuer.amendID)
	}
	if issuer.amend.PaymentMethod == nil || *issuer.amend.PaymentMethod != models.PaymentCash || issuer.amend.VehicleClass != nil {
		t.Fatalf("unexpected amend: %+v", issuer.amend)
	}

	issuer.err = service.ErrTicketClosed
	req = httptest.NewRequest(http.MethodPatch, "/tickets/"+id.String(), strings.NewReader(`{"vehicle_type":"car"}`))
	if rec := serve(h.Amend, "/tickets/{id}", req); rec.Code != http.StatusConflict {
		t.Fatalf("closed ticket: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/tickets/not-a-uuid", nil)
	if rec := serve(h.Detail, "/tickets/{id}", req); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status = %d", rec.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/tickets/"+id.String(), nil)
	rec = serve(h.Detail, "/tickets/{id}", req)
	var detail models.TicketDetail
	if err := json.NewDecoder(rec.Body).Decode(&detail); err != nil || detail.Ticket.ID != id {
		t.Fatalf("detail = %+v, %v", detail, err)
	}
}

func TestCashCheckoutUsesCaller(t *testing.T) {
	cash := &fakeCash{}
	h := NewTicketHandlers(&fakeIssuer{}, cash, &fakeReporter{}, zap.NewNop())
	keeper, ticket := uuid.New(), uuid.New()

	req := withCaller(httptest.NewRequest(http.MethodPost, "/tickets/"+ticket.String()+"/cash-checkout", nil), keeper, models.RoleKeeper)
	rec := serve(h.CashCheckout, "/tickets/{id}/cash-checkout", req)
	if rec.Code != http.StatusOK || cash.keeperID != keeper || cash.ticketID != ticket {
		t.Fatalf("status = %d keeper = %s ticket = %s", rec.Code, cash.keeperID, cash.ticketID)
	}

	cash.err = service.ErrInvalidParticipant
	req = withCaller(httptest.NewRequest(http.MethodPost, "/tickets/"+ticket.String()+"/cash-checkout", nil), keeper, models.RoleKeeper)
	if rec := serve(h.CashCheckout, "/tickets/{id}/cash-checkout", req); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestReports(t *testing.T) {
	reporter := &fakeReporter{}
	h := NewReportHandlers(reporter, zap.NewNop())
	owner := uuid.New()

	req := withCaller(httptest.NewRequest(http.MethodGet, "/reports/monthly", nil), owner, models.RoleOwner)
	if rec := serve(h.Monthly, "/reports/monthly", req); rec.Code != http.StatusOK || reporter.owner != owner {
		t.Fatalf("monthly status = %d owner = %s", rec.Code, reporter.owner)
	}
	req = withCaller(httptest.NewRequest(http.MethodGet, "/reports/monthly", nil), uuid.New(), models.RoleKeeper)
	if rec := serve(h.Monthly, "/reports/monthly", req); rec.Code != http.StatusBadRequest {
		t.Fatalf("keeper without owner_id: status = %d", rec.Code)
	}

	keeper := uuid.New()
	req = httptest.NewRequest(http.MethodGet, "/reports/summary?start=2026-03-01&end=2026-03-31&keeper_id="+keeper.String(), nil)
	rec := serve(h.Summary, "/reports/summary", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rec.Code)
	}
	if reporter.keeper == nil || *reporter.keeper != keeper || reporter.rng.Start.Day() != 1 || reporter.rng.End.Day() != 31 {
		t.Fatalf("unexpected summary args: %+v %v", reporter.rng, reporter.keeper)
	}
	var summary models.SettlementSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil || !summary.Sum.Equal(decimal.NewFromInt(15000)) {
		t.Fatalf("summary = %+v, %v", summary, err)
	}

	reporter.err = service.ErrInvalidInput
	req = httptest.NewRequest(http.MethodGet, "/reports/summary", nil)
	if rec := serve(h.Summary, "/reports/summary", req); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing range: status = %d", rec.Code)
	}
}

func TestPaymentCallbackVerifiesSignature(t *testing.T) {
	reconciler := &fakeReconciler{}
	verifier := gateway.NewVerifier(gateway.Config{ServerKey: "server-key", VerifySignature: true})
	h := NewPaymentCallbackHandler(reconciler, verifier, zap.NewNop())

	sig := verifier.Sign("order-1", "200", "5000.00")
	body := fmt.Sprintf(`{"order_id":"order-1","status_code":"200","gross_amount":"5000.00","transaction_status":"settlement","signature_key":%q,"extra":"ignored"}`, sig)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payment/callback", strings.NewReader(body)))
	if rec.Code != http.StatusOK || reconciler.cb == nil || reconciler.cb.OrderID != "order-1" {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	reconciler.cb = nil
	forged := `{"order_id":"order-1","status_code":"200","gross_amount":"1.00","signature_key":"` + sig + `"}`
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payment/callback", strings.NewReader(forged)))
	if rec.Code != http.StatusForbidden || reconciler.cb != nil {
		t.Fatalf("forged callback: status = %d", rec.Code)
	}
}

func TestPaymentCallbackErrors(t *testing.T) {
	reconciler := &fakeReconciler{err: service.ErrUnknownTransaction}
	h := NewPaymentCallbackHandler(reconciler, gateway.NewVerifier(gateway.Config{}), zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payment/callback", strings.NewReader(`{"order_id":"x"}`)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown transaction: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payment/callback", strings.NewReader(`not json`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status = %d", rec.Code)
	}
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(fakePinger{})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	NewHealthHandler(fakePinger{err: errors.New("down")})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}
