package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"easypark/backend/services/parking-service/internal/http/handlers"
	"easypark/backend/services/parking-service/internal/http/middleware"
	"easypark/backend/services/parking-service/internal/metrics"
)

// Routes groups handlers.
type Routes struct {
	Tickets         *handlers.TicketHandlers
	Reports         *handlers.ReportHandlers
	PaymentCallback http.Handler
	Health          http.HandlerFunc
	Metrics         http.Handler
}

// NewRouter registers endpoints. Ticket and report routes require a bearer token; the
// payment callback is authenticated by its signature instead.
func NewRouter(routes Routes, auth func(http.Handler) http.Handler, m *metrics.Metrics) http.Handler {
	r := mux.NewRouter()
	if m != nil {
		r.Use(middleware.Metrics(m))
	}

	r.HandleFunc("/health", routes.Health).Methods(http.MethodGet)
	if routes.Metrics != nil {
		r.Handle("/metrics", routes.Metrics).Methods(http.MethodGet)
	}
	r.Handle("/payment/callback", routes.PaymentCallback).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(auth)

	t := routes.Tickets
	api.HandleFunc("/tickets", t.Issue).Methods(http.MethodPost)
	api.HandleFunc("/tickets", t.List).Methods(http.MethodGet)
	api.HandleFunc("/tickets/active", t.Active).Methods(http.MethodGet)
	api.HandleFunc("/tickets/{id}", t.Detail).Methods(http.MethodGet)
	api.HandleFunc("/tickets/{id}", t.Amend).Methods(http.MethodPatch)
	api.HandleFunc("/tickets/{id}/cash-checkout", t.CashCheckout).Methods(http.MethodPost)

	api.HandleFunc("/reports/monthly", routes.Reports.Monthly).Methods(http.MethodGet)
	api.HandleFunc("/reports/summary", routes.Reports.Summary).Methods(http.MethodGet)

	return r
}
