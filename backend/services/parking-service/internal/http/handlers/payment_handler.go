package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"easypark/backend/services/parking-service/internal/gateway"
	"easypark/backend/services/parking-service/internal/service"
)

// Reconciler is implemented by *service.SettlementReconciler.
type Reconciler interface {
	Reconcile(ctx context.Context, cb *gateway.Callback) (*service.Settlement, error)
}

// SignatureVerifier is implemented by *gateway.Verifier.
type SignatureVerifier interface {
	Verify(cb *gateway.Callback) error
}

// PaymentCallbackHandler receives gateway notifications. The gateway retries on any
// non-2xx answer, so only permanent failures are reported as 4xx.
type PaymentCallbackHandler struct {
	reconciler Reconciler
	verifier   SignatureVerifier
	logger     *zap.Logger
}

func NewPaymentCallbackHandler(reconciler Reconciler, verifier SignatureVerifier, logger *zap.Logger) *PaymentCallbackHandler {
	return &PaymentCallbackHandler{reconciler: reconciler, verifier: verifier, logger: logger}
}

// ServeHTTP handles POST /payment/callback.
func (h *PaymentCallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var cb gateway.Callback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.verifier.Verify(&cb); err != nil {
		h.logger.Warn("callback signature rejected", zap.String("order_id", cb.OrderID))
		writeServiceError(w, h.logger, "payment callback", err)
		return
	}

	settlement, err := h.reconciler.Reconcile(r.Context(), &cb)
	if err != nil {
		writeServiceError(w, h.logger, "payment callback", err)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}
