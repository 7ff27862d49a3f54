package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"easypark/backend/services/parking-service/internal/http/middleware"
	"easypark/backend/services/parking-service/internal/models"
)

// ReportHandlers serves /reports.
type ReportHandlers struct {
	reporter Reporter
	logger   *zap.Logger
}

func NewReportHandlers(reporter Reporter, logger *zap.Logger) *ReportHandlers {
	return &ReportHandlers{reporter: reporter, logger: logger}
}

// Monthly handles GET /reports/monthly. An owner may omit owner_id.
func (h *ReportHandlers) Monthly(w http.ResponseWriter, r *http.Request) {
	ownerID, err := optionalUUID(r.URL.Query(), "owner_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ownerID == nil {
		caller, ok := middleware.PrincipalFromContext(r.Context())
		if !ok || caller.Role != models.RoleOwner {
			writeError(w, http.StatusBadRequest, "owner_id is required")
			return
		}
		ownerID = &caller.UserID
	}

	rows, err := h.reporter.MonthlyRollup(r.Context(), *ownerID)
	if err != nil {
		writeServiceError(w, h.logger, "monthly rollup", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"months": rows})
}

// Summary handles GET /reports/summary.
func (h *ReportHandlers) Summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := optionalTime(q, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := optionalTime(q, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ownerID, err := optionalUUID(q, "owner_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	keeperID, err := optionalUUID(q, "keeper_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var rng models.TimeRange
	if start != nil {
		rng.Start = *start
	}
	if end != nil {
		rng.End = *end
	}
	summary, err := h.reporter.FilteredRollup(r.Context(), rng, ownerID, keeperID)
	if err != nil {
		writeServiceError(w, h.logger, "summary rollup", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
