package settlements

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/haulmont-ops/haulage-ledger/internal/platform/httpx"
	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

// Handler manages settlement endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers settlement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.runSettlement)
	r.Post("/preview", h.previewSettlement)
	r.Get("/{id}", h.getSettlement)
	r.Post("/{id}/status", h.updateStatus)
}

type runSettlementRequest struct {
	DriverID      int64          `json:"driverId" validate:"required"`
	LoadIDs       []int64        `json:"loadIds" validate:"required,min=1"`
	PeriodStart   time.Time      `json:"periodStart" validate:"required"`
	PeriodEnd     time.Time      `json:"periodEnd" validate:"required"`
	Deductions    Deductions     `json:"deductions"`
	OtherEarnings []OtherEarning `json:"otherEarnings"`
}

func (h *Handler) decodeRun(w http.ResponseWriter, r *http.Request) (shared.Tenant, RunInput, bool) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant header required")
		return shared.Tenant{}, RunInput{}, false
	}
	var req runSettlementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed JSON", err.Error())
		return shared.Tenant{}, RunInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return shared.Tenant{}, RunInput{}, false
	}
	return tenant, RunInput{
		DriverID:      req.DriverID,
		LoadIDs:       req.LoadIDs,
		PeriodStart:   req.PeriodStart,
		PeriodEnd:     req.PeriodEnd,
		Deductions:    req.Deductions,
		OtherEarnings: req.OtherEarnings,
	}, true
}

func (h *Handler) runSettlement(w http.ResponseWriter, r *http.Request) {
	tenant, input, ok := h.decodeRun(w, r)
	if !ok {
		return
	}
	result, err := h.service.Run(r.Context(), tenant.ID, input)
	if err != nil {
		h.logger.Error("run settlement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"settlement": result.Settlement,
		"warnings":   result.Warnings,
	})
}

func (h *Handler) previewSettlement(w http.ResponseWriter, r *http.Request) {
	tenant, input, ok := h.decodeRun(w, r)
	if !ok {
		return
	}
	calc, err := h.service.Preview(r.Context(), tenant.ID, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, calc)
}

func (h *Handler) getSettlement(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant header required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "settlement id must be numeric")
		return
	}
	settlement, err := h.service.GetSettlement(r.Context(), tenant.ID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settlement)
}

type settlementStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant header required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "settlement id must be numeric")
		return
	}
	var req settlementStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	settlement, err := h.service.UpdateStatus(r.Context(), tenant.ID, id, Status(req.Status))
	if err != nil {
		h.logger.Error("update settlement status", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settlement)
}
