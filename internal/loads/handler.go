package loads

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/haulmont-ops/haulage-ledger/internal/platform/httpx"
	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

// Handler manages load endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers load routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createLoad)
	r.Get("/{id}", h.getLoad)
	r.Post("/{id}/status", h.updateStatus)
}

type createLoadRequest struct {
	CustomerName       string  `json:"customerName" validate:"required"`
	DriverID           int64   `json:"driverId"`
	Rate               float64 `json:"rate" validate:"gte=0"`
	Miles              float64 `json:"miles" validate:"gte=0"`
	Detention          float64 `json:"detention"`
	Layover            float64 `json:"layover"`
	Lumper             float64 `json:"lumper"`
	FuelSurcharge      float64 `json:"fuelSurcharge"`
	TONU               float64 `json:"tonu"`
	OtherAccessorial   float64 `json:"otherAccessorial"`
	DriverBasePay      float64 `json:"driverBasePay"`
	DriverDetentionPay float64 `json:"driverDetentionPay"`
	DriverLayoverPay   float64 `json:"driverLayoverPay"`
	Notes              string  `json:"notes"`
}

func (h *Handler) createLoad(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant header required")
		return
	}
	var req createLoadRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	load, err := h.service.CreateLoad(r.Context(), tenant.ID, CreateLoadInput{
		CustomerName: req.CustomerName,
		DriverID:     req.DriverID,
		Rate:         req.Rate,
		Miles:        req.Miles,
		Accessorials: Accessorials{
			Detention:     req.Detention,
			Layover:       req.Layover,
			Lumper:        req.Lumper,
			FuelSurcharge: req.FuelSurcharge,
			TONU:          req.TONU,
			Other:         req.OtherAccessorial,
		},
		DriverBasePay:      req.DriverBasePay,
		DriverDetentionPay: req.DriverDetentionPay,
		DriverLayoverPay:   req.DriverLayoverPay,
		Notes:              req.Notes,
	})
	if err != nil {
		h.logger.Error("create load", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, load)
}

func (h *Handler) getLoad(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant header required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "load id must be numeric")
		return
	}
	load, err := h.service.GetLoad(r.Context(), tenant.ID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, load)
}

type updateStatusRequest struct {
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
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "load id must be numeric")
		return
	}
	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	load, err := h.service.UpdateStatus(r.Context(), tenant.ID, id, Status(req.Status))
	if err != nil {
		h.logger.Error("update load status", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, load)
}
