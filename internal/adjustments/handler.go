package adjustments

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/haulmont-ops/haulage-ledger/internal/loads"
	"github.com/haulmont-ops/haulage-ledger/internal/platform/httpx"
	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

// Handler manages adjustment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers adjustment review routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}", h.getAdjustment)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
}

// MountLoadRoutes registers the load-scoped request/history routes.
func (h *Handler) MountLoadRoutes(r chi.Router) {
	r.Post("/{id}/adjustments", h.createAdjustment)
	r.Get("/{id}/adjustments", h.listByLoad)
}

type createAdjustmentRequest struct {
	Patch           loads.Patch `json:"patch"`
	Reason          string      `json:"reason"`
	RequestedBy     string      `json:"requestedBy" validate:"required"`
	RequireApproval *bool       `json:"requireApproval"`
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant header required")
		return
	}
	loadID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "load id must be numeric")
		return
	}
	var req createAdjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	adj, err := h.service.Create(r.Context(), tenant.ID, CreateInput{
		LoadID:          loadID,
		Patch:           req.Patch,
		Reason:          req.Reason,
		RequestedBy:     req.RequestedBy,
		RequireApproval: req.RequireApproval,
	})
	if err != nil {
		h.logger.Error("create adjustment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adj)
}

func (h *Handler) getAdjustment(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant header required")
		return
	}
	adj, err := h.service.GetAdjustment(r.Context(), tenant.ID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) listByLoad(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant header required")
		return
	}
	loadID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "load id must be numeric")
		return
	}
	list, err := h.service.ListByLoad(r.Context(), tenant.ID, loadID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

type reviewRequest struct {
	ReviewedBy string `json:"reviewedBy" validate:"required"`
	Note       string `json:"note"`
}

func (h *Handler) decodeReview(w http.ResponseWriter, r *http.Request) (shared.Tenant, reviewRequest, bool) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant header required")
		return shared.Tenant{}, reviewRequest{}, false
	}
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed JSON", err.Error())
		return shared.Tenant{}, reviewRequest{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return shared.Tenant{}, reviewRequest{}, false
	}
	return tenant, req, true
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	tenant, req, ok := h.decodeReview(w, r)
	if !ok {
		return
	}
	adj, err := h.service.Approve(r.Context(), tenant.ID, chi.URLParam(r, "id"), req.ReviewedBy, req.Note)
	if err != nil {
		h.logger.Error("approve adjustment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	tenant, req, ok := h.decodeReview(w, r)
	if !ok {
		return
	}
	adj, err := h.service.Reject(r.Context(), tenant.ID, chi.URLParam(r, "id"), req.ReviewedBy, req.Note)
	if err != nil {
		h.logger.Error("reject adjustment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}
