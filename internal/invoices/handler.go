package invoices

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

// Handler manages invoice endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createInvoice)
	r.Get("/aging", h.aging)
	r.Get("/{id}", h.getInvoice)
	r.Post("/{id}/payments", h.addPayment)
}

type createInvoiceRequest struct {
	CustomerName    string  `json:"customerName" validate:"required"`
	LoadIDs         []int64 `json:"loadIds" validate:"required,min=1"`
	DueInDays       int     `json:"dueInDays" validate:"omitempty,min=0"`
	Factored        bool    `json:"factored"`
	FactoringFeePct float64 `json:"factoringFeePct" validate:"omitempty,gt=0,lt=100"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant header required")
		return
	}
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	inv, err := h.service.Create(r.Context(), tenant.ID, CreateInput{
		CustomerName:    req.CustomerName,
		LoadIDs:         req.LoadIDs,
		DueInDays:       req.DueInDays,
		Factored:        req.Factored,
		FactoringFeePct: req.FactoringFeePct,
	})
	if err != nil {
		h.logger.Error("create invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant header required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "invoice id must be numeric")
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), tenant.ID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

type addPaymentRequest struct {
	Amount float64   `json:"amount" validate:"required,gt=0"`
	Date   time.Time `json:"date"`
	Method string    `json:"method"`
}

func (h *Handler) addPayment(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant header required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "invoice id must be numeric")
		return
	}
	var req addPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	inv, err := h.service.AddPayment(r.Context(), tenant.ID, id, PaymentInput{
		Amount: req.Amount,
		Date:   req.Date,
		Method: req.Method,
	})
	if err != nil {
		h.logger.Error("add payment", slog.Any("error", err), slog.Int64("invoice_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant header required")
		return
	}
	buckets, err := h.service.Aging(r.Context(), tenant.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"buckets": buckets,
		"total":   buckets.Total(),
	})
}
