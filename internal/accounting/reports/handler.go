package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes financial statements over JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the reports handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.TrialBalance)
	r.Get("/balance-sheet", h.BalanceSheet)
	r.Get("/balance-sheet/comparative", h.Comparative)
	r.Get("/profit-loss", h.ProfitAndLoss)
	r.Get("/ratios", h.Ratios)
}

func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := httpx.QueryDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), asOf)
	if err != nil {
		shared.WriteError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) BalanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := httpx.QueryDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), asOf)
	if err != nil {
		shared.WriteError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bs)
}

func (h *Handler) Comparative(w http.ResponseWriter, r *http.Request) {
	asOf, err := httpx.QueryDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	prior, err := httpx.QueryDate(r, "prior")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if prior.IsZero() {
		httpx.RespondError(w, httpx.ValidationError("prior date required"))
		return
	}
	cmp, err := h.service.ComparativeBalanceSheet(r.Context(), asOf, prior)
	if err != nil {
		shared.WriteError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cmp)
}

func (h *Handler) ProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	start, err := httpx.QueryDate(r, "start")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	end, err := httpx.QueryDate(r, "end")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if start.IsZero() {
		now := time.Now()
		start = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	pl, err := h.service.ProfitAndLoss(r.Context(), start, end)
	if err != nil {
		shared.WriteError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) Ratios(w http.ResponseWriter, r *http.Request) {
	asOf, err := httpx.QueryDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ratios, err := h.service.Ratios(r.Context(), asOf)
	if err != nil {
		shared.WriteError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ratios)
}
