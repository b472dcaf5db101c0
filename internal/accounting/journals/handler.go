package journals

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes the journal engine over JSON.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler constructs the journals handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

type lineRequest struct {
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description" validate:"max=255"`
	PartyID     *int64          `json:"party_id" validate:"omitempty,gt=0"`
	StockType   string          `json:"stock_type" validate:"max=32"`
}

type entryRequest struct {
	Date          string        `json:"date" validate:"required,datetime=2006-01-02"`
	Type          string        `json:"type" validate:"omitempty,oneof=SALES PURCHASE PAYMENT RECEIPT ADJUSTMENT PAYROLL MANUAL"`
	ReferenceType string        `json:"reference_type" validate:"required_with=ReferenceID,max=48"`
	ReferenceID   *uuid.UUID    `json:"reference_id"`
	ReferenceNo   string        `json:"reference_no" validate:"max=64"`
	Description   string        `json:"description" validate:"required"`
	Notes         string        `json:"notes"`
	Lines         []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (req entryRequest) input(actorID int64) CreateEntryInput {
	date, _ := time.Parse(time.DateOnly, req.Date)
	in := CreateEntryInput{
		Date:          date,
		Type:          EntryType(req.Type),
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		ReferenceNo:   req.ReferenceNo,
		Description:   req.Description,
		Notes:         req.Notes,
		CreatedBy:     actorID,
		Lines:         make([]LineInput, 0, len(req.Lines)),
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, LineInput(line))
	}
	return in
}

type reverseRequest struct {
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description string `json:"description" validate:"max=255"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Type:          EntryType(q.Get("type")),
		ReferenceType: q.Get("reference_type"),
	}
	if raw := q.Get("posted"); raw != "" {
		posted, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, httpx.ValidationError("invalid posted flag"))
			return
		}
		filter.Posted = &posted
	}
	if raw := q.Get("reference_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, httpx.ValidationError("invalid reference_id"))
			return
		}
		filter.ReferenceID = &id
	}
	from, err := httpx.QueryDate(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.QueryDate(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !from.IsZero() {
		filter.From = &from
	}
	if !to.IsZero() {
		filter.To = &to
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	entries, err := h.service.ListEntries(r.Context(), filter)
	if err != nil {
		shared.WriteError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		shared.WriteError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeEntry(w, r)
	if !ok {
		return
	}
	entry, err := h.service.CreateEntry(r.Context(), req.input(httpx.ActorID(r)))
	if err != nil {
		shared.WriteError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, ok := h.decodeEntry(w, r)
	if !ok {
		return
	}
	entry, err := h.service.UpdateEntry(r.Context(), id, req.input(httpx.ActorID(r)))
	if err != nil {
		shared.WriteError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteEntry(r.Context(), id, httpx.ActorID(r)); err != nil {
		shared.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.PostEntry(r.Context(), id, httpx.ActorID(r))
	if err != nil {
		shared.WriteError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reverseRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.InvalidRequest(w, err)
		return
	}
	in := ReverseInput{EntryID: id, ActorID: httpx.ActorID(r), Description: req.Description}
	if req.Date != "" {
		date, _ := time.Parse(time.DateOnly, req.Date)
		in.Date = &date
	}
	entry, err := h.service.ReverseEntry(r.Context(), in)
	if err != nil {
		shared.WriteError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.ValidateEntry(r.Context(), id)
	if err != nil {
		shared.WriteError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) decodeEntry(w http.ResponseWriter, r *http.Request) (entryRequest, bool) {
	var req entryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return req, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.InvalidRequest(w, err)
		return req, false
	}
	return req, true
}
