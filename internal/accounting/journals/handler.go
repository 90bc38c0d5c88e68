package journals

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atrium-bms/atrium/internal/platform/httpx"
	internalShared "github.com/atrium-bms/atrium/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type createEntryRequest struct {
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Type        string `json:"type" validate:"required,oneof=MANUAL AUTO ADJUSTMENT CLOSING"`
	Description string `json:"description" validate:"required,max=500"`
}

type addLineRequest struct {
	AccountID   string `json:"account_id" validate:"required,uuid"`
	Description string `json:"description" validate:"max=500"`
	Debit       string `json:"debit" validate:"omitempty"`
	Credit      string `json:"credit" validate:"omitempty"`
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type entryResponse struct {
	ID             uuid.UUID      `json:"id"`
	Number         string         `json:"number"`
	Date           string         `json:"date"`
	Type           EntryType      `json:"type"`
	Status         EntryStatus    `json:"status"`
	Description    string         `json:"description"`
	TotalAmount    string         `json:"total_amount"`
	ApprovedBy     *uuid.UUID     `json:"approved_by,omitempty"`
	PostedAt       *time.Time     `json:"posted_at,omitempty"`
	ReversedAt     *time.Time     `json:"reversed_at,omitempty"`
	ReversalReason string         `json:"reversal_reason,omitempty"`
	ReversalOfID   *uuid.UUID     `json:"reversal_of_id,omitempty"`
	Lines          []lineResponse `json:"lines,omitempty"`
}

type lineResponse struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"account_id"`
	Description string    `json:"description,omitempty"`
	Debit       string    `json:"debit"`
	Credit      string    `json:"credit"`
	LineOrder   int       `json:"line_order"`
}

func toEntryResponse(e JournalEntry) entryResponse {
	out := entryResponse{
		ID:             e.ID,
		Number:         e.Number,
		Date:           e.Date.Format("2006-01-02"),
		Type:           e.Type,
		Status:         e.Status,
		Description:    e.Description,
		TotalAmount:    e.TotalAmount.StringFixed(2),
		ApprovedBy:     e.ApprovedBy,
		PostedAt:       e.PostedAt,
		ReversedAt:     e.ReversedAt,
		ReversalReason: e.ReversalReason,
		ReversalOfID:   e.ReversalOfID,
	}
	for _, line := range e.Lines {
		out.Lines = append(out.Lines, lineResponse{
			ID:          line.ID,
			AccountID:   line.AccountID,
			Description: line.Description,
			Debit:       line.Debit.StringFixed(2),
			Credit:      line.Credit.StringFixed(2),
			LineOrder:   line.LineOrder,
		})
	}
	return out
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	entries, err := h.service.List(r.Context(), companyID)
	if err != nil {
		h.logger.Error("list journals", slog.Any("error", err))
		httpx.DomainProblem(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	entry, err := h.service.Get(r.Context(), entryID)
	if err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	var req createEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	date, _ := time.Parse("2006-01-02", req.Date)
	entry, err := h.service.CreateDraft(r.Context(), CreateEntryInput{
		CompanyID:   companyID,
		Date:        date,
		Type:        EntryType(req.Type),
		Description: req.Description,
		ActorID:     internalShared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	var req addLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	in := LineInput{
		AccountID:   uuid.MustParse(req.AccountID),
		Description: req.Description,
	}
	if in.Debit, err = parseAmount(req.Debit); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "invalid debit amount")
		return
	}
	if in.Credit, err = parseAmount(req.Credit); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "invalid credit amount")
		return
	}
	line, err := h.service.AddLine(r.Context(), entryID, internalShared.ActorFromContext(r.Context()), in)
	if err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lineResponse{
		ID:          line.ID,
		AccountID:   line.AccountID,
		Description: line.Description,
		Debit:       line.Debit.StringFixed(2),
		Credit:      line.Credit.StringFixed(2),
		LineOrder:   line.LineOrder,
	})
}

func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	lineID, err := uuid.Parse(chi.URLParam(r, "lineID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid line id")
		return
	}
	if err := h.service.RemoveLine(r.Context(), entryID, lineID, internalShared.ActorFromContext(r.Context())); err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Submit)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Post)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	reversal, err := h.service.Reverse(r.Context(), entryID, internalShared.ActorFromContext(r.Context()), req.Reason)
	if err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(reversal))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, entryID, actorID uuid.UUID) (JournalEntry, error)) {
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	entry, err := op(r.Context(), entryID, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
