package periods

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atrium-bms/atrium/internal/platform/httpx"
	internalShared "github.com/atrium-bms/atrium/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers financial period routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.ListYear)
	r.Post("/ensure-year", h.EnsureYear)
	r.Get("/{id}", h.Show)
	r.Post("/{id}/close", h.Close)
	r.Post("/{id}/lock", h.Lock)
	r.Post("/{id}/reopen", h.Reopen)
}

type periodResponse struct {
	ID         uuid.UUID    `json:"id"`
	FiscalYear int          `json:"fiscal_year"`
	PeriodNo   int          `json:"period_no"`
	StartDate  string       `json:"start_date"`
	EndDate    string       `json:"end_date"`
	Status     PeriodStatus `json:"status"`
	ClosedAt   *time.Time   `json:"closed_at,omitempty"`
	ClosedBy   *uuid.UUID   `json:"closed_by,omitempty"`
}

func toPeriodResponse(p Period) periodResponse {
	return periodResponse{
		ID:         p.ID,
		FiscalYear: p.FiscalYear,
		PeriodNo:   p.PeriodNo,
		StartDate:  p.StartDate.Format("2006-01-02"),
		EndDate:    p.EndDate.Format("2006-01-02"),
		Status:     p.Status,
		ClosedAt:   p.ClosedAt,
		ClosedBy:   p.ClosedBy,
	}
}

func (h *Handler) ListYear(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	year, err := parseYear(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	list, err := h.service.ListYear(r.Context(), companyID, year)
	if err != nil {
		h.logger.Error("list periods", slog.Any("error", err))
		httpx.DomainProblem(w, err)
		return
	}
	out := make([]periodResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fiscal_year": year, "periods": out})
}

func (h *Handler) EnsureYear(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	year, err := parseYear(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	created, err := h.service.EnsureYear(r.Context(), companyID, year)
	if err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	out := make([]periodResponse, 0, len(created))
	for _, p := range created {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fiscal_year": year, "periods": out})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	periodID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	period, err := h.service.Get(r.Context(), periodID)
	if err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Close)
}

func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Lock)
}

func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reopen)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, periodID, actorID uuid.UUID) error) {
	periodID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	actorID := internalShared.ActorFromContext(r.Context())
	if err := op(r.Context(), periodID, actorID); err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	period, err := h.service.Get(r.Context(), periodID)
	if err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func parseYear(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("fiscal_year")
	if raw == "" {
		return time.Now().UTC().Year(), nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1900 || year > 9999 {
		return 0, errInvalidYear
	}
	return year, nil
}

var errInvalidYear = errors.New("fiscal_year must be a four digit year")
