package schedules

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

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

// MountRoutes registers schedule routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Show)
	r.Post("/{id}/deactivate", h.Deactivate)
	r.Get("/{id}/preview", h.Preview)
	r.Post("/{id}/generate", h.Generate)
	r.Post("/materialize", h.MaterializeDue)
	r.Get("/records", h.Records)
}

type createScheduleRequest struct {
	Kind      string `json:"kind" validate:"required,oneof=INCOME EXPENSE"`
	Name      string `json:"name" validate:"required,max=100"`
	Frequency string `json:"frequency" validate:"required,oneof=MONTHLY QUARTERLY SEMI_ANNUALLY ANNUALLY"`
	Interval  int    `json:"interval" validate:"omitempty,min=1,max=12"`
	Amount    string `json:"amount" validate:"required"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

type scheduleResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Kind               Kind       `json:"kind"`
	Name               string     `json:"name"`
	Frequency          Frequency  `json:"frequency"`
	Interval           int        `json:"interval"`
	Amount             string     `json:"amount"`
	StartDate          string     `json:"start_date"`
	EndDate            *string    `json:"end_date,omitempty"`
	NextGenerationDate string     `json:"next_generation_date"`
	LastGeneratedDate  *string    `json:"last_generated_date,omitempty"`
	IsActive           bool       `json:"is_active"`
}

func toScheduleResponse(s Schedule) scheduleResponse {
	out := scheduleResponse{
		ID:                 s.ID,
		Kind:               s.Kind,
		Name:               s.Name,
		Frequency:          s.Frequency,
		Interval:           s.IntervalValue,
		Amount:             s.Amount.StringFixed(2),
		StartDate:          s.StartDate.Format("2006-01-02"),
		NextGenerationDate: s.NextGenerationDate.Format("2006-01-02"),
		IsActive:           s.IsActive,
	}
	if s.EndDate != nil {
		v := s.EndDate.Format("2006-01-02")
		out.EndDate = &v
	}
	if s.LastGeneratedDate != nil {
		v := s.LastGeneratedDate.Format("2006-01-02")
		out.LastGeneratedDate = &v
	}
	return out
}

type recordResponse struct {
	ID             uuid.UUID    `json:"id"`
	ScheduleID     uuid.UUID    `json:"schedule_id"`
	Kind           Kind         `json:"kind"`
	GenerationDate string       `json:"generation_date"`
	DueDate        string       `json:"due_date"`
	Amount         string       `json:"amount"`
	Description    string       `json:"description"`
	Status         RecordStatus `json:"status"`
}

func toRecordResponse(rec GeneratedRecord) recordResponse {
	return recordResponse{
		ID:             rec.ID,
		ScheduleID:     rec.ScheduleID,
		Kind:           rec.Kind,
		GenerationDate: rec.GenerationDate.Format("2006-01-02"),
		DueDate:        rec.DueDate.Format("2006-01-02"),
		Amount:         rec.Amount.StringFixed(2),
		Description:    rec.Description,
		Status:         rec.Status,
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	list, err := h.service.List(r.Context(), companyID)
	if err != nil {
		h.logger.Error("list schedules", slog.Any("error", err))
		h.domainProblem(w, err)
		return
	}
	out := make([]scheduleResponse, 0, len(list))
	for _, s := range list {
		out = append(out, toScheduleResponse(s))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"schedules": out})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid schedule id")
		return
	}
	schedule, err := h.service.Get(r.Context(), scheduleID)
	if err != nil {
		h.domainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toScheduleResponse(schedule))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	var req createScheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	start, _ := time.Parse("2006-01-02", req.StartDate)
	in := CreateScheduleInput{
		CompanyID:     companyID,
		Kind:          Kind(req.Kind),
		Name:          req.Name,
		Frequency:     Frequency(req.Frequency),
		IntervalValue: req.Interval,
		Amount:        req.Amount,
		StartDate:     start,
		ActorID:       internalShared.ActorFromContext(r.Context()),
	}
	if req.EndDate != "" {
		end, _ := time.Parse("2006-01-02", req.EndDate)
		in.EndDate = &end
	}
	schedule, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.domainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toScheduleResponse(schedule))
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid schedule id")
		return
	}
	if err := h.service.Deactivate(r.Context(), scheduleID, internalShared.ActorFromContext(r.Context())); err != nil {
		h.domainProblem(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid schedule id")
		return
	}
	asOf, err := parseAsOf(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	preview, err := h.service.PreviewGeneration(r.Context(), scheduleID, asOf)
	if err != nil {
		h.domainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid schedule id")
		return
	}
	asOf, err := parseAsOf(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	record, err := h.service.Generate(r.Context(), scheduleID, asOf)
	if err != nil {
		h.domainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRecordResponse(record))
}

func (h *Handler) MaterializeDue(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	asOf, err := parseAsOf(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	generated, err := h.service.MaterializeDue(r.Context(), companyID, asOf)
	if err != nil {
		h.logger.Error("materialize due", slog.Any("error", err))
		h.domainProblem(w, err)
		return
	}
	out := make([]recordResponse, 0, len(generated))
	for _, rec := range generated {
		out = append(out, toRecordResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"generated": out})
}

func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	scheduleID := uuid.Nil
	if raw := r.URL.Query().Get("schedule_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid schedule id")
			return
		}
		scheduleID = id
	}
	records, err := h.service.ListRecords(r.Context(), companyID, scheduleID)
	if err != nil {
		h.domainProblem(w, err)
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"records": out})
}

func (h *Handler) domainProblem(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrScheduleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNotDue), errors.Is(err, ErrAlreadyGenerated):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidSchedule):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		httpx.DomainProblem(w, err)
	}
}

func parseAsOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	asOf, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New("as_of must be YYYY-MM-DD")
	}
	return asOf, nil
}
