package ar

import (
	"errors"
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

// MountRoutes registers receivable routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/aging", h.Aging)
	r.Post("/refresh-late-fees", h.RefreshLateFees)
	r.Get("/{id}", h.Show)
	r.Post("/{id}/payments", h.ApplyPayment)
	r.Post("/{id}/write-off", h.WriteOff)
	r.Get("/policies", h.ListPolicies)
	r.Post("/policies", h.CreatePolicy)
	r.Post("/policies/{id}/deactivate", h.DeactivatePolicy)
}

type paymentRequest struct {
	Amount      string `json:"amount" validate:"omitempty"`
	LateFeePaid string `json:"late_fee_paid" validate:"omitempty"`
	PaidAt      string `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
	Note        string `json:"note" validate:"max=500"`
}

type writeOffRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type createPolicyRequest struct {
	Name            string `json:"name" validate:"required,max=100"`
	GracePeriodDays int    `json:"grace_period_days" validate:"min=0,max=365"`
	Type            string `json:"type" validate:"required,oneof=PERCENTAGE FIXED DAILY_RATE"`
	Rate            string `json:"rate" validate:"omitempty"`
	FixedFee        string `json:"fixed_fee" validate:"omitempty"`
	MaxLateFee      string `json:"max_late_fee" validate:"omitempty"`
	EffectiveFrom   string `json:"effective_from" validate:"required,datetime=2006-01-02"`
	EffectiveTo     string `json:"effective_to" validate:"omitempty,datetime=2006-01-02"`
}

type receivableResponse struct {
	ID               uuid.UUID        `json:"id"`
	SourceRecordID   uuid.UUID        `json:"source_record_id"`
	OriginalAmount   string           `json:"original_amount"`
	Outstanding      string           `json:"outstanding_amount"`
	LateFee          string           `json:"late_fee"`
	TotalOutstanding string           `json:"total_outstanding"`
	DueDate          string           `json:"due_date"`
	LastPaymentDate  *string          `json:"last_payment_date,omitempty"`
	OverdueDays      int              `json:"overdue_days"`
	Status           ReceivableStatus `json:"status"`
	Description      string           `json:"description,omitempty"`
}

type agingSnapshotResponse struct {
	ReceivableID string `json:"receivable_id"`
	DueDate      string `json:"due_date"`
	Outstanding  string `json:"outstanding_amount"`
	LateFee      string `json:"late_fee"`
	Total        string `json:"total_outstanding"`
	OverdueDays  int    `json:"overdue_days"`
	Status       string `json:"status"`
}

func toReceivableResponse(rec Receivable, asOf time.Time) receivableResponse {
	out := receivableResponse{
		ID:               rec.ID,
		SourceRecordID:   rec.SourceRecordID,
		OriginalAmount:   rec.OriginalAmount.StringFixed(2),
		Outstanding:      rec.Outstanding.StringFixed(2),
		LateFee:          rec.LateFee.StringFixed(2),
		TotalOutstanding: rec.TotalOutstanding().StringFixed(2),
		DueDate:          rec.DueDate.Format("2006-01-02"),
		OverdueDays:      rec.OverdueDays(asOf),
		Status:           rec.Status,
		Description:      rec.Description,
	}
	if rec.LastPaymentDate != nil {
		v := rec.LastPaymentDate.Format("2006-01-02")
		out.LastPaymentDate = &v
	}
	return out
}

type policyResponse struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name"`
	GracePeriodDays int         `json:"grace_period_days"`
	Type            LateFeeType `json:"type"`
	Rate            string      `json:"rate"`
	FixedFee        string      `json:"fixed_fee"`
	MaxLateFee      *string     `json:"max_late_fee,omitempty"`
	IsActive        bool        `json:"is_active"`
	EffectiveFrom   string      `json:"effective_from"`
	EffectiveTo     *string     `json:"effective_to,omitempty"`
}

func toPolicyResponse(p LateFeePolicy) policyResponse {
	out := policyResponse{
		ID:              p.ID,
		Name:            p.Name,
		GracePeriodDays: p.GracePeriodDays,
		Type:            p.Type,
		Rate:            p.Rate.String(),
		FixedFee:        p.FixedFee.StringFixed(2),
		IsActive:        p.IsActive,
		EffectiveFrom:   p.EffectiveFrom.Format("2006-01-02"),
	}
	if p.MaxLateFee != nil {
		v := p.MaxLateFee.StringFixed(2)
		out.MaxLateFee = &v
	}
	if p.EffectiveTo != nil {
		v := p.EffectiveTo.Format("2006-01-02")
		out.EffectiveTo = &v
	}
	return out
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	var status *ReceivableStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := ReceivableStatus(raw)
		status = &s
	}
	asOf, err := parseAsOf(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	list, err := h.service.List(r.Context(), companyID, status)
	if err != nil {
		h.logger.Error("list receivables", slog.Any("error", err))
		h.domainProblem(w, err)
		return
	}
	out := make([]receivableResponse, 0, len(list))
	for _, rec := range list {
		out = append(out, toReceivableResponse(rec, asOf))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"receivables": out})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	receivableID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid receivable id")
		return
	}
	rec, err := h.service.Get(r.Context(), companyID, receivableID)
	if err != nil {
		h.domainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReceivableResponse(rec, time.Now().UTC()))
}

func (h *Handler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	receivableID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid receivable id")
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	in := PaymentInput{Note: req.Note}
	if in.Amount, err = parseAmount(req.Amount); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "invalid amount")
		return
	}
	if in.LateFeePaid, err = parseAmount(req.LateFeePaid); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "invalid late fee amount")
		return
	}
	if req.PaidAt != "" {
		in.PaidAt, _ = time.Parse("2006-01-02", req.PaidAt)
	}
	rec, err := h.service.ApplyPayment(r.Context(), companyID, receivableID,
		internalShared.ActorFromContext(r.Context()), in)
	if err != nil {
		h.domainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReceivableResponse(rec, time.Now().UTC()))
}

func (h *Handler) WriteOff(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	receivableID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid receivable id")
		return
	}
	var req writeOffRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	rec, err := h.service.WriteOff(r.Context(), companyID, receivableID,
		internalShared.ActorFromContext(r.Context()), req.Reason)
	if err != nil {
		h.domainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReceivableResponse(rec, time.Now().UTC()))
}

func (h *Handler) Aging(w http.ResponseWriter, r *http.Request) {
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
	report, err := h.service.Aging(r.Context(), companyID, asOf)
	if err != nil {
		h.logger.Error("receivable aging", slog.Any("error", err))
		h.domainProblem(w, err)
		return
	}
	snapshots := make([]agingSnapshotResponse, 0, len(report.Snapshots))
	for _, snap := range report.Snapshots {
		snapshots = append(snapshots, agingSnapshotResponse{
			ReceivableID: snap.ReceivableID.String(),
			DueDate:      snap.DueDate.Format("2006-01-02"),
			Outstanding:  snap.Outstanding.StringFixed(2),
			LateFee:      snap.LateFee.StringFixed(2),
			Total:        snap.Total.StringFixed(2),
			OverdueDays:  snap.OverdueDays,
			Status:       string(snap.Status),
		})
	}
	bucket := report.Buckets
	httpx.JSON(w, http.StatusOK, map[string]any{
		"as_of":       report.AsOf.Format("2006-01-02"),
		"receivables": snapshots,
		"current":     bucket.Current.StringFixed(2),
		"bucket_30":   bucket.Bucket30.StringFixed(2),
		"bucket_60":   bucket.Bucket60.StringFixed(2),
		"bucket_90":   bucket.Bucket90.StringFixed(2),
		"bucket_120":  bucket.Bucket120.StringFixed(2),
		"total":       bucket.Total().StringFixed(2),
	})
}

func (h *Handler) RefreshLateFees(w http.ResponseWriter, r *http.Request) {
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
	updated, err := h.service.RefreshLateFees(r.Context(), companyID, asOf)
	if err != nil {
		h.logger.Error("refresh late fees", slog.Any("error", err))
		h.domainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	policies, err := h.service.ListPolicies(r.Context(), companyID)
	if err != nil {
		h.domainProblem(w, err)
		return
	}
	out := make([]policyResponse, 0, len(policies))
	for _, p := range policies {
		out = append(out, toPolicyResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"policies": out})
}

func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	var req createPolicyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	in := PolicyInput{
		CompanyID:       companyID,
		Name:            req.Name,
		GracePeriodDays: req.GracePeriodDays,
		Type:            LateFeeType(req.Type),
	}
	var err error
	if in.Rate, err = parseAmount(req.Rate); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "invalid rate")
		return
	}
	if in.FixedFee, err = parseAmount(req.FixedFee); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "invalid fixed fee")
		return
	}
	if req.MaxLateFee != "" {
		maxFee, err := decimal.NewFromString(req.MaxLateFee)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "invalid max late fee")
			return
		}
		in.MaxLateFee = &maxFee
	}
	in.EffectiveFrom, _ = time.Parse("2006-01-02", req.EffectiveFrom)
	if req.EffectiveTo != "" {
		to, _ := time.Parse("2006-01-02", req.EffectiveTo)
		in.EffectiveTo = &to
	}
	policy, err := h.service.CreatePolicy(r.Context(), in)
	if err != nil {
		h.domainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPolicyResponse(policy))
}

func (h *Handler) DeactivatePolicy(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	policyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid policy id")
		return
	}
	if err := h.service.DeactivatePolicy(r.Context(), companyID, policyID); err != nil {
		h.domainProblem(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) domainProblem(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrReceivableNotFound), errors.Is(err, ErrPolicyNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadySettled), errors.Is(err, ErrDuplicateSource):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidPayment), errors.Is(err, ErrInvalidPolicy):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		httpx.DomainProblem(w, err)
	}
}

// parseAmount treats an empty string as zero.
func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
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
