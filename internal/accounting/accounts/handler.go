package accounts

import (
	"log/slog"
	"net/http"

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

// MountRoutes registers chart-of-accounts routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/suggest-code", h.SuggestCode)
	r.Get("/{id}", h.Show)
	r.Get("/{id}/children", h.Children)
	r.Post("/{id}/reparent", h.Reparent)
	r.Post("/{id}/deactivate", h.Deactivate)
}

type createAccountRequest struct {
	Code        string `json:"code" validate:"required,min=4,max=10,numeric"`
	Name        string `json:"name" validate:"required,max=100"`
	Type        string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	ParentID    string `json:"parent_id" validate:"omitempty,uuid"`
	Description string `json:"description" validate:"max=500"`
}

type reparentRequest struct {
	ParentID string `json:"parent_id" validate:"omitempty,uuid"`
}

type accountResponse struct {
	ID          uuid.UUID   `json:"id"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Type        AccountType `json:"type"`
	ParentID    *uuid.UUID  `json:"parent_id,omitempty"`
	IsActive    bool        `json:"is_active"`
	Description string      `json:"description,omitempty"`
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{
		ID:          a.ID,
		Code:        a.Code,
		Name:        a.Name,
		Type:        a.Type,
		ParentID:    a.ParentID,
		IsActive:    a.IsActive,
		Description: a.Description,
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
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.DomainProblem(w, err)
		return
	}
	out := make([]accountResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	account, err := h.service.Get(r.Context(), companyID, accountID)
	if err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) Children(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	descendants, err := h.service.Descendants(r.Context(), companyID, accountID)
	if err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	out := make([]accountResponse, 0, len(descendants))
	for _, a := range descendants {
		out = append(out, toAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	in := CreateAccountInput{
		CompanyID:   companyID,
		Code:        req.Code,
		Name:        req.Name,
		Type:        AccountType(req.Type),
		Description: req.Description,
		ActorID:     internalShared.ActorFromContext(r.Context()),
	}
	if req.ParentID != "" {
		parentID, _ := uuid.Parse(req.ParentID)
		in.ParentID = &parentID
	}
	account, err := h.service.CreateAccount(r.Context(), in)
	if err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) Reparent(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	var req reparentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	var parentID *uuid.UUID
	if req.ParentID != "" {
		id, _ := uuid.Parse(req.ParentID)
		parentID = &id
	}
	actorID := internalShared.ActorFromContext(r.Context())
	if err := h.service.Reparent(r.Context(), companyID, accountID, parentID, actorID); err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	actorID := internalShared.ActorFromContext(r.Context())
	if err := h.service.Deactivate(r.Context(), companyID, accountID, actorID); err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SuggestCode(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	accountType := AccountType(r.URL.Query().Get("type"))
	if !accountType.Valid() {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "unknown account type")
		return
	}
	code, err := h.service.SuggestCode(r.Context(), companyID, accountType)
	if err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"code": code})
}
