package reports

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/atrium-bms/atrium/internal/platform/httpx"
	internalShared "github.com/atrium-bms/atrium/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
	tbGroup singleflight.Group
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reporting routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.TrialBalance)
	r.Get("/accounts/{id}/balance", h.AccountBalance)
	r.Get("/accounts/{id}/ledger", h.GeneralLedger)
}

type trialBalanceRow struct {
	AccountID uuid.UUID `json:"account_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Debit     string    `json:"debit"`
	Credit    string    `json:"credit"`
	Net       string    `json:"net"`
}

type trialBalanceGroupResponse struct {
	Key    string            `json:"key"`
	Rows   []trialBalanceRow `json:"rows"`
	Debit  string            `json:"debit"`
	Credit string            `json:"credit"`
}

type trialBalanceResponse struct {
	Groups      []trialBalanceGroupResponse `json:"groups"`
	TotalDebit  string                      `json:"total_debit"`
	TotalCredit string                      `json:"total_credit"`
}

func toTrialBalanceResponse(tb TrialBalance) trialBalanceResponse {
	out := trialBalanceResponse{
		Groups:      make([]trialBalanceGroupResponse, 0, len(tb.Groups)),
		TotalDebit:  tb.TotalDebit.StringFixed(2),
		TotalCredit: tb.TotalCredit.StringFixed(2),
	}
	for _, grp := range tb.Groups {
		g := trialBalanceGroupResponse{
			Key:    grp.Key,
			Debit:  grp.Debit.StringFixed(2),
			Credit: grp.Credit.StringFixed(2),
		}
		for _, row := range grp.Rows {
			g.Rows = append(g.Rows, trialBalanceRow{
				AccountID: row.AccountID,
				Code:      row.Code,
				Name:      row.Name,
				Debit:     row.Debit.StringFixed(2),
				Credit:    row.Credit.StringFixed(2),
				Net:       row.Net.StringFixed(2),
			})
		}
		out.Groups = append(out.Groups, g)
	}
	return out
}

// TrialBalance handles GET /reports/trial-balance?start=...&end=...
// Concurrent identical requests share one computation.
func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company scope required")
		return
	}
	start, end, err := parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	key := fmt.Sprintf("tb:%s:%s:%s", companyID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	resultChan := h.tbGroup.DoChan(key, func() (interface{}, error) {
		return h.service.TrialBalance(r.Context(), companyID, start, end)
	})
	select {
	case <-r.Context().Done():
		httpx.Problem(w, http.StatusRequestTimeout, "Request Timeout", r.Context().Err().Error())
	case res := <-resultChan:
		if res.Err != nil {
			h.logger.Error("trial balance", slog.Any("error", res.Err))
			httpx.DomainProblem(w, res.Err)
			return
		}
		httpx.JSON(w, http.StatusOK, toTrialBalanceResponse(res.Val.(TrialBalance)))
	}
}

func (h *Handler) AccountBalance(w http.ResponseWriter, r *http.Request) {
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
	asOf := time.Now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, err = time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "as_of must be YYYY-MM-DD")
			return
		}
	}
	rollUp := r.URL.Query().Get("roll_up") == "true"
	balance, err := h.service.AccountBalance(r.Context(), companyID, accountID, asOf, rollUp)
	if err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"as_of":      asOf.Format("2006-01-02"),
		"roll_up":    rollUp,
		"balance":    balance.StringFixed(2),
	})
}

type ledgerLineResponse struct {
	EntryID     uuid.UUID `json:"entry_id"`
	Date        string    `json:"date"`
	Number      string    `json:"number"`
	Description string    `json:"description,omitempty"`
	Debit       string    `json:"debit"`
	Credit      string    `json:"credit"`
}

func (h *Handler) GeneralLedger(w http.ResponseWriter, r *http.Request) {
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
	start, end, err := parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	cursor, err := h.service.GeneralLedger(r.Context(), companyID, accountID, start, end)
	if err != nil {
		httpx.DomainProblem(w, err)
		return
	}
	var lines []ledgerLineResponse
	for cursor.Next(r.Context()) {
		line := cursor.Line()
		lines = append(lines, ledgerLineResponse{
			EntryID:     line.EntryID,
			Date:        line.EntryDate.Format("2006-01-02"),
			Number:      line.EntryNumber,
			Description: line.Description,
			Debit:       line.Debit.StringFixed(2),
			Credit:      line.Credit.StringFixed(2),
		})
	}
	if err := cursor.Err(); err != nil {
		h.logger.Error("general ledger", slog.Any("error", err))
		httpx.DomainProblem(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", r.URL.Query().Get("start"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start must be YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", r.URL.Query().Get("end"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end before start")
	}
	return start, end, nil
}
