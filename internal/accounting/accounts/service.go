package accounts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atrium-bms/atrium/internal/accounting/shared"
	internalShared "github.com/atrium-bms/atrium/internal/shared"
)

// AuditPort records administrative chart-of-accounts changes.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service owns the chart of accounts and its hierarchy.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateAccountInput groups fields needed to register an account.
type CreateAccountInput struct {
	CompanyID   uuid.UUID
	Code        string
	Name        string
	Type        AccountType
	ParentID    *uuid.UUID
	Description string
	ActorID     uuid.UUID
}

// CreateAccount registers a new chart-of-accounts node. Codes are
// unique per company; the parent must be an active account of the same
// company and the chain up from it must terminate.
func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	if in.CompanyID == uuid.Nil {
		return Account{}, internalShared.ErrCompanyScopeMissing
	}
	if !in.Type.Valid() {
		return Account{}, fmt.Errorf("accounts: unknown type %q", in.Type)
	}
	if !ValidCode(in.Code, in.Type) {
		return Account{}, shared.ErrInvalidCode
	}
	if strings.TrimSpace(in.Name) == "" {
		return Account{}, fmt.Errorf("accounts: name required")
	}
	if in.ParentID != nil {
		parent, err := s.repo.GetByID(ctx, in.CompanyID, *in.ParentID)
		if err != nil {
			if errors.Is(err, shared.ErrAccountNotFound) {
				return Account{}, shared.ErrInvalidHierarchy
			}
			return Account{}, err
		}
		if !parent.IsActive || parent.Type != in.Type {
			return Account{}, shared.ErrInvalidHierarchy
		}
		if err := s.ensureChainTerminates(ctx, in.CompanyID, parent); err != nil {
			return Account{}, err
		}
	}
	account := Account{
		ID:          uuid.New(),
		CompanyID:   in.CompanyID,
		Code:        in.Code,
		Name:        in.Name,
		Type:        in.Type,
		ParentID:    in.ParentID,
		IsActive:    true,
		Description: in.Description,
	}
	inserted, err := s.repo.Insert(ctx, account)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.ActorID, "account.create", inserted.ID, map[string]any{"code": inserted.Code, "type": string(inserted.Type)})
	return inserted, nil
}

// Reparent moves an account under a new parent, rejecting moves that
// would introduce a cycle or cross companies.
func (s *Service) Reparent(ctx context.Context, companyID, accountID uuid.UUID, newParentID *uuid.UUID, actorID uuid.UUID) error {
	account, err := s.repo.GetByID(ctx, companyID, accountID)
	if err != nil {
		return err
	}
	if newParentID != nil {
		if *newParentID == accountID {
			return shared.ErrInvalidHierarchy
		}
		parent, err := s.repo.GetByID(ctx, companyID, *newParentID)
		if err != nil {
			if errors.Is(err, shared.ErrAccountNotFound) {
				return shared.ErrInvalidHierarchy
			}
			return err
		}
		if !parent.IsActive || parent.Type != account.Type {
			return shared.ErrInvalidHierarchy
		}
		// Walking up from the new parent must never meet the account
		// being moved, otherwise the chain would loop.
		cursor := parent
		for cursor.ParentID != nil {
			if *cursor.ParentID == accountID {
				return shared.ErrInvalidHierarchy
			}
			cursor, err = s.repo.GetByID(ctx, companyID, *cursor.ParentID)
			if err != nil {
				return err
			}
		}
	}
	if err := s.repo.SetParent(ctx, companyID, accountID, newParentID); err != nil {
		return err
	}
	s.record(ctx, actorID, "account.reparent", accountID, nil)
	return nil
}

// Deactivate retires an account. It fails while the account or any
// descendant still has active children or a nonzero posted balance.
func (s *Service) Deactivate(ctx context.Context, companyID, accountID uuid.UUID, actorID uuid.UUID) error {
	account, err := s.repo.GetByID(ctx, companyID, accountID)
	if err != nil {
		return err
	}
	subtree, err := s.Descendants(ctx, companyID, accountID)
	if err != nil {
		return err
	}
	for _, child := range subtree {
		if child.IsActive {
			return shared.ErrHasActivity
		}
	}
	ids := make([]uuid.UUID, 0, len(subtree)+1)
	ids = append(ids, account.ID)
	for _, child := range subtree {
		ids = append(ids, child.ID)
	}
	balance, err := s.repo.PostedBalance(ctx, ids)
	if err != nil {
		return err
	}
	if !balance.IsZero() {
		return shared.ErrHasActivity
	}
	if err := s.repo.SetActive(ctx, companyID, accountID, false); err != nil {
		return err
	}
	s.record(ctx, actorID, "account.deactivate", accountID, map[string]any{"code": account.Code})
	return nil
}

// IsPostable reports whether the account may receive journal lines.
// Only active leaf accounts are postable; balances roll up to parents
// instead of being recorded at multiple levels.
func (s *Service) IsPostable(ctx context.Context, companyID, accountID uuid.UUID) error {
	account, err := s.repo.GetByID(ctx, companyID, accountID)
	if err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			return shared.ErrUnknownAccount
		}
		return err
	}
	if !account.IsActive {
		return shared.ErrUnknownAccount
	}
	children, err := s.repo.ListChildren(ctx, companyID, accountID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.IsActive {
			return shared.ErrNotPostable
		}
	}
	return nil
}

// Descendants returns the full subtree below the account, breadth
// first. The visited set guards against a corrupted parent chain.
func (s *Service) Descendants(ctx context.Context, companyID, accountID uuid.UUID) ([]Account, error) {
	var out []Account
	visited := map[uuid.UUID]bool{accountID: true}
	queue := []uuid.UUID{accountID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		children, err := s.repo.ListChildren(ctx, companyID, current)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if visited[child.ID] {
				return nil, shared.ErrIntegrity
			}
			visited[child.ID] = true
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}
	return out, nil
}

// List returns the company chart of accounts ordered by code.
func (s *Service) List(ctx context.Context, companyID uuid.UUID) ([]Account, error) {
	return s.repo.List(ctx, companyID)
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, companyID, accountID uuid.UUID) (Account, error) {
	return s.repo.GetByID(ctx, companyID, accountID)
}

// SuggestCode proposes the next unused 4-digit code in the type range.
func (s *Service) SuggestCode(ctx context.Context, companyID uuid.UUID, t AccountType) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("accounts: unknown type %q", t)
	}
	prefix := string(codePrefix[t])
	max, err := s.repo.MaxCodeWithPrefix(ctx, companyID, prefix)
	if err != nil {
		return "", err
	}
	if max == "" {
		return prefix + "000", nil
	}
	n, err := strconv.Atoi(max)
	if err != nil {
		return "", fmt.Errorf("accounts: stored code %q not numeric: %w", max, err)
	}
	next := n + 1
	if !ValidCode(strconv.Itoa(next), t) {
		return "", fmt.Errorf("accounts: code range %sxxx exhausted", prefix)
	}
	return strconv.Itoa(next), nil
}

func (s *Service) ensureChainTerminates(ctx context.Context, companyID uuid.UUID, from Account) error {
	seen := map[uuid.UUID]bool{from.ID: true}
	cursor := from
	for cursor.ParentID != nil {
		next, err := s.repo.GetByID(ctx, companyID, *cursor.ParentID)
		if err != nil {
			return err
		}
		if seen[next.ID] {
			return shared.ErrInvalidHierarchy
		}
		seen[next.ID] = true
		cursor = next
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID uuid.UUID, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "account",
		EntityID: entityID.String(),
		Meta:     meta,
		At:       s.now(),
	})
}
