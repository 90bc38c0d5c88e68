package shared

import (
	"context"

	"github.com/google/uuid"
)

type companyContextKey struct{}

// ContextWithCompany stores the tenant company scope in context. Every
// ledger call is scoped to exactly one company; the HTTP layer resolves
// the scope before invoking services.
func ContextWithCompany(ctx context.Context, companyID uuid.UUID) context.Context {
	return context.WithValue(ctx, companyContextKey{}, companyID)
}

// CompanyFromContext extracts the tenant company scope from context.
func CompanyFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(companyContextKey{}).(uuid.UUID)
	return id, ok
}

type actorContextKey struct{}

// ContextWithActor stores the acting user for audit attribution.
func ContextWithActor(ctx context.Context, actorID uuid.UUID) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user, uuid.Nil when absent.
func ActorFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(actorContextKey{}).(uuid.UUID)
	return id
}
