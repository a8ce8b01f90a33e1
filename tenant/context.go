package tenant

import "context"

// Scope is the identity under which a unit of work executes.
//
// It is an immutable value. A scope established for one unit of work can
// never be observed by another; propagation to child goroutines occurs only
// by passing the context that carries it, which snapshots the scope at spawn
// time.
type Scope struct {
	// TenantID is the identifier of the tenant that owns all data touched by
	// the unit of work. It is always non-empty in an established scope.
	TenantID string

	// UserID is the identifier of the acting user, if known.
	UserID string

	// CorrelationID relates all messages produced by the unit of work to its
	// original trigger, if known.
	CorrelationID string
}

type scopeKey struct{}

// With returns a context with s established as the current tenant scope.
//
// Any scope carried by ctx is shadowed for the returned context's lifetime
// and becomes visible again to code holding ctx, guaranteeing restoration on
// every exit path.
func With(ctx context.Context, s Scope) context.Context {
	if s.TenantID == "" {
		panic("tenant scope must have a tenant ID")
	}

	return context.WithValue(ctx, scopeKey{}, s)
}

// Current returns the scope established on ctx, if any.
func Current(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}

// ID returns the tenant ID established on ctx, if any.
func ID(ctx context.Context) (string, bool) {
	s, ok := Current(ctx)
	return s.TenantID, ok
}

// Require returns the scope established on ctx.
//
// It returns a MissingContextError if no scope is established. It is used by
// the storage engine and the projection runner to refuse operating without
// an explicit tenant, rather than defaulting to an implicit one.
func Require(ctx context.Context) (Scope, error) {
	if s, ok := Current(ctx); ok {
		return s, nil
	}

	return Scope{}, MissingContextError{}
}

// Run invokes fn with a scope for the given tenant established on its
// context.
//
// The scope exists only for fn's dynamic extent. The caller's context is
// unaffected regardless of how fn returns.
func Run(
	ctx context.Context,
	id string,
	fn func(ctx context.Context) error,
) error {
	return RunInScope(ctx, Scope{TenantID: id}, fn)
}

// RunInScope invokes fn with s established on its context.
func RunInScope(
	ctx context.Context,
	s Scope,
	fn func(ctx context.Context) error,
) error {
	return fn(With(ctx, s))
}
