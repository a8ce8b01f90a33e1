package tenant

// MissingContextError indicates that an operation that requires a tenant
// scope was invoked on a context that does not carry one.
//
// It is a programming error. The operation is refused outright; it is never
// retried and never falls back to a default tenant.
type MissingContextError struct{}

func (MissingContextError) Error() string {
	return "no tenant scope has been established on this context"
}
