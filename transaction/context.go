package transaction

import "context"

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const contextKeyTransaction contextKey = "strata:transaction"

// FromContext retrieves a caller-supplied transaction from the context.
func FromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(contextKeyTransaction).(*Transaction)
	return tx, ok
}

// WithContext returns a context carrying the transaction. Operations invoked
// with this context participate in it instead of opening their own, and never
// commit or roll it back.
func WithContext(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, contextKeyTransaction, tx)
}
