package output

import (
	"context"
)

// TransactionManager groups repository writes into one unit.
// Repositories pick the transaction up from the context passed to fn.
type TransactionManager interface {
	// InTransaction runs fn in a transaction and rolls back when it returns an error
	InTransaction(ctx context.Context, fn func(txCtx context.Context) error) error

	// BeginTransaction starts a transaction the caller must finish
	BeginTransaction(ctx context.Context) (Transaction, error)
}

// Transaction represents an active transaction
type Transaction interface {
	Commit() error
	Rollback() error

	// Context returns a context carrying the transaction
	Context() context.Context
}
