package physical

import (
	"context"
	"errors"
)

var (
	ErrTransactionCommitFailure    = errors.New("transaction commit failed")
	ErrTransactionAlreadyCommitted = errors.New("transaction has been committed or rolled back")
)

// Transactional is an optional interface for backends that can apply a
// group of operations atomically, failing the commit if any key read or
// written inside the transaction was modified concurrently.
type Transactional interface {
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction is an interactive transaction handle. Either Commit or
// Rollback must be called to release resources.
type Transaction interface {
	Storage

	// Commit applies the buffered operations. A conflicting concurrent
	// write surfaces as ErrTransactionCommitFailure.
	Commit(ctx context.Context) error

	// Rollback discards the buffered operations.
	Rollback(ctx context.Context) error
}

// TransactionalStorage is implemented by backends supporting both direct
// operations and interactive transactions.
type TransactionalStorage interface {
	Storage
	Transactional
}
