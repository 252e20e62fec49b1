package physical

import (
	"context"
	"errors"

	"github.com/passgate/passgate/logger"
)

const (
	// DefaultParallelOperations is the default number of parallel
	// operations a backend permits before callers start queueing.
	DefaultParallelOperations = 128
)

var (
	// ErrValueTooLarge is returned when a value exceeds a backend's
	// configured maximum value size.
	ErrValueTooLarge = errors.New("put failed due to value being too large")
)

// Entry is the unit of storage: an opaque value at a slash-delimited key.
type Entry struct {
	Key   string
	Value []byte
}

// Storage is the contract every physical backend implements. Keys form a
// hierarchy delimited by "/"; List returns direct children of a prefix,
// with subtrees reported as "name/" entries.
//
// Get returns (nil, nil) when the key is absent. Delete of an absent key
// is not an error.
type Storage interface {
	Put(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, key string) (*Entry, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Factory is the function signature used to construct a storage backend
// from its configuration block.
type Factory func(conf map[string]string, log logger.Logger) (Storage, error)

// PermitPool is used to limit the number of concurrent operations
// against a backend.
type PermitPool struct {
	sem chan struct{}
}

// NewPermitPool returns a pool allowing up to permits concurrent holders.
func NewPermitPool(permits int) *PermitPool {
	if permits < 1 {
		permits = DefaultParallelOperations
	}
	return &PermitPool{
		sem: make(chan struct{}, permits),
	}
}

// Acquire blocks until a permit is available.
func (p *PermitPool) Acquire() {
	p.sem <- struct{}{}
}

// Release returns a permit to the pool.
func (p *PermitPool) Release() {
	<-p.sem
}

// CurrentPermits reports the number of permits currently held.
func (p *PermitPool) CurrentPermits() int {
	return len(p.sem)
}
