package inmem

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/armon/go-radix"
	"github.com/passgate/passgate/logger"
	"github.com/passgate/passgate/physical"
)

// Verify interfaces are satisfied
var (
	_ physical.Storage              = (*InmemStorage)(nil)
	_ physical.TransactionalStorage = (*TransactionalInmemStorage)(nil)
	_ physical.Transaction          = (*InmemTransaction)(nil)
)

var (
	ErrPutDisabled    = errors.New("put operations disabled in inmem storage")
	ErrGetDisabled    = errors.New("get operations disabled in inmem storage")
	ErrDeleteDisabled = errors.New("delete operations disabled in inmem storage")
	ErrListDisabled   = errors.New("list operations disabled in inmem storage")
)

// InmemStorage is an in-memory only Storage. It is useful for testing and
// development situations where the data is not expected to be durable.
// Individual operation classes can be forced to fail, which tests use to
// exercise infrastructure-error paths.
type InmemStorage struct {
	sync.RWMutex
	root         *radix.Tree
	permitPool   *physical.PermitPool
	logger       logger.Logger
	failGet      *uint32
	failPut      *uint32
	failDelete   *uint32
	failList     *uint32
	maxValueSize int
}

// TransactionalInmemStorage adds interactive transactions on top of
// InmemStorage.
type TransactionalInmemStorage struct {
	InmemStorage
}

// NewInmem constructs a new transactional in-memory storage.
func NewInmem(conf map[string]string, log logger.Logger) (physical.Storage, error) {
	maxValueSize := 0
	if raw, ok := conf["max_value_size"]; ok {
		var err error
		maxValueSize, err = strconv.Atoi(raw)
		if err != nil {
			return nil, err
		}
	}

	s := &TransactionalInmemStorage{InmemStorage{
		root:         radix.New(),
		permitPool:   physical.NewPermitPool(physical.DefaultParallelOperations),
		logger:       log,
		failGet:      new(uint32),
		failPut:      new(uint32),
		failDelete:   new(uint32),
		failList:     new(uint32),
		maxValueSize: maxValueSize,
	}}

	if conf["disable_transactions"] == "true" {
		return &s.InmemStorage, nil
	}
	return s, nil
}

// Put is used to insert or update an entry
func (i *InmemStorage) Put(ctx context.Context, entry *physical.Entry) error {
	i.permitPool.Acquire()
	defer i.permitPool.Release()

	i.Lock()
	defer i.Unlock()

	return i.putInternal(ctx, entry)
}

func (i *InmemStorage) putInternal(ctx context.Context, entry *physical.Entry) error {
	if atomic.LoadUint32(i.failPut) != 0 {
		return ErrPutDisabled
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if i.maxValueSize > 0 && len(entry.Value) > i.maxValueSize {
		return physical.ErrValueTooLarge
	}

	value := make([]byte, len(entry.Value))
	copy(value, entry.Value)
	i.root.Insert(entry.Key, value)
	return nil
}

func (i *InmemStorage) FailPut(fail bool) {
	var val uint32
	if fail {
		val = 1
	}
	atomic.StoreUint32(i.failPut, val)
}

// Get is used to fetch an entry
func (i *InmemStorage) Get(ctx context.Context, key string) (*physical.Entry, error) {
	i.permitPool.Acquire()
	defer i.permitPool.Release()

	i.RLock()
	defer i.RUnlock()

	return i.getInternal(ctx, key)
}

func (i *InmemStorage) getInternal(ctx context.Context, key string) (*physical.Entry, error) {
	if atomic.LoadUint32(i.failGet) != 0 {
		return nil, ErrGetDisabled
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	raw, ok := i.root.Get(key)
	if !ok {
		return nil, nil
	}
	stored := raw.([]byte)
	value := make([]byte, len(stored))
	copy(value, stored)
	return &physical.Entry{
		Key:   key,
		Value: value,
	}, nil
}

func (i *InmemStorage) FailGet(fail bool) {
	var val uint32
	if fail {
		val = 1
	}
	atomic.StoreUint32(i.failGet, val)
}

// Delete is used to permanently delete an entry. Deleting an absent key
// is not an error.
func (i *InmemStorage) Delete(ctx context.Context, key string) error {
	i.permitPool.Acquire()
	defer i.permitPool.Release()

	i.Lock()
	defer i.Unlock()

	return i.deleteInternal(ctx, key)
}

func (i *InmemStorage) deleteInternal(ctx context.Context, key string) error {
	if atomic.LoadUint32(i.failDelete) != 0 {
		return ErrDeleteDisabled
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	i.root.Delete(key)
	return nil
}

func (i *InmemStorage) FailDelete(fail bool) {
	var val uint32
	if fail {
		val = 1
	}
	atomic.StoreUint32(i.failDelete, val)
}

// List is used to list all the keys under a given prefix, up to the next
// prefix.
func (i *InmemStorage) List(ctx context.Context, prefix string) ([]string, error) {
	i.permitPool.Acquire()
	defer i.permitPool.Release()

	i.RLock()
	defer i.RUnlock()

	return i.listInternal(ctx, prefix)
}

func (i *InmemStorage) listInternal(ctx context.Context, prefix string) ([]string, error) {
	if atomic.LoadUint32(i.failList) != 0 {
		return nil, ErrListDisabled
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var out []string
	seen := make(map[string]struct{})
	i.root.WalkPrefix(prefix, func(s string, v interface{}) bool {
		trimmed := strings.TrimPrefix(s, prefix)
		if sep := strings.Index(trimmed, "/"); sep != -1 {
			// Keep the trailing slash to distinguish subtrees from keys.
			trimmed = trimmed[:sep+1]
		}
		if _, ok := seen[trimmed]; !ok {
			out = append(out, trimmed)
			seen[trimmed] = struct{}{}
		}
		return false
	})

	return out, nil
}

func (i *InmemStorage) FailList(fail bool) {
	var val uint32
	if fail {
		val = 1
	}
	atomic.StoreUint32(i.failList, val)
}

// InmemTransaction buffers writes against a snapshot of the parent tree
// and verifies at commit time that every key it touched is unchanged in
// the parent.
type InmemTransaction struct {
	mu       sync.Mutex
	parent   *TransactionalInmemStorage
	snapshot *radix.Tree
	// touched maps each key read or written to the parent value observed
	// when the transaction first saw it (nil = absent).
	touched  map[string][]byte
	writes   map[string]*physical.Entry // nil entry = delete
	finished bool
}

func (t *TransactionalInmemStorage) BeginTx(ctx context.Context) (physical.Transaction, error) {
	t.RLock()
	defer t.RUnlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return &InmemTransaction{
		parent:   t,
		snapshot: radixCopy(t.root),
		touched:  make(map[string][]byte),
		writes:   make(map[string]*physical.Entry),
	}, nil
}

func (tx *InmemTransaction) observe(key string) {
	if _, ok := tx.touched[key]; ok {
		return
	}
	if raw, ok := tx.snapshot.Get(key); ok {
		tx.touched[key] = raw.([]byte)
	} else {
		tx.touched[key] = nil
	}
}

func (tx *InmemTransaction) Put(ctx context.Context, entry *physical.Entry) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.finished {
		return physical.ErrTransactionAlreadyCommitted
	}

	tx.observe(entry.Key)

	value := make([]byte, len(entry.Value))
	copy(value, entry.Value)
	tx.snapshot.Insert(entry.Key, value)
	tx.writes[entry.Key] = &physical.Entry{Key: entry.Key, Value: value}
	return nil
}

func (tx *InmemTransaction) Get(ctx context.Context, key string) (*physical.Entry, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.finished {
		return nil, physical.ErrTransactionAlreadyCommitted
	}

	tx.observe(key)

	raw, ok := tx.snapshot.Get(key)
	if !ok {
		return nil, nil
	}
	stored := raw.([]byte)
	value := make([]byte, len(stored))
	copy(value, stored)
	return &physical.Entry{Key: key, Value: value}, nil
}

func (tx *InmemTransaction) Delete(ctx context.Context, key string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.finished {
		return physical.ErrTransactionAlreadyCommitted
	}

	tx.observe(key)

	tx.snapshot.Delete(key)
	tx.writes[key] = nil
	return nil
}

func (tx *InmemTransaction) List(ctx context.Context, prefix string) ([]string, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.finished {
		return nil, physical.ErrTransactionAlreadyCommitted
	}

	var out []string
	seen := make(map[string]struct{})
	tx.snapshot.WalkPrefix(prefix, func(s string, v interface{}) bool {
		trimmed := strings.TrimPrefix(s, prefix)
		if sep := strings.Index(trimmed, "/"); sep != -1 {
			trimmed = trimmed[:sep+1]
		}
		if _, ok := seen[trimmed]; !ok {
			out = append(out, trimmed)
			seen[trimmed] = struct{}{}
		}
		return false
	})
	return out, nil
}

func (tx *InmemTransaction) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.finished {
		return physical.ErrTransactionAlreadyCommitted
	}
	tx.finished = true

	if len(tx.writes) == 0 {
		return nil
	}

	tx.parent.Lock()
	defer tx.parent.Unlock()

	// Verify every touched key is unchanged in the parent before applying
	// the buffered writes.
	for key, observed := range tx.touched {
		var current []byte
		if raw, ok := tx.parent.root.Get(key); ok {
			current = raw.([]byte)
		}
		if !bytesEqual(current, observed) {
			return fmt.Errorf("key %q changed concurrently: %w", key, physical.ErrTransactionCommitFailure)
		}
	}

	for key, entry := range tx.writes {
		if entry == nil {
			tx.parent.root.Delete(key)
			continue
		}
		tx.parent.root.Insert(key, entry.Value)
	}
	return nil
}

func (tx *InmemTransaction) Rollback(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.finished {
		return physical.ErrTransactionAlreadyCommitted
	}
	tx.finished = true
	return nil
}

func radixCopy(t *radix.Tree) *radix.Tree {
	return radix.NewFromMap(t.ToMap())
}

func bytesEqual(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return string(a) == string(b)
}
