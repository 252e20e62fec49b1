package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/passgate/passgate/logger"
	"github.com/passgate/passgate/physical"
)

// tokenStorePath is the base path for all token records. Partitioning is
// by owner: token/<owner_id>/<token>.
const tokenStorePath = "token/"

var (
	// ErrRecordNotFound is returned when no record exists at the exact
	// (owner, token) key.
	ErrRecordNotFound = errors.New("token record not found")

	// ErrConflict is returned when a conditional replace loses to a
	// concurrent write.
	ErrConflict = errors.New("token record was modified concurrently")
)

// Store adapts the physical backend to token-record operations. Every
// lookup is a direct keyed read; there is no scan fallback, which would
// break tenant isolation. Each operation carries a bounded timeout so a
// hung backend cannot stall an interactive redirect.
type Store struct {
	storage   physical.Storage
	logger    logger.Logger
	opTimeout time.Duration
}

// NewStore constructs a store adapter over the given backend.
func NewStore(storage physical.Storage, log logger.Logger, opTimeout time.Duration) *Store {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &Store{
		storage:   storage,
		logger:    log,
		opTimeout: opTimeout,
	}
}

func recordKey(ownerID, token string) string {
	return tokenStorePath + ownerID + "/" + token
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// GetExact fetches the record at the exact (owner, token) key. Absent
// records return ErrRecordNotFound; undecodable payloads return
// ErrIncompleteRecord.
func (s *Store) GetExact(ctx context.Context, ownerID, token string) (*Record, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	entry, err := s.storage.Get(ctx, recordKey(ownerID, token))
	if err != nil {
		return nil, fmt.Errorf("storage get failed: %w", err)
	}
	if entry == nil {
		return nil, ErrRecordNotFound
	}
	return decodeRecord(entry.Value)
}

// DeleteExact removes the record at the exact key. Deleting an
// already-gone record is not an error.
func (s *Store) DeleteExact(ctx context.Context, ownerID, token string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.storage.Delete(ctx, recordKey(ownerID, token)); err != nil {
		return fmt.Errorf("storage delete failed: %w", err)
	}
	return nil
}

// Put writes a record unconditionally. Used by issuer-side tooling and
// tests; the gate itself never creates records.
func (s *Store) Put(ctx context.Context, rec *Record) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	value, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.storage.Put(ctx, &physical.Entry{
		Key:   recordKey(rec.OwnerID, rec.Token),
		Value: value,
	}); err != nil {
		return fmt.Errorf("storage put failed: %w", err)
	}
	return nil
}

// Replace conditionally updates an existing record. When the backend is
// transactional the update fails with ErrConflict if the record changed
// between read and write; the record must already exist either way.
func (s *Store) Replace(ctx context.Context, rec *Record) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	key := recordKey(rec.OwnerID, rec.Token)
	value, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	txStorage, ok := s.storage.(physical.Transactional)
	if !ok {
		entry, err := s.storage.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("storage get failed: %w", err)
		}
		if entry == nil {
			return ErrRecordNotFound
		}
		if err := s.storage.Put(ctx, &physical.Entry{Key: key, Value: value}); err != nil {
			return fmt.Errorf("storage put failed: %w", err)
		}
		return nil
	}

	tx, err := txStorage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	entry, err := tx.Get(ctx, key)
	if err != nil {
		tx.Rollback(ctx)
		return fmt.Errorf("storage get failed: %w", err)
	}
	if entry == nil {
		tx.Rollback(ctx)
		return ErrRecordNotFound
	}
	if err := tx.Put(ctx, &physical.Entry{Key: key, Value: value}); err != nil {
		tx.Rollback(ctx)
		return fmt.Errorf("storage put failed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, physical.ErrTransactionCommitFailure) {
			return ErrConflict
		}
		return fmt.Errorf("transaction commit failed: %w", err)
	}
	return nil
}

// ListOwners returns the owner partitions currently holding records.
// Used only by the periodic sweep, never by verification.
func (s *Store) ListOwners(ctx context.Context) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	entries, err := s.storage.List(ctx, tokenStorePath)
	if err != nil {
		return nil, fmt.Errorf("storage list failed: %w", err)
	}

	owners := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(entry, "/") {
			owners = append(owners, strings.TrimSuffix(entry, "/"))
		}
	}
	return owners, nil
}

// ListTokens returns the token keys within one owner partition.
func (s *Store) ListTokens(ctx context.Context, ownerID string) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	entries, err := s.storage.List(ctx, tokenStorePath+ownerID+"/")
	if err != nil {
		return nil, fmt.Errorf("storage list failed: %w", err)
	}

	tokens := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !strings.HasSuffix(entry, "/") {
			tokens = append(tokens, entry)
		}
	}
	return tokens, nil
}
