package file

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/passgate/passgate/logger"
	"github.com/passgate/passgate/physical"
)

var _ physical.Storage = (*FileStorage)(nil)

// FileStorage stores entries as JSON files on the local filesystem. Each
// key maps to a file whose basename carries a "_" prefix so that leaf
// entries can never collide with subtree directories.
type FileStorage struct {
	path       string
	permitPool *physical.PermitPool
	logger     logger.Logger
	mu         sync.RWMutex
}

type fileEntry struct {
	Value string `json:"value"`
}

// NewFileStorage constructs a filesystem-backed storage rooted at conf["path"].
func NewFileStorage(conf map[string]string, log logger.Logger) (physical.Storage, error) {
	path, ok := conf["path"]
	if !ok || path == "" {
		return nil, errors.New("'path' must be set for file storage")
	}

	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &FileStorage{
		path:       path,
		permitPool: physical.NewPermitPool(physical.DefaultParallelOperations),
		logger:     log,
	}, nil
}

func (f *FileStorage) expandPath(key string) (string, string) {
	path := filepath.Join(f.path, filepath.FromSlash(key))
	base := filepath.Base(path)
	return filepath.Dir(path), "_" + base
}

func (f *FileStorage) validateKey(key string) error {
	if key == "" || strings.Contains(key, "..") {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}

func (f *FileStorage) Put(ctx context.Context, entry *physical.Entry) error {
	if err := f.validateKey(entry.Key); err != nil {
		return err
	}

	f.permitPool.Acquire()
	defer f.permitPool.Release()

	f.mu.Lock()
	defer f.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	dir, name := f.expandPath(entry.Key)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	encoded, err := json.Marshal(&fileEntry{
		Value: base64.StdEncoding.EncodeToString(entry.Value),
	})
	if err != nil {
		return err
	}

	// Write to a temp file and rename so readers never observe a
	// partially written entry.
	tmp := filepath.Join(dir, name+".tmp")
	if err := os.WriteFile(tmp, encoded, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, name))
}

func (f *FileStorage) Get(ctx context.Context, key string) (*physical.Entry, error) {
	if err := f.validateKey(key); err != nil {
		return nil, err
	}

	f.permitPool.Acquire()
	defer f.permitPool.Release()

	f.mu.RLock()
	defer f.mu.RUnlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	dir, name := f.expandPath(key)
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var stored fileEntry
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("corrupt entry at %q: %w", key, err)
	}
	value, err := base64.StdEncoding.DecodeString(stored.Value)
	if err != nil {
		return nil, fmt.Errorf("corrupt entry at %q: %w", key, err)
	}

	return &physical.Entry{Key: key, Value: value}, nil
}

func (f *FileStorage) Delete(ctx context.Context, key string) error {
	if err := f.validateKey(key); err != nil {
		return err
	}

	f.permitPool.Acquire()
	defer f.permitPool.Release()

	f.mu.Lock()
	defer f.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	dir, name := f.expandPath(key)
	if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
		return err
	}

	// Prune empty parent directories up to the storage root.
	for dir != f.path {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

func (f *FileStorage) List(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" {
		if err := f.validateKey(prefix); err != nil {
			return nil, err
		}
	}

	f.permitPool.Acquire()
	defer f.permitPool.Release()

	f.mu.RLock()
	defer f.mu.RUnlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	dir := filepath.Join(f.path, filepath.FromSlash(prefix))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			out = append(out, name+"/")
			continue
		}
		if strings.HasPrefix(name, "_") && !strings.HasSuffix(name, ".tmp") {
			out = append(out, name[1:])
		}
	}
	sort.Strings(out)
	return out, nil
}
