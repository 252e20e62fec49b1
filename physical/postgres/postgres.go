package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/passgate/passgate/logger"
	"github.com/passgate/passgate/physical"
)

var _ physical.Storage = (*PostgresStorage)(nil)

const defaultTable = "passgate_kv_store"

// PostgresStorage persists entries in a single key/value table. The
// parent_path column makes prefix listing an indexed lookup instead of a
// LIKE scan over the whole table.
type PostgresStorage struct {
	pool       *pgxpool.Pool
	table      string
	permitPool *physical.PermitPool
	logger     logger.Logger

	putQuery    string
	getQuery    string
	deleteQuery string
	listQuery   string
}

// NewPostgresStorage constructs a PostgreSQL-backed storage from its
// configuration block.
func NewPostgresStorage(conf map[string]string, log logger.Logger) (physical.Storage, error) {
	connURL, ok := conf["connection_url"]
	if !ok || connURL == "" {
		return nil, errors.New("'connection_url' must be set for postgres storage")
	}

	table, ok := conf["table"]
	if !ok || table == "" {
		table = defaultTable
	}
	quoted := quoteIdentifier(table)

	maxParallel := physical.DefaultParallelOperations
	if raw, ok := conf["max_parallel"]; ok {
		parsed, err := parseutil.ParseInt(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse 'max_parallel': %w", err)
		}
		maxParallel = int(parsed)
	}

	poolConfig, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection url: %w", err)
	}
	poolConfig.MaxConns = int32(maxParallel)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	s := &PostgresStorage{
		pool:       pool,
		table:      table,
		permitPool: physical.NewPermitPool(maxParallel),
		logger:     log,

		putQuery: "INSERT INTO " + quoted + " (parent_path, path, key, value) VALUES ($1, $2, $3, $4)" +
			" ON CONFLICT (path, key) DO UPDATE SET (parent_path, value) = ($1, $4)",
		getQuery:    "SELECT value FROM " + quoted + " WHERE path = $1 AND key = $2",
		deleteQuery: "DELETE FROM " + quoted + " WHERE path = $1 AND key = $2",
		listQuery: "SELECT key FROM " + quoted + " WHERE path = $1" +
			" UNION ALL SELECT DISTINCT substring(substr(path, length($1)+1) from '^[^/]+/') FROM " + quoted +
			" WHERE parent_path LIKE $1 || '%' AND path <> $1",
	}

	skipCreate, _ := parseutil.ParseBool(conf["skip_create_table"])
	if !skipCreate {
		if err := s.createTable(context.Background()); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return s, nil
}

func (p *PostgresStorage) createTable(ctx context.Context) error {
	quoted := quoteIdentifier(p.table)
	_, err := p.pool.Exec(ctx, "CREATE TABLE IF NOT EXISTS "+quoted+` (
		parent_path TEXT COLLATE "C" NOT NULL,
		path        TEXT COLLATE "C" NOT NULL,
		key         TEXT COLLATE "C" NOT NULL,
		value       BYTEA,
		PRIMARY KEY (path, key)
	)`)
	if err != nil {
		return fmt.Errorf("failed to create storage table: %w", err)
	}
	_, err = p.pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS "+quoteIdentifier(p.table+"_parent_path_idx")+
		" ON "+quoted+" (parent_path)")
	if err != nil {
		return fmt.Errorf("failed to create parent_path index: %w", err)
	}
	return nil
}

// splitKey breaks a slash-delimited key into the directory path (with
// trailing slash) and the leaf name.
func splitKey(key string) (parentPath, path, leaf string) {
	idx := strings.LastIndex(key, "/")
	if idx == -1 {
		return "", "/", key
	}
	path = key[:idx+1]
	leaf = key[idx+1:]
	parentPath = path
	return parentPath, path, leaf
}

func (p *PostgresStorage) Put(ctx context.Context, entry *physical.Entry) error {
	p.permitPool.Acquire()
	defer p.permitPool.Release()

	parentPath, path, leaf := splitKey(entry.Key)
	_, err := p.pool.Exec(ctx, p.putQuery, parentPath, path, leaf, entry.Value)
	return err
}

func (p *PostgresStorage) Get(ctx context.Context, key string) (*physical.Entry, error) {
	p.permitPool.Acquire()
	defer p.permitPool.Release()

	_, path, leaf := splitKey(key)

	var value []byte
	err := p.pool.QueryRow(ctx, p.getQuery, path, leaf).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &physical.Entry{Key: key, Value: value}, nil
}

func (p *PostgresStorage) Delete(ctx context.Context, key string) error {
	p.permitPool.Acquire()
	defer p.permitPool.Release()

	_, path, leaf := splitKey(key)
	_, err := p.pool.Exec(ctx, p.deleteQuery, path, leaf)
	return err
}

func (p *PostgresStorage) List(ctx context.Context, prefix string) ([]string, error) {
	p.permitPool.Acquire()
	defer p.permitPool.Release()

	path := prefix
	if path == "" {
		path = "/"
	}

	rows, err := p.pool.Query(ctx, p.listQuery, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	seen := make(map[string]struct{})
	for rows.Next() {
		var key *string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		if key == nil || *key == "" {
			continue
		}
		if _, ok := seen[*key]; !ok {
			out = append(out, *key)
			seen[*key] = struct{}{}
		}
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (p *PostgresStorage) Close() {
	p.pool.Close()
}

func quoteIdentifier(name string) string {
	if end := strings.IndexRune(name, 0); end > -1 {
		name = name[:end]
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
