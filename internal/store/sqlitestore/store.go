package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ALT-F4-LLC/revmigrate/internal/store"
	"github.com/ALT-F4-LLC/revmigrate/internal/tree"
)

// querier abstracts *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store is a store.Store kept in SQLite.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens the tree database at dbPath, creating it if needed. Use
// ":memory:" for a throwaway tree.
func Open(dbPath string) (*Store, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, store.Error.Wrap(err)
	}
	if err := initialize(db); err != nil {
		db.Close()
		return nil, store.Error.Wrap(err)
	}
	if _, err := schemaVersion(db); err != nil {
		db.Close()
		return nil, store.Error.Wrap(err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value at path.
func (s *Store) Get(ctx context.Context, path string) (tree.Value, error) {
	v, err := get(ctx, s.db, clean(path))
	if err != nil {
		return nil, store.Error.New("get %s: %v", path, err)
	}
	return v, nil
}

// Set replaces the value at path.
func (s *Store) Set(ctx context.Context, path string, v tree.Value) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return set(ctx, tx, clean(path), v)
	})
	if err != nil {
		return store.Error.New("set %s: %v", path, err)
	}
	return nil
}

// Update sets each child of fields under path in one transaction.
func (s *Store) Update(ctx context.Context, path string, fields *tree.Object) error {
	base := clean(path)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, k := range fields.Keys() {
			child, _ := fields.Get(k)
			if err := set(ctx, tx, store.Join(base, k), child); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return store.Error.New("update %s: %v", path, err)
	}
	return nil
}

// Transaction runs fn against the current value inside a SQL transaction.
func (s *Store) Transaction(ctx context.Context, path string, fn store.TransactionFunc) (tree.Value, error) {
	p := clean(path)
	var result tree.Value
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := get(ctx, tx, p)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		result = next
		return set(ctx, tx, p, next)
	})
	if err != nil {
		return nil, store.Error.New("transaction %s: %v", path, err)
	}
	return result, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func clean(path string) string {
	return strings.Join(store.Split(path), "/")
}

// subtree matches the row at path and every row below it. '0' sorts
// directly after '/', so the range covers exactly the "path/" prefix.
const subtree = `(path = ?1 OR (path >= ?1 || '/' AND path < ?1 || '0'))`

func get(ctx context.Context, q querier, path string) (tree.Value, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if path == "" {
		rows, err = q.QueryContext(ctx, `SELECT path, value FROM nodes ORDER BY path`)
	} else {
		rows, err = q.QueryContext(ctx, `SELECT path, value FROM nodes WHERE `+subtree+` ORDER BY path`, path)
	}
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var root *tree.Object
	for rows.Next() {
		var p, raw string
		if err := rows.Scan(&p, &raw); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		leaf, err := tree.Parse([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decoding node %s: %w", p, err)
		}
		if p == path {
			return leaf, nil
		}
		rel := strings.TrimPrefix(p, path)
		rel = strings.TrimPrefix(rel, "/")
		if root == nil {
			root = tree.NewObject()
		}
		place(root, store.Split(rel), leaf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}
	if root == nil {
		return nil, nil
	}
	return root, nil
}

func place(root *tree.Object, segs []string, leaf tree.Value) {
	cur := root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := tree.AsObject(field(cur, seg))
		if !ok {
			next = tree.NewObject()
			cur.Set(seg, next)
		}
		cur = next
	}
	cur.Set(segs[len(segs)-1], leaf)
}

func field(o *tree.Object, key string) tree.Value {
	v, _ := o.Get(key)
	return v
}

func set(ctx context.Context, q querier, path string, v tree.Value) error {
	if path == "" {
		if _, err := q.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
			return fmt.Errorf("clearing tree: %w", err)
		}
	} else {
		if _, err := q.ExecContext(ctx, `DELETE FROM nodes WHERE `+subtree, path); err != nil {
			return fmt.Errorf("deleting subtree: %w", err)
		}
		// A leaf at an ancestor would shadow the new subtree.
		segs := store.Split(path)
		for i := 1; i < len(segs); i++ {
			ancestor := strings.Join(segs[:i], "/")
			if _, err := q.ExecContext(ctx, `DELETE FROM nodes WHERE path = ?`, ancestor); err != nil {
				return fmt.Errorf("deleting ancestor leaf: %w", err)
			}
		}
	}
	return insert(ctx, q, path, v)
}

func insert(ctx context.Context, q querier, path string, v tree.Value) error {
	if v == nil {
		return nil
	}
	if o, ok := tree.AsObject(v); ok {
		for _, k := range o.Keys() {
			child, _ := o.Get(k)
			if err := insert(ctx, q, store.Join(path, k), child); err != nil {
				return err
			}
		}
		return nil
	}
	if path == "" {
		return fmt.Errorf("root must be an object, got %T", v)
	}
	raw, err := tree.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO nodes (path, value) VALUES (?, ?)`, path, string(raw)); err != nil {
		return fmt.Errorf("inserting %s: %w", path, err)
	}
	return nil
}
