package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Queries provides access to named SQL queries loaded from embedded .sql files.
// Uses dotsql for named query management and sqlx for database operations.
// A Queries value is bound either to the pool or to one transaction (Tx).
type Queries struct {
	dot *dotsql.DotSql
	ext sqlx.ExtContext
}

// LoadQueries loads all .sql files from embedded filesystem and returns Queries instance.
// Named queries accessible by name (e.g., "get-rule", "list-rules-by-status").
func LoadQueries(db *sqlx.DB) (*Queries, error) {
	var files []string
	err := fs.WalkDir(queriesFS, "queries", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load query files: %w", err)
	}
	sort.Strings(files)

	var combined strings.Builder
	for _, path := range files {
		content, err := queriesFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		combined.Write(content)
		combined.WriteString("\n")
	}

	dot, err := dotsql.LoadFromString(combined.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}

	return &Queries{dot: dot, ext: db}, nil
}

// Tx returns a copy of q that runs every query inside tx.
func (q *Queries) Tx(tx *sqlx.Tx) *Queries {
	return &Queries{dot: q.dot, ext: tx}
}

// raw returns the named query rebound to the driver's placeholder style.
// Slice arguments are expanded for IN (?) clauses via sqlx.In.
func (q *Queries) raw(name string, args []any) (string, []any, error) {
	query, err := q.dot.Raw(name)
	if err != nil {
		return "", nil, fmt.Errorf("query not found: %s", name)
	}
	if hasSliceArg(args) {
		query, args, err = sqlx.In(query, args...)
		if err != nil {
			return "", nil, fmt.Errorf("query %s: %w", name, err)
		}
	}
	return q.ext.Rebind(query), args, nil
}

// Exec executes a named query.
func (q *Queries) Exec(ctx context.Context, name string, args ...any) (sql.Result, error) {
	query, args, err := q.raw(name, args)
	if err != nil {
		return nil, err
	}
	return q.ext.ExecContext(ctx, query, args...)
}

// Get retrieves a single row into dest using a named query.
func (q *Queries) Get(ctx context.Context, name string, dest any, args ...any) error {
	query, args, err := q.raw(name, args)
	if err != nil {
		return err
	}
	return sqlx.GetContext(ctx, q.ext, dest, query, args...)
}

// Select retrieves multiple rows into dest slice using a named query.
func (q *Queries) Select(ctx context.Context, name string, dest any, args ...any) error {
	query, args, err := q.raw(name, args)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, q.ext, dest, query, args...)
}

func hasSliceArg(args []any) bool {
	for _, a := range args {
		switch a.(type) {
		case []string, []any:
			return true
		}
	}
	return false
}
