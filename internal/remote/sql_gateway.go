package remote

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const sqlOperationTimeout = 30 * time.Second

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// SQLGateway executes statements through database/sql. Both the
// postgres and sqlite drivers run every statement via QueryContext so
// RETURNING clauses always surface their rows.
type SQLGateway struct {
	driver    string
	dsn       string
	dialect   Dialect
	opTimeout time.Duration
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewSQLGateway(driver, dsn string, dialect Dialect) (*SQLGateway, error) {
	if strings.TrimSpace(driver) == "" || strings.TrimSpace(dsn) == "" {
		return nil, ErrInvalidInput
	}
	return &SQLGateway{
		driver:    driver,
		dsn:       dsn,
		dialect:   dialect,
		opTimeout: sqlOperationTimeout,
		openDB:    sql.Open,
	}, nil
}

func (g *SQLGateway) Dialect() Dialect {
	if g == nil {
		return DialectSQLite
	}
	return g.dialect
}

func (g *SQLGateway) Execute(ctx context.Context, stmt Statement) (Result, error) {
	if g == nil {
		return Result{}, ErrInvalidInput
	}
	if err := g.ensureReady(); err != nil {
		return Result{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, g.opTimeout)
	defer cancel()

	rows, err := g.db.QueryContext(ctx, rebind(stmt.SQL, g.dialect), stmt.Args...)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()
	return collectRows(rows)
}

// Batch runs all statements inside one transaction: all-or-nothing.
func (g *SQLGateway) Batch(ctx context.Context, stmts []Statement) error {
	if g == nil {
		return ErrInvalidInput
	}
	if len(stmts) == 0 {
		return nil
	}
	if err := g.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, g.opTimeout)
	defer cancel()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, rebind(stmt.SQL, g.dialect), stmt.Args...); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (g *SQLGateway) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}

func (g *SQLGateway) ensureReady() error {
	if g == nil {
		return ErrInvalidInput
	}
	g.initOnce.Do(func() {
		db, err := g.openDB(g.driver, g.dsn)
		if err != nil {
			g.initErr = err
			return
		}
		g.db = db
	})
	return g.initErr
}

func collectRows(rows *sql.Rows) (Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}
	result := Result{}
	for rows.Next() {
		values := make([]any, len(cols))
		pointers := make([]any, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return Result{}, err
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	return result, nil
}
