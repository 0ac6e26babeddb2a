package remote

import (
	"context"
	"fmt"
	"strings"
)

// EnsureSchema creates the remote tables when absent and adds the
// late-arriving item columns when missing. Best effort only: the
// caller logs a failure and carries on, since a broken schema will
// surface as an ordinary drain failure anyway.
func EnsureSchema(ctx context.Context, gw Gateway) error {
	if gw == nil {
		return ErrInvalidInput
	}
	var tables []string
	if gw.Dialect() == DialectPostgres {
		tables = []string{
			"CREATE TABLE IF NOT EXISTS workspaces (id BIGSERIAL PRIMARY KEY, name TEXT NOT NULL, position BIGINT NOT NULL DEFAULT 0)",
			"CREATE TABLE IF NOT EXISTS tags (id BIGSERIAL PRIMARY KEY, name TEXT NOT NULL, color TEXT, position BIGINT NOT NULL DEFAULT 0)",
			"CREATE TABLE IF NOT EXISTS items (id BIGSERIAL PRIMARY KEY, text TEXT NOT NULL, item_type TEXT NOT NULL DEFAULT 'daily')",
			"CREATE TABLE IF NOT EXISTS item_tags (item_id BIGINT NOT NULL, tag_id BIGINT NOT NULL, PRIMARY KEY (item_id, tag_id))",
		}
	} else {
		tables = []string{
			"CREATE TABLE IF NOT EXISTS workspaces (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, position INTEGER NOT NULL DEFAULT 0)",
			"CREATE TABLE IF NOT EXISTS tags (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, color TEXT, position INTEGER NOT NULL DEFAULT 0)",
			"CREATE TABLE IF NOT EXISTS items (id INTEGER PRIMARY KEY AUTOINCREMENT, text TEXT NOT NULL, item_type TEXT NOT NULL DEFAULT 'daily')",
			"CREATE TABLE IF NOT EXISTS item_tags (item_id INTEGER NOT NULL, tag_id INTEGER NOT NULL, PRIMARY KEY (item_id, tag_id))",
		}
	}
	for _, stmt := range tables {
		if _, err := gw.Execute(ctx, Statement{SQL: stmt}); err != nil {
			return err
		}
	}

	itemColumns := []struct {
		name       string
		definition string
	}{
		{"url", "TEXT"},
		{"summary", "TEXT"},
		{"workspace_id", "INTEGER"},
		{"position", "INTEGER NOT NULL DEFAULT 0"},
		{"created_at", "INTEGER"},
		{"updated_at", "INTEGER"},
	}
	for _, col := range itemColumns {
		if err := addColumnIfMissing(ctx, gw, "items", col.name, col.definition); err != nil {
			return err
		}
	}
	return nil
}

func addColumnIfMissing(ctx context.Context, gw Gateway, table, column, definition string) error {
	if gw.Dialect() == DialectPostgres {
		_, err := gw.Execute(ctx, Statement{
			SQL: fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", table, column, definition),
		})
		return err
	}
	exists, err := sqliteColumnExists(ctx, gw, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = gw.Execute(ctx, Statement{
		SQL: fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition),
	})
	return err
}

func sqliteColumnExists(ctx context.Context, gw Gateway, table, column string) (bool, error) {
	result, err := gw.Execute(ctx, Statement{SQL: fmt.Sprintf("PRAGMA table_info(%s)", table)})
	if err != nil {
		return false, err
	}
	// PRAGMA table_info rows are (cid, name, type, notnull, dflt_value, pk).
	for _, row := range result.Rows {
		if len(row) < 2 {
			continue
		}
		name, ok := row[1].(string)
		if !ok {
			if raw, isBytes := row[1].([]byte); isBytes {
				name = string(raw)
				ok = true
			}
		}
		if ok && strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, nil
}
