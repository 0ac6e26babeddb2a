package remote

import (
	"context"
	"fmt"
)

// Resolver finds reference rows (workspaces, tags) by name and creates
// them when absent. The lookup-then-insert is not atomic: a genuine
// network collision between two writers can create a duplicate row
// with the same name. That window is accepted rather than guarded; the
// remote schema carries no unique constraint on names.
type Resolver struct {
	gw Gateway
}

func NewResolver(gw Gateway) *Resolver {
	return &Resolver{gw: gw}
}

// EnsureWorkspace returns the id of the workspace with the given name,
// creating it at the next free position if it does not exist.
func (r *Resolver) EnsureWorkspace(ctx context.Context, name string) (int64, error) {
	return r.ensure(ctx, "workspaces", name, Statement{
		SQL:  "INSERT INTO workspaces (name, position) VALUES (?, (SELECT COALESCE(MAX(position) + 1, 0) FROM workspaces)) RETURNING id",
		Args: []any{name},
	})
}

// EnsureTag returns the id of the tag with the given name, creating it
// with the color at the next free position if it does not exist.
func (r *Resolver) EnsureTag(ctx context.Context, name, color string) (int64, error) {
	return r.ensure(ctx, "tags", name, Statement{
		SQL:  "INSERT INTO tags (name, color, position) VALUES (?, ?, (SELECT COALESCE(MAX(position) + 1, 0) FROM tags)) RETURNING id",
		Args: []any{name, color},
	})
}

func (r *Resolver) ensure(ctx context.Context, table, name string, insert Statement) (int64, error) {
	if r == nil || r.gw == nil {
		return 0, ErrInvalidInput
	}
	found, err := r.gw.Execute(ctx, Statement{
		SQL:  fmt.Sprintf("SELECT id FROM %s WHERE name = ? LIMIT 1", table),
		Args: []any{name},
	})
	if err != nil {
		return 0, err
	}
	if id, ok := found.FirstID(); ok {
		return id, nil
	}
	inserted, err := r.gw.Execute(ctx, insert)
	if err != nil {
		return 0, err
	}
	id, ok := inserted.FirstID()
	if !ok {
		return 0, fmt.Errorf("%s insert returned no id", table)
	}
	return id, nil
}
