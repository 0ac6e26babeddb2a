package remote

import (
	"context"
	"fmt"
)

// NewItem describes one bookmark row. CreatedAt/UpdatedAt are epoch
// seconds carried over from the capture time, not the drain time.
type NewItem struct {
	Title       string
	URL         string
	Summary     string
	WorkspaceID int64
	CreatedAt   int64
}

// InsertItem creates the item row at the next free position within its
// workspace and returns the generated id. The position subselect and
// the RETURNING clause keep the whole thing one statement, so there is
// no window between the insert and reading the id.
func InsertItem(ctx context.Context, gw Gateway, item NewItem) (int64, error) {
	if gw == nil {
		return 0, ErrInvalidInput
	}
	result, err := gw.Execute(ctx, Statement{
		SQL: "INSERT INTO items (text, url, summary, item_type, workspace_id, position, created_at, updated_at) " +
			"VALUES (?, ?, ?, 'daily', ?, (SELECT COALESCE(MAX(position) + 1, 0) FROM items WHERE workspace_id = ?), ?, ?) RETURNING id",
		Args: []any{item.Title, item.URL, item.Summary, item.WorkspaceID, item.WorkspaceID, item.CreatedAt, item.CreatedAt},
	})
	if err != nil {
		return 0, err
	}
	id, ok := result.FirstID()
	if !ok {
		return 0, fmt.Errorf("item insert returned no id")
	}
	return id, nil
}

// LinkTags creates one join row per tag in a single atomic batch. The
// inserts ignore existing pairs so a replayed drain step cannot fail
// on rows it already created.
func LinkTags(ctx context.Context, gw Gateway, itemID int64, tagIDs []int64) error {
	if gw == nil {
		return ErrInvalidInput
	}
	if len(tagIDs) == 0 {
		return nil
	}
	joinSQL := "INSERT OR IGNORE INTO item_tags (item_id, tag_id) VALUES (?, ?)"
	if gw.Dialect() == DialectPostgres {
		joinSQL = "INSERT INTO item_tags (item_id, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING"
	}
	stmts := make([]Statement, 0, len(tagIDs))
	for _, tagID := range tagIDs {
		stmts = append(stmts, Statement{SQL: joinSQL, Args: []any{itemID, tagID}})
	}
	return gw.Batch(ctx, stmts)
}

// FindItemIDByURL reports the id of an existing item with the URL, or
// ErrNoRows when none exists. Limited to one row; duplicates beyond
// the first are not interesting to callers.
func FindItemIDByURL(ctx context.Context, gw Gateway, url string) (int64, error) {
	if gw == nil {
		return 0, ErrInvalidInput
	}
	result, err := gw.Execute(ctx, Statement{
		SQL:  "SELECT id FROM items WHERE url = ? LIMIT 1",
		Args: []any{url},
	})
	if err != nil {
		return 0, err
	}
	id, ok := result.FirstID()
	if !ok {
		return 0, ErrNoRows
	}
	return id, nil
}
