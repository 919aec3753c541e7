package blockcheck

import (
	"context"
	"fmt"

	"github.com/casewatch/casewatch-engine/pkg/database"
)

// LocalBlockStore queries the engine's mirror of the local wiki's block
// table. Rows are maintained by the host wiki; the engine only reads them.
type LocalBlockStore struct{}

// NewLocalBlockStore creates a LocalBlockStore.
func NewLocalBlockStore() *LocalBlockStore {
	return &LocalBlockStore{}
}

var (
	_ Check           = (*LocalBlockStore)(nil)
	_ IndefiniteCheck = (*LocalBlockStore)(nil)
)

// BlockedUserIDs returns the subset of userIDs with an active local block.
func (s *LocalBlockStore) BlockedUserIDs(ctx context.Context, userIDs []int64) ([]int64, error) {
	scope, ok := database.GetWikiScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no wiki scope in context")
	}

	query := `
		SELECT DISTINCT user_id
		FROM user_blocks
		WHERE wiki_id = $1
		  AND user_id = ANY($2)
		  AND (expires_at IS NULL OR expires_at > NOW())`

	return queryUserIDs(ctx, scope, query, scope.WikiID, userIDs)
}

// IndefinitelyBlockedUserIDs returns the subset of userIDs with a local
// block that has no expiry.
func (s *LocalBlockStore) IndefinitelyBlockedUserIDs(ctx context.Context, userIDs []int64) ([]int64, error) {
	scope, ok := database.GetWikiScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no wiki scope in context")
	}

	query := `
		SELECT DISTINCT user_id
		FROM user_blocks
		WHERE wiki_id = $1
		  AND user_id = ANY($2)
		  AND expires_at IS NULL`

	return queryUserIDs(ctx, scope, query, scope.WikiID, userIDs)
}

// GlobalBlockStore queries the engine's mirror of the cross-wiki block
// table. Global blocks apply on every wiki, so rows are not wiki-scoped.
type GlobalBlockStore struct{}

// NewGlobalBlockStore creates a GlobalBlockStore.
func NewGlobalBlockStore() *GlobalBlockStore {
	return &GlobalBlockStore{}
}

var (
	_ Check           = (*GlobalBlockStore)(nil)
	_ IndefiniteCheck = (*GlobalBlockStore)(nil)
)

// BlockedUserIDs returns the subset of userIDs with an active global block.
func (s *GlobalBlockStore) BlockedUserIDs(ctx context.Context, userIDs []int64) ([]int64, error) {
	scope, ok := database.GetWikiScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no wiki scope in context")
	}

	query := `
		SELECT DISTINCT user_id
		FROM global_blocks
		WHERE user_id = ANY($1)
		  AND (expires_at IS NULL OR expires_at > NOW())`

	return queryUserIDs(ctx, scope, query, userIDs)
}

// IndefinitelyBlockedUserIDs returns the subset of userIDs with a global
// block that has no expiry.
func (s *GlobalBlockStore) IndefinitelyBlockedUserIDs(ctx context.Context, userIDs []int64) ([]int64, error) {
	scope, ok := database.GetWikiScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no wiki scope in context")
	}

	query := `
		SELECT DISTINCT user_id
		FROM global_blocks
		WHERE user_id = ANY($1)
		  AND expires_at IS NULL`

	return queryUserIDs(ctx, scope, query, userIDs)
}

func queryUserIDs(ctx context.Context, scope *database.WikiScope, query string, args ...any) ([]int64, error) {
	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocked users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan blocked user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocked user rows: %w", err)
	}

	return ids, nil
}
