package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WikiScope wraps a connection pinned to one wiki. All case, signal and
// block-store queries run through a scope so that every statement of one
// engine operation shares a single connection, which is what lets a service
// open a transaction on the scope and have repository calls execute inside it.
type WikiScope struct {
	Conn   *pgxpool.Conn
	WikiID string
}

// Close releases the connection back to the pool.
func (s *WikiScope) Close() {
	if s.Conn == nil {
		return
	}
	s.Conn.Release()
}

// WithWiki acquires a connection scoped to the given wiki.
// The returned WikiScope MUST be closed with defer scope.Close().
func (db *DB) WithWiki(ctx context.Context, wikiID string) (*WikiScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &WikiScope{Conn: conn, WikiID: wikiID}, nil
}

type contextKey string

const wikiScopeKey contextKey = "wikiScope"

// GetWikiScope retrieves the wiki-scoped database connection from context.
// Returns nil and false if not present.
func GetWikiScope(ctx context.Context) (*WikiScope, bool) {
	scope, ok := ctx.Value(wikiScopeKey).(*WikiScope)
	return scope, ok
}

// SetWikiScope stores the wiki-scoped database connection in context.
func SetWikiScope(ctx context.Context, scope *WikiScope) context.Context {
	return context.WithValue(ctx, wikiScopeKey, scope)
}

// ScopeProvider creates wiki-scoped contexts for engine operations.
type ScopeProvider struct {
	db *DB
}

// NewScopeProvider creates a ScopeProvider for the given database.
func NewScopeProvider(db *DB) *ScopeProvider {
	return &ScopeProvider{db: db}
}

// WithWikiScope returns a context with a wiki scope set.
// The cleanup function must be called when the scope is no longer needed.
func (p *ScopeProvider) WithWikiScope(ctx context.Context, wikiID string) (context.Context, func(), error) {
	scope, err := p.db.WithWiki(ctx, wikiID)
	if err != nil {
		return nil, nil, err
	}
	return SetWikiScope(ctx, scope), func() { scope.Close() }, nil
}
