package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/casewatch/casewatch-engine/pkg/apperrors"
	"github.com/casewatch/casewatch-engine/pkg/database"
	"github.com/casewatch/casewatch-engine/pkg/models"
)

// CaseRepository provides data access for investigation cases and their
// user and signal associations. Callers that need atomicity across several
// calls (the merge-or-create sequence) open a transaction on the wiki
// scope's connection; every method here runs on that same connection, so
// statements issued while the transaction is open execute inside it.
type CaseRepository interface {
	// WithTransaction runs fn inside a single transaction on the wiki
	// scope's connection. fn returning an error rolls everything back.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	CreateCase(ctx context.Context, users []models.CaseUser, signals []models.CaseSignal) (*models.Case, error)
	GetByID(ctx context.Context, caseID int64) (*models.Case, error)
	// FindOpenCaseBySignal returns the open case with the lowest id that has
	// a recorded signal whose name is any of names and whose value equals
	// value, locking the case row. Returns (nil, nil) when no case matches.
	FindOpenCaseBySignal(ctx context.Context, names []string, value string) (*models.Case, error)
	AddUsers(ctx context.Context, caseID int64, users []models.CaseUser) error
	AddSignal(ctx context.Context, caseID int64, signal models.CaseSignal) error
	UpdateStatus(ctx context.Context, caseID int64, status models.CaseStatus, reason string) error
	// ListOpenCaseIDsMentioningUser returns ids of open cases that have the
	// named user attached. Auto-close jobs carry usernames because those
	// are the stable cross-wiki identifier.
	ListOpenCaseIDsMentioningUser(ctx context.Context, username string) ([]int64, error)
	// AcquireMergeLock takes a transaction-scoped advisory lock keyed on a
	// signal name-class/value pair. Held until the surrounding transaction
	// ends; serializes concurrent merge decisions for the same value.
	AcquireMergeLock(ctx context.Context, key string) error
}

type caseRepository struct{}

// NewCaseRepository creates a new CaseRepository.
func NewCaseRepository() CaseRepository {
	return &caseRepository{}
}

var _ CaseRepository = (*caseRepository)(nil)

func (r *caseRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	scope, ok := database.GetWikiScope(ctx)
	if !ok {
		return fmt.Errorf("no wiki scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *caseRepository) CreateCase(ctx context.Context, users []models.CaseUser, signals []models.CaseSignal) (*models.Case, error) {
	scope, ok := database.GetWikiScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no wiki scope in context")
	}

	now := time.Now()
	c := &models.Case{
		Reference:    uuid.New(),
		Status:       models.CaseStatusOpen,
		StatusReason: "",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	query := `
		INSERT INTO cases (wiki_id, reference, status, status_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := scope.Conn.QueryRow(ctx, query,
		scope.WikiID, c.Reference, c.Status, c.StatusReason, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create case: %w", err)
	}

	if err := r.AddUsers(ctx, c.ID, users); err != nil {
		return nil, err
	}
	for _, sig := range signals {
		if err := r.AddSignal(ctx, c.ID, sig); err != nil {
			return nil, err
		}
	}

	c.Users = append(c.Users, users...)
	c.Signals = append(c.Signals, signals...)
	return c, nil
}

func (r *caseRepository) GetByID(ctx context.Context, caseID int64) (*models.Case, error) {
	scope, ok := database.GetWikiScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no wiki scope in context")
	}

	query := `
		SELECT id, reference, status, status_reason, created_at, updated_at
		FROM cases
		WHERE wiki_id = $1 AND id = $2`

	c, err := scanCaseRow(scope.Conn.QueryRow(ctx, query, scope.WikiID, caseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}

	if err := r.loadAssociations(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *caseRepository) FindOpenCaseBySignal(ctx context.Context, names []string, value string) (*models.Case, error) {
	scope, ok := database.GetWikiScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no wiki scope in context")
	}

	// Lowest case id wins so the merge target is deterministic regardless of
	// incidental query-plan ordering.
	query := `
		SELECT c.id, c.reference, c.status, c.status_reason, c.created_at, c.updated_at
		FROM cases c
		WHERE c.wiki_id = $1
		  AND c.status = $2
		  AND EXISTS (
			SELECT 1 FROM case_signals cs
			WHERE cs.case_id = c.id AND cs.name = ANY($3) AND cs.value = $4
		  )
		ORDER BY c.id ASC
		LIMIT 1
		FOR UPDATE OF c`

	c, err := scanCaseRow(scope.Conn.QueryRow(ctx, query, scope.WikiID, models.CaseStatusOpen, names, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := r.loadAssociations(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *caseRepository) AddUsers(ctx context.Context, caseID int64, users []models.CaseUser) error {
	scope, ok := database.GetWikiScope(ctx)
	if !ok {
		return fmt.Errorf("no wiki scope in context")
	}

	// A user already on the case keeps every previously recorded reason;
	// new flags are OR-combined, never overwritten.
	query := `
		INSERT INTO case_users (case_id, user_id, user_name, flags)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (case_id, user_id)
		DO UPDATE SET flags = case_users.flags | EXCLUDED.flags`

	for _, u := range users {
		_, err := scope.Conn.Exec(ctx, query, caseID, u.User.ID, u.User.Name, u.Flags)
		if err != nil {
			return fmt.Errorf("failed to add user %d to case %d: %w", u.User.ID, caseID, err)
		}
	}
	return nil
}

func (r *caseRepository) AddSignal(ctx context.Context, caseID int64, signal models.CaseSignal) error {
	scope, ok := database.GetWikiScope(ctx)
	if !ok {
		return fmt.Errorf("no wiki scope in context")
	}

	query := `
		INSERT INTO case_signals (case_id, name, value, trigger_id, trigger_table)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (case_id, name, value, trigger_id, trigger_table) DO NOTHING`

	_, err := scope.Conn.Exec(ctx, query, caseID, signal.Name, signal.Value, signal.TriggerID, signal.TriggerTable)
	if err != nil {
		return fmt.Errorf("failed to add signal %q to case %d: %w", signal.Name, caseID, err)
	}
	return nil
}

func (r *caseRepository) UpdateStatus(ctx context.Context, caseID int64, status models.CaseStatus, reason string) error {
	scope, ok := database.GetWikiScope(ctx)
	if !ok {
		return fmt.Errorf("no wiki scope in context")
	}

	query := `
		UPDATE cases
		SET status = $3, status_reason = $4, updated_at = NOW()
		WHERE wiki_id = $1 AND id = $2`

	result, err := scope.Conn.Exec(ctx, query, scope.WikiID, caseID, status, reason)
	if err != nil {
		return fmt.Errorf("failed to update case status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *caseRepository) ListOpenCaseIDsMentioningUser(ctx context.Context, username string) ([]int64, error) {
	scope, ok := database.GetWikiScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no wiki scope in context")
	}

	query := `
		SELECT DISTINCT c.id
		FROM cases c
		JOIN case_users cu ON cu.case_id = c.id
		WHERE c.wiki_id = $1 AND c.status = $2 AND cu.user_name = $3
		ORDER BY c.id ASC`

	rows, err := scope.Conn.Query(ctx, query, scope.WikiID, models.CaseStatusOpen, username)
	if err != nil {
		return nil, fmt.Errorf("failed to query open cases for user: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan case id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating case id rows: %w", err)
	}
	return ids, nil
}

func (r *caseRepository) AcquireMergeLock(ctx context.Context, key string) error {
	scope, ok := database.GetWikiScope(ctx)
	if !ok {
		return fmt.Errorf("no wiki scope in context")
	}

	_, err := scope.Conn.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		scope.WikiID+"\x00"+key)
	if err != nil {
		return fmt.Errorf("failed to acquire merge lock for %q: %w", key, err)
	}
	return nil
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

func scanCaseRow(row pgx.Row) (*models.Case, error) {
	var c models.Case
	err := row.Scan(&c.ID, &c.Reference, &c.Status, &c.StatusReason, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan case: %w", err)
	}
	return &c, nil
}

func (r *caseRepository) loadAssociations(ctx context.Context, c *models.Case) error {
	scope, ok := database.GetWikiScope(ctx)
	if !ok {
		return fmt.Errorf("no wiki scope in context")
	}

	userRows, err := scope.Conn.Query(ctx,
		`SELECT user_id, user_name, flags FROM case_users WHERE case_id = $1 ORDER BY user_id ASC`,
		c.ID)
	if err != nil {
		return fmt.Errorf("failed to query case users: %w", err)
	}
	defer userRows.Close()

	c.Users = nil
	for userRows.Next() {
		var u models.CaseUser
		if err := userRows.Scan(&u.User.ID, &u.User.Name, &u.Flags); err != nil {
			return fmt.Errorf("failed to scan case user: %w", err)
		}
		c.Users = append(c.Users, u)
	}
	if err := userRows.Err(); err != nil {
		return fmt.Errorf("error iterating case user rows: %w", err)
	}

	signalRows, err := scope.Conn.Query(ctx,
		`SELECT name, value, trigger_id, trigger_table FROM case_signals WHERE case_id = $1 ORDER BY id ASC`,
		c.ID)
	if err != nil {
		return fmt.Errorf("failed to query case signals: %w", err)
	}
	defer signalRows.Close()

	c.Signals = nil
	for signalRows.Next() {
		var s models.CaseSignal
		if err := signalRows.Scan(&s.Name, &s.Value, &s.TriggerID, &s.TriggerTable); err != nil {
			return fmt.Errorf("failed to scan case signal: %w", err)
		}
		c.Signals = append(c.Signals, s)
	}
	if err := signalRows.Err(); err != nil {
		return fmt.Errorf("error iterating case signal rows: %w", err)
	}

	return nil
}
