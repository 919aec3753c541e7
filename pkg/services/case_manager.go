package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/casewatch/casewatch-engine/pkg/apperrors"
	"github.com/casewatch/casewatch-engine/pkg/logging"
	"github.com/casewatch/casewatch-engine/pkg/models"
	"github.com/casewatch/casewatch-engine/pkg/repositories"
	"github.com/casewatch/casewatch-engine/pkg/retry"
)

// NoReasonSupplied is the canned status reason recorded when a case is
// marked invalid without an explicit reason.
const NoReasonSupplied = "No reason supplied"

// CaseManager decides whether a batch of positive signal matches merges
// into an existing open case or creates a new one, and owns case status
// transitions.
type CaseManager interface {
	// CreateCase records a batch of users and positive signal matches.
	// If any merge-eligible signal in the batch matches an existing open
	// case (same value under the signal's name or an equivalent name), the
	// whole batch merges into the first such case found; otherwise exactly
	// one new open case is created. Returns the affected case.
	CreateCase(ctx context.Context, users []models.UserIdentity, signals []models.SignalMatchResult) (*models.Case, error)

	// UpdateStatus moves a case to the given status with an optional reason.
	// Any status is reachable from any status; an unknown case id returns
	// apperrors.ErrNotFound.
	UpdateStatus(ctx context.Context, caseID int64, status models.CaseStatus, reason string) error

	GetCase(ctx context.Context, caseID int64) (*models.Case, error)
}

type caseManager struct {
	repo     repositories.CaseRepository
	retryCfg *retry.Config
	logger   *zap.Logger
}

// NewCaseManager creates a new CaseManager.
func NewCaseManager(repo repositories.CaseRepository, logger *zap.Logger) CaseManager {
	return &caseManager{
		repo:     repo,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.Named("case-manager"),
	}
}

var _ CaseManager = (*caseManager)(nil)

func (s *caseManager) CreateCase(ctx context.Context, users []models.UserIdentity, signals []models.SignalMatchResult) (*models.Case, error) {
	if len(users) == 0 || len(signals) == 0 {
		return nil, apperrors.ErrEmptyBatch
	}
	for _, sig := range signals {
		if !sig.IsMatch() {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrNegativeSignal, sig.Name())
		}
	}

	// Transaction conflicts from concurrent merge decisions surface as
	// serialization/deadlock errors; retry the whole unit of work.
	var result *models.Case
	err := retry.DoIfRetryable(ctx, s.retryCfg, func() error {
		c, err := s.createCaseOnce(ctx, users, signals)
		if err != nil {
			return err
		}
		result = c
		return nil
	})
	return result, err
}

// createCaseOnce runs one merge-or-create attempt as a single transaction.
func (s *caseManager) createCaseOnce(ctx context.Context, users []models.UserIdentity, signals []models.SignalMatchResult) (*models.Case, error) {
	var result *models.Case
	merged := false

	err := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		// Serialize concurrent merge decisions for the same signal values.
		// Locks are transaction-scoped and taken in sorted key order so two
		// batches touching the same values cannot deadlock.
		for _, key := range mergeLockKeys(signals) {
			if err := s.repo.AcquireMergeLock(ctx, key); err != nil {
				return err
			}
		}

		// One merge target per batch: the first merge-eligible signal (in
		// scan order) that matches an existing open case decides it for
		// everyone.
		var target *models.Case
		for _, sig := range signals {
			if !sig.AllowsMerging() {
				continue
			}
			found, err := s.repo.FindOpenCaseBySignal(ctx, sig.MergeNames(), sig.Value())
			if err != nil {
				return err
			}
			s.logger.Debug("merge target lookup",
				zap.String("signal", sig.Name()),
				zap.String("value_digest", logging.SignalValueDigest(sig.Value())),
				zap.Bool("found", found != nil))
			if found != nil {
				target = found
				break
			}
		}

		if target != nil {
			caseUsers := make([]models.CaseUser, len(users))
			for i, u := range users {
				caseUsers[i] = models.CaseUser{User: u, Flags: models.UserAddedBySignal | models.UserAddedByMerge}
			}
			if err := s.repo.AddUsers(ctx, target.ID, caseUsers); err != nil {
				return err
			}
			for _, sig := range signals {
				if err := s.repo.AddSignal(ctx, target.ID, toCaseSignal(sig)); err != nil {
					return err
				}
			}
			result = target
			merged = true
			return nil
		}

		caseUsers := make([]models.CaseUser, len(users))
		for i, u := range users {
			caseUsers[i] = models.CaseUser{User: u, Flags: models.UserAddedBySignal}
		}
		caseSignals := make([]models.CaseSignal, len(signals))
		for i, sig := range signals {
			caseSignals[i] = toCaseSignal(sig)
		}

		created, err := s.repo.CreateCase(ctx, caseUsers, caseSignals)
		if err != nil {
			return err
		}
		result = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	if merged {
		s.logger.Info("merged signal batch into existing case",
			zap.Int64("case_id", result.ID),
			zap.Int("users", len(users)),
			zap.Int("signals", len(signals)))
	} else {
		s.logger.Info("created new case",
			zap.Int64("case_id", result.ID),
			zap.Int("users", len(users)),
			zap.Int("signals", len(signals)))
	}
	return result, nil
}

func (s *caseManager) UpdateStatus(ctx context.Context, caseID int64, status models.CaseStatus, reason string) error {
	if !models.IsValidCaseStatus(status) {
		return fmt.Errorf("invalid case status: %d", status)
	}
	if status == models.CaseStatusInvalid && reason == "" {
		reason = NoReasonSupplied
	}

	if err := s.repo.UpdateStatus(ctx, caseID, status, reason); err != nil {
		return err
	}

	s.logger.Info("case status updated",
		zap.Int64("case_id", caseID),
		zap.String("status", status.String()))
	return nil
}

func (s *caseManager) GetCase(ctx context.Context, caseID int64) (*models.Case, error) {
	return s.repo.GetByID(ctx, caseID)
}

// mergeLockKeys returns one deduplicated advisory-lock key per (name, value)
// pair across each merge-eligible signal's merge names, sorted. Keying per
// name rather than per joined equivalence class matters: two batches may
// declare different equivalence sets for the same value, and they still must
// contend on at least one common lock whenever they share a single
// merge-relevant name.
func mergeLockKeys(signals []models.SignalMatchResult) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, sig := range signals {
		if !sig.AllowsMerging() {
			continue
		}
		for _, name := range sig.MergeNames() {
			key := name + "=" + sig.Value()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func toCaseSignal(sig models.SignalMatchResult) models.CaseSignal {
	return models.CaseSignal{
		Name:         sig.Name(),
		Value:        sig.Value(),
		TriggerID:    sig.TriggerID(),
		TriggerTable: sig.TriggerTable(),
	}
}
