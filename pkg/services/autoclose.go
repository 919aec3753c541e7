package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/casewatch/casewatch-engine/pkg/blockcheck"
	"github.com/casewatch/casewatch-engine/pkg/jobs"
	"github.com/casewatch/casewatch-engine/pkg/models"
	"github.com/casewatch/casewatch-engine/pkg/repositories"
)

// AllUsersBlockedReason is recorded on cases invalidated by the auto-close
// path.
const AllUsersBlockedReason = "All users in the case are indefinitely blocked"

// GlobalAccountLookup resolves the wikis where a username has a local
// attached account. Implementations wrap the host's central-auth capability;
// Enabled reports whether that capability exists at all.
type GlobalAccountLookup interface {
	Enabled() bool
	AttachedWikis(ctx context.Context, username string) ([]string, error)
}

// AutoCloseDispatcher fans out auto-close jobs to every other wiki in a
// user's global account footprint after the user is indefinitely blocked
// locally.
type AutoCloseDispatcher struct {
	lookup    GlobalAccountLookup
	queue     jobs.Queue
	localWiki string
	logger    *zap.Logger
}

// NewAutoCloseDispatcher creates an AutoCloseDispatcher. lookup may be nil
// when no cross-wiki identity provider is configured.
func NewAutoCloseDispatcher(lookup GlobalAccountLookup, queue jobs.Queue, localWiki string, logger *zap.Logger) *AutoCloseDispatcher {
	return &AutoCloseDispatcher{
		lookup:    lookup,
		queue:     queue,
		localWiki: localWiki,
		logger:    logger.Named("autoclose-dispatcher"),
	}
}

// Dispatch enqueues one auto-close job per attached wiki except the local
// one. With no cross-wiki identity provider this is a silent no-op:
// cross-wiki awareness is an enhancement, not a correctness requirement.
// A failed enqueue for one wiki is logged and never blocks the others.
func (d *AutoCloseDispatcher) Dispatch(ctx context.Context, username string) error {
	if d.lookup == nil || !d.lookup.Enabled() {
		d.logger.Debug("cross-wiki identity provider disabled, skipping dispatch",
			zap.String("username", username))
		return nil
	}

	wikis, err := d.lookup.AttachedWikis(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to resolve attached wikis for %q: %w", username, err)
	}

	dispatched := 0
	for _, wiki := range wikis {
		if wiki == d.localWiki {
			continue
		}
		if err := d.queue.EnqueueAutoClose(ctx, wiki, username); err != nil {
			d.logger.Error("failed to enqueue auto-close job",
				zap.String("username", username),
				zap.String("target_wiki", wiki),
				zap.Error(err))
			continue
		}
		dispatched++
	}

	d.logger.Info("dispatched auto-close jobs",
		zap.String("username", username),
		zap.Int("wikis", dispatched))
	return nil
}

// AutoCloseService is the receiving side of an auto-close job: it
// invalidates every open case mentioning the user whose members are now all
// indefinitely blocked. Processing the same job twice is a no-op because
// invalidated cases are no longer open.
type AutoCloseService struct {
	repo    repositories.CaseRepository
	manager CaseManager
	indef   *blockcheck.IndefiniteComposite
	logger  *zap.Logger
}

// NewAutoCloseService creates an AutoCloseService.
func NewAutoCloseService(repo repositories.CaseRepository, manager CaseManager, indef *blockcheck.IndefiniteComposite, logger *zap.Logger) *AutoCloseService {
	return &AutoCloseService{
		repo:    repo,
		manager: manager,
		indef:   indef,
		logger:  logger.Named("autoclose-service"),
	}
}

var _ jobs.Handler = (*AutoCloseService)(nil)

// HandleAutoClose re-evaluates the open cases mentioning username and
// invalidates those whose users are all indefinitely blocked.
func (s *AutoCloseService) HandleAutoClose(ctx context.Context, username string) error {
	caseIDs, err := s.repo.ListOpenCaseIDsMentioningUser(ctx, username)
	if err != nil {
		return err
	}

	for _, caseID := range caseIDs {
		c, err := s.repo.GetByID(ctx, caseID)
		if err != nil {
			return err
		}
		if !c.IsOpen() {
			continue
		}

		userIDs := make([]int64, len(c.Users))
		for i, u := range c.Users {
			userIDs[i] = u.User.ID
		}

		unblocked, err := s.indef.UnblockedUserIDs(ctx, userIDs)
		if err != nil {
			return err
		}
		if len(unblocked) > 0 {
			continue
		}

		if err := s.manager.UpdateStatus(ctx, caseID, models.CaseStatusInvalid, AllUsersBlockedReason); err != nil {
			return err
		}
		s.logger.Info("auto-closed case",
			zap.Int64("case_id", caseID),
			zap.Int("users", len(userIDs)))
	}

	return nil
}
