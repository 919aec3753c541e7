package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/casewatch/casewatch-engine/pkg/blockcheck"
	"github.com/casewatch/casewatch-engine/pkg/models"
)

type mockLookup struct {
	enabled bool
	wikis   []string
	err     error
}

func (m *mockLookup) Enabled() bool { return m.enabled }

func (m *mockLookup) AttachedWikis(_ context.Context, _ string) ([]string, error) {
	return m.wikis, m.err
}

type enqueuedJob struct {
	wikiID   string
	username string
}

type mockQueue struct {
	jobs    []enqueuedJob
	failFor map[string]error
}

func (m *mockQueue) EnqueueAutoClose(_ context.Context, wikiID, username string) error {
	if err := m.failFor[wikiID]; err != nil {
		return err
	}
	m.jobs = append(m.jobs, enqueuedJob{wikiID: wikiID, username: username})
	return nil
}

type mockIndefStore struct {
	blocked map[int64]bool
}

func (m *mockIndefStore) IndefinitelyBlockedUserIDs(_ context.Context, userIDs []int64) ([]int64, error) {
	var out []int64
	for _, id := range userIDs {
		if m.blocked[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func TestDispatch_DisabledProviderIsNoOp(t *testing.T) {
	queue := &mockQueue{}
	d := NewAutoCloseDispatcher(&mockLookup{enabled: false}, queue, "enwiki", zap.NewNop())

	err := d.Dispatch(context.Background(), "Sockmaster")
	require.NoError(t, err)
	assert.Empty(t, queue.jobs)
}

func TestDispatch_NilProviderIsNoOp(t *testing.T) {
	queue := &mockQueue{}
	d := NewAutoCloseDispatcher(nil, queue, "enwiki", zap.NewNop())

	err := d.Dispatch(context.Background(), "Sockmaster")
	require.NoError(t, err)
	assert.Empty(t, queue.jobs)
}

func TestDispatch_EnqueuesOneJobPerOtherWiki(t *testing.T) {
	queue := &mockQueue{}
	lookup := &mockLookup{enabled: true, wikis: []string{"enwiki", "dewiki", "frwiki"}}
	d := NewAutoCloseDispatcher(lookup, queue, "enwiki", zap.NewNop())

	err := d.Dispatch(context.Background(), "Sockmaster")
	require.NoError(t, err)

	require.Len(t, queue.jobs, 2, "local wiki must be skipped")
	assert.Equal(t, enqueuedJob{wikiID: "dewiki", username: "Sockmaster"}, queue.jobs[0])
	assert.Equal(t, enqueuedJob{wikiID: "frwiki", username: "Sockmaster"}, queue.jobs[1])
}

func TestDispatch_OneFailedEnqueueDoesNotAbortSiblings(t *testing.T) {
	queue := &mockQueue{failFor: map[string]error{"dewiki": errors.New("queue full")}}
	lookup := &mockLookup{enabled: true, wikis: []string{"enwiki", "dewiki", "frwiki"}}
	d := NewAutoCloseDispatcher(lookup, queue, "enwiki", zap.NewNop())

	err := d.Dispatch(context.Background(), "Sockmaster")
	require.NoError(t, err, "per-wiki failures never propagate to the caller")

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "frwiki", queue.jobs[0].wikiID)
}

func TestDispatch_LookupErrorPropagates(t *testing.T) {
	queue := &mockQueue{}
	lookup := &mockLookup{enabled: true, err: errors.New("central auth unreachable")}
	d := NewAutoCloseDispatcher(lookup, queue, "enwiki", zap.NewNop())

	err := d.Dispatch(context.Background(), "Sockmaster")
	require.Error(t, err)
	assert.Empty(t, queue.jobs)
}

func TestHandleAutoClose_InvalidatesFullyBlockedCase(t *testing.T) {
	repo := newMockCaseRepo()
	mgr := NewCaseManager(repo, zap.NewNop())
	ctx := context.Background()

	c, err := mgr.CreateCase(ctx,
		[]models.UserIdentity{{ID: 1, Name: "Sockmaster"}, {ID: 2, Name: "Sidekick"}},
		[]models.SignalMatchResult{models.NewPositiveResult("ip-match", "1.2.3.0/24", true)})
	require.NoError(t, err)

	indef := blockcheck.NewIndefiniteComposite(&mockIndefStore{blocked: map[int64]bool{1: true, 2: true}})
	svc := NewAutoCloseService(repo, mgr, indef, zap.NewNop())

	require.NoError(t, svc.HandleAutoClose(ctx, "Sockmaster"))

	got, err := mgr.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusInvalid, got.Status)
	assert.Equal(t, AllUsersBlockedReason, got.StatusReason)
}

func TestHandleAutoClose_LeavesCaseOpenWhileAnyUserUnblocked(t *testing.T) {
	repo := newMockCaseRepo()
	mgr := NewCaseManager(repo, zap.NewNop())
	ctx := context.Background()

	c, err := mgr.CreateCase(ctx,
		[]models.UserIdentity{{ID: 1, Name: "Sockmaster"}, {ID: 2, Name: "Sidekick"}},
		[]models.SignalMatchResult{models.NewPositiveResult("ip-match", "1.2.3.0/24", true)})
	require.NoError(t, err)

	indef := blockcheck.NewIndefiniteComposite(&mockIndefStore{blocked: map[int64]bool{1: true}})
	svc := NewAutoCloseService(repo, mgr, indef, zap.NewNop())

	require.NoError(t, svc.HandleAutoClose(ctx, "Sockmaster"))

	got, err := mgr.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusOpen, got.Status)
}

func TestHandleAutoClose_NoOpenCasesIsNoOp(t *testing.T) {
	repo := newMockCaseRepo()
	mgr := NewCaseManager(repo, zap.NewNop())
	indef := blockcheck.NewIndefiniteComposite()
	svc := NewAutoCloseService(repo, mgr, indef, zap.NewNop())

	require.NoError(t, svc.HandleAutoClose(context.Background(), "Nobody"))
}

func TestHandleAutoClose_Idempotent(t *testing.T) {
	repo := newMockCaseRepo()
	mgr := NewCaseManager(repo, zap.NewNop())
	ctx := context.Background()

	c, err := mgr.CreateCase(ctx,
		[]models.UserIdentity{{ID: 1, Name: "Sockmaster"}},
		[]models.SignalMatchResult{models.NewPositiveResult("ip-match", "1.2.3.0/24", true)})
	require.NoError(t, err)

	indef := blockcheck.NewIndefiniteComposite(&mockIndefStore{blocked: map[int64]bool{1: true}})
	svc := NewAutoCloseService(repo, mgr, indef, zap.NewNop())

	require.NoError(t, svc.HandleAutoClose(ctx, "Sockmaster"))
	require.NoError(t, svc.HandleAutoClose(ctx, "Sockmaster"))

	got, err := mgr.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusInvalid, got.Status)
}
