package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diligence/internal/model"
	"diligence/internal/recurrence"
)

func newSweep(env *testEnv, policy CatchUpPolicy, maxCatchUp int, now time.Time) *MaintenanceService {
	return NewMaintenanceService(env.repo, env.mat, MaintenanceOptions{
		Location:   time.UTC,
		Policy:     policy,
		MaxCatchUp: maxCatchUp,
		Now:        func() time.Time { return now },
	})
}

var daily = model.RecurrenceRule{Pattern: model.PatternDaily, Interval: 1}

func TestMaintenance_SkipJumpsToToday(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	now := at(2025, 10, 14, 12)

	task := env.insert(t, "Journal", at(2025, 10, 1, 9), daily)

	report := newSweep(env, CatchUpSkip, 0, now).Run(ctx)
	require.Nil(t, report.Err)
	require.Len(t, report.Items, 1)
	item := report.Items[0]
	assert.Equal(t, StatusMaterialized, item.Status)
	assert.Equal(t, OutcomeMaterialized, item.Outcome)
	require.Len(t, item.Created, 1)

	chain := env.chain(t, task.ChainID)
	require.Len(t, chain, 2)
	assert.NotNil(t, chain[0].MissedAt)
	assert.False(t, chain[0].IsCompleted)
	assert.True(t, chain[1].Live())
	assert.True(t, chain[1].DueDate.Equal(at(2025, 10, 14, 9)))
	assert.Equal(t, 2, chain[1].OccurrenceCount, "skipped dates are not counted")
	assert.Equal(t, 1, env.bridge.count())
}

func TestMaintenance_SkipKeepsWeeklyAnchor(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	task := env.insert(t, "Bins out", at(2025, 9, 1, 20), model.RecurrenceRule{Pattern: model.PatternWeekly, Interval: 1})
	newSweep(env, CatchUpSkip, 0, at(2025, 10, 14, 8)).Run(ctx)

	chain := env.chain(t, task.ChainID)
	require.Len(t, chain, 2)
	assert.True(t, chain[1].DueDate.Equal(at(2025, 10, 20, 20)), "got %s", chain[1].DueDate)
	assert.Equal(t, time.Monday, chain[1].DueDate.Weekday())
}

func TestMaintenance_FullCreatesEveryMissedOccurrence(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	task := env.insert(t, "Meds", at(2025, 10, 11, 9), daily)
	report := newSweep(env, CatchUpFull, 0, at(2025, 10, 14, 12)).Run(ctx)
	require.Len(t, report.Items, 1)
	assert.Len(t, report.Items[0].Created, 3)

	chain := env.chain(t, task.ChainID)
	require.Len(t, chain, 4)
	for i, occ := range chain[:3] {
		assert.NotNil(t, occ.MissedAt, "occurrence %d", i)
	}
	last := chain[3]
	assert.True(t, last.Live())
	assert.True(t, last.DueDate.Equal(at(2025, 10, 14, 9)))
	assert.Equal(t, 4, last.OccurrenceCount)
	assert.Equal(t, 1, env.bridge.count(), "only the open occurrence is mirrored")
}

func TestMaintenance_FullRespectsLimit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	task := env.insert(t, "Meds", at(2025, 10, 11, 9), daily)
	newSweep(env, CatchUpFull, 2, at(2025, 10, 14, 12)).Run(ctx)

	chain := env.chain(t, task.ChainID)
	require.Len(t, chain, 3)
	last := chain[2]
	assert.True(t, last.Live())
	assert.True(t, last.DueDate.Equal(at(2025, 10, 13, 9)))
}

func TestMaintenance_FullStopsAtEndCount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	rule := daily
	rule.EndType = model.EndAfterCount
	rule.EndCount = 2
	task := env.insert(t, "Course", at(2025, 10, 11, 9), rule)
	newSweep(env, CatchUpFull, 0, at(2025, 10, 14, 12)).Run(ctx)

	chain := env.chain(t, task.ChainID)
	require.Len(t, chain, 2)
	assert.True(t, chain[1].Live())
	assert.True(t, chain[1].DueDate.Equal(at(2025, 10, 12, 9)))
}

func TestMaintenance_EndedChainStaysOpen(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	rule := daily
	rule.EndType = model.EndOnDate
	rule.EndDate = ptrTime(at(2025, 10, 5, 0))
	task := env.insert(t, "Trial", at(2025, 10, 1, 9), rule)

	report := newSweep(env, CatchUpSkip, 0, at(2025, 10, 14, 12)).Run(ctx)
	require.Len(t, report.Items, 1)
	assert.Equal(t, StatusSkipped, report.Items[0].Status)
	assert.Equal(t, OutcomeChainEnded, report.Items[0].Outcome)

	chain := env.chain(t, task.ChainID)
	require.Len(t, chain, 1)
	assert.True(t, chain[0].Live())
}

func TestMaintenance_SecondRunIsNoop(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	task := env.insert(t, "Journal", at(2025, 10, 1, 9), daily)
	sweep := newSweep(env, CatchUpSkip, 0, at(2025, 10, 14, 12))

	first := sweep.Run(ctx)
	second := sweep.Run(ctx)

	assert.Len(t, first.Items, 1)
	assert.Empty(t, second.Items)
	assert.Len(t, env.chain(t, task.ChainID), 2)
}

func TestMaintenance_DueTodayIsNotOverdue(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.insert(t, "Later today", at(2025, 10, 14, 1), daily)
	report := newSweep(env, CatchUpSkip, 0, at(2025, 10, 14, 23)).Run(ctx)

	assert.Empty(t, report.Items)
}

func TestMaintenance_IsolatesFailures(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.insert(t, "Broken", at(2025, 10, 1, 9), model.RecurrenceRule{Pattern: model.PatternCustom, Interval: 1})
	good := env.insert(t, "Fine", at(2025, 10, 2, 9), daily)

	report := newSweep(env, CatchUpSkip, 0, at(2025, 10, 14, 12)).Run(ctx)
	require.Len(t, report.Items, 2)

	assert.Equal(t, StatusErrored, report.Items[0].Status)
	assert.ErrorIs(t, report.Items[0].Err, recurrence.ErrRuleMalformed)
	assert.Equal(t, StatusMaterialized, report.Items[1].Status)
	assert.Equal(t, good.ID, report.Items[1].TaskID)

	materialized, skipped, errored := report.Counts()
	assert.Equal(t, 1, materialized)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, 1, errored)
}

func TestMaintenance_PersistFailurePerItem(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	a := env.insert(t, "A", at(2025, 10, 1, 9), daily)
	b := env.insert(t, "B", at(2025, 10, 2, 9), daily)

	store := &failingStore{TaskStore: env.repo, createErr: errors.New("readonly database")}
	mat := NewMaterializer(store, env.bridge, time.UTC)
	sweep := NewMaintenanceService(store, mat, MaintenanceOptions{
		Location: time.UTC,
		Now:      func() time.Time { return at(2025, 10, 14, 12) },
	})

	report := sweep.Run(ctx)
	require.Len(t, report.Items, 2)
	for _, item := range report.Items {
		assert.Equal(t, StatusErrored, item.Status)
		assert.ErrorIs(t, item.Err, ErrStorePersist)
	}

	// The missed mark is rolled back with the failed create.
	for _, task := range []*model.Task{a, b} {
		chain := env.chain(t, task.ChainID)
		require.Len(t, chain, 1)
		assert.True(t, chain[0].Live())
	}
}

func TestMaintenance_ListFailure(t *testing.T) {
	env := newTestEnv(t)
	store := &failingStore{TaskStore: env.repo, listErr: errors.New("no such table")}
	sweep := NewMaintenanceService(store, env.mat, MaintenanceOptions{Location: time.UTC})

	report := sweep.Run(context.Background())
	assert.EqualError(t, report.Err, "no such table")
	assert.Empty(t, report.Items)
}

func TestMaintenance_SingleFlight(t *testing.T) {
	env := newTestEnv(t)
	env.insert(t, "Journal", at(2025, 10, 1, 9), daily)
	sweep := newSweep(env, CatchUpSkip, 0, at(2025, 10, 14, 12))

	sweep.running.Store(true)
	report := sweep.Run(context.Background())
	assert.True(t, report.AlreadyRunning)
	assert.Empty(t, report.Items)

	sweep.running.Store(false)
	report = sweep.Run(context.Background())
	assert.False(t, report.AlreadyRunning)
	assert.Len(t, report.Items, 1)
}

func TestMaintenance_CancelledBetweenItems(t *testing.T) {
	env := newTestEnv(t)
	env.insert(t, "Journal", at(2025, 10, 1, 9), daily)

	ctx, cancel := context.WithCancel(context.Background())
	sweep := newSweep(env, CatchUpSkip, 0, at(2025, 10, 14, 12))
	// The listing may fail on the cancelled context; either way no chain runs.
	cancel()

	report := sweep.Run(ctx)
	assert.Empty(t, report.Items)
	assert.True(t, report.Cancelled || report.Err != nil)
}

func TestNewMaintenanceService_Defaults(t *testing.T) {
	env := newTestEnv(t)
	sweep := NewMaintenanceService(env.repo, env.mat, MaintenanceOptions{})

	assert.Equal(t, CatchUpSkip, sweep.opts.Policy)
	assert.Equal(t, 366, sweep.opts.MaxCatchUp)
	assert.NotNil(t, sweep.opts.Location)
	assert.NotNil(t, sweep.opts.Now)
}

func TestMaintenance_ReportTimesInLocation(t *testing.T) {
	env := newTestEnv(t)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	sweep := NewMaintenanceService(env.repo, env.mat, MaintenanceOptions{
		Location: tokyo,
		Now:      func() time.Time { return at(2025, 10, 14, 12) },
	})
	report := sweep.Run(context.Background())
	require.Nil(t, report.Err)

	assert.Equal(t, tokyo, report.StartedAt.Location())
	assert.Equal(t, tokyo, report.FinishedAt.Location())

	failing := NewMaintenanceService(&failingStore{TaskStore: env.repo, listErr: errors.New("disk gone")}, env.mat, MaintenanceOptions{
		Location: tokyo,
		Now:      func() time.Time { return at(2025, 10, 14, 12) },
	})
	report = failing.Run(context.Background())
	require.Error(t, report.Err)
	assert.Equal(t, tokyo, report.FinishedAt.Location())
}
