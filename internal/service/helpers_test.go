package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"diligence/internal/model"
	"diligence/internal/repository"
)

type recordingBridge struct {
	mu    sync.Mutex
	tasks []model.Task
}

func (b *recordingBridge) NotifyTaskCreated(task model.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks = append(b.tasks, task)
}

func (b *recordingBridge) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tasks)
}

// failingStore injects errors into an otherwise real store.
type failingStore struct {
	repository.TaskStore
	createErr error
	listErr   error
}

func (f *failingStore) Transaction(ctx context.Context, fn func(tx repository.TaskStore) error) error {
	return f.TaskStore.Transaction(ctx, func(tx repository.TaskStore) error {
		return fn(&failingStore{TaskStore: tx, createErr: f.createErr})
	})
}

func (f *failingStore) Create(ctx context.Context, task *model.Task) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.TaskStore.Create(ctx, task)
}

func (f *failingStore) ListPastDueRecurring(ctx context.Context, before time.Time) ([]model.Task, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.TaskStore.ListPastDueRecurring(ctx, before)
}

type testEnv struct {
	repo     *repository.TaskRepository
	sections *repository.SectionRepository
	bridge   *recordingBridge
	mat      *Materializer
	tasks    *TaskService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.NewDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	env := &testEnv{
		repo:     repository.NewTaskRepository(db),
		sections: repository.NewSectionRepository(db),
		bridge:   &recordingBridge{},
	}
	env.mat = NewMaterializer(env.repo, env.bridge, time.UTC)
	env.tasks = NewTaskService(env.repo, env.sections, env.mat, env.bridge)
	return env
}

// insert stores a task directly, bypassing validation.
func (e *testEnv) insert(t *testing.T, title string, due time.Time, rule model.RecurrenceRule) *model.Task {
	t.Helper()
	id := uuid.NewString()
	task := &model.Task{
		ID:              id,
		ChainID:         id,
		Title:           title,
		DueDate:         &due,
		Recurrence:      rule,
		OccurrenceCount: 1,
	}
	require.NoError(t, e.repo.Create(context.Background(), task))
	return task
}

func (e *testEnv) chain(t *testing.T, chainID string) []model.Task {
	t.Helper()
	tasks, err := e.repo.ListChain(context.Background(), chainID)
	require.NoError(t, err)
	return tasks
}

func at(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func ptrTime(t time.Time) *time.Time { return &t }
