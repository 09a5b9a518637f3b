package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"diligence/internal/model"
)

// ErrNotFound is returned when no task matches a lookup.
var ErrNotFound = errors.New("task not found")

// ErrAmbiguous is returned when an ID prefix matches more than one task.
var ErrAmbiguous = errors.New("task id prefix is ambiguous")

// TaskStore is the persistence boundary used by the recurrence engine.
type TaskStore interface {
	// Transaction runs fn against a store bound to one database transaction.
	Transaction(ctx context.Context, fn func(tx TaskStore) error) error
	Create(ctx context.Context, task *model.Task) error
	Save(ctx context.Context, task *model.Task) error
	FindByID(ctx context.Context, id string) (*model.Task, error)
	// FindLiveInChain returns the open occurrence of a chain other than
	// excludeID, or nil when there is none.
	FindLiveInChain(ctx context.Context, chainID, excludeID string) (*model.Task, error)
	// FindSuccessor returns the occurrence materialized from id, or nil.
	FindSuccessor(ctx context.Context, id string) (*model.Task, error)
	// ListPastDueRecurring returns live recurring tasks due before the given time.
	ListPastDueRecurring(ctx context.Context, before time.Time) ([]model.Task, error)
	ListLive(ctx context.Context) ([]model.Task, error)
}

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Transaction(ctx context.Context, fn func(tx TaskStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&TaskRepository{db: tx})
	})
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	normalizeTimes(task)
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	normalizeTimes(task)
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	switch {
	case err == nil:
		return &task, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	default:
		return nil, fmt.Errorf("find task: %w", err)
	}
}

// FindByIDPrefix resolves the short IDs shown in listings.
func (r *TaskRepository) FindByIDPrefix(ctx context.Context, prefix string) (*model.Task, error) {
	if prefix == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("id LIKE ?", prefix+"%").Limit(2).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	switch len(tasks) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return &tasks[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguous, prefix)
	}
}

func (r *TaskRepository) FindLiveInChain(ctx context.Context, chainID, excludeID string) (*model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Where("chain_id = ? AND id <> ? AND is_completed = ? AND missed_at IS NULL", chainID, excludeID, false).
		Order("due_date ASC").
		Limit(1).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("find live occurrence: %w", err)
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

func (r *TaskRepository) FindSuccessor(ctx context.Context, id string) (*model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("predecessor_id = ?", id).Limit(1).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("find successor: %w", err)
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

func (r *TaskRepository) ListPastDueRecurring(ctx context.Context, before time.Time) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Where("is_completed = ? AND missed_at IS NULL", false).
		Where("recur_pattern <> ? AND recur_pattern <> ''", model.PatternNone).
		Where("due_date IS NOT NULL AND due_date < ?", before.UTC()).
		Order("due_date ASC, created_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list past due recurring: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) ListLive(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("is_completed = ? AND missed_at IS NULL", false).
		Order("due_date NULLS LAST, created_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListChain returns every occurrence of a chain, oldest first.
func (r *TaskRepository) ListChain(ctx context.Context, chainID string) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("chain_id = ?", chainID).
		Order("occurrence_count ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// Delete removes a single occurrence. Other occurrences of its chain are kept.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Task{}).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// normalizeTimes stores instants in UTC so SQLite's text comparison orders them.
func normalizeTimes(task *model.Task) {
	for _, t := range []*time.Time{task.DueDate, task.CompletedAt, task.MissedAt, task.Recurrence.EndDate} {
		if t != nil {
			*t = t.UTC()
		}
	}
}
