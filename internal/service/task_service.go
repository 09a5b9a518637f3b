package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"diligence/internal/model"
	"diligence/internal/recurrence"
	"diligence/internal/reminders"
	"diligence/internal/repository"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title         string
	Description   string
	Section       string
	Priority      int
	Amount        float64
	SourceEmailID string
	DueDate       *time.Time
	Recurrence    model.RecurrenceRule
}

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo     *repository.TaskRepository
	sectionRepo  *repository.SectionRepository
	materializer *Materializer
	bridge       reminders.Bridge
}

func NewTaskService(taskRepo *repository.TaskRepository, sectionRepo *repository.SectionRepository, materializer *Materializer, bridge reminders.Bridge) *TaskService {
	if bridge == nil {
		bridge = reminders.Nop{}
	}
	return &TaskService{taskRepo: taskRepo, sectionRepo: sectionRepo, materializer: materializer, bridge: bridge}
}

func (s *TaskService) CreateTask(ctx context.Context, input TaskInput) (*model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}

	rule := input.Recurrence
	if input.DueDate == nil || rule.Pattern == "" {
		rule.Pattern = model.PatternNone
	}
	if rule.Interval < 1 {
		rule.Interval = 1
	}
	if rule.EndType == "" {
		rule.EndType = model.EndNever
	}
	if err := recurrence.Validate(rule); err != nil {
		return nil, err
	}

	var sectionID *uint
	if input.Section != "" {
		section, err := s.sectionRepo.GetOrCreate(ctx, input.Section)
		if err != nil {
			return nil, err
		}
		if section != nil {
			sectionID = &section.ID
		}
	}

	id := uuid.NewString()
	task := model.Task{
		ID:              id,
		ChainID:         id,
		SectionID:       sectionID,
		Title:           title,
		Description:     strings.TrimSpace(input.Description),
		Priority:        input.Priority,
		Amount:          input.Amount,
		SourceEmailID:   input.SourceEmailID,
		DueDate:         input.DueDate,
		Recurrence:      rule,
		OccurrenceCount: 1,
	}

	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}
	s.bridge.NotifyTaskCreated(task)

	return &task, nil
}

// Get resolves a full ID or a unique prefix.
func (s *TaskService) Get(ctx context.Context, ref string) (*model.Task, error) {
	ref = strings.TrimSpace(ref)
	task, err := s.taskRepo.FindByID(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		return s.taskRepo.FindByIDPrefix(ctx, ref)
	}
	return task, err
}

func (s *TaskService) ListLive(ctx context.Context) ([]model.Task, error) {
	return s.taskRepo.ListLive(ctx)
}

func (s *TaskService) Sections(ctx context.Context) ([]model.Section, error) {
	return s.sectionRepo.List(ctx)
}

// CompleteTask marks a task as done and, for recurring tasks, materializes the
// next occurrence. Completing an already completed task retries the
// materialization, which is a no-op when the successor exists.
func (s *TaskService) CompleteTask(ctx context.Context, ref string, completedAt time.Time) (*model.Task, Result, error) {
	task, err := s.Get(ctx, ref)
	if err != nil {
		return nil, Result{}, err
	}

	if !task.IsCompleted {
		task.IsCompleted = true
		task.CompletedAt = &completedAt
		if err := s.taskRepo.Save(ctx, task); err != nil {
			return nil, Result{}, err
		}
	}

	res, err := s.materializer.Materialize(ctx, task)
	if err != nil {
		return task, Result{}, err
	}
	return task, res, nil
}

// DeleteTask removes one occurrence; the rest of its chain is kept.
func (s *TaskService) DeleteTask(ctx context.Context, ref string) error {
	task, err := s.Get(ctx, ref)
	if err != nil {
		return err
	}
	return s.taskRepo.Delete(ctx, task.ID)
}
