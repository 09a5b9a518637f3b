package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"diligence/internal/model"
	"diligence/internal/recurrence"
	"diligence/internal/reminders"
	"diligence/internal/repository"
)

// ErrStorePersist wraps any failure of the task store while materializing.
var ErrStorePersist = errors.New("persist task")

// Outcome is the result of one materialization attempt.
type Outcome string

const (
	OutcomeMaterialized Outcome = "materialized"
	// OutcomeAlreadyLive means the chain already has an open occurrence.
	OutcomeAlreadyLive Outcome = "already_live"
	OutcomeChainEnded  Outcome = "chain_ended"
	// OutcomeNotDue means a catch-up found nothing overdue to advance.
	OutcomeNotDue Outcome = "not_due"
	// OutcomeSuperseded means the occurrence already has a successor and the
	// chain has moved past it.
	OutcomeSuperseded Outcome = "superseded"
)

// CatchUpPolicy decides how overdue chains are advanced by maintenance.
type CatchUpPolicy string

const (
	// CatchUpSkip jumps to the first occurrence dated today or later.
	CatchUpSkip CatchUpPolicy = "skip"
	// CatchUpFull creates every missed occurrence in order.
	CatchUpFull CatchUpPolicy = "full"
)

// maxSkipSteps bounds the date walk of a skip catch-up.
const maxSkipSteps = 1 << 16

// Result describes what a materialization did.
type Result struct {
	Outcome Outcome
	// Task is the chain's open occurrence afterwards, if any.
	Task *model.Task
	// Created lists every record written, oldest first.
	Created []model.Task
	// Missed lists IDs of occurrences closed without completion.
	Missed []string
}

// Materializer is the only component allowed to create successor occurrences.
type Materializer struct {
	store  repository.TaskStore
	bridge reminders.Bridge
	loc    *time.Location
	newID  func() string
	mu     sync.Mutex
}

func NewMaterializer(store repository.TaskStore, bridge reminders.Bridge, loc *time.Location) *Materializer {
	if bridge == nil {
		bridge = reminders.Nop{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Materializer{store: store, bridge: bridge, loc: loc, newID: uuid.NewString}
}

// Materialize creates the successor of a completed occurrence. Calling it again
// for the same occurrence returns the existing successor.
func (m *Materializer) Materialize(ctx context.Context, origin *model.Task) (Result, error) {
	if err := precheck(origin); err != nil {
		return Result{}, err
	}
	if !origin.Recurrence.Recurring() || origin.DueDate == nil {
		return Result{Outcome: OutcomeChainEnded}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var res Result
	err := m.store.Transaction(ctx, func(tx repository.TaskStore) error {
		current, err := tx.FindByID(ctx, origin.ID)
		if err != nil {
			return err
		}
		if current.Live() {
			res = Result{Outcome: OutcomeAlreadyLive, Task: current}
			return nil
		}
		live, err := tx.FindLiveInChain(ctx, chainOf(current), current.ID)
		if err != nil {
			return err
		}
		if live != nil {
			res = Result{Outcome: OutcomeAlreadyLive, Task: live}
			return nil
		}
		succ, err := tx.FindSuccessor(ctx, current.ID)
		if err != nil {
			return err
		}
		if succ != nil {
			res = Result{Outcome: OutcomeSuperseded, Task: succ}
			return nil
		}
		if current.DueDate == nil {
			res = Result{Outcome: OutcomeChainEnded}
			return nil
		}

		generated := occurrences(current)
		due, ok := recurrence.Next(current.DueDate.In(m.loc), current.Recurrence, generated)
		if !ok {
			res = Result{Outcome: OutcomeChainEnded}
			return nil
		}

		successor := m.clone(current, due, generated+1)
		if err := tx.Create(ctx, &successor); err != nil {
			return err
		}
		res = Result{Outcome: OutcomeMaterialized, Task: &successor, Created: []model.Task{successor}}
		return nil
	})
	if err != nil {
		return Result{}, persistError(err)
	}

	m.notify(res)
	return res, nil
}

// CatchUp advances an overdue live occurrence so the chain has an open
// occurrence again. Every write happens in one transaction.
func (m *Materializer) CatchUp(ctx context.Context, origin *model.Task, now time.Time, policy CatchUpPolicy, limit int) (Result, error) {
	if err := precheck(origin); err != nil {
		return Result{}, err
	}
	if !origin.Recurrence.Recurring() {
		return Result{Outcome: OutcomeChainEnded}, nil
	}
	if limit < 1 {
		limit = 1
	}

	now = now.In(m.loc)
	today := recurrence.StartOfDay(now)

	m.mu.Lock()
	defer m.mu.Unlock()

	var res Result
	err := m.store.Transaction(ctx, func(tx repository.TaskStore) error {
		current, err := tx.FindByID(ctx, origin.ID)
		if err != nil {
			return err
		}
		if !current.Live() || current.DueDate == nil || !current.DueDate.Before(today) {
			res = Result{Outcome: OutcomeNotDue}
			return nil
		}
		live, err := tx.FindLiveInChain(ctx, chainOf(current), current.ID)
		if err != nil {
			return err
		}
		if live != nil {
			res = Result{Outcome: OutcomeAlreadyLive, Task: live}
			return nil
		}

		switch policy {
		case CatchUpFull:
			res, err = m.catchUpFull(ctx, tx, current, now, today, limit)
		default:
			res, err = m.catchUpSkip(ctx, tx, current, now, today)
		}
		return err
	})
	if err != nil {
		return Result{}, persistError(err)
	}

	m.notify(res)
	return res, nil
}

func (m *Materializer) catchUpSkip(ctx context.Context, tx repository.TaskStore, current *model.Task, now, today time.Time) (Result, error) {
	generated := occurrences(current)
	prior := current.DueDate.In(m.loc)

	var next time.Time
	for step := 0; ; step++ {
		if step == maxSkipSteps {
			return Result{Outcome: OutcomeChainEnded}, nil
		}
		candidate, ok := recurrence.Next(prior, current.Recurrence, generated)
		if !ok {
			return Result{Outcome: OutcomeChainEnded}, nil
		}
		if !candidate.Before(today) {
			next = candidate
			break
		}
		prior = candidate
	}

	successor := m.clone(current, next, generated+1)
	missedAt := now
	current.MissedAt = &missedAt
	if err := tx.Save(ctx, current); err != nil {
		return Result{}, err
	}
	if err := tx.Create(ctx, &successor); err != nil {
		return Result{}, err
	}
	return Result{
		Outcome: OutcomeMaterialized,
		Task:    &successor,
		Created: []model.Task{successor},
		Missed:  []string{current.ID},
	}, nil
}

func (m *Materializer) catchUpFull(ctx context.Context, tx repository.TaskStore, current *model.Task, now, today time.Time, limit int) (Result, error) {
	generated := occurrences(current)
	prior := current.DueDate.In(m.loc)
	cur := current

	var created []*model.Task
	var missed []string
	for len(created) < limit {
		next, ok := recurrence.Next(prior, cur.Recurrence, generated)
		if !ok {
			break
		}
		successor := m.clone(cur, next, generated+1)
		missedAt := now
		cur.MissedAt = &missedAt
		if err := tx.Save(ctx, cur); err != nil {
			return Result{}, err
		}
		if err := tx.Create(ctx, &successor); err != nil {
			return Result{}, err
		}
		missed = append(missed, cur.ID)
		created = append(created, &successor)

		generated++
		prior = next
		cur = &successor
		if !next.Before(today) {
			break
		}
	}

	if len(created) == 0 {
		return Result{Outcome: OutcomeChainEnded}, nil
	}
	res := Result{Outcome: OutcomeMaterialized, Task: cur, Missed: missed}
	for _, t := range created {
		res.Created = append(res.Created, *t)
	}
	return res, nil
}

func (m *Materializer) clone(origin *model.Task, due time.Time, count int) model.Task {
	rule := origin.Recurrence
	if rule.EndDate != nil {
		end := *rule.EndDate
		rule.EndDate = &end
	}
	var section *uint
	if origin.SectionID != nil {
		id := *origin.SectionID
		section = &id
	}
	prev := origin.ID

	return model.Task{
		ID:              m.newID(),
		ChainID:         chainOf(origin),
		PredecessorID:   &prev,
		SectionID:       section,
		Title:           origin.Title,
		Description:     origin.Description,
		Priority:        origin.Priority,
		Amount:          origin.Amount,
		SourceEmailID:   origin.SourceEmailID,
		DueDate:         &due,
		Recurrence:      rule,
		OccurrenceCount: count,
	}
}

// notify mirrors the occurrences that are still open after the write.
func (m *Materializer) notify(res Result) {
	for _, t := range res.Created {
		if t.Live() {
			m.bridge.NotifyTaskCreated(t)
		}
	}
}

func precheck(origin *model.Task) error {
	if origin == nil || origin.ID == "" {
		return fmt.Errorf("%w: missing task", repository.ErrNotFound)
	}
	if err := recurrence.Validate(origin.Recurrence); err != nil {
		return fmt.Errorf("task %s: %w", origin.ShortID(), err)
	}
	return nil
}

func persistError(err error) error {
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorePersist, err)
}

func chainOf(t *model.Task) string {
	if t.ChainID != "" {
		return t.ChainID
	}
	return t.ID
}

func occurrences(t *model.Task) int {
	if t.OccurrenceCount < 1 {
		return 1
	}
	return t.OccurrenceCount
}
