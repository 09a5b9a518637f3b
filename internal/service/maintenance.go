package service

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"diligence/internal/model"
	"diligence/internal/recurrence"
	"diligence/internal/repository"
)

// ChainStatus summarises what the sweep did to one chain.
type ChainStatus string

const (
	StatusMaterialized ChainStatus = "materialized"
	StatusSkipped      ChainStatus = "skipped"
	StatusErrored      ChainStatus = "errored"
)

// ChainOutcome is one line of a maintenance report.
type ChainOutcome struct {
	TaskID  string
	ChainID string
	Title   string
	Status  ChainStatus
	Outcome Outcome
	Created []string
	Err     error
}

// MaintenanceReport lists per-chain outcomes of one sweep.
type MaintenanceReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	// AlreadyRunning is set when another sweep held the slot; nothing ran.
	AlreadyRunning bool
	// Cancelled is set when the context ended before every chain was visited.
	Cancelled bool
	// Err is a failure to list candidates at all.
	Err   error
	Items []ChainOutcome
}

// Counts tallies items by status.
func (r MaintenanceReport) Counts() (materialized, skipped, errored int) {
	for _, item := range r.Items {
		switch item.Status {
		case StatusMaterialized:
			materialized++
		case StatusSkipped:
			skipped++
		case StatusErrored:
			errored++
		}
	}
	return materialized, skipped, errored
}

// MaintenanceOptions tune the sweep.
type MaintenanceOptions struct {
	Location   *time.Location
	Policy     CatchUpPolicy
	MaxCatchUp int
	Now        func() time.Time
}

// MaintenanceService catches up recurring chains whose successors were missed
// while the app was not running.
type MaintenanceService struct {
	store        repository.TaskStore
	materializer *Materializer
	opts         MaintenanceOptions
	running      atomic.Bool
}

func NewMaintenanceService(store repository.TaskStore, materializer *Materializer, opts MaintenanceOptions) *MaintenanceService {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Policy == "" {
		opts.Policy = CatchUpSkip
	}
	if opts.MaxCatchUp < 1 {
		opts.MaxCatchUp = 366
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &MaintenanceService{store: store, materializer: materializer, opts: opts}
}

// Run performs one sweep. A call made while another sweep is active returns
// immediately with AlreadyRunning set.
func (s *MaintenanceService) Run(ctx context.Context) MaintenanceReport {
	if !s.running.CompareAndSwap(false, true) {
		log.Println("[info] maintenance already running, skip")
		return MaintenanceReport{AlreadyRunning: true}
	}
	defer s.running.Store(false)

	now := s.opts.Now().In(s.opts.Location)
	report := MaintenanceReport{StartedAt: now}

	tasks, err := s.store.ListPastDueRecurring(ctx, recurrence.StartOfDay(now))
	if err != nil {
		log.Printf("[warn] maintenance: %v", err)
		report.Err = err
		report.FinishedAt = s.opts.Now().In(s.opts.Location)
		return report
	}

	for i := range tasks {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		item := s.sweepChain(ctx, &tasks[i], now)
		report.Items = append(report.Items, item)
	}

	report.FinishedAt = s.opts.Now().In(s.opts.Location)
	materialized, skipped, errored := report.Counts()
	log.Printf("[info] maintenance done policy=%s materialized=%d skipped=%d errored=%d",
		s.opts.Policy, materialized, skipped, errored)
	return report
}

func (s *MaintenanceService) sweepChain(ctx context.Context, task *model.Task, now time.Time) ChainOutcome {
	item := ChainOutcome{TaskID: task.ID, ChainID: chainOf(task), Title: task.Title}

	res, err := s.materializer.CatchUp(ctx, task, now, s.opts.Policy, s.opts.MaxCatchUp)
	if err != nil {
		item.Status = StatusErrored
		item.Err = err
		log.Printf("[warn] maintenance task=%s: %v", task.ShortID(), err)
		return item
	}

	item.Outcome = res.Outcome
	for _, created := range res.Created {
		item.Created = append(item.Created, created.ID)
	}
	if res.Outcome == OutcomeMaterialized {
		item.Status = StatusMaterialized
	} else {
		item.Status = StatusSkipped
	}
	log.Printf("[info] maintenance task=%s outcome=%s created=%d", task.ShortID(), res.Outcome, len(res.Created))
	return item
}
