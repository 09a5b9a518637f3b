package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"diligence/internal/config"
	"diligence/internal/recurrence"
	"diligence/internal/reminders"
	"diligence/internal/repository"
	"diligence/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wired services for one command invocation.
type app struct {
	cfg         config.Config
	db          *gorm.DB
	taskRepo    *repository.TaskRepository
	sectionRepo *repository.SectionRepository
	bridge      reminders.Bridge
	tasks       *service.TaskService
	agenda      *service.AgendaService
	sweep       *service.MaintenanceService
}

func newApp(cfg config.Config, bridge reminders.Bridge) (*app, error) {
	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	if bridge == nil {
		bridge = reminders.Nop{}
	}

	taskRepo := repository.NewTaskRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	materializer := service.NewMaterializer(taskRepo, bridge, cfg.Location)

	return &app{
		cfg:         cfg,
		db:          db,
		taskRepo:    taskRepo,
		sectionRepo: sectionRepo,
		bridge:      bridge,
		tasks:       service.NewTaskService(taskRepo, sectionRepo, materializer, bridge),
		agenda:      service.NewAgendaService(taskRepo, sectionRepo),
		sweep: service.NewMaintenanceService(taskRepo, materializer, service.MaintenanceOptions{
			Location:   cfg.Location,
			Policy:     service.CatchUpPolicy(cfg.CatchUpPolicy),
			MaxCatchUp: cfg.MaxCatchUp,
		}),
	}, nil
}

func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

type rootOptions struct {
	dbPath string
	policy string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "diligence",
		Short:         "Personal task list with recurring tasks.",
		Long:          `Diligence keeps a task list in SQLite, rolls recurring tasks forward when they are completed and catches up chains that were missed while it was not running.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides DATABASE_URL)")
	root.PersistentFlags().StringVar(&opts.policy, "policy", "", "catch-up policy: skip or full (overrides CATCH_UP_POLICY)")

	root.AddCommand(
		newServeCmd(opts),
		newSweepCmd(opts),
		newAddCmd(opts),
		newCompleteCmd(opts),
		newDeleteCmd(opts),
		newListCmd(opts),
	)
	return root
}

func loadConfig(opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if opts.dbPath != "" {
		cfg.DatabaseURL = opts.dbPath
	}
	switch opts.policy {
	case "":
	case string(service.CatchUpSkip), string(service.CatchUpFull):
		cfg.CatchUpPolicy = opts.policy
	default:
		return cfg, fmt.Errorf("--policy must be skip or full, got %q", opts.policy)
	}
	return cfg, nil
}

func parseDay(raw string, loc *time.Location) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := recurrence.ParseDate(raw, loc)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
