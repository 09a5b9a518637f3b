package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"diligence/internal/bot"
	"diligence/internal/model"
	"diligence/internal/recurrence"
	"diligence/internal/reminders"
	"diligence/internal/service"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the launch sweep, then keep sweeping on a schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var api *tgbotapi.BotAPI
			var bridge reminders.Bridge = reminders.Nop{}
			if cfg.TelegramEnabled() {
				api, err = tgbotapi.NewBotAPI(cfg.TelegramToken)
				if err != nil {
					return fmt.Errorf("create bot api: %w", err)
				}
				tg := reminders.NewTelegramBridge(api, cfg.TelegramChatID, cfg.Location)
				defer tg.Wait()
				bridge = tg
			}

			a, err := newApp(cfg, bridge)
			if err != nil {
				return err
			}
			defer a.Close()

			launchCtx, cancel := context.WithTimeout(ctx, cfg.SweepTimeout)
			report := a.sweep.Run(launchCtx)
			cancel()
			if report.Err != nil {
				log.Printf("[warn] launch sweep: %v", report.Err)
			}

			scheduler := service.NewSchedulerService(cfg.Location)
			if _, err := scheduler.ScheduleMaintenance(cfg.SweepInterval, a.sweep, cfg.SweepTimeout); err != nil {
				return fmt.Errorf("schedule maintenance: %w", err)
			}

			var telegramBot *bot.Bot
			if api != nil {
				telegramBot = bot.New(api, cfg.TelegramChatID, cfg.Location, a.tasks, a.agenda, a.sweep)
				if cfg.AgendaAt != "" {
					if _, err := scheduler.ScheduleDaily(cfg.AgendaAt, func() {
						jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
						defer cancel()
						if err := telegramBot.SendAgenda(jobCtx); err != nil {
							log.Printf("[warn] agenda: %v", err)
						}
					}); err != nil {
						return fmt.Errorf("schedule agenda: %w", err)
					}
				}
			}

			scheduler.Start()
			defer scheduler.Stop()

			log.Printf("Diligence started, sweeping every %s.", cfg.SweepInterval)
			if telegramBot != nil {
				if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("bot stopped with error: %w", err)
				}
			} else {
				<-ctx.Done()
			}
			log.Println("Shutdown complete.")
			return nil
		},
	}
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Catch up recurring tasks whose due dates passed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.sweep.Run(cmd.Context())
			if err := writeReport(cmd.OutOrStdout(), report, output); err != nil {
				return err
			}
			return report.Err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or yaml")
	return cmd
}

type addOptions struct {
	title       string
	description string
	section     string
	due         string
	pattern     string
	every       int
	on          string
	until       string
	times       int
	priority    int
	amount      float64
	email       string
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	add := &addOptions{}
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a task.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				add.title = args[0]
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			input, err := add.input(cfg.Location)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			task, err := a.tasks.CreateTask(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", task.ShortID(), task.Title, recurrence.DescribeRule(task.Recurrence, cfg.Location))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&add.title, "title", "", "task title")
	f.StringVar(&add.description, "description", "", "task description")
	f.StringVar(&add.section, "section", "", "section name")
	f.StringVar(&add.due, "due", "", "due date, YYYY-MM-DD")
	f.StringVar(&add.pattern, "repeat", "", "none, daily, weekly, biweekly, monthly, yearly, weekdays or custom")
	f.IntVar(&add.every, "every", 1, "repeat every N units")
	f.StringVar(&add.on, "on", "", "weekdays for weekly/custom, e.g. mon,wed,fri or 2,4,6")
	f.StringVar(&add.until, "until", "", "last allowed date, YYYY-MM-DD")
	f.IntVar(&add.times, "times", 0, "stop after N occurrences")
	f.IntVar(&add.priority, "priority", 0, "priority")
	f.Float64Var(&add.amount, "amount", 0, "amount")
	f.StringVar(&add.email, "email", "", "source email message id")
	return cmd
}

func (o *addOptions) input(loc *time.Location) (service.TaskInput, error) {
	due, err := parseDay(o.due, loc)
	if err != nil {
		return service.TaskInput{}, err
	}
	pattern, err := recurrence.ParsePattern(o.pattern)
	if err != nil {
		return service.TaskInput{}, err
	}
	days, err := recurrence.ParseWeekdays(o.on)
	if err != nil {
		return service.TaskInput{}, err
	}
	if pattern == model.PatternNone && !days.Empty() {
		pattern = model.PatternCustom
	}

	rule := model.RecurrenceRule{Pattern: pattern, Interval: o.every, Weekdays: days, EndType: model.EndNever}
	if o.until != "" && o.times > 0 {
		return service.TaskInput{}, fmt.Errorf("use either --until or --times")
	}
	if o.until != "" {
		end, err := parseDay(o.until, loc)
		if err != nil {
			return service.TaskInput{}, err
		}
		rule.EndType = model.EndOnDate
		rule.EndDate = end
	}
	if o.times > 0 {
		rule.EndType = model.EndAfterCount
		rule.EndCount = o.times
	}

	return service.TaskInput{
		Title:         o.title,
		Description:   o.description,
		Section:       o.section,
		Priority:      o.priority,
		Amount:        o.amount,
		SourceEmailID: o.email,
		DueDate:       due,
		Recurrence:    rule,
	}, nil
}

func newCompleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a task and schedule its next occurrence.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			task, res, err := a.tasks.CompleteTask(cmd.Context(), args[0], time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "done %s %s\n", task.ShortID(), task.Title)
			if res.Task != nil && res.Task.DueDate != nil {
				fmt.Fprintf(out, "next %s %s (%s)\n", res.Task.ShortID(), res.Task.DueDate.In(cfg.Location).Format("2006-01-02"), res.Outcome)
			}
			return nil
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one occurrence; the rest of its chain is kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.tasks.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show open tasks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			text, err := a.agenda.Summary(cmd.Context(), time.Now().In(cfg.Location))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

type reportView struct {
	StartedAt      time.Time  `yaml:"started_at"`
	FinishedAt     time.Time  `yaml:"finished_at"`
	AlreadyRunning bool       `yaml:"already_running,omitempty"`
	Cancelled      bool       `yaml:"cancelled,omitempty"`
	Error          string     `yaml:"error,omitempty"`
	Items          []itemView `yaml:"items"`
}

type itemView struct {
	Task    string   `yaml:"task"`
	Chain   string   `yaml:"chain"`
	Title   string   `yaml:"title"`
	Status  string   `yaml:"status"`
	Outcome string   `yaml:"outcome,omitempty"`
	Created []string `yaml:"created,omitempty"`
	Error   string   `yaml:"error,omitempty"`
}

func newReportView(report service.MaintenanceReport) reportView {
	view := reportView{
		StartedAt:      report.StartedAt,
		FinishedAt:     report.FinishedAt,
		AlreadyRunning: report.AlreadyRunning,
		Cancelled:      report.Cancelled,
		Items:          []itemView{},
	}
	if report.Err != nil {
		view.Error = report.Err.Error()
	}
	for _, item := range report.Items {
		iv := itemView{
			Task:    item.TaskID,
			Chain:   item.ChainID,
			Title:   item.Title,
			Status:  string(item.Status),
			Outcome: string(item.Outcome),
			Created: item.Created,
		}
		if item.Err != nil {
			iv.Error = item.Err.Error()
		}
		view.Items = append(view.Items, iv)
	}
	return view
}

func writeReport(w io.Writer, report service.MaintenanceReport, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newReportView(report)); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return enc.Close()
	case "text", "":
		materialized, skipped, errored := report.Counts()
		fmt.Fprintf(w, "materialized=%d skipped=%d errored=%d\n", materialized, skipped, errored)
		for _, item := range report.Items {
			line := fmt.Sprintf("%-12s %-8.8s %s", item.Status, item.TaskID, item.Title)
			if item.Err != nil {
				line += ": " + item.Err.Error()
			}
			fmt.Fprintln(w, line)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
