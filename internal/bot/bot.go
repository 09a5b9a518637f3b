// Package bot exposes the task list over a Telegram chat owned by one user.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"diligence/internal/model"
	"diligence/internal/recurrence"
	"diligence/internal/reminders"
	"diligence/internal/repository"
	"diligence/internal/service"
)

const cbCompletePrefix = "complete:"

// sender is the part of *tgbotapi.BotAPI used by handlers.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api       *tgbotapi.BotAPI
	send      sender
	ownerID   int64
	loc       *time.Location
	taskSvc   *service.TaskService
	agendaSvc *service.AgendaService
	sweep     *service.MaintenanceService
	now       func() time.Time
}

func New(api *tgbotapi.BotAPI, ownerID int64, loc *time.Location, taskSvc *service.TaskService, agendaSvc *service.AgendaService, sweep *service.MaintenanceService) *Bot {
	log.Printf("[info] bot authorized on account %s", api.Self.UserName)
	return &Bot{
		api:       api,
		send:      api,
		ownerID:   ownerID,
		loc:       loc,
		taskSvc:   taskSvc,
		agendaSvc: agendaSvc,
		sweep:     sweep,
		now:       time.Now,
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.dispatch(ctx, update)
	}

	return ctx.Err()
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			log.Printf("[warn] handle callback: %v", err)
		}
	case update.Message != nil:
		if err := b.handleMessage(ctx, update.Message); err != nil {
			log.Printf("[warn] handle message: %v", err)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.Chat == nil || msg.Chat.ID != b.ownerID {
		return nil
	}
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "Send /help for the list of commands.")
	}

	log.Printf("[info] command /%s %s", msg.Command(), msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		return b.sendText(msg.Chat.ID, helpText)
	case "tasks", "agenda":
		return b.handleAgenda(ctx, msg.Chat.ID)
	case "add":
		return b.handleAdd(ctx, msg)
	case "done", "complete":
		return b.handleDone(ctx, msg.Chat.ID, msg.CommandArguments())
	case "sweep":
		return b.handleSweep(ctx, msg.Chat.ID)
	case "sections":
		return b.handleSections(ctx, msg.Chat.ID)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

const helpText = "ℹ️ <b>Commands</b>\n" +
	"• /tasks — open tasks\n" +
	"• /add title; due 2025-11-30; monthly; every 2; on mon,wed; until 2026-01-01; times 5; section Home\n" +
	"• /done &lt;id&gt; — complete a task\n" +
	"• /sections — list sections\n" +
	"• /sweep — catch up missed recurring tasks"

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.Message == nil || cb.Message.Chat == nil || cb.Message.Chat.ID != b.ownerID {
		return nil
	}
	if _, err := b.send.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("[warn] answer callback: %v", err)
	}
	if id, ok := strings.CutPrefix(cb.Data, cbCompletePrefix); ok {
		return b.handleDone(ctx, cb.Message.Chat.ID, id)
	}
	return nil
}

func (b *Bot) handleAgenda(ctx context.Context, chatID int64) error {
	text, err := b.agendaSvc.Summary(ctx, b.now().In(b.loc))
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not build the agenda: %s", escape(err.Error())))
	}

	tasks, err := b.taskSvc.ListLive(ctx)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard, ok := completeKeyboard(tasks); ok {
		msg.ReplyMarkup = keyboard
	}
	_, err = b.send.Send(msg)
	return err
}

func (b *Bot) handleAdd(ctx context.Context, msg *tgbotapi.Message) error {
	input, err := ParseAddArgs(msg.CommandArguments(), b.loc)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Cannot read that: %s", escape(err.Error())))
	}
	task, err := b.taskSvc.CreateTask(ctx, input)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not save the task: %s", escape(err.Error())))
	}
	log.Printf("[info] task created id=%s recurring=%t", task.ShortID(), task.Recurrence.Recurring())
	return b.sendText(msg.Chat.ID, "✅ <b>Saved</b>\n"+reminders.FormatReminder(*task, b.loc))
}

func (b *Bot) handleDone(ctx context.Context, chatID int64, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return b.sendText(chatID, "Give me a task id: /done 1a2b3c4d")
	}

	task, res, err := b.taskSvc.CompleteTask(ctx, ref, b.now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return b.sendText(chatID, "Task not found.")
	case errors.Is(err, repository.ErrAmbiguous):
		return b.sendText(chatID, "That id matches several tasks, use a longer one.")
	case err != nil && task == nil:
		return b.sendText(chatID, fmt.Sprintf("Error: %s", escape(err.Error())))
	case err != nil:
		return b.sendText(chatID, fmt.Sprintf("✅ «%s» done, but the next occurrence failed: %s",
			escape(task.Title), escape(err.Error())))
	}

	text := fmt.Sprintf("✅ «%s» done.", escape(task.Title))
	switch res.Outcome {
	case service.OutcomeMaterialized, service.OutcomeAlreadyLive:
		if res.Task != nil && res.Task.DueDate != nil {
			text += fmt.Sprintf("\n♻️ Next: %s", res.Task.DueDate.In(b.loc).Format("Mon 2006-01-02"))
		}
	case service.OutcomeChainEnded:
		if task.Recurrence.Recurring() {
			text += "\n🏁 That was the last one."
		}
	}
	return b.sendText(chatID, text)
}

func (b *Bot) handleSweep(ctx context.Context, chatID int64) error {
	report := b.sweep.Run(ctx)
	if report.AlreadyRunning {
		return b.sendText(chatID, "A sweep is already running.")
	}
	if report.Err != nil {
		return b.sendText(chatID, fmt.Sprintf("Sweep failed: %s", escape(report.Err.Error())))
	}
	materialized, skipped, errored := report.Counts()
	return b.sendText(chatID, fmt.Sprintf("🧹 Sweep: %d caught up, %d skipped, %d failed.", materialized, skipped, errored))
}

func (b *Bot) handleSections(ctx context.Context, chatID int64) error {
	sections, err := b.taskSvc.Sections(ctx)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not list sections: %s", escape(err.Error())))
	}
	if len(sections) == 0 {
		return b.sendText(chatID, "No sections yet. Add one with /add title; section Home")
	}
	var builder strings.Builder
	builder.WriteString("📂 <b>Sections</b>\n")
	for _, section := range sections {
		builder.WriteString(fmt.Sprintf("• %s\n", escape(section.Name)))
	}
	return b.sendText(chatID, strings.TrimSpace(builder.String()))
}

// SendAgenda pushes the agenda to the owner, used by the daily job.
func (b *Bot) SendAgenda(ctx context.Context) error {
	return b.handleAgenda(ctx, b.ownerID)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.send.Send(msg)
	return err
}

func completeKeyboard(tasks []model.Task) (tgbotapi.InlineKeyboardMarkup, bool) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, task := range tasks {
		if len(rows) == 10 {
			break
		}
		label := "✅ " + truncate(strings.TrimSpace(task.Title), 40)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbCompletePrefix+task.ID),
		))
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

// ParseAddArgs reads "title; due 2025-11-30; weekly; every 2; on mon,fri;
// until 2026-01-01; times 5; section Home; priority 2".
func ParseAddArgs(raw string, loc *time.Location) (service.TaskInput, error) {
	parts := strings.Split(raw, ";")
	input := service.TaskInput{Title: strings.TrimSpace(parts[0])}
	if input.Title == "" {
		return input, fmt.Errorf("title is required")
	}

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, " ")
		value = strings.TrimSpace(value)

		switch strings.ToLower(key) {
		case "due":
			d, err := recurrence.ParseDate(value, loc)
			if err != nil {
				return input, fmt.Errorf("due date must look like 2025-11-30")
			}
			input.DueDate = &d
		case "every":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return input, fmt.Errorf("every needs a positive number")
			}
			input.Recurrence.Interval = n
		case "on":
			days, err := recurrence.ParseWeekdays(value)
			if err != nil {
				return input, err
			}
			input.Recurrence.Weekdays = days
			if input.Recurrence.Pattern == "" {
				input.Recurrence.Pattern = model.PatternCustom
			}
		case "until":
			d, err := recurrence.ParseDate(value, loc)
			if err != nil {
				return input, fmt.Errorf("until date must look like 2025-11-30")
			}
			input.Recurrence.EndType = model.EndOnDate
			input.Recurrence.EndDate = &d
		case "times":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return input, fmt.Errorf("times needs a positive number")
			}
			input.Recurrence.EndType = model.EndAfterCount
			input.Recurrence.EndCount = n
		case "section":
			input.Section = value
		case "priority":
			n, err := strconv.Atoi(value)
			if err != nil {
				return input, fmt.Errorf("priority needs a number")
			}
			input.Priority = n
		default:
			pattern, err := recurrence.ParsePattern(part)
			if err != nil {
				return input, fmt.Errorf("unknown option %q", part)
			}
			input.Recurrence.Pattern = pattern
		}
	}
	return input, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}
