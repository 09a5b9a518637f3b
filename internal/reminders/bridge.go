// Package reminders mirrors newly created tasks into an external reminder
// service. Mirroring is best effort: callers never wait on it and failures
// never undo the task that triggered it.
package reminders

import (
	"fmt"
	"html"
	"log"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"diligence/internal/model"
	"diligence/internal/recurrence"
)

// Bridge receives created tasks. NotifyTaskCreated must return immediately.
type Bridge interface {
	NotifyTaskCreated(task model.Task)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) NotifyTaskCreated(model.Task) {}

// Sender is the part of *tgbotapi.BotAPI the bridge uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramBridge posts a reminder message to the owner's chat for each task.
type TelegramBridge struct {
	sender Sender
	chatID int64
	loc    *time.Location
	wg     sync.WaitGroup
}

func NewTelegramBridge(sender Sender, chatID int64, loc *time.Location) *TelegramBridge {
	if loc == nil {
		loc = time.Local
	}
	return &TelegramBridge{sender: sender, chatID: chatID, loc: loc}
}

// NotifyTaskCreated sends the reminder on its own goroutine.
func (b *TelegramBridge) NotifyTaskCreated(task model.Task) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		msg := tgbotapi.NewMessage(b.chatID, FormatReminder(task, b.loc))
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := b.sender.Send(msg); err != nil {
			log.Printf("[warn] reminder sync task=%s: %v", task.ShortID(), err)
			return
		}
		log.Printf("[info] reminder mirrored task=%s", task.ShortID())
	}()
}

// Wait blocks until in-flight notifications have finished.
func (b *TelegramBridge) Wait() {
	b.wg.Wait()
}

// FormatReminder renders the HTML message for a task.
func FormatReminder(task model.Task, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔔 <b>%s</b>", html.EscapeString(strings.TrimSpace(task.Title))))
	if task.DueDate != nil {
		d := task.DueDate.In(loc)
		sb.WriteString(fmt.Sprintf("\n   ⏰ %s (%s)", d.Format("2006-01-02"), d.Weekday().String()[:3]))
	}
	if task.Recurrence.Recurring() {
		sb.WriteString(fmt.Sprintf("\n   ♻️ %s", html.EscapeString(recurrence.DescribeRule(task.Recurrence, loc))))
	}
	if desc := strings.TrimSpace(task.Description); desc != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(desc)))
	}
	sb.WriteString(fmt.Sprintf("\n   <code>%s</code>", task.ShortID()))
	return sb.String()
}
