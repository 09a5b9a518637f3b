package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"diligence/internal/model"
	"diligence/internal/recurrence"
	"diligence/internal/repository"
)

// AgendaService builds human-readable summaries of open tasks.
type AgendaService struct {
	taskRepo    *repository.TaskRepository
	sectionRepo *repository.SectionRepository
}

func NewAgendaService(taskRepo *repository.TaskRepository, sectionRepo *repository.SectionRepository) *AgendaService {
	return &AgendaService{taskRepo: taskRepo, sectionRepo: sectionRepo}
}

func (s *AgendaService) Summary(ctx context.Context, now time.Time) (string, error) {
	tasks, err := s.taskRepo.ListLive(ctx)
	if err != nil {
		return "", err
	}

	sections, err := s.sectionRepo.List(ctx)
	if err != nil {
		return "", err
	}
	sectionNames := make(map[uint]string)
	for _, section := range sections {
		sectionNames[section.ID] = section.Name
	}

	var dated, undated []model.Task
	for _, task := range tasks {
		if task.DueDate == nil {
			undated = append(undated, task)
			continue
		}
		dated = append(dated, task)
	}

	sort.SliceStable(dated, func(i, j int) bool {
		if !dated[i].DueDate.Equal(*dated[j].DueDate) {
			return dated[i].DueDate.Before(*dated[j].DueDate)
		}
		return dated[i].Priority > dated[j].Priority
	})

	var builder strings.Builder
	builder.WriteString("📋 Agenda\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("Mon 2006-01-02")))

	builder.WriteString("🔥 Scheduled\n")
	if len(dated) == 0 {
		builder.WriteString("— nothing scheduled\n")
	} else {
		for _, task := range dated {
			builder.WriteString(formatTask(task, sectionNames, now))
		}
	}

	if len(undated) > 0 {
		builder.WriteString("\n📥 Someday\n")
		for _, task := range undated {
			builder.WriteString(formatTask(task, sectionNames, now))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

func formatTask(task model.Task, sectionNames map[uint]string, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	today := recurrence.StartOfDay(now)
	if task.DueDate != nil {
		d := task.DueDate.In(now.Location())
		switch {
		case d.Before(today):
			icon = "⚠️"
		case d.Sub(now) <= 48*time.Hour:
			icon = "⏳"
		}
	}

	sb.WriteString(fmt.Sprintf("%s [%s] %s", icon, task.ShortID(), strings.TrimSpace(task.Title)))

	if task.SectionID != nil {
		if name, ok := sectionNames[*task.SectionID]; ok {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				sb.WriteString(fmt.Sprintf(" (%s)", trimmed))
			}
		}
	}

	if task.DueDate != nil {
		d := task.DueDate.In(now.Location())
		if d.Before(today) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ %s · overdue", d.Format("2006-01-02")))
		} else {
			daysLeft := int(math.Round(recurrence.StartOfDay(d).Sub(today).Hours() / 24))
			sb.WriteString(fmt.Sprintf("\n   ⏰ %s · in %d d", d.Format("2006-01-02"), daysLeft))
		}
	}

	if task.Recurrence.Recurring() {
		sb.WriteString(fmt.Sprintf("\n   ♻️ %s (#%d)", recurrence.DescribeRule(task.Recurrence, now.Location()), task.OccurrenceCount))
	}

	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", strings.TrimSpace(task.Description)))
	}

	sb.WriteByte('\n')
	return sb.String()
}
