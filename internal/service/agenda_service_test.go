package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgendaSummary(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	agenda := NewAgendaService(env.repo, env.sections)
	now := at(2025, 10, 14, 12)

	_, err := env.tasks.CreateTask(ctx, TaskInput{Title: "File taxes", Section: "Admin", DueDate: ptrTime(at(2025, 10, 10, 9))})
	require.NoError(t, err)
	_, err = env.tasks.CreateTask(ctx, TaskInput{Title: "Standup", DueDate: ptrTime(at(2025, 10, 15, 9)), Recurrence: daily})
	require.NoError(t, err)
	_, err = env.tasks.CreateTask(ctx, TaskInput{Title: "Learn Go", Description: "generics chapter"})
	require.NoError(t, err)

	text, err := agenda.Summary(ctx, now)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(text, "📋 Agenda\n🗓 Tue 2025-10-14"))
	assert.Contains(t, text, "File taxes (Admin)\n   ⏰ 2025-10-10 · overdue")
	assert.Contains(t, text, "⏳ [")
	assert.Contains(t, text, "⏰ 2025-10-15 · in 1 d\n   ♻️ every day (#1)")
	assert.Contains(t, text, "📥 Someday")
	assert.Contains(t, text, "📝 generics chapter")
	assert.Less(t, strings.Index(text, "File taxes"), strings.Index(text, "Standup"))
	assert.Less(t, strings.Index(text, "Standup"), strings.Index(text, "Learn Go"))
}

func TestAgendaSummary_Empty(t *testing.T) {
	env := newTestEnv(t)
	agenda := NewAgendaService(env.repo, env.sections)

	text, err := agenda.Summary(context.Background(), at(2025, 10, 14, 12))
	require.NoError(t, err)
	assert.Contains(t, text, "— nothing scheduled")
	assert.NotContains(t, text, "Someday")
}
