package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diligence/internal/model"
)

func TestParseWeekdays(t *testing.T) {
	set, err := ParseWeekdays("mon, Wednesday,6")
	require.NoError(t, err)
	assert.Equal(t, model.WeekdaySetOf(time.Monday, time.Wednesday, time.Friday), set)

	set, err = ParseWeekdays("1")
	require.NoError(t, err)
	assert.True(t, set.Has(time.Sunday))

	set, err = ParseWeekdays("")
	require.NoError(t, err)
	assert.True(t, set.Empty())

	_, err = ParseWeekdays("8")
	assert.ErrorIs(t, err, ErrRuleMalformed)
	_, err = ParseWeekdays("someday")
	assert.ErrorIs(t, err, ErrRuleMalformed)
}

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern(" Monthly ")
	require.NoError(t, err)
	assert.Equal(t, model.PatternMonthly, p)

	p, err = ParsePattern("")
	require.NoError(t, err)
	assert.Equal(t, model.PatternNone, p)

	_, err = ParsePattern("hourly")
	assert.ErrorIs(t, err, ErrRuleMalformed)
}

func TestDescribeRule(t *testing.T) {
	end := time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "once", DescribeRule(model.RecurrenceRule{}, time.UTC))
	assert.Equal(t, "every day", DescribeRule(model.RecurrenceRule{Pattern: model.PatternDaily, Interval: 1}, time.UTC))
	assert.Equal(t, "every 3 months, 5 times", DescribeRule(model.RecurrenceRule{
		Pattern: model.PatternMonthly, Interval: 3, EndType: model.EndAfterCount, EndCount: 5,
	}, time.UTC))
	assert.Equal(t, "every week on Mon,Fri, until 2025-11-30", DescribeRule(model.RecurrenceRule{
		Pattern: model.PatternWeekly, Interval: 1, Weekdays: model.WeekdaySetOf(time.Monday, time.Friday),
		EndType: model.EndOnDate, EndDate: &end,
	}, time.UTC))
	assert.Equal(t, "every weekday", DescribeRule(model.RecurrenceRule{Pattern: model.PatternWeekdays}, time.UTC))
}

func TestDescribeRuleShowsLocalEndDate(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// Stored as 2025-12-31 23:00 UTC.
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, berlin).UTC()
	rule := model.RecurrenceRule{Pattern: model.PatternDaily, Interval: 1, EndType: model.EndOnDate, EndDate: &end}

	assert.Equal(t, "every day, until 2026-01-01", DescribeRule(rule, berlin))
	assert.Equal(t, "every day, until 2025-12-31", DescribeRule(rule, time.UTC))
}
