// Package recurrence computes successor due dates for recurring tasks.
//
// All arithmetic happens in the location of the date passed in, so callers
// are expected to convert stored times into the user's zone first. Steps are
// taken in calendar days, so the date never drifts across DST changes; the
// clock is kept unless it falls in a gap, where the day's first instant is used.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"diligence/internal/model"
)

// ErrRuleMalformed marks a rule whose fields contradict each other.
var ErrRuleMalformed = errors.New("malformed recurrence rule")

const (
	maxYear   = 9999
	maxDays   = maxYear * 366
	maxWeeks  = maxYear * 53
	maxMonths = maxYear * 12
)

// Validate rejects rules that cannot be evaluated.
func Validate(rule model.RecurrenceRule) error {
	switch rule.Pattern {
	case "", model.PatternNone, model.PatternDaily, model.PatternWeekly, model.PatternBiweekly,
		model.PatternMonthly, model.PatternYearly, model.PatternWeekdays:
	case model.PatternCustom:
		if rule.Weekdays.Empty() {
			return fmt.Errorf("%w: custom pattern needs at least one weekday", ErrRuleMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown pattern %q", ErrRuleMalformed, rule.Pattern)
	}

	if rule.Interval < 0 {
		return fmt.Errorf("%w: negative interval %d", ErrRuleMalformed, rule.Interval)
	}

	switch rule.EndType {
	case "", model.EndNever:
	case model.EndAfterCount:
		if rule.EndCount < 1 {
			return fmt.Errorf("%w: afterCount needs a positive count", ErrRuleMalformed)
		}
	case model.EndOnDate:
		if rule.EndDate == nil {
			return fmt.Errorf("%w: onDate needs an end date", ErrRuleMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown end type %q", ErrRuleMalformed, rule.EndType)
	}
	return nil
}

// Next returns the due date of the occurrence following prior. The boolean is
// false when the chain has ended: pattern none, an end condition was reached,
// or the arithmetic left the representable calendar.
func Next(prior time.Time, rule model.RecurrenceRule, generated int) (time.Time, bool) {
	next, ok := candidate(prior, rule)
	if !ok || !next.After(prior) {
		return time.Time{}, false
	}
	if !Permits(rule, next, generated) {
		return time.Time{}, false
	}
	return next, true
}

func candidate(prior time.Time, rule model.RecurrenceRule) (time.Time, bool) {
	n := rule.Interval
	if n < 1 {
		n = 1
	}

	switch rule.Pattern {
	case model.PatternDaily:
		if n > maxDays {
			return time.Time{}, false
		}
		return inRange(shiftDays(prior, n))
	case model.PatternWeekly:
		return weekly(prior, rule.Weekdays, n)
	case model.PatternBiweekly:
		return weekly(prior, rule.Weekdays, 2)
	case model.PatternCustom:
		if rule.Weekdays.Empty() {
			return time.Time{}, false
		}
		return weekly(prior, rule.Weekdays, n)
	case model.PatternMonthly:
		if n > maxMonths {
			return time.Time{}, false
		}
		return AddMonthsClamped(prior, n)
	case model.PatternYearly:
		if n > maxYear {
			return time.Time{}, false
		}
		return AddMonthsClamped(prior, 12*n)
	case model.PatternWeekdays:
		return inRange(NextWeekday(prior))
	default:
		return time.Time{}, false
	}
}

// weekly advances by whole weeks, or walks a weekday set. Weeks start on Sunday.
func weekly(prior time.Time, days model.WeekdaySet, n int) (time.Time, bool) {
	if n > maxWeeks {
		return time.Time{}, false
	}
	if days.Empty() {
		return inRange(shiftDays(prior, 7*n))
	}

	offset := int(prior.Weekday())
	for d := 1; d < 7-offset; d++ {
		c := shiftDays(prior, d)
		if days.Has(c.Weekday()) {
			return inRange(c)
		}
	}

	for d := 0; d < 7; d++ {
		c := shiftDays(prior, 7*n-offset+d)
		if days.Has(c.Weekday()) {
			return inRange(c)
		}
	}
	return time.Time{}, false
}

// AddMonthsClamped moves t by n months keeping the day of month, clamped to
// the last day of the target month. Time of day and location are kept.
func AddMonthsClamped(t time.Time, n int) (time.Time, bool) {
	y, m, d := t.Date()
	total := int(m) - 1 + n
	years := total / 12
	months := total % 12
	if months < 0 {
		months += 12
		years--
	}
	ty, tm := y+years, time.Month(months+1)
	if ty < 1 || ty > maxYear {
		return time.Time{}, false
	}

	if last := DaysIn(ty, tm); d > last {
		d = last
	}
	return onDate(ty, tm, d, t), true
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NextWeekday returns the first Monday-Friday day strictly after t.
func NextWeekday(t time.Time) time.Time {
	step := 1
	switch t.Weekday() {
	case time.Friday:
		step = 3
	case time.Saturday:
		step = 2
	}
	return shiftDays(t, step)
}

func inRange(t time.Time) (time.Time, bool) {
	if y := t.Year(); y < 1 || y > maxYear {
		return time.Time{}, false
	}
	return t, true
}
