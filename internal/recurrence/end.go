package recurrence

import (
	"time"

	"diligence/internal/model"
)

// Permits reports whether a candidate occurrence may be created. generated is
// the number of occurrences the chain already has, the original included.
// When both a count and a date are present they must both allow it.
func Permits(rule model.RecurrenceRule, candidate time.Time, generated int) bool {
	switch rule.EndType {
	case "", model.EndNever:
		return true
	case model.EndAfterCount, model.EndOnDate:
	default:
		return false
	}

	if rule.EndType == model.EndAfterCount || rule.EndCount > 0 {
		if generated >= rule.EndCount {
			return false
		}
	}

	if rule.EndType == model.EndOnDate || rule.EndDate != nil {
		if rule.EndDate == nil {
			return false
		}
		if dateKey(candidate) > dateKey(rule.EndDate.In(candidate.Location())) {
			return false
		}
	}
	return true
}

// StartOfDay returns the first instant of t's calendar day in its own location.
// That is midnight except on days whose DST change skips it.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return wallTime(y, m, d, 0, 0, 0, 0, t.Location())
}
