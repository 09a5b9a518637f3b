package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"diligence/internal/model"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekdays reads a comma separated list of weekday names or numbers
// 1..7 where Sunday is 1.
func ParseWeekdays(raw string) (model.WeekdaySet, error) {
	var set model.WeekdaySet
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if d, ok := weekdayNames[part]; ok {
			set = set.With(d)
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > 7 {
			return 0, fmt.Errorf("%w: invalid weekday %q", ErrRuleMalformed, part)
		}
		set = set.With(time.Weekday(n - 1))
	}
	return set, nil
}

// ParsePattern maps user input onto a pattern; empty input means none.
func ParsePattern(raw string) (model.RecurrencePattern, error) {
	p := model.RecurrencePattern(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case "":
		return model.PatternNone, nil
	case model.PatternNone, model.PatternDaily, model.PatternWeekly, model.PatternBiweekly,
		model.PatternMonthly, model.PatternYearly, model.PatternWeekdays, model.PatternCustom:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown pattern %q", ErrRuleMalformed, raw)
	}
}

// DescribeRule renders a rule for list output. The end date is shown as a
// calendar date in loc.
func DescribeRule(rule model.RecurrenceRule, loc *time.Location) string {
	if !rule.Recurring() {
		return "once"
	}
	n := rule.Interval
	if n < 1 {
		n = 1
	}

	var b strings.Builder
	switch rule.Pattern {
	case model.PatternWeekdays:
		b.WriteString("every weekday")
	case model.PatternBiweekly:
		b.WriteString("every 2 weeks")
	case model.PatternCustom:
		b.WriteString(fmt.Sprintf("every %d week(s)", n))
	default:
		unit := strings.TrimSuffix(string(rule.Pattern), "ly")
		if rule.Pattern == model.PatternDaily {
			unit = "day"
		}
		if n == 1 {
			b.WriteString("every " + unit)
		} else {
			b.WriteString(fmt.Sprintf("every %d %ss", n, unit))
		}
	}

	if days := rule.Weekdays.Days(); len(days) > 0 && rule.Pattern != model.PatternWeekdays {
		names := make([]string, 0, len(days))
		for _, d := range days {
			names = append(names, d.String()[:3])
		}
		b.WriteString(" on " + strings.Join(names, ","))
	}

	switch rule.EndType {
	case model.EndAfterCount:
		b.WriteString(fmt.Sprintf(", %d times", rule.EndCount))
	case model.EndOnDate:
		if rule.EndDate != nil {
			if loc == nil {
				loc = time.UTC
			}
			b.WriteString(", until " + rule.EndDate.In(loc).Format("2006-01-02"))
		}
	}
	return b.String()
}
