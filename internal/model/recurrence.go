package model

import "time"

// RecurrencePattern is the unit a recurring task repeats on.
type RecurrencePattern string

const (
	PatternNone     RecurrencePattern = "none"
	PatternDaily    RecurrencePattern = "daily"
	PatternWeekly   RecurrencePattern = "weekly"
	PatternBiweekly RecurrencePattern = "biweekly"
	PatternMonthly  RecurrencePattern = "monthly"
	PatternYearly   RecurrencePattern = "yearly"
	PatternWeekdays RecurrencePattern = "weekdays"
	PatternCustom   RecurrencePattern = "custom"
)

// EndType decides when a recurring chain stops.
type EndType string

const (
	EndNever      EndType = "never"
	EndAfterCount EndType = "afterCount"
	EndOnDate     EndType = "onDate"
)

// WeekdaySet is a bitmask of time.Weekday values, Sunday in bit 0.
type WeekdaySet uint8

// WeekdaySetOf builds a set from weekdays.
func WeekdaySetOf(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

func (s WeekdaySet) With(d time.Weekday) WeekdaySet {
	if d < time.Sunday || d > time.Saturday {
		return s
	}
	return s | 1<<uint(d)
}

func (s WeekdaySet) Has(d time.Weekday) bool {
	return d >= time.Sunday && d <= time.Saturday && s&(1<<uint(d)) != 0
}

func (s WeekdaySet) Empty() bool {
	return s&0x7f == 0
}

// Days lists the members in week order starting from Sunday.
func (s WeekdaySet) Days() []time.Weekday {
	var days []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

// RecurrenceRule is embedded in Task and stored as recur_* columns.
type RecurrenceRule struct {
	Pattern  RecurrencePattern `gorm:"default:none"`
	Interval int               `gorm:"default:1"`
	Weekdays WeekdaySet
	EndType  EndType `gorm:"default:never"`
	EndDate  *time.Time
	EndCount int
}

// Recurring reports whether the rule can produce successors at all.
func (r RecurrenceRule) Recurring() bool {
	return r.Pattern != "" && r.Pattern != PatternNone
}
