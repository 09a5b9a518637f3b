package model

import "time"

// Task is one occurrence on the task list. Recurring chains share ChainID.
type Task struct {
	ID              string  `gorm:"primaryKey;size:36"`
	ChainID         string  `gorm:"index;size:36"`
	PredecessorID   *string `gorm:"size:36"`
	SectionID       *uint   `gorm:"index"`
	Title           string
	Description     string
	Priority        int
	Amount          float64
	SourceEmailID   string
	DueDate         *time.Time `gorm:"index"`
	IsCompleted     bool       `gorm:"default:false;index"`
	CompletedAt     *time.Time
	MissedAt        *time.Time
	Recurrence      RecurrenceRule `gorm:"embedded;embeddedPrefix:recur_"`
	OccurrenceCount int            `gorm:"default:1"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Live reports whether the task is the open occurrence of its chain.
func (t Task) Live() bool {
	return !t.IsCompleted && t.MissedAt == nil
}

// ShortID is the prefix shown to users.
func (t Task) ShortID() string {
	if len(t.ID) < 8 {
		return t.ID
	}
	return t.ID[:8]
}
