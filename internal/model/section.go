package model

import "time"

// Section groups tasks by area (work, home, errands, etc.).
type Section struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Tasks     []Task `gorm:"foreignKey:SectionID"`
}
