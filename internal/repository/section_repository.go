package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"diligence/internal/model"
)

// SectionRepository manages task sections.
type SectionRepository struct {
	db *gorm.DB
}

func NewSectionRepository(db *gorm.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// GetOrCreate returns the section with the given name, creating it on first use.
// An empty name yields nil.
func (r *SectionRepository) GetOrCreate(ctx context.Context, name string) (*model.Section, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	var section model.Section
	db := r.db.WithContext(ctx)
	err := db.Where("name = ?", name).First(&section).Error
	switch {
	case err == nil:
		return &section, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		section = model.Section{Name: name}
		if err := db.Create(&section).Error; err != nil {
			return nil, fmt.Errorf("create section: %w", err)
		}
		return &section, nil
	default:
		return nil, fmt.Errorf("find section: %w", err)
	}
}

func (r *SectionRepository) List(ctx context.Context) ([]model.Section, error) {
	var sections []model.Section
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&sections).Error; err != nil {
		return nil, err
	}
	return sections, nil
}
