package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mystery_web/internal/models"
	"mystery_web/internal/storage"
)

type caseRepository struct {
	db *storage.DB
}

func NewCaseRepository(db *storage.DB) CaseRepository {
	return &caseRepository{db: db}
}

func (r *caseRepository) FindByID(ctx context.Context, id string) (*models.Case, error) {
	var c models.Case
	err := r.db.WithContext(ctx).
		Preload("Clues", func(db *gorm.DB) *gorm.DB { return db.Order("clue_index ASC") }).
		First(&c, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &c, nil
}

func (r *caseRepository) Default(ctx context.Context) (*models.Case, error) {
	var c models.Case
	err := r.db.WithContext(ctx).
		Preload("Clues", func(db *gorm.DB) *gorm.DB { return db.Order("clue_index ASC") }).
		Order("id ASC").
		First(&c).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &c, nil
}

// Upsert 以整份內容取代既有案件，線索全部重建
func (r *caseRepository) Upsert(ctx context.Context, c *models.Case) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("case_id = ?", c.ID).Delete(&models.Clue{}).Error; err != nil {
			return fmt.Errorf("gorm: clear clues of case %s: %w", c.ID, err)
		}
		clues := c.Clues
		for i := range clues {
			clues[i].ID = 0
			clues[i].CaseID = c.ID
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Omit("Clues").Create(c).Error; err != nil {
			return fmt.Errorf("gorm: save case %s: %w", c.ID, err)
		}
		if len(clues) > 0 {
			if err := tx.Create(&clues).Error; err != nil {
				return fmt.Errorf("gorm: insert clues of case %s: %w", c.ID, err)
			}
		}
		return nil
	})
}
