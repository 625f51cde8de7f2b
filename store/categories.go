package store

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"inkwell/models"
)

type CategoryInput struct {
	Name        string `json:"name" validate:"notblank,max=50"`
	Description string `json:"description" validate:"max=200"`
}

func (s *Store) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	category := models.Category{Name: in.Name, Description: in.Description}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUnique(tx, &models.Category{}, "name", in.Name); err != nil {
			return err
		}
		return tx.Create(&category).Error
	})
	if err != nil {
		return nil, uniqueViolation(err, map[string]string{"name": in.Name})
	}
	return &category, nil
}

func (s *Store) GetCategory(ctx context.Context, id uint) (*models.Category, error) {
	var category models.Category
	if err := s.db.WithContext(ctx).First(&category, id).Error; err != nil {
		return nil, lookupErr(err, "category", id)
	}
	return &category, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// DeleteCategory removes the category and its links; tagged posts stay.
func (s *Store) DeleteCategory(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("category_id = ?", id).Delete(&models.PostCategory{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Category{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return notFound("category", id)
		}
		return nil
	})
}
