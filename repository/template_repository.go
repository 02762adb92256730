package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/blastline/blastline-backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TemplateRepositoryImpl implements TemplateRepository
type TemplateRepositoryImpl struct {
	*BaseRepository[models.Template, models.TemplateFilter]
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &TemplateRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Template, models.TemplateFilter](db),
	}
}

// ByUUID finds a template by UUID
func (r *TemplateRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	db := r.getDB(ctx)
	var template models.Template
	err := db.Where("uuid = ?", id).Last(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find template by UUID %s: %w", id, err)
	}
	return &template, nil
}
