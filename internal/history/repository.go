// Package history persists generation records.
package history

import (
	"context"
	"errors"
	"fmt"

	"jasper_srv/internal/jasper"
	"jasper_srv/internal/models"

	"gorm.io/gorm"
)

// ErrNotFound is returned when no generation has the requested id.
var ErrNotFound = fmt.Errorf("%w: generation", jasper.ErrNotFound)

// ListParams filters and paginates List. Page is 1-based.
type ListParams struct {
	Page     int    `json:"page" query:"page"`
	PageSize int    `json:"page_size" query:"page_size"`
	Report   string `json:"report,omitempty" query:"report"`
	Status   string `json:"status,omitempty" query:"status"`
}

// Normalize applies the pagination defaults and limits.
func (p ListParams) Normalize() ListParams {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
	return p
}

// Repository stores generation records.
type Repository interface {
	Create(ctx context.Context, g *models.Generation) error
	Save(ctx context.Context, g *models.Generation) error
	GetByUUID(ctx context.Context, id string) (*models.Generation, error)
	List(ctx context.Context, params ListParams) ([]models.Generation, int64, error)
}

// GormRepository is the gorm implementation of Repository.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a repository on db.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Create inserts g and fills its ID and UUID.
func (r *GormRepository) Create(ctx context.Context, g *models.Generation) error {
	return r.db.WithContext(ctx).Create(g).Error
}

// Save updates every column of g.
func (r *GormRepository) Save(ctx context.Context, g *models.Generation) error {
	return r.db.WithContext(ctx).Save(g).Error
}

// GetByUUID loads a record by its public id.
func (r *GormRepository) GetByUUID(ctx context.Context, id string) (*models.Generation, error) {
	var g models.Generation
	err := r.db.WithContext(ctx).Where("uuid = ?", id).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// List returns one page of records, newest first, and the total matching count.
func (r *GormRepository) List(ctx context.Context, params ListParams) ([]models.Generation, int64, error) {
	params = params.Normalize()
	query := r.db.WithContext(ctx).Model(&models.Generation{})

	if params.Report != "" {
		query = query.Where("report = ?", params.Report)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var generations []models.Generation
	err := query.
		Order("created_at DESC").Order("id DESC").
		Offset((params.Page - 1) * params.PageSize).
		Limit(params.PageSize).
		Find(&generations).Error
	return generations, total, err
}
