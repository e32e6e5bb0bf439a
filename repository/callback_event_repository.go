package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/esim-relay/models"
	"gorm.io/gorm"
)

// CallbackEventRepositoryImpl implements CallbackEventRepository
type CallbackEventRepositoryImpl struct {
	*BaseRepository[models.CallbackEvent, models.CallbackEventFilter]
}

func NewCallbackEventRepository(store *Store) CallbackEventRepository {
	return &CallbackEventRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CallbackEvent, models.CallbackEventFilter](store),
	}
}

func (r *CallbackEventRepositoryImpl) applyFilter(db *gorm.DB, f models.CallbackEventFilter) *gorm.DB {
	if f.Kind != nil {
		db = db.Where("kind = ?", *f.Kind)
	}
	if f.Reference != nil {
		db = db.Where("reference = ?", *f.Reference)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

// ListRecent returns the newest events matching filter
func (r *CallbackEventRepositoryImpl) ListRecent(ctx context.Context, filter models.CallbackEventFilter, limit int) ([]*models.CallbackEvent, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}
	query := r.applyFilter(db.Model(&models.CallbackEvent{}), filter).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []*models.CallbackEvent
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list callback events: %w", err)
	}
	return rows, nil
}
