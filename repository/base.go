// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// BaseRepository provides common repository functionality with transaction support
type BaseRepository[T any, F any] struct {
	store *Store
}

// NewBaseRepository creates a new base repository instance
func NewBaseRepository[T any, F any](store *Store) *BaseRepository[T, F] {
	return &BaseRepository[T, F]{
		store: store,
	}
}

// getDB returns the transaction carried by ctx, or a probed pool handle bound to ctx
func (r *BaseRepository[T, F]) getDB(ctx context.Context) (*gorm.DB, error) {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx, nil
	}
	db, err := r.store.EnsureConnection(ctx)
	if err != nil {
		return nil, err
	}
	return db.WithContext(ctx), nil
}

// ByID retrieves an entity by its ID
func (r *BaseRepository[T, F]) ByID(ctx context.Context, id uint) (*T, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}

	var entity T
	err = db.Last(&entity, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find entity by ID %d: %w", id, err)
	}

	return &entity, nil
}

// Save inserts a new entity as a single auto-committed statement unless ctx carries a transaction
func (r *BaseRepository[T, F]) Save(ctx context.Context, entity *T) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}

	if err := db.Create(entity).Error; err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}

	return nil
}

// WithTransaction runs fn in a transaction on the repository's store
func (r *BaseRepository[T, F]) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return r.store.WithTransaction(ctx, fn)
}

// WithTransaction executes fn within a database transaction carried by the context
func (s *Store) WithTransaction(ctx context.Context, fn func(context.Context) error) (err error) {
	db, err := s.EnsureConnection(ctx)
	if err != nil {
		return err
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", r)
		}
	}()

	ctx = context.WithValue(ctx, TxContextKey, tx)

	if err := fn(ctx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
