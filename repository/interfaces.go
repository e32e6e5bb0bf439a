// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/esim-relay/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// ErrRecordNotFound is returned by keyed updates that affect no rows
var ErrRecordNotFound = errors.New("record not found")

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// Transactor runs a function inside one database transaction
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(context.Context) error) error
}

// OrderRecordRepository defines operations for order records and their sub-unit columns
type OrderRecordRepository interface {
	Repository[models.OrderRecord, models.OrderRecordFilter]
	ByProductOrderID(ctx context.Context, productOrderID string) (*models.OrderRecord, error)
	ByOrderTid(ctx context.Context, orderTid string) (*models.OrderRecord, error)
	ExistsByProductOrderID(ctx context.Context, productOrderID string) (bool, error)

	UpdateSubUnitPins(ctx context.Context, orderTid, pins string) error
	UpdateSubUnitCodes(ctx context.Context, orderTid, codes string) error
	UpdateSubUnits(ctx context.Context, orderTid string, units []models.SubUnit) error
	UpdateActivationArtifacts(ctx context.Context, pinString, artifactString string) (int64, error)
	MergeActivationArtifact(ctx context.Context, pin, artifact string) (*models.OrderRecord, error)
	LookupByPinOrSubstring(ctx context.Context, pinString string) (*models.OrderRecord, error)

	SetOrderTid(ctx context.Context, id uint, orderTid string) error
	MarkNotificationSent(ctx context.Context, id uint) error
	MarkDispatched(ctx context.Context, ids []uint) (int64, error)

	ListAwaitingProvisioning(ctx context.Context, limit int) ([]*models.OrderRecord, error)
	ListPendingDispatch(ctx context.Context, limit int) ([]*models.OrderRecord, error)
	ListLatest(ctx context.Context, limit int) ([]*models.OrderRecord, error)
	Stats(ctx context.Context, dayStart time.Time) (*models.OrderStats, error)
}

// ProgressNotificationRepository defines operations for vendor lifecycle notifications
type ProgressNotificationRepository interface {
	ByTransactionID(ctx context.Context, transactionID string) (*models.ProgressNotification, error)
	InsertIfAbsent(ctx context.Context, n *models.ProgressNotification) (bool, error)
	UpdateLifecycleByDeviceID(ctx context.Context, carrierDeviceID string, update models.LifecycleUpdate) (int64, error)
}

// CallbackEventRepository defines operations for the callback audit trail
type CallbackEventRepository interface {
	Save(ctx context.Context, event *models.CallbackEvent) error
	ListRecent(ctx context.Context, filter models.CallbackEventFilter, limit int) ([]*models.CallbackEvent, error)
}
