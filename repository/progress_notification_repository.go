package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/esim-relay/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProgressNotificationRepositoryImpl implements ProgressNotificationRepository
type ProgressNotificationRepositoryImpl struct {
	*BaseRepository[models.ProgressNotification, struct{}]
}

func NewProgressNotificationRepository(store *Store) ProgressNotificationRepository {
	return &ProgressNotificationRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ProgressNotification, struct{}](store),
	}
}

func (r *ProgressNotificationRepositoryImpl) ByTransactionID(ctx context.Context, transactionID string) (*models.ProgressNotification, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}
	var row models.ProgressNotification
	if err := db.Where("transaction_id = ?", transactionID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find progress notification: %w", err)
	}
	return &row, nil
}

// InsertIfAbsent inserts n unless a row with the same transaction id exists; reports whether it inserted
func (r *ProgressNotificationRepositoryImpl) InsertIfAbsent(ctx context.Context, n *models.ProgressNotification) (bool, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return false, err
	}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoNothing: true,
	}).Create(n)
	if res.Error != nil {
		return false, fmt.Errorf("failed to insert progress notification %s: %w", n.TransactionID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// UpdateLifecycleByDeviceID applies a lifecycle event to every notification of the carrier device
func (r *ProgressNotificationRepositoryImpl) UpdateLifecycleByDeviceID(ctx context.Context, carrierDeviceID string, update models.LifecycleUpdate) (int64, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return 0, err
	}
	fields := map[string]any{"lifecycle_state_code": update.StateCode}
	if update.Eid != "" {
		fields["eid"] = update.Eid
	}
	if update.ProfileType != "" {
		fields["profile_type"] = update.ProfileType
	}
	if len(update.Status) > 0 {
		fields["notification_point_status"] = update.Status
	}
	res := db.Model(&models.ProgressNotification{}).Where("carrier_device_id = ?", carrierDeviceID).Updates(fields)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update lifecycle for device %s: %w", carrierDeviceID, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("device %s: %w", carrierDeviceID, ErrRecordNotFound)
	}
	return res.RowsAffected, nil
}
