package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProgressNotification tracks the vendor-side lifecycle of one provisioned sub-unit.
// TransactionID is unique; later lifecycle events correlate by CarrierDeviceID.
type ProgressNotification struct {
	ID                      uint           `gorm:"primaryKey" json:"id"`
	TransactionID           string         `gorm:"size:128;not null;uniqueIndex:uk_progress_notifications_transaction_id" json:"transaction_id"`
	SubUnitPin              string         `gorm:"size:128;index:idx_progress_notifications_sub_unit_pin" json:"sub_unit_pin"`
	CarrierDeviceID         string         `gorm:"size:128;index:idx_progress_notifications_carrier_device_id" json:"carrier_device_id"`
	Eid                     string         `gorm:"size:64" json:"eid,omitempty"`
	ProfileType             string         `gorm:"size:32" json:"profile_type,omitempty"`
	ActivationArtifact      string         `gorm:"type:text" json:"activation_artifact"`
	LifecycleStateCode      int            `gorm:"not null;default:0" json:"lifecycle_state_code"`
	NotificationPointStatus datatypes.JSON `json:"notification_point_status,omitempty"`
	CreatedAt               time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ProgressNotification) TableName() string { return "progress_notifications" }

// LifecycleUpdate carries the fields a progress event may change
type LifecycleUpdate struct {
	StateCode   int
	Eid         string
	ProfileType string
	Status      datatypes.JSON
}
