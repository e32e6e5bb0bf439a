// Package models contains the persisted entities of the eSIM fulfillment service
package models

import (
	"time"

	"gorm.io/datatypes"
)

// DispatchStatus enumerates marketplace dispatch progress of an order record
type DispatchStatus int

const (
	DispatchStatusPending    DispatchStatus = 0
	DispatchStatusDispatched DispatchStatus = 1
)

// SubUnit is one provisioned unit of a bundle: the vendor pin, its code and the activation artifact
type SubUnit struct {
	Pin      string `json:"pin"`
	Code     string `json:"code"`
	Artifact string `json:"artifact"`
}

// OrderRecord is one purchased marketplace line item and the provisioning state of its sub-units.
// SnPin, SnCode and QR keep the delimited wire form; SubUnits holds the same data as ordered tuples.
type OrderRecord struct {
	ID             uint                         `gorm:"primaryKey" json:"id"`
	ProductOrderID string                       `gorm:"size:64;not null;uniqueIndex:uk_user_orders_product_order_id" json:"product_order_id"`
	OrderID        string                       `gorm:"size:64;not null;index:idx_user_orders_order_id" json:"order_id"`
	OrderTid       *string                      `gorm:"size:64;index:idx_user_orders_order_tid" json:"order_tid,omitempty"`
	OrdererName    string                       `gorm:"size:100" json:"orderer_name"`
	OrdererTel     string                       `gorm:"size:20" json:"orderer_tel"`
	Email          string                       `gorm:"size:255" json:"email"`
	ProductName    string                       `gorm:"size:255" json:"product_name"`
	Day            int                          `gorm:"not null;default:1" json:"day"`
	Quantity       int                          `gorm:"not null;default:1" json:"quantity"`
	SnPin          *string                      `gorm:"type:text" json:"sn_pin,omitempty"`
	SnCode         *string                      `gorm:"type:text" json:"sn_code,omitempty"`
	QR             *string                      `gorm:"column:qr;type:text" json:"qr,omitempty"`
	SubUnits       datatypes.JSONSlice[SubUnit] `json:"sub_units,omitempty"`
	KakaoSendYN    string                       `gorm:"column:kakao_send_yn;size:1;not null;default:'N';index:idx_user_orders_kakao_send_yn" json:"kakao_send_yn"`
	DispatchStatus DispatchStatus               `gorm:"not null;default:0;index:idx_user_orders_dispatch_status" json:"dispatch_status"`
	CreatedAt      time.Time                    `gorm:"autoCreateTime;index:idx_user_orders_created_at" json:"created_at"`
	UpdatedAt      time.Time                    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OrderRecord) TableName() string { return "user_orders" }

// NotificationSent reports whether the customer activation message went out
func (o *OrderRecord) NotificationSent() bool { return o.KakaoSendYN == "Y" }

// OrderRecordFilter provides filter fields for repository queries
type OrderRecordFilter struct {
	ID                   *uint
	ProductOrderID       *string
	OrderTid             *string
	DispatchStatus       *DispatchStatus
	KakaoSendYN          *string
	AwaitingProvisioning *bool
	HasArtifacts         *bool
	CreatedAfter         *time.Time
	CreatedBefore        *time.Time
}

// OrderStats aggregates the admin dashboard counters
type OrderStats struct {
	Total   int64 `json:"total"`
	Sent    int64 `json:"sent"`
	Pending int64 `json:"pending"`
	Today   int64 `json:"today"`
}
