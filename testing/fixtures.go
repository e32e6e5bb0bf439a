package testing

import (
	"fmt"
	"math/rand"

	"github.com/amirphl/esim-relay/models"
	"github.com/amirphl/esim-relay/utils"
	"github.com/google/uuid"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// NewOrderRecord builds an unsaved record with the ingestion defaults and a random product order id
func NewOrderRecord() *models.OrderRecord {
	return &models.OrderRecord{
		ProductOrderID: uuid.NewString(),
		OrderID:        fmt.Sprintf("2025%012d", rand.Int63n(1_000_000_000_000)),
		OrdererName:    "홍길동",
		OrdererTel:     fmt.Sprintf("10%08d", rand.Intn(100000000)),
		Email:          utils.DefaultOrderEmail,
		ProductName:    "베트남 eSIM 1기가",
		Day:            utils.DefaultDurationDays,
		Quantity:       utils.DefaultQuantity,
		KakaoSendYN:    utils.NotificationSentNo,
		DispatchStatus: models.DispatchStatusPending,
	}
}

// CreateOrderRecord inserts a record with the given tracking reference and pins.
// Empty values are stored as NULL.
func (tf *TestFixtures) CreateOrderRecord(orderTid, pins string) (*models.OrderRecord, error) {
	record := NewOrderRecord()
	if orderTid != "" {
		record.OrderTid = &orderTid
	}
	if pins != "" {
		record.SnPin = &pins
	}
	if err := tf.DB.DB.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to create test order record: %w", err)
	}
	return record, nil
}

// ReloadOrderRecord reads the current row state of record
func (tf *TestFixtures) ReloadOrderRecord(record *models.OrderRecord) (*models.OrderRecord, error) {
	var fresh models.OrderRecord
	if err := tf.DB.DB.First(&fresh, record.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload order record %d: %w", record.ID, err)
	}
	return &fresh, nil
}
