// Package businessflow contains the business logic for the application.
package businessflow

import (
	"encoding/json"
	"time"

	"github.com/amirphl/esim-relay/app/dto"
	"github.com/amirphl/esim-relay/models"
	"github.com/amirphl/esim-relay/utils"
)

// ClientMetadata holds caller information recorded with callback audit events
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

func requestIDOf(metadata *ClientMetadata) string {
	if metadata == nil {
		return ""
	}
	return metadata.RequestID
}

// ToOrderRecordDTO converts an order record for the admin listing
func ToOrderRecordDTO(record models.OrderRecord) dto.OrderRecordDTO {
	return dto.OrderRecordDTO{
		ID:             record.ID,
		ProductOrderID: record.ProductOrderID,
		OrderID:        record.OrderID,
		OrderTid:       utils.Deref(record.OrderTid),
		OrdererName:    record.OrdererName,
		OrdererTel:     record.OrdererTel,
		Email:          record.Email,
		ProductName:    record.ProductName,
		Day:            record.Day,
		Quantity:       record.Quantity,
		SnPin:          utils.Deref(record.SnPin),
		SnCode:         utils.Deref(record.SnCode),
		QR:             utils.Deref(record.QR),
		KakaoSendYN:    record.KakaoSendYN,
		DispatchStatus: int(record.DispatchStatus),
		CreatedAt:      record.CreatedAt.In(utils.SeoulLocation).Format(time.RFC3339),
	}
}

func ToOrderStatsDTO(stats models.OrderStats) dto.OrderStatsDTO {
	return dto.OrderStatsDTO{
		Total:   stats.Total,
		Sent:    stats.Sent,
		Pending: stats.Pending,
		Today:   stats.Today,
	}
}

// ToCallbackEventDTO converts an audit event for the admin listing
func ToCallbackEventDTO(event models.CallbackEvent) dto.CallbackEventDTO {
	steps := make([]dto.StepResultDTO, 0, len(event.Steps))
	for _, s := range event.Steps {
		steps = append(steps, dto.StepResultDTO{Step: s.Step, OK: s.OK, Error: s.Error})
	}
	var payload json.RawMessage
	if len(event.Payload) > 0 {
		payload = json.RawMessage(event.Payload)
	}
	return dto.CallbackEventDTO{
		ID:        event.ID,
		Kind:      string(event.Kind),
		Reference: event.Reference,
		Outcome:   event.Outcome,
		Steps:     steps,
		Payload:   payload,
		RequestID: event.RequestID,
		SourceIP:  event.SourceIP,
		CreatedAt: event.CreatedAt.In(utils.SeoulLocation).Format(time.RFC3339),
	}
}
