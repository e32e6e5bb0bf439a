package models

import (
	"time"

	"gorm.io/datatypes"
)

// CallbackKind identifies which vendor callback produced an event
type CallbackKind string

const (
	CallbackKindProvisioning CallbackKind = "provisioning"
	CallbackKindRedemption   CallbackKind = "redemption"
	CallbackKindProgress     CallbackKind = "progress"
)

// StepResult is the outcome of one side effect performed while handling a callback
type StepResult struct {
	Step  string `json:"step"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// CallbackEvent is the audit record of one inbound vendor callback and its per-step results
type CallbackEvent struct {
	ID        uint                            `gorm:"primaryKey" json:"id"`
	Kind      CallbackKind                    `gorm:"size:32;not null;index:idx_callback_events_kind" json:"kind"`
	Reference string                          `gorm:"size:128;index:idx_callback_events_reference" json:"reference"`
	Payload   datatypes.JSON                  `json:"payload"`
	Steps     datatypes.JSONSlice[StepResult] `json:"steps"`
	Outcome   string                          `gorm:"size:32;not null" json:"outcome"`
	RequestID string                          `gorm:"size:64" json:"request_id,omitempty"`
	SourceIP  string                          `gorm:"size:64" json:"source_ip,omitempty"`
	CreatedAt time.Time                       `gorm:"autoCreateTime;index:idx_callback_events_created_at" json:"created_at"`
}

func (CallbackEvent) TableName() string { return "callback_events" }

// CallbackEventFilter provides filter fields for repository queries
type CallbackEventFilter struct {
	Kind          *CallbackKind
	Reference     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
