// Package dto contains Data Transfer Objects for API request and response structures
package dto

import "encoding/json"

// AdminLoginRequest represents the admin credential login payload
type AdminLoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=255" example:"admin"`
	Password string `json:"password" validate:"required,min=8,max=100" example:"SecurePass123!"`
}

type AdminSessionDTO struct {
	AccessToken string `json:"access_token" example:"jwt"`
	ExpiresIn   int    `json:"expires_in" example:"43200"`
	ExpiresAt   string `json:"expires_at" example:"2024-01-15T22:30:00Z"`
	TokenType   string `json:"token_type" example:"Bearer"`
}

type AdminLoginResponse struct {
	Username string          `json:"username"`
	Session  AdminSessionDTO `json:"session"`
}

// AuthStatusResponse reports the session carried by the request
type AuthStatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// OrderRecordDTO is one row of the admin order listing
type OrderRecordDTO struct {
	ID             uint   `json:"id"`
	ProductOrderID string `json:"product_order_id"`
	OrderID        string `json:"order_id"`
	OrderTid       string `json:"order_tid"`
	OrdererName    string `json:"orderer_name"`
	OrdererTel     string `json:"orderer_tel"`
	Email          string `json:"email"`
	ProductName    string `json:"product_name"`
	Day            int    `json:"day"`
	Quantity       int    `json:"quantity"`
	SnPin          string `json:"sn_pin"`
	SnCode         string `json:"sn_code"`
	QR             string `json:"qr"`
	KakaoSendYN    string `json:"kakao_send_yn"`
	DispatchStatus int    `json:"dispatch_status"`
	CreatedAt      string `json:"created_at"`
}

// OrderStatsDTO aggregates the dashboard counters
type OrderStatsDTO struct {
	Total   int64 `json:"total"`
	Sent    int64 `json:"sent"`
	Pending int64 `json:"pending"`
	Today   int64 `json:"today"`
}

type AdminListOrdersResponse struct {
	Orders []OrderRecordDTO `json:"orders"`
	Stats  OrderStatsDTO    `json:"stats"`
}

// CallbackEventDTO is one entry of the callback audit trail
type CallbackEventDTO struct {
	ID        uint            `json:"id"`
	Kind      string          `json:"kind"`
	Reference string          `json:"reference"`
	Outcome   string          `json:"outcome"`
	Steps     []StepResultDTO `json:"steps"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	SourceIP  string          `json:"source_ip,omitempty"`
	CreatedAt string          `json:"created_at"`
}

type StepResultDTO struct {
	Step  string `json:"step"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// AdminListCallbacksRequest filters the audit trail; zero values match everything
type AdminListCallbacksRequest struct {
	Kind      string `query:"kind" validate:"omitempty,oneof=provisioning redemption progress"`
	Reference string `query:"reference" validate:"omitempty,max=128"`
	Limit     int    `query:"limit" validate:"omitempty,min=1,max=500"`
}

type AdminListCallbacksResponse struct {
	Events []CallbackEventDTO `json:"events"`
}

// AdminManualSubmitRequest submits one stored order to the provisioning vendor.
// One of the identifiers is required; RecordID wins when both are set.
type AdminManualSubmitRequest struct {
	RecordID       uint   `json:"record_id"`
	ProductOrderID string `json:"product_order_id" validate:"omitempty,max=64"`
}

type AdminManualSubmitResponse struct {
	RecordID    uint   `json:"record_id"`
	OrderTid    string `json:"order_tid"`
	ProductCode string `json:"product_code"`
	Generated   bool   `json:"generated"`
}

// AdminRedeemRequest redeems one coupon directly against the redemption vendor
type AdminRedeemRequest struct {
	Coupon  string `json:"coupon" validate:"required,max=128"`
	TransID string `json:"trans_id" validate:"omitempty,max=128"`
}

type AdminRedeemResponse struct {
	TransID string `json:"trans_id"`
	QRCode  string `json:"qrcode"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AdminStatusUsageResponse wraps the vendor answer unchanged
type AdminStatusUsageResponse struct {
	Vendor json.RawMessage `json:"vendor"`
}

// ReconcileReportDTO summarizes one reconciler tick
type ReconcileReportDTO struct {
	Skipped    bool               `json:"skipped"`
	StartedAt  string             `json:"started_at"`
	DurationMS int64              `json:"duration_ms"`
	Steps      []ReconcileStepDTO `json:"steps"`
}

type ReconcileStepDTO struct {
	Step      string `json:"step"`
	Processed int    `json:"processed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`
}
