package dto

import "encoding/json"

// SnEntry is one provisioned sub-unit inside a provisioning callback item
type SnEntry struct {
	SnPin  string `json:"snPin"`
	SnCode string `json:"snCode"`
}

// ProvisioningItem is one product group of a provisioning callback
type ProvisioningItem struct {
	ProductCode string    `json:"productCode,omitempty"`
	Quantity    int       `json:"quantity,omitempty"`
	SnList      []SnEntry `json:"snList"`
}

// ProvisioningCallbackRequest is posted by the warehouse vendor once an order's sub-units are issued
type ProvisioningCallbackRequest struct {
	OrderTid string             `json:"orderTid" example:"20216-1820240305140709000042"`
	ItemList []ProvisioningItem `json:"itemList"`
}

// ProvisioningCallbackResponse acknowledges a provisioning callback
type ProvisioningCallbackResponse struct {
	OK          bool     `json:"ok"`
	OrderTid    string   `json:"orderTid"`
	SnPinCount  int      `json:"snPinCount"`
	SnPins      string   `json:"snPins"`
	SnCodeCount int      `json:"snCodeCount"`
	SnCodes     string   `json:"snCodes"`
	FailedPins  []string `json:"failedPins"`
}

// CallbackErrorResponse is returned to a vendor when a callback is refused
type CallbackErrorResponse struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// RedemptionCallbackData carries the redeemed coupon and its activation artifact.
// QRCode is a pointer because an empty string is a valid (undeliverable) value while an absent field is not.
type RedemptionCallbackData struct {
	Coupon string  `json:"coupon"`
	QRCode *string `json:"qrcode"`
	Cid    string  `json:"cid"`
}

// RedemptionCallbackRequest is posted by the redemption vendor after a coupon is redeemed
type RedemptionCallbackRequest struct {
	TransID    string                  `json:"transId"`
	ResultCode string                  `json:"resultCode"`
	ResultMesg string                  `json:"resultMesg"`
	FinishTime string                  `json:"finishTime"`
	Data       *RedemptionCallbackData `json:"data"`
}

// RedemptionCallbackResponse acknowledges a redemption callback
type RedemptionCallbackResponse struct {
	OK      bool   `json:"ok"`
	TransID string `json:"transId"`
}

// ProgressEventData is the lifecycle payload of a progress event
type ProgressEventData struct {
	Cid                     string          `json:"cid"`
	Eid                     string          `json:"eid"`
	ProfileType             string          `json:"profileType"`
	Timestamp               json.RawMessage `json:"timestamp,omitempty"`
	NotificationPointID     int             `json:"notificationPointId"`
	ResultData              json.RawMessage `json:"resultData,omitempty"`
	NotificationPointStatus json.RawMessage `json:"notificationPointStatus,omitempty"`
}

// ProgressEventRequest reports an eSIM profile lifecycle transition
type ProgressEventRequest struct {
	TransID string             `json:"transId"`
	Data    *ProgressEventData `json:"data"`
}

// ProgressEventResponse is always returned with HTTP 200; Code "000" on success, "999" on validation failure
type ProgressEventResponse struct {
	Code string `json:"code"`
	Mesg string `json:"mesg"`
}

const (
	ProgressCodeSuccess = "000"
	ProgressCodeInvalid = "999"
)
