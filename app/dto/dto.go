package dto

// APIResponse is the envelope of every admin and auth endpoint. Vendor callbacks answer
// in the shapes their vendors expect and do not use it.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
	// RequestID is echoed on failures so an operator can find the matching log lines
	RequestID string `json:"request_id,omitempty"`
}

// ErrorDetail carries a stable machine-readable code
type ErrorDetail struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}
