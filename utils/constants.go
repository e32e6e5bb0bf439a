package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the default time-to-live for admin access tokens (12 hours)
	AccessTokenTTL = 12 * time.Hour

	// NotificationTokenTTL is how long a messaging-provider bearer token is reused before refresh
	NotificationTokenTTL = 50 * time.Minute
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Fulfillment constants
const (
	// TokenDelimiter separates sub-unit tokens in the legacy delimited columns
	TokenDelimiter = "|"

	// ArtifactUnavailable is the vendor sentinel for a missing activation artifact
	ArtifactUnavailable = "N/A"

	// NotificationSentYes and NotificationSentNo are the legacy flag values of kakao_send_yn
	NotificationSentYes = "Y"
	NotificationSentNo  = "N"

	DefaultOrderEmail   = "example@example.com"
	DefaultProductName  = "eSIM 상품"
	DefaultProductCode  = "eSIM-test"
	DefaultDurationDays = 1
	DefaultQuantity     = 1

	// DispatchBatchSize bounds how many pending rows one dispatch call covers
	DispatchBatchSize = 10

	// AdminOrderListLimit bounds the admin order listing
	AdminOrderListLimit = 1000

	// AdminCallbackListLimit is the default size of the callback audit listing
	AdminCallbackListLimit = 100
)
