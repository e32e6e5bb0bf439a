package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/esim-relay/config"
	"github.com/amirphl/esim-relay/utils"
	"github.com/google/uuid"
)

const (
	redemptionVendor         = "rsp"
	redemptionRedeemPath     = "/api/coupon/redeem"
	redemptionStatusPath     = "/api/esim/status-usage"
	redemptionFieldTrans     = "transId"
	redemptionFieldTimestamp = "timestamp"
)

// RedemptionResult is the vendor answer to a coupon redemption
type RedemptionResult struct {
	TransID string
	QRCode  string
	Code    string
	Message string
}

// RedemptionClient redeems sub-unit pins (coupons) for activation artifacts
type RedemptionClient interface {
	Redeem(ctx context.Context, coupon, transID string) (*RedemptionResult, error)
	QueryStatusUsage(ctx context.Context, payload map[string]any) (json.RawMessage, error)
}

// RedemptionClientImpl implements RedemptionClient
type RedemptionClientImpl struct {
	cfg    *config.RedemptionConfig
	client *http.Client
	now    func() time.Time
}

func NewRedemptionClient(cfg *config.RedemptionConfig) *RedemptionClientImpl {
	return &RedemptionClientImpl{
		cfg:    cfg,
		client: newHTTPClient(cfg.Timeout),
		now:    time.Now,
	}
}

type redemptionResponse struct {
	Code   vendorCode `json:"code"`
	Mesg   string     `json:"mesg"`
	QRCode string     `json:"qrcode"`
	Data   struct {
		QRCode string `json:"qrcode"`
		Coupon string `json:"coupon"`
	} `json:"data"`
}

// signedCall posts payload with the App-Id/Trans-Id/Timestamp/Signature header set.
// transId and timestamp are also added to the body.
func (c *RedemptionClientImpl) signedCall(ctx context.Context, op, path string, payload map[string]any, out any) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", newUpstreamError(redemptionVendor, op, 0, nil, fmt.Errorf("base url is not configured"))
	}

	body := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	transID, _ := body[redemptionFieldTrans].(string)
	if transID == "" {
		transID = uuid.NewString()
	}
	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	body[redemptionFieldTrans] = transID
	body[redemptionFieldTimestamp] = timestamp

	raw, err := json.Marshal(body)
	if err != nil {
		return transID, fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	err = doJSON(ctx, c.client, vendorRequest{
		vendor: redemptionVendor,
		op:     op,
		method: http.MethodPost,
		url:    strings.TrimRight(c.cfg.BaseURL, "/") + path,
		headers: map[string]string{
			"App-Id":    c.cfg.AppID,
			"Trans-Id":  transID,
			"Timestamp": timestamp,
			"Signature": utils.RedemptionSignature(c.cfg.AppID, transID, timestamp, c.cfg.AppSecret),
		},
		body: raw,
	}, out)
	return transID, err
}

// Redeem exchanges one coupon for its QR code. An empty transID gets a fresh one.
func (c *RedemptionClientImpl) Redeem(ctx context.Context, coupon, transID string) (*RedemptionResult, error) {
	payload := map[string]any{"coupon": coupon}
	if transID != "" {
		payload[redemptionFieldTrans] = transID
	}

	var resp redemptionResponse
	transID, err := c.signedCall(ctx, "redeem", redemptionRedeemPath, payload, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Code.ok() {
		return nil, newUpstreamError(redemptionVendor, "redeem", 0, nil,
			fmt.Errorf("result code %s: %s", resp.Code, resp.Mesg))
	}

	qr := resp.Data.QRCode
	if qr == "" {
		qr = resp.QRCode
	}
	return &RedemptionResult{
		TransID: transID,
		QRCode:  qr,
		Code:    string(resp.Code),
		Message: resp.Mesg,
	}, nil
}

// QueryStatusUsage forwards a status/usage query and returns the raw vendor response
func (c *RedemptionClientImpl) QueryStatusUsage(ctx context.Context, payload map[string]any) (json.RawMessage, error) {
	var raw json.RawMessage
	if _, err := c.signedCall(ctx, "status_usage", redemptionStatusPath, payload, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
