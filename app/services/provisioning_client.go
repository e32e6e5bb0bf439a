package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/esim-relay/config"
	"github.com/amirphl/esim-relay/utils"
)

const (
	provisioningVendor     = "warehouse"
	provisioningSubmitPath = "/api/esim/order/submit"

	provisioningOrderType = 3
	provisioningReplyType = 1
)

// ProvisioningOrder is one order line to submit to the warehouse vendor
type ProvisioningOrder struct {
	ReceiveName string
	Phone       string
	Email       string
	ProductCode string
	Quantity    int
}

// ProvisioningResult is the vendor acknowledgement of a submitted order
type ProvisioningResult struct {
	// OrderTid is the vendor tracking reference; the generated one when the response omits it
	OrderTid  string
	Generated bool
}

// ProvisioningClient submits eSIM orders to the warehouse vendor
type ProvisioningClient interface {
	SubmitOrder(ctx context.Context, order ProvisioningOrder) (*ProvisioningResult, error)
}

// ProvisioningClientImpl implements ProvisioningClient
type ProvisioningClientImpl struct {
	cfg    *config.ProvisioningConfig
	client *http.Client
	now    func() time.Time
	random func() int
}

func NewProvisioningClient(cfg *config.ProvisioningConfig) *ProvisioningClientImpl {
	return &ProvisioningClientImpl{
		cfg:    cfg,
		client: newHTTPClient(cfg.Timeout),
		now:    utils.SeoulNow,
		random: func() int { return rand.IntN(1000000) },
	}
}

type provisioningItem struct {
	ProductCode string `json:"productCode"`
	Quantity    int    `json:"quantity"`
}

type provisioningSubmitRequest struct {
	CustomerCode string             `json:"customerCode"`
	OrderTid     string             `json:"orderTid"`
	ReceiveName  string             `json:"receiveName"`
	Phone        string             `json:"phone"`
	Timestamp    string             `json:"timestamp"`
	Email        string             `json:"email"`
	Type         int                `json:"type"`
	ReplyType    int                `json:"replyType"`
	ItemList     []provisioningItem `json:"itemList"`
	AutoGraph    string             `json:"autoGraph"`
}

type provisioningSubmitResponse struct {
	OrderTid string `json:"orderTid"`
	Data     struct {
		OrderTid string `json:"orderTid"`
	} `json:"data"`
}

// newOrderTid builds customerCode + yyyyMMddHHmmss + six random digits
func (c *ProvisioningClientImpl) newOrderTid(now time.Time) string {
	return c.cfg.CustomerCode + now.Format("20060102150405") + fmt.Sprintf("%06d", c.random())
}

// SubmitOrder signs and submits one order. The body is hashed as sent for the Signature header.
func (c *ProvisioningClientImpl) SubmitOrder(ctx context.Context, order ProvisioningOrder) (*ProvisioningResult, error) {
	if c.cfg.BaseURL == "" {
		return nil, newUpstreamError(provisioningVendor, "submit", 0, nil, fmt.Errorf("base url is not configured"))
	}

	now := c.now()
	quantity := order.Quantity
	if quantity <= 0 {
		quantity = utils.DefaultQuantity
	}
	req := provisioningSubmitRequest{
		CustomerCode: c.cfg.CustomerCode,
		OrderTid:     c.newOrderTid(now),
		ReceiveName:  order.ReceiveName,
		Phone:        utils.LocalPhone(order.Phone),
		Timestamp:    strconv.FormatInt(now.UnixMilli(), 10),
		Email:        order.Email,
		Type:         provisioningOrderType,
		ReplyType:    provisioningReplyType,
		ItemList:     []provisioningItem{{ProductCode: order.ProductCode, Quantity: quantity}},
	}
	req.AutoGraph = utils.OrderAutoGraph(utils.AutoGraphInput{
		CustomerCode: req.CustomerCode,
		CustomerAuth: c.cfg.CustomerAuth,
		Warehouse:    c.cfg.Warehouse,
		Type:         req.Type,
		OrderTid:     req.OrderTid,
		ReceiveName:  req.ReceiveName,
		Phone:        req.Phone,
		Timestamp:    now.UnixMilli(),
		ProductCode:  order.ProductCode,
		Quantity:     quantity,
	})

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode provisioning order: %w", err)
	}

	var resp provisioningSubmitResponse
	err = doJSON(ctx, c.client, vendorRequest{
		vendor: provisioningVendor,
		op:     "submit",
		method: http.MethodPost,
		url:    strings.TrimRight(c.cfg.BaseURL, "/") + provisioningSubmitPath,
		headers: map[string]string{
			"Customer-Code": c.cfg.CustomerCode,
			"Customer-Auth": c.cfg.CustomerAuth,
			"Signature":     utils.WarehouseSignature(body),
		},
		body: body,
	}, &resp)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.OrderTid != "":
		return &ProvisioningResult{OrderTid: resp.OrderTid}, nil
	case resp.Data.OrderTid != "":
		return &ProvisioningResult{OrderTid: resp.Data.OrderTid}, nil
	default:
		return &ProvisioningResult{OrderTid: req.OrderTid, Generated: true}, nil
	}
}
