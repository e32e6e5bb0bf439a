package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/esim-relay/config"
	"github.com/amirphl/esim-relay/utils"
)

const (
	marketplaceVendor       = "marketplace"
	marketplaceOrdersPath   = "/external/v1/pay-order/seller/product-orders"
	marketplaceDispatchPath = "/external/v1/pay-order/seller/product-orders/dispatch"
	marketplaceTimeLayout   = "2006-01-02T15:04:05.000Z07:00"
)

// OrderDraft is one paid marketplace line item not yet stored locally
type OrderDraft struct {
	ProductOrderID string
	OrderID        string
	OrdererName    string
	OrdererTel     string
	Email          string
	ProductName    string
	Day            int
	Quantity       int
}

// DispatchResult splits a dispatch batch by outcome
type DispatchResult struct {
	Succeeded []string
	Failed    []string
}

// OrderSource lists new upstream orders
type OrderSource interface {
	FetchNewOrders(ctx context.Context, since time.Time) ([]OrderDraft, error)
}

// Dispatcher confirms fulfilment of orders upstream
type Dispatcher interface {
	Dispatch(ctx context.Context, productOrderIDs []string) (*DispatchResult, error)
}

// MarketplaceClient implements OrderSource and Dispatcher over the seller commerce API
type MarketplaceClient struct {
	cfg    *config.MarketplaceConfig
	client *http.Client
	now    func() time.Time
}

func NewMarketplaceClient(cfg *config.MarketplaceConfig) *MarketplaceClient {
	return &MarketplaceClient{
		cfg:    cfg,
		client: newHTTPClient(cfg.Timeout),
		now:    utils.SeoulNow,
	}
}

type marketplaceOrdersResponse struct {
	Data struct {
		Contents []struct {
			ProductOrderID string `json:"productOrderId"`
			Content        struct {
				Order struct {
					OrderID     string `json:"orderId"`
					OrdererName string `json:"ordererName"`
					OrdererTel  string `json:"ordererTel"`
				} `json:"order"`
				ProductOrder struct {
					ProductName   string `json:"productName"`
					ProductOption string `json:"productOption"`
					Quantity      int    `json:"quantity"`
				} `json:"productOrder"`
			} `json:"content"`
		} `json:"contents"`
	} `json:"data"`
}

type marketplaceDispatchItem struct {
	ProductOrderID string `json:"productOrderId"`
	DeliveryMethod string `json:"deliveryMethod"`
	DispatchDate   string `json:"dispatchDate"`
}

type marketplaceDispatchResponse struct {
	Data struct {
		SuccessProductOrderIDs []string `json:"successProductOrderIds"`
		FailProductOrderInfos  []struct {
			ProductOrderID string `json:"productOrderId"`
			Code           string `json:"code"`
			Message        string `json:"message"`
		} `json:"failProductOrderInfos"`
	} `json:"data"`
}

var optionDayPattern = regexp.MustCompile(`(\d+)\s*일`)

// durationFromOption reads the plan length ("5일") out of a product option label
func durationFromOption(option string) int {
	m := optionDayPattern.FindStringSubmatch(option)
	if m == nil {
		return utils.DefaultDurationDays
	}
	day, err := strconv.Atoi(m[1])
	if err != nil || day <= 0 {
		return utils.DefaultDurationDays
	}
	return day
}

func (c *MarketplaceClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.cfg.AccessToken}
}

// FetchNewOrders lists product orders paid since the given time
func (c *MarketplaceClient) FetchNewOrders(ctx context.Context, since time.Time) ([]OrderDraft, error) {
	q := url.Values{}
	q.Set("from", since.In(utils.SeoulLocation).Format(marketplaceTimeLayout))

	var resp marketplaceOrdersResponse
	err := doJSON(ctx, c.client, vendorRequest{
		vendor:  marketplaceVendor,
		op:      "orders",
		method:  http.MethodGet,
		url:     strings.TrimRight(c.cfg.BaseURL, "/") + marketplaceOrdersPath + "?" + q.Encode(),
		headers: c.headers(),
	}, &resp)
	if err != nil {
		return nil, err
	}

	drafts := make([]OrderDraft, 0, len(resp.Data.Contents))
	for _, item := range resp.Data.Contents {
		po := item.Content.ProductOrder
		drafts = append(drafts, OrderDraft{
			ProductOrderID: item.ProductOrderID,
			OrderID:        item.Content.Order.OrderID,
			OrdererName:    item.Content.Order.OrdererName,
			OrdererTel:     item.Content.Order.OrdererTel,
			ProductName:    strings.TrimSpace(po.ProductName + " " + po.ProductOption),
			Day:            durationFromOption(po.ProductOption),
			Quantity:       po.Quantity,
		})
	}
	return drafts, nil
}

// Dispatch marks the given product orders as delivered; eSIMs have no shipment
func (c *MarketplaceClient) Dispatch(ctx context.Context, productOrderIDs []string) (*DispatchResult, error) {
	if len(productOrderIDs) == 0 {
		return &DispatchResult{}, nil
	}

	now := c.now().Format(marketplaceTimeLayout)
	items := make([]marketplaceDispatchItem, 0, len(productOrderIDs))
	for _, id := range productOrderIDs {
		items = append(items, marketplaceDispatchItem{ProductOrderID: id, DeliveryMethod: "NOTHING", DispatchDate: now})
	}
	body, err := json.Marshal(map[string]any{"dispatchProductOrders": items})
	if err != nil {
		return nil, fmt.Errorf("failed to encode dispatch request: %w", err)
	}

	var resp marketplaceDispatchResponse
	err = doJSON(ctx, c.client, vendorRequest{
		vendor:  marketplaceVendor,
		op:      "dispatch",
		method:  http.MethodPost,
		url:     strings.TrimRight(c.cfg.BaseURL, "/") + marketplaceDispatchPath,
		headers: c.headers(),
		body:    body,
	}, &resp)
	if err != nil {
		return nil, err
	}

	result := &DispatchResult{Succeeded: resp.Data.SuccessProductOrderIDs}
	for _, f := range resp.Data.FailProductOrderInfos {
		result.Failed = append(result.Failed, f.ProductOrderID)
	}
	return result, nil
}
