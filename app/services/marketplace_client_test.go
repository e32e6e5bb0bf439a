package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/esim-relay/config"
	"github.com/amirphl/esim-relay/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const marketplaceOrdersFixture = `{
  "data": {
    "contents": [
      {
        "productOrderId": "PO-1",
        "content": {
          "order": {"orderId": "O-1", "ordererName": "김철수", "ordererTel": "010-1234-5678"},
          "productOrder": {"productName": "베트남 eSIM", "productOption": "1기가 / 5일", "quantity": 2}
        }
      },
      {
        "productOrderId": "PO-2",
        "content": {
          "order": {"orderId": "O-2", "ordererName": "이영희", "ordererTel": "010-9999-0000"},
          "productOrder": {"productName": "일본 eSIM", "productOption": "", "quantity": 1}
        }
      }
    ]
  }
}`

func newTestMarketplaceClient(baseURL string) *MarketplaceClient {
	c := NewMarketplaceClient(&config.MarketplaceConfig{
		Enabled:     true,
		BaseURL:     baseURL,
		AccessToken: "market-token",
		Timeout:     time.Second,
	})
	c.now = func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, utils.SeoulLocation) }
	return c
}

func TestFetchNewOrders(t *testing.T) {
	since := time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, marketplaceOrdersPath, r.URL.Path)
		assert.Equal(t, "Bearer market-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2024-03-04T10:00:00.000+09:00", r.URL.Query().Get("from"))
		_, _ = w.Write([]byte(marketplaceOrdersFixture))
	}))
	defer srv.Close()

	drafts, err := newTestMarketplaceClient(srv.URL).FetchNewOrders(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	assert.Equal(t, OrderDraft{
		ProductOrderID: "PO-1",
		OrderID:        "O-1",
		OrdererName:    "김철수",
		OrdererTel:     "010-1234-5678",
		ProductName:    "베트남 eSIM 1기가 / 5일",
		Day:            5,
		Quantity:       2,
	}, drafts[0])
	assert.Equal(t, "일본 eSIM", drafts[1].ProductName)
	assert.Equal(t, utils.DefaultDurationDays, drafts[1].Day)
}

func TestDispatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, marketplaceDispatchPath, r.URL.Path)
		var body struct {
			DispatchProductOrders []marketplaceDispatchItem `json:"dispatchProductOrders"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.DispatchProductOrders, 2) {
			assert.Equal(t, "NOTHING", body.DispatchProductOrders[0].DeliveryMethod)
			assert.Equal(t, "2024-03-05T10:00:00.000+09:00", body.DispatchProductOrders[0].DispatchDate)
		}
		_, _ = w.Write([]byte(`{"data":{"successProductOrderIds":["PO-1"],"failProductOrderInfos":[{"productOrderId":"PO-2","code":"E","message":"bad state"}]}}`))
	}))
	defer srv.Close()

	res, err := newTestMarketplaceClient(srv.URL).Dispatch(context.Background(), []string{"PO-1", "PO-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"PO-1"}, res.Succeeded)
	assert.Equal(t, []string{"PO-2"}, res.Failed)
}

func TestDispatchEmpty(t *testing.T) {
	res, err := newTestMarketplaceClient("http://unused").Dispatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Succeeded)
}

func TestDurationFromOption(t *testing.T) {
	tests := []struct {
		option string
		want   int
	}{
		{"1기가 / 5일", 5},
		{"무제한 10 일", 10},
		{"30일", 30},
		{"", utils.DefaultDurationDays},
		{"0일", utils.DefaultDurationDays},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, durationFromOption(tt.option), tt.option)
	}
}
