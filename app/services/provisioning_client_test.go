package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/esim-relay/config"
	"github.com/amirphl/esim-relay/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvisioningClient(baseURL string) *ProvisioningClientImpl {
	c := NewProvisioningClient(&config.ProvisioningConfig{
		BaseURL:      baseURL,
		CustomerCode: "20216-18",
		CustomerAuth: "auth-key",
		Warehouse:    "上海仓库",
		Timeout:      time.Second,
	})
	c.now = func() time.Time { return time.Date(2024, 3, 5, 14, 7, 9, 0, utils.SeoulLocation) }
	c.random = func() int { return 42 }
	return c
}

func TestProvisioningSubmitOrder(t *testing.T) {
	var (
		mu         sync.Mutex
		gotBody    []byte
		gotHeaders http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, provisioningSubmitPath, r.URL.Path)
		mu.Lock()
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		mu.Unlock()
		_, _ = w.Write([]byte(`{"code":"000","data":{"orderTid":"VENDOR-1"}}`))
	}))
	defer srv.Close()

	client := newTestProvisioningClient(srv.URL)
	res, err := client.SubmitOrder(context.Background(), ProvisioningOrder{
		ReceiveName: "홍길동",
		Phone:       "10-1234-5678",
		Email:       "a@b.c",
		ProductCode: "eSIM-VN1G-05",
	})
	require.NoError(t, err)
	assert.Equal(t, "VENDOR-1", res.OrderTid)
	assert.False(t, res.Generated)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, "20216-18", gotHeaders.Get("Customer-Code"))
	assert.Equal(t, "auth-key", gotHeaders.Get("Customer-Auth"))
	assert.Equal(t, utils.WarehouseSignature(gotBody), gotHeaders.Get("Signature"))

	var sent provisioningSubmitRequest
	require.NoError(t, json.Unmarshal(gotBody, &sent))
	assert.Equal(t, "20216-1820240305140709000042", sent.OrderTid)
	assert.Equal(t, "01012345678", sent.Phone)
	assert.Equal(t, provisioningOrderType, sent.Type)
	require.Len(t, sent.ItemList, 1)
	assert.Equal(t, 1, sent.ItemList[0].Quantity)

	ts := time.Date(2024, 3, 5, 14, 7, 9, 0, utils.SeoulLocation).UnixMilli()
	assert.Equal(t, utils.OrderAutoGraph(utils.AutoGraphInput{
		CustomerCode: "20216-18",
		CustomerAuth: "auth-key",
		Warehouse:    "上海仓库",
		Type:         provisioningOrderType,
		OrderTid:     sent.OrderTid,
		ReceiveName:  "홍길동",
		Phone:        sent.Phone,
		Timestamp:    ts,
		ProductCode:  "eSIM-VN1G-05",
		Quantity:     1,
	}), sent.AutoGraph)
}

func TestProvisioningFallsBackToGeneratedTid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"000"}`))
	}))
	defer srv.Close()

	res, err := newTestProvisioningClient(srv.URL).SubmitOrder(context.Background(), ProvisioningOrder{ProductCode: "X"})
	require.NoError(t, err)
	assert.True(t, res.Generated)
	assert.Equal(t, "20216-1820240305140709000042", res.OrderTid)
}

func TestProvisioningHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	_, err := newTestProvisioningClient(srv.URL).SubmitOrder(context.Background(), ProvisioningOrder{ProductCode: "X"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamCall)

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadGateway, upstream.Status)
	assert.Equal(t, "upstream down", upstream.Body)
}

func TestProvisioningRequiresBaseURL(t *testing.T) {
	_, err := newTestProvisioningClient("").SubmitOrder(context.Background(), ProvisioningOrder{})
	assert.ErrorIs(t, err, ErrUpstreamCall)
}
