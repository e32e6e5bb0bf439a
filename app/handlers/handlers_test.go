package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amirphl/esim-relay/app/dto"
	"github.com/amirphl/esim-relay/app/services"
	businessflow "github.com/amirphl/esim-relay/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCallbackFlow struct {
	provisioningErr error
	redemptionErr   error
	progressResp    *dto.ProgressEventResponse
	progressErr     error
	lastMetadata    *businessflow.ClientMetadata
}

func (f *fakeCallbackFlow) HandleProvisioningCallback(_ context.Context, req *dto.ProvisioningCallbackRequest, md *businessflow.ClientMetadata) (*dto.ProvisioningCallbackResponse, error) {
	f.lastMetadata = md
	if f.provisioningErr != nil {
		return nil, f.provisioningErr
	}
	return &dto.ProvisioningCallbackResponse{OK: true, OrderTid: req.OrderTid, SnPinCount: 1, SnPins: "P1", FailedPins: []string{}}, nil
}

func (f *fakeCallbackFlow) HandleRedemptionCallback(_ context.Context, req *dto.RedemptionCallbackRequest, _ *businessflow.ClientMetadata) (*dto.RedemptionCallbackResponse, error) {
	if f.redemptionErr != nil {
		return nil, f.redemptionErr
	}
	return &dto.RedemptionCallbackResponse{OK: true, TransID: req.TransID}, nil
}

func (f *fakeCallbackFlow) HandleProgressEvent(_ context.Context, _ *dto.ProgressEventRequest, _ *businessflow.ClientMetadata) (*dto.ProgressEventResponse, error) {
	return f.progressResp, f.progressErr
}

func newCallbackApp(flow businessflow.CallbackFlow) *fiber.App {
	app := fiber.New()
	h := NewCallbackHandler(flow)
	app.Post("/esim/callback", h.ProvisioningCallback)
	app.Post("/notify/coupon/redeem", h.RedemptionCallback)
	app.Post("/notify/esim/progress", h.ProgressEvent)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestProvisioningCallbackHandler(t *testing.T) {
	body := `{"orderTid":"T1","itemList":[{"snList":[{"snPin":"P1","snCode":"C1"}]}]}`

	tests := []struct {
		name     string
		err      error
		body     string
		status   int
		wantCode string
	}{
		{name: "ok", body: body, status: http.StatusOK},
		{name: "malformed body", body: `{"orderTid":`, status: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "validation", body: body, err: businessflow.NewBusinessError("VALIDATION_ERROR", "bad", businessflow.ErrItemListRequired), status: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "unknown order", body: body, err: businessflow.NewBusinessError("ORDER_RECORD_NOT_FOUND", "missing", businessflow.ErrOrderRecordNotFound), status: http.StatusNotFound, wantCode: "ORDER_RECORD_NOT_FOUND"},
		{name: "persistence", body: body, err: businessflow.NewBusinessError("PERSISTENCE_ERROR", "db", businessflow.ErrPersistenceFailed), status: http.StatusInternalServerError, wantCode: "PERSISTENCE_ERROR"},
		{name: "plain error", body: body, err: errors.New("boom"), status: http.StatusInternalServerError, wantCode: "CALLBACK_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &fakeCallbackFlow{provisioningErr: tt.err}
			resp, out := doJSON(t, newCallbackApp(flow), http.MethodPost, "/esim/callback", tt.body, map[string]string{"X-Request-ID": "req-1"})

			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.wantCode == "" {
				assert.Equal(t, true, out["ok"])
				assert.Equal(t, "T1", out["orderTid"])
				require.NotNil(t, flow.lastMetadata)
				assert.Equal(t, "req-1", flow.lastMetadata.RequestID)
				return
			}
			assert.Equal(t, false, out["ok"])
			assert.Equal(t, tt.wantCode, out["code"])
		})
	}
}

func TestRedemptionCallbackHandler(t *testing.T) {
	body := `{"transId":"X1","data":{"coupon":"P1","qrcode":"Q1","cid":"C1"}}`

	resp, out := doJSON(t, newCallbackApp(&fakeCallbackFlow{}), http.MethodPost, "/notify/coupon/redeem", body, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "X1", out["transId"])

	flow := &fakeCallbackFlow{redemptionErr: businessflow.NewBusinessError("VALIDATION_ERROR", "bad", businessflow.ErrQRCodeRequired)}
	resp, out = doJSON(t, newCallbackApp(flow), http.MethodPost, "/notify/coupon/redeem", body, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", out["code"])
}

func TestProgressEventHandlerAlwaysOK(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		flow     *fakeCallbackFlow
		wantCode string
		wantMesg string
	}{
		{
			name:     "success",
			body:     `{"transId":"X1","data":{"cid":"C1","profileType":"1"}}`,
			flow:     &fakeCallbackFlow{progressResp: &dto.ProgressEventResponse{Code: dto.ProgressCodeSuccess, Mesg: "success"}},
			wantCode: "000",
			wantMesg: "success",
		},
		{
			name: "validation",
			body: `{"transId":"X1","data":{"cid":"C1"}}`,
			flow: &fakeCallbackFlow{
				progressResp: &dto.ProgressEventResponse{Code: dto.ProgressCodeInvalid, Mesg: "profileType is required"},
				progressErr:  businessflow.NewBusinessError("VALIDATION_ERROR", "bad", businessflow.ErrProfileTypeRequired),
			},
			wantCode: "999",
			wantMesg: "profileType is required",
		},
		{
			name:     "malformed body",
			body:     `not json`,
			flow:     &fakeCallbackFlow{},
			wantCode: "999",
			wantMesg: "invalid request body",
		},
		{
			name:     "flow returned nothing",
			body:     `{"transId":"X1","data":{"cid":"C1","profileType":"1"}}`,
			flow:     &fakeCallbackFlow{progressErr: errors.New("db down")},
			wantCode: "000",
			wantMesg: "success",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := doJSON(t, newCallbackApp(tt.flow), http.MethodPost, "/notify/esim/progress", tt.body, nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.wantCode, out["code"])
			assert.Equal(t, tt.wantMesg, out["mesg"])
		})
	}
}

type fakeAdminAuthFlow struct {
	loginErr  error
	logoutErr error
	lastToken string
}

func (f *fakeAdminAuthFlow) Login(_ context.Context, req *dto.AdminLoginRequest, _ *businessflow.ClientMetadata) (*dto.AdminLoginResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &dto.AdminLoginResponse{Username: req.Username, Session: dto.AdminSessionDTO{AccessToken: "tok", TokenType: "Bearer"}}, nil
}

func (f *fakeAdminAuthFlow) Logout(_ context.Context, token string) error {
	f.lastToken = token
	return f.logoutErr
}

func (f *fakeAdminAuthFlow) Status(_ context.Context, token string) (*dto.AuthStatusResponse, error) {
	f.lastToken = token
	return &dto.AuthStatusResponse{Authenticated: token == "tok", Username: "admin"}, nil
}

func newAuthApp(flow businessflow.AdminAuthFlow) *fiber.App {
	app := fiber.New()
	h := NewAuthHandler(flow)
	app.Post("/login", h.Login)
	app.Post("/logout", h.Logout)
	app.Get("/status", h.Status)
	return app
}

func TestAuthHandlerLogin(t *testing.T) {
	resp, out := doJSON(t, newAuthApp(&fakeAdminAuthFlow{}), http.MethodPost, "/login", `{"username":"admin","password":"correct-horse"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["success"])
	data := out["data"].(map[string]any)
	assert.Equal(t, "admin", data["username"])

	resp, out = doJSON(t, newAuthApp(&fakeAdminAuthFlow{}), http.MethodPost, "/login", `{"username":"ad","password":"x"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", out["error"].(map[string]any)["code"])

	flow := &fakeAdminAuthFlow{loginErr: businessflow.NewBusinessError("ADMIN_INCORRECT_CREDENTIALS", "no", businessflow.ErrIncorrectCredentials)}
	resp, out = doJSON(t, newAuthApp(flow), http.MethodPost, "/login", `{"username":"admin","password":"wrong-password"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INCORRECT_CREDENTIALS", out["error"].(map[string]any)["code"])
}

func TestAuthHandlerLogoutAndStatus(t *testing.T) {
	flow := &fakeAdminAuthFlow{}
	app := newAuthApp(flow)

	resp, _ := doJSON(t, app, http.MethodPost, "/logout", `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/logout", `{}`, map[string]string{"Authorization": "Bearer tok"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "tok", flow.lastToken)

	flow.logoutErr = businessflow.NewBusinessError("UNAUTHENTICATED", "no", businessflow.ErrUnauthenticated)
	resp, _ = doJSON(t, app, http.MethodPost, "/logout", `{}`, map[string]string{"Authorization": "Bearer stale"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, out := doJSON(t, app, http.MethodGet, "/status", "", map[string]string{"Authorization": "Bearer tok"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["data"].(map[string]any)["authenticated"])

	resp, out = doJSON(t, app, http.MethodGet, "/status", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, out["data"].(map[string]any)["authenticated"])
}

type fakeAdminOrderFlow struct {
	submitErr  error
	redeemErr  error
	reconErr   error
	lastSubmit *dto.AdminManualSubmitRequest
	lastUsage  map[string]any
	lastList   *dto.AdminListCallbacksRequest
}

func (f *fakeAdminOrderFlow) ListOrders(context.Context) (*dto.AdminListOrdersResponse, error) {
	return &dto.AdminListOrdersResponse{
		Orders: []dto.OrderRecordDTO{{ID: 1, ProductOrderID: "PO-1"}},
		Stats:  dto.OrderStatsDTO{Total: 1, Pending: 1, Today: 1},
	}, nil
}

func (f *fakeAdminOrderFlow) ExportOrders(context.Context) (string, []byte, error) {
	return "orders_20240305_101010.xlsx", []byte("xlsx-bytes"), nil
}

func (f *fakeAdminOrderFlow) ManualSubmit(_ context.Context, req *dto.AdminManualSubmitRequest) (*dto.AdminManualSubmitResponse, error) {
	f.lastSubmit = req
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &dto.AdminManualSubmitResponse{RecordID: 7, OrderTid: "TID-7", ProductCode: "eSIM-VN1G-05"}, nil
}

func (f *fakeAdminOrderFlow) Redeem(_ context.Context, req *dto.AdminRedeemRequest) (*dto.AdminRedeemResponse, error) {
	if f.redeemErr != nil {
		return nil, f.redeemErr
	}
	return &dto.AdminRedeemResponse{TransID: "T", QRCode: "LPA:1$" + req.Coupon}, nil
}

func (f *fakeAdminOrderFlow) StatusUsage(_ context.Context, payload map[string]any) (*dto.AdminStatusUsageResponse, error) {
	f.lastUsage = payload
	return &dto.AdminStatusUsageResponse{Vendor: json.RawMessage(`{"code":"000"}`)}, nil
}

func (f *fakeAdminOrderFlow) Reconcile(context.Context) (*dto.ReconcileReportDTO, error) {
	if f.reconErr != nil {
		return nil, f.reconErr
	}
	return &dto.ReconcileReportDTO{Steps: []dto.ReconcileStepDTO{{Step: "ingest"}}}, nil
}

func (f *fakeAdminOrderFlow) ListCallbacks(_ context.Context, req *dto.AdminListCallbacksRequest) (*dto.AdminListCallbacksResponse, error) {
	f.lastList = req
	return &dto.AdminListCallbacksResponse{Events: []dto.CallbackEventDTO{{ID: 9, Kind: "redemption", Outcome: "ok"}}}, nil
}

func newAdminOrderApp(flow businessflow.AdminOrderFlow) *fiber.App {
	app := fiber.New()
	h := NewAdminOrderHandler(flow)
	app.Get("/orders", h.ListOrders)
	app.Get("/orders/export", h.ExportOrders)
	app.Post("/esim/order", h.ManualSubmit)
	app.Post("/coupon/redeem", h.Redeem)
	app.Post("/esim/status-usage", h.StatusUsage)
	app.Post("/reconcile", h.Reconcile)
	app.Get("/callbacks", h.ListCallbacks)
	return app
}

func TestAdminOrderHandlerListAndExport(t *testing.T) {
	app := newAdminOrderApp(&fakeAdminOrderFlow{})

	resp, out := doJSON(t, app, http.MethodGet, "/orders", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := out["data"].(map[string]any)
	assert.Len(t, data["orders"], 1)
	assert.Equal(t, float64(1), data["stats"].(map[string]any)["total"])

	req := httptest.NewRequest(http.MethodGet, "/orders/export", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
	assert.Equal(t, "attachment; filename=orders_20240305_101010.xlsx", resp.Header.Get("Content-Disposition"))
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "xlsx-bytes", string(raw))
}

func TestAdminOrderHandlerListCallbacks(t *testing.T) {
	flow := &fakeAdminOrderFlow{}
	app := newAdminOrderApp(flow)

	resp, out := doJSON(t, app, http.MethodGet, "/callbacks?kind=redemption&reference=TID-1&limit=20", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, flow.lastList)
	assert.Equal(t, dto.AdminListCallbacksRequest{Kind: "redemption", Reference: "TID-1", Limit: 20}, *flow.lastList)
	assert.Len(t, out["data"].(map[string]any)["events"], 1)

	resp, out = doJSON(t, app, http.MethodGet, "/callbacks?kind=bogus", "", map[string]string{"X-Request-ID": "req-9"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "req-9", out["request_id"])
	assert.Equal(t, "VALIDATION_ERROR", out["error"].(map[string]any)["code"])

	resp, _ = doJSON(t, app, http.MethodGet, "/callbacks?limit=9999", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminOrderHandlerManualSubmit(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "ok", status: http.StatusOK},
		{name: "not found", err: businessflow.NewBusinessError("ORDER_RECORD_NOT_FOUND", "x", businessflow.ErrOrderRecordNotFound), status: http.StatusNotFound},
		{name: "already queued", err: businessflow.NewBusinessError("ORDER_ALREADY_QUEUED", "x", businessflow.ErrOrderAlreadyQueued), status: http.StatusConflict},
		{name: "validation", err: businessflow.NewBusinessError("VALIDATION_ERROR", "x", businessflow.ErrRequestNil), status: http.StatusBadRequest},
		{name: "vendor", err: businessflow.NewBusinessError("PROVISIONING_SUBMIT_FAILED", "x", &services.UpstreamError{Vendor: "warehouse", Op: "submit", Status: 500}), status: http.StatusBadGateway},
		{name: "other", err: fmt.Errorf("db: %w", businessflow.ErrPersistenceFailed), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &fakeAdminOrderFlow{submitErr: tt.err}
			resp, _ := doJSON(t, newAdminOrderApp(flow), http.MethodPost, "/esim/order", `{"product_order_id":"PO-1"}`, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			require.NotNil(t, flow.lastSubmit)
			assert.Equal(t, "PO-1", flow.lastSubmit.ProductOrderID)
		})
	}
}

func TestAdminOrderHandlerVendorPassthrough(t *testing.T) {
	flow := &fakeAdminOrderFlow{}
	app := newAdminOrderApp(flow)

	resp, out := doJSON(t, app, http.MethodPost, "/coupon/redeem", `{"coupon":"P1"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "LPA:1$P1", out["data"].(map[string]any)["qrcode"])

	resp, _ = doJSON(t, app, http.MethodPost, "/coupon/redeem", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	flow.redeemErr = businessflow.NewBusinessError("COUPON_REDEEM_FAILED", "x", &services.UpstreamError{Vendor: "rsp", Op: "redeem"})
	resp, _ = doJSON(t, app, http.MethodPost, "/coupon/redeem", `{"coupon":"P1"}`, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, out = doJSON(t, app, http.MethodPost, "/esim/status-usage", `{"coupon":"P1","page":1}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "P1", flow.lastUsage["coupon"])
	assert.Equal(t, "000", out["data"].(map[string]any)["vendor"].(map[string]any)["code"])
}

func TestAdminOrderHandlerReconcile(t *testing.T) {
	resp, out := doJSON(t, newAdminOrderApp(&fakeAdminOrderFlow{}), http.MethodPost, "/reconcile", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, out["data"].(map[string]any)["steps"], 1)

	flow := &fakeAdminOrderFlow{reconErr: businessflow.NewBusinessError("RECONCILER_UNAVAILABLE", "x", businessflow.ErrReconcilerUnavailable)}
	resp, _ = doJSON(t, newAdminOrderApp(flow), http.MethodPost, "/reconcile", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
