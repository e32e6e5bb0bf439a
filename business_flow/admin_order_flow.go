package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/esim-relay/app/dto"
	"github.com/amirphl/esim-relay/app/services"
	"github.com/amirphl/esim-relay/models"
	"github.com/amirphl/esim-relay/repository"
	"github.com/amirphl/esim-relay/utils"
	"github.com/xuri/excelize/v2"
)

// AdminOrderFlow serves the admin dashboard and the manual vendor operations
type AdminOrderFlow interface {
	ListOrders(ctx context.Context) (*dto.AdminListOrdersResponse, error)
	ExportOrders(ctx context.Context) (filename string, content []byte, err error)
	ManualSubmit(ctx context.Context, req *dto.AdminManualSubmitRequest) (*dto.AdminManualSubmitResponse, error)
	Redeem(ctx context.Context, req *dto.AdminRedeemRequest) (*dto.AdminRedeemResponse, error)
	StatusUsage(ctx context.Context, payload map[string]any) (*dto.AdminStatusUsageResponse, error)
	Reconcile(ctx context.Context) (*dto.ReconcileReportDTO, error)
	ListCallbacks(ctx context.Context, req *dto.AdminListCallbacksRequest) (*dto.AdminListCallbacksResponse, error)
}

// AdminOrderFlowImpl implements AdminOrderFlow
type AdminOrderFlowImpl struct {
	orderRepo   repository.OrderRecordRepository
	eventRepo   repository.CallbackEventRepository
	fulfillment FulfillmentFlow
	redemption  services.RedemptionClient
	reconciler  Reconciler
	now         func() time.Time
}

func NewAdminOrderFlow(
	orderRepo repository.OrderRecordRepository,
	eventRepo repository.CallbackEventRepository,
	fulfillment FulfillmentFlow,
	redemption services.RedemptionClient,
	reconciler Reconciler,
) AdminOrderFlow {
	return &AdminOrderFlowImpl{
		orderRepo:   orderRepo,
		eventRepo:   eventRepo,
		fulfillment: fulfillment,
		redemption:  redemption,
		reconciler:  reconciler,
		now:         utils.SeoulNow,
	}
}

// ListOrders returns the latest orders and the dashboard counters; "today" is the Seoul calendar day
func (f *AdminOrderFlowImpl) ListOrders(ctx context.Context) (*dto.AdminListOrdersResponse, error) {
	records, err := f.orderRepo.ListLatest(ctx, utils.AdminOrderListLimit)
	if err != nil {
		return nil, NewBusinessError("FETCH_ORDERS_FAILED", "Failed to fetch orders", err)
	}
	stats, err := f.orderRepo.Stats(ctx, utils.StartOfDay(f.now(), utils.SeoulLocation))
	if err != nil {
		return nil, NewBusinessError("FETCH_STATS_FAILED", "Failed to compute order stats", err)
	}

	orders := make([]dto.OrderRecordDTO, 0, len(records))
	for _, r := range records {
		orders = append(orders, ToOrderRecordDTO(*r))
	}
	return &dto.AdminListOrdersResponse{Orders: orders, Stats: ToOrderStatsDTO(*stats)}, nil
}

var exportHeader = []string{
	"id", "product_order_id", "order_id", "order_tid", "orderer_name", "orderer_tel", "email",
	"product_name", "day", "quantity", "sn_pin", "sn_code", "qr", "kakao_send_yn", "dispatch_status", "created_at",
}

// ExportOrders renders the latest orders as an xlsx workbook
func (f *AdminOrderFlowImpl) ExportOrders(ctx context.Context) (string, []byte, error) {
	records, err := f.orderRepo.ListLatest(ctx, utils.AdminOrderListLimit)
	if err != nil {
		return "", nil, NewBusinessError("FETCH_ORDERS_FAILED", "Failed to fetch orders", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := "orders"
	xl.SetSheetName(xl.GetSheetName(0), sheet)
	header := exportHeader
	if err := xl.SetSheetRow(sheet, "A1", &header); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", fmt.Errorf("%w: %w", ErrExportFailed, err))
	}

	for i, r := range records {
		o := ToOrderRecordDTO(*r)
		row := []any{
			o.ID, o.ProductOrderID, o.OrderID, o.OrderTid, o.OrdererName, o.OrdererTel, o.Email,
			o.ProductName, o.Day, o.Quantity, o.SnPin, o.SnCode, o.QR, o.KakaoSendYN, o.DispatchStatus, o.CreatedAt,
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := xl.SetSheetRow(sheet, cellRef, &row); err != nil {
			return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", fmt.Errorf("%w: %w", ErrExportFailed, err))
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", fmt.Errorf("%w: %w", ErrExportFailed, err))
	}
	filename := "orders_" + f.now().Format("20060102_150405") + ".xlsx"
	return filename, buf.Bytes(), nil
}

// ManualSubmit submits one stored order to the provisioning vendor now
func (f *AdminOrderFlowImpl) ManualSubmit(ctx context.Context, req *dto.AdminManualSubmitRequest) (*dto.AdminManualSubmitResponse, error) {
	if req == nil || (req.RecordID == 0 && req.ProductOrderID == "") {
		return nil, NewBusinessError("VALIDATION_ERROR", "record_id or product_order_id is required", ErrRequestNil)
	}

	var (
		record *models.OrderRecord
		err    error
	)
	if req.RecordID != 0 {
		record, err = f.orderRepo.ByID(ctx, req.RecordID)
	} else {
		record, err = f.orderRepo.ByProductOrderID(ctx, req.ProductOrderID)
	}
	if err != nil {
		return nil, NewBusinessError("FETCH_ORDER_FAILED", "Failed to fetch order", err)
	}
	if record == nil {
		ref := req.ProductOrderID
		if req.RecordID != 0 {
			ref = strconv.FormatUint(uint64(req.RecordID), 10)
		}
		return nil, NewBusinessError("ORDER_RECORD_NOT_FOUND", "Order record not found", fmt.Errorf("%w: %s", ErrOrderRecordNotFound, ref))
	}

	res, productCode, err := f.fulfillment.SubmitOrder(ctx, record)
	if err != nil {
		return nil, err
	}
	return &dto.AdminManualSubmitResponse{
		RecordID:    record.ID,
		OrderTid:    res.OrderTid,
		ProductCode: productCode,
		Generated:   res.Generated,
	}, nil
}

// Redeem redeems a coupon directly; the resulting artifact is not stored
func (f *AdminOrderFlowImpl) Redeem(ctx context.Context, req *dto.AdminRedeemRequest) (*dto.AdminRedeemResponse, error) {
	if req == nil || req.Coupon == "" {
		return nil, NewBusinessError("VALIDATION_ERROR", "coupon is required", ErrCouponRequired)
	}
	res, err := f.redemption.Redeem(ctx, req.Coupon, req.TransID)
	if err != nil {
		return nil, NewBusinessError("COUPON_REDEEM_FAILED", "Coupon redeem failed", err)
	}
	return &dto.AdminRedeemResponse{
		TransID: res.TransID,
		QRCode:  res.QRCode,
		Code:    res.Code,
		Message: res.Message,
	}, nil
}

func (f *AdminOrderFlowImpl) StatusUsage(ctx context.Context, payload map[string]any) (*dto.AdminStatusUsageResponse, error) {
	raw, err := f.redemption.QueryStatusUsage(ctx, payload)
	if err != nil {
		return nil, NewBusinessError("STATUS_USAGE_FAILED", "Status/usage query failed", err)
	}
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	return &dto.AdminStatusUsageResponse{Vendor: raw}, nil
}

// Reconcile runs one reconciler tick synchronously
func (f *AdminOrderFlowImpl) Reconcile(ctx context.Context) (*dto.ReconcileReportDTO, error) {
	if f.reconciler == nil {
		return nil, NewBusinessError("RECONCILER_UNAVAILABLE", "Reconciler not available", ErrReconcilerUnavailable)
	}
	return ToReconcileReportDTO(f.reconciler.RunOnce(ctx)), nil
}

// ListCallbacks returns the newest callback audit events, optionally narrowed by kind and reference
func (f *AdminOrderFlowImpl) ListCallbacks(ctx context.Context, req *dto.AdminListCallbacksRequest) (*dto.AdminListCallbacksResponse, error) {
	filter := models.CallbackEventFilter{}
	if req.Kind != "" {
		filter.Kind = utils.ToPtr(models.CallbackKind(req.Kind))
	}
	if req.Reference != "" {
		filter.Reference = utils.ToPtr(req.Reference)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = utils.AdminCallbackListLimit
	}

	events, err := f.eventRepo.ListRecent(ctx, filter, limit)
	if err != nil {
		return nil, NewBusinessError("FETCH_CALLBACKS_FAILED", "Failed to fetch callback events", err)
	}

	out := make([]dto.CallbackEventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, ToCallbackEventDTO(*e))
	}
	return &dto.AdminListCallbacksResponse{Events: out}, nil
}

func ToReconcileReportDTO(report *TickReport) *dto.ReconcileReportDTO {
	out := &dto.ReconcileReportDTO{
		Skipped:    report.Skipped,
		StartedAt:  report.StartedAt.UTC().Format(time.RFC3339),
		DurationMS: report.Duration.Milliseconds(),
		Steps:      make([]dto.ReconcileStepDTO, 0, len(report.Steps)),
	}
	for _, s := range report.Steps {
		step := dto.ReconcileStepDTO{
			Step:      s.Step,
			Processed: s.Processed,
			Succeeded: s.Succeeded,
			Failed:    s.Failed,
			Skipped:   s.Skipped,
		}
		if s.Disabled {
			step.Error = "disabled"
		}
		if s.Err != nil {
			step.Error = s.Err.Error()
		}
		out.Steps = append(out.Steps, step)
	}
	return out
}
