package handlers

import (
	"log"

	"github.com/amirphl/esim-relay/app/dto"
	"github.com/amirphl/esim-relay/app/middleware"
	"github.com/amirphl/esim-relay/app/services"
	businessflow "github.com/amirphl/esim-relay/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// AdminOrderHandlerInterface defines the contract for the admin order endpoints
type AdminOrderHandlerInterface interface {
	ListOrders(c fiber.Ctx) error
	ExportOrders(c fiber.Ctx) error
	ManualSubmit(c fiber.Ctx) error
	Redeem(c fiber.Ctx) error
	StatusUsage(c fiber.Ctx) error
	Reconcile(c fiber.Ctx) error
	ListCallbacks(c fiber.Ctx) error
}

// AdminOrderHandler serves the admin dashboard and the manual vendor operations
type AdminOrderHandler struct {
	flow      businessflow.AdminOrderFlow
	validator *validator.Validate
}

func NewAdminOrderHandler(flow businessflow.AdminOrderFlow) AdminOrderHandlerInterface {
	return &AdminOrderHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

// ListOrders returns the latest orders with the dashboard counters
func (h *AdminOrderHandler) ListOrders(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/admin/orders", defaultRequestTimeout)
	defer cancel()

	resp, err := h.flow.ListOrders(ctx)
	if err != nil {
		log.Println("Admin list orders failed", err)
		return ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch orders", errorCode(err, "FETCH_ORDERS_FAILED"), nil)
	}

	return SuccessResponse(c, fiber.StatusOK, "Orders retrieved successfully", resp)
}

// ExportOrders downloads the latest orders as an Excel workbook
func (h *AdminOrderHandler) ExportOrders(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/admin/orders/export", defaultRequestTimeout)
	defer cancel()

	filename, data, err := h.flow.ExportOrders(ctx)
	if err != nil {
		log.Println("Admin export orders failed", err)
		return ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate Excel", "DOWNLOAD_FAILED", nil)
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

// ManualSubmit submits one stored order to the provisioning vendor
func (h *AdminOrderHandler) ManualSubmit(c fiber.Ctx) error {
	var req dto.AdminManualSubmitRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/joytel/esim/order", defaultRequestTimeout)
	defer cancel()

	admin, _ := middleware.GetAdminUsernameFromContext(c)
	log.Printf("admin=%s manual submit record_id=%d product_order_id=%s", admin, req.RecordID, req.ProductOrderID)

	resp, err := h.flow.ManualSubmit(ctx, &req)
	if err != nil {
		switch {
		case businessflow.IsValidation(err):
			return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
		case businessflow.IsOrderRecordNotFound(err):
			return ErrorResponse(c, fiber.StatusNotFound, "Order record not found", "ORDER_RECORD_NOT_FOUND", nil)
		case businessflow.IsOrderAlreadyQueued(err):
			return ErrorResponse(c, fiber.StatusConflict, "Order already submitted", "ORDER_ALREADY_QUEUED", nil)
		case services.IsUpstreamError(err):
			return ErrorResponse(c, fiber.StatusBadGateway, "eSIM order submit failed", "PROVISIONING_SUBMIT_FAILED", err.Error())
		}
		log.Println("Admin manual submit failed", err)
		return ErrorResponse(c, fiber.StatusInternalServerError, "eSIM order submit failed", errorCode(err, "MANUAL_SUBMIT_FAILED"), nil)
	}

	return SuccessResponse(c, fiber.StatusOK, "Order submitted", resp)
}

// Redeem redeems one coupon directly against the redemption vendor
func (h *AdminOrderHandler) Redeem(c fiber.Ctx) error {
	var req dto.AdminRedeemRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/joytel/coupon/redeem", defaultRequestTimeout)
	defer cancel()

	admin, _ := middleware.GetAdminUsernameFromContext(c)
	log.Printf("admin=%s manual redeem coupon=%s", admin, req.Coupon)

	resp, err := h.flow.Redeem(ctx, &req)
	if err != nil {
		if services.IsUpstreamError(err) {
			return ErrorResponse(c, fiber.StatusBadGateway, "Coupon redeem failed", "COUPON_REDEEM_FAILED", err.Error())
		}
		log.Println("Admin coupon redeem failed", err)
		return ErrorResponse(c, fiber.StatusInternalServerError, "Coupon redeem failed", errorCode(err, "COUPON_REDEEM_FAILED"), nil)
	}

	return SuccessResponse(c, fiber.StatusOK, "Coupon redeemed", resp)
}

// StatusUsage forwards an arbitrary status/usage query to the redemption vendor
func (h *AdminOrderHandler) StatusUsage(c fiber.Ctx) error {
	payload := map[string]any{}
	if err := c.Bind().JSON(&payload); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	ctx, cancel := createRequestContext(c, "/api/joytel/esim/status-usage", defaultRequestTimeout)
	defer cancel()

	resp, err := h.flow.StatusUsage(ctx, payload)
	if err != nil {
		if services.IsUpstreamError(err) {
			return ErrorResponse(c, fiber.StatusBadGateway, "Status/usage query failed", "STATUS_USAGE_FAILED", err.Error())
		}
		log.Println("Admin status/usage query failed", err)
		return ErrorResponse(c, fiber.StatusInternalServerError, "Status/usage query failed", "STATUS_USAGE_FAILED", nil)
	}

	return SuccessResponse(c, fiber.StatusOK, "Status/usage retrieved", resp)
}

// Reconcile runs one reconciler tick and returns its report
func (h *AdminOrderHandler) Reconcile(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/admin/reconcile", longRequestTimeout)
	defer cancel()

	admin, _ := middleware.GetAdminUsernameFromContext(c)
	log.Printf("admin=%s manual reconcile", admin)

	report, err := h.flow.Reconcile(ctx)
	if err != nil {
		if businessflow.IsReconcilerUnavailable(err) {
			return ErrorResponse(c, fiber.StatusServiceUnavailable, "Reconciler not available", "RECONCILER_UNAVAILABLE", nil)
		}
		log.Println("Admin reconcile failed", err)
		return ErrorResponse(c, fiber.StatusInternalServerError, "Reconcile failed", "RECONCILE_FAILED", nil)
	}

	return SuccessResponse(c, fiber.StatusOK, "Reconcile finished", report)
}

// ListCallbacks returns the newest callback audit events
func (h *AdminOrderHandler) ListCallbacks(c fiber.Ctx) error {
	var req dto.AdminListCallbacksRequest
	if err := c.Bind().Query(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/admin/callbacks", defaultRequestTimeout)
	defer cancel()

	resp, err := h.flow.ListCallbacks(ctx, &req)
	if err != nil {
		log.Println("Admin list callbacks failed", err)
		return ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch callback events", errorCode(err, "FETCH_CALLBACKS_FAILED"), nil)
	}

	return SuccessResponse(c, fiber.StatusOK, "Callback events retrieved successfully", resp)
}
