package handlers

import (
	"log"

	"github.com/amirphl/esim-relay/app/dto"
	businessflow "github.com/amirphl/esim-relay/business_flow"
	"github.com/amirphl/esim-relay/utils"
	"github.com/gofiber/fiber/v3"
)

// CallbackHandlerInterface defines the contract for vendor callback handlers
type CallbackHandlerInterface interface {
	ProvisioningCallback(c fiber.Ctx) error
	RedemptionCallback(c fiber.Ctx) error
	ProgressEvent(c fiber.Ctx) error
}

// CallbackHandler receives asynchronous results from the eSIM vendors
type CallbackHandler struct {
	flow businessflow.CallbackFlow
}

func NewCallbackHandler(flow businessflow.CallbackFlow) CallbackHandlerInterface {
	return &CallbackHandler{flow: flow}
}

func errorCode(err error, fallback string) string {
	if code := businessflow.BusinessErrorCode(err); code != "" {
		return code
	}
	return fallback
}

func callbackError(c fiber.Ctx, statusCode int, code string, err error) error {
	return c.Status(statusCode).JSON(dto.CallbackErrorResponse{
		OK:    false,
		Code:  code,
		Error: err.Error(),
	})
}

// ProvisioningCallback stores the sub-unit pins of a fulfilled order, redeems them and notifies the customer.
// Only validation and the pin write are reported as failures.
func (h *CallbackHandler) ProvisioningCallback(c fiber.Ctx) error {
	var req dto.ProvisioningCallbackRequest
	if err := c.Bind().JSON(&req); err != nil {
		return callbackError(c, fiber.StatusBadRequest, "INVALID_REQUEST", err)
	}

	ctx, cancel := createRequestContext(c, "/api/joytel/esim/callback", longRequestTimeout)
	defer cancel()

	resp, err := h.flow.HandleProvisioningCallback(ctx, &req, clientMetadata(c))
	if err != nil {
		switch {
		case businessflow.IsValidation(err):
			return callbackError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", err)
		case businessflow.IsOrderRecordNotFound(err):
			return callbackError(c, fiber.StatusNotFound, "ORDER_RECORD_NOT_FOUND", err)
		default:
			log.Printf("provisioning callback failed: order_tid=%s request_id=%s error=%v", req.OrderTid, utils.RequestIDFrom(ctx), err)
			return callbackError(c, fiber.StatusInternalServerError, errorCode(err, "CALLBACK_FAILED"), err)
		}
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

// RedemptionCallback records a redeemed coupon; every outcome except invalid input is acknowledged with 200
func (h *CallbackHandler) RedemptionCallback(c fiber.Ctx) error {
	var req dto.RedemptionCallbackRequest
	if err := c.Bind().JSON(&req); err != nil {
		return callbackError(c, fiber.StatusBadRequest, "INVALID_REQUEST", err)
	}

	ctx, cancel := createRequestContext(c, "/api/joytel/notify/coupon/redeem", defaultRequestTimeout)
	defer cancel()

	resp, err := h.flow.HandleRedemptionCallback(ctx, &req, clientMetadata(c))
	if err != nil {
		if businessflow.IsValidation(err) {
			return callbackError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", err)
		}
		log.Printf("redemption callback failed: trans_id=%s request_id=%s error=%v", req.TransID, utils.RequestIDFrom(ctx), err)
		return callbackError(c, fiber.StatusInternalServerError, errorCode(err, "CALLBACK_FAILED"), err)
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

// ProgressEvent records a profile lifecycle transition. The vendor expects HTTP 200 in every case.
func (h *CallbackHandler) ProgressEvent(c fiber.Ctx) error {
	var req dto.ProgressEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusOK).JSON(dto.ProgressEventResponse{
			Code: dto.ProgressCodeInvalid,
			Mesg: "invalid request body",
		})
	}

	ctx, cancel := createRequestContext(c, "/api/joytel/notify/esim/progress", defaultRequestTimeout)
	defer cancel()

	resp, err := h.flow.HandleProgressEvent(ctx, &req, clientMetadata(c))
	if err != nil && !businessflow.IsValidation(err) {
		log.Printf("progress event failed: trans_id=%s request_id=%s error=%v", req.TransID, utils.RequestIDFrom(ctx), err)
	}
	if resp == nil {
		resp = &dto.ProgressEventResponse{Code: dto.ProgressCodeSuccess, Mesg: "success"}
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}
