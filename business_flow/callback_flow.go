package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/amirphl/esim-relay/app/dto"
	"github.com/amirphl/esim-relay/app/services"
	"github.com/amirphl/esim-relay/models"
	"github.com/amirphl/esim-relay/repository"
	"github.com/amirphl/esim-relay/utils"
	"gorm.io/datatypes"
)

// Callback steps recorded in the audit trail
const (
	stepStoreSubUnits   = "store_sub_units"
	stepRedeem          = "redeem"
	stepStoreArtifacts  = "store_artifacts"
	stepLookupRecord    = "lookup_record"
	stepNotify          = "notify"
	stepMarkNotified    = "mark_notified"
	stepRecordProgress  = "record_progress"
	stepMergeArtifact   = "merge_artifact"
	stepUpdateLifecycle = "update_lifecycle"
)

// CallbackFlow handles the asynchronous vendor callbacks of the fulfillment pipeline
type CallbackFlow interface {
	HandleProvisioningCallback(ctx context.Context, req *dto.ProvisioningCallbackRequest, metadata *ClientMetadata) (*dto.ProvisioningCallbackResponse, error)
	HandleRedemptionCallback(ctx context.Context, req *dto.RedemptionCallbackRequest, metadata *ClientMetadata) (*dto.RedemptionCallbackResponse, error)
	HandleProgressEvent(ctx context.Context, req *dto.ProgressEventRequest, metadata *ClientMetadata) (*dto.ProgressEventResponse, error)
}

// CallbackFlowImpl implements CallbackFlow.
// Only validation and the pin/code write are surfaced as errors; every later step is best-effort
// and reported through the callback audit event.
type CallbackFlowImpl struct {
	orderRepo     repository.OrderRecordRepository
	progressRepo  repository.ProgressNotificationRepository
	eventRepo     repository.CallbackEventRepository
	redemption    services.RedemptionClient
	notifier      services.NotificationClient
	interPinDelay time.Duration
	sleep         func(context.Context, time.Duration) error
}

func NewCallbackFlow(
	orderRepo repository.OrderRecordRepository,
	progressRepo repository.ProgressNotificationRepository,
	eventRepo repository.CallbackEventRepository,
	redemption services.RedemptionClient,
	notifier services.NotificationClient,
	interPinDelay time.Duration,
) CallbackFlow {
	return &CallbackFlowImpl{
		orderRepo:     orderRepo,
		progressRepo:  progressRepo,
		eventRepo:     eventRepo,
		redemption:    redemption,
		notifier:      notifier,
		interPinDelay: interPinDelay,
		sleep:         sleepContext,
	}
}

// HandleProvisioningCallback stores the issued sub-units of an order, redeems each pin in turn,
// stores the resulting artifacts and notifies the customer.
func (f *CallbackFlowImpl) HandleProvisioningCallback(ctx context.Context, req *dto.ProvisioningCallbackRequest, metadata *ClientMetadata) (*dto.ProvisioningCallbackResponse, error) {
	if err := validateProvisioningCallback(req); err != nil {
		callbacksTotal.WithLabelValues(string(models.CallbackKindProvisioning), outcomeRejected).Inc()
		return nil, NewBusinessError("VALIDATION_ERROR", "Invalid provisioning callback", err)
	}

	units := flattenSubUnits(req.ItemList)
	pins := make([]string, len(units))
	codes := make([]string, len(units))
	for i, u := range units {
		pins[i] = u.Pin
		codes[i] = u.Code
	}
	pinString := utils.JoinTokens(pins)
	codeString := utils.JoinTokens(codes)

	steps := &stepLog{}
	if err := f.storeSubUnits(ctx, req.OrderTid, pinString, codeString, units); err != nil {
		steps.record(stepStoreSubUnits, err)
		f.finish(ctx, models.CallbackKindProvisioning, req.OrderTid, req, steps, outcomeFailed, metadata)
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, NewBusinessError("ORDER_RECORD_NOT_FOUND", "No order record for orderTid",
				fmt.Errorf("%w: orderTid %s", ErrOrderRecordNotFound, req.OrderTid))
		}
		return nil, persistenceError("Failed to store sub-units", err)
	}
	steps.record(stepStoreSubUnits, nil)

	artifacts, transIDs, failedPins := f.redeemAll(ctx, pins, steps)

	first := -1
	for i, a := range artifacts {
		if utils.HasArtifact(a) {
			first = i
			break
		}
	}
	// Failed pins keep their position as empty tokens, even when every pin failed
	_, err := f.orderRepo.UpdateActivationArtifacts(ctx, pinString, utils.JoinTokens(artifacts))
	steps.record(stepStoreArtifacts, err)
	if first >= 0 {
		f.notifyRecord(ctx, steps, func() (*models.OrderRecord, error) {
			return f.orderRepo.LookupByPinOrSubstring(ctx, pinString)
		}, req.OrderTid, artifacts[first], transIDs[first])
	}

	f.finish(ctx, models.CallbackKindProvisioning, req.OrderTid, req, steps, steps.outcome(), metadata)

	return &dto.ProvisioningCallbackResponse{
		OK:          true,
		OrderTid:    req.OrderTid,
		SnPinCount:  len(pins),
		SnPins:      pinString,
		SnCodeCount: len(codes),
		SnCodes:     codeString,
		FailedPins:  failedPins,
	}, nil
}

// storeSubUnits writes the delimited pin and code columns and their structured form,
// in one transaction when the repository supports it
func (f *CallbackFlowImpl) storeSubUnits(ctx context.Context, orderTid, pinString, codeString string, units []models.SubUnit) error {
	write := func(ctx context.Context) error {
		if err := f.orderRepo.UpdateSubUnitPins(ctx, orderTid, pinString); err != nil {
			return err
		}
		if err := f.orderRepo.UpdateSubUnitCodes(ctx, orderTid, codeString); err != nil {
			return err
		}
		return f.orderRepo.UpdateSubUnits(ctx, orderTid, units)
	}
	if tx, ok := f.orderRepo.(repository.Transactor); ok {
		return tx.WithTransaction(ctx, write)
	}
	return write(ctx)
}

// redeemAll redeems pins one at a time with interPinDelay between calls.
// A failed pin leaves an empty artifact in its slot.
func (f *CallbackFlowImpl) redeemAll(ctx context.Context, pins []string, steps *stepLog) (artifacts, transIDs, failedPins []string) {
	artifacts = make([]string, len(pins))
	transIDs = make([]string, len(pins))
	failedPins = []string{}

	for i, pin := range pins {
		if i > 0 && f.interPinDelay > 0 {
			if err := f.sleep(ctx, f.interPinDelay); err != nil {
				failedPins = append(failedPins, pins[i:]...)
				steps.record(stepRedeem, fmt.Errorf("redemption stopped before pin %s: %w", pin, err))
				return artifacts, transIDs, failedPins
			}
		}
		res, err := f.redemption.Redeem(ctx, pin, "")
		if err != nil {
			log.Printf("callback: redeem failed pin=%s: %v", pin, err)
			failedPins = append(failedPins, pin)
			steps.record(stepRedeem+":"+pin, err)
			continue
		}
		artifacts[i] = res.QRCode
		transIDs[i] = res.TransID
	}
	if len(failedPins) == 0 {
		steps.record(stepRedeem, nil)
	}
	return artifacts, transIDs, failedPins
}

// notifyRecord sends the activation message for the record returned by lookup and flags it as sent
func (f *CallbackFlowImpl) notifyRecord(ctx context.Context, steps *stepLog, lookup func() (*models.OrderRecord, error), orderRef, artifact, transID string) {
	record, err := lookup()
	if err == nil && record == nil {
		err = ErrOrderRecordNotFound
	}
	if err != nil {
		steps.record(stepLookupRecord, err)
		return
	}

	if orderRef == "" {
		orderRef = utils.Deref(record.OrderTid)
	}
	res, err := f.notifier.SendActivation(ctx, services.ActivationMessage{
		Phone:          record.OrdererTel,
		OrderReference: orderRef,
		ProductName:    record.ProductName,
		Day:            record.Day,
		Artifact:       artifact,
		TransID:        transID,
	})
	steps.record(stepNotify, err)
	if err != nil || res.Skipped {
		return
	}
	steps.record(stepMarkNotified, f.orderRepo.MarkNotificationSent(ctx, record.ID))
}

// HandleRedemptionCallback records the redemption, merges its artifact into the matching order
// and notifies the customer. Failures after validation never change the acknowledgement.
func (f *CallbackFlowImpl) HandleRedemptionCallback(ctx context.Context, req *dto.RedemptionCallbackRequest, metadata *ClientMetadata) (*dto.RedemptionCallbackResponse, error) {
	if err := validateRedemptionCallback(req); err != nil {
		callbacksTotal.WithLabelValues(string(models.CallbackKindRedemption), outcomeRejected).Inc()
		return nil, NewBusinessError("VALIDATION_ERROR", "Invalid redemption callback", err)
	}

	data := req.Data
	qrcode := *data.QRCode
	steps := &stepLog{}

	transID := req.TransID
	if transID != "" {
		_, err := f.progressRepo.InsertIfAbsent(ctx, &models.ProgressNotification{
			TransactionID:      transID,
			SubUnitPin:         data.Coupon,
			CarrierDeviceID:    data.Cid,
			ActivationArtifact: qrcode,
		})
		steps.record(stepRecordProgress, err)
	} else {
		steps.record(stepRecordProgress, ErrTransIDRequired)
	}

	var merged *models.OrderRecord
	if qrcode != "" {
		var err error
		merged, err = f.orderRepo.MergeActivationArtifact(ctx, data.Coupon, qrcode)
		steps.record(stepMergeArtifact, err)
	}

	if utils.HasArtifact(qrcode) {
		f.notifyRecord(ctx, steps, func() (*models.OrderRecord, error) {
			if merged != nil {
				return merged, nil
			}
			return f.orderRepo.LookupByPinOrSubstring(ctx, data.Coupon)
		}, "", qrcode, transID)
	}

	f.finish(ctx, models.CallbackKindRedemption, transID, req, steps, steps.outcome(), metadata)
	return &dto.RedemptionCallbackResponse{OK: true, TransID: transID}, nil
}

// HandleProgressEvent applies a lifecycle transition. The vendor always receives HTTP 200;
// validation failures are reported with code 999 in the body.
func (f *CallbackFlowImpl) HandleProgressEvent(ctx context.Context, req *dto.ProgressEventRequest, metadata *ClientMetadata) (*dto.ProgressEventResponse, error) {
	if err := validateProgressEvent(req); err != nil {
		callbacksTotal.WithLabelValues(string(models.CallbackKindProgress), outcomeRejected).Inc()
		return &dto.ProgressEventResponse{Code: dto.ProgressCodeInvalid, Mesg: strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")},
			NewBusinessError("VALIDATION_ERROR", "Invalid progress event", err)
	}

	steps := &stepLog{}
	update := models.LifecycleUpdate{
		StateCode:   req.Data.NotificationPointID,
		Eid:         req.Data.Eid,
		ProfileType: req.Data.ProfileType,
	}
	if len(req.Data.NotificationPointStatus) > 0 && string(req.Data.NotificationPointStatus) != "null" {
		update.Status = datatypes.JSON(req.Data.NotificationPointStatus)
	}
	n, err := f.progressRepo.UpdateLifecycleByDeviceID(ctx, req.Data.Cid, update)
	if err == nil && n > 1 {
		log.Printf("callback: progress cid=%s matched %d rows", req.Data.Cid, n)
	}
	steps.record(stepUpdateLifecycle, err)

	f.finish(ctx, models.CallbackKindProgress, req.TransID, req, steps, steps.outcome(), metadata)
	return &dto.ProgressEventResponse{Code: dto.ProgressCodeSuccess, Mesg: "success"}, nil
}

// finish counts the callback, logs failed steps as one line and stores the audit event
func (f *CallbackFlowImpl) finish(ctx context.Context, kind models.CallbackKind, reference string, payload any, steps *stepLog, outcome string, metadata *ClientMetadata) {
	callbacksTotal.WithLabelValues(string(kind), outcome).Inc()
	if failed := steps.failures(); failed != "" {
		log.Printf("callback: kind=%s ref=%s outcome=%s request_id=%s failed_steps=[%s]",
			kind, reference, outcome, requestIDOf(metadata), failed)
	}
	if f.eventRepo == nil {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("null")
	}
	event := &models.CallbackEvent{
		Kind:      kind,
		Reference: reference,
		Payload:   datatypes.JSON(raw),
		Steps:     datatypes.JSONSlice[models.StepResult](steps.results),
		Outcome:   outcome,
		RequestID: requestIDOf(metadata),
	}
	if metadata != nil {
		event.SourceIP = metadata.IPAddress
	}
	if err := f.eventRepo.Save(ctx, event); err != nil {
		log.Printf("callback: failed to store audit event kind=%s ref=%s: %v", kind, reference, err)
	}
}

// stepLog collects per-step results of one callback
type stepLog struct {
	results []models.StepResult
}

func (l *stepLog) record(step string, err error) {
	r := models.StepResult{Step: step, OK: err == nil}
	if err != nil {
		r.Error = err.Error()
		name, _, _ := strings.Cut(step, ":")
		callbackStepFailures.WithLabelValues(name).Inc()
	}
	l.results = append(l.results, r)
}

func (l *stepLog) outcome() string {
	for _, r := range l.results {
		if !r.OK {
			return outcomePartial
		}
	}
	return outcomeOK
}

func (l *stepLog) failures() string {
	var parts []string
	for _, r := range l.results {
		if !r.OK {
			parts = append(parts, r.Step+": "+r.Error)
		}
	}
	return strings.Join(parts, "; ")
}

func validateProvisioningCallback(req *dto.ProvisioningCallbackRequest) error {
	if req == nil {
		return ErrRequestNil
	}
	if strings.TrimSpace(req.OrderTid) == "" {
		return ErrOrderTidRequired
	}
	if len(req.ItemList) == 0 {
		return ErrItemListRequired
	}
	for _, item := range req.ItemList {
		if len(item.SnList) == 0 {
			return ErrSnListRequired
		}
		for _, sn := range item.SnList {
			if strings.TrimSpace(sn.SnPin) == "" {
				return ErrSnPinRequired
			}
		}
	}
	return nil
}

func validateRedemptionCallback(req *dto.RedemptionCallbackRequest) error {
	switch {
	case req == nil:
		return ErrRequestNil
	case req.Data == nil:
		return ErrDataRequired
	case req.Data.QRCode == nil:
		return ErrQRCodeRequired
	case strings.TrimSpace(req.Data.Coupon) == "":
		return ErrCouponRequired
	case strings.TrimSpace(req.Data.Cid) == "":
		return ErrCidRequired
	}
	return nil
}

func validateProgressEvent(req *dto.ProgressEventRequest) error {
	switch {
	case req == nil:
		return ErrRequestNil
	case strings.TrimSpace(req.TransID) == "":
		return ErrTransIDRequired
	case req.Data == nil:
		return ErrDataRequired
	case strings.TrimSpace(req.Data.Cid) == "":
		return ErrCidRequired
	case strings.TrimSpace(req.Data.ProfileType) == "":
		return ErrProfileTypeRequired
	}
	return nil
}

// flattenSubUnits lists sub-units in group-then-item order
func flattenSubUnits(items []dto.ProvisioningItem) []models.SubUnit {
	var units []models.SubUnit
	for _, item := range items {
		for _, sn := range item.SnList {
			units = append(units, models.SubUnit{Pin: sn.SnPin, Code: sn.SnCode})
		}
	}
	return units
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
