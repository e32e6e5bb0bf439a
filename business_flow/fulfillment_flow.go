package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/esim-relay/app/services"
	"github.com/amirphl/esim-relay/models"
	"github.com/amirphl/esim-relay/repository"
	"github.com/amirphl/esim-relay/utils"
)

// Fulfillment step names
const (
	StepIngest   = "ingest"
	StepSubmit   = "submit"
	StepDispatch = "dispatch"
)

// StepReport summarizes one fulfillment step
type StepReport struct {
	Step      string
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
	// Disabled is set when the step's collaborator is not configured
	Disabled bool
	Err      error
}

func (r *StepReport) count(outcome string) {
	switch outcome {
	case outcomeOK:
		r.Succeeded++
	case outcomeFailed:
		r.Failed++
	default:
		r.Skipped++
	}
	fulfillmentItemsTotal.WithLabelValues(r.Step, outcome).Inc()
}

// FulfillmentFlow moves orders from the marketplace to the provisioning vendor and back
type FulfillmentFlow interface {
	IngestNewOrders(ctx context.Context, since time.Time) *StepReport
	SubmitAwaitingOrders(ctx context.Context) *StepReport
	SubmitOrder(ctx context.Context, record *models.OrderRecord) (*services.ProvisioningResult, string, error)
	DispatchPending(ctx context.Context) *StepReport
}

// FulfillmentOptions tunes the batch steps
type FulfillmentOptions struct {
	SubmitDelay time.Duration
	BatchSize   int
}

// FulfillmentFlowImpl implements FulfillmentFlow. source and dispatcher may be nil when the
// marketplace integration is disabled; their steps then report Disabled.
type FulfillmentFlowImpl struct {
	orderRepo    repository.OrderRecordRepository
	source       services.OrderSource
	dispatcher   services.Dispatcher
	provisioning services.ProvisioningClient
	catalog      *services.ProductCatalog
	opts         FulfillmentOptions
	sleep        func(context.Context, time.Duration) error
}

func NewFulfillmentFlow(
	orderRepo repository.OrderRecordRepository,
	source services.OrderSource,
	dispatcher services.Dispatcher,
	provisioning services.ProvisioningClient,
	catalog *services.ProductCatalog,
	opts FulfillmentOptions,
) FulfillmentFlow {
	if opts.BatchSize <= 0 {
		opts.BatchSize = utils.DispatchBatchSize
	}
	return &FulfillmentFlowImpl{
		orderRepo:    orderRepo,
		source:       source,
		dispatcher:   dispatcher,
		provisioning: provisioning,
		catalog:      catalog,
		opts:         opts,
		sleep:        sleepContext,
	}
}

// IngestNewOrders stores marketplace orders paid since the given time.
// Known product orders and products outside the destination allow-list are skipped.
func (f *FulfillmentFlowImpl) IngestNewOrders(ctx context.Context, since time.Time) *StepReport {
	report := &StepReport{Step: StepIngest}
	if f.source == nil {
		report.Disabled = true
		return report
	}

	drafts, err := f.source.FetchNewOrders(ctx, since)
	if err != nil {
		report.Err = fmt.Errorf("failed to fetch new orders: %w", err)
		return report
	}

	for _, d := range drafts {
		report.Processed++
		if d.ProductOrderID == "" || !f.catalog.Accepts(d.ProductName) {
			report.count(outcomeRejected)
			continue
		}
		exists, err := f.orderRepo.ExistsByProductOrderID(ctx, d.ProductOrderID)
		if err != nil {
			log.Printf("fulfillment: existence check failed product_order_id=%s: %v", d.ProductOrderID, err)
			report.count(outcomeFailed)
			continue
		}
		if exists {
			report.count(outcomeRejected)
			continue
		}
		if err := f.orderRepo.Save(ctx, newOrderRecord(d)); err != nil {
			log.Printf("fulfillment: failed to store product_order_id=%s: %v", d.ProductOrderID, err)
			report.count(outcomeFailed)
			continue
		}
		report.count(outcomeOK)
	}
	return report
}

// newOrderRecord applies the ingestion defaults to a draft
func newOrderRecord(d services.OrderDraft) *models.OrderRecord {
	record := &models.OrderRecord{
		ProductOrderID: d.ProductOrderID,
		OrderID:        d.OrderID,
		OrdererName:    d.OrdererName,
		OrdererTel:     utils.DigitsOnly(d.OrdererTel),
		Email:          d.Email,
		ProductName:    d.ProductName,
		Day:            d.Day,
		Quantity:       d.Quantity,
		KakaoSendYN:    utils.NotificationSentNo,
		DispatchStatus: models.DispatchStatusPending,
	}
	if record.Email == "" {
		record.Email = utils.DefaultOrderEmail
	}
	if record.ProductName == "" {
		record.ProductName = utils.DefaultProductName
	}
	if record.Day <= 0 {
		record.Day = utils.DefaultDurationDays
	}
	if record.Quantity <= 0 {
		record.Quantity = utils.DefaultQuantity
	}
	return record
}

// SubmitAwaitingOrders submits every order without a tracking reference, pausing between orders
func (f *FulfillmentFlowImpl) SubmitAwaitingOrders(ctx context.Context) *StepReport {
	report := &StepReport{Step: StepSubmit}

	records, err := f.orderRepo.ListAwaitingProvisioning(ctx, f.opts.BatchSize)
	if err != nil {
		report.Err = fmt.Errorf("failed to list awaiting orders: %w", err)
		return report
	}

	for i, record := range records {
		if i > 0 && f.opts.SubmitDelay > 0 {
			if err := f.sleep(ctx, f.opts.SubmitDelay); err != nil {
				report.Err = err
				return report
			}
		}
		report.Processed++
		res, productCode, err := f.SubmitOrder(ctx, record)
		if err != nil {
			log.Printf("fulfillment: submit failed id=%d product_order_id=%s: %v", record.ID, record.ProductOrderID, err)
			report.count(outcomeFailed)
			continue
		}
		log.Printf("fulfillment: submitted id=%d order_tid=%s product_code=%s generated=%t", record.ID, res.OrderTid, productCode, res.Generated)
		report.count(outcomeOK)
	}
	return report
}

// SubmitOrder submits one stored order and records the tracking reference.
// Returns the vendor result and the product code that was ordered.
func (f *FulfillmentFlowImpl) SubmitOrder(ctx context.Context, record *models.OrderRecord) (*services.ProvisioningResult, string, error) {
	if record.OrderTid != nil && *record.OrderTid != "" {
		return nil, "", NewBusinessError("ORDER_ALREADY_QUEUED", "Order already submitted", ErrOrderAlreadyQueued)
	}

	productCode := f.catalog.ProductCode(record.ProductName, record.Day)
	res, err := f.provisioning.SubmitOrder(ctx, services.ProvisioningOrder{
		ReceiveName: record.OrdererName,
		Phone:       record.OrdererTel,
		Email:       record.Email,
		ProductCode: productCode,
		Quantity:    record.Quantity,
	})
	if err != nil {
		return nil, productCode, NewBusinessError("PROVISIONING_SUBMIT_FAILED", "Provisioning submit failed", err)
	}

	if err := f.orderRepo.SetOrderTid(ctx, record.ID, res.OrderTid); err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return res, productCode, NewBusinessError("ORDER_ALREADY_QUEUED", "Order was submitted concurrently", ErrOrderAlreadyQueued)
		}
		return res, productCode, persistenceError("Failed to store tracking reference", err)
	}
	record.OrderTid = utils.ToPtr(res.OrderTid)
	return res, productCode, nil
}

// DispatchPending confirms the oldest pending orders upstream in one batch call
func (f *FulfillmentFlowImpl) DispatchPending(ctx context.Context) *StepReport {
	report := &StepReport{Step: StepDispatch}
	if f.dispatcher == nil {
		report.Disabled = true
		return report
	}

	records, err := f.orderRepo.ListPendingDispatch(ctx, utils.DispatchBatchSize)
	if err != nil {
		report.Err = fmt.Errorf("failed to list pending dispatch: %w", err)
		return report
	}
	if len(records) == 0 {
		return report
	}

	idsByProductOrder := make(map[string]uint, len(records))
	productOrderIDs := make([]string, 0, len(records))
	for _, r := range records {
		idsByProductOrder[r.ProductOrderID] = r.ID
		productOrderIDs = append(productOrderIDs, r.ProductOrderID)
	}
	report.Processed = len(records)

	res, err := f.dispatcher.Dispatch(ctx, productOrderIDs)
	if err != nil {
		report.Failed = len(records)
		fulfillmentItemsTotal.WithLabelValues(StepDispatch, outcomeFailed).Add(float64(len(records)))
		report.Err = fmt.Errorf("dispatch call failed: %w", err)
		return report
	}

	var done []uint
	for _, pid := range res.Succeeded {
		if id, ok := idsByProductOrder[pid]; ok {
			done = append(done, id)
		}
	}
	for range res.Failed {
		report.count(outcomeFailed)
	}
	if len(done) == 0 {
		return report
	}

	n, err := f.orderRepo.MarkDispatched(ctx, done)
	if err != nil {
		report.Err = fmt.Errorf("failed to mark dispatched: %w", err)
		return report
	}
	for i := int64(0); i < n; i++ {
		report.count(outcomeOK)
	}
	return report
}

// TickReport is the result of one reconciler run
type TickReport struct {
	StartedAt time.Time
	Duration  time.Duration
	// Skipped is set when another run held the lock
	Skipped bool
	Steps   []*StepReport
}

// Reconciler runs the fulfillment steps once on demand
type Reconciler interface {
	RunOnce(ctx context.Context) *TickReport
}
