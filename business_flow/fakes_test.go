package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/esim-relay/app/services"
	"github.com/amirphl/esim-relay/models"
	"github.com/amirphl/esim-relay/repository"
	"github.com/amirphl/esim-relay/utils"
)

// fakeOrderRepo is an in-memory OrderRecordRepository with the same matching rules as the SQL one
type fakeOrderRepo struct {
	mu      sync.Mutex
	nextID  uint
	records map[uint]*models.OrderRecord
	writes  int

	failPins      error
	failArtifacts error
	failMerge     error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{records: make(map[uint]*models.OrderRecord)}
}

func (r *fakeOrderRepo) add(record *models.OrderRecord) *models.OrderRecord {
	_ = r.Save(context.Background(), record)
	return record
}

func (r *fakeOrderRepo) get(id uint) models.OrderRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.records[id]
}

func (r *fakeOrderRepo) sorted() []*models.OrderRecord {
	out := make([]*models.OrderRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeOrderRepo) ByID(_ context.Context, id uint) (*models.OrderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		c := *rec
		return &c, nil
	}
	return nil, nil
}

func (r *fakeOrderRepo) ByFilter(_ context.Context, _ models.OrderRecordFilter, _ string, _, _ int) ([]*models.OrderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(), nil
}

func (r *fakeOrderRepo) Save(_ context.Context, record *models.OrderRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ProductOrderID == record.ProductOrderID {
			return errors.New("duplicate product_order_id")
		}
	}
	r.nextID++
	record.ID = r.nextID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if record.KakaoSendYN == "" {
		record.KakaoSendYN = utils.NotificationSentNo
	}
	c := *record
	r.records[record.ID] = &c
	r.writes++
	return nil
}

func (r *fakeOrderRepo) Count(_ context.Context, _ models.OrderRecordFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.records)), nil
}

func (r *fakeOrderRepo) Exists(ctx context.Context, f models.OrderRecordFilter) (bool, error) {
	n, err := r.Count(ctx, f)
	return n > 0, err
}

func (r *fakeOrderRepo) find(match func(*models.OrderRecord) bool) *models.OrderRecord {
	for _, rec := range r.sorted() {
		if match(rec) {
			return rec
		}
	}
	return nil
}

func (r *fakeOrderRepo) ByProductOrderID(_ context.Context, id string) (*models.OrderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec := r.find(func(o *models.OrderRecord) bool { return o.ProductOrderID == id }); rec != nil {
		c := *rec
		return &c, nil
	}
	return nil, nil
}

func (r *fakeOrderRepo) ByOrderTid(_ context.Context, tid string) (*models.OrderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec := r.find(func(o *models.OrderRecord) bool { return utils.Deref(o.OrderTid) == tid }); rec != nil {
		c := *rec
		return &c, nil
	}
	return nil, nil
}

func (r *fakeOrderRepo) ExistsByProductOrderID(ctx context.Context, id string) (bool, error) {
	rec, err := r.ByProductOrderID(ctx, id)
	return rec != nil, err
}

func (r *fakeOrderRepo) updateByTid(tid string, fn func(*models.OrderRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.find(func(o *models.OrderRecord) bool { return utils.Deref(o.OrderTid) == tid })
	if rec == nil {
		return repository.ErrRecordNotFound
	}
	fn(rec)
	r.writes++
	return nil
}

func (r *fakeOrderRepo) UpdateSubUnitPins(_ context.Context, tid, pins string) error {
	if r.failPins != nil {
		return r.failPins
	}
	return r.updateByTid(tid, func(o *models.OrderRecord) { o.SnPin = utils.ToPtr(pins) })
}

func (r *fakeOrderRepo) UpdateSubUnitCodes(_ context.Context, tid, codes string) error {
	return r.updateByTid(tid, func(o *models.OrderRecord) { o.SnCode = utils.ToPtr(codes) })
}

func (r *fakeOrderRepo) UpdateSubUnits(_ context.Context, tid string, units []models.SubUnit) error {
	return r.updateByTid(tid, func(o *models.OrderRecord) { o.SubUnits = units })
}

func (r *fakeOrderRepo) UpdateActivationArtifacts(_ context.Context, pinString, artifactString string) (int64, error) {
	if r.failArtifacts != nil {
		return 0, r.failArtifacts
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec := r.find(func(o *models.OrderRecord) bool { return utils.Deref(o.SnPin) == pinString }); rec != nil {
		rec.QR = utils.ToPtr(artifactString)
		r.writes++
		return 1, nil
	}
	var n int64
	for _, pin := range utils.SplitTokens(pinString) {
		for _, rec := range r.sorted() {
			if utils.MatchPinToken(utils.Deref(rec.SnPin), pin) {
				rec.QR = utils.ToPtr(utils.AppendToken(utils.Deref(rec.QR), artifactString))
				n++
			}
		}
	}
	if n == 0 {
		return 0, repository.ErrRecordNotFound
	}
	r.writes++
	return n, nil
}

func (r *fakeOrderRepo) MergeActivationArtifact(_ context.Context, pin, artifact string) (*models.OrderRecord, error) {
	if r.failMerge != nil {
		return nil, r.failMerge
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.find(func(o *models.OrderRecord) bool { return utils.MatchPinToken(utils.Deref(o.SnPin), pin) })
	if rec == nil {
		return nil, repository.ErrRecordNotFound
	}
	if idx := utils.TokenIndex(utils.Deref(rec.SnPin), pin); idx >= 0 {
		rec.QR = utils.ToPtr(utils.SetTokenAt(utils.Deref(rec.QR), idx, artifact))
	} else {
		rec.QR = utils.ToPtr(utils.AppendToken(utils.Deref(rec.QR), artifact))
	}
	r.writes++
	c := *rec
	return &c, nil
}

func (r *fakeOrderRepo) LookupByPinOrSubstring(_ context.Context, pinString string) (*models.OrderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec := r.find(func(o *models.OrderRecord) bool { return utils.Deref(o.SnPin) == pinString }); rec != nil {
		c := *rec
		return &c, nil
	}
	for _, pin := range utils.SplitTokens(pinString) {
		if rec := r.find(func(o *models.OrderRecord) bool { return utils.MatchPinToken(utils.Deref(o.SnPin), pin) }); rec != nil {
			c := *rec
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeOrderRepo) SetOrderTid(_ context.Context, id uint, tid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.OrderTid != nil {
		return repository.ErrRecordNotFound
	}
	rec.OrderTid = utils.ToPtr(tid)
	r.writes++
	return nil
}

func (r *fakeOrderRepo) MarkNotificationSent(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return repository.ErrRecordNotFound
	}
	rec.KakaoSendYN = utils.NotificationSentYes
	r.writes++
	return nil
}

func (r *fakeOrderRepo) MarkDispatched(_ context.Context, ids []uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if rec, ok := r.records[id]; ok && rec.DispatchStatus == models.DispatchStatusPending {
			rec.DispatchStatus = models.DispatchStatusDispatched
			n++
		}
	}
	r.writes++
	return n, nil
}

func (r *fakeOrderRepo) list(match func(*models.OrderRecord) bool, limit int) []*models.OrderRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.OrderRecord
	for _, rec := range r.sorted() {
		if match(rec) {
			c := *rec
			out = append(out, &c)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

func (r *fakeOrderRepo) ListAwaitingProvisioning(_ context.Context, limit int) ([]*models.OrderRecord, error) {
	return r.list(func(o *models.OrderRecord) bool {
		return o.OrderTid == nil && o.KakaoSendYN == utils.NotificationSentNo
	}, limit), nil
}

func (r *fakeOrderRepo) ListPendingDispatch(_ context.Context, limit int) ([]*models.OrderRecord, error) {
	return r.list(func(o *models.OrderRecord) bool { return o.DispatchStatus == models.DispatchStatusPending }, limit), nil
}

func (r *fakeOrderRepo) ListLatest(_ context.Context, limit int) ([]*models.OrderRecord, error) {
	all := r.list(func(*models.OrderRecord) bool { return true }, 0)
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeOrderRepo) Stats(_ context.Context, dayStart time.Time) (*models.OrderStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &models.OrderStats{}
	for _, rec := range r.records {
		stats.Total++
		if utils.Deref(rec.QR) != "" {
			stats.Sent++
		}
		if !rec.CreatedAt.Before(dayStart) {
			stats.Today++
		}
	}
	stats.Pending = stats.Total - stats.Sent
	return stats, nil
}

type fakeProgressRepo struct {
	mu        sync.Mutex
	rows      map[string]*models.ProgressNotification
	failWith  error
	lifecycle []models.LifecycleUpdate
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{rows: make(map[string]*models.ProgressNotification)}
}

func (r *fakeProgressRepo) ByTransactionID(_ context.Context, id string) (*models.ProgressNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id], nil
}

func (r *fakeProgressRepo) InsertIfAbsent(_ context.Context, n *models.ProgressNotification) (bool, error) {
	if r.failWith != nil {
		return false, r.failWith
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[n.TransactionID]; ok {
		return false, nil
	}
	c := *n
	r.rows[n.TransactionID] = &c
	return true, nil
}

func (r *fakeProgressRepo) UpdateLifecycleByDeviceID(_ context.Context, cid string, u models.LifecycleUpdate) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.CarrierDeviceID == cid {
			row.LifecycleStateCode = u.StateCode
			row.Eid = u.Eid
			row.ProfileType = u.ProfileType
			n++
		}
	}
	if n == 0 {
		return 0, repository.ErrRecordNotFound
	}
	r.lifecycle = append(r.lifecycle, u)
	return n, nil
}

func (r *fakeProgressRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events []*models.CallbackEvent
}

func (r *fakeEventRepo) Save(_ context.Context, e *models.CallbackEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *fakeEventRepo) ListRecent(_ context.Context, filter models.CallbackEventFilter, limit int) ([]*models.CallbackEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CallbackEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if filter.Kind != nil && e.Kind != *filter.Kind {
			continue
		}
		if filter.Reference != nil && e.Reference != *filter.Reference {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeEventRepo) last() *models.CallbackEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

// fakeRedemption answers Redeem from a pin→artifact table; pins listed in fail are rejected
type fakeRedemption struct {
	artifacts map[string]string
	fail      map[string]bool
	calls     []string
}

func (f *fakeRedemption) Redeem(_ context.Context, coupon, transID string) (*services.RedemptionResult, error) {
	f.calls = append(f.calls, coupon)
	if f.fail[coupon] {
		return nil, &services.UpstreamError{Vendor: "rsp", Op: "redeem", Err: errors.New("rejected")}
	}
	if transID == "" {
		transID = "TX-" + coupon
	}
	return &services.RedemptionResult{TransID: transID, QRCode: f.artifacts[coupon], Code: "000"}, nil
}

func (f *fakeRedemption) QueryStatusUsage(_ context.Context, payload map[string]any) (json.RawMessage, error) {
	return json.Marshal(map[string]any{"echo": payload})
}

type fakeNotifier struct {
	sent []services.ActivationMessage
	err  error
}

func (f *fakeNotifier) SendActivation(_ context.Context, msg services.ActivationMessage) (*services.NotificationResult, error) {
	if !utils.HasArtifact(msg.Artifact) {
		return &services.NotificationResult{Skipped: true}, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, msg)
	return &services.NotificationResult{RefKey: "ref", MessageKey: "mk"}, nil
}

type fakeProvisioning struct {
	orders []services.ProvisioningOrder
	err    error
}

func (f *fakeProvisioning) SubmitOrder(_ context.Context, order services.ProvisioningOrder) (*services.ProvisioningResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.orders = append(f.orders, order)
	return &services.ProvisioningResult{OrderTid: "TID-" + order.ProductCode + "-" + string(rune('0'+len(f.orders)))}, nil
}

type fakeMarketplace struct {
	drafts     []services.OrderDraft
	fetchErr   error
	dispatched [][]string
	reject     map[string]bool
}

func (f *fakeMarketplace) FetchNewOrders(_ context.Context, _ time.Time) ([]services.OrderDraft, error) {
	return f.drafts, f.fetchErr
}

func (f *fakeMarketplace) Dispatch(_ context.Context, ids []string) (*services.DispatchResult, error) {
	f.dispatched = append(f.dispatched, ids)
	res := &services.DispatchResult{}
	for _, id := range ids {
		if f.reject[id] {
			res.Failed = append(res.Failed, id)
		} else {
			res.Succeeded = append(res.Succeeded, id)
		}
	}
	return res, nil
}
