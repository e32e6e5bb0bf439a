package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/esim-relay/app/services"
	businessflow "github.com/amirphl/esim-relay/business_flow"
	"github.com/amirphl/esim-relay/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFulfillment struct {
	mu      sync.Mutex
	since   []time.Time
	calls   []string
	entered chan struct{}
	block   chan struct{}
	submit  *businessflow.StepReport
}

func (f *fakeFulfillment) record(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, step)
}

func (f *fakeFulfillment) IngestNewOrders(_ context.Context, since time.Time) *businessflow.StepReport {
	if f.block != nil {
		close(f.entered)
		<-f.block
	}
	f.mu.Lock()
	f.since = append(f.since, since)
	f.mu.Unlock()
	f.record(businessflow.StepIngest)
	return &businessflow.StepReport{Step: businessflow.StepIngest, Disabled: true}
}

func (f *fakeFulfillment) SubmitAwaitingOrders(context.Context) *businessflow.StepReport {
	f.record(businessflow.StepSubmit)
	if f.submit != nil {
		return f.submit
	}
	return &businessflow.StepReport{Step: businessflow.StepSubmit}
}

func (f *fakeFulfillment) SubmitOrder(context.Context, *models.OrderRecord) (*services.ProvisioningResult, string, error) {
	return nil, "", errors.New("not used")
}

func (f *fakeFulfillment) DispatchPending(context.Context) *businessflow.StepReport {
	f.record(businessflow.StepDispatch)
	return &businessflow.StepReport{Step: businessflow.StepDispatch, Err: errors.New("marketplace down")}
}

func (f *fakeFulfillment) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeLock struct {
	held     bool
	err      error
	released int
}

func (l *fakeLock) Acquire(context.Context) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLock) Release(context.Context) error {
	l.held = false
	l.released++
	return nil
}

func newTestReconciler(f *fakeFulfillment, lock TickLock) (*Reconciler, *bytes.Buffer) {
	var buf bytes.Buffer
	r := NewReconciler(f, lock, log.New(&buf, "", 0), time.Hour, 6*time.Hour)
	r.now = func() time.Time { return time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC) }
	return r, &buf
}

func TestRunOnceRunsEveryStep(t *testing.T) {
	f := &fakeFulfillment{submit: &businessflow.StepReport{Step: businessflow.StepSubmit, Processed: 2, Succeeded: 1, Failed: 1}}
	lock := &fakeLock{}
	r, logs := newTestReconciler(f, lock)

	report := r.RunOnce(context.Background())

	assert.False(t, report.Skipped)
	assert.Equal(t, []string{businessflow.StepIngest, businessflow.StepSubmit, businessflow.StepDispatch}, f.calls)
	require.Len(t, report.Steps, 3)
	assert.Equal(t, 1, report.Steps[1].Failed)
	assert.EqualError(t, report.Steps[2].Err, "marketplace down")
	assert.Equal(t, time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC), f.since[0])
	assert.Equal(t, 1, lock.released)
	assert.False(t, lock.held)
	assert.Contains(t, logs.String(), "step=dispatch error=marketplace down")
	assert.Contains(t, logs.String(), "outcome=partial")
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	f := &fakeFulfillment{}
	r, logs := newTestReconciler(f, &fakeLock{held: true})

	report := r.RunOnce(context.Background())

	assert.True(t, report.Skipped)
	assert.Empty(t, report.Steps)
	assert.Zero(t, f.callCount())
	assert.Contains(t, logs.String(), "lock held by another instance")
}

func TestRunOnceSkipsOnLockError(t *testing.T) {
	f := &fakeFulfillment{}
	r, _ := newTestReconciler(f, &fakeLock{err: errors.New("redis down")})

	report := r.RunOnce(context.Background())

	assert.True(t, report.Skipped)
	assert.Zero(t, f.callCount())
}

func TestRunOnceExcludesOverlap(t *testing.T) {
	f := &fakeFulfillment{entered: make(chan struct{}), block: make(chan struct{})}
	r, _ := newTestReconciler(f, nil)

	first := make(chan *businessflow.TickReport)
	go func() { first <- r.RunOnce(context.Background()) }()
	<-f.entered

	second := r.RunOnce(context.Background())
	assert.True(t, second.Skipped)

	close(f.block)
	report := <-first
	assert.False(t, report.Skipped)
	assert.Len(t, report.Steps, 3)
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	f := &fakeFulfillment{}
	r, _ := newTestReconciler(f, nil)

	stop := r.Start(context.Background())
	require.Eventually(t, func() bool { return f.callCount() >= 3 }, time.Second, 5*time.Millisecond)
	stop()

	n := f.callCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, f.callCount())
}
