// Package scheduler runs the periodic order reconciler
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	businessflow "github.com/amirphl/esim-relay/business_flow"
	"github.com/amirphl/esim-relay/config"
	"github.com/amirphl/esim-relay/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/natefinch/lumberjack.v2"
)

var reconcilerTicksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reconciler_ticks_total",
		Help: "Reconciler ticks by outcome",
	},
	[]string{"outcome"},
)

// TickLock excludes overlapping ticks across processes
type TickLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Reconciler periodically pulls new marketplace orders, submits them for provisioning
// and confirms dispatch upstream. Each step runs even when an earlier one failed.
type Reconciler struct {
	fulfillment businessflow.FulfillmentFlow
	lock        TickLock
	logger      *log.Logger
	interval    time.Duration
	lookback    time.Duration
	now         func() time.Time

	// in-process guard; the TickLock covers other replicas
	running sync.Mutex
}

func NewReconciler(
	fulfillment businessflow.FulfillmentFlow,
	lock TickLock,
	logger *log.Logger,
	interval time.Duration,
	lookback time.Duration,
) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Reconciler{
		fulfillment: fulfillment,
		lock:        lock,
		logger:      logger,
		interval:    interval,
		lookback:    lookback,
		now:         utils.SeoulNow,
	}
}

// NewSchedulerLogger returns a logger writing to stdout and, when a path is configured, a rotated file
func NewSchedulerLogger(cfg config.LoggingConfig) *log.Logger {
	var out io.Writer = os.Stdout
	if cfg.SchedulerLogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.SchedulerLogPath), 0o755); err == nil {
			out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
				Filename:   cfg.SchedulerLogPath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			})
		} else {
			log.Printf("scheduler: cannot create log directory for %s: %v", cfg.SchedulerLogPath, err)
		}
	}
	return log.New(out, "reconciler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start launches the reconciler loop in a background goroutine and returns a stop function
func (r *Reconciler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunOnce(ctx)
			}
		}
	}()

	r.logger.Printf("reconciler: started interval=%s lookback=%s", r.interval, r.lookback)
	return func() {
		cancel()
		<-done
		r.logger.Printf("reconciler: stopped")
	}
}

// RunOnce executes one tick: ingest, submit, dispatch. A tick that finds another one running is skipped.
func (r *Reconciler) RunOnce(ctx context.Context) *businessflow.TickReport {
	report := &businessflow.TickReport{StartedAt: utils.UTCNow()}

	if !r.running.TryLock() {
		return r.skip(report, "previous tick still running")
	}
	defer r.running.Unlock()

	if r.lock != nil {
		ok, err := r.lock.Acquire(ctx)
		if err != nil {
			r.logger.Printf("reconciler: lock error: %v", err)
			reconcilerTicksTotal.WithLabelValues("lock_error").Inc()
			report.Skipped = true
			return report
		}
		if !ok {
			return r.skip(report, "lock held by another instance")
		}
		defer func() {
			if err := r.lock.Release(context.Background()); err != nil {
				r.logger.Printf("reconciler: lock release failed: %v", err)
			}
		}()
	}

	since := r.now().Add(-r.lookback)
	report.Steps = append(report.Steps,
		r.fulfillment.IngestNewOrders(ctx, since),
		r.fulfillment.SubmitAwaitingOrders(ctx),
		r.fulfillment.DispatchPending(ctx),
	)
	report.Duration = time.Since(report.StartedAt)

	outcome := "ok"
	for _, s := range report.Steps {
		r.logStep(s)
		if s.Err != nil || s.Failed > 0 {
			outcome = "partial"
		}
	}
	reconcilerTicksTotal.WithLabelValues(outcome).Inc()
	r.logger.Printf("reconciler: tick done outcome=%s duration=%s", outcome, report.Duration.Round(time.Millisecond))
	return report
}

func (r *Reconciler) skip(report *businessflow.TickReport, reason string) *businessflow.TickReport {
	report.Skipped = true
	reconcilerTicksTotal.WithLabelValues("skipped").Inc()
	r.logger.Printf("reconciler: tick skipped: %s", reason)
	return report
}

func (r *Reconciler) logStep(s *businessflow.StepReport) {
	switch {
	case s.Disabled:
		return
	case s.Err != nil:
		r.logger.Printf("reconciler: step=%s error=%v", s.Step, s.Err)
	case s.Processed > 0:
		r.logger.Printf("reconciler: step=%s processed=%d succeeded=%d failed=%d skipped=%d",
			s.Step, s.Processed, s.Succeeded, s.Failed, s.Skipped)
	}
}
