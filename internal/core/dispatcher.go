package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/orrn/printconnect/internal/logger"
	"github.com/orrn/printconnect/internal/metrics"
)

const defaultPrimaryTimeout = 20 * time.Second

type DispatcherConfig struct {
	PrimaryTimeout time.Duration
	// SerializeDevice makes concurrent batches take turns on the printer.
	SerializeDevice bool
}

// Dispatcher prints every job of a batch, primary path first, and rotates
// the credential when the whole batch printed.
type Dispatcher struct {
	credentials    *CredentialState
	primary        PrimaryExecutor
	fallback       FallbackExecutor
	primaryTimeout time.Duration
	serialize      bool
	deviceMu       sync.Mutex
}

func NewDispatcher(credentials *CredentialState, primary PrimaryExecutor, fallback FallbackExecutor, cfg DispatcherConfig) *Dispatcher {
	if cfg.PrimaryTimeout <= 0 {
		cfg.PrimaryTimeout = defaultPrimaryTimeout
	}
	return &Dispatcher{
		credentials:    credentials,
		primary:        primary,
		fallback:       fallback,
		primaryTimeout: cfg.PrimaryTimeout,
		serialize:      cfg.SerializeDevice,
	}
}

// Dispatch runs the batch to completion; the request context is only used
// for its values, never for cancellation.
func (d *Dispatcher) Dispatch(ctx context.Context, batch *Batch) (*Result, error) {
	if len(batch.Jobs) == 0 {
		return nil, ErrNoFiles
	}
	ctx = context.WithoutCancel(ctx)

	for _, job := range batch.Jobs {
		if job.Outcome.Terminal() {
			continue
		}
		d.execute(ctx, job)
		metrics.JobsTotal.WithLabelValues(string(job.Outcome)).Inc()
	}

	if failed := batch.Failed(); len(failed) > 0 || !batch.Succeeded() {
		metrics.BatchesTotal.WithLabelValues("failed").Inc()
		return nil, &DispatchError{Failed: failed, Total: len(batch.Jobs)}
	}

	newOTP := d.credentials.Rotate()
	metrics.BatchesTotal.WithLabelValues("success").Inc()
	logger.Info(ctx, "batch printed, otp rotated", "jobs", len(batch.Jobs))
	logger.Debug(ctx, "new otp", "otp", newOTP)

	return &Result{NewOTP: newOTP, Jobs: batch.Jobs}, nil
}

func (d *Dispatcher) execute(ctx context.Context, job *PrintJob) {
	if d.serialize {
		d.deviceMu.Lock()
		defer d.deviceMu.Unlock()
	}

	log := logger.WithContext(ctx).With("job_id", job.ID, "filename", job.Filename)

	err := d.runPrimary(ctx, job)
	if err == nil {
		d.finish(log, job, OutcomePrintedPrimary)
		log.Info("printed via primary executor")
		return
	}
	job.PrimaryError = err.Error()
	log.Warn("primary executor failed, falling back", "error", err)

	err = d.launchFallback(ctx, job)
	if err == nil {
		d.finish(log, job, OutcomePrintedFallback)
		log.Info("printed via fallback executor")
		return
	}
	job.FallbackError = err.Error()
	d.finish(log, job, OutcomeFailed)
	log.Error("fallback executor failed, job failed", "error", err)
}

func (d *Dispatcher) finish(log *slog.Logger, job *PrintJob, o Outcome) {
	if err := job.setOutcome(o); err != nil {
		log.Error("outcome not updated", "error", err)
	}
}

func (d *Dispatcher) runPrimary(ctx context.Context, job *PrintJob) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("primary executor panic: %v", r)
		}
		metrics.ObserveExecutor("primary", err, time.Since(start))
	}()
	return d.primary.Run(ctx, job.Path, d.primaryTimeout)
}

func (d *Dispatcher) launchFallback(ctx context.Context, job *PrintJob) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fallback executor panic: %v", r)
		}
		metrics.ObserveExecutor("fallback", err, time.Since(start))
	}()
	return d.fallback.Launch(ctx, job.Path)
}
