package core

import (
	"context"
	"errors"
	"time"

	"github.com/orrn/printconnect/internal/logger"
)

const (
	EventBatchPrinted = "batch_printed"
	EventBatchFailed  = "batch_failed"
	EventOTPRotated   = "otp_rotated"

	RotationReasonBatch    = "batch"
	RotationReasonOperator = "operator"

	defaultFallbackRetention = 2 * time.Minute
)

// StatsRecorder persists aggregate counters. Implementations must not keep
// per-job records.
type StatsRecorder interface {
	RecordBatch(ctx context.Context, stats BatchStats) error
	RecordRotation(ctx context.Context) error
}

// EventSender notifies outside systems. Implementations must not block and
// must never be handed the code itself.
type EventSender interface {
	SendBatchEvent(event string, stats BatchStats, failedFiles []string)
	SendRotationEvent(reason string)
}

// EventSenders fans every event out to each sender.
type EventSenders []EventSender

func (s EventSenders) SendBatchEvent(event string, stats BatchStats, failedFiles []string) {
	for _, sender := range s {
		sender.SendBatchEvent(event, stats, failedFiles)
	}
}

func (s EventSenders) SendRotationEvent(reason string) {
	for _, sender := range s {
		sender.SendRotationEvent(reason)
	}
}

type JobManagerConfig struct {
	// FallbackRetention keeps fallback job files around while the browser
	// reads them asynchronously.
	FallbackRetention time.Duration
}

// JobManager is the entry point for a print submission: intake, dispatch,
// cleanup and reporting.
type JobManager struct {
	credentials       *CredentialState
	intake            *Intake
	dispatcher        *Dispatcher
	stats             StatsRecorder
	events            EventSender
	fallbackRetention time.Duration
}

func NewJobManager(credentials *CredentialState, intake *Intake, dispatcher *Dispatcher, stats StatsRecorder, events EventSender, cfg JobManagerConfig) *JobManager {
	if cfg.FallbackRetention <= 0 {
		cfg.FallbackRetention = defaultFallbackRetention
	}
	return &JobManager{
		credentials:       credentials,
		intake:            intake,
		dispatcher:        dispatcher,
		stats:             stats,
		events:            events,
		fallbackRetention: cfg.FallbackRetention,
	}
}

func (m *JobManager) Current() string {
	return m.credentials.Current()
}

func (m *JobManager) Submit(ctx context.Context, otp string, payloads []Payload) (*Result, error) {
	logger.Info(ctx, "incoming print request", "files", len(payloads))

	batch, err := m.intake.Accept(ctx, otp, payloads)
	if err != nil {
		return nil, err
	}

	result, err := m.dispatcher.Dispatch(ctx, batch)
	m.cleanup(batch)

	stats := batch.Stats()
	m.recordBatch(ctx, stats)

	var dispatchErr *DispatchError
	switch {
	case err == nil:
		m.recordRotation(ctx)
		if m.events != nil {
			m.events.SendBatchEvent(EventBatchPrinted, stats, nil)
			m.events.SendRotationEvent(RotationReasonBatch)
		}
	case errors.As(err, &dispatchErr):
		logger.Error(ctx, "batch failed, otp kept", "failed", len(dispatchErr.Failed), "jobs", dispatchErr.Total)
		if m.events != nil {
			m.events.SendBatchEvent(EventBatchFailed, stats, dispatchErr.FailedFiles())
		}
	}

	return result, err
}

// ForceRotate replaces the code without a print, for an operator who
// suspects it leaked.
func (m *JobManager) ForceRotate(ctx context.Context) string {
	code := m.credentials.Rotate()
	logger.Info(ctx, "otp rotated by operator")
	m.recordRotation(ctx)
	if m.events != nil {
		m.events.SendRotationEvent(RotationReasonOperator)
	}
	return code
}

func (m *JobManager) cleanup(batch *Batch) {
	var deferred []*PrintJob
	for _, j := range batch.Jobs {
		if j.Outcome == OutcomePrintedFallback {
			deferred = append(deferred, j)
			continue
		}
		m.intake.remove(j)
	}

	if len(deferred) == 0 {
		return
	}
	time.AfterFunc(m.fallbackRetention, func() {
		for _, j := range deferred {
			m.intake.remove(j)
		}
	})
}

func (m *JobManager) recordBatch(ctx context.Context, stats BatchStats) {
	if m.stats == nil {
		return
	}
	if err := m.stats.RecordBatch(ctx, stats); err != nil {
		logger.Warn(ctx, "failed to record batch stats", "error", err)
	}
}

func (m *JobManager) recordRotation(ctx context.Context) {
	if m.stats == nil {
		return
	}
	if err := m.stats.RecordRotation(ctx); err != nil {
		logger.Warn(ctx, "failed to record rotation", "error", err)
	}
}
