package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/orrn/printconnect/internal/logger"
	"github.com/orrn/printconnect/internal/metrics"
)

// Intake turns a submission into a Batch of pending jobs. The code is
// checked once, before anything is written.
type Intake struct {
	credentials *CredentialState
	storage     Storage
}

func NewIntake(credentials *CredentialState, storage Storage) *Intake {
	return &Intake{
		credentials: credentials,
		storage:     storage,
	}
}

func (i *Intake) Accept(ctx context.Context, otp string, payloads []Payload) (*Batch, error) {
	log := logger.WithContext(ctx)

	if !i.credentials.Matches(otp) {
		metrics.AuthFailuresTotal.Inc()
		log.Warn("access denied: invalid otp", "files", len(payloads))
		return nil, ErrInvalidOTP
	}

	if len(payloads) == 0 {
		return nil, ErrNoFiles
	}

	batch := &Batch{
		OTP:  otp,
		Jobs: make([]*PrintJob, 0, len(payloads)),
	}

	for _, p := range payloads {
		path, err := i.storage.Save(ctx, p)
		if err != nil {
			i.Discard(batch)
			return nil, fmt.Errorf("failed to store %q: %w", p.Filename, err)
		}

		job := &PrintJob{
			ID:       uuid.NewString(),
			Filename: p.Filename,
			Path:     path,
			Size:     p.Size,
			Outcome:  OutcomePending,
		}
		batch.Jobs = append(batch.Jobs, job)
		log.Debug("job accepted", "job_id", job.ID, "filename", p.Filename, "size", p.Size)
	}

	return batch, nil
}

// Discard removes every stored file of batch.
func (i *Intake) Discard(batch *Batch) {
	for _, j := range batch.Jobs {
		i.remove(j)
	}
}

func (i *Intake) remove(j *PrintJob) {
	if j.Path == "" {
		return
	}
	if err := i.storage.Remove(j.Path); err != nil {
		slog.Warn("failed to remove job file", "job_id", j.ID, "error", err)
	}
}
