package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidOTP       = errors.New("invalid otp")
	ErrNoFiles          = errors.New("no files uploaded")
	ErrOutcomeFinal     = errors.New("job outcome already final")
	ErrExecutorTimeout  = errors.New("executor timed out")
	ErrExecutorNotFound = errors.New("executor not found")
	ErrExecutorLaunch   = errors.New("executor failed to launch")
)

type Outcome string

const (
	OutcomePending         Outcome = "pending"
	OutcomePrintedPrimary  Outcome = "printed_primary"
	OutcomePrintedFallback Outcome = "printed_fallback"
	OutcomeFailed          Outcome = "failed"
)

func (o Outcome) Terminal() bool {
	return o == OutcomePrintedPrimary || o == OutcomePrintedFallback || o == OutcomeFailed
}

// Payload is one uploaded document. Open is called once, by the storage
// layer, after the batch has been authorized.
type Payload struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// BytesPayload wraps in-memory content as a Payload.
func BytesPayload(filename string, content []byte) Payload {
	return Payload{
		Filename: filename,
		Size:     int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}

// PrintJob lives for exactly one request. ID and Path are internal and
// never returned to the client.
type PrintJob struct {
	ID            string
	Filename      string
	Path          string
	Size          int64
	Outcome       Outcome
	PrimaryError  string
	FallbackError string
}

func (j *PrintJob) setOutcome(o Outcome) error {
	if j.Outcome.Terminal() {
		return fmt.Errorf("%w: job %s is %s", ErrOutcomeFinal, j.ID, j.Outcome)
	}
	j.Outcome = o
	return nil
}

type Batch struct {
	OTP  string
	Jobs []*PrintJob
}

func (b *Batch) Failed() []*PrintJob {
	var failed []*PrintJob
	for _, j := range b.Jobs {
		if j.Outcome == OutcomeFailed {
			failed = append(failed, j)
		}
	}
	return failed
}

// Succeeded reports whether every job reached a printed outcome.
func (b *Batch) Succeeded() bool {
	for _, j := range b.Jobs {
		if j.Outcome != OutcomePrintedPrimary && j.Outcome != OutcomePrintedFallback {
			return false
		}
	}
	return true
}

func (b *Batch) Stats() BatchStats {
	stats := BatchStats{Jobs: len(b.Jobs)}
	for _, j := range b.Jobs {
		switch j.Outcome {
		case OutcomePrintedPrimary:
			stats.Primary++
		case OutcomePrintedFallback:
			stats.Fallback++
		case OutcomeFailed:
			stats.Failed++
		}
	}
	stats.Success = stats.Jobs > 0 && stats.Failed == 0 && stats.Primary+stats.Fallback == stats.Jobs
	return stats
}

type BatchStats struct {
	Jobs     int  `json:"jobs"`
	Primary  int  `json:"printed_primary"`
	Fallback int  `json:"printed_fallback"`
	Failed   int  `json:"failed"`
	Success  bool `json:"success"`
}

type Result struct {
	NewOTP string
	Jobs   []*PrintJob
}

// DispatchError is returned when at least one job exhausted both print
// paths. The credential is not rotated in that case.
type DispatchError struct {
	Failed []*PrintJob
	Total  int
}

func (e *DispatchError) Error() string {
	if len(e.Failed) == 1 && e.Total == 1 {
		return fmt.Sprintf("print failed for %s: primary: %s; fallback: %s",
			e.Failed[0].Filename, e.Failed[0].PrimaryError, e.Failed[0].FallbackError)
	}
	return fmt.Sprintf("%d of %d print jobs failed on both print paths", len(e.Failed), e.Total)
}

func (e *DispatchError) FailedFiles() []string {
	files := make([]string, 0, len(e.Failed))
	for _, j := range e.Failed {
		files = append(files, j.Filename)
	}
	return files
}

// ExecutorExitError is a print process that ran but exited non-zero.
type ExecutorExitError struct {
	Executor string
	Code     int
	Stderr   string
}

func (e *ExecutorExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s exited with status %d: %s", e.Executor, e.Code, e.Stderr)
	}
	return fmt.Sprintf("%s exited with status %d", e.Executor, e.Code)
}
