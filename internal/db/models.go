package db

import "time"

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Encrypted bool      `json:"encrypted"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DailyCounter aggregates one calendar day of kiosk activity.
type DailyCounter struct {
	Date            string `json:"date"`
	Batches         int64  `json:"batches"`
	FailedBatches   int64  `json:"failed_batches"`
	PrintedPrimary  int64  `json:"printed_primary"`
	PrintedFallback int64  `json:"printed_fallback"`
	FailedJobs      int64  `json:"failed_jobs"`
	Rotations       int64  `json:"rotations"`
}
