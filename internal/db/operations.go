package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/orrn/printconnect/internal/core"
)

const dateLayout = "2006-01-02"

type SettingsOperations struct {
	db *sql.DB
}

func (o *SettingsOperations) GetSetting(ctx context.Context, key string) (*Setting, error) {
	s := &Setting{Key: key}
	err := o.db.QueryRowContext(ctx, GetSetting, key).Scan(&s.Value, &s.Encrypted, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return s, nil
}

func (o *SettingsOperations) SetSetting(ctx context.Context, key, value string, encrypted bool) error {
	_, err := o.db.ExecContext(ctx, SetSetting, key, value, encrypted, value, encrypted)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

func (o *SettingsOperations) DeleteSetting(ctx context.Context, key string) error {
	_, err := o.db.ExecContext(ctx, DeleteSetting, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}

// CounterOperations implements core.StatsRecorder on the print_counters table.
type CounterOperations struct {
	db  *sql.DB
	now func() time.Time
}

func newCounterOperations(db *sql.DB) *CounterOperations {
	return &CounterOperations{db: db, now: time.Now}
}

func (o *CounterOperations) RecordBatch(ctx context.Context, stats core.BatchStats) error {
	failedBatches := 0
	if !stats.Success {
		failedBatches = 1
	}
	_, err := o.db.ExecContext(ctx, AddBatchCounters,
		o.now().Format(dateLayout), failedBatches, stats.Primary, stats.Fallback, stats.Failed)
	if err != nil {
		return fmt.Errorf("failed to record batch counters: %w", err)
	}
	return nil
}

func (o *CounterOperations) RecordRotation(ctx context.Context) error {
	_, err := o.db.ExecContext(ctx, AddRotationCounter, o.now().Format(dateLayout))
	if err != nil {
		return fmt.Errorf("failed to record rotation: %w", err)
	}
	return nil
}

func (o *CounterOperations) GetCounters(ctx context.Context, from, to time.Time) ([]*DailyCounter, error) {
	rows, err := o.db.QueryContext(ctx, GetCountersByDateRange, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get counters: %w", err)
	}
	defer rows.Close()

	counters := make([]*DailyCounter, 0)
	for rows.Next() {
		c := &DailyCounter{}
		if err := rows.Scan(&c.Date, &c.Batches, &c.FailedBatches, &c.PrintedPrimary,
			&c.PrintedFallback, &c.FailedJobs, &c.Rotations); err != nil {
			return nil, fmt.Errorf("failed to scan counter: %w", err)
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

// Today returns the current day's counters, zero-valued if nothing happened yet.
func (o *CounterOperations) Today(ctx context.Context) (*DailyCounter, error) {
	now := o.now()
	counters, err := o.GetCounters(ctx, now, now)
	if err != nil {
		return nil, err
	}
	if len(counters) == 0 {
		return &DailyCounter{Date: now.Format(dateLayout)}, nil
	}
	return counters[0], nil
}
