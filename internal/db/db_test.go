package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/orrn/printconnect/internal/core"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	d, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	d.Close()

	d, err = Open(Config{Path: path})
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer d.Close()

	var n int
	if err := d.Conn().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 applied migration, got %d", n)
	}
}

func TestSettings(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	if _, err := d.Settings.GetSetting(ctx, "jwt_secret"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("Expected sql.ErrNoRows, got %v", err)
	}

	if err := d.Settings.SetSetting(ctx, "jwt_secret", "abc", true); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := d.Settings.SetSetting(ctx, "jwt_secret", "def", true); err != nil {
		t.Fatalf("SetSetting overwrite failed: %v", err)
	}

	s, err := d.Settings.GetSetting(ctx, "jwt_secret")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if s.Value != "def" || !s.Encrypted {
		t.Errorf("Unexpected setting %+v", s)
	}

	if err := d.Settings.DeleteSetting(ctx, "jwt_secret"); err != nil {
		t.Fatalf("DeleteSetting failed: %v", err)
	}
	if _, err := d.Settings.GetSetting(ctx, "jwt_secret"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected setting to be gone, got %v", err)
	}
}

func TestCountersAccumulatePerDay(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local)
	d.Counters.now = func() time.Time { return day }

	var _ core.StatsRecorder = d.Counters

	if err := d.Counters.RecordBatch(ctx, core.BatchStats{Jobs: 3, Primary: 2, Fallback: 1, Success: true}); err != nil {
		t.Fatalf("RecordBatch failed: %v", err)
	}
	if err := d.Counters.RecordBatch(ctx, core.BatchStats{Jobs: 2, Primary: 1, Failed: 1}); err != nil {
		t.Fatalf("RecordBatch failed: %v", err)
	}
	if err := d.Counters.RecordRotation(ctx); err != nil {
		t.Fatalf("RecordRotation failed: %v", err)
	}

	today, err := d.Counters.Today(ctx)
	if err != nil {
		t.Fatalf("Today failed: %v", err)
	}
	want := DailyCounter{
		Date:            "2026-03-14",
		Batches:         2,
		FailedBatches:   1,
		PrintedPrimary:  3,
		PrintedFallback: 1,
		FailedJobs:      1,
		Rotations:       1,
	}
	if *today != want {
		t.Errorf("Today() = %+v, want %+v", *today, want)
	}

	d.Counters.now = func() time.Time { return day.AddDate(0, 0, 1) }
	if err := d.Counters.RecordRotation(ctx); err != nil {
		t.Fatalf("RecordRotation failed: %v", err)
	}

	counters, err := d.Counters.GetCounters(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("GetCounters failed: %v", err)
	}
	if len(counters) != 2 {
		t.Fatalf("Expected 2 days, got %d", len(counters))
	}
	if counters[0].Date != "2026-03-15" || counters[0].Rotations != 1 || counters[0].Batches != 0 {
		t.Errorf("Unexpected newest day %+v", counters[0])
	}
}

func TestTodayWithoutActivity(t *testing.T) {
	d := openTestDB(t)
	today, err := d.Counters.Today(context.Background())
	if err != nil {
		t.Fatalf("Today failed: %v", err)
	}
	if today.Batches != 0 || today.Date == "" {
		t.Errorf("Unexpected empty counter %+v", today)
	}
}
