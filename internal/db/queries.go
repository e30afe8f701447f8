package db

const (
	GetSetting = `SELECT value, encrypted, updated_at FROM settings WHERE key = ?`

	SetSetting = `
		INSERT INTO settings (key, value, encrypted, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = ?, encrypted = ?, updated_at = CURRENT_TIMESTAMP
	`

	DeleteSetting = `DELETE FROM settings WHERE key = ?`
)

const (
	AddBatchCounters = `
		INSERT INTO print_counters (date, batches, failed_batches, printed_primary, printed_fallback, failed_jobs)
		VALUES (?, 1, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			batches = batches + 1,
			failed_batches = failed_batches + excluded.failed_batches,
			printed_primary = printed_primary + excluded.printed_primary,
			printed_fallback = printed_fallback + excluded.printed_fallback,
			failed_jobs = failed_jobs + excluded.failed_jobs
	`

	AddRotationCounter = `
		INSERT INTO print_counters (date, rotations)
		VALUES (?, 1)
		ON CONFLICT(date) DO UPDATE SET rotations = rotations + 1
	`

	GetCountersByDateRange = `
		SELECT date, batches, failed_batches, printed_primary, printed_fallback, failed_jobs, rotations
		FROM print_counters WHERE date >= ? AND date <= ?
		ORDER BY date DESC
	`
)
