package db

const (
	InsertJobEvent = `
		INSERT INTO job_events (job_id, status, progress, error_message)
		VALUES (?, ?, ?, ?)
	`

	GetJobEventsByJob = `
		SELECT id, job_id, status, progress, error_message, created_at
		FROM job_events WHERE job_id = ? ORDER BY created_at DESC, id DESC
	`

	CountJobEvents = `SELECT COUNT(*) FROM job_events`

	PruneJobEventsBefore = `
		DELETE FROM job_events WHERE created_at < datetime('now', ?)
	`
)

const (
	GetSetting = `SELECT value, encrypted FROM settings WHERE key = ?`

	SetSetting = `
		INSERT INTO settings (key, value, encrypted, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = ?, encrypted = ?, updated_at = CURRENT_TIMESTAMP
	`

	DeleteSetting = `DELETE FROM settings WHERE key = ?`

	ListSettings = `SELECT key, value, encrypted, updated_at FROM settings ORDER BY key ASC`
)
