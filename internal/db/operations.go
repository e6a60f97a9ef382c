package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/orrn/printerd/internal/core"
)

type HistoryOperations struct{}

// RecordJobEvent satisfies core.JobHistory.
func (o *HistoryOperations) RecordJobEvent(jobID string, status core.JobEventStatus, progress int, errMsg string) error {
	_, err := GetDB().Exec(InsertJobEvent, jobID, string(status), progress, errMsg)
	if err != nil {
		return fmt.Errorf("failed to record job event: %w", err)
	}
	return nil
}

func (o *HistoryOperations) GetJobEvents(ctx context.Context, jobID string) ([]*JobEvent, error) {
	rows, err := GetDB().QueryContext(ctx, GetJobEventsByJob, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job events: %w", err)
	}
	defer rows.Close()

	return scanJobEvents(rows)
}

func (o *HistoryOperations) ListJobEvents(ctx context.Context, filter HistoryFilter) ([]*JobEvent, error) {
	var conditions []string
	var args []interface{}

	if filter.JobID != "" {
		conditions = append(conditions, "job_id = ?")
		args = append(args, filter.JobID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	query := "SELECT id, job_id, status, progress, error_message, created_at FROM job_events"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	limit := 100
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list job events: %w", err)
	}
	defer rows.Close()

	return scanJobEvents(rows)
}

func (o *HistoryOperations) CountJobEvents(ctx context.Context) (int64, error) {
	var count int64
	err := GetDB().QueryRowContext(ctx, CountJobEvents).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count job events: %w", err)
	}
	return count, nil
}

// PruneOlderThan deletes history rows older than the given number of days
// and returns how many were removed.
func (o *HistoryOperations) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := fmt.Sprintf("-%d days", days)
	result, err := GetDB().ExecContext(ctx, PruneJobEventsBefore, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune job events: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned job events: %w", err)
	}
	return removed, nil
}

func scanJobEvents(rows *sql.Rows) ([]*JobEvent, error) {
	var events []*JobEvent
	for rows.Next() {
		e := &JobEvent{}
		if err := rows.Scan(
			&e.ID, &e.JobID, &e.Status, &e.Progress,
			&e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type SettingsOperations struct{}

func (o *SettingsOperations) GetSetting(ctx context.Context, key string) (*Setting, error) {
	s := &Setting{Key: key}
	err := GetDB().QueryRowContext(ctx, GetSetting, key).Scan(&s.Value, &s.Encrypted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return s, nil
}

func (o *SettingsOperations) SetSetting(ctx context.Context, key, value string, encrypted bool) error {
	_, err := GetDB().ExecContext(ctx, SetSetting, key, value, encrypted, value, encrypted)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

func (o *SettingsOperations) DeleteSetting(ctx context.Context, key string) error {
	_, err := GetDB().ExecContext(ctx, DeleteSetting, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}

var (
	History  = &HistoryOperations{}
	Settings = &SettingsOperations{}
)
