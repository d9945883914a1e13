package database

import (
	"context"
	"fmt"

	"moments/internal/moments"
)

// LogSubmission records the outcome of one Submit call and sets its ID.
func (s *SQLiteDatabase) LogSubmission(ctx context.Context, sub *moments.Submission) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions
			(device_id, record_id, moment_id, file_name, sync, state, failed_step, message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.DeviceID, sub.RecordID, sub.MomentID, sub.FileName, string(sub.Sync), string(sub.State),
		string(sub.FailedStep), sub.Message, sub.StartedAt, sub.FinishedAt)
	if err != nil {
		return fmt.Errorf("inserting submission: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading submission id: %w", err)
	}
	sub.ID = id
	return nil
}

// ListSubmissions returns up to limit submissions, newest first.
func (s *SQLiteDatabase) ListSubmissions(ctx context.Context, limit int) ([]*moments.Submission, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, record_id, moment_id, file_name, sync, state, failed_step, message, started_at, finished_at
		FROM submissions
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	defer rows.Close()

	var result []*moments.Submission
	for rows.Next() {
		var sub moments.Submission
		var syncPref, state, step string
		if err := rows.Scan(&sub.ID, &sub.DeviceID, &sub.RecordID, &sub.MomentID, &sub.FileName,
			&syncPref, &state, &step, &sub.Message, &sub.StartedAt, &sub.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning submission: %w", err)
		}
		sub.Sync = moments.SyncPreference(syncPref)
		sub.State = moments.TaskState(state)
		sub.FailedStep = moments.Step(step)
		result = append(result, &sub)
	}
	return result, rows.Err()
}
