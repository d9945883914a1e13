package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Shots returns how many contributions the device has published.
func (s *SQLiteDatabase) Shots(ctx context.Context, deviceID string) (int, error) {
	var shots int
	err := s.db.QueryRowContext(ctx,
		"SELECT shots FROM device_quota WHERE device_id = ?", deviceID).Scan(&shots)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading shots: %w", err)
	}
	return shots, nil
}

// IncrementShots adds one published contribution and returns the new count.
func (s *SQLiteDatabase) IncrementShots(ctx context.Context, deviceID string) (int, error) {
	var shots int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO device_quota (device_id, shots, updated_at) VALUES (?, 1, ?)
		ON CONFLICT (device_id) DO UPDATE SET shots = shots + 1, updated_at = excluded.updated_at
		RETURNING shots`,
		deviceID, s.clock.Now()).Scan(&shots)
	if err != nil {
		return 0, fmt.Errorf("incrementing shots: %w", err)
	}
	return shots, nil
}

// ResetShots sets the device's count back to zero.
func (s *SQLiteDatabase) ResetShots(ctx context.Context, deviceID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE device_quota SET shots = 0, updated_at = ? WHERE device_id = ?", s.clock.Now(), deviceID)
	if err != nil {
		return fmt.Errorf("resetting shots: %w", err)
	}
	return nil
}
