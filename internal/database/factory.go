package database

import (
	"fmt"
	"os"
	"path/filepath"

	"moments/internal/config"
	"moments/internal/moments"
)

// NewDatabaseFromConfig opens the device database based on the database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, deviceID string, clock moments.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dbPath := filepath.Join(cfg.DataDir, deviceID+".db")
		return NewSQLiteDatabase(dbPath, clock, nil)
	case "memory":
		db, err := NewSQLiteDatabase(":memory:", clock, nil)
		if err != nil {
			return nil, err
		}
		// Nothing survives the process, so the schema is always fresh.
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
