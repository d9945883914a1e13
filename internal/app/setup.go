package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"moments/internal/config"
	"moments/internal/database"
	"moments/internal/database/migrations"
	"moments/internal/encryption"
)

// InitConfig writes a new config for this device to configPath with every
// component stored under baseDir, creates the device database, and generates
// the queue encryption key when the config asks for one.
func InitConfig(configPath, baseDir string) (*config.Config, error) {
	cfg := config.NewConfig(uuid.New().String(), baseDir)
	if host, err := os.Hostname(); err == nil {
		cfg.DeviceName = host
	}

	if err := config.Init(configPath, cfg); err != nil {
		return nil, err
	}

	if err := MigrateDatabase(cfg); err != nil {
		return nil, err
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if !enc.IsConfigured() {
		if err := enc.Setup(); err != nil {
			return nil, fmt.Errorf("setting up queue encryption: %w", err)
		}
	}
	return cfg, nil
}

// MigrateDatabase brings the device database schema up to date.
func MigrateDatabase(cfg *config.Config) error {
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.DeviceID, nil)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// DatabaseStatus reports the device database schema version.
func DatabaseStatus(cfg *config.Config) (migrations.Status, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.DeviceID, nil)
	if err != nil {
		return migrations.Status{}, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return db.SchemaStatus()
}

// BackupDatabase writes a consistent snapshot of the device database to destPath.
func BackupDatabase(cfg *config.Config, destPath string) error {
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.DeviceID, nil)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date: %w", err)
	}
	return db.BackupTo(destPath)
}
