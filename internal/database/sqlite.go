package database

import (
	"database/sql"
	"fmt"

	"moments/internal/database/migrations"
	"moments/internal/moments"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase is the device-local database. It counts shots, keeps the
// submission history, and can act as the metadata repository and feed for
// single-device events.
type SQLiteDatabase struct {
	db    *sql.DB
	path  string
	clock moments.Clock
	ids   moments.IDGenerator
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
// A nil clock or ID generator uses the real clock and random UUIDs.
func NewSQLiteDatabase(path string, clock moments.Clock, ids moments.IDGenerator) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	s := NewSQLiteDatabaseFromDB(db, clock, ids)
	s.path = path
	return s, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB, clock moments.Clock, ids moments.IDGenerator) *SQLiteDatabase {
	if clock == nil {
		clock = moments.RealClock{}
	}
	if ids == nil {
		ids = moments.UUIDGenerator{}
	}
	return &SQLiteDatabase{db: db, clock: clock, ids: ids}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// PRAGMAs and :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

// Path returns the file path of the database, or "" when wrapped.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations returns an error unless the schema is at the latest version.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.Check(s.db)
}

// Migrate brings the schema to the latest version.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.Up(s.db)
}

// SchemaStatus reports the schema version against the newest migration.
func (s *SQLiteDatabase) SchemaStatus() (migrations.Status, error) {
	return migrations.ReadStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time checks for the roles SQLiteDatabase can play.
var (
	_ moments.QuotaCounter       = (*SQLiteDatabase)(nil)
	_ moments.SubmissionLog      = (*SQLiteDatabase)(nil)
	_ moments.MetadataRepository = (*SQLiteDatabase)(nil)
	_ moments.FeedWriter         = (*SQLiteDatabase)(nil)
)
