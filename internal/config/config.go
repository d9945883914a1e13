package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config represents the main configuration for moments.
type Config struct {
	DeviceID    string            `toml:"device_id" validate:"required"`
	DeviceName  string            `toml:"device_name"`
	BaseDir     string            `toml:"base_dir" validate:"required"`
	LogDir      string            `toml:"log_dir"`
	Database    DatabaseConfig    `toml:"database"`
	Optimized   StoreConfig       `toml:"optimized"`
	Original    DestinationConfig `toml:"original"`
	Metadata    MetadataConfig    `toml:"metadata"`
	Moderation  ModerationConfig  `toml:"moderation"`
	Feed        FeedConfig        `toml:"feed"`
	Queue       QueueConfig       `toml:"queue"`
	Encryption  EncryptionConfig  `toml:"encryption"`
	Compression CompressionConfig `toml:"compression"`
	Quota       QuotaConfig       `toml:"quota"`
	Sync        SyncConfig        `toml:"sync"`
	Timeouts    TimeoutsConfig    `toml:"timeouts"`
}

// Duration is a time.Duration written as a string such as "30s" or "5m".
type Duration struct {
	time.Duration
}

func NewDuration(d time.Duration) Duration { return Duration{Duration: d} }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// DatabaseConfig represents configuration for the device database that holds
// the shot quota and the submission history.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type" validate:"oneof=sqlite memory"`
	DataDir string `toml:"data_dir,omitempty" validate:"required_if=Type sqlite"`
}

// StoreConfig represents the bucket that receives optimized copies.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type" validate:"oneof=s3 minio supabase filesystem memory"`

	// Shared by s3, minio and supabase.
	Bucket        string `toml:"bucket,omitempty" validate:"required_if=Type s3,required_if=Type minio,required_if=Type supabase"`
	Prefix        string `toml:"prefix,omitempty"`
	PublicBaseURL string `toml:"public_base_url,omitempty"`

	// s3 and minio
	Region    string `toml:"region,omitempty"`
	Endpoint  string `toml:"endpoint,omitempty" validate:"required_if=Type minio"`
	AccessKey string `toml:"access_key,omitempty" env:"MOMENTS_STORE_ACCESS_KEY"`
	SecretKey string `toml:"secret_key,omitempty" env:"MOMENTS_STORE_SECRET_KEY"`
	UseSSL    bool   `toml:"use_ssl,omitempty"`

	// supabase
	SupabaseURL string `toml:"supabase_url,omitempty" validate:"required_if=Type supabase"`
	SupabaseKey string `toml:"supabase_key,omitempty" env:"MOMENTS_SUPABASE_KEY"`

	// filesystem
	FSRoot string `toml:"fs_root,omitempty" validate:"required_if=Type filesystem"`
}

// DestinationConfig represents where full-resolution originals are uploaded.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DestinationConfig struct {
	Type string `toml:"type" validate:"oneof=http s3 filesystem memory"`

	// http: the endpoint that issues upload URLs.
	IssueURL string `toml:"issue_url,omitempty" validate:"required_if=Type http"`
	APIKey   string `toml:"api_key,omitempty" env:"MOMENTS_ORIGINAL_API_KEY"`

	// s3: presigned PUT into a bucket.
	Bucket        string   `toml:"bucket,omitempty" validate:"required_if=Type s3"`
	Prefix        string   `toml:"prefix,omitempty"`
	Region        string   `toml:"region,omitempty"`
	Endpoint      string   `toml:"endpoint,omitempty"`
	AccessKey     string   `toml:"access_key,omitempty" env:"MOMENTS_ORIGINAL_ACCESS_KEY"`
	SecretKey     string   `toml:"secret_key,omitempty" env:"MOMENTS_ORIGINAL_SECRET_KEY"`
	PresignExpiry Duration `toml:"presign_expiry,omitempty"`

	// filesystem
	FSRoot string `toml:"fs_root,omitempty" validate:"required_if=Type filesystem"`
}

// MetadataConfig represents the canonical record store.
type MetadataConfig struct {
	Type string `toml:"type" validate:"oneof=sqlite postgres"`
	DSN  string `toml:"dsn,omitempty" env:"MOMENTS_METADATA_DSN" validate:"required_if=Type postgres"`
}

// ModerationConfig represents the content-safety classifier.
type ModerationConfig struct {
	Type     string `toml:"type" validate:"oneof=http allow"`
	Endpoint string `toml:"endpoint,omitempty" validate:"required_if=Type http"`
	APIKey   string `toml:"api_key,omitempty" env:"MOMENTS_MODERATION_API_KEY"`
	// PurgeRejected deletes the record and optimized copy of rejected photos.
	PurgeRejected bool `toml:"purge_rejected"`
}

// FeedConfig represents the live display feed.
type FeedConfig struct {
	Type          string `toml:"type" validate:"oneof=sqlite redis"`
	RedisAddr     string `toml:"redis_addr,omitempty" validate:"required_if=Type redis"`
	RedisPassword string `toml:"redis_password,omitempty" env:"MOMENTS_REDIS_PASSWORD"`
	RedisDB       int    `toml:"redis_db,omitempty"`
	Stream        string `toml:"stream,omitempty"`
	Channel       string `toml:"channel,omitempty"`
}

// QueueConfig represents the device-local queue of deferred originals.
type QueueConfig struct {
	Type        string   `toml:"type" validate:"oneof=filesystem memory"`
	Dir         string   `toml:"dir,omitempty" validate:"required_if=Type filesystem"`
	MaxSize     int64    `toml:"max_size"` // max total bytes of queued originals
	MaxAttempts int      `toml:"max_attempts" validate:"gte=0"`
	BaseDelay   Duration `toml:"base_delay"`
	MaxDelay    Duration `toml:"max_delay"`
}

// EncryptionConfig holds the age key pair used to encrypt queued originals at rest.
type EncryptionConfig struct {
	Type          string `toml:"type" validate:"oneof=age test none"`
	IdentityPath  string `toml:"identity_path,omitempty" validate:"required_if=Type age"`
	RecipientPath string `toml:"recipient_path,omitempty" validate:"required_if=Type age"`
}

// CompressionConfig bounds the optimized copy.
type CompressionConfig struct {
	MaxDimension int   `toml:"max_dimension" validate:"gt=0"`
	MaxBytes     int64 `toml:"max_bytes" validate:"gt=0"`
	Quality      int   `toml:"quality" validate:"gte=1,lte=100"`
}

// QuotaConfig caps published contributions per device.
type QuotaConfig struct {
	MaxShots int `toml:"max_shots" validate:"gte=0"`
}

// SyncConfig decides when deferred originals are uploaded.
type SyncConfig struct {
	Condition           string   `toml:"condition" validate:"oneof=always interface"`
	PreferredInterfaces []string `toml:"preferred_interfaces,omitempty"`
	Interval            Duration `toml:"interval"`
}

// TimeoutsConfig bounds each pipeline step. Zero values use built-in defaults.
type TimeoutsConfig struct {
	Compress Duration `toml:"compress"`
	Upload   Duration `toml:"upload"`
	Register Duration `toml:"register"`
	Queue    Duration `toml:"queue"`
	Original Duration `toml:"original"`
	Moderate Duration `toml:"moderate"`
	Publish  Duration `toml:"publish"`
}

// NewConfig creates a new Config with the provided values and local defaults:
// everything lives under baseDir and moderation accepts every photo.
func NewConfig(deviceID, baseDir string) *Config {
	return &Config{
		DeviceID: deviceID,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Optimized: StoreConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "optimized"),
		},
		Original: DestinationConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "originals"),
		},
		Metadata:   MetadataConfig{Type: "sqlite"},
		Moderation: ModerationConfig{Type: "allow"},
		Feed: FeedConfig{
			Type:    "sqlite",
			Stream:  "moments:feed",
			Channel: "moments:live",
		},
		Queue: QueueConfig{
			Type:        "filesystem",
			Dir:         filepath.Join(baseDir, "queue"),
			MaxSize:     2 * 1024 * 1024 * 1024,
			MaxAttempts: 5,
			BaseDelay:   NewDuration(30 * time.Second),
			MaxDelay:    NewDuration(30 * time.Minute),
		},
		Encryption: EncryptionConfig{
			Type:          "age",
			IdentityPath:  filepath.Join(baseDir, "keys", "queue.key"),
			RecipientPath: filepath.Join(baseDir, "keys", "queue.pub"),
		},
		Compression: CompressionConfig{
			MaxDimension: 1920,
			MaxBytes:     1024 * 1024,
			Quality:      80,
		},
		Quota: QuotaConfig{MaxShots: 10},
		Sync: SyncConfig{
			Condition: "always",
			Interval:  NewDuration(time.Minute),
		},
	}
}

var configValidator = validator.New()

// Validate checks required fields and backend-specific settings.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ApplyEnv overrides secrets from MOMENTS_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := cleanenv.UpdateEnv(cfg); err != nil {
		return fmt.Errorf("reading environment overrides: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path and applies
// environment overrides.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file can hold storage credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
