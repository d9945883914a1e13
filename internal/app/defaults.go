package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults are the paths used when the command line does not override them.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - MOMENTS_CONFIG_PATH: config file location (default: ~/.config/moments.toml)
//   - MOMENTS_HOME: base directory for moments data (default: ~/.local/share/moments)
func GetDefaults() (*Defaults, error) {
	configPath, err := fromEnvOrHome("MOMENTS_CONFIG_PATH", ".config", "moments.toml")
	if err != nil {
		return nil, err
	}

	baseDir, err := fromEnvOrHome("MOMENTS_HOME", ".local", "share", "moments")
	if err != nil {
		return nil, err
	}

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// fromEnvOrHome returns the value of env if set, otherwise the given path
// below the user's home directory.
func fromEnvOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
