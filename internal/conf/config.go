// Package conf loads and validates the application configuration. Settings
// are read from a YAML config file with viper, with environment variable
// overrides, and passed explicitly into constructors; no package reads
// configuration at import time.
package conf

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var defaultConfig []byte

// LogConfig holds settings for a rotating file log.
type LogConfig struct {
	Enabled  bool
	Path     string
	MaxSize  int // megabytes before rotation
	MaxAge   int // days to retain rotated files
	Backups  int
	Compress bool
}

// TNSSettings configures access to the Transient Name Server bot API.
type TNSSettings struct {
	ArchiveURL string // base URL of the public-objects archive
	BotID      int
	BotName    string
	APIKey     string
	DataDir    string // working directory for downloaded batches
	DailyDir   string // root of the per-day partition tree
	Timeout    int    // request timeout in seconds
}

// SQLiteSettings configures the SQLite store backend.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings configures the MySQL store backend.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Host     string
	Port     string
	Database string
}

// OutputSettings selects and configures the object store.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// CrossMatchSettings configures the reference-catalog cross-match stage.
type CrossMatchSettings struct {
	DESIRadiusArcsec float64 // search radius against the galaxy catalog
	LensRadiusArcsec float64 // search radius against the lens catalogs
	Workers          int     // bounded worker pool size across objects
	WindowDays       int     // how many trailing daily partitions to match
	OutputDir        string  // per-run CSV artifact directory
	FlagFile         string  // operator watch list, one object name per line
}

// ExpirySettings configures the auto-snooze scheduler.
type ExpirySettings struct {
	ThresholdDays int    // days of inactivity before auto-snooze
	RunAt         string // HH:MM local time of the daily run
}

// Settings contains all configuration for the application.
type Settings struct {
	Debug bool

	Main struct {
		Name string
		Log  LogConfig
	}

	TNS        TNSSettings
	Output     OutputSettings
	CrossMatch CrossMatchSettings
	Expiry     ExpirySettings
}

// Load reads the configuration, applies defaults and validates it.
func Load() (*Settings, error) {
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("tnsmarshal")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
		// No config file anywhere on the search path: write the default
		// one to the first path so the operator has something to edit.
		if err := createDefaultConfig(configPaths[0]); err != nil {
			return err
		}
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading newly created config: %w", err)
		}
	}
	return nil
}

// GetDefaultConfigPaths returns the ordered list of directories searched for
// the config file: the user config dir first, then the working directory.
func GetDefaultConfigPaths() ([]string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return []string{"."}, nil
	}
	return []string{filepath.Join(configDir, "tnsmarshal"), "."}, nil
}

func createDefaultConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}
	return nil
}

// Save writes the current settings back to the given path as YAML. Used by
// commands that persist operator-adjusted values (for example the expiry
// threshold).
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("error marshaling settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing settings: %w", err)
	}
	return nil
}
