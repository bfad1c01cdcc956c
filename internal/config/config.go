package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	FileName = "config.yaml"
	EnvPath  = "SDBURN_CONFIG"

	UnmountCommand = "umount"
	UnmountUDisks2 = "udisks2"
)

// Config is passed explicitly to every component; nothing reads it globally.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Write   WriteConfig   `yaml:"write"`
	Unmount UnmountConfig `yaml:"unmount"`
	Images  ImagesConfig  `yaml:"images"`
	Log     LogConfig     `yaml:"log"`
}

type DeviceConfig struct {
	MinSize       ByteSize `yaml:"min_size"`
	MaxSize       ByteSize `yaml:"max_size" validate:"gtefield=MinSize"`
	ExcludeBoot   bool     `yaml:"exclude_boot"`
	AllowMounted  bool     `yaml:"allow_mounted"`
	RemovableOnly bool     `yaml:"removable_only"`
}

type WriteConfig struct {
	BlockSize        ByteSize      `yaml:"block_size" validate:"gte=512"`
	MaxRetries       int           `yaml:"max_retries" validate:"gte=1,lte=100"`
	RetryDelay       time.Duration `yaml:"retry_delay" validate:"gte=0"`
	ProgressInterval time.Duration `yaml:"progress_interval" validate:"gt=0"`
	Verify           bool          `yaml:"verify"`
}

type UnmountConfig struct {
	Method   string        `yaml:"method" validate:"oneof=umount udisks2"`
	Attempts int           `yaml:"attempts" validate:"gte=1,lte=20"`
	Backoff  time.Duration `yaml:"backoff" validate:"gte=0"`
}

type ImagesConfig struct {
	// Codecs maps extra filename suffixes to codec names (none, gzip, xz,
	// bzip2, zstd). Entries override the built-in table.
	Codecs  map[string]string `yaml:"codecs"`
	Dir     string            `yaml:"dir"`
	Pattern string            `yaml:"pattern"`
}

type LogConfig struct {
	Level      string `yaml:"level" validate:"oneof=trace debug info warn error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Device: DeviceConfig{
			MinSize:     2 * GiB,
			MaxSize:     2000 * GiB,
			ExcludeBoot: true,
		},
		Write: WriteConfig{
			BlockSize:        4 * MiB,
			MaxRetries:       3,
			RetryDelay:       5 * time.Second,
			ProgressInterval: time.Second,
			Verify:           true,
		},
		Unmount: UnmountConfig{
			Method:   UnmountCommand,
			Attempts: 3,
			Backoff:  2 * time.Second,
		},
		Images: ImagesConfig{
			Dir:     ".",
			Pattern: "*",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  1,
			MaxBackups: 2,
		},
	}
}

func Folder() (string, error) {
	var configPath string
	switch runtime.GOOS {
	case "windows":
		configPath = os.Getenv("APPDATA")
	default:
		configPath = os.Getenv("XDG_CONFIG_HOME")
	}
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configPath = filepath.Join(home, ".config")
	}
	return filepath.Join(configPath, "sdburn"), nil
}

// Path resolves the config file location: explicit path, then $SDBURN_CONFIG,
// then the user config folder.
func Path(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env, nil
	}
	dir, err := Folder()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads the YAML file at path over the defaults. A missing file is not an
// error unless required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !required:
		return cfg, nil
	case err != nil:
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping values not present in data, and
// validates the result.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
