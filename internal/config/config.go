// Package config loads the daemon configuration file.
//
// The file is optional. Values it sets override the defaults, and command
// line flags override the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format is the encoding of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var (
	// ErrUnsupportedFormat means the file extension is neither YAML nor JSON.
	ErrUnsupportedFormat = errors.New("config: unsupported format")

	// ErrLoadFailed means the file could not be read or parsed.
	ErrLoadFailed = errors.New("config: failed to load")

	// ErrInvalid means a value is out of its allowed set.
	ErrInvalid = errors.New("config: invalid value")
)

// Config is the daemon configuration.
type Config struct {
	// Crontab is the schedule file. Empty means $HOME/.crontab.txt.
	Crontab string `koanf:"crontab"`

	// Policy is "wait" or "detach".
	Policy string `koanf:"policy"`

	// Driver is "poll" or "cron".
	Driver string `koanf:"driver"`

	// Interval is the polling period.
	Interval time.Duration `koanf:"interval"`

	// Timeout kills a job running longer than this. Zero disables it.
	Timeout time.Duration `koanf:"timeout"`

	Log     Log     `koanf:"log"`
	History History `koanf:"history"`
}

// Log configures the daemon's own logging.
type Log struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// History configures where runs are recorded.
type History struct {
	// MongoURI selects the MongoDB store. Empty keeps history in memory.
	MongoURI   string        `koanf:"mongo_uri"`
	Database   string        `koanf:"database"`
	Collection string        `koanf:"collection"`
	Size       int           `koanf:"size"`
	Timeout    time.Duration `koanf:"timeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Policy:   "wait",
		Driver:   "poll",
		Interval: time.Second,
		Log: Log{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		History: History{
			Database:   "minicron",
			Collection: "runs",
			Size:       256,
			Timeout:    5 * time.Second,
		},
	}
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	format, err := DetectFormat(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return LoadBytes(data, format)
}

// LoadBytes parses data over the defaults and validates the result.
func LoadBytes(data []byte, format Format) (Config, error) {
	cfg := Default()
	if len(data) == 0 {
		return cfg, nil
	}

	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DetectFormat picks the format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
}

// Validate checks the enumerated and numeric settings.
func (c *Config) Validate() error {
	switch c.Policy {
	case "wait", "detach":
	default:
		return fmt.Errorf("%w: policy %q (want wait or detach)", ErrInvalid, c.Policy)
	}
	switch c.Driver {
	case "poll", "cron":
	default:
		return fmt.Errorf("%w: driver %q (want poll or cron)", ErrInvalid, c.Driver)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval %s must be positive", ErrInvalid, c.Interval)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout %s must not be negative", ErrInvalid, c.Timeout)
	}
	if c.History.MongoURI != "" && (c.History.Database == "" || c.History.Collection == "") {
		return fmt.Errorf("%w: history needs a database and a collection", ErrInvalid)
	}
	return nil
}
