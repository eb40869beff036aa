// Package config resolves tracker settings from defaults, an optional YAML
// file and TRACKER_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds the process settings.
type Config struct {
	DataPath        string        `yaml:"data_path" env:"TRACKER_DATA_PATH"`
	Addr            string        `yaml:"addr" env:"TRACKER_ADDR"`
	CacheTTL        time.Duration `yaml:"cache_ttl" env:"TRACKER_CACHE_TTL"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"TRACKER_REFRESH_INTERVAL"`
	LogLevel        string        `yaml:"log_level" env:"TRACKER_LOG_LEVEL"`

	// Choice lists offered by the entry form.
	Projects  []string `yaml:"projects" env:"TRACKER_PROJECTS" envSeparator:","`
	TestTypes []string `yaml:"test_types" env:"TRACKER_TEST_TYPES" envSeparator:","`
	Statuses  []string `yaml:"statuses" env:"TRACKER_STATUSES" envSeparator:","`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DataPath:        "sample_data.xlsx",
		Addr:            ":8501",
		CacheTTL:        60 * time.Second,
		RefreshInterval: 30 * time.Second,
		LogLevel:        "info",
		Projects:        []string{"Apache", "MD1", "N597", "Other"},
		TestTypes:       []string{"Endurance", "Performance", "Strength", "Safety"},
		Statuses:        []string{"Not Started", "In Progress", "Pass", "Fail"},
	}
}

// Load starts from Default, applies the YAML file at path when path is not
// empty, then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the tracker cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.DataPath == "" {
		errs = append(errs, errors.New("data_path must not be empty"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("cache_ttl must not be negative"))
	}
	if c.RefreshInterval < 0 {
		errs = append(errs, errors.New("refresh_interval must not be negative"))
	}
	if len(c.Projects) == 0 {
		errs = append(errs, errors.New("projects must not be empty"))
	}
	if len(c.TestTypes) == 0 {
		errs = append(errs, errors.New("test_types must not be empty"))
	}
	if len(c.Statuses) == 0 {
		errs = append(errs, errors.New("statuses must not be empty"))
	}
	return errors.Join(errs...)
}
