// Package config loads engine configuration from YAML with environment
// variable overrides (SCN_ prefix, declared per field via env struct
// tags).
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"testrig/scenario-engine/internal/install"
	"testrig/scenario-engine/internal/pipeline"
	"testrig/scenario-engine/internal/remote"
	"testrig/scenario-engine/internal/reporter"
	"testrig/scenario-engine/internal/service"
	"testrig/scenario-engine/internal/sink"
	"testrig/scenario-engine/internal/workunit"
	"testrig/scenario-engine/pkg/logger"
)

// Config is the complete engine configuration.
type Config struct {
	SSH       remote.SSHConfig  `yaml:"ssh"`
	Archive   ArchiveConfig     `yaml:"archive"`
	Run       pipeline.Config   `yaml:"run"`
	Service   service.Config    `yaml:"service"`
	Install   install.Config    `yaml:"install"`
	WorkUnit  workunit.Config   `yaml:"workunit"`
	Reporters []reporter.Config `yaml:"reporters"`
	Sink      sink.Config       `yaml:"sink"`
	Logging   logger.Config     `yaml:"logging"`
}

// ArchiveConfig controls where run artifacts (captures, reports) land.
type ArchiveConfig struct {
	// Dir is the root archive directory; each run gets a subdirectory
	// named <timestamp>-<run id prefix>.
	Dir string `yaml:"dir" env:"SCN_ARCHIVE_DIR"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		SSH:      remote.DefaultSSHConfig(),
		Archive:  ArchiveConfig{Dir: "archive"},
		Run:      pipeline.DefaultConfig(),
		Service:  service.DefaultConfig(),
		Install:  install.DefaultConfig(),
		WorkUnit: workunit.DefaultConfig(),
		Reporters: []reporter.Config{
			{Type: reporter.TypeConsole, Enabled: true},
			{Type: reporter.TypeJSON, Enabled: true},
		},
		Sink: sink.DefaultConfig(),
		Logging: logger.Config{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
	}
}

// Loader handles configuration loading from file and environment.
type Loader struct {
	configPath string
}

// NewLoader creates a configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// Load loads configuration with precedence: defaults < YAML file <
// environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := applyEnvOverrides(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile loads configuration from a YAML file. A missing file is
// not an error; explicit paths that fail to parse are.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// applyEnvOverrides recursively applies environment variables declared
// via env struct tags.
func applyEnvOverrides(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct && fieldType.Type != reflect.TypeOf(time.Time{}) {
			if err := applyEnvOverrides(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set field %s from %s: %w", fieldType.Name, envTag, err)
		}
	}
	return nil
}

// setFieldValue converts an environment string to the field's type.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field is not settable")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
			for i, part := range parts {
				slice.Index(i).SetString(strings.TrimSpace(part))
			}
			field.Set(slice)
			return nil
		}
		return fmt.Errorf("unsupported slice type %s", field.Type())
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
