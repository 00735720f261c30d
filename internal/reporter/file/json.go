// Package file provides file-based reporters.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"testrig/scenario-engine/pkg/types"
)

// JSONConfig holds configuration for the JSON file reporter.
type JSONConfig struct {
	// FilePath is the output file path. When Dir is set instead, the
	// file is named report-<run id>.json under it.
	FilePath string `yaml:"file_path"`
	// Dir is the directory for run-named report files.
	Dir string `yaml:"dir"`
	// Pretty enables pretty-printed JSON output.
	Pretty bool `yaml:"pretty"`
}

// DefaultJSONConfig returns the default JSON reporter configuration.
func DefaultJSONConfig() *JSONConfig {
	return &JSONConfig{
		FilePath: "report.json",
		Pretty:   true,
	}
}

// JSONReporter writes the structured scenario report to a file.
type JSONReporter struct {
	config *JSONConfig
	mu     sync.Mutex
}

// NewJSONReporter creates a JSON reporter.
func NewJSONReporter(config *JSONConfig) *JSONReporter {
	if config == nil {
		config = DefaultJSONConfig()
	}
	return &JSONReporter{config: config}
}

// Name implements reporter.Reporter.
func (r *JSONReporter) Name() string {
	return "json"
}

// Init implements reporter.Reporter.
func (r *JSONReporter) Init(ctx context.Context, config map[string]any) error {
	if path, ok := config["file_path"].(string); ok && path != "" {
		r.config.FilePath = path
	}
	if dir, ok := config["dir"].(string); ok && dir != "" {
		r.config.Dir = dir
	}
	if pretty, ok := config["pretty"].(bool); ok {
		r.config.Pretty = pretty
	}
	return nil
}

// Emit writes the report.
func (r *JSONReporter) Emit(ctx context.Context, report *types.ScenarioReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.config.FilePath
	if r.config.Dir != "" {
		if err := os.MkdirAll(r.config.Dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
		path = filepath.Join(r.config.Dir, fmt.Sprintf("report-%s.json", report.RunID))
	}

	var (
		data []byte
		err  error
	)
	if r.config.Pretty {
		data, err = json.MarshalIndent(report, "", "  ")
	} else {
		data, err = json.Marshal(report)
	}
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

// Flush implements reporter.Reporter.
func (r *JSONReporter) Flush(ctx context.Context) error {
	return nil
}

// Close implements reporter.Reporter.
func (r *JSONReporter) Close(ctx context.Context) error {
	return nil
}
