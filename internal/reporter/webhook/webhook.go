// Package webhook provides a reporter that posts the finished scenario
// report to an HTTP sink.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/grafana/dskit/backoff"

	"testrig/scenario-engine/pkg/types"
)

// Config holds configuration for the webhook reporter.
type Config struct {
	// URL is the webhook endpoint URL.
	URL string `yaml:"url"`
	// Headers are additional HTTP headers.
	Headers map[string]string `yaml:"headers,omitempty"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `yaml:"timeout"`
	// Retry tunes the delivery retry backoff.
	MinBackoff time.Duration `yaml:"min_backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
	MaxRetries int           `yaml:"max_retries"`
}

// DefaultConfig returns the default webhook reporter configuration.
func DefaultConfig() *Config {
	return &Config{
		Headers:    make(map[string]string),
		Timeout:    10 * time.Second,
		MinBackoff: time.Second,
		MaxBackoff: 10 * time.Second,
		MaxRetries: 3,
	}
}

// Reporter implements the webhook reporter.
type Reporter struct {
	config     *Config
	httpClient *http.Client
}

// New creates a webhook reporter.
func New(config *Config) *Reporter {
	if config == nil {
		config = DefaultConfig()
	}
	return &Reporter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name implements reporter.Reporter.
func (r *Reporter) Name() string {
	return "webhook"
}

// Init implements reporter.Reporter.
func (r *Reporter) Init(ctx context.Context, config map[string]any) error {
	if url, ok := config["url"].(string); ok && url != "" {
		r.config.URL = url
	}
	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				r.config.Headers[k] = s
			}
		}
	}
	if r.config.URL == "" {
		return fmt.Errorf("webhook reporter requires a url")
	}
	return nil
}

// Emit posts the report as JSON, retrying with backoff. One report per
// run, so there is no batching.
func (r *Reporter) Emit(ctx context.Context, report *types.ScenarioReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	boff := backoff.New(ctx, backoff.Config{
		MinBackoff: r.config.MinBackoff,
		MaxBackoff: r.config.MaxBackoff,
		MaxRetries: r.config.MaxRetries,
	})

	var lastErr error
	for boff.Ongoing() {
		lastErr = r.post(ctx, payload)
		if lastErr == nil {
			return nil
		}
		boff.Wait()
	}
	if lastErr == nil {
		lastErr = boff.Err()
	}
	return fmt.Errorf("webhook delivery failed: %w", lastErr)
}

func (r *Reporter) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range r.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sink returned status %d", resp.StatusCode)
	}
	return nil
}

// Flush implements reporter.Reporter.
func (r *Reporter) Flush(ctx context.Context) error {
	return nil
}

// Close implements reporter.Reporter.
func (r *Reporter) Close(ctx context.Context) error {
	r.httpClient.CloseIdleConnections()
	return nil
}
