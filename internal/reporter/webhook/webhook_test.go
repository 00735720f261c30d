package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testrig/scenario-engine/pkg/types"
)

func fastConfig(url string) *Config {
	return &Config{
		URL:        url,
		Headers:    map[string]string{"X-Token": "secret"},
		Timeout:    time.Second,
		MinBackoff: time.Millisecond,
		MaxBackoff: 2 * time.Millisecond,
		MaxRetries: 3,
	}
}

func sampleReport() *types.ScenarioReport {
	return &types.ScenarioReport{
		RunID:    "run-1",
		Scenario: "upgrade",
		Verdict:  types.VerdictFail,
	}
}

func TestReporter_Emit_PostsReport(t *testing.T) {
	var body []byte
	var gotToken, gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		gotToken = r.Header.Get("X-Token")
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	reporter := New(fastConfig(server.URL))
	require.NoError(t, reporter.Emit(context.Background(), sampleReport()))

	assert.Equal(t, "secret", gotToken)
	assert.Equal(t, "application/json", gotType)

	var decoded types.ScenarioReport
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, types.VerdictFail, decoded.Verdict)
}

func TestReporter_Emit_RetriesUntilSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reporter := New(fastConfig(server.URL))
	require.NoError(t, reporter.Emit(context.Background(), sampleReport()))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestReporter_Emit_GivesUpAfterRetryBudget(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	reporter := New(fastConfig(server.URL))
	err := reporter.Emit(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook delivery failed")
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestReporter_Emit_UnreachableSink(t *testing.T) {
	reporter := New(fastConfig("http://127.0.0.1:1/unreachable"))
	err := reporter.Emit(context.Background(), sampleReport())
	require.Error(t, err)
}

func TestReporter_Init(t *testing.T) {
	reporter := New(nil)
	err := reporter.Init(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a url")

	require.NoError(t, reporter.Init(context.Background(), map[string]any{
		"url":     "http://sink.local/api/v1/runs",
		"headers": map[string]any{"Authorization": "Bearer x"},
	}))
	assert.Equal(t, "http://sink.local/api/v1/runs", reporter.config.URL)
	assert.Equal(t, "Bearer x", reporter.config.Headers["Authorization"])
}
