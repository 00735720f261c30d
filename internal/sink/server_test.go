package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testrig/scenario-engine/pkg/types"
)

func reportJSON(runID string, verdict types.Verdict) string {
	report := &types.ScenarioReport{
		RunID:    runID,
		Scenario: "upgrade",
		Verdict:  verdict,
		TaskCounts: map[types.TaskStatus]int{
			types.TaskStatusSucceeded: 4,
			types.TaskStatusFailed:    1,
			types.TaskStatusSkipped:   1,
		},
	}
	data, _ := json.Marshal(report)
	return string(data)
}

func submitRun(t *testing.T, server *Server, body string) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	server := NewServer(DefaultConfig())

	resp, err := server.App().Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_SubmitAndGetRun(t *testing.T) {
	server := NewServer(DefaultConfig())
	submitRun(t, server, reportJSON("run-1", types.VerdictFail))

	resp, err := server.App().Test(httptest.NewRequest("GET", "/api/v1/runs/run-1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var report types.ScenarioReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, types.VerdictFail, report.Verdict)
}

func TestServer_GetRun_NotFound(t *testing.T) {
	server := NewServer(DefaultConfig())

	resp, err := server.App().Test(httptest.NewRequest("GET", "/api/v1/runs/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestServer_SubmitRun_BadBody(t *testing.T) {
	server := NewServer(DefaultConfig())

	req := httptest.NewRequest("POST", "/api/v1/runs", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestServer_SubmitRun_MissingRunID(t *testing.T) {
	server := NewServer(DefaultConfig())

	req := httptest.NewRequest("POST", "/api/v1/runs", strings.NewReader(`{"scenario":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "invalid_report", body["error"])
}

func TestServer_ListRuns(t *testing.T) {
	server := NewServer(DefaultConfig())
	submitRun(t, server, reportJSON("run-1", types.VerdictPass))
	submitRun(t, server, reportJSON("run-2", types.VerdictFail))

	resp, err := server.App().Test(httptest.NewRequest("GET", "/api/v1/runs", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Runs []struct {
			RunID   string        `json:"run_id"`
			Verdict types.Verdict `json:"verdict"`
		} `json:"runs"`
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Runs, 2)
	assert.Equal(t, "run-1", body.Runs[0].RunID)
	assert.Equal(t, "run-2", body.Runs[1].RunID)
}

func TestServer_HistoryEviction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.History = 2
	server := NewServer(cfg)

	for i := 0; i < 4; i++ {
		submitRun(t, server, reportJSON(fmt.Sprintf("run-%d", i), types.VerdictPass))
	}

	resp, err := server.App().Test(httptest.NewRequest("GET", "/api/v1/runs", nil))
	require.NoError(t, err)

	var body struct {
		Count int `json:"count"`
		Runs  []struct {
			RunID string `json:"run_id"`
		} `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "run-2", body.Runs[0].RunID)
	assert.Equal(t, "run-3", body.Runs[1].RunID)

	// Evicted runs are gone.
	resp, err = server.App().Test(httptest.NewRequest("GET", "/api/v1/runs/run-0", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	server := NewServer(DefaultConfig())
	submitRun(t, server, reportJSON("run-1", types.VerdictFail))
	submitRun(t, server, reportJSON("run-2", types.VerdictPass))

	resp, err := server.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "scenario_sink_runs_received_total 2")
	assert.Contains(t, out, "scenario_sink_runs_failed_total 1")
	assert.Contains(t, out, `scenario_sink_tasks_total{status="succeeded"} 8`)
	assert.Contains(t, out, `scenario_sink_tasks_total{status="failed"} 2`)
}
