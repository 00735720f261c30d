// Package sink implements a small HTTP report sink: the webhook reporter
// posts finished scenario reports here, and the server keeps the last N
// in memory for inspection. A durable reporting backend stays external.
package sink

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"testrig/scenario-engine/pkg/logger"
	"testrig/scenario-engine/pkg/types"
)

// Config holds sink server configuration.
type Config struct {
	// Address is the address to listen on (e.g. ":8080").
	Address string `yaml:"address" env:"SCN_SINK_ADDRESS"`
	// History is how many reports the in-memory ring retains.
	History int `yaml:"history" env:"SCN_SINK_HISTORY"`
	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns the default sink configuration.
func DefaultConfig() Config {
	return Config{
		Address:      ":8080",
		History:      100,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the report sink server.
type Server struct {
	app    *fiber.App
	config Config

	mu      sync.RWMutex
	reports []*types.ScenarioReport // ring, newest last

	metrics      *metrics.Set
	runsReceived *metrics.Counter
	runsFailed   *metrics.Counter
}

// NewServer creates a sink server and registers its routes.
func NewServer(config Config) *Server {
	if config.History <= 0 {
		config.History = DefaultConfig().History
	}

	s := &Server{
		config:  config,
		metrics: metrics.NewSet(),
	}
	s.runsReceived = s.metrics.GetOrCreateCounter("scenario_sink_runs_received_total")
	s.runsFailed = s.metrics.GetOrCreateCounter("scenario_sink_runs_failed_total")

	s.app = fiber.New(fiber.Config{
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		DisableStartupMessage: true,
	})
	s.app.Use(fiberrecover.New())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/metrics", s.handleMetrics)

	api := s.app.Group("/api/v1")
	api.Post("/runs", s.handleSubmitRun)
	api.Get("/runs", s.handleListRuns)
	api.Get("/runs/:id", s.handleGetRun)
}

// Listen starts serving. Blocks until Shutdown.
func (s *Server) Listen() error {
	logger.Info("report sink listening", zap.String("address", s.config.Address))
	return s.app.Listen(s.config.Address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleMetrics renders the counter set in Prometheus text format.
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	var buf bytes.Buffer
	s.metrics.WritePrometheus(&buf)
	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	return c.Send(buf.Bytes())
}

// handleSubmitRun handles POST /api/v1/runs.
func (s *Server) handleSubmitRun(c *fiber.Ctx) error {
	var report types.ScenarioReport
	if err := c.BodyParser(&report); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_report",
			"message": "failed to parse report body: " + err.Error(),
		})
	}
	if report.RunID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_report",
			"message": "report is missing run_id",
		})
	}

	s.store(&report)

	s.runsReceived.Inc()
	if report.Verdict == types.VerdictFail {
		s.runsFailed.Inc()
	}
	for status, count := range report.TaskCounts {
		s.metrics.GetOrCreateCounter(
			fmt.Sprintf(`scenario_sink_tasks_total{status=%q}`, status)).Add(count)
	}

	logger.Info("report received",
		zap.String("run_id", report.RunID),
		zap.String("scenario", report.Scenario),
		zap.String("verdict", string(report.Verdict)))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"run_id": report.RunID})
}

// handleListRuns handles GET /api/v1/runs.
func (s *Server) handleListRuns(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]fiber.Map, 0, len(s.reports))
	for _, report := range s.reports {
		summaries = append(summaries, fiber.Map{
			"run_id":   report.RunID,
			"scenario": report.Scenario,
			"verdict":  report.Verdict,
			"end_time": report.EndTime,
		})
	}
	return c.JSON(fiber.Map{"runs": summaries, "count": len(summaries)})
}

// handleGetRun handles GET /api/v1/runs/:id.
func (s *Server) handleGetRun(c *fiber.Ctx) error {
	id := c.Params("id")

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, report := range s.reports {
		if report.RunID == id {
			return c.JSON(report)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "run not found",
	})
}

// store appends a report, evicting the oldest beyond the history limit.
func (s *Server) store(report *types.ScenarioReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	if len(s.reports) > s.config.History {
		s.reports = s.reports[len(s.reports)-s.config.History:]
	}
}
