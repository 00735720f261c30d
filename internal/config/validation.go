package config

import (
	"fmt"
	"strings"

	"testrig/scenario-engine/internal/pipeline"
	"testrig/scenario-engine/internal/reporter"
	"testrig/scenario-engine/pkg/types"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration and returns all problems at once.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	add := func(field, message string) {
		errs = append(errs, ValidationError{Field: field, Message: message})
	}

	if cfg.SSH.Port <= 0 || cfg.SSH.Port > 65535 {
		add("ssh.port", fmt.Sprintf("invalid port: %d", cfg.SSH.Port))
	}
	if cfg.SSH.ConnectTimeout <= 0 {
		add("ssh.connect_timeout", "must be positive")
	}

	if cfg.Archive.Dir == "" {
		add("archive.dir", "archive directory is required")
	}

	if cfg.Run.TaskTimeout < 0 {
		add("run.task_timeout", "must not be negative")
	}
	switch cfg.Run.OnFailure {
	case "", pipeline.FailFast, pipeline.Continue:
	default:
		add("run.on_failure", fmt.Sprintf("unknown policy %q (want fail_fast or continue)", cfg.Run.OnFailure))
	}
	switch cfg.Run.RestartPolicy {
	case "", types.RestartRolling, types.RestartParallel:
	default:
		add("run.restart_policy", fmt.Sprintf("unknown policy %q (want rolling or parallel)", cfg.Run.RestartPolicy))
	}

	if cfg.Service.RestartCmd == "" {
		add("service.restart_cmd", "restart command template is required")
	}
	if cfg.Service.StartCmd == "" {
		add("service.start_cmd", "start command template is required")
	}
	if cfg.Service.HealthMaxRetries < 0 {
		add("service.health_max_retries", "must not be negative")
	}

	if cfg.Install.InstallCmd == "" {
		add("install.install_cmd", "install command template is required")
	}

	if cfg.WorkUnit.RunnerCmd == "" {
		add("workunit.runner_cmd", "runner command template is required")
	}

	for i, rc := range cfg.Reporters {
		switch rc.Type {
		case reporter.TypeConsole, reporter.TypeJSON, reporter.TypeWebhook:
		default:
			add(fmt.Sprintf("reporters[%d].type", i), fmt.Sprintf("unknown reporter type %q", rc.Type))
		}
	}

	if cfg.Sink.Address == "" {
		add("sink.address", "listen address is required")
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		add("logging.level", fmt.Sprintf("unknown level %q", cfg.Logging.Level))
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
