package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"

	"github.com/yarlson/coralph/internal/issues"
	"github.com/yarlson/coralph/internal/provider"
)

// Validate checks the configuration for values the loop cannot run with.
// Errors are criterio.FieldErrors keyed by the YAML path of the field.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("loop.max_iterations", c.Loop.MaxIterations, positive),
		criterio.Run("loop.max_minutes", c.Loop.MaxMinutes, nonNegative),
		criterio.Run("loop.stall_threshold", c.Loop.StallThreshold, nonNegative),
		criterio.Run("loop.max_progress_bytes", c.Loop.MaxProgressBytes, nonNegative),
		c.validateFiles(),
		criterio.Run("assistant.provider", c.Assistant.Provider, validProvider),
		criterio.Run("github.repo", c.GitHub.Repo, validRepo),
		criterio.Run("github.pr_mode", c.GitHub.PRMode, validPRMode),
		criterio.Run("logging.level", c.Logging.Level, validLogLevel),
	)
}

func (c *Config) validateFiles() error {
	var errs criterio.FieldErrorsBuilder
	files := []struct {
		field string
		value string
	}{
		{"files.prompt", c.Files.Prompt},
		{"files.progress", c.Files.Progress},
		{"files.issues", c.Files.Issues},
		{"files.generated_tasks", c.Files.GeneratedTasks},
	}
	for _, f := range files {
		if strings.TrimSpace(f.value) == "" {
			errs = errs.Append(f.field, errors.New("must not be empty"))
		}
	}
	if c.Files.Issues != "" && c.Files.Issues == c.Files.GeneratedTasks {
		errs = errs.Append("files.generated_tasks", errors.New("must differ from files.issues"))
	}
	return errs.ToError()
}

func positive(n int) error {
	if n <= 0 {
		return fmt.Errorf("must be greater than 0, got %d", n)
	}
	return nil
}

func nonNegative(n int) error {
	if n < 0 {
		return fmt.Errorf("must not be negative, got %d", n)
	}
	return nil
}

func validProvider(name string) error {
	_, err := provider.Normalize(name)
	return err
}

func validRepo(slug string) error {
	if slug == "" {
		return nil
	}
	if _, _, ok := issues.SplitRepo(slug); !ok {
		return fmt.Errorf("expected owner/name, got %q", slug)
	}
	return nil
}

func validPRMode(m PRMode) error {
	if !m.IsValid() {
		return fmt.Errorf("must be one of auto, on, off, got %q", m)
	}
	return nil
}

func validLogLevel(level string) error {
	if _, err := zerolog.ParseLevel(level); err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	return nil
}
