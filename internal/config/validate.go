package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	structValidatorOnce sync.Once
	structValidator     *validator.Validate
)

func sectionValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		structValidator = validator.New(validator.WithRequiredStructEnabled())
	})
	return structValidator
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSections(); err != nil {
		return err
	}
	if err := c.validateQueues(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSections() error {
	sections := []struct {
		name  string
		value any
	}{
		{"workflow", c.Workflow},
		{"backend", c.Backend},
		{"storage", c.Storage},
		{"vector", c.Vector},
		{"media", c.Media},
	}
	for _, section := range sections {
		if err := sectionValidator().Struct(section.value); err != nil {
			return describeValidation(section.name, err)
		}
	}
	return nil
}

func describeValidation(section string, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%s: %w", section, err)
	}
	first := fieldErrs[0]
	if first.Param() != "" {
		return fmt.Errorf("%s.%s failed %s=%s (got %v)", section, strings.ToLower(first.Field()), first.Tag(), first.Param(), first.Value())
	}
	return fmt.Errorf("%s.%s failed %s (got %v)", section, strings.ToLower(first.Field()), first.Tag(), first.Value())
}

func (c *Config) validateQueues() error {
	_, err := ParseQueueSpec(c.Queues.Spec)
	return err
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval_ms":     c.Workflow.PollIntervalMillis,
		"workflow.max_poll_interval_ms": c.Workflow.MaxPollIntervalMillis,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.drain_timeout":        c.Workflow.DrainTimeout,
		"workflow.retry_backoff":        c.Workflow.RetryBackoff,
		"workflow.max_retry_backoff":    c.Workflow.MaxRetryBackoff,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.LeaseTimeout <= 0 {
		return errors.New("workflow.lease_timeout must be positive")
	}
	if c.Workflow.LeaseTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.lease_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateBackend() error {
	if c.Backend.Kind == BackendRemote && c.Backend.URL == "" {
		return errors.New("backend.url must be set when backend.kind is remote")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Kind != StorageS3 {
		return nil
	}
	if (c.Storage.AccessKey == "") != (c.Storage.SecretKey == "") {
		return errors.New("storage.access_key and storage.secret_key must be set together")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
