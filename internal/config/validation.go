package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	foundationerrors "git.home.luguber.info/inful/laundrycycle/internal/foundation/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateConfig runs struct-tag validation followed by cross-field checks.
func ValidateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fieldErrors(err)
	}
	return newConfigurationValidator(cfg).validate()
}

func fieldErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "configuration validation failed").Build()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return foundationerrors.ConfigError("configuration validation failed").
		WithCause(err).
		WithContext("fields", strings.Join(fields, ", ")).
		Build()
}

// configurationValidator holds checks that span several fields.
type configurationValidator struct {
	config *Config
}

func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

func (cv *configurationValidator) validate() error {
	if err := cv.validateStorage(); err != nil {
		return err
	}
	if err := cv.validateRetry(); err != nil {
		return err
	}
	return cv.validateCategories()
}

func (cv *configurationValidator) validateStorage() error {
	s := cv.config.Storage
	if s.TimerBackend == TimerBackendBadger && s.BadgerDir == "" {
		return foundationerrors.ConfigError("storage.badger_dir is required for the badger timer backend").Build()
	}
	return nil
}

func (cv *configurationValidator) validateRetry() error {
	r := cv.config.Notify.Retry
	if r.Initial <= 0 || r.Max <= 0 {
		return foundationerrors.ConfigError("notify.retry delays must be positive").Build()
	}
	if r.Initial > r.Max {
		return foundationerrors.ConfigError("notify.retry.initial cannot exceed notify.retry.max").Build()
	}
	return nil
}

func (cv *configurationValidator) validateCategories() error {
	seen := make(map[string]bool, len(cv.config.Categories))
	for _, c := range cv.config.Categories {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if seen[key] {
			return foundationerrors.ConfigError(fmt.Sprintf("duplicate category name: %s", c.Name)).Build()
		}
		seen[key] = true
		if err := c.CycleConfig(cv.config.Defaults).Validate(); err != nil {
			return foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "invalid category").
				WithContext("category", c.Name).
				Build()
		}
	}
	return nil
}
