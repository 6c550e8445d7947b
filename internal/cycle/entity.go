package cycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	foundationerrors "git.home.luguber.info/inful/laundrycycle/internal/foundation/errors"
)

// Config is the per-entity configuration supplied at registration.
type Config struct {
	Name         string        `json:"name" yaml:"name" validate:"required,max=64"`
	WashInterval time.Duration `json:"wash_interval" yaml:"wash_interval" validate:"gte=1s"`
	WashDuration time.Duration `json:"wash_duration" yaml:"wash_duration" validate:"gte=1s"`
	DryDuration  time.Duration `json:"dry_duration" yaml:"dry_duration" validate:"gte=1s"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the name is set and every duration is at least one second.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return foundationerrors.WrapError(err, foundationerrors.CategoryValidation, "invalid cycle config").Build()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return foundationerrors.ValidationError("invalid cycle config").
		WithCause(err).
		WithContext("fields", strings.Join(fields, ", ")).
		Build()
}

// Entity is one laundry category tracker.
type Entity struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Stage             Stage         `json:"stage"`
	WashInterval      time.Duration `json:"wash_interval"`
	WashDuration      time.Duration `json:"wash_duration"`
	DryDuration       time.Duration `json:"dry_duration"`
	LastFullCleanAt   time.Time     `json:"last_full_clean_at"`
	LastStageChangeAt time.Time     `json:"last_stage_change_at"`
	CreatedAt         time.Time     `json:"created_at"`
	CompletedCycles   int           `json:"completed_cycles"`
}

// NewEntity creates a clean entity registered at now. Durations are rounded to
// whole seconds, the resolution they are stored with.
func NewEntity(id string, cfg Config, now time.Time) Entity {
	return Entity{
		ID:                id,
		Name:              cfg.Name,
		Stage:             StageClean,
		WashInterval:      cfg.WashInterval.Round(time.Second),
		WashDuration:      cfg.WashDuration.Round(time.Second),
		DryDuration:       cfg.DryDuration.Round(time.Second),
		LastFullCleanAt:   now,
		LastStageChangeAt: now,
		CreatedAt:         now,
	}
}

// LogEntry is one append-only transition record.
type LogEntry struct {
	EntityID string    `json:"entity_id"`
	From     Stage     `json:"from"`
	To       Stage     `json:"to"`
	Cause    Cause     `json:"cause"`
	At       time.Time `json:"at"`
}
