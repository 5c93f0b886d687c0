package app

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	GridPaths []string `validate:"required,min=1,dive,required"` // .hcl files or directories
	EnvFiles  []string `validate:"dive,required"`                // dotenv files feeding env.*

	LogFormat string `validate:"required,oneof=text json pretty"`
	LogLevel  string `validate:"required,oneof=debug info warn error"`
	LogFile   string

	// Timeout and Window override the grid's scheduler block when non-zero.
	Timeout       time.Duration `validate:"gte=0"`
	Window        int           `validate:"gte=0"`
	ShutdownGrace time.Duration `validate:"gte=0"`

	Verbose bool
	// DryRun validates the grid and lists its jobs without running them.
	DryRun bool
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
