package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// ErrInvalidConfig is returned when the environment holds unusable values.
var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New()

type Config struct {
	Addr     string `env:"ADDR" envDefault:":8080" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error fatal"`

	DebounceInterval time.Duration `env:"DEBOUNCE_INTERVAL" envDefault:"500ms" validate:"gt=0"`
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"200ms" validate:"gt=0"`
	LivenessWindow   time.Duration `env:"LIVENESS_WINDOW" envDefault:"3s" validate:"gt=0"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"10s" validate:"gt=0"`

	// DatabaseURL enables the snapshot archive when set.
	DatabaseURL     string        `env:"DATABASE_URL"`
	ArchiveInterval time.Duration `env:"ARCHIVE_INTERVAL" envDefault:"10s" validate:"gt=0"`

	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"*" validate:"required"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	// Runs before the logger is configured.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables from OS")
	}
	return Parse()
}

// Parse builds a Config from the current environment.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error getting env configs: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
