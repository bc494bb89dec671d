package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DBFile         string        `envconfig:"PARLEY_DB" default:"parley.db" validate:"required"`
	AdminAddr      string        `envconfig:"ADMIN_ADDR" default:"localhost:8081" validate:"required"`
	APIAddr        string        `envconfig:"API_ADDR" default:":8080" validate:"required"`
	BaseURL        string        `envconfig:"BASE_URL" default:"http://localhost:8080" validate:"required,url"`
	UploadsPath    string        `envconfig:"UPLOADS_PATH" default:"uploads" validate:"required"`
	AuthSecret     string        `envconfig:"AUTH_SECRET"`
	TokenExpiry    time.Duration `envconfig:"TOKEN_EXPIRY" default:"24h"`
	SendBuffer     int           `envconfig:"SEND_BUFFER" default:"256" validate:"gt=0"`
	PingInterval   time.Duration `envconfig:"PING_INTERVAL" default:"30s"`
	MaxUploadBytes int64         `envconfig:"MAX_UPLOAD_BYTES" default:"10485760" validate:"gt=0"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string        `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
}

// Load reads the configuration from the environment. Values from a .env file in
// the working directory are used when the variable is not already set.
func Load(cliMode bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.AuthSecret == "" && !cliMode {
		return fmt.Errorf("AUTH_SECRET is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	if c.PingInterval < 0 {
		return fmt.Errorf("PING_INTERVAL must not be negative")
	}

	if _, err := c.level(); err != nil {
		return err
	}

	return nil
}

// Logger builds the application logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := c.level()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c *Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
