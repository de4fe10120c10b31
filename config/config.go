// Package config loads graphview settings from the environment, with an
// optional YAML file underneath.
//
// Precedence, strongest first: GRAPHVIEW_* environment variables, the YAML
// file named by GRAPHVIEW_CONFIG, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/TFMV/graphview/physics"
)

// Environment names.
const (
	Development = "development"
	Production  = "production"
)

// Config holds every runtime setting.
type Config struct {
	Address     string `yaml:"address" validate:"required"`
	Environment string `yaml:"environment" validate:"oneof=development production"`
	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`

	Width      float64 `yaml:"width" validate:"gt=0"`
	Height     float64 `yaml:"height" validate:"gt=0"`
	Iterations int     `yaml:"iterations" validate:"min=1,max=100000"`
	Seed       uint64  `yaml:"seed"`
	Offload    bool    `yaml:"offload"`

	LargeThreshold  int     `yaml:"large_threshold" validate:"min=1"`
	EscalationBytes int64   `yaml:"escalation_bytes" validate:"min=1"`
	CullPadding     float64 `yaml:"cull_padding" validate:"min=0"`
	MinZoom         float64 `yaml:"min_zoom" validate:"gt=0"`
	MaxZoom         float64 `yaml:"max_zoom" validate:"gtfield=MinZoom"`

	// StorePath is the BadgerDB directory for backend overrides. Empty
	// keeps overrides in memory.
	StorePath  string        `yaml:"store_path"`
	SessionTTL time.Duration `yaml:"session_ttl" validate:"gt=0"`

	DataFile       string   `yaml:"data_file"`
	Watch          bool     `yaml:"watch"`
	EscalationFile string   `yaml:"escalation_file"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the built-in configuration.
func Default() Config {
	layout := physics.DefaultConfig()
	return Config{
		Address:         ":8080",
		Environment:     Development,
		LogLevel:        "info",
		Width:           layout.Width,
		Height:          layout.Height,
		Iterations:      layout.Iterations,
		LargeThreshold:  10000,
		EscalationBytes: 100 << 20,
		CullPadding:     50,
		MinZoom:         0.05,
		MaxZoom:         20,
		SessionTTL:      24 * time.Hour,
		AllowedOrigins:  []string{"*"},
	}
}

var validate = validator.New()

// Load builds the configuration from defaults, the optional YAML file and
// the environment, then validates it.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("GRAPHVIEW_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.overlayEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) overlayEnv() {
	c.Address = getEnv("GRAPHVIEW_ADDRESS", c.Address)
	c.Environment = getEnv("GRAPHVIEW_ENV", c.Environment)
	c.LogLevel = getEnv("GRAPHVIEW_LOG_LEVEL", c.LogLevel)
	c.Width = getEnvFloat("GRAPHVIEW_WIDTH", c.Width)
	c.Height = getEnvFloat("GRAPHVIEW_HEIGHT", c.Height)
	c.Iterations = getEnvInt("GRAPHVIEW_ITERATIONS", c.Iterations)
	if v := os.Getenv("GRAPHVIEW_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Seed = seed
		}
	}
	c.Offload = getEnvBool("GRAPHVIEW_OFFLOAD", c.Offload)
	c.LargeThreshold = getEnvInt("GRAPHVIEW_LARGE_THRESHOLD", c.LargeThreshold)
	c.EscalationBytes = int64(getEnvInt("GRAPHVIEW_ESCALATION_BYTES", int(c.EscalationBytes)))
	c.CullPadding = getEnvFloat("GRAPHVIEW_CULL_PADDING", c.CullPadding)
	c.MinZoom = getEnvFloat("GRAPHVIEW_MIN_ZOOM", c.MinZoom)
	c.MaxZoom = getEnvFloat("GRAPHVIEW_MAX_ZOOM", c.MaxZoom)
	c.StorePath = getEnv("GRAPHVIEW_STORE_PATH", c.StorePath)
	c.SessionTTL = getEnvDuration("GRAPHVIEW_SESSION_TTL", c.SessionTTL)
	c.DataFile = getEnv("GRAPHVIEW_DATA_FILE", c.DataFile)
	c.Watch = getEnvBool("GRAPHVIEW_WATCH", c.Watch)
	c.EscalationFile = getEnv("GRAPHVIEW_ESCALATION_FILE", c.EscalationFile)
	if v := os.Getenv("GRAPHVIEW_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
}

// Validate checks the struct tags and returns a readable error.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsProduction reports whether the production environment is selected.
func (c *Config) IsProduction() bool { return c.Environment == Production }

// Layout returns the simulation parameters for the configured canvas.
func (c *Config) Layout() physics.Config {
	cfg := physics.DefaultConfig()
	cfg.Width, cfg.Height = c.Width, c.Height
	cfg.Iterations = c.Iterations
	cfg.Seed = c.Seed
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
