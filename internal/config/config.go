package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Camera      CameraConfig      `yaml:"camera"`
	Store       StoreConfig       `yaml:"store"`
	Database    DatabaseConfig    `yaml:"database"`
	MariaDB     MariaDBConfig     `yaml:"mariadb"`
	Gallery     GalleryConfig     `yaml:"gallery"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Log         LogConfig         `yaml:"log"`
	Web         WebConfig         `yaml:"web"`
}

type EngineConfig struct {
	URL             string        `yaml:"url" validate:"required,url"`
	Timeout         time.Duration `yaml:"timeout" validate:"gt=0"`
	BreakerFailures uint32        `yaml:"breaker_failures" validate:"gt=0"` // consecutive failures before the breaker opens
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" validate:"gt=0"`
}

type CameraConfig struct {
	SnapshotURL  string        `yaml:"snapshot_url" validate:"omitempty,url"` // JPEG snapshot endpoint of the camera
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
	StaleAfter   time.Duration `yaml:"stale_after" validate:"gt=0"` // a frame older than this is not ready
}

type StoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory file badger postgres mariadb"`
	Path    string `yaml:"path"` // directory for the file and badger backends
}

type DatabaseConfig struct {
	URL          string `yaml:"url"` // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns" validate:"gt=0"`
	MaxIdleConns int    `yaml:"max_idle_conns" validate:"gte=0"`
}

type MariaDBConfig struct {
	DSN string `yaml:"dsn"` // e.g. faces:faces@tcp(mariadb:3306)/faces
}

type GalleryConfig struct {
	Key          string `yaml:"key" validate:"required"`
	SignatureDim int    `yaml:"signature_dim" validate:"gte=0"` // 0 accepts whatever the first signature has
}

type ProfileConfig struct {
	InputSize     int     `yaml:"input_size" validate:"gt=0"`
	MinConfidence float64 `yaml:"min_confidence" validate:"gte=0,lte=1"`
}

type RecognitionConfig struct {
	MatchThreshold float64       `yaml:"match_threshold" validate:"gt=0"`
	TickPeriod     time.Duration `yaml:"tick_period" validate:"gt=0"`
	Fast           ProfileConfig `yaml:"fast"`
	Accurate       ProfileConfig `yaml:"accurate"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port" validate:"gt=0,lte=65535"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS origins besides localhost
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a Go duration string such as "100ms", falling back to defaultVal.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated environment variable, dropping empty items.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var items []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Defaults returns the configuration embedded in defaults.yaml.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load returns the embedded defaults overridden by environment variables.
func Load() *Config {
	cfg := Defaults()

	cfg.Engine.URL = envString("ENGINE_URL", cfg.Engine.URL)
	cfg.Engine.Timeout = envDuration("ENGINE_TIMEOUT", cfg.Engine.Timeout)
	cfg.Engine.BreakerFailures = uint32(envInt("ENGINE_BREAKER_FAILURES", int(cfg.Engine.BreakerFailures)))
	cfg.Engine.BreakerCooldown = envDuration("ENGINE_BREAKER_COOLDOWN", cfg.Engine.BreakerCooldown)

	cfg.Camera.SnapshotURL = envString("CAMERA_SNAPSHOT_URL", cfg.Camera.SnapshotURL)
	cfg.Camera.PollInterval = envDuration("CAMERA_POLL_INTERVAL", cfg.Camera.PollInterval)
	cfg.Camera.StaleAfter = envDuration("CAMERA_STALE_AFTER", cfg.Camera.StaleAfter)

	cfg.Store.Backend = envString("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = envString("STORE_PATH", cfg.Store.Path)

	cfg.Database.URL = envString("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.MariaDB.DSN = envString("MARIADB_DSN", cfg.MariaDB.DSN)

	cfg.Gallery.Key = envString("GALLERY_KEY", cfg.Gallery.Key)
	cfg.Gallery.SignatureDim = envInt("SIGNATURE_DIM", cfg.Gallery.SignatureDim)

	cfg.Recognition.MatchThreshold = envFloat("MATCH_THRESHOLD", cfg.Recognition.MatchThreshold)
	cfg.Recognition.TickPeriod = envDuration("TICK_PERIOD", cfg.Recognition.TickPeriod)
	cfg.Recognition.Fast.InputSize = envInt("FAST_INPUT_SIZE", cfg.Recognition.Fast.InputSize)
	cfg.Recognition.Fast.MinConfidence = envFloat("FAST_MIN_CONFIDENCE", cfg.Recognition.Fast.MinConfidence)
	cfg.Recognition.Accurate.InputSize = envInt("ACCURATE_INPUT_SIZE", cfg.Recognition.Accurate.InputSize)
	cfg.Recognition.Accurate.MinConfidence = envFloat("MIN_CONFIDENCE", cfg.Recognition.Accurate.MinConfidence)

	cfg.Log.Level = envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envString("LOG_FORMAT", cfg.Log.Format)

	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	cfg.Web.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS", cfg.Web.AllowedOrigins)

	return cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the settings each store backend needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	switch c.Store.Backend {
	case "file", "badger":
		if c.Store.Path == "" {
			return fmt.Errorf("STORE_PATH is required for the %s backend", c.Store.Backend)
		}
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	case "mariadb":
		if c.MariaDB.DSN == "" {
			return errors.New("MARIADB_DSN is required for the mariadb backend")
		}
	}
	return nil
}
