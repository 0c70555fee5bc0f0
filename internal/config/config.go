package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config defines station and gateway configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	DB      DBConfig      `yaml:"db"`
	Log     LogConfig     `yaml:"log"`
	Gateway GatewayConfig `yaml:"gateway"`
	Station StationConfig `yaml:"station"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DBConfig is the gateway's database.
type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

type GatewayConfig struct {
	AllowedOrigin        string          `yaml:"allowed_origin"`
	CORSMaxAge           time.Duration   `yaml:"cors_max_age"`
	RateLimit            RateLimitConfig `yaml:"rate_limit"`
	Auth                 AuthConfig      `yaml:"auth"`
	MaxBodyBytes         int64           `yaml:"max_body_bytes"`
	MaxEntriesPerRequest int             `yaml:"max_entries_per_request"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// StationConfig is the device side.
type StationConfig struct {
	DBPath      string        `yaml:"db_path"`
	DeviceID    string        `yaml:"device_id"`
	DeviceName  string        `yaml:"device_name"`
	RemoteURL   string        `yaml:"remote_url"`
	Token       string        `yaml:"token"`
	FlushDelay  time.Duration `yaml:"flush_delay"`
	SyncTimeout time.Duration `yaml:"sync_timeout"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "skitimer-gateway.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Gateway: GatewayConfig{
			AllowedOrigin: "http://localhost:5173",
			CORSMaxAge:    24 * time.Hour,
			RateLimit: RateLimitConfig{
				Requests: 100,
				Window:   time.Minute,
			},
			Auth:                 AuthConfig{Enabled: true},
			MaxBodyBytes:         1 << 20,
			MaxEntriesPerRequest: 500,
		},
		Station: StationConfig{
			DBPath:      "skitimer-station.db",
			FlushDelay:  400 * time.Millisecond,
			SyncTimeout: 30 * time.Second,
		},
	}
}

// Load reads configuration: defaults, then a .env file in the working
// directory (a missing file is fine), then the YAML file named by
// SKITIMER_CONFIG_PATH, then SKITIMER_* environment variables.
func Load() (Config, error) {
	return load(".env")
}

func load(dotenv string) (Config, error) {
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", dotenv, err)
	}

	cfg := Default()

	if path := os.Getenv("SKITIMER_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	envString("SKITIMER_SERVER_HOST", &cfg.Server.Host)
	envString("SKITIMER_DB_PATH", &cfg.DB.Path)
	envString("SKITIMER_LOG_LEVEL", &cfg.Log.Level)
	envString("SKITIMER_LOG_PATH", &cfg.Log.Path)
	envString("SKITIMER_ALLOWED_ORIGIN", &cfg.Gateway.AllowedOrigin)
	envString("SKITIMER_STATION_DB_PATH", &cfg.Station.DBPath)
	envString("SKITIMER_DEVICE_ID", &cfg.Station.DeviceID)
	envString("SKITIMER_DEVICE_NAME", &cfg.Station.DeviceName)
	envString("SKITIMER_REMOTE_URL", &cfg.Station.RemoteURL)
	envString("SKITIMER_TOKEN", &cfg.Station.Token)

	for _, err := range []error{
		envInt("SKITIMER_SERVER_PORT", &cfg.Server.Port),
		envInt("SKITIMER_RATE_LIMIT", &cfg.Gateway.RateLimit.Requests),
		envInt("SKITIMER_MAX_ENTRIES_PER_REQUEST", &cfg.Gateway.MaxEntriesPerRequest),
		envInt64("SKITIMER_MAX_BODY_BYTES", &cfg.Gateway.MaxBodyBytes),
		envBool("SKITIMER_AUTH_ENABLED", &cfg.Gateway.Auth.Enabled),
		envDuration("SKITIMER_RATE_WINDOW", &cfg.Gateway.RateLimit.Window),
		envDuration("SKITIMER_CORS_MAX_AGE", &cfg.Gateway.CORSMaxAge),
		envDuration("SKITIMER_FLUSH_DELAY", &cfg.Station.FlushDelay),
		envDuration("SKITIMER_SYNC_TIMEOUT", &cfg.Station.SyncTimeout),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}

func envInt64(name string, dst *int64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}

func envBool(name string, dst *bool) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = b
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
