// Package config loads gateway settings: built-in defaults, then an optional
// YAML file, then CRISISCREW_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the YAML file path.
const EnvConfigPath = "CRISISCREW_CONFIG"

// Store backends for approvals.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Approvals ApprovalsConfig `yaml:"approvals"`
	Redline   RedlineConfig   `yaml:"redline"`
	Log       LogConfig       `yaml:"log"`
}

type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	RateBurst         int           `yaml:"rate_burst"`
	RatePerSecond     int           `yaml:"rate_per_second"`
}

// GRPCConfig configures the health server; an empty Addr disables it.
type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig also enables idempotency keys when Addr is set.
type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	KeyPrefix      string        `yaml:"key_prefix"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

type AuthConfig struct {
	Secret string `yaml:"secret"`
	// IssueTokens exposes POST /v1/auth/token for development.
	IssueTokens bool          `yaml:"issue_tokens"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

type ApprovalsConfig struct {
	Store              string `yaml:"store"`
	ForbidSelfApproval bool   `yaml:"forbid_self_approval"`
}

type RedlineConfig struct {
	// TermsFile replaces the built-in term table when set.
	TermsFile string `yaml:"terms_file"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxBodyBytes:      1 << 20,
			RateBurst:         20,
			RatePerSecond:     10,
		},
		GRPC:     GRPCConfig{Addr: ":9090"},
		Postgres: PostgresConfig{MaxOpenConns: 10, MaxIdleConns: 10, ConnMaxLifetime: 30 * time.Minute},
		Redis:    RedisConfig{KeyPrefix: "crisiscrew", IdempotencyTTL: 24 * time.Hour},
		Auth:     AuthConfig{TokenTTL: 15 * time.Minute},
		Approvals: ApprovalsConfig{
			Store: StoreMemory,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration. An empty path falls back to
// $CRISISCREW_CONFIG; no file at all is fine.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	setString(&c.HTTP.Addr, "CRISISCREW_HTTP_ADDR")
	errs = append(errs,
		setInt64(&c.HTTP.MaxBodyBytes, "CRISISCREW_HTTP_MAX_BODY_BYTES"),
		setInt(&c.HTTP.RateBurst, "CRISISCREW_HTTP_RATE_BURST"),
		setInt(&c.HTTP.RatePerSecond, "CRISISCREW_HTTP_RATE_PER_SECOND"),
		setDuration(&c.HTTP.ShutdownTimeout, "CRISISCREW_HTTP_SHUTDOWN_TIMEOUT"),
	)
	setString(&c.GRPC.Addr, "CRISISCREW_GRPC_ADDR")

	setString(&c.Postgres.DSN, "CRISISCREW_PG_DSN")
	errs = append(errs, setInt(&c.Postgres.MaxOpenConns, "CRISISCREW_PG_MAX_OPEN_CONNS"))

	setString(&c.Redis.Addr, "CRISISCREW_REDIS_ADDR")
	setString(&c.Redis.Password, "CRISISCREW_REDIS_PASSWORD")
	setString(&c.Redis.KeyPrefix, "CRISISCREW_REDIS_KEY_PREFIX")
	errs = append(errs,
		setInt(&c.Redis.DB, "CRISISCREW_REDIS_DB"),
		setDuration(&c.Redis.IdempotencyTTL, "CRISISCREW_REDIS_IDEMPOTENCY_TTL"),
	)

	setString(&c.Auth.Secret, "CRISISCREW_AUTH_SECRET")
	errs = append(errs,
		setBool(&c.Auth.IssueTokens, "CRISISCREW_AUTH_ISSUE_TOKENS"),
		setDuration(&c.Auth.TokenTTL, "CRISISCREW_AUTH_TOKEN_TTL"),
	)

	setString(&c.Approvals.Store, "CRISISCREW_APPROVALS_STORE")
	errs = append(errs, setBool(&c.Approvals.ForbidSelfApproval, "CRISISCREW_APPROVALS_FORBID_SELF_APPROVAL"))

	setString(&c.Redline.TermsFile, "CRISISCREW_REDLINE_TERMS_FILE")
	setString(&c.Log.Level, "CRISISCREW_LOG_LEVEL")
	return errors.Join(errs...)
}

// Validate rejects settings that cannot work together.
func (c Config) Validate() error {
	var errs []error
	switch c.ApprovalStore() {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("approvals.store=postgres requires postgres.dsn"))
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("approvals.store=redis requires redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("approvals.store: unknown backend %q", c.Approvals.Store))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("http.max_body_bytes must be positive"))
	}
	if c.HTTP.RateBurst <= 0 || c.HTTP.RatePerSecond <= 0 {
		errs = append(errs, errors.New("http rate limit must be positive"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

// ApprovalStore returns the normalized approvals backend name.
func (c Config) ApprovalStore() string {
	return strings.ToLower(strings.TrimSpace(c.Approvals.Store))
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
