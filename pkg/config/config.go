package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/tenancy/pkg/audit"
	"github.com/platinummonkey/tenancy/pkg/observability"
	"github.com/platinummonkey/tenancy/pkg/orgs"
	"github.com/platinummonkey/tenancy/pkg/rbac"
	"github.com/platinummonkey/tenancy/pkg/sso"
	"github.com/platinummonkey/tenancy/pkg/storage/postgres"
)

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// FileEnv names the variable pointing at an optional YAML configuration file
const FileEnv = "TENANCY_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Observability ObservabilityConfig `yaml:"observability"`
	Invitations   InvitationConfig    `yaml:"invitations"`
	RoleCache     RoleCacheConfig     `yaml:"role_cache"`
	SSO           SSOConfig           `yaml:"sso"`
	Audit         AuditConfig         `yaml:"audit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// DatabaseConfig selects and configures the entity store
type DatabaseConfig struct {
	Driver      string        `yaml:"driver"`
	URL         string        `yaml:"url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	AutoMigrate bool          `yaml:"auto_migrate"`
}

// Connection returns the PostgreSQL pool settings
func (c DatabaseConfig) Connection() postgres.ConnectionConfig {
	return postgres.ConnectionConfig{
		URL:         c.URL,
		MaxConns:    c.MaxConns,
		MinConns:    c.MinConns,
		Timeout:     c.Timeout,
		MaxLifetime: c.MaxLifetime,
		MaxIdleTime: c.MaxIdleTime,
	}
}

// RedisConfig configures the event queue. An empty URL disables it.
type RedisConfig struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	EventsKey string `yaml:"events_key"`
}

// Enabled reports whether events are forwarded to Redis
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel           string  `yaml:"log_level"`
	MetricsEnabled     bool    `yaml:"metrics_enabled"`
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// OTel returns the OpenTelemetry exporter settings
func (c ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.OTelEnabled,
		Endpoint:       c.OTelEndpoint,
		ServiceName:    c.OTelServiceName,
		ServiceVersion: c.OTelServiceVersion,
		Insecure:       c.OTelInsecure,
		SampleRatio:    c.OTelSampleRatio,
	}
}

// InvitationConfig configures the invitation workflow
type InvitationConfig struct {
	TTL            time.Duration `yaml:"ttl"`
	SweepSchedule  string        `yaml:"sweep_schedule"`
	BlockedDomains []string      `yaml:"blocked_domains"`
}

// RoleCacheConfig configures the effective role cache
type RoleCacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// Authorizer returns the cache settings of rbac.Authorizer
func (c RoleCacheConfig) Authorizer() rbac.CacheConfig {
	return rbac.CacheConfig{Size: c.Size, TTL: c.TTL}
}

// AuditConfig configures the audit trail. Events go to the application log
// unless Dir is set.
type AuditConfig struct {
	Dir      string `yaml:"dir"`
	MaxSize  int64  `yaml:"max_size"`
	MaxFiles int    `yaml:"max_files"`
}

// FileLogger returns the settings of audit.FileLogger
func (c AuditConfig) FileLogger() audit.FileLoggerConfig {
	return audit.FileLoggerConfig{Dir: c.Dir, MaxSize: c.MaxSize, MaxFiles: c.MaxFiles}
}

// SSOConfig lists the OAuth providers users can log in with
type SSOConfig struct {
	Providers []sso.ProviderConfig `yaml:"providers"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	cache := rbac.DefaultCacheConfig()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Database: DatabaseConfig{
			Driver:      DriverMemory,
			MaxConns:    20,
			MinConns:    2,
			Timeout:     10 * time.Second,
			MaxLifetime: time.Hour,
			MaxIdleTime: 10 * time.Minute,
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			PoolSize:  10,
			EventsKey: "tenancy:events",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "tenancy",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
		Invitations: InvitationConfig{
			TTL:            30 * 24 * time.Hour,
			SweepSchedule:  orgs.DefaultSweepSchedule,
			BlockedDomains: append([]string(nil), orgs.DefaultBlockedDomains...),
		},
		RoleCache: RoleCacheConfig{
			Size: cache.Size,
			TTL:  cache.TTL,
		},
		Audit: AuditConfig{
			MaxSize:  100 * 1024 * 1024,
			MaxFiles: 10,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by TENANCY_CONFIG_FILE and TENANCY_* environment variables, in that
// order of precedence from lowest to highest.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	s := &cfg.Server
	s.Host = getEnv("TENANCY_HOST", s.Host)
	s.Port = getEnv("TENANCY_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("TENANCY_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("TENANCY_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("TENANCY_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("TENANCY_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxBodyBytes = getEnvInt64("TENANCY_MAX_BODY_BYTES", s.MaxBodyBytes)

	d := &cfg.Database
	d.Driver = getEnv("TENANCY_DATABASE_DRIVER", d.Driver)
	d.URL = getEnv("TENANCY_DATABASE_URL", d.URL)
	d.MaxConns = getEnvInt("TENANCY_DATABASE_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvInt("TENANCY_DATABASE_MIN_CONNS", d.MinConns)
	d.Timeout = getEnvDuration("TENANCY_DATABASE_TIMEOUT", d.Timeout)
	d.MaxLifetime = getEnvDuration("TENANCY_DATABASE_MAX_LIFETIME", d.MaxLifetime)
	d.MaxIdleTime = getEnvDuration("TENANCY_DATABASE_MAX_IDLE_TIME", d.MaxIdleTime)
	d.AutoMigrate = getEnvBool("TENANCY_DATABASE_AUTO_MIGRATE", d.AutoMigrate)

	r := &cfg.Redis
	r.URL = getEnv("TENANCY_REDIS_URL", r.URL)
	r.Password = getEnv("TENANCY_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("TENANCY_REDIS_DB", r.DB)
	r.PoolSize = getEnvInt("TENANCY_REDIS_POOL_SIZE", r.PoolSize)
	r.EventsKey = getEnv("TENANCY_REDIS_EVENTS_KEY", r.EventsKey)

	o := &cfg.Observability
	o.LogLevel = getEnv("TENANCY_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("TENANCY_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("TENANCY_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("TENANCY_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("TENANCY_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("TENANCY_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("TENANCY_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("TENANCY_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)

	i := &cfg.Invitations
	i.TTL = getEnvDuration("TENANCY_INVITATION_TTL", i.TTL)
	i.SweepSchedule = getEnv("TENANCY_INVITATION_SWEEP_SCHEDULE", i.SweepSchedule)
	i.BlockedDomains = getEnvList("TENANCY_BLOCKED_DOMAINS", i.BlockedDomains)

	c := &cfg.RoleCache
	c.Size = getEnvInt("TENANCY_ROLE_CACHE_SIZE", c.Size)
	c.TTL = getEnvDuration("TENANCY_ROLE_CACHE_TTL", c.TTL)

	a := &cfg.Audit
	a.Dir = getEnv("TENANCY_AUDIT_DIR", a.Dir)
	a.MaxSize = getEnvInt64("TENANCY_AUDIT_MAX_SIZE", a.MaxSize)
	a.MaxFiles = getEnvInt("TENANCY_AUDIT_MAX_FILES", a.MaxFiles)

	return applySSOPresets(cfg)
}

// applySSOPresets adds the providers listed in TENANCY_SSO_PRESETS, taking
// credentials from TENANCY_SSO_<NAME>_CLIENT_ID, _CLIENT_SECRET and _REDIRECT_URL
func applySSOPresets(cfg *Config) error {
	for _, name := range getEnvList("TENANCY_SSO_PRESETS", nil) {
		preset, err := sso.GetPresetConfig(name)
		if err != nil {
			return err
		}
		prefix := "TENANCY_SSO_" + strings.ToUpper(name) + "_"
		clientID := os.Getenv(prefix + "CLIENT_ID")
		clientSecret := os.Getenv(prefix + "CLIENT_SECRET")
		redirectURL := os.Getenv(prefix + "REDIRECT_URL")

		switch preset.Type {
		case sso.ProviderTypeOIDC:
			preset.OIDC.ClientID = clientID
			preset.OIDC.ClientSecret = clientSecret
			preset.OIDC.RedirectURL = redirectURL
		case sso.ProviderTypeOAuth2:
			preset.OAuth2.ClientID = clientID
			preset.OAuth2.ClientSecret = clientSecret
			preset.OAuth2.RedirectURL = redirectURL
		}
		cfg.SSO.Providers = append(cfg.SSO.Providers, *preset)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}

	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database URL is required for postgres storage")
		}
		if c.Database.MaxConns <= 0 {
			return fmt.Errorf("database max conns must be positive")
		}
		if c.Database.MinConns > c.Database.MaxConns {
			return fmt.Errorf("database min conns (%d) exceeds max conns (%d)", c.Database.MinConns, c.Database.MaxConns)
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be memory or postgres)", c.Database.Driver)
	}

	if c.Redis.Enabled() && c.Redis.EventsKey == "" {
		return fmt.Errorf("redis events key is required when redis is enabled")
	}

	if c.Invitations.TTL <= 0 {
		return fmt.Errorf("invitation TTL must be positive")
	}
	if _, err := cron.ParseStandard(c.Invitations.SweepSchedule); err != nil {
		return fmt.Errorf("invalid invitation sweep schedule %q: %w", c.Invitations.SweepSchedule, err)
	}

	if c.RoleCache.Size <= 0 {
		return fmt.Errorf("role cache size must be positive")
	}

	if c.Audit.Dir != "" && (c.Audit.MaxSize <= 0 || c.Audit.MaxFiles <= 0) {
		return fmt.Errorf("audit max size and max files must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	seen := make(map[string]bool, len(c.SSO.Providers))
	for _, p := range c.SSO.Providers {
		if p.Name == "" {
			return fmt.Errorf("SSO provider name is required")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate SSO provider: %s", p.Name)
		}
		seen[p.Name] = true
		if p.Type != sso.ProviderTypeOAuth2 && p.Type != sso.ProviderTypeOIDC {
			return fmt.Errorf("SSO provider %s has invalid type %q", p.Name, p.Type)
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
