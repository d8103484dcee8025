package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenancy/pkg/orgs"
	"github.com/platinummonkey/tenancy/pkg/sso"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Equal(t, orgs.DefaultSweepSchedule, cfg.Invitations.SweepSchedule)
	assert.Equal(t, orgs.DefaultBlockedDomains, cfg.Invitations.BlockedDomains)
	assert.Equal(t, 10000, cfg.RoleCache.Authorizer().Size)
	assert.Empty(t, cfg.SSO.Providers)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("TENANCY_PORT", "9000")
	t.Setenv("TENANCY_DATABASE_DRIVER", "postgres")
	t.Setenv("TENANCY_DATABASE_URL", "postgres://localhost/tenancy")
	t.Setenv("TENANCY_DATABASE_MAX_CONNS", "5")
	t.Setenv("TENANCY_DATABASE_MIN_CONNS", "1")
	t.Setenv("TENANCY_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TENANCY_INVITATION_TTL", "48h")
	t.Setenv("TENANCY_BLOCKED_DOMAINS", "spam.example, junk.example ,")
	t.Setenv("TENANCY_ROLE_CACHE_TTL", "1m")
	t.Setenv("TENANCY_OTEL_ENABLED", "1")
	t.Setenv("TENANCY_LOG_LEVEL", "debug")
	t.Setenv("TENANCY_OTEL_SAMPLE_RATIO", "0.5")
	t.Setenv("TENANCY_AUDIT_DIR", "/var/log/tenancy")
	t.Setenv("TENANCY_AUDIT_MAX_FILES", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	conn := cfg.Database.Connection()
	assert.Equal(t, "postgres://localhost/tenancy", conn.URL)
	assert.Equal(t, 5, conn.MaxConns)
	assert.Equal(t, 1, conn.MinConns)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 48*time.Hour, cfg.Invitations.TTL)
	assert.Equal(t, []string{"spam.example", "junk.example"}, cfg.Invitations.BlockedDomains)
	assert.Equal(t, time.Minute, cfg.RoleCache.Authorizer().TTL)
	assert.True(t, cfg.Observability.OTel().Enabled)
	assert.Equal(t, 0.5, cfg.Observability.OTel().SampleRatio)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	auditCfg := cfg.Audit.FileLogger()
	assert.Equal(t, "/var/log/tenancy", auditCfg.Dir)
	assert.Equal(t, 3, auditCfg.MaxFiles)
	assert.Equal(t, int64(100*1024*1024), auditCfg.MaxSize)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenancy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7000"
  shutdown_timeout: 5s
database:
  driver: postgres
  url: postgres://db/tenancy
invitations:
  ttl: 72h
  sweep_schedule: "@every 30m"
sso:
  providers:
    - name: corp
      type: oidc
      trust_email: true
      oidc:
        client_id: id
        client_secret: secret
        issuer_url: https://login.corp.example
        redirect_url: https://tenancy.corp.example/callback
        scopes: [openid, email]
      attribute_mapping:
        external_id: sub
        email: email
`), 0o600))

	t.Setenv(FileEnv, path)
	t.Setenv("TENANCY_PORT", "7100")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7100", cfg.Server.Port, "environment overrides the file")
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "keys absent from the file keep defaults")
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 72*time.Hour, cfg.Invitations.TTL)
	assert.Equal(t, "@every 30m", cfg.Invitations.SweepSchedule)

	require.Len(t, cfg.SSO.Providers, 1)
	p := cfg.SSO.Providers[0]
	assert.Equal(t, sso.ProviderTypeOIDC, p.Type)
	assert.True(t, p.TrustEmail)
	assert.Equal(t, "secret", p.OIDC.ClientSecret)
	assert.Equal(t, "sub", p.AttributeMapping.ExternalID)
}

func TestLoadConfig_FileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv(FileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("unknown key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tenancy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  prot: \"1\"\n"), 0o600))
		t.Setenv(FileEnv, path)
		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tenancy.yaml")
		require.NoError(t, os.WriteFile(path, nil, 0o600))
		t.Setenv(FileEnv, path)
		_, err := LoadConfig()
		require.NoError(t, err)
	})
}

func TestLoadConfig_SSOPresets(t *testing.T) {
	t.Setenv("TENANCY_SSO_PRESETS", "google,github")
	t.Setenv("TENANCY_SSO_GOOGLE_CLIENT_ID", "google-id")
	t.Setenv("TENANCY_SSO_GOOGLE_CLIENT_SECRET", "google-secret")
	t.Setenv("TENANCY_SSO_GITHUB_CLIENT_ID", "github-id")
	t.Setenv("TENANCY_SSO_GITHUB_REDIRECT_URL", "https://tenancy.example.com/cb")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Len(t, cfg.SSO.Providers, 2)

	google := cfg.SSO.Providers[0]
	assert.Equal(t, "google", google.Name)
	assert.Equal(t, "google-id", google.OIDC.ClientID)
	assert.Equal(t, "google-secret", google.OIDC.ClientSecret)

	github := cfg.SSO.Providers[1]
	assert.Equal(t, "github-id", github.OAuth2.ClientID)
	assert.Equal(t, "https://tenancy.example.com/cb", github.OAuth2.RedirectURL)

	t.Setenv("TENANCY_SSO_PRESETS", "myspace")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }, errorMsg: "server port is required"},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "sqlite" }, errorMsg: "invalid database driver"},
		{name: "postgres without url", mutate: func(c *Config) { c.Database.Driver = DriverPostgres }, errorMsg: "database URL is required"},
		{
			name: "min conns above max",
			mutate: func(c *Config) {
				c.Database.Driver = DriverPostgres
				c.Database.URL = "postgres://db"
				c.Database.MinConns = 50
			},
			errorMsg: "exceeds max conns",
		},
		{name: "redis without key", mutate: func(c *Config) { c.Redis.URL = "redis://r"; c.Redis.EventsKey = "" }, errorMsg: "redis events key is required"},
		{name: "zero ttl", mutate: func(c *Config) { c.Invitations.TTL = 0 }, errorMsg: "invitation TTL must be positive"},
		{name: "bad schedule", mutate: func(c *Config) { c.Invitations.SweepSchedule = "every hour" }, errorMsg: "invalid invitation sweep schedule"},
		{name: "zero cache", mutate: func(c *Config) { c.RoleCache.Size = 0 }, errorMsg: "role cache size must be positive"},
		{name: "audit without retention", mutate: func(c *Config) { c.Audit.Dir = "/tmp/audit"; c.Audit.MaxFiles = 0 }, errorMsg: "audit max size and max files must be positive"},
		{name: "otel sample ratio", mutate: func(c *Config) { c.Observability.OTelEnabled = true; c.Observability.OTelSampleRatio = 2 }, errorMsg: "sample ratio must be between 0 and 1"},
		{name: "otel without endpoint", mutate: func(c *Config) { c.Observability.OTelEnabled = true; c.Observability.OTelEndpoint = "" }, errorMsg: "endpoint is required"},
		{
			name: "duplicate provider",
			mutate: func(c *Config) {
				c.SSO.Providers = []sso.ProviderConfig{{Name: "a", Type: sso.ProviderTypeOIDC}, {Name: "a", Type: sso.ProviderTypeOIDC}}
			},
			errorMsg: "duplicate SSO provider",
		},
		{
			name:     "provider type",
			mutate:   func(c *Config) { c.SSO.Providers = []sso.ProviderConfig{{Name: "a", Type: "saml"}} },
			errorMsg: "invalid type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_BOOL", "TRUE")
	t.Setenv("TEST_INT", "notanint")
	t.Setenv("TEST_DURATION", "90s")

	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.True(t, getEnvBool("TEST_BOOL_NOT_SET", true))
	assert.Equal(t, 7, getEnvInt("TEST_INT", 7))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, []string{"x"}, getEnvList("TEST_LIST_NOT_SET", []string{"x"}))
}
