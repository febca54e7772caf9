// AngelaMos | 2026
// config.go

package config

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App        AppConfig        `koanf:"app"`
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	JWT        JWTConfig        `koanf:"jwt"`
	Encryption EncryptionConfig `koanf:"encryption"`
	OAuth      OAuthConfig      `koanf:"oauth"`
	TOTP       TOTPConfig       `koanf:"totp"`
	Gateway    GatewayConfig    `koanf:"gateway"`
	N8N        N8NConfig        `koanf:"n8n"`
	Quota      QuotaConfig      `koanf:"quota"`
	Usage      UsageConfig      `koanf:"usage"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	CORS       CORSConfig       `koanf:"cors"`
	Log        LogConfig        `koanf:"log"`
	Otel       OtelConfig       `koanf:"otel"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `koanf:"driver"`
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

type JWTConfig struct {
	Secret    string `koanf:"secret"`
	ExpiresIn string `koanf:"expires_in"`
	Issuer    string `koanf:"issuer"`
	Audience  string `koanf:"audience"`
}

// EncryptionConfig holds the key sealing n8n credentials. AllowInsecureDevKey
// permits the fixed development key, and only in the development environment.
type EncryptionConfig struct {
	Key                 string `koanf:"key"`
	AllowInsecureDevKey bool   `koanf:"allow_insecure_dev_key"`
}

type OAuthConfig struct {
	FrontendURL string              `koanf:"frontend_url"`
	Timeout     time.Duration       `koanf:"timeout"`
	StateTTL    time.Duration       `koanf:"state_ttl"`
	GitHub      OAuthProviderConfig `koanf:"github"`
	Google      OAuthProviderConfig `koanf:"google"`
}

type OAuthProviderConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	CallbackURL  string `koanf:"callback_url"`
}

func (p OAuthProviderConfig) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type TOTPConfig struct {
	Issuer string `koanf:"issuer"`
}

type GatewayConfig struct {
	ServiceToken    string        `koanf:"service_token"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes"`
	DispatchTimeout time.Duration `koanf:"dispatch_timeout"`
}

type N8NConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

type QuotaConfig struct {
	Backend          string        `koanf:"backend"`
	DefaultPerMinute int           `koanf:"default_per_minute"`
	DefaultDaily     int           `koanf:"default_daily"`
	RedisPrefix      string        `koanf:"redis_prefix"`
	FallbackCooldown time.Duration `koanf:"fallback_cooldown"`
}

type UsageConfig struct {
	Workers    int `koanf:"workers"`
	BufferSize int `koanf:"buffer_size"`
}

type RateLimitConfig struct {
	Requests       int           `koanf:"requests"`
	Window         time.Duration `koanf:"window"`
	Burst          int           `koanf:"burst"`
	TrustedProxies []string      `koanf:"trusted_proxies"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

var (
	cfg  *Config
	once sync.Once
)

func Load(configPath string) (*Config, error) {
	var loadErr error

	once.Do(func() {
		cfg, loadErr = load(configPath)
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call Load() first")
	}
	return cfg
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "n8n MCP Gateway",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "60s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"database.driver":             "postgres",
		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"database.auto_migrate":       true,

		"redis.pool_size":      10,
		"redis.min_idle_conns": 2,

		"jwt.expires_in": "7d",
		"jwt.issuer":     "n8n-mcp-gateway",
		"jwt.audience":   "n8n-mcp-gateway-api",

		"oauth.frontend_url": "http://localhost:3000",
		"oauth.timeout":      "10s",
		"oauth.state_ttl":    "10m",

		"totp.issuer": "cl-n8n-mcp",

		"gateway.max_body_bytes":   1 << 20,
		"gateway.dispatch_timeout": "60s",

		"n8n.timeout": "15s",

		"quota.backend":            "memory",
		"quota.default_per_minute": 50,
		"quota.default_daily":      100,
		"quota.redis_prefix":       "quota:",
		"quota.fallback_cooldown":  "30s",

		"usage.workers":     4,
		"usage.buffer_size": 1024,

		"rate_limit.requests": 20,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    5,

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"PATCH",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
			"X-N8N-Key",
			"X-N8N-URL",
			"X-Instance-ID",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "n8n-mcp-gateway",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_DRIVER":             "database.driver",
	"DATABASE_URL":                "database.url",
	"DATABASE_AUTO_MIGRATE":       "database.auto_migrate",
	"REDIS_URL":                   "redis.url",
	"ENVIRONMENT":                 "app.environment",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"JWT_SECRET":                  "jwt.secret",
	"JWT_EXPIRES_IN":              "jwt.expires_in",
	"JWT_ISSUER":                  "jwt.issuer",
	"JWT_AUDIENCE":                "jwt.audience",
	"ENCRYPTION_KEY":              "encryption.key",
	"ALLOW_INSECURE_DEV_KEY":      "encryption.allow_insecure_dev_key",
	"FRONTEND_URL":                "oauth.frontend_url",
	"OAUTH_TIMEOUT":               "oauth.timeout",
	"GITHUB_CLIENT_ID":            "oauth.github.client_id",
	"GITHUB_CLIENT_SECRET":        "oauth.github.client_secret",
	"GITHUB_CALLBACK_URL":         "oauth.github.callback_url",
	"GOOGLE_CLIENT_ID":            "oauth.google.client_id",
	"GOOGLE_CLIENT_SECRET":        "oauth.google.client_secret",
	"GOOGLE_CALLBACK_URL":         "oauth.google.callback_url",
	"TOTP_ISSUER":                 "totp.issuer",
	"AUTH_TOKEN":                  "gateway.service_token",
	"N8N_TIMEOUT":                 "n8n.timeout",
	"QUOTA_BACKEND":               "quota.backend",
	"RATE_LIMIT_PER_MINUTE":       "quota.default_per_minute",
	"DAILY_LIMIT":                 "quota.default_daily",
	"AUTH_RATE_LIMIT_REQUESTS":    "rate_limit.requests",
	"AUTH_RATE_LIMIT_WINDOW":      "rate_limit.window",
	"AUTH_RATE_LIMIT_BURST":       "rate_limit.burst",
	"TRUSTED_PROXIES":             "rate_limit.trusted_proxies",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

var ttlPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseTTL converts a duration string such as "30s", "15m", "12h" or "7d".
func ParseTTL(s string) (time.Duration, error) {
	m := ttlPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q: expected <number><s|m|h|d>", s)
	}

	var n int64
	if _, err := fmt.Sscan(m[1], &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	unit := map[string]time.Duration{
		"s": time.Second,
		"m": time.Minute,
		"h": time.Hour,
		"d": 24 * time.Hour,
	}[m[2]]

	if n > int64(math.MaxInt64/unit) {
		return 0, fmt.Errorf("invalid duration %q: too large", s)
	}

	return time.Duration(n) * unit, nil
}

func validate(c *Config) error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
		if c.IsProduction() {
			return fmt.Errorf("database.driver=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.IsProduction() && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes in production")
	}

	if _, err := ParseTTL(c.JWT.ExpiresIn); err != nil {
		return fmt.Errorf("JWT_EXPIRES_IN: %w", err)
	}

	if c.Encryption.Key == "" {
		if !c.Encryption.AllowInsecureDevKey {
			return fmt.Errorf("ENCRYPTION_KEY is required")
		}
		if !c.IsDevelopment() {
			return fmt.Errorf(
				"ALLOW_INSECURE_DEV_KEY is only honoured when ENVIRONMENT=development, got %q",
				c.App.Environment,
			)
		}
	}

	switch c.Quota.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled() {
			return fmt.Errorf("quota.backend=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unsupported quota.backend %q", c.Quota.Backend)
	}

	if c.Quota.DefaultPerMinute <= 0 || c.Quota.DefaultDaily <= 0 {
		return fmt.Errorf("quota defaults must be positive")
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.IsProduction() {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

var ErrNoEncryptionKey = errors.New("encryption key not configured")

// EncryptionSecret returns the configured key. The fixed development key is
// returned, with insecure=true, only when explicitly allowed in development.
func (c *Config) EncryptionSecret() (secret string, insecure bool, err error) {
	if c.Encryption.Key != "" {
		return c.Encryption.Key, false, nil
	}
	if !c.Encryption.AllowInsecureDevKey || !c.IsDevelopment() {
		return "", false, ErrNoEncryptionKey
	}
	return "development-key-do-not-use-in-production", true, nil
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
