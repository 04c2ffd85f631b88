package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// Configuration with environment overrides, YAML base + singleton access
// =============================================================================

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	PubSub      PubSubConfig      `yaml:"pubsub"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Timekeeping TimekeepingConfig `yaml:"timekeeping"`
	Security    SecurityConfig    `yaml:"security"`
	Storage     StorageConfig     `yaml:"storage"`
	Retention   RetentionConfig   `yaml:"retention"`
	Probes      ProbesConfig      `yaml:"probes"`
}

type ServerConfig struct {
	Port             string   `yaml:"port"`
	Env              string   `yaml:"env"`
	Interface        string   `yaml:"interface"`
	ReadTimeoutSec   int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec   int      `yaml:"idle_timeout_sec"`
	ShutdownTimeout  int      `yaml:"shutdown_timeout_sec"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

// DatabaseConfig for Supabase (Postgres + storage).
type DatabaseConfig struct {
	Supabase SupabaseConfig `yaml:"supabase"`
}

type SupabaseConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
	// PostgresDSN is a direct Postgres connection string used only by the
	// TTL cleanup job (C12), which needs bounded-batch DELETEs that
	// PostgREST cannot express. Empty disables the cleanup job.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// RedisConfig backs the idempotency store (C3); when Enabled is false the
// store falls back to its in-memory backend.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PubSubConfig for the Google Cloud Pub/Sub-backed event bus (C9 -> C10).
type PubSubConfig struct {
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
	Enabled   bool   `yaml:"enabled"`
}

// RateLimitConfig governs the sliding-window limiter applied per
// companyId:uid (§5).
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// TimekeepingConfig holds the domain constants C4/C6/C7/C8/C9 read from, all
// overridable per company via the tenant overlay in manager.go.
type TimekeepingConfig struct {
	DefaultGeofenceRadiusMeters float64 `yaml:"default_geofence_radius_meters"`
	RoundingStepHours           float64 `yaml:"rounding_step_hours"`
	RoundingMode                string  `yaml:"rounding_mode"` // nearest | up | down
	AutoClockoutHours           float64 `yaml:"auto_clockout_hours"`
	IdempotencyTTLHours         int     `yaml:"idempotency_ttl_hours"`
}

// SecurityConfig holds the App Check enforcement switch (ENFORCE_APPCHECK)
// and the ENCRYPTION_MASTER_KEY value. Both are loaded here but no other
// component in this module reads them; API-key secrets are stored as
// bcrypt hashes, not encrypted with this key.
type SecurityConfig struct {
	EnforceAppCheck     bool   `yaml:"enforce_appcheck"`
	EncryptionMasterKey string `yaml:"encryption_master_key"`
}

// StorageConfig governs signed URL issuance for invoice PDFs (C10).
type StorageConfig struct {
	Bucket                  string `yaml:"bucket"`
	SignedURLDefaultSeconds int    `yaml:"signed_url_default_seconds"`
}

// RetentionConfig governs the TTL cleanup sweep (C12).
type RetentionConfig struct {
	AuditRetentionDays       int `yaml:"audit_retention_days"`
	EstimatesStaleYears      int `yaml:"estimates_stale_years"`
	AssignmentsInactiveYears int `yaml:"assignments_inactive_years"`
	BackupsRetentionDays     int `yaml:"backups_retention_days"`
	ProbesRetentionDays      int `yaml:"probes_retention_days"`
}

// ProbesConfig governs the scheduled latency-probe runner (C13). CompanyID
// is the company the runner exercises read/write probes against; empty
// disables the scheduled runner (per-request timing via probes.Middleware
// still runs regardless).
type ProbesConfig struct {
	CompanyID      string `yaml:"company_id"`
	IntervalMinutes int   `yaml:"interval_minutes"`
}

// =============================================================================
// Singleton pattern with environment overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides on top of the
// YAML base, then fills any still-zero field with its default.
func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Env = getEnv("APP_ENV", c.Server.Env)
	c.Server.Interface = getEnv("APP_INTERFACE", c.Server.Interface)

	c.Database.Supabase.URL = getEnv("SUPABASE_URL", c.Database.Supabase.URL)
	c.Database.Supabase.ServiceKey = getEnv("SUPABASE_SERVICE_KEY", c.Database.Supabase.ServiceKey)
	c.Database.Supabase.PostgresDSN = getEnv("POSTGRES_DSN", c.Database.Supabase.PostgresDSN)

	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if v := getEnvInt("REDIS_DB", -1); v >= 0 {
		c.Redis.DB = v
	}

	c.PubSub.Enabled = getEnvBool("PUBSUB_ENABLED", c.PubSub.Enabled)
	c.PubSub.ProjectID = getEnv("GCP_PROJECT_ID", c.PubSub.ProjectID)
	c.PubSub.TopicID = getEnv("PUBSUB_TOPIC_ID", c.PubSub.TopicID)

	if v := getEnvInt("RATE_LIMIT_PER_MINUTE", 0); v > 0 {
		c.RateLimit.RequestsPerMinute = v
	}
	if v := getEnvInt("RATE_LIMIT_BURST", 0); v > 0 {
		c.RateLimit.Burst = v
	}

	if v := getEnvFloat("DEFAULT_GEOFENCE_RADIUS_METERS", 0); v > 0 {
		c.Timekeeping.DefaultGeofenceRadiusMeters = v
	}
	if v := getEnvFloat("ROUNDING_STEP_HOURS", 0); v > 0 {
		c.Timekeeping.RoundingStepHours = v
	}
	c.Timekeeping.RoundingMode = getEnv("ROUNDING_MODE", c.Timekeeping.RoundingMode)
	if v := getEnvFloat("AUTO_CLOCKOUT_HOURS", 0); v > 0 {
		c.Timekeeping.AutoClockoutHours = v
	}
	if v := getEnvInt("IDEMPOTENCY_TTL_HOURS", 0); v > 0 {
		c.Timekeeping.IdempotencyTTLHours = v
	}

	c.Security.EnforceAppCheck = getEnvBool("ENFORCE_APPCHECK", c.Security.EnforceAppCheck)
	c.Security.EncryptionMasterKey = getEnv("ENCRYPTION_MASTER_KEY", c.Security.EncryptionMasterKey)

	c.Storage.Bucket = getEnv("STORAGE_BUCKET", c.Storage.Bucket)
	if v := getEnvInt("SIGNED_URL_DEFAULT_SECONDS", 0); v > 0 {
		c.Storage.SignedURLDefaultSeconds = v
	}

	if v := getEnvInt("AUDIT_RETENTION_DAYS", 0); v > 0 {
		c.Retention.AuditRetentionDays = v
	}
	if v := getEnvInt("ESTIMATES_STALE_YEARS", 0); v > 0 {
		c.Retention.EstimatesStaleYears = v
	}
	if v := getEnvInt("ASSIGNMENTS_INACTIVE_YEARS", 0); v > 0 {
		c.Retention.AssignmentsInactiveYears = v
	}
	if v := getEnvInt("BACKUPS_RETENTION_DAYS", 0); v > 0 {
		c.Retention.BackupsRetentionDays = v
	}
	if v := getEnvInt("PROBES_RETENTION_DAYS", 0); v > 0 {
		c.Retention.ProbesRetentionDays = v
	}

	c.Probes.CompanyID = getEnv("PROBES_COMPANY_ID", c.Probes.CompanyID)
	if v := getEnvInt("PROBES_INTERVAL_MINUTES", 0); v > 0 {
		c.Probes.IntervalMinutes = v
	}

	if v := getEnvInt("SERVER_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("SERVER_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("SERVER_IDLE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.IdleTimeoutSec = v
	}
	if v := getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 0); v > 0 {
		c.Server.ShutdownTimeout = v
	}
	if origins := getEnv("CORS_ALLOW_ORIGINS", ""); origins != "" {
		c.Server.CORSAllowOrigins = splitCSV(origins)
	}

	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued fields, matching the
// constants called out in §6.6.
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if len(c.Server.CORSAllowOrigins) == 0 {
		c.Server.CORSAllowOrigins = []string{"*"}
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.PubSub.TopicID == "" {
		c.PubSub.TopicID = "fieldtime-events"
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 120
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
	if c.Timekeeping.DefaultGeofenceRadiusMeters == 0 {
		c.Timekeeping.DefaultGeofenceRadiusMeters = 150
	}
	if c.Timekeeping.RoundingStepHours == 0 {
		c.Timekeeping.RoundingStepHours = 0.25
	}
	if c.Timekeeping.RoundingMode == "" {
		c.Timekeeping.RoundingMode = "nearest"
	}
	if c.Timekeeping.AutoClockoutHours == 0 {
		c.Timekeeping.AutoClockoutHours = 12
	}
	if c.Timekeeping.IdempotencyTTLHours == 0 {
		c.Timekeeping.IdempotencyTTLHours = 48
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = "invoices"
	}
	if c.Storage.SignedURLDefaultSeconds == 0 {
		c.Storage.SignedURLDefaultSeconds = 604800
	}
	if c.Retention.AuditRetentionDays == 0 {
		c.Retention.AuditRetentionDays = 365
	}
	if c.Retention.EstimatesStaleYears == 0 {
		c.Retention.EstimatesStaleYears = 3
	}
	if c.Retention.AssignmentsInactiveYears == 0 {
		c.Retention.AssignmentsInactiveYears = 2
	}
	if c.Retention.BackupsRetentionDays == 0 {
		c.Retention.BackupsRetentionDays = 30
	}
	if c.Retention.ProbesRetentionDays == 0 {
		c.Retention.ProbesRetentionDays = 30
	}
	if c.Probes.IntervalMinutes == 0 {
		c.Probes.IntervalMinutes = 5
	}
}

// =============================================================================
// Helper functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// =============================================================================
// Convenience methods
// =============================================================================

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func (c *Config) GetPort() string {
	if c.Server.Port == "" {
		return "8080"
	}
	return c.Server.Port
}

// GetSupabaseURL returns the Supabase URL.
func (c *Config) GetSupabaseURL() string {
	return c.Database.Supabase.URL
}

// GetSupabaseKey returns the Supabase service key.
func (c *Config) GetSupabaseKey() string {
	return c.Database.Supabase.ServiceKey
}
