package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the negotiation engine.
type Config struct {
	General     GeneralConfig     `mapstructure:"general"`
	Server      ServerConfig      `mapstructure:"server"`
	Negotiation NegotiationConfig `mapstructure:"negotiation"`
	Research    ResearchConfig    `mapstructure:"research"`
	Pricing     PricingConfig     `mapstructure:"pricing"`
	Booking     BookingConfig     `mapstructure:"booking"`
	Capability  CapabilityConfig  `mapstructure:"capability"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Storage     StorageConfig     `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug     bool   `mapstructure:"debug"`
	LogLevel  string `mapstructure:"log_level"`
	JWTSecret string `mapstructure:"jwt_secret"` // JWT secret for auth
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address           string   `mapstructure:"address"`
	JWTSecret         string   `mapstructure:"jwt_secret"`
	CORSOrigins       []string `mapstructure:"cors_origins"`
	MaxActiveSessions int      `mapstructure:"max_active_sessions"` // per-user cap at submit
	StreamEnabled     bool     `mapstructure:"stream_enabled"`
}

// NegotiationConfig contains the engine defaults for session limits.
type NegotiationConfig struct {
	MaxRounds             int           `mapstructure:"max_rounds"`
	EpsilonCents          int64         `mapstructure:"epsilon_cents"`
	MaxSessionTime        time.Duration `mapstructure:"max_session_time"`
	ExplorationRounds     int           `mapstructure:"exploration_rounds"`
	MinConfidence         float64       `mapstructure:"min_confidence"`
	MaxConcurrentSessions int           `mapstructure:"max_concurrent_sessions"`
}

func (n NegotiationConfig) Validate() error {
	if n.MaxRounds <= 0 {
		return fmt.Errorf("negotiation.max_rounds must be > 0")
	}
	if n.EpsilonCents < 0 {
		return fmt.Errorf("negotiation.epsilon_cents cannot be negative")
	}
	if n.MaxSessionTime <= 0 {
		return fmt.Errorf("negotiation.max_session_time must be > 0")
	}
	if n.ExplorationRounds < 0 {
		return fmt.Errorf("negotiation.exploration_rounds cannot be negative")
	}
	if n.MinConfidence < 0 || n.MinConfidence > 1 {
		return fmt.Errorf("negotiation.min_confidence must be within [0,1]")
	}
	if n.MaxConcurrentSessions <= 0 {
		return fmt.Errorf("negotiation.max_concurrent_sessions must be > 0")
	}
	return nil
}

// ResearchConfig configures the offer-discovery collaborator client.
type ResearchConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"` // per search call
	MaxRetries    int           `mapstructure:"max_retries"`
	Backoff       time.Duration `mapstructure:"backoff"`
	Concurrency   int           `mapstructure:"concurrency"`
	EnrichEnabled bool          `mapstructure:"enrich_enabled"` // headless fetch of supplier pages
	EnrichTimeout time.Duration `mapstructure:"enrich_timeout"`
	EnrichLimit   int           `mapstructure:"enrich_limit"` // max offers enriched per query
}

// PricingConfig configures the pricing-negotiation collaborator client.
type PricingConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"` // per negotiate call
	MaxRetries      int           `mapstructure:"max_retries"`
	Backoff         time.Duration `mapstructure:"backoff"`
	Concurrency     int           `mapstructure:"concurrency"` // quote fan-out bound
	DefaultQuoteTTL time.Duration `mapstructure:"default_quote_ttl"`
}

// BookingConfig configures the booking collaborator client.
type BookingConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	Backoff           time.Duration `mapstructure:"backoff"`
	Prototype         bool          `mapstructure:"prototype"` // simulate confirmations locally
	SimulateOnFailure bool          `mapstructure:"simulate_on_failure"`
	ReceiptBaseURL    string        `mapstructure:"receipt_base_url"`
	SupportEmail      string        `mapstructure:"support_email"`
	SupportPhone      string        `mapstructure:"support_phone"`
}

// CapabilityConfig controls the RoleCard registry behaviour.
type CapabilityConfig struct {
	SigningSecret string   `mapstructure:"signing_secret"`
	RequiredRoles []string `mapstructure:"required_roles"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PeriodicLogs bool          `mapstructure:"periodic_logs"`
	LogInterval  time.Duration `mapstructure:"log_interval"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.PeriodicLogs && t.LogInterval <= 0 {
		return fmt.Errorf("telemetry.log_interval must be > 0 when periodic logs are enabled")
	}
	return nil
}

// SchedulerConfig controls the background janitor.
type SchedulerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	JanitorSchedule string        `mapstructure:"janitor_schedule"` // cron expression, @hourly etc.
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	QuoteRetention  time.Duration `mapstructure:"quote_retention"` // how long expired quotes stay in the audit trail
}

// StorageConfig groups the persistence backends.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required when redis is enabled")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when redis is enabled")
	}
	return nil
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds the connection string, preferring an explicit url.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, ssl)
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yaml")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":10001")
	viper.SetDefault("server.max_active_sessions", 5)
	viper.SetDefault("server.stream_enabled", true)
	viper.SetDefault("negotiation.max_rounds", 12)
	viper.SetDefault("negotiation.epsilon_cents", 500)
	viper.SetDefault("negotiation.max_session_time", "5m")
	viper.SetDefault("negotiation.exploration_rounds", 2)
	viper.SetDefault("negotiation.min_confidence", 0.5)
	viper.SetDefault("negotiation.max_concurrent_sessions", 8)
	viper.SetDefault("research.timeout", "10s")
	viper.SetDefault("research.max_retries", 2)
	viper.SetDefault("research.backoff", "300ms")
	viper.SetDefault("research.concurrency", 4)
	viper.SetDefault("research.enrich_timeout", "20s")
	viper.SetDefault("research.enrich_limit", 3)
	viper.SetDefault("pricing.timeout", "8s")
	viper.SetDefault("pricing.max_retries", 3)
	viper.SetDefault("pricing.backoff", "250ms")
	viper.SetDefault("pricing.concurrency", 4)
	viper.SetDefault("pricing.default_quote_ttl", "10m")
	viper.SetDefault("booking.timeout", "30s")
	viper.SetDefault("booking.max_retries", 1)
	viper.SetDefault("booking.backoff", "500ms")
	viper.SetDefault("booking.prototype", true)
	viper.SetDefault("booking.simulate_on_failure", true)
	viper.SetDefault("booking.receipt_base_url", "https://bookings.example.com/receipts")
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.periodic_logs", true)
	viper.SetDefault("telemetry.log_interval", "1m")
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.janitor_schedule", "@hourly")
	viper.SetDefault("scheduler.lock_ttl", "2m")
	viper.SetDefault("scheduler.quote_retention", "24h")

	if path == "" {
		viper.AddConfigPath("./app/config") // path to look for the config file in
		viper.AddConfigPath("./config")     // path to look for the config file in
		viper.AddConfigPath(".")            // optionally look for config in the working directory
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)                                // bin/
		viper.AddConfigPath(filepath.Join(exeDir, ".."))           // repo root
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("VOYAIGE")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (VOYAIGE_*)

	err := viper.ReadInConfig() // Find and read the config file
	if err != nil {             // Handle errors reading the config file
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Negotiation.Validate(); err != nil {
		panic(err)
	}
	if err := config.Telemetry.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	return &config
}
