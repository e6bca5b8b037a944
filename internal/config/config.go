// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Browser runtime modes.
const (
	ModeLocal  = "local"
	ModeHosted = "hosted"
)

// Deep-visit visitor kinds.
const (
	VisitorBrowser = "browser"
	VisitorHTTP    = "http"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Enrich    EnrichConfig    `mapstructure:"enrich"`
	Directory DirectoryConfig `mapstructure:"directory"`
	AI        AIConfig        `mapstructure:"ai"`
	Store     StoreConfig     `mapstructure:"store"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// PipelineConfig governs request defaults and batch sizes.
type PipelineConfig struct {
	DefaultLimit   int  `mapstructure:"default_limit"`
	MaxLimit       int  `mapstructure:"max_limit"`
	ScoreBatchSize int  `mapstructure:"score_batch_size"`
	DeepVisitMax   int  `mapstructure:"deep_visit_max"`
	RequirePhone   bool `mapstructure:"require_phone"`
}

// BrowserConfig describes the browser runtime used for harvesting.
type BrowserConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Mode              string `mapstructure:"mode"`
	ExecPath          string `mapstructure:"exec_path"`
	RemoteURL         string `mapstructure:"remote_url"`
	SearchURL         string `mapstructure:"search_url"`
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	SettleMillis      int    `mapstructure:"settle_ms"`
	SlowMoMillis      int    `mapstructure:"slow_mo_ms"`
	MaxStalls         int    `mapstructure:"max_stalls"`
}

// EnrichConfig controls deep visits of candidate websites.
type EnrichConfig struct {
	Visitor             string  `mapstructure:"visitor"`
	VisitTimeoutSeconds int     `mapstructure:"visit_timeout_seconds"`
	RequestsPerSecond   float64 `mapstructure:"requests_per_second"`
	RespectRobots       bool    `mapstructure:"respect_robots"`
}

// DirectoryConfig configures the geodata fallback directory.
type DirectoryConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	BaseURL           string  `mapstructure:"base_url"`
	UserAgent         string  `mapstructure:"user_agent"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// ProviderConfig names one model in the completion fallback chain.
type ProviderConfig struct {
	Model string   `mapstructure:"model"`
	Tags  []string `mapstructure:"tags"`
}

// AIConfig configures the chat-completion provider chain.
type AIConfig struct {
	BaseURL        string           `mapstructure:"base_url"`
	APIKey         string           `mapstructure:"api_key"`
	Referer        string           `mapstructure:"referer"`
	Title          string           `mapstructure:"title"`
	PreferredModel string           `mapstructure:"preferred_model"`
	Providers      []ProviderConfig `mapstructure:"providers"`
	TimeoutSeconds int              `mapstructure:"timeout_seconds"`
}

// StoreConfig selects and configures the candidate sink.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// StorageConfig sets where run evidence is archived.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DefaultProviders is the free-tier model chain used when none is configured.
var DefaultProviders = []ProviderConfig{
	{Model: "google/gemini-2.0-flash-exp:free", Tags: []string{"free", "fast"}},
	{Model: "google/gemini-pro-1.5-exp", Tags: []string{"reasoning"}},
	{Model: "mistral/mistral-2-nemo-free", Tags: []string{"free"}},
	{Model: "meta-llama/llama-3-8b-instruct:free", Tags: []string{"free"}},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("logging.development", true)
	v.SetDefault("pipeline.default_limit", 5)
	v.SetDefault("pipeline.max_limit", 25)
	v.SetDefault("pipeline.score_batch_size", 10)
	v.SetDefault("pipeline.deep_visit_max", 5)
	v.SetDefault("pipeline.require_phone", false)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.mode", ModeHosted)
	v.SetDefault("browser.search_url", "https://www.google.com/maps/search/%s")
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36")
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.settle_ms", 1500)
	v.SetDefault("browser.slow_mo_ms", 100)
	v.SetDefault("browser.max_stalls", 3)
	v.SetDefault("enrich.visitor", VisitorBrowser)
	v.SetDefault("enrich.visit_timeout_seconds", 10)
	v.SetDefault("enrich.requests_per_second", 2)
	v.SetDefault("enrich.respect_robots", true)
	v.SetDefault("directory.enabled", true)
	v.SetDefault("directory.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("directory.user_agent", "leadgen-pipeline/0.1 (lead discovery; ops@leadgen.local)")
	v.SetDefault("directory.timeout_seconds", 10)
	v.SetDefault("directory.requests_per_second", 1)
	v.SetDefault("ai.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("ai.referer", "http://localhost:3000")
	v.SetDefault("ai.title", "Lead Generation Pipeline")
	v.SetDefault("ai.preferred_model", DefaultProviders[0].Model)
	v.SetDefault("ai.timeout_seconds", 30)
	providers := make([]map[string]any, 0, len(DefaultProviders))
	for _, p := range DefaultProviders {
		providers = append(providers, map[string]any{"model": p.Model, "tags": p.Tags})
	}
	v.SetDefault("ai.providers", providers)
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.table", "potential_leads")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("pubsub.topic_name", "leads.generated")
	v.SetDefault("storage.prefix", "evidence")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.DefaultLimit <= 0 {
		return fmt.Errorf("pipeline.default_limit must be > 0")
	}
	if c.Pipeline.MaxLimit < c.Pipeline.DefaultLimit {
		return fmt.Errorf("pipeline.max_limit must be >= pipeline.default_limit")
	}
	if c.Pipeline.ScoreBatchSize <= 0 {
		return fmt.Errorf("pipeline.score_batch_size must be > 0")
	}
	if c.Pipeline.DeepVisitMax < 0 {
		return fmt.Errorf("pipeline.deep_visit_max must be >= 0")
	}
	switch c.Browser.Mode {
	case ModeHosted:
	case ModeLocal:
		if c.Browser.ExecPath == "" {
			return fmt.Errorf("browser.exec_path must be set when browser.mode is local")
		}
	default:
		return fmt.Errorf("browser.mode must be %q or %q", ModeLocal, ModeHosted)
	}
	if !strings.Contains(c.Browser.SearchURL, "%s") {
		return fmt.Errorf("browser.search_url must contain a %%s query placeholder")
	}
	if c.Browser.MaxStalls <= 0 {
		return fmt.Errorf("browser.max_stalls must be > 0")
	}
	if c.Enrich.Visitor != VisitorBrowser && c.Enrich.Visitor != VisitorHTTP {
		return fmt.Errorf("enrich.visitor must be %q or %q", VisitorBrowser, VisitorHTTP)
	}
	if c.Enrich.VisitTimeoutSeconds <= 0 {
		return fmt.Errorf("enrich.visit_timeout_seconds must be > 0")
	}
	if c.Browser.Mode == ModeHosted && c.Enrich.VisitTimeoutSeconds >= c.Browser.NavTimeoutSeconds {
		return fmt.Errorf("enrich.visit_timeout_seconds must be < browser.nav_timeout_seconds in hosted mode")
	}
	if c.Directory.Enabled && strings.TrimSpace(c.Directory.UserAgent) == "" {
		return fmt.Errorf("directory.user_agent must be set when the directory is enabled")
	}
	if len(c.AI.Providers) == 0 && c.AI.PreferredModel == "" {
		return fmt.Errorf("ai.providers or ai.preferred_model must be set")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the %s driver", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver must be one of memory, postgres, sqlite")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// NavTimeout is the harvest navigation bound. Local mode is unbounded.
func (c Config) NavTimeout() time.Duration {
	if c.Browser.Mode == ModeLocal {
		return 0
	}
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// VisitTimeout bounds each deep visit.
func (c Config) VisitTimeout() time.Duration {
	return time.Duration(c.Enrich.VisitTimeoutSeconds) * time.Second
}

// RequestTimeout bounds a single HTTP request to the service.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
