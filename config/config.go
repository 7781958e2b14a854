package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research system
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// LLMConfig contains the text-generation/embedding provider settings
type LLMConfig struct {
	Provider        string        `mapstructure:"provider"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// SearchProviderConfig describes one external search backend.
type SearchProviderConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	Weight          float64       `mapstructure:"weight"`
	Quota           int           `mapstructure:"quota"` // 0 means unlimited
	MinCallInterval time.Duration `mapstructure:"min_call_interval"`
}

// SearchConfig contains the provider router settings.
type SearchConfig struct {
	Providers   map[string]SearchProviderConfig `mapstructure:"providers"`
	Fallback    string                          `mapstructure:"fallback"`
	ResultCount int                             `mapstructure:"result_count"`
	MaxAttempts int                             `mapstructure:"max_attempts"`
}

// RetrievalConfig carries the strategy-selection policy knobs. The threshold
// values are policy parameters, not derived constants.
type RetrievalConfig struct {
	ThresholdHigh    float64 `mapstructure:"threshold_high"`
	ThresholdMedium  float64 `mapstructure:"threshold_medium"`
	ThresholdMinimum float64 `mapstructure:"threshold_minimum"`
	TopK             int     `mapstructure:"top_k"`
	MaxResults       int     `mapstructure:"max_results"`
	MaxCachedSources int     `mapstructure:"max_cached_sources"`
}

// RealtimeConfig contains keys for the live-feed dispatcher.
type RealtimeConfig struct {
	OpenWeatherAPIKey string        `mapstructure:"openweather_api_key"`
	WeatherCity       string        `mapstructure:"weather_city"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// MemoryConfig defines behaviour for vector memory storage and search.
type MemoryConfig struct {
	Enabled             bool `mapstructure:"enabled"`
	EmbeddingDimensions int  `mapstructure:"embedding_dimensions"`
}

// SchedulerConfig controls the recurring-job loop.
type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
}

// StorageConfig groups the persistence backends.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
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
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN renders a postgres:// connection string from the discrete fields.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s:%s", host, port)
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

func (s SearchConfig) Validate() error {
	for name, p := range s.Providers {
		if p.Weight < 0 || p.Weight > 1 {
			return fmt.Errorf("search.providers.%s.weight must be within [0,1]", name)
		}
		if p.Quota < 0 {
			return fmt.Errorf("search.providers.%s.quota must be >= 0", name)
		}
	}
	return nil
}

func (r RetrievalConfig) Validate() error {
	if !(r.ThresholdMinimum <= r.ThresholdMedium && r.ThresholdMedium <= r.ThresholdHigh) {
		return fmt.Errorf("retrieval thresholds must be ordered minimum <= medium <= high")
	}
	if r.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be > 0")
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", 30*time.Second)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.completion_model", "gpt-4.1-mini")
	viper.SetDefault("llm.embedding_model", "text-embedding-3-small")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("llm.timeout", 30*time.Second)

	viper.SetDefault("search.fallback", "offline")
	viper.SetDefault("search.result_count", 5)
	viper.SetDefault("search.max_attempts", 6)
	viper.SetDefault("search.providers.serpapi.weight", 1.0)
	viper.SetDefault("search.providers.serpapi.quota", 100)
	viper.SetDefault("search.providers.serpapi.min_call_interval", time.Second)
	viper.SetDefault("search.providers.brave.weight", 0.8)
	viper.SetDefault("search.providers.brave.quota", 2000)
	viper.SetDefault("search.providers.brave.min_call_interval", 500*time.Millisecond)
	viper.SetDefault("search.providers.duckduckgo.weight", 0.5)
	viper.SetDefault("search.providers.duckduckgo.quota", 0)
	viper.SetDefault("search.providers.duckduckgo.min_call_interval", 500*time.Millisecond)

	viper.SetDefault("retrieval.threshold_high", 0.82)
	viper.SetDefault("retrieval.threshold_medium", 0.70)
	viper.SetDefault("retrieval.threshold_minimum", 0.40)
	viper.SetDefault("retrieval.top_k", 8)
	viper.SetDefault("retrieval.max_results", 5)
	viper.SetDefault("retrieval.max_cached_sources", 2)

	viper.SetDefault("realtime.weather_city", "Pune")
	viper.SetDefault("realtime.timeout", 10*time.Second)

	viper.SetDefault("memory.enabled", true)
	viper.SetDefault("memory.embedding_dimensions", 1536)

	viper.SetDefault("scheduler.tick_interval", 5*time.Second)
	viper.SetDefault("scheduler.lock_ttl", 2*time.Minute)

	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.postgres.timeout", 5*time.Second)
	viper.SetDefault("storage.redis.host", "localhost")
	viper.SetDefault("storage.redis.port", "6379")
	viper.SetDefault("storage.redis.timeout", 5*time.Second)
}

// LoadConfig loads config from the given file, or from the usual search
// paths when path is empty. Environment variables prefixed SIRA_ override
// file values (e.g. SIRA_LLM_API_KEY).
func LoadConfig(path string) (*Config, error) {
	setDefaults()

	if path == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("SIRA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine: defaults plus env cover every key.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Telemetry.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Search.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Retrieval.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
