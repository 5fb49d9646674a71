package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity  PerplexityConfig  `yaml:"perplexity" mapstructure:"perplexity"`
	Firecrawl   FirecrawlConfig   `yaml:"firecrawl" mapstructure:"firecrawl"`
	Jina        JinaConfig        `yaml:"jina" mapstructure:"jina"`
	Wikibase    WikibaseConfig    `yaml:"wikibase" mapstructure:"wikibase"`
	Fingerprint FingerprintConfig `yaml:"fingerprint" mapstructure:"fingerprint"`
	Notability  NotabilityConfig  `yaml:"notability" mapstructure:"notability"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite | postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// FirecrawlConfig holds settings for the crawler service.
type FirecrawlConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	MaxPages int    `yaml:"max_pages" mapstructure:"max_pages"`
}

// JinaConfig holds Jina Search settings for the notability gate.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
	MaxResults    int    `yaml:"max_results" mapstructure:"max_results"`
}

// WikibaseConfig holds knowledge-graph API settings.
type WikibaseConfig struct {
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	Token         string `yaml:"token" mapstructure:"token"`
	EnableLookup  bool   `yaml:"enable_lookup" mapstructure:"enable_lookup"` // gate for the QID remote fallback
	LookupTimeout int    `yaml:"lookup_timeout_secs" mapstructure:"lookup_timeout_secs"`
}

// ModelSpec names one model in the fingerprint matrix.
type ModelSpec struct {
	Provider string `yaml:"provider" mapstructure:"provider"` // anthropic | perplexity
	Model    string `yaml:"model" mapstructure:"model"`
}

// FingerprintConfig configures the fingerprinting engine.
type FingerprintConfig struct {
	Models          []ModelSpec `yaml:"models" mapstructure:"models"`
	MaxParallel     int         `yaml:"max_parallel" mapstructure:"max_parallel"`
	CallTimeoutSecs int         `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	RatePerSecond   float64     `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	// BreakerThreshold is the consecutive-failure count that opens a
	// provider's circuit breaker.
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
}

// CallTimeout returns the per-call timeout as a duration.
func (c FingerprintConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSecs) * time.Second
}

// NotabilityConfig configures the notability gate thresholds.
type NotabilityConfig struct {
	MinReferences   int     `yaml:"min_references" mapstructure:"min_references"`
	ConfidenceFloor float64 `yaml:"confidence_floor" mapstructure:"confidence_floor"`
	MaxResults      int     `yaml:"max_results" mapstructure:"max_results"`
}

// PipelineConfig configures the CFP orchestrator.
type PipelineConfig struct {
	RunTimeoutSecs   int `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
	MaxConcurrent    int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	CrawlTimeoutSecs int `yaml:"crawl_timeout_secs" mapstructure:"crawl_timeout_secs"`
}

// RunTimeout returns the whole-business timeout as a duration.
func (c PipelineConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSecs) * time.Second
}

// CrawlTimeout returns the crawl stage timeout as a duration.
func (c PipelineConfig) CrawlTimeout() time.Duration {
	return time.Duration(c.CrawlTimeoutSecs) * time.Second
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VISIQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "visibility.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("firecrawl.max_pages", 25)
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("jina.max_results", 10)
	v.SetDefault("wikibase.base_url", "https://www.wikidata.org/w/api.php")
	v.SetDefault("wikibase.enable_lookup", true)
	v.SetDefault("wikibase.lookup_timeout_secs", 5)
	v.SetDefault("fingerprint.max_parallel", 4)
	v.SetDefault("fingerprint.call_timeout_secs", 45)
	v.SetDefault("fingerprint.rate_per_second", 2.0)
	v.SetDefault("fingerprint.breaker_threshold", 5)
	v.SetDefault("notability.min_references", 3)
	v.SetDefault("notability.confidence_floor", 0.7)
	v.SetDefault("notability.max_results", 10)
	v.SetDefault("pipeline.run_timeout_secs", 600)
	v.SetDefault("pipeline.crawl_timeout_secs", 300)
	v.SetDefault("pipeline.max_concurrent", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if len(cfg.Fingerprint.Models) == 0 {
		cfg.Fingerprint.Models = []ModelSpec{
			{Provider: "anthropic", Model: cfg.Anthropic.Model},
			{Provider: "perplexity", Model: cfg.Perplexity.Model},
		}
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
