// Package config loads application configuration from config.yaml and the
// FITSCORE_* environment, and owns global logger initialization.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/fitscore-cli/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Crypto    CryptoConfig    `yaml:"crypto" mapstructure:"crypto"`
	HubSpot   HubSpotConfig   `yaml:"hubspot" mapstructure:"hubspot"`
	Pinecone  PineconeConfig  `yaml:"pinecone" mapstructure:"pinecone"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Oracle    OracleConfig    `yaml:"oracle" mapstructure:"oracle"`
	Sync      SyncConfig      `yaml:"sync" mapstructure:"sync"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Pricing   cost.Rates      `yaml:"pricing" mapstructure:"pricing"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CryptoConfig holds the key that seals portal credentials at rest.
type CryptoConfig struct {
	// Key must be 16, 24, or 32 bytes.
	Key string `yaml:"key" mapstructure:"key"`
}

// HubSpotConfig holds the CRM app credentials.
type HubSpotConfig struct {
	ClientID     string  `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string  `yaml:"client_secret" mapstructure:"client_secret"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// PineconeConfig holds the vector index settings.
type PineconeConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Index string `yaml:"index" mapstructure:"index"`
	// Host is the index data-plane host; empty resolves via DescribeIndex.
	Host string `yaml:"host" mapstructure:"host"`
}

// OpenAIConfig holds the embedding (and optional chat) model settings.
type OpenAIConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	EmbeddingModel string `yaml:"embedding_model" mapstructure:"embedding_model"`
	ChatModel      string `yaml:"chat_model" mapstructure:"chat_model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OracleConfig selects the completion provider for scoring.
type OracleConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
}

// SyncConfig tunes the sync pipeline.
type SyncConfig struct {
	PageSize     int      `yaml:"page_size" mapstructure:"page_size"`
	PageDelayMS  int      `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	ChunkDelayMS int      `yaml:"chunk_delay_ms" mapstructure:"chunk_delay_ms"`
	MaxRecords   int      `yaml:"max_records" mapstructure:"max_records"`
	DeadlineSecs int      `yaml:"deadline_secs" mapstructure:"deadline_secs"`
	DealStages   []string `yaml:"deal_stages" mapstructure:"deal_stages"`
}

// ScoringConfig tunes the scoring engine and queue worker.
type ScoringConfig struct {
	TopK             int `yaml:"top_k" mapstructure:"top_k"`
	QueueBatch       int `yaml:"queue_batch" mapstructure:"queue_batch"`
	QueueConcurrency int `yaml:"queue_concurrency" mapstructure:"queue_concurrency"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("FITSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("hubspot.base_url", "https://api.hubapi.com")
	v.SetDefault("hubspot.rate_limit", 8)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.chat_model", "gpt-4o-mini")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("oracle.provider", "anthropic")
	v.SetDefault("sync.page_size", 100)
	v.SetDefault("sync.page_delay_ms", 250)
	v.SetDefault("sync.chunk_delay_ms", 200)
	v.SetDefault("sync.max_records", 10000)
	v.SetDefault("sync.deadline_secs", 1500)
	v.SetDefault("sync.deal_stages", []string{})
	v.SetDefault("scoring.top_k", 5)
	v.SetDefault("scoring.queue_batch", 25)
	v.SetDefault("scoring.queue_concurrency", 1)
	for model, rate := range cost.DefaultRates().Completion {
		v.SetDefault("pricing.completion."+model+".input", rate.Input)
		v.SetDefault("pricing.completion."+model+".output", rate.Output)
		v.SetDefault("pricing.completion."+model+".cache_write_mul", rate.CacheWriteMul)
		v.SetDefault("pricing.completion."+model+".cache_read_mul", rate.CacheReadMul)
	}
	for model, rate := range cost.DefaultRates().Embedding {
		v.SetDefault("pricing.embedding."+model, rate)
	}

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

	return &cfg, nil
}

// Validate checks that the configuration carries what the given mode needs.
// Modes: sync, score, serve, migrate, export.
func (c *Config) Validate(mode string) error {
	var missing []string

	requireStore := func() {
		if c.Store.DatabaseURL == "" && c.Store.Driver != "sqlite" {
			missing = append(missing, "store.database_url is required")
		}
	}
	requireCRM := func() {
		if c.Crypto.Key == "" {
			missing = append(missing, "crypto.key is required")
		}
		if c.HubSpot.ClientID == "" {
			missing = append(missing, "hubspot.client_id is required")
		}
		if c.HubSpot.ClientSecret == "" {
			missing = append(missing, "hubspot.client_secret is required")
		}
	}
	requireOracle := func() {
		if c.OpenAI.Key == "" {
			missing = append(missing, "openai.key is required")
		}
		if c.Oracle.Provider == "anthropic" && c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.Pinecone.Key == "" {
			missing = append(missing, "pinecone.key is required")
		}
		if c.Pinecone.Index == "" && c.Pinecone.Host == "" {
			missing = append(missing, "pinecone.index or pinecone.host is required")
		}
	}

	switch mode {
	case "migrate", "export":
		requireStore()
	case "sync", "score":
		requireStore()
		requireCRM()
		requireOracle()
	case "serve":
		requireStore()
		requireCRM()
		requireOracle()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Scoring.QueueConcurrency < 0 || c.Scoring.QueueConcurrency > 16 {
		missing = append(missing, "scoring.queue_concurrency must be between 0 and 16")
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
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
