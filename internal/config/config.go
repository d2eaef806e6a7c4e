package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/oasis-extract/internal/cost"
	"github.com/sells-group/oasis-extract/internal/monitoring"
	"github.com/sells-group/oasis-extract/internal/store"
	"github.com/sells-group/oasis-extract/internal/worker"
)

// Config holds the full application configuration.
type Config struct {
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Consensus   ConsensusConfig   `yaml:"consensus" mapstructure:"consensus"`
	Remote      RemoteConfig      `yaml:"remote" mapstructure:"remote"`
	HuggingFace HuggingFaceConfig `yaml:"huggingface" mapstructure:"huggingface"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini      GeminiConfig      `yaml:"gemini" mapstructure:"gemini"`
	Summary     SummaryConfig     `yaml:"summary" mapstructure:"summary"`
	Store       store.Config      `yaml:"store" mapstructure:"store"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Kafka       worker.Config     `yaml:"kafka" mapstructure:"kafka"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Breaker     BreakerConfig     `yaml:"breaker" mapstructure:"breaker"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Cost        cost.Rates        `yaml:"cost" mapstructure:"cost"`
	Monitoring  monitoring.Config `yaml:"monitoring" mapstructure:"monitoring"`
}

// LLMConfig points at the local generation backend.
type LLMConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-request timeout.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ConsensusConfig configures multi-trial extraction.
type ConsensusConfig struct {
	Model           string  `yaml:"model" mapstructure:"model"`
	Seeds           []int   `yaml:"seeds" mapstructure:"seeds"`
	Temperature     float64 `yaml:"temperature" mapstructure:"temperature"`
	NumCtx          int     `yaml:"num_ctx" mapstructure:"num_ctx"`
	CatalogCacheTTL int     `yaml:"catalog_cache_ttl_secs" mapstructure:"catalog_cache_ttl_secs"`
}

// RemoteConfig selects the hosted provider used by the single-call strategy
// and the first summary tier. An empty provider disables both.
type RemoteConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
}

// HuggingFaceConfig configures the inference router.
type HuggingFaceConfig struct {
	Key       string  `yaml:"api_key" mapstructure:"api_key"`
	Model     string  `yaml:"model" mapstructure:"model"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// AnthropicConfig configures the Messages API.
type AnthropicConfig struct {
	Key   string `yaml:"api_key" mapstructure:"api_key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig configures the Gemini API.
type GeminiConfig struct {
	Key     string `yaml:"api_key" mapstructure:"api_key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SummaryConfig configures the local summary tier.
type SummaryConfig struct {
	Model       string  `yaml:"model" mapstructure:"model"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	NumCtx      int     `yaml:"num_ctx" mapstructure:"num_ctx"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BreakerConfig configures the circuit breaker around the local backend.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// RetryConfig configures retries of store writes and publishes.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// legacyEnv maps keys onto the variable names older deployments export.
var legacyEnv = map[string]string{
	"llm.base_url":          "OLLAMA_URL",
	"consensus.model":       "OASIS_MODEL",
	"consensus.temperature": "OLLAMA_TEMP",
	"consensus.num_ctx":     "OLLAMA_NUM_CTX",
	"huggingface.api_key":   "HUGGINGFACE_API_KEY",
	"huggingface.model":     "HF_MODEL",
	"anthropic.api_key":     "ANTHROPIC_API_KEY",
	"gemini.api_key":        "GEMINI_API_KEY",
	"server.port":           "PORT",
}

// Load reads .env, config.yaml and the environment, in increasing priority.
func Load() (*Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("OASIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, "OASIS_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.timeout_secs", 120)
	v.SetDefault("consensus.model", "llama3.1")
	v.SetDefault("consensus.seeds", []int{11, 23, 37})
	v.SetDefault("consensus.temperature", 0.1)
	v.SetDefault("consensus.num_ctx", 8192)
	v.SetDefault("consensus.catalog_cache_ttl_secs", 300)
	v.SetDefault("remote.provider", "")
	v.SetDefault("huggingface.model", "meta-llama/Llama-3.1-8B-Instruct")
	v.SetDefault("huggingface.base_url", "https://router.huggingface.co/v1")
	v.SetDefault("huggingface.rate_limit", 5)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("summary.temperature", 0.2)
	v.SetDefault("summary.num_ctx", 8192)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "oasis.db")
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("kafka.input_topic", "interaction.transcript.final")
	v.SetDefault("kafka.output_topic", "oasis.extractions")
	v.SetDefault("kafka.group_id", "oasis-extract")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 30)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.rule_only_rate_threshold", 0.5)
	v.SetDefault("monitoring.dead_letter_threshold", 10)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if cfg.Summary.Model == "" {
		cfg.Summary.Model = cfg.Consensus.Model
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Remote.Provider {
	case "":
	case "huggingface":
		if c.HuggingFace.Key == "" {
			return eris.New("config: huggingface.api_key is required for remote provider huggingface")
		}
	case "anthropic":
		if c.Anthropic.Key == "" {
			return eris.New("config: anthropic.api_key is required for remote provider anthropic")
		}
	case "gemini":
		if c.Gemini.Key == "" {
			return eris.New("config: gemini.api_key is required for remote provider gemini")
		}
	default:
		return eris.Errorf("config: unknown remote provider %q", c.Remote.Provider)
	}
	if c.Consensus.Temperature < 0 || c.Consensus.Temperature > 2 {
		return eris.Errorf("config: consensus.temperature %v out of range", c.Consensus.Temperature)
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
