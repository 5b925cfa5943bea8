package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all recall configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Generation GenerationConfig `mapstructure:"generation"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Bind      string `mapstructure:"bind" validate:"required"`
	Port      int    `mapstructure:"port" validate:"min=1,max=65535"`
	RateLimit int    `mapstructure:"rate_limit" validate:"min=0"` // requests per owner per minute, 0 disables
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	Path   string `mapstructure:"path"` // sqlite; empty resolves to store.DefaultDBPath()
	DSN    string `mapstructure:"dsn" validate:"required_if=Driver postgres"`
}

type LLMConfig struct {
	Provider     string        `mapstructure:"provider" validate:"oneof=none claude-cli anthropic gemini ollama"`
	Model        string        `mapstructure:"model"`
	AnthropicKey string        `mapstructure:"anthropic_key"`
	GeminiKey    string        `mapstructure:"gemini_key"`
	GeminiURL    string        `mapstructure:"gemini_url"`
	OllamaURL    string        `mapstructure:"ollama_url"`
	OllamaModel  string        `mapstructure:"ollama_model"`
	Breaker      BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures uint32        `mapstructure:"max_failures" validate:"min=1"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" validate:"min=0"`
	Threshold     float64       `mapstructure:"threshold" validate:"gt=0,lte=1"`
	TTL           time.Duration `mapstructure:"ttl"`
	L1Size        int           `mapstructure:"l1_size" validate:"min=1"`
	MaxCandidates int           `mapstructure:"max_candidates" validate:"min=1"`
}

type RetrievalConfig struct {
	Strategy        string  `mapstructure:"strategy" validate:"oneof=fulltext substring"`
	Limit           int     `mapstructure:"limit" validate:"min=1,max=50"`
	ExpansionScore  float64 `mapstructure:"expansion_score" validate:"gte=0,lte=1"`
	IntentExpansion bool    `mapstructure:"intent_expansion"`
}

type GenerationConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"min=1"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
}

type LogConfig struct {
	Debug bool `mapstructure:"debug"`
	JSON  bool `mapstructure:"json"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:      "127.0.0.1",
			Port:      37778,
			RateLimit: 60,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
		LLM: LLMConfig{
			Provider:    "none",
			GeminiURL:   "https://generativelanguage.googleapis.com/v1beta",
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "llama3.2",
			Breaker: BreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				OpenTimeout: 30 * time.Second,
			},
		},
		Cache: CacheConfig{
			Enabled:       true,
			Threshold:     0.70,
			TTL:           time.Hour,
			L1Size:        1000,
			MaxCandidates: 500,
		},
		Retrieval: RetrievalConfig{
			Strategy:       "fulltext",
			Limit:          10,
			ExpansionScore: 0.5,
		},
		Generation: GenerationConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
		},
	}
}

// Dir returns the recall home directory (~/.recall).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".recall"
	}
	return filepath.Join(home, ".recall")
}

// Load builds the configuration from defaults, an optional TOML file and
// RECALL_* environment variables, in increasing order of precedence. An empty
// path looks for config.toml in Dir(); a missing file there is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(Dir())
	}
	if err := v.ReadInConfig(); err != nil {
		if path != "" || !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// RECALL_SERVER_PORT, RECALL_CACHE_REDIS_ADDR, etc.
	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.anthropic_key", "RECALL_LLM_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.gemini_key", "RECALL_LLM_GEMINI_KEY", "GEMINI_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.bind", d.Server.Bind)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.dsn", d.Database.DSN)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.anthropic_key", d.LLM.AnthropicKey)
	v.SetDefault("llm.gemini_key", d.LLM.GeminiKey)
	v.SetDefault("llm.gemini_url", d.LLM.GeminiURL)
	v.SetDefault("llm.ollama_url", d.LLM.OllamaURL)
	v.SetDefault("llm.ollama_model", d.LLM.OllamaModel)
	v.SetDefault("llm.breaker.enabled", d.LLM.Breaker.Enabled)
	v.SetDefault("llm.breaker.max_failures", d.LLM.Breaker.MaxFailures)
	v.SetDefault("llm.breaker.open_timeout", d.LLM.Breaker.OpenTimeout)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", d.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", d.Cache.RedisDB)
	v.SetDefault("cache.threshold", d.Cache.Threshold)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.l1_size", d.Cache.L1Size)
	v.SetDefault("cache.max_candidates", d.Cache.MaxCandidates)

	v.SetDefault("retrieval.strategy", d.Retrieval.Strategy)
	v.SetDefault("retrieval.limit", d.Retrieval.Limit)
	v.SetDefault("retrieval.expansion_score", d.Retrieval.ExpansionScore)
	v.SetDefault("retrieval.intent_expansion", d.Retrieval.IntentExpansion)

	v.SetDefault("generation.max_attempts", d.Generation.MaxAttempts)
	v.SetDefault("generation.initial_backoff", d.Generation.InitialBackoff)

	v.SetDefault("log.debug", d.Log.Debug)
	v.SetDefault("log.json", d.Log.JSON)
}
