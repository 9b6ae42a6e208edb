// Package config loads runtime configuration from YAML files, environment
// variables and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is searched for (without extension) in the config paths.
const DefaultConfigFileName = "nim-memory"

// EnvPrefix prefixes every environment override, e.g. NIM_MEMORY_LLM_PROVIDER.
const EnvPrefix = "NIM_MEMORY"

// Config is the full runtime configuration.
type Config struct {
	Storage    StorageConfig    `mapstructure:"storage"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Memory     MemoryConfig     `mapstructure:"memory"`
	Tasks      TasksConfig      `mapstructure:"tasks"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// StorageConfig selects the state store backend.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"` // file or redis
	Dir           string `mapstructure:"dir"`
	CacheEnabled  bool   `mapstructure:"cache_enabled"`
	CacheMaxBytes int64  `mapstructure:"cache_max_bytes"`
}

// RedisConfig configures the redis state store.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// EmbeddingConfig configures the embedding collaborator and cache.
type EmbeddingConfig struct {
	Provider       string `mapstructure:"provider"` // mock, ollama, genai, onnx
	CachePath      string `mapstructure:"cache_path"`
	OllamaEndpoint string `mapstructure:"ollama_endpoint"`
	OllamaModel    string `mapstructure:"ollama_model"`
	GenAIAPIKey    string `mapstructure:"genai_api_key"`
	GenAIModel     string `mapstructure:"genai_model"`
	ONNXModelPath  string `mapstructure:"onnx_model_path"`
	ONNXTokenizer  string `mapstructure:"onnx_tokenizer_path"`
	ONNXLibrary    string `mapstructure:"onnx_library_path"`
}

// LLMConfig configures the text-generation collaborator.
type LLMConfig struct {
	Provider        string `mapstructure:"provider"` // none, anthropic, ollama
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	AnthropicModel  string `mapstructure:"anthropic_model"`
	OllamaEndpoint  string `mapstructure:"ollama_endpoint"`
	OllamaModel     string `mapstructure:"ollama_model"`
	MaxTokens       int64  `mapstructure:"max_tokens"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

// Timeout returns the per-request timeout.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MemoryConfig tunes extraction, recall and history handling.
type MemoryConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	RecallConfidence    float64 `mapstructure:"recall_confidence"`
	MaxRecentMessages   int     `mapstructure:"max_recent_messages"`
	SummaryMultiple     int     `mapstructure:"summary_multiple"`
	LLMExtraction       bool    `mapstructure:"llm_extraction"`
	SemanticRecall      bool    `mapstructure:"semantic_recall"`
}

// TasksConfig tunes the task engine.
type TasksConfig struct {
	ExpiryMinutes int    `mapstructure:"expiry_minutes"`
	CatalogPath   string `mapstructure:"catalog_path"`
}

// Expiry returns the inactivity window.
func (c TasksConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryMinutes) * time.Minute
}

// TranscriptConfig selects the transcript log backend.
type TranscriptConfig struct {
	Backend string `mapstructure:"backend"` // none, memory, sqlite
	Path    string `mapstructure:"path"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration. An empty cfgFile searches the default paths; a
// missing default file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".nim-memory"))
		}
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/nim-memory/")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return FromViper(v)
}

// FromViper decodes and validates an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.dir", "./data/state")
	v.SetDefault("storage.cache_enabled", true)
	v.SetDefault("storage.cache_max_bytes", 64<<20)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "nim-memory:state")

	v.SetDefault("embedding.provider", "mock")
	v.SetDefault("embedding.cache_path", "./data/cache/embeddings.json")
	v.SetDefault("embedding.ollama_endpoint", "http://localhost:11434")
	v.SetDefault("embedding.ollama_model", "all-minilm")
	v.SetDefault("embedding.genai_api_key", "")
	v.SetDefault("embedding.genai_model", "gemini-embedding-001")
	v.SetDefault("embedding.onnx_model_path", "")
	v.SetDefault("embedding.onnx_tokenizer_path", "")
	v.SetDefault("embedding.onnx_library_path", "")

	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.anthropic_model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.ollama_endpoint", "http://localhost:11434")
	v.SetDefault("llm.ollama_model", "phi3:mini")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout_seconds", 30)

	v.SetDefault("memory.similarity_threshold", 0.7)
	v.SetDefault("memory.recall_confidence", 0.6)
	v.SetDefault("memory.max_recent_messages", 10)
	v.SetDefault("memory.summary_multiple", 2)
	v.SetDefault("memory.llm_extraction", true)
	v.SetDefault("memory.semantic_recall", true)

	v.SetDefault("tasks.expiry_minutes", 30)
	v.SetDefault("tasks.catalog_path", "")

	v.SetDefault("transcript.backend", "none")
	v.SetDefault("transcript.path", "./data/transcript.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := FromViper(v)
	if err != nil {
		// Defaults are static and always valid.
		panic(err)
	}
	return cfg
}

// Validate rejects values that would make the engine misbehave.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case "file", "redis":
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend))
	}
	switch c.Embedding.Provider {
	case "mock", "ollama", "genai", "onnx":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider: unknown provider %q", c.Embedding.Provider))
	}
	switch c.LLM.Provider {
	case "none", "anthropic", "ollama":
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider))
	}
	switch c.Transcript.Backend {
	case "none", "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("transcript.backend: unknown backend %q", c.Transcript.Backend))
	}
	if c.Memory.SimilarityThreshold < -1 || c.Memory.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("memory.similarity_threshold must be in [-1,1], got %v", c.Memory.SimilarityThreshold))
	}
	if c.Memory.RecallConfidence < 0 || c.Memory.RecallConfidence > 1 {
		errs = append(errs, fmt.Errorf("memory.recall_confidence must be in [0,1], got %v", c.Memory.RecallConfidence))
	}
	if c.Memory.MaxRecentMessages <= 0 {
		errs = append(errs, fmt.Errorf("memory.max_recent_messages must be positive"))
	}
	if c.Memory.SummaryMultiple < 1 {
		errs = append(errs, fmt.Errorf("memory.summary_multiple must be at least 1"))
	}
	if c.Tasks.ExpiryMinutes <= 0 {
		errs = append(errs, fmt.Errorf("tasks.expiry_minutes must be positive"))
	}
	if c.LLM.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout_seconds must be positive"))
	}
	return errors.Join(errs...)
}
