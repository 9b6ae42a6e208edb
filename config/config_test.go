package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 0.7, cfg.Memory.SimilarityThreshold)
	assert.Equal(t, 0.6, cfg.Memory.RecallConfidence)
	assert.Equal(t, 10, cfg.Memory.MaxRecentMessages)
	assert.Equal(t, 2, cfg.Memory.SummaryMultiple)
	assert.Equal(t, 30*time.Minute, cfg.Tasks.Expiry())
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout())
	assert.Equal(t, "none", cfg.LLM.Provider)
	assert.Equal(t, "mock", cfg.Embedding.Provider)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nim-memory.yaml")
	yaml := `
storage:
  backend: redis
memory:
  similarity_threshold: 0.8
  max_recent_messages: 4
tasks:
  expiry_minutes: 5
llm:
  provider: ollama
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, 0.8, cfg.Memory.SimilarityThreshold)
	assert.Equal(t, 4, cfg.Memory.MaxRecentMessages)
	assert.Equal(t, 5*time.Minute, cfg.Tasks.Expiry())
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	// Untouched keys keep defaults.
	assert.Equal(t, 2, cfg.Memory.SummaryMultiple)
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nim-memory.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tasks:\n  expiry_minutes: 5\n"), 0o644))

	t.Setenv("NIM_MEMORY_TASKS_EXPIRY_MINUTES", "45")
	t.Setenv("NIM_MEMORY_LLM_ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.Tasks.ExpiryMinutes)
	assert.Equal(t, "sk-test", cfg.LLM.AnthropicAPIKey)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  interface{}
	}{
		{"bad backend", "storage.backend", "s3"},
		{"bad embedder", "embedding.provider", "word2vec"},
		{"bad llm", "llm.provider", "gpt"},
		{"threshold range", "memory.similarity_threshold", 1.5},
		{"confidence range", "memory.recall_confidence", -0.1},
		{"expiry", "tasks.expiry_minutes", 0},
		{"recent", "memory.max_recent_messages", 0},
		{"transcript", "transcript.backend", "kafka"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			v.Set(tt.key, tt.val)
			_, err := FromViper(v)
			require.Error(t, err)
		})
	}
}
