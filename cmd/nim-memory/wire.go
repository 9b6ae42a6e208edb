package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/logging"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/genai"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	"github.com/becomeliminal/nim-memory/memory/embedder/ollama"
	"github.com/becomeliminal/nim-memory/memory/embedder/onnx"
	"github.com/becomeliminal/nim-memory/memory/index"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
	"github.com/becomeliminal/nim-memory/memory/store/file"
	"github.com/becomeliminal/nim-memory/memory/store/redis"
	"github.com/becomeliminal/nim-memory/task"
	"github.com/becomeliminal/nim-memory/transcript"
	"github.com/becomeliminal/nim-memory/transcript/sqlite"
)

// app holds the wired manager and everything that must be closed with it.
type app struct {
	manager *memory.Manager
	logger  *zap.Logger
	closers []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// setup loads configuration and builds the manager with every configured
// collaborator.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	a := &app{logger: logger}
	a.manager, err = a.build(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context, cfg *config.Config) (*memory.Manager, error) {
	store, err := a.stateStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []memory.Option{memory.WithLogger(a.logger)}

	emb, err := a.embedder(ctx, cfg.Embedding)
	if err != nil {
		return nil, err
	}
	slots := index.New(emb, &index.Config{
		CachePath: cfg.Embedding.CachePath,
		Threshold: cfg.Memory.SimilarityThreshold,
	}, index.WithLogger(a.logger.Named("index")))
	opts = append(opts, memory.WithSlotIndex(slots))
	if cfg.Memory.SemanticRecall {
		opts = append(opts, memory.WithFactIndex(chromem.New(emb, chromem.WithLogger(a.logger.Named("facts")))))
	}

	llm, err := generator(cfg.LLM, a.logger.Named("engine"))
	if err != nil {
		return nil, err
	}
	if llm != nil {
		opts = append(opts, memory.WithGenerator(llm))
	}

	log, err := a.transcript(ctx, cfg.Transcript)
	if err != nil {
		return nil, err
	}
	if log != nil {
		opts = append(opts, memory.WithTranscript(log))
	}

	tasks, err := taskEngine(cfg.Tasks, llm, a.logger.Named("task"))
	if err != nil {
		return nil, err
	}
	opts = append(opts, memory.WithTaskEngine(tasks))

	return memory.NewManager(store, &memory.Config{
		SimilarityThreshold: cfg.Memory.SimilarityThreshold,
		RecallConfidence:    cfg.Memory.RecallConfidence,
		MaxRecentMessages:   cfg.Memory.MaxRecentMessages,
		SummaryMultiple:     cfg.Memory.SummaryMultiple,
		LLMExtraction:       cfg.Memory.LLMExtraction,
		SemanticRecall:      cfg.Memory.SemanticRecall,
	}, opts...), nil
}

func (a *app) stateStore(ctx context.Context, cfg *config.Config) (memory.StateStore, error) {
	switch cfg.Storage.Backend {
	case "redis":
		s, err := redis.Dial(ctx, &redis.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, redis.WithLogger(a.logger.Named("redis")))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	default:
		s, err := file.New(&file.Config{
			Dir:           cfg.Storage.Dir,
			CacheEnabled:  cfg.Storage.CacheEnabled,
			CacheMaxBytes: cfg.Storage.CacheMaxBytes,
		}, file.WithLogger(a.logger.Named("store")))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	}
}

func (a *app) embedder(ctx context.Context, cfg config.EmbeddingConfig) (memory.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.New(cfg.OllamaEndpoint, cfg.OllamaModel, 0), nil
	case "genai":
		return genai.New(ctx, cfg.GenAIAPIKey, cfg.GenAIModel, 0)
	case "onnx":
		e, err := onnx.New(onnx.Config{
			ModelPath:     cfg.ONNXModelPath,
			TokenizerPath: cfg.ONNXTokenizer,
			LibraryPath:   cfg.ONNXLibrary,
		}, a.logger.Named("onnx"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, e)
		return e, nil
	default:
		return mock.New(), nil
	}
}

// generator returns nil when no provider is configured.
func generator(cfg config.LLMConfig, logger *zap.Logger) (*engine.Engine, error) {
	var gen engine.Generator
	switch cfg.Provider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("llm.anthropic_api_key is required for the anthropic provider")
		}
		client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
		gen = engine.NewClaudeGenerator(&client, cfg.AnthropicModel, cfg.MaxTokens)
	case "ollama":
		gen = engine.NewOllamaGenerator(cfg.OllamaEndpoint, cfg.OllamaModel, &http.Client{})
	default:
		return nil, nil
	}
	return engine.NewEngine(gen, engine.WithTimeout(cfg.Timeout()), engine.WithLogger(logger)), nil
}

func (a *app) transcript(ctx context.Context, cfg config.TranscriptConfig) (memory.Transcript, error) {
	switch cfg.Backend {
	case "memory":
		return transcript.NewMemory(), nil
	case "sqlite":
		t, err := sqlite.Open(ctx, cfg.Path, sqlite.WithLogger(a.logger.Named("transcript")))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, t)
		return t, nil
	default:
		return nil, nil
	}
}

func taskEngine(cfg config.TasksConfig, llm *engine.Engine, logger *zap.Logger) (*task.Engine, error) {
	catalog := task.DefaultCatalog()
	if cfg.CatalogPath != "" {
		c, err := task.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		catalog = c
	}

	extractors := []task.SlotExtractor{task.NewRuleExtractor()}
	if llm != nil {
		extractors = append(extractors, task.NewLLMExtractor(llm))
	}
	return task.New(catalog, &task.Config{Expiry: cfg.Expiry()},
		task.WithExtractor(task.NewChainExtractor(logger, extractors...)),
		task.WithLogger(logger),
	), nil
}
