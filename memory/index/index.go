// Package index caches text embeddings on disk and matches slot names by
// cosine similarity.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/becomeliminal/nim-memory/memory"
)

// ErrEmptyText is returned when asked to embed blank text.
var ErrEmptyText = errors.New("empty text")

// DefaultThreshold is the minimum similarity for a search hit.
const DefaultThreshold = 0.7

// Config configures the index.
type Config struct {
	// CachePath is the JSON file holding cached vectors. Empty keeps the
	// cache in memory only.
	CachePath string

	// Threshold is used by Search when the caller passes a threshold <= 0.
	Threshold float64
}

// DefaultConfig returns an in-memory index with the default threshold.
func DefaultConfig() *Config {
	return &Config{Threshold: DefaultThreshold}
}

// Index memoizes embeddings keyed by lower-cased trimmed text. Concurrent
// misses for the same text share one embedder call.
type Index struct {
	embedder memory.Embedder
	config   *Config
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[string][]float32
	group singleflight.Group
}

// Option configures the index.
type Option func(*Index)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.logger = l
		}
	}
}

// New creates an index and loads the cache file. An unreadable or corrupt
// cache file is logged and replaced by an empty cache.
func New(embedder memory.Embedder, config *Config, opts ...Option) *Index {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}

	ix := &Index{
		embedder: embedder,
		config:   config,
		logger:   zap.NewNop(),
		cache:    map[string][]float32{},
	}
	for _, opt := range opts {
		opt(ix)
	}

	if err := ix.load(); err != nil {
		ix.logger.Warn("embedding cache unreadable, starting empty",
			zap.String("path", config.CachePath), zap.Error(err))
		ix.cache = map[string][]float32{}
	}
	return ix
}

// Len returns the number of cached vectors.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.cache)
}

// GetEmbedding returns the vector for text, calling the embedder on a miss
// and persisting the updated cache.
func (ix *Index) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if key == "" {
		return nil, ErrEmptyText
	}

	ix.mu.Lock()
	v, ok := ix.cache[key]
	ix.mu.Unlock()
	if ok {
		return v, nil
	}

	res, err, _ := ix.group.Do(key, func() (interface{}, error) {
		ix.mu.Lock()
		if v, ok := ix.cache[key]; ok {
			ix.mu.Unlock()
			return v, nil
		}
		ix.mu.Unlock()

		emb, err := ix.embedder.Embed(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("embed %q: %w", key, err)
		}

		ix.mu.Lock()
		defer ix.mu.Unlock()
		ix.cache[key] = emb
		if err := ix.persistLocked(); err != nil {
			ix.logger.Warn("persist embedding cache", zap.String("path", ix.config.CachePath), zap.Error(err))
		}
		return emb, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]float32), nil
}

// Search scores every key of idx against query and returns hits at or above
// threshold, best first. A threshold <= 0 uses the configured default.
func (ix *Index) Search(ctx context.Context, query string, idx map[string][]float32, threshold float64) ([]memory.Match, error) {
	if len(idx) == 0 {
		return nil, nil
	}
	if threshold <= 0 {
		threshold = ix.config.Threshold
	}

	qv, err := ix.GetEmbedding(ctx, slotText(query))
	if err != nil {
		return nil, err
	}

	var matches []memory.Match
	for key, vec := range idx {
		score := CosineSimilarity(qv, vec)
		if score >= threshold {
			matches = append(matches, memory.Match{Key: key, Score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Key < matches[j].Key
	})
	return matches, nil
}

// UpdateIndex adds a vector for every key missing from idx. Keys that already
// have a vector are skipped. Embedder failures are collected and returned
// after every key has been tried.
func (ix *Index) UpdateIndex(ctx context.Context, idx map[string][]float32, keys []string) error {
	var errs []error
	for _, key := range keys {
		if len(idx[key]) > 0 {
			continue
		}
		emb, err := ix.GetEmbedding(ctx, slotText(key))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		idx[key] = emb
	}
	return errors.Join(errs...)
}

// CosineSimilarity returns the cosine of the angle between a and b over
// their common prefix, or 0 when either has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Clamp rounding drift.
	return math.Max(-1, math.Min(1, sim))
}

func (ix *Index) load() error {
	if ix.config.CachePath == "" {
		return nil
	}
	data, err := os.ReadFile(ix.config.CachePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	cache := map[string][]float32{}
	if err := json.Unmarshal(data, &cache); err != nil {
		return err
	}
	ix.cache = cache
	ix.logger.Debug("embedding cache loaded", zap.Int("entries", len(cache)))
	return nil
}

// persistLocked rewrites the whole cache file. Caller holds ix.mu.
func (ix *Index) persistLocked() error {
	if ix.config.CachePath == "" {
		return nil
	}
	data, err := json.Marshal(ix.cache)
	if err != nil {
		return err
	}
	return writeFileAtomic(ix.config.CachePath, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func cacheKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// slotText turns a slot key into the phrase that gets embedded.
func slotText(key string) string {
	return memory.Label(key)
}

var _ memory.SlotIndex = (*Index)(nil)
