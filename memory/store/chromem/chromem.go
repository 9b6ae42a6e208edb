// Package chromem provides semantic recall over stored facts using
// chromem-go, a pure Go embedded vector database.
package chromem

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/memory"
)

// FactIndex keeps one chromem collection per conversation. Documents are
// keyed by fact key, so re-asserting a fact replaces its previous value.
type FactIndex struct {
	db       *chromem.DB
	embedder memory.Embedder
	logger   *zap.Logger

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// Option configures the index.
type Option func(*FactIndex)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *FactIndex) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates an in-memory fact index.
func New(embedder memory.Embedder, opts ...Option) *FactIndex {
	f := &FactIndex{
		db:          chromem.NewDB(),
		embedder:    embedder,
		logger:      zap.NewNop(),
		collections: make(map[string]*chromem.Collection),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func collectionName(userID, conversationID string) string {
	return "facts:" + memory.ConversationKey(userID, conversationID)
}

// collection returns the collection of a conversation, creating it on demand.
func (f *FactIndex) collection(userID, conversationID string) (*chromem.Collection, error) {
	name := collectionName(userID, conversationID)

	f.mu.RLock()
	col, ok := f.collections[name]
	f.mu.RUnlock()
	if ok {
		return col, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if col, ok := f.collections[name]; ok {
		return col, nil
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	col, err := f.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	f.collections[name] = col
	return col, nil
}

// Upsert implements memory.FactIndex.
func (f *FactIndex) Upsert(ctx context.Context, userID, conversationID string, facts []memory.Fact) error {
	if len(facts) == 0 {
		return nil
	}
	col, err := f.collection(userID, conversationID)
	if err != nil {
		return err
	}

	for _, fact := range facts {
		content := fact.Format()
		emb, err := f.embedder.Embed(ctx, content)
		if err != nil {
			return fmt.Errorf("embed fact %s: %w", fact.Key, err)
		}

		doc := chromem.Document{
			ID:        fact.ID(),
			Content:   content,
			Embedding: emb,
			Metadata:  fact.Metadata(),
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("add fact %s: %w", fact.Key, err)
		}
	}

	f.logger.Debug("facts indexed",
		zap.String("conversation_id", conversationID),
		zap.Int("count", len(facts)))
	return nil
}

// Query implements memory.FactIndex.
func (f *FactIndex) Query(ctx context.Context, userID, conversationID, query string, limit int) ([]memory.ScoredFact, error) {
	col, err := f.collection(userID, conversationID)
	if err != nil {
		return nil, err
	}

	// chromem-go requires nResults <= collection size.
	n := limit
	if count := col.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	emb, err := f.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := col.QueryEmbedding(ctx, emb, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]memory.ScoredFact, 0, len(results))
	for _, r := range results {
		fact := memory.FactFromMetadata(r.Metadata)
		if fact.Key == "" {
			continue
		}
		out = append(out, memory.ScoredFact{Fact: fact, Similarity: float64(r.Similarity)})
	}
	return out, nil
}

// Reset implements memory.FactIndex.
func (f *FactIndex) Reset(ctx context.Context, userID, conversationID string) error {
	name := collectionName(userID, conversationID)

	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.collections, name)
	if err := f.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}

var _ memory.FactIndex = (*FactIndex)(nil)
