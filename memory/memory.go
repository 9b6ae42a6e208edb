package memory

import (
	"context"
	"strconv"

	"github.com/becomeliminal/nim-memory/core"
)

// StateStore persists one ConversationState document per (user, conversation).
// Implementations: file.Store (local, default), redis.Store (shared).
//
// Load never fails because the document is missing or unreadable: it returns
// a fresh default document instead. Errors are reserved for invalid IDs and
// cancelled contexts.
type StateStore interface {
	// Load returns the stored document, or a default one when none exists.
	Load(ctx context.Context, userID, conversationID string) (*core.ConversationState, error)

	// Save atomically replaces the stored document.
	Save(ctx context.Context, userID, conversationID string, state *core.ConversationState) error

	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, userID, conversationID string) error

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: mock.Embedder (testing), ollama.Embedder (local server),
// genai.Embedder (Gemini API), onnx.Embedder (offline model).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Match is a slot name scored against a query.
type Match struct {
	Key   string
	Score float64
}

// SlotIndex resolves free-form slot names against a conversation's
// embedding index (slot name -> vector).
// Implementations: index.Index.
type SlotIndex interface {
	// UpdateIndex ensures every key has a vector in idx. It mutates idx.
	UpdateIndex(ctx context.Context, idx map[string][]float32, keys []string) error

	// Search returns keys of idx scoring at least threshold against query,
	// best first. A threshold <= 0 selects the configured default.
	Search(ctx context.Context, query string, idx map[string][]float32, threshold float64) ([]Match, error)
}

// FactIndex offers semantic recall over stored facts for questions the
// deterministic detector cannot map to a slot.
// Implementations: chromem.FactIndex.
type FactIndex interface {
	// Upsert stores facts, replacing earlier versions of the same key.
	Upsert(ctx context.Context, userID, conversationID string, facts []Fact) error

	// Query returns up to limit facts most similar to query.
	Query(ctx context.Context, userID, conversationID, query string, limit int) ([]ScoredFact, error)

	// Reset drops every fact of the conversation.
	Reset(ctx context.Context, userID, conversationID string) error
}

// Transcript is the append-only message log of a conversation.
// Implementations: transcript.Memory, sqlite.Transcript.
type Transcript interface {
	// Append adds messages in order.
	Append(ctx context.Context, userID, conversationID string, msgs ...core.Message) error

	// Load returns every message, oldest first.
	Load(ctx context.Context, userID, conversationID string) ([]core.Message, error)

	// Count returns the number of stored messages.
	Count(ctx context.Context, userID, conversationID string) (int, error)
}

// ConversationKey encodes a (user, conversation) pair as one string. The user
// id is length-prefixed, so distinct pairs never share a key whatever
// separators the ids contain.
func ConversationKey(userID, conversationID string) string {
	return strconv.Itoa(len(userID)) + ":" + userID + ":" + conversationID
}
