// Package mock provides a deterministic embedder for tests and offline use.
package mock

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultDimensions matches all-MiniLM-L6-v2.
const DefaultDimensions = 384

// ErrScripted is returned for texts registered with FailOn.
var ErrScripted = errors.New("mock embedder: scripted failure")

// Embedder generates bag-of-words embeddings: every word maps to a fixed
// pseudo-random vector and a text is the normalized sum of its words. Equal
// texts embed identically and texts sharing words score higher than
// unrelated ones.
type Embedder struct {
	dimensions int
	calls      atomic.Int64

	mu   sync.Mutex
	fail map[string]bool
}

// New creates a mock embedder. dims <= 0 selects DefaultDimensions.
func New(dims ...int) *Embedder {
	d := DefaultDimensions
	if len(dims) > 0 && dims[0] > 0 {
		d = dims[0]
	}
	return &Embedder{dimensions: d, fail: map[string]bool{}}
}

// FailOn makes Embed fail for text.
func (m *Embedder) FailOn(text string) *Embedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[strings.ToLower(strings.TrimSpace(text))] = true
	return m
}

// Embed implements memory.Embedder.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	failing := m.fail[strings.ToLower(strings.TrimSpace(text))]
	m.mu.Unlock()
	if failing {
		return nil, ErrScripted
	}

	embedding := make([]float32, m.dimensions)
	for _, word := range words(text) {
		addWordVector(embedding, word)
	}
	return normalize(embedding), nil
}

// Dimensions implements memory.Embedder.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// Calls returns how many times Embed was invoked.
func (m *Embedder) Calls() int {
	return int(m.calls.Load())
}

// words splits text into lower-cased runs of letters and digits.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// addWordVector adds the LCG sequence seeded by the word's hash to vec.
func addWordVector(vec []float32, word string) {
	h := fnv.New64a()
	h.Write([]byte(word))
	seed := h.Sum64()

	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] += float32(int64(seed)) / float32(math.MaxInt64)
	}
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}

	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

var _ memory.Embedder = (*Embedder)(nil)
