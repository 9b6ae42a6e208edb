// Package file stores conversation documents as JSON files, one per
// conversation: <dir>/<user_id>/<conversation_id>.state.json.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

const fileSuffix = ".state.json"

// Config configures the file store.
type Config struct {
	// Dir is the root directory. Created on demand.
	Dir string

	// CacheEnabled keeps recently used documents in memory.
	CacheEnabled bool

	// CacheMaxBytes bounds the cache by encoded document size.
	CacheMaxBytes int64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Dir:           "./data/state",
		CacheEnabled:  true,
		CacheMaxBytes: 64 << 20,
	}
}

// Store is a memory.StateStore backed by the local filesystem. One mutex
// guards every read and write, so a document is never observed half written.
type Store struct {
	dir    string
	cache  *ristretto.Cache
	logger *zap.Logger

	mu sync.Mutex
}

// Option configures the store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a file store rooted at config.Dir.
func New(config *Config, opts ...Option) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Dir == "" {
		return nil, errors.New("file store: dir is required")
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	s := &Store{dir: config.Dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	if config.CacheEnabled {
		maxBytes := config.CacheMaxBytes
		if maxBytes <= 0 {
			maxBytes = DefaultConfig().CacheMaxBytes
		}
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 1e5,
			MaxCost:     maxBytes,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("create state cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Load implements memory.StateStore.
func (s *Store) Load(ctx context.Context, userID, conversationID string) (*core.ConversationState, error) {
	path, key, err := s.path(userID, conversationID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	data, err := s.readLocked(path, key)
	s.mu.Unlock()

	log := s.logger.With(zap.String("user_id", userID), zap.String("conversation_id", conversationID))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return core.NewConversationState(userID, conversationID), nil
	case err != nil:
		log.Warn("state unreadable, using default", zap.Error(err))
		return core.NewConversationState(userID, conversationID), nil
	}

	var state core.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Warn("state corrupt, using default", zap.String("path", path), zap.Error(err))
		return core.NewConversationState(userID, conversationID), nil
	}
	state.Normalize()
	state.UserID, state.ConversationID = userID, conversationID
	return &state, nil
}

// Save implements memory.StateStore. The document is written to a temp file
// in the same directory, synced and renamed over the previous version.
func (s *Store) Save(ctx context.Context, userID, conversationID string, state *core.ConversationState) error {
	if state == nil {
		return errors.New("file store: nil state")
	}
	path, key, err := s.path(userID, conversationID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("write state %s: %w", path, err)
	}
	if s.cache != nil {
		s.cache.Del(key)
		s.cache.Set(key, data, int64(len(data)))
		s.cache.Wait()
	}
	return nil
}

// Delete implements memory.StateStore.
func (s *Store) Delete(ctx context.Context, userID, conversationID string) error {
	path, key, err := s.path(userID, conversationID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache != nil {
		s.cache.Del(key)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete state %s: %w", path, err)
	}
	return nil
}

// Close implements memory.StateStore.
func (s *Store) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	return nil
}

// readLocked returns the encoded document. Caller holds s.mu.
func (s *Store) readLocked(path, key string) ([]byte, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v.([]byte), nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(key, data, int64(len(data)))
	}
	return data, nil
}

func (s *Store) path(userID, conversationID string) (path, key string, err error) {
	u, err := SafeComponent(userID)
	if err != nil {
		return "", "", err
	}
	c, err := SafeComponent(conversationID)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(s.dir, u, c+fileSuffix), u + "/" + c, nil
}

// SafeComponent maps an identifier onto a single path element. Bytes outside
// [A-Za-z0-9._@-] are percent-encoded, so distinct ids never share a file.
// Empty, "." and ".." are rejected with core.ErrInvalidID.
func SafeComponent(id string) (string, error) {
	if id == "" || id == "." || id == ".." {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidID, id)
	}
	var b strings.Builder
	for i := 0; i < len(id); i++ {
		c := id[i]
		if safeByte(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String(), nil
}

func safeByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '.' || c == '_' || c == '@' || c == '-'
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

var _ memory.StateStore = (*Store)(nil)
