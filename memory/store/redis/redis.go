// Package redis stores conversation documents in Redis so several processes
// can share state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultKeyPrefix namespaces state keys.
const DefaultKeyPrefix = "nim-memory:state"

// Config configures the redis store.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Store is a memory.StateStore backed by Redis. Documents are written with a
// single SET, which replaces the previous value atomically. Access from this
// process is additionally serialized by one mutex.
type Store struct {
	rdb    *goredis.Client
	prefix string
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

// New wraps an existing client.
func New(rdb *goredis.Client, keyPrefix string, opts ...Option) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	s := &Store{
		rdb:    rdb,
		prefix: strings.TrimSuffix(keyPrefix, ":"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to Redis, verifies the connection and returns a store.
func Dial(ctx context.Context, config *Config, opts ...Option) (*Store, error) {
	if config == nil || strings.TrimSpace(config.Addr) == "" {
		return nil, errors.New("redis store: addr is required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, config.KeyPrefix, opts...), nil
}

// Key returns the redis key of a conversation document.
func (s *Store) Key(userID, conversationID string) string {
	return s.prefix + ":" + memory.ConversationKey(userID, conversationID)
}

// Load implements memory.StateStore.
func (s *Store) Load(ctx context.Context, userID, conversationID string) (*core.ConversationState, error) {
	if err := validate(userID, conversationID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	raw, err := s.rdb.Get(ctx, s.Key(userID, conversationID)).Bytes()
	s.mu.Unlock()

	log := s.logger.With(zap.String("user_id", userID), zap.String("conversation_id", conversationID))
	switch {
	case errors.Is(err, goredis.Nil):
		return core.NewConversationState(userID, conversationID), nil
	case err != nil:
		log.Warn("state unreadable, using default", zap.Error(err))
		return core.NewConversationState(userID, conversationID), nil
	}

	var state core.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		log.Warn("state corrupt, using default", zap.Error(err))
		return core.NewConversationState(userID, conversationID), nil
	}
	state.Normalize()
	state.UserID, state.ConversationID = userID, conversationID
	return &state, nil
}

// Save implements memory.StateStore.
func (s *Store) Save(ctx context.Context, userID, conversationID string, state *core.ConversationState) error {
	if state == nil {
		return errors.New("redis store: nil state")
	}
	if err := validate(userID, conversationID); err != nil {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rdb.Set(ctx, s.Key(userID, conversationID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements memory.StateStore.
func (s *Store) Delete(ctx context.Context, userID, conversationID string) error {
	if err := validate(userID, conversationID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rdb.Del(ctx, s.Key(userID, conversationID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close implements memory.StateStore.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func validate(userID, conversationID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(conversationID) == "" {
		return fmt.Errorf("%w: user and conversation ids are required", core.ErrInvalidID)
	}
	return nil
}

var _ memory.StateStore = (*Store)(nil)
