package core

import (
	"time"
)

// StateVersion is the schema version written into every persisted document.
const StateVersion = 1

// Category names the slot mapping a fact lives in.
type Category string

const (
	CategoryIdentity    Category = "identity"
	CategoryPreferences Category = "preferences"
	CategoryFacts       Category = "facts"
)

// Categories lists the slot mappings in lookup order.
var Categories = []Category{CategoryIdentity, CategoryPreferences, CategoryFacts}

// ConversationState is the persisted document for one (user, conversation).
//
// Slot keys in Identity, Preferences and Facts are always canonical: lower-case,
// underscores instead of spaces, passed through the canonical key table.
type ConversationState struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`

	Identity    map[string]string `json:"identity"`
	Preferences map[string]string `json:"preferences"`
	Facts       map[string]string `json:"facts"`

	// ActiveTask is the most recent task. Only a task with status
	// in_progress is considered active.
	ActiveTask *TaskState `json:"active_task,omitempty"`

	// EmbeddingIndex maps slot names to their embedding vectors.
	EmbeddingIndex map[string][]float32 `json:"embedding_index"`

	ConversationSummary string    `json:"conversation_summary"`
	MessageCount        int       `json:"message_count"`
	Version             int       `json:"version"`
	LastUpdated         time.Time `json:"last_updated"`
}

// NewConversationState returns the default empty document.
func NewConversationState(userID, conversationID string) *ConversationState {
	return &ConversationState{
		ConversationID: conversationID,
		UserID:         userID,
		Identity:       map[string]string{},
		Preferences:    map[string]string{},
		Facts:          map[string]string{},
		EmbeddingIndex: map[string][]float32{},
		Version:        StateVersion,
		LastUpdated:    time.Now().UTC(),
	}
}

// Normalize fills nil maps so documents written by older versions (or by
// hand) are safe to mutate.
func (s *ConversationState) Normalize() {
	if s.Identity == nil {
		s.Identity = map[string]string{}
	}
	if s.Preferences == nil {
		s.Preferences = map[string]string{}
	}
	if s.Facts == nil {
		s.Facts = map[string]string{}
	}
	if s.EmbeddingIndex == nil {
		s.EmbeddingIndex = map[string][]float32{}
	}
	if s.Version == 0 {
		s.Version = StateVersion
	}
}

// Slots returns the mapping for a category, or nil for an unknown category.
func (s *ConversationState) Slots(c Category) map[string]string {
	switch c {
	case CategoryIdentity:
		return s.Identity
	case CategoryPreferences:
		return s.Preferences
	case CategoryFacts:
		return s.Facts
	}
	return nil
}

// AllFacts flattens every category into one mapping. Later categories win on
// key collisions, which cannot happen for documents written by this module.
func (s *ConversationState) AllFacts() map[string]string {
	out := make(map[string]string, len(s.Identity)+len(s.Preferences)+len(s.Facts))
	for _, c := range Categories {
		for k, v := range s.Slots(c) {
			out[k] = v
		}
	}
	return out
}

// Lookup finds a slot value in any category.
func (s *ConversationState) Lookup(key string) (string, bool) {
	for _, c := range Categories {
		if v, ok := s.Slots(c)[key]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// HasActiveTask reports whether a task is currently in progress.
func (s *ConversationState) HasActiveTask() bool {
	return s.ActiveTask != nil && s.ActiveTask.Status == TaskInProgress
}
