package core

import (
	"errors"
	"strings"
)

// ErrInvalidID is returned when a user or conversation identifier is empty
// or cannot be used as a storage key.
var ErrInvalidID = errors.New("invalid identifier")

// Input is a single incoming user message addressed to one conversation.
type Input struct {
	// UserID owns the conversation. Required.
	UserID string `json:"user_id"`

	// ConversationID scopes state within a user. Required.
	ConversationID string `json:"conversation_id"`

	// Text is the raw user message.
	Text string `json:"question"`
}

// Validate checks that the identifiers are present.
func (in Input) Validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return errors.Join(ErrInvalidID, errors.New("user_id is required"))
	}
	if strings.TrimSpace(in.ConversationID) == "" {
		return errors.Join(ErrInvalidID, errors.New("conversation_id is required"))
	}
	return nil
}
