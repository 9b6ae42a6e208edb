package core

import (
	"time"
)

// Action identifies which branch handled a message.
type Action string

const (
	ActionMemoryUpdate  Action = "memory_update"
	ActionMemoryRecall  Action = "memory_recall"
	ActionTaskStart     Action = "task_start"
	ActionTaskContinue  Action = "task_continue"
	ActionTaskStatus    Action = "task_status"
	ActionTaskCompleted Action = "task_completed"
	ActionTaskExpired   Action = "task_expired"
	ActionGeneralChat   Action = "general_chat"
)

// ModeChat is the only response mode produced by the engine.
const ModeChat = "chat"

// Intent records the routing decision for a message.
type Intent struct {
	DecisionQuestion string `json:"decision_question"`
	Action           Action `json:"action"`
}

// DecisionOutput carries the user-visible answer.
type DecisionOutput struct {
	Answer string `json:"answer"`
}

// FactUpdate is one slot assignment applied during a turn.
type FactUpdate struct {
	Category Category `json:"category"`
	Key      string   `json:"key"`
	Value    string   `json:"value"`
}

// Response is the structured result of handling one message.
type Response struct {
	Question       string         `json:"question"`
	Intent         Intent         `json:"intent"`
	DecisionOutput DecisionOutput `json:"decision_output"`
	Sources        []string       `json:"sources"`
	Mode           string         `json:"mode"`

	// Updates lists facts stored this turn (memory_update only).
	Updates []FactUpdate `json:"updates,omitempty"`

	// Task is a snapshot of the task after a task turn.
	Task *TaskState `json:"task,omitempty"`
}

// NewResponse builds a response for the given action and answer.
func NewResponse(question string, action Action, answer string) *Response {
	return &Response{
		Question: question,
		Intent: Intent{
			DecisionQuestion: question,
			Action:           action,
		},
		DecisionOutput: DecisionOutput{Answer: answer},
		Sources:        []string{},
		Mode:           ModeChat,
	}
}

// Answer is a shorthand for DecisionOutput.Answer.
func (r *Response) Answer() string {
	return r.DecisionOutput.Answer
}

// Role of a transcript message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation transcript.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
