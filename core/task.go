package core

import (
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskExpired    TaskStatus = "expired"
)

// Terminal reports whether the status can no longer change.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskExpired
}

// TaskState is a multi-turn slot-filling workflow.
type TaskState struct {
	TaskID string `json:"task_id"`
	Type   string `json:"type"`

	// State maps each required slot to its value; "" means unfilled.
	State map[string]string `json:"state"`

	Status     TaskStatus `json:"status"`
	LastActive time.Time  `json:"last_active"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Filled reports whether slot has a non-empty value.
func (t *TaskState) Filled(slot string) bool {
	return t.State[slot] != ""
}

// Clone returns a deep copy.
func (t *TaskState) Clone() *TaskState {
	if t == nil {
		return nil
	}
	c := *t
	c.State = make(map[string]string, len(t.State))
	for k, v := range t.State {
		c.State[k] = v
	}
	return &c
}
