package task

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/core"
)

// DefaultExpiry is the inactivity window after which an in-progress task
// expires.
const DefaultExpiry = 30 * time.Minute

// ExpiredMessage is returned when a task expires on its next turn.
const ExpiredMessage = "Your previous booking session has expired. What can I help you with today?"

// Config configures the engine.
type Config struct {
	Expiry time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{Expiry: DefaultExpiry}
}

// Result is the outcome of one task turn.
type Result struct {
	// Task is the updated task. It is a copy; the input is never mutated.
	Task *core.TaskState

	// Message is the user-visible reply.
	Message string

	// Filled lists slots that received a value this turn.
	Filled []string

	// Missing lists slots still without a value, in ask order.
	Missing []string
}

// Completed reports whether the turn completed the task.
func (r *Result) Completed() bool {
	return r.Task != nil && r.Task.Status == core.TaskCompleted
}

// Expired reports whether the turn expired the task.
func (r *Result) Expired() bool {
	return r.Task != nil && r.Task.Status == core.TaskExpired
}

// Engine is the slot-filling state machine.
type Engine struct {
	catalog   *Catalog
	extractor SlotExtractor
	expiry    time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithExtractor replaces the default rule-based extractor.
func WithExtractor(x SlotExtractor) Option {
	return func(e *Engine) {
		if x != nil {
			e.extractor = x
		}
	}
}

// WithClock sets the time source used for activity and expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates a task engine. A nil catalog selects DefaultCatalog.
func New(catalog *Catalog, config *Config, opts ...Option) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if config == nil {
		config = DefaultConfig()
	}
	e := &Engine{
		catalog:   catalog,
		extractor: NewRuleExtractor(),
		expiry:    config.Expiry,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    zap.NewNop(),
	}
	if e.expiry <= 0 {
		e.expiry = DefaultExpiry
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the workflow catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// DetectTask returns the workflow type a message asks to start.
func (e *Engine) DetectTask(text string) (string, bool) {
	return e.catalog.Detect(text)
}

// InitializeTask starts a fresh task of taskType and runs one turn over text,
// so slots mentioned in the opening message are filled immediately.
func (e *Engine) InitializeTask(ctx context.Context, taskType, text string) (*Result, error) {
	def, ok := e.catalog.Get(taskType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskType)
	}

	now := e.now()
	t := &core.TaskState{
		TaskID:     uuid.NewString(),
		Type:       taskType,
		State:      make(map[string]string, len(def.RequiredSlots)),
		Status:     core.TaskInProgress,
		LastActive: now,
		CreatedAt:  now,
	}
	for _, s := range def.RequiredSlots {
		t.State[s] = ""
	}

	e.logger.Info("task started",
		zap.String("task_id", t.TaskID),
		zap.String("type", taskType))
	return e.process(ctx, def, t, text, false)
}

// ProcessTask runs one turn of an in-progress task.
//
// A task idle for longer than the expiry window is expired without
// extraction. Otherwise slots are extracted from text and merged; values
// already filled are only replaced by non-empty ones.
func (e *Engine) ProcessTask(ctx context.Context, task *core.TaskState, text string) (*Result, error) {
	if task == nil {
		return nil, fmt.Errorf("%w: nil task", ErrUnknownTask)
	}
	if task.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrTaskClosed, task.TaskID, task.Status)
	}
	def, ok := e.catalog.Get(task.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, task.Type)
	}

	t := task.Clone()
	if t.State == nil {
		t.State = map[string]string{}
	}
	// A task that never recorded activity is not expired.
	if !t.LastActive.IsZero() && e.now().Sub(t.LastActive) > e.expiry {
		t.Status = core.TaskExpired
		e.logger.Info("task expired",
			zap.String("task_id", t.TaskID),
			zap.Time("last_active", t.LastActive))
		return &Result{Task: t, Message: ExpiredMessage, Missing: def.Missing(t.State)}, nil
	}
	return e.process(ctx, def, t, text, true)
}

// process extracts and merges slots. answering is false for the opening
// message, which is never a reply to a question.
func (e *Engine) process(ctx context.Context, def *Definition, t *core.TaskState, text string, answering bool) (*Result, error) {
	t.LastActive = e.now()

	missing := def.Missing(t.State)
	req := ExtractRequest{
		TaskType: def.Type,
		Slots:    def.RequiredSlots,
		Current:  t.State,
		Text:     text,
	}
	if answering && len(missing) > 0 {
		req.Pending = missing[0]
	}

	got, err := e.extractor.Extract(ctx, req)
	if err != nil {
		// No slots this turn; the question is asked again.
		e.logger.Warn("slot extraction failed", zap.String("task_id", t.TaskID), zap.Error(err))
	}

	res := &Result{Task: t}
	for _, slot := range def.RequiredSlots {
		if v := strings.TrimSpace(got[slot]); v != "" {
			t.State[slot] = v
			res.Filled = append(res.Filled, slot)
			e.logger.Debug("slot filled",
				zap.String("task_id", t.TaskID),
				zap.String("slot", slot))
		}
	}

	res.Missing = def.Missing(t.State)
	if len(res.Missing) == 0 {
		summary, err := def.Render(t.State)
		if err != nil {
			e.logger.Warn("summary render failed", zap.String("task_id", t.TaskID), zap.Error(err))
			summary = "Task processed successfully."
		}
		t.Status = core.TaskCompleted
		res.Message = "Task completed! " + summary
		e.logger.Info("task completed", zap.String("task_id", t.TaskID))
		return res, nil
	}

	res.Message = def.Question(res.Missing[0])
	return res, nil
}

var statusQuery = regexp.MustCompile(`(?i)\b(?:what am i booking|booking status|status of my booking|what(?:'s| is) my booking|where (?:am i|are we) with (?:my|the) booking)\b`)

// IsStatusQuery reports whether text asks about the active task.
func IsStatusQuery(text string) bool {
	return statusQuery.MatchString(text)
}

// Status summarizes a task's filled and missing slots.
func (e *Engine) Status(task *core.TaskState) string {
	if task == nil {
		return "You don't have an active booking."
	}
	def, ok := e.catalog.Get(task.Type)
	if !ok {
		return fmt.Sprintf("Your %s task is %s.", label(task.Type), task.Status)
	}

	var filled []string
	for _, s := range def.RequiredSlots {
		if v := task.State[s]; v != "" {
			filled = append(filled, fmt.Sprintf("%s: %s", label(s), v))
		}
	}
	missing := def.Missing(task.State)

	var b strings.Builder
	fmt.Fprintf(&b, "You are working on a %s.", label(task.Type))
	if len(filled) > 0 {
		fmt.Fprintf(&b, " So far: %s.", strings.Join(filled, ", "))
	}
	if len(missing) > 0 {
		labels := make([]string, len(missing))
		for i, s := range missing {
			labels[i] = label(s)
		}
		fmt.Fprintf(&b, " Still needed: %s. %s", strings.Join(labels, ", "), def.Question(missing[0]))
	}
	return b.String()
}

func label(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}
