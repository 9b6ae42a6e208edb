package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/logging"
	"github.com/becomeliminal/nim-memory/task"
)

// Fixed answers of the chat branch.
const (
	AnswerChatFailed = "Something went wrong."
	AnswerNoAnswer   = "No answer generated."
)

// Config tunes the manager.
type Config struct {
	// SimilarityThreshold is the minimum cosine similarity for a slot-name
	// match in the embedding index [-1.0, 1.0].
	// Default: 0.7
	SimilarityThreshold float64

	// RecallConfidence gates recall that is not tied to a detected slot:
	// semantic fact matches and generator answers [0.0-1.0].
	// Default: 0.6
	RecallConfidence float64

	// MaxRecentMessages is how many transcript messages are sent to the
	// generator verbatim.
	// Default: 10
	MaxRecentMessages int

	// SummaryMultiple triggers summarization once the transcript holds more
	// than MaxRecentMessages*SummaryMultiple messages.
	// Default: 2
	SummaryMultiple int

	// LLMExtraction asks the generator for facts when the deterministic
	// detector finds none.
	// Default: true
	LLMExtraction bool

	// SemanticRecall answers unmatched questions from the fact index.
	// Default: true
	SemanticRecall bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SimilarityThreshold: 0.7,
		RecallConfidence:    0.6,
		MaxRecentMessages:   10,
		SummaryMultiple:     2,
		LLMExtraction:       true,
		SemanticRecall:      true,
	}
}

// Manager is the conversation state manager. For every message it loads the
// conversation document, runs exactly one branch (memory update, task, recall
// or chat), and persists the result.
//
// Only the StateStore is required. Without a generator the manager is fully
// deterministic; without a slot index recall uses exact and substring
// matching only.
type Manager struct {
	store      StateStore
	slots      SlotIndex
	facts      FactIndex
	transcript Transcript
	tasks      *task.Engine
	llm        *engine.Engine
	config     *Config
	logger     *zap.Logger
	now        func() time.Time

	locks keyedMutex
}

// Option configures the manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithGenerator enables LLM extraction, LLM recall, chat and summaries.
func WithGenerator(e *engine.Engine) Option {
	return func(m *Manager) { m.llm = e }
}

// WithSlotIndex enables embedding search over slot names.
func WithSlotIndex(s SlotIndex) Option {
	return func(m *Manager) { m.slots = s }
}

// WithFactIndex enables semantic recall over stored facts.
func WithFactIndex(f FactIndex) Option {
	return func(m *Manager) { m.facts = f }
}

// WithTranscript records every turn and feeds recent history to the
// generator.
func WithTranscript(t Transcript) Option {
	return func(m *Manager) { m.transcript = t }
}

// WithTaskEngine replaces the default task engine.
func WithTaskEngine(e *task.Engine) Option {
	return func(m *Manager) { m.tasks = e }
}

// WithClock sets the time source for last_updated.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// withDefaults returns a copy of c with unset numeric fields taken from
// DefaultConfig. Boolean switches are kept as given.
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.SimilarityThreshold <= 0 {
		out.SimilarityThreshold = def.SimilarityThreshold
	}
	if out.RecallConfidence <= 0 {
		out.RecallConfidence = def.RecallConfidence
	}
	if out.MaxRecentMessages <= 0 {
		out.MaxRecentMessages = def.MaxRecentMessages
	}
	if out.SummaryMultiple <= 0 {
		out.SummaryMultiple = def.SummaryMultiple
	}
	return &out
}

// NewManager creates a manager over store. Zero numeric fields of config
// take their defaults.
func NewManager(store StateStore, config *Config, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		config: config.withDefaults(),
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tasks == nil {
		m.tasks = task.New(nil, nil, task.WithLogger(m.logger))
	}
	return m
}

// HandleMessage processes one user message. Errors are returned only for
// invalid identifiers; collaborator failures are logged and degrade the
// answer.
func (m *Manager) HandleMessage(ctx context.Context, userID, conversationID, text string) (*core.Response, error) {
	in := core.Input{UserID: userID, ConversationID: conversationID, Text: text}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(ConversationKey(userID, conversationID))
	defer unlock()

	log := logging.Conversation(m.logger, userID, conversationID)

	state, err := m.store.Load(ctx, userID, conversationID)
	if err != nil {
		if errors.Is(err, core.ErrInvalidID) {
			return nil, err
		}
		log.Warn("state load failed, using default", zap.Error(err))
		state = core.NewConversationState(userID, conversationID)
	}

	turn := &turn{Manager: m, log: log, state: state, text: text}
	resp := turn.route(ctx)

	m.record(ctx, log, state, text, resp.Answer())

	state.MessageCount++
	state.LastUpdated = m.now()
	if err := m.store.Save(ctx, userID, conversationID, state); err != nil {
		log.Error("state save failed", zap.Error(err))
	}

	log.Info("message handled",
		zap.String("action", string(resp.Intent.Action)),
		zap.String("text", logging.Truncate(text, 80)),
		zap.Int("message_count", state.MessageCount))
	return resp, nil
}

// State returns the stored document of a conversation.
func (m *Manager) State(ctx context.Context, userID, conversationID string) (*core.ConversationState, error) {
	if err := (core.Input{UserID: userID, ConversationID: conversationID}).Validate(); err != nil {
		return nil, err
	}
	unlock := m.locks.Lock(ConversationKey(userID, conversationID))
	defer unlock()
	return m.store.Load(ctx, userID, conversationID)
}

// Reset forgets a conversation: its document and its semantic fact index.
// The transcript is append-only and is kept.
func (m *Manager) Reset(ctx context.Context, userID, conversationID string) error {
	if err := (core.Input{UserID: userID, ConversationID: conversationID}).Validate(); err != nil {
		return err
	}
	unlock := m.locks.Lock(ConversationKey(userID, conversationID))
	defer unlock()

	var errs []error
	if err := m.store.Delete(ctx, userID, conversationID); err != nil {
		errs = append(errs, fmt.Errorf("delete state: %w", err))
	}
	if m.facts != nil {
		if err := m.facts.Reset(ctx, userID, conversationID); err != nil {
			errs = append(errs, fmt.Errorf("reset fact index: %w", err))
		}
	}
	return errors.Join(errs...)
}

// turn is the working set of one HandleMessage call.
type turn struct {
	*Manager
	log   *zap.Logger
	state *core.ConversationState
	text  string
}

func (t *turn) route(ctx context.Context) *core.Response {
	if resp := t.handleUpdates(ctx); resp != nil {
		return resp
	}
	if resp := t.handleTask(ctx); resp != nil {
		return resp
	}
	if resp := t.handleRecall(ctx); resp != nil {
		return resp
	}
	return t.handleChat(ctx)
}

// handleUpdates stores asserted facts. The generator is consulted only for
// statements that no other branch would claim.
func (t *turn) handleUpdates(ctx context.Context) *core.Response {
	var updates []core.FactUpdate
	for _, u := range DetectUpdates(t.text) {
		updates = append(updates, core.FactUpdate{Category: CategoryFor(u.Type), Key: u.Type, Value: u.Value})
	}
	if len(updates) == 0 && t.wantsLLMExtraction() {
		updates = t.extractFacts(ctx)
	}

	applied := t.apply(ctx, updates)
	if len(applied) == 0 {
		return nil
	}

	acks := make([]Update, len(applied))
	for i, u := range applied {
		acks[i] = Update{Type: u.Key, Value: u.Value}
	}
	resp := core.NewResponse(t.text, core.ActionMemoryUpdate, AcknowledgeAll(acks))
	resp.Updates = applied
	for _, u := range applied {
		resp.Sources = append(resp.Sources, source(u.Category, u.Key))
	}
	return resp
}

func (t *turn) wantsLLMExtraction() bool {
	if !t.config.LLMExtraction || !t.llm.Available() || isQuestion(t.text) {
		return false
	}
	if t.state.HasActiveTask() {
		return false
	}
	_, starts := t.tasks.DetectTask(t.text)
	return !starts
}

// apply writes updates into the category maps. A key lives in exactly one
// category, so it is removed from the others; synonyms are written together.
// It returns the updates as applied, synonyms included.
func (t *turn) apply(ctx context.Context, updates []core.FactUpdate) []core.FactUpdate {
	var applied []core.FactUpdate
	set := func(u core.FactUpdate) {
		for _, c := range core.Categories {
			if c != u.Category {
				delete(t.state.Slots(c), u.Key)
			}
		}
		t.state.Slots(u.Category)[u.Key] = u.Value
		applied = append(applied, u)
	}

	for _, u := range updates {
		if u.Key == "" || u.Value == "" {
			continue
		}
		set(u)
		if syn, ok := Synonym(u.Key); ok {
			set(core.FactUpdate{Category: CategoryFor(syn), Key: syn, Value: u.Value})
		}
		t.log.Debug("fact stored", zap.String("slot", u.Key), zap.String("category", string(u.Category)))
	}

	if len(applied) == 0 {
		return nil
	}

	keys := make([]string, len(applied))
	facts := make([]Fact, len(applied))
	for i, u := range applied {
		keys[i] = u.Key
		facts[i] = Fact{Category: u.Category, Key: u.Key, Value: u.Value}
	}
	if t.slots != nil {
		if err := t.slots.UpdateIndex(ctx, t.state.EmbeddingIndex, keys); err != nil {
			t.log.Warn("embedding index update failed", zap.Error(err))
		}
	}
	if t.facts != nil {
		if err := t.facts.Upsert(ctx, t.state.UserID, t.state.ConversationID, facts); err != nil {
			t.log.Warn("fact index upsert failed", zap.Error(err))
		}
	}

	// Acknowledge each user-facing assertion once.
	return dedupeSynonyms(applied)
}

func dedupeSynonyms(applied []core.FactUpdate) []core.FactUpdate {
	out := make([]core.FactUpdate, 0, len(applied))
	seen := map[string]bool{}
	for _, u := range applied {
		if seen[u.Key] {
			continue
		}
		seen[u.Key] = true
		if syn, ok := Synonym(u.Key); ok {
			seen[syn] = true
		}
		out = append(out, u)
	}
	return out
}

func (t *turn) handleTask(ctx context.Context) *core.Response {
	if typ, ok := t.tasks.DetectTask(t.text); ok {
		res, err := t.tasks.InitializeTask(ctx, typ, t.text)
		if err != nil {
			t.log.Error("task start failed", zap.String("type", typ), zap.Error(err))
			return nil
		}
		if t.state.HasActiveTask() {
			t.log.Info("task superseded", zap.String("task_id", t.state.ActiveTask.TaskID))
		}
		return t.taskResponse(res, core.ActionTaskStart)
	}

	if !t.state.HasActiveTask() {
		return nil
	}
	active := t.state.ActiveTask

	if task.IsStatusQuery(t.text) {
		resp := core.NewResponse(t.text, core.ActionTaskStatus, t.tasks.Status(active))
		resp.Task = active.Clone()
		return resp
	}

	res, err := t.tasks.ProcessTask(ctx, active, t.text)
	if err != nil {
		// The workflow type is no longer in the catalog; drop the task.
		t.log.Warn("task turn failed", zap.String("task_id", active.TaskID), zap.Error(err))
		t.state.ActiveTask = nil
		return nil
	}
	return t.taskResponse(res, core.ActionTaskContinue)
}

func (t *turn) taskResponse(res *task.Result, action core.Action) *core.Response {
	t.state.ActiveTask = res.Task
	switch {
	case res.Completed():
		action = core.ActionTaskCompleted
	case res.Expired():
		action = core.ActionTaskExpired
	}
	resp := core.NewResponse(t.text, action, res.Message)
	resp.Task = res.Task.Clone()
	for _, s := range res.Filled {
		resp.Sources = append(resp.Sources, "task."+s)
	}
	return resp
}

// handleRecall answers questions about stored slots. Detected slots are
// answered from the document only; other questions go through the
// confidence-gated semantic and generator recall.
func (t *turn) handleRecall(ctx context.Context) *core.Response {
	recalls := DetectRecalls(t.text)
	if len(recalls) == 0 {
		return t.openRecall(ctx)
	}

	var (
		answers []string
		sources []string
		found   int
	)
	for _, r := range recalls {
		key, value, ok := t.lookup(ctx, r.RequestedSlot)
		if !ok {
			answers = append(answers, FormatMissing(r.RequestedSlot))
			continue
		}
		found++
		answers = append(answers, FormatRecall(key, value))
		sources = append(sources, t.sourceOf(key))
	}

	answer := strings.Join(answers, " ")
	if found == 0 {
		answer = NoInformation
	}
	resp := core.NewResponse(t.text, core.ActionMemoryRecall, answer)
	if len(sources) > 0 {
		resp.Sources = sources
	}
	return resp
}

// lookup resolves a requested slot: canonical key, then embedding search
// over the slot index, then substring match.
func (t *turn) lookup(ctx context.Context, slot string) (key, value string, ok bool) {
	key = CanonicalKey(slot)
	if key == "" {
		return "", "", false
	}
	if v, ok := t.state.Lookup(key); ok {
		return key, v, true
	}
	if syn, ok := Synonym(key); ok {
		if v, ok := t.state.Lookup(syn); ok {
			return syn, v, true
		}
	}

	if t.slots != nil && len(t.state.EmbeddingIndex) > 0 {
		matches, err := t.slots.Search(ctx, Label(key), t.state.EmbeddingIndex, t.config.SimilarityThreshold)
		if err != nil {
			t.log.Warn("embedding search failed", zap.String("slot", key), zap.Error(err))
		}
		for _, match := range matches {
			if v, ok := t.state.Lookup(match.Key); ok {
				t.log.Debug("slot matched by embedding",
					zap.String("slot", key),
					zap.String("match", match.Key),
					zap.Float64("score", match.Score))
				return match.Key, v, true
			}
		}
	}

	all := t.state.AllFacts()
	return FuzzyLookup(key, all, sortedKeys(all))
}

func (t *turn) sourceOf(key string) string {
	for _, c := range core.Categories {
		if _, ok := t.state.Slots(c)[key]; ok {
			return source(c, key)
		}
	}
	return key
}

// openRecall handles questions without a recognizable slot.
func (t *turn) openRecall(ctx context.Context) *core.Response {
	if !isQuestion(t.text) || len(FactsOf(t.state)) == 0 {
		return nil
	}

	if t.config.SemanticRecall && t.facts != nil {
		hits, err := t.facts.Query(ctx, t.state.UserID, t.state.ConversationID, t.text, 1)
		if err != nil {
			t.log.Warn("semantic recall failed", zap.Error(err))
		}
		if len(hits) > 0 && hits[0].Similarity >= t.config.RecallConfidence {
			hit := hits[0]
			if v, ok := t.state.Lookup(hit.Key); ok {
				resp := core.NewResponse(t.text, core.ActionMemoryRecall, FormatRecall(hit.Key, v))
				resp.Sources = []string{t.sourceOf(hit.Key)}
				return resp
			}
		}
	}

	if answer, ok := t.recallWithGenerator(ctx); ok {
		return core.NewResponse(t.text, core.ActionMemoryRecall, answer)
	}
	return nil
}

func (t *turn) handleChat(ctx context.Context) *core.Response {
	if !t.llm.Available() {
		return core.NewResponse(t.text, core.ActionGeneralChat, AnswerNoAnswer)
	}

	res := t.llm.Generate(ctx, t.chatPrompt(ctx), engine.Options{System: chatSystemPrompt})
	if !res.OK() {
		t.log.Warn("chat generation failed", zap.String("error", res.Error))
		return core.NewResponse(t.text, core.ActionGeneralChat, AnswerChatFailed)
	}
	answer, ok := engine.Sanitize(res.Content)
	if !ok {
		return core.NewResponse(t.text, core.ActionGeneralChat, AnswerNoAnswer)
	}
	return core.NewResponse(t.text, core.ActionGeneralChat, answer)
}

func source(c core.Category, key string) string {
	return string(c) + "." + key
}

// isQuestion reports whether text asks rather than asserts.
func isQuestion(text string) bool {
	return strings.HasSuffix(strings.TrimSpace(text), "?") || questionPrefix.MatchString(normalizeText(text))
}
