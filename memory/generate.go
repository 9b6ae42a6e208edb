package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/tools"
)

const chatSystemPrompt = "You are a helpful assistant. Use the user context only if it is relevant. Never invent personal details."

const extractionPrompt = `Extract personal information from the message.

Return STRICT JSON only.

Schema:
{"identity": {}, "preferences": {}, "facts": {}}

Keys are short snake_case slot names such as name, age, location, job, favorite_food.
Values are copied from the message. If there is no personal information, return {}.

Message:
%s`

const recallPrompt = `You are a memory reasoning engine.

Stored information:
%s
User question:
%s

Return STRICT JSON only:
{"relevant": true/false, "confidence": 0.0-1.0, "answer": "string"}

Rules:
- If unrelated, relevant=false
- If related, relevant=true and answer using ONLY stored data
- Do not hallucinate`

const summaryPrompt = `Summarize the conversation below in at most five sentences.
Keep facts the user stated about themselves and any open requests.

%s
%s`

// extractFacts asks the generator for facts. Values that do not occur in the
// message are discarded, so the generator cannot introduce facts the user
// never stated.
func (t *turn) extractFacts(ctx context.Context) []core.FactUpdate {
	doc, err := t.llm.GenerateJSON(ctx, fmt.Sprintf(extractionPrompt, t.text), tools.FactExtractionSchema(), engine.Options{})
	if err != nil {
		t.log.Warn("fact extraction failed", zap.Error(err))
		return nil
	}

	lower := strings.ToLower(t.text)
	var out []core.FactUpdate
	for _, c := range core.Categories {
		group, _ := doc[string(c)].(map[string]interface{})
		keys := make([]string, 0, len(group))
		for k := range group {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			v, _ := group[k].(string)
			v = strings.TrimSpace(v)
			key := CanonicalKey(k)
			if v == "" || key == "" {
				continue
			}
			if !strings.Contains(lower, strings.ToLower(v)) {
				t.log.Debug("extracted value not in message, dropped", zap.String("slot", key))
				continue
			}
			category := CategoryFor(key)
			if category == core.CategoryFacts {
				category = c
			}
			out = append(out, core.FactUpdate{Category: category, Key: key, Value: v})
		}
	}
	return out
}

// recallWithGenerator asks the generator to answer from stored facts. The
// answer is used only when it is marked relevant, meets the confidence gate
// and quotes a stored value.
func (t *turn) recallWithGenerator(ctx context.Context) (string, bool) {
	if !t.llm.Available() {
		return "", false
	}
	facts := FactsOf(t.state)
	doc, err := t.llm.GenerateJSON(ctx, fmt.Sprintf(recallPrompt, FormatFacts(facts), t.text), tools.RecallSchema(), engine.Options{})
	if err != nil {
		t.log.Warn("generator recall failed", zap.Error(err))
		return "", false
	}

	relevant, _ := doc["relevant"].(bool)
	confidence, _ := doc["confidence"].(float64)
	answer, _ := doc["answer"].(string)
	answer = strings.TrimSpace(answer)
	if !relevant || confidence < t.config.RecallConfidence || answer == "" {
		return "", false
	}

	lower := strings.ToLower(answer)
	for _, f := range facts {
		if strings.Contains(lower, strings.ToLower(f.Value)) {
			return answer, true
		}
	}
	t.log.Debug("generator recall quoted no stored value, ignored")
	return "", false
}

// chatPrompt assembles stored facts, the conversation summary, recent
// history and the message.
func (t *turn) chatPrompt(ctx context.Context) string {
	var b strings.Builder
	if facts := FormatFacts(FactsOf(t.state)); facts != "" {
		b.WriteString("User context:\n")
		b.WriteString(facts)
		b.WriteString("\n")
	}
	if s := t.state.ConversationSummary; s != "" {
		b.WriteString("Conversation summary:\n")
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	if recent := t.recentHistory(ctx); len(recent) > 0 {
		b.WriteString("Recent conversation:\n")
		b.WriteString(formatMessages(recent))
		b.WriteString("\n")
	}
	b.WriteString("User message:\n")
	b.WriteString(t.text)
	return b.String()
}

func (t *turn) recentHistory(ctx context.Context) []core.Message {
	if t.transcript == nil {
		return nil
	}
	msgs, err := t.transcript.Load(ctx, t.state.UserID, t.state.ConversationID)
	if err != nil {
		t.log.Warn("transcript load failed", zap.Error(err))
		return nil
	}
	if n := t.config.MaxRecentMessages; n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

// record appends the turn to the transcript and refreshes the conversation
// summary when the transcript has outgrown the recent window.
func (m *Manager) record(ctx context.Context, log *zap.Logger, state *core.ConversationState, question, answer string) {
	if m.transcript == nil {
		return
	}
	now := m.now()
	err := m.transcript.Append(ctx, state.UserID, state.ConversationID,
		core.Message{Role: core.RoleUser, Content: question, Timestamp: now},
		core.Message{Role: core.RoleAssistant, Content: answer, Timestamp: now},
	)
	if err != nil {
		log.Warn("transcript append failed", zap.Error(err))
		return
	}

	if !m.llm.Available() {
		return
	}
	count, err := m.transcript.Count(ctx, state.UserID, state.ConversationID)
	if err != nil {
		log.Warn("transcript count failed", zap.Error(err))
		return
	}
	if !m.needsSummary(state, count) {
		return
	}

	msgs, err := m.transcript.Load(ctx, state.UserID, state.ConversationID)
	if err != nil {
		log.Warn("transcript load failed", zap.Error(err))
		return
	}
	if len(msgs) <= m.config.MaxRecentMessages {
		return
	}
	older := msgs[:len(msgs)-m.config.MaxRecentMessages]

	var previous string
	if state.ConversationSummary != "" {
		previous = "Previous summary:\n" + state.ConversationSummary + "\n"
	}
	res := m.llm.Generate(ctx, fmt.Sprintf(summaryPrompt, previous, formatMessages(older)), engine.Options{})
	if !res.OK() {
		log.Warn("summary generation failed", zap.String("error", res.Error))
		return
	}
	if s := strings.TrimSpace(res.Content); s != "" {
		state.ConversationSummary = s
		log.Debug("conversation summarized", zap.Int("messages", len(older)))
	}
}

// needsSummary reports whether the transcript should be summarized: once it
// exceeds the threshold with no summary, then every MaxRecentMessages.
func (m *Manager) needsSummary(state *core.ConversationState, count int) bool {
	window := m.config.MaxRecentMessages
	if window <= 0 || count <= window*m.config.SummaryMultiple {
		return false
	}
	return state.ConversationSummary == "" || count%window == 0
}

func formatMessages(msgs []core.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	return b.String()
}
