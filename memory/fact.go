package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/becomeliminal/nim-memory/core"
)

// Fact is one stored slot of a conversation.
type Fact struct {
	Category core.Category
	Key      string
	Value    string
}

// ID identifies the fact within its conversation. Keys are unique across
// categories, so the key alone is enough.
func (f Fact) ID() string {
	return f.Key
}

// Format renders the fact for prompt injection and embedding:
// "favorite food: sushi".
func (f Fact) Format() string {
	return fmt.Sprintf("%s: %s", Label(f.Key), f.Value)
}

// Metadata returns the attributes stored alongside the fact's vector.
func (f Fact) Metadata() map[string]string {
	return map[string]string{
		"category": string(f.Category),
		"key":      f.Key,
		"value":    f.Value,
	}
}

// FactFromMetadata rebuilds a fact from Metadata output.
func FactFromMetadata(md map[string]string) Fact {
	return Fact{
		Category: core.Category(md["category"]),
		Key:      md["key"],
		Value:    md["value"],
	}
}

// ScoredFact is a fact with its similarity to a query.
type ScoredFact struct {
	Fact
	Similarity float64
}

// FactsOf lists every non-empty stored fact, grouped by category in lookup
// order and sorted by key within a category.
func FactsOf(state *core.ConversationState) []Fact {
	var out []Fact
	for _, c := range core.Categories {
		slots := state.Slots(c)
		for _, k := range sortedKeys(slots) {
			if v := slots[k]; v != "" {
				out = append(out, Fact{Category: c, Key: k, Value: v})
			}
		}
	}
	return out
}

// FormatFacts renders facts as a bullet block for prompts, or "" when empty.
func FormatFacts(facts []Fact) string {
	if len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range facts {
		b.WriteString("- ")
		b.WriteString(f.Format())
		b.WriteByte('\n')
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
