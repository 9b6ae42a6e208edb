package memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

func TestFormatRecall(t *testing.T) {
	tests := []struct {
		slot, value, want string
	}{
		{"name", "parv gaur", "Your name is Parv Gaur."},
		{"age", "25", "You are 25 years old."},
		{"location", "new york", "You live in New York."},
		{"exam_date", "5th june", "Your exam is on 5th june."},
		{"certification", "aws", "You mentioned aws."},
		{"project", "nim", "You said you are working on nim."},
		{"job", "intern", "You mentioned your job is intern."},
		{"favorite_food", "sushi", "You mentioned that your favorite food is sushi."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, memory.FormatRecall(tt.slot, tt.value), tt.slot)
	}
}

func TestAcknowledgeAll(t *testing.T) {
	got := memory.AcknowledgeAll([]memory.Update{
		{Type: "name", Value: "parv"},
		{Type: "favorite_food", Value: "sushi"},
	})
	assert.Equal(t, "Nice to meet you, Parv. I'll remember that. I've noted that your favorite food is sushi.", got)
	assert.Equal(t, "I don't have your favorite food yet.", memory.FormatMissing("favorite_food"))
}

func TestFuzzyLookup(t *testing.T) {
	facts := map[string]string{"exam_date": "5th june", "empty": ""}
	keys := []string{"empty", "exam_date"}

	key, val, ok := memory.FuzzyLookup("exam", facts, keys)
	assert.True(t, ok)
	assert.Equal(t, "exam_date", key)
	assert.Equal(t, "5th june", val)

	_, _, ok = memory.FuzzyLookup("empty", facts, keys)
	assert.False(t, ok, "empty values never match")

	_, _, ok = memory.FuzzyLookup("shoe_size", map[string]string{"": "blue"}, []string{""})
	assert.False(t, ok, "an empty key matches nothing")

	_, _, ok = memory.FuzzyLookup("", facts, keys)
	assert.False(t, ok)
}

func TestFactsOf(t *testing.T) {
	state := core.NewConversationState("u1", "c1")
	state.Facts["project"] = "nim"
	state.Identity["name"] = "parv"
	state.Identity["age"] = ""
	state.Preferences["favorite_food"] = "sushi"

	facts := memory.FactsOf(state)
	assert.Equal(t, []memory.Fact{
		{Category: core.CategoryIdentity, Key: "name", Value: "parv"},
		{Category: core.CategoryPreferences, Key: "favorite_food", Value: "sushi"},
		{Category: core.CategoryFacts, Key: "project", Value: "nim"},
	}, facts)
	assert.Equal(t, "- name: parv\n- favorite food: sushi\n- project: nim\n", memory.FormatFacts(facts))
	assert.Empty(t, memory.FormatFacts(nil))
}
