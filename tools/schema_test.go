package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectSchema(t *testing.T) {
	s := ObjectSchema(map[string]interface{}{"a": StringProperty("x")}, "a")
	assert.Equal(t, "object", s["type"])
	assert.Equal(t, []string{"a"}, s["required"])

	s = ObjectSchema(map[string]interface{}{})
	_, ok := s["required"]
	assert.False(t, ok)
}

func TestClosed_Copies(t *testing.T) {
	orig := ObjectSchema(map[string]interface{}{})
	closed := Closed(orig)
	assert.Equal(t, false, closed["additionalProperties"])
	_, ok := orig["additionalProperties"]
	assert.False(t, ok)
}

func TestSlotSchema(t *testing.T) {
	s := SlotSchema([]string{"from", "to"})
	props := s["properties"].(map[string]interface{})
	assert.Len(t, props, 2)
	assert.Contains(t, props, "from")
	assert.Equal(t, []string{"string", "null"}, props["to"].(map[string]interface{})["type"])
}

func TestFactExtractionSchema(t *testing.T) {
	s := FactExtractionSchema()
	props := s["properties"].(map[string]interface{})
	for _, k := range []string{"identity", "preferences", "facts"} {
		assert.Contains(t, props, k)
	}
}
