package task_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/task"
)

const hotelCatalog = `
tasks:
  - type: hotel_booking
    required_slots: [city, nights]
    questions:
      city: Which city?
    triggers:
      - '\bbook\b.*\bhotel\b'
    summary: "Hotel in {{.city}} for {{.nights}} nights."
`

func TestDefaultCatalog(t *testing.T) {
	c := task.DefaultCatalog()
	assert.Equal(t, []string{task.TicketBooking}, c.Types())

	def, ok := c.Get(task.TicketBooking)
	require.True(t, ok)
	assert.Equal(t, []string{"type", "from", "to", "date", "class", "passenger_count"}, def.RequiredSlots)
	assert.Equal(t, "When is the travel date?", def.Question("date"))
	assert.Equal(t, "Please provide the seat.", def.Question("seat"))
	assert.True(t, def.Has("class"))
	assert.False(t, def.Has("seat"))
}

func TestCatalog_Detect(t *testing.T) {
	c := task.DefaultCatalog()

	tests := []struct {
		text string
		want bool
	}{
		{"I want to book a flight from Delhi to Mumbai.", true},
		{"Can you reserve two train tickets?", true},
		{"Book me a bus to Pune", true},
		{"I need a ticket", true},
		{"My favorite food is sushi", false},
		{"What is my name?", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			typ, ok := c.Detect(tt.text)
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.Equal(t, task.TicketBooking, typ)
			}
		})
	}
}

func TestDefinition_MissingAndRender(t *testing.T) {
	def, _ := task.DefaultCatalog().Get(task.TicketBooking)

	slots := map[string]string{"type": "train", "from": "Delhi", "to": " "}
	assert.Equal(t, []string{"to", "date", "class", "passenger_count"}, def.Missing(slots))

	summary, err := def.Render(map[string]string{
		"type": "flight", "from": "Delhi", "to": "Mumbai",
		"date": "tomorrow", "class": "Economy", "passenger_count": "2",
	})
	require.NoError(t, err)
	assert.Equal(t, "Your flight booking from Delhi to Mumbai on tomorrow for 2 passengers has been processed.", summary)
}

func TestParseCatalog(t *testing.T) {
	c, err := task.ParseCatalog([]byte(hotelCatalog))
	require.NoError(t, err)
	assert.Equal(t, []string{task.TicketBooking, "hotel_booking"}, c.Types())

	typ, ok := c.Detect("could you book me a hotel")
	require.True(t, ok)
	assert.Equal(t, "hotel_booking", typ)

	def, _ := c.Get("hotel_booking")
	assert.Equal(t, "Which city?", def.Question("city"))
	assert.Equal(t, "Please provide the nights.", def.Question("nights"))
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := map[string]string{
		"bad yaml":     "tasks: [",
		"no type":      "tasks:\n  - required_slots: [a]\n",
		"no slots":     "tasks:\n  - type: x\n",
		"bad trigger":  "tasks:\n  - type: x\n    required_slots: [a]\n    triggers: ['(']\n",
		"bad template": "tasks:\n  - type: x\n    required_slots: [a]\n    summary: '{{.a'\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := task.ParseCatalog([]byte(data))
			require.Error(t, err)
		})
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := task.LoadCatalog(t.TempDir() + "/missing.yaml")
	require.Error(t, err)
}
