// Package task drives multi-turn slot-filling workflows such as ticket
// booking: required-slot tracking, next-question selection, completion
// summaries and inactivity expiry.
package task

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// TicketBooking is the built-in workflow type.
const TicketBooking = "ticket_booking"

var (
	// ErrUnknownTask is returned for a workflow type missing from the catalog.
	ErrUnknownTask = errors.New("unknown task type")

	// ErrTaskClosed is returned when a completed or expired task receives
	// another turn.
	ErrTaskClosed = errors.New("task is closed")
)

// Definition describes one workflow type.
type Definition struct {
	Type string `yaml:"type"`

	// RequiredSlots are asked for in this order.
	RequiredSlots []string `yaml:"required_slots"`

	// Questions maps a slot to the clarifying question asking for it.
	Questions map[string]string `yaml:"questions"`

	// Triggers are case-insensitive regular expressions that start the
	// workflow when they match a message.
	Triggers []string `yaml:"triggers"`

	// Summary is a text/template rendered over the filled slots on completion.
	Summary string `yaml:"summary"`

	triggers []*regexp.Regexp
	summary  *template.Template
}

func (d *Definition) compile() error {
	if d.Type == "" {
		return errors.New("task definition: type is required")
	}
	if len(d.RequiredSlots) == 0 {
		return fmt.Errorf("task %s: required_slots is empty", d.Type)
	}

	d.triggers = d.triggers[:0]
	for _, t := range d.Triggers {
		re, err := regexp.Compile("(?i)" + t)
		if err != nil {
			return fmt.Errorf("task %s: trigger %q: %w", d.Type, t, err)
		}
		d.triggers = append(d.triggers, re)
	}

	summary := d.Summary
	if summary == "" {
		summary = "Task processed successfully."
	}
	tmpl, err := template.New(d.Type).Option("missingkey=zero").Parse(summary)
	if err != nil {
		return fmt.Errorf("task %s: summary: %w", d.Type, err)
	}
	d.summary = tmpl
	return nil
}

// Question returns the clarifying question for slot.
func (d *Definition) Question(slot string) string {
	if q, ok := d.Questions[slot]; ok && q != "" {
		return q
	}
	return fmt.Sprintf("Please provide the %s.", slot)
}

// Matches reports whether text triggers the workflow.
func (d *Definition) Matches(text string) bool {
	for _, re := range d.triggers {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Render fills the summary template with slots.
func (d *Definition) Render(slots map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := d.summary.Execute(&buf, slots); err != nil {
		return "", fmt.Errorf("render %s summary: %w", d.Type, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Missing lists required slots without a value, in declared order.
func (d *Definition) Missing(slots map[string]string) []string {
	var out []string
	for _, s := range d.RequiredSlots {
		if strings.TrimSpace(slots[s]) == "" {
			out = append(out, s)
		}
	}
	return out
}

// Has reports whether slot is required by the workflow.
func (d *Definition) Has(slot string) bool {
	for _, s := range d.RequiredSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// TicketBookingDefinition is the built-in booking workflow.
func TicketBookingDefinition() Definition {
	return Definition{
		Type:          TicketBooking,
		RequiredSlots: []string{"type", "from", "to", "date", "class", "passenger_count"},
		Questions: map[string]string{
			"type":            "What kind of ticket are you booking (flight, train, bus)?",
			"from":            "Where are you traveling from?",
			"to":              "Where are you traveling to?",
			"date":            "When is the travel date?",
			"class":           "Which class would you like (Economy, Business, First)?",
			"passenger_count": "How many passengers?",
		},
		Triggers: []string{
			`\b(?:book|reserve|buy)\b.*\b(?:tickets?|flights?|trains?|bus(?:es)?|seats?)\b`,
			`\b(?:i need|i want|get me)\s+(?:a|an|some)?\s*(?:tickets?|flights?|train tickets?|bus tickets?)\b`,
		},
		Summary: "Your {{.type}} booking from {{.from}} to {{.to}} on {{.date}} for {{.passenger_count}} passengers has been processed.",
	}
}

// Catalog holds the known workflow definitions.
type Catalog struct {
	defs  map[string]*Definition
	order []string
}

// NewCatalog builds a catalog. A later definition replaces an earlier one
// of the same type but keeps its detection priority.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{defs: map[string]*Definition{}}
	for i := range defs {
		if err := c.add(defs[i]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DefaultCatalog contains the built-in workflows.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(TicketBookingDefinition())
	if err != nil {
		// Built-ins are static.
		panic(err)
	}
	return c
}

type catalogFile struct {
	Tasks []Definition `yaml:"tasks"`
}

// LoadCatalog reads workflow definitions from a YAML file and merges them
// over the built-ins.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses YAML catalog data and merges it over the built-ins.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse task catalog: %w", err)
	}
	return NewCatalog(append([]Definition{TicketBookingDefinition()}, f.Tasks...)...)
}

func (c *Catalog) add(d Definition) error {
	if err := d.compile(); err != nil {
		return err
	}
	if _, ok := c.defs[d.Type]; !ok {
		c.order = append(c.order, d.Type)
	}
	c.defs[d.Type] = &d
	return nil
}

// Get returns the definition of a workflow type.
func (c *Catalog) Get(taskType string) (*Definition, bool) {
	d, ok := c.defs[taskType]
	return d, ok
}

// Types lists workflow types in detection order.
func (c *Catalog) Types() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Detect returns the first workflow triggered by text.
func (c *Catalog) Detect(text string) (string, bool) {
	for _, t := range c.order {
		if c.defs[t].Matches(text) {
			return t, true
		}
	}
	return "", false
}
