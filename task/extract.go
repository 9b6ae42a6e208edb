package task

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/tools"
)

// ExtractRequest is one slot-extraction call.
type ExtractRequest struct {
	// TaskType is the workflow being filled.
	TaskType string

	// Slots constrains extraction to these slot names.
	Slots []string

	// Pending is the slot the previous turn asked for, if any.
	Pending string

	// Current holds the values filled so far.
	Current map[string]string

	// Text is the user message, case preserved.
	Text string
}

// SlotExtractor finds slot values in a message.
// Implementations: RuleExtractor (regex), LLMExtractor (text generation),
// ChainExtractor (composition).
type SlotExtractor interface {
	Extract(ctx context.Context, req ExtractRequest) (map[string]string, error)
}

// ChainExtractor runs extractors in order. The first non-empty value for a
// slot wins; later extractors only fill gaps.
type ChainExtractor struct {
	extractors []SlotExtractor
	logger     *zap.Logger
}

// NewChainExtractor chains extractors, skipping nil entries, including a nil
// *LLMExtractor from an unconfigured generator.
func NewChainExtractor(logger *zap.Logger, extractors ...SlotExtractor) *ChainExtractor {
	c := &ChainExtractor{logger: logger}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	for _, e := range extractors {
		if e == nil {
			continue
		}
		if x, ok := e.(*LLMExtractor); ok && x == nil {
			continue
		}
		c.extractors = append(c.extractors, e)
	}
	return c
}

// Len returns the number of chained extractors.
func (c *ChainExtractor) Len() int {
	return len(c.extractors)
}

// Extract implements SlotExtractor. Extractor failures are logged and
// skipped.
func (c *ChainExtractor) Extract(ctx context.Context, req ExtractRequest) (map[string]string, error) {
	out := map[string]string{}
	for _, e := range c.extractors {
		if allFilled(req.Slots, out) {
			break
		}
		got, err := e.Extract(ctx, req)
		if err != nil {
			c.logger.Warn("slot extraction failed",
				zap.String("extractor", fmt.Sprintf("%T", e)),
				zap.Error(err))
			continue
		}
		for k, v := range got {
			if _, ok := out[k]; !ok && v != "" {
				out[k] = v
			}
		}
	}
	return out, nil
}

func allFilled(slots []string, got map[string]string) bool {
	for _, s := range slots {
		if got[s] == "" {
			return false
		}
	}
	return true
}

// LLMExtractor asks a text generator for slot values as strict JSON.
type LLMExtractor struct {
	engine *engine.Engine
}

// NewLLMExtractor returns nil when no generator is configured.
func NewLLMExtractor(e *engine.Engine) *LLMExtractor {
	if !e.Available() {
		return nil
	}
	return &LLMExtractor{engine: e}
}

// Extract implements SlotExtractor. Keys outside req.Slots are dropped.
func (x *LLMExtractor) Extract(ctx context.Context, req ExtractRequest) (map[string]string, error) {
	if x == nil || !x.engine.Available() {
		return nil, errors.New("no generator configured")
	}

	prompt := fmt.Sprintf(`Extract slots for a %s task from the message: %q
Filled so far: %s
Expected slots: %s

Example input: "I want to book a flight from Berlin"
Example output: {"from": "Berlin", "type": "flight"}

Return a JSON object with only the extracted slot values. Use null for slots that are not mentioned.
STRICT JSON ONLY. No explanation.`,
		req.TaskType, req.Text, formatSlots(req.Current), strings.Join(req.Slots, ", "))

	doc, err := x.engine.GenerateJSON(ctx, prompt, tools.SlotSchema(req.Slots), engine.Options{Temperature: 0})
	if err != nil {
		return nil, err
	}

	out := map[string]string{}
	for _, slot := range req.Slots {
		if v, ok := doc[slot].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				out[slot] = v
			}
		}
	}
	return out, nil
}

func formatSlots(slots map[string]string) string {
	var parts []string
	for _, k := range sortedKeys(slots) {
		if v := slots[k]; v != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", k, v))
		}
	}
	if len(parts) == 0 {
		return "(none)"
	}
	return strings.Join(parts, ", ")
}
