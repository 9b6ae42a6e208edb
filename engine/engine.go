package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

var (
	// ErrGenerationFailed is returned when the generator reports a non-success
	// status or the request times out.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrInvalidOutput is returned when generated content is not JSON or
	// does not match the expected schema.
	ErrInvalidOutput = errors.New("invalid generator output")
)

// Status of a generation request.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// DefaultTimeout bounds a single generation request.
const DefaultTimeout = 30 * time.Second

// Options tune a single generation request.
type Options struct {
	// System is an optional system prompt.
	System string

	// Temperature is the sampling temperature. Extraction uses 0.
	Temperature float64

	// MaxTokens caps response length. Zero means the generator default.
	MaxTokens int64
}

// Result is the outcome of a generation request. Generators never return
// errors; failures are reported through Status.
type Result struct {
	Status  Status
	Content string
	Model   string
	Error   string
}

// OK reports whether the request succeeded.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Failure builds a failed result.
func Failure(model string, err error) Result {
	return Result{Status: StatusFailure, Model: model, Error: err.Error()}
}

// Generator is the external text-generation service.
// Implementations: ClaudeGenerator (Anthropic API), OllamaGenerator (local),
// mock.Generator (tests).
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) Result
	Name() string
}

// Engine wraps a Generator with a request timeout, logging and structured
// output handling. A nil *Engine is valid and behaves as "no generator".
type Engine struct {
	gen     Generator
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
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

// NewEngine creates an engine around gen. It returns nil when gen is nil so
// callers can treat "no generator configured" uniformly.
func NewEngine(gen Generator, opts ...Option) *Engine {
	if gen == nil {
		return nil
	}
	e := &Engine{
		gen:     gen,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Available reports whether a generator is configured.
func (e *Engine) Available() bool {
	return e != nil && e.gen != nil
}

// Generate runs one request under the engine timeout.
func (e *Engine) Generate(ctx context.Context, prompt string, opts Options) Result {
	if !e.Available() {
		return Failure("", errors.New("no generator configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	res := e.gen.Generate(ctx, prompt, opts)
	if !res.OK() && res.Error == "" && ctx.Err() != nil {
		res.Error = ctx.Err().Error()
	}

	log := e.logger.With(
		zap.String("generator", e.gen.Name()),
		zap.Duration("latency", time.Since(start)),
	)
	if !res.OK() {
		log.Warn("generation failed", zap.String("error", res.Error))
	} else {
		log.Debug("generation succeeded", zap.Int("content_len", len(res.Content)))
	}
	return res
}

// GenerateJSON runs a request and decodes the content as a JSON object that
// must validate against schema. schema may be nil to skip validation.
func (e *Engine) GenerateJSON(ctx context.Context, prompt string, schema map[string]interface{}, opts Options) (map[string]interface{}, error) {
	res := e.Generate(ctx, prompt, opts)
	if !res.OK() {
		return nil, fmt.Errorf("%w: %s", ErrGenerationFailed, res.Error)
	}
	return DecodeJSON(res.Content, schema)
}

// DecodeJSON strips markdown code fences from content, parses it as a JSON
// object and validates it against schema.
func DecodeJSON(content string, schema map[string]interface{}) (map[string]interface{}, error) {
	raw := ExtractJSON(content)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidOutput)
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidOutput)
	}

	if schema != nil {
		if err := Validate(schema, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Validate checks doc against a JSON schema.
func Validate(schema map[string]interface{}, doc interface{}) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("%w: schema validation: %v", ErrInvalidOutput, err)
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			msgs[i] = e.String()
		}
		return fmt.Errorf("%w: %s", ErrInvalidOutput, strings.Join(msgs, "; "))
	}
	return nil
}

// ExtractJSON returns the JSON payload of generated content: the body of the
// first fenced code block when present, otherwise the span from the first
// '{' to the last '}'.
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}

	if i := strings.Index(content, "```"); i >= 0 {
		rest := content[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.HasPrefix(strings.TrimSpace(rest[:nl]), "{") {
			// Drop the language tag, e.g. ```json
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		content = strings.TrimSpace(rest)
	}

	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return ""
	}
	return content[start : end+1]
}

// DefaultAnswerFields is the priority list searched by Sanitize.
var DefaultAnswerFields = []string{
	"decision_output.answer",
	"decision_output.final_recommendation",
	"decision_output.executive_summary",
	"answer",
	"content",
}

// minUsableLength is the shortest answer Sanitize accepts.
const minUsableLength = 5

// Sanitize extracts the first usable string from generator output. JSON
// output is searched along fields (gjson paths) in order; plain text is used
// as-is. It reports false when nothing usable is found.
func Sanitize(output string, fields ...string) (string, bool) {
	if len(fields) == 0 {
		fields = DefaultAnswerFields
	}

	trimmed := strings.TrimSpace(output)
	raw := ExtractJSON(trimmed)
	if raw != "" && gjson.Valid(raw) {
		for _, f := range fields {
			v := gjson.Get(raw, f)
			if v.Type != gjson.String {
				continue
			}
			if s := strings.TrimSpace(v.String()); len(s) > minUsableLength {
				return s, true
			}
		}
		return "", false
	}

	if len(trimmed) > minUsableLength {
		return trimmed, true
	}
	return "", false
}
