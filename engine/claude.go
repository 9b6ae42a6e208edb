package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// DefaultClaudeModel is used when no model is configured.
const DefaultClaudeModel = "claude-sonnet-4-20250514"

// DefaultMaxTokens caps responses when neither the generator nor the request
// sets a limit.
const DefaultMaxTokens int64 = 1024

// ClaudeGenerator generates text through the Anthropic Messages API.
type ClaudeGenerator struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeGenerator creates a generator for the given client.
func NewClaudeGenerator(client *anthropic.Client, model string, maxTokens int64) *ClaudeGenerator {
	if model == "" {
		model = DefaultClaudeModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &ClaudeGenerator{client: client, model: model, maxTokens: maxTokens}
}

// Name implements Generator.
func (g *ClaudeGenerator) Name() string {
	return "anthropic/" + g.model
}

// Generate implements Generator.
func (g *ClaudeGenerator) Generate(ctx context.Context, prompt string, opts Options) Result {
	if g.client == nil {
		return Failure(g.model, errors.New("anthropic client not configured"))
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(opts.Temperature),
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: opts.System},
		}
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return Failure(g.model, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Failure(g.model, errors.New("empty response"))
	}

	return Result{
		Status:  StatusSuccess,
		Content: text.String(),
		Model:   string(resp.Model),
	}
}
