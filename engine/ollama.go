package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultOllamaEndpoint is the local Ollama server.
const DefaultOllamaEndpoint = "http://localhost:11434"

// OllamaGenerator generates text through a local Ollama server.
type OllamaGenerator struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewOllamaGenerator creates a generator for endpoint and model. A nil
// client uses http.DefaultClient; the engine timeout bounds each request.
func NewOllamaGenerator(endpoint, model string, client *http.Client) *OllamaGenerator {
	if endpoint == "" {
		endpoint = DefaultOllamaEndpoint
	}
	if model == "" {
		model = "phi3:mini"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OllamaGenerator{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   client,
	}
}

// Name implements Generator.
func (g *OllamaGenerator) Name() string {
	return "ollama/" + g.model
}

// Generate implements Generator.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string, opts Options) Result {
	req := ollamaGenerateRequest{
		Model:  g.model,
		Prompt: prompt,
		System: opts.System,
		Stream: false,
		Options: ollamaOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Failure(g.model, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Failure(g.model, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Failure(g.model, fmt.Errorf("ollama request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Failure(g.model, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(msg)))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Failure(g.model, fmt.Errorf("decode response: %w", err))
	}
	if out.Error != "" {
		return Failure(g.model, fmt.Errorf("ollama: %s", out.Error))
	}

	return Result{Status: StatusSuccess, Content: out.Response, Model: g.model}
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int64   `json:"num_predict,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}
