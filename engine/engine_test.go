package engine_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/engine/mock"
	"github.com/becomeliminal/nim-memory/tools"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced with tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no tag", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Sure! {"a":1} hope that helps`, `{"a":1}`},
		{"no json", "hello there", ""},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.ExtractJSON(tt.in))
		})
	}
}

func TestDecodeJSON_Schema(t *testing.T) {
	schema := tools.RecallSchema()

	out, err := engine.DecodeJSON("```json\n{\"relevant\":true,\"confidence\":0.9,\"answer\":\"x\"}\n```", schema)
	require.NoError(t, err)
	assert.Equal(t, true, out["relevant"])

	_, err = engine.DecodeJSON(`{"confidence":0.9}`, schema)
	require.ErrorIs(t, err, engine.ErrInvalidOutput)

	_, err = engine.DecodeJSON(`{"relevant":true,"confidence":3}`, schema)
	require.ErrorIs(t, err, engine.ErrInvalidOutput)

	_, err = engine.DecodeJSON("not json", schema)
	require.ErrorIs(t, err, engine.ErrInvalidOutput)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"decision answer", `{"decision_output":{"answer":"Paris is lovely"}}`, "Paris is lovely", true},
		{"fallback field", `{"decision_output":{"answer":"ok"},"answer":"A longer answer"}`, "A longer answer", true},
		{"content field", `{"content":"Hello world"}`, "Hello world", true},
		{"plain text", "Just some text", "Just some text", true},
		{"too short", "hi", "", false},
		{"json without fields", `{"other":"value here"}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := engine.Sanitize(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_Nil(t *testing.T) {
	e := engine.NewEngine(nil)
	assert.Nil(t, e)
	assert.False(t, e.Available())

	res := e.Generate(context.Background(), "hi", engine.Options{})
	assert.False(t, res.OK())

	_, err := e.GenerateJSON(context.Background(), "hi", nil, engine.Options{})
	require.ErrorIs(t, err, engine.ErrGenerationFailed)
}

func TestEngine_GenerateJSON(t *testing.T) {
	gen := mock.New(`{"relevant":false,"confidence":0.1,"answer":""}`)
	e := engine.NewEngine(gen)

	out, err := e.GenerateJSON(context.Background(), "question", tools.RecallSchema(), engine.Options{})
	require.NoError(t, err)
	assert.Equal(t, false, out["relevant"])
	assert.Equal(t, []string{"question"}, gen.Prompts())

	// Queue exhausted.
	_, err = e.GenerateJSON(context.Background(), "again", nil, engine.Options{})
	require.ErrorIs(t, err, engine.ErrGenerationFailed)
}

type slowGenerator struct{}

func (slowGenerator) Name() string { return "slow" }

func (slowGenerator) Generate(ctx context.Context, _ string, _ engine.Options) engine.Result {
	<-ctx.Done()
	return engine.Result{Status: engine.StatusFailure}
}

func TestEngine_Timeout(t *testing.T) {
	e := engine.NewEngine(slowGenerator{}, engine.WithTimeout(20*time.Millisecond))

	start := time.Now()
	res := e.Generate(context.Background(), "hi", engine.Options{})
	assert.False(t, res.OK())
	assert.Contains(t, res.Error, "deadline")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestOllamaGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tiny", req["model"])
		assert.Equal(t, false, req["stream"])
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"response": "generated text", "done": true})
	}))
	defer srv.Close()

	g := engine.NewOllamaGenerator(srv.URL+"/", "tiny", srv.Client())
	assert.Equal(t, "ollama/tiny", g.Name())

	res := g.Generate(context.Background(), "prompt", engine.Options{Temperature: 0})
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, "generated text", res.Content)
}

func TestOllamaGenerator_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	res := engine.NewOllamaGenerator(srv.URL, "missing", nil).Generate(context.Background(), "p", engine.Options{})
	assert.False(t, res.OK())
	assert.Contains(t, res.Error, "404")
}

func TestClaudeGenerator_NoClient(t *testing.T) {
	g := engine.NewClaudeGenerator(nil, "", 0)
	assert.Equal(t, "anthropic/"+engine.DefaultClaudeModel, g.Name())
	assert.False(t, g.Generate(context.Background(), "p", engine.Options{}).OK())
}
