// Package mock provides a scripted engine.Generator for tests.
package mock

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/becomeliminal/nim-memory/engine"
)

type rule struct {
	contains string
	result   engine.Result
}

// Generator returns scripted results. Rules matched by prompt substring take
// priority over the queue; an empty queue yields a failure.
type Generator struct {
	mu      sync.Mutex
	rules   []rule
	queue   []engine.Result
	prompts []string
}

// New creates a generator that answers with responses in order.
func New(responses ...string) *Generator {
	g := &Generator{}
	for _, r := range responses {
		g.queue = append(g.queue, success(r))
	}
	return g
}

// On answers content to any prompt containing substr.
func (g *Generator) On(substr, content string) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, rule{contains: substr, result: success(content)})
	return g
}

// FailOn fails any prompt containing substr.
func (g *Generator) FailOn(substr string) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, rule{
		contains: substr,
		result:   engine.Failure("mock", errors.New("scripted failure")),
	})
	return g
}

// Generate implements engine.Generator.
func (g *Generator) Generate(ctx context.Context, prompt string, _ engine.Options) engine.Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prompts = append(g.prompts, prompt)

	if err := ctx.Err(); err != nil {
		return engine.Failure("mock", err)
	}
	for _, r := range g.rules {
		if strings.Contains(prompt, r.contains) {
			return r.result
		}
	}
	if len(g.queue) == 0 {
		return engine.Failure("mock", errors.New("no scripted response"))
	}
	next := g.queue[0]
	g.queue = g.queue[1:]
	return next
}

// Name implements engine.Generator.
func (g *Generator) Name() string {
	return "mock"
}

// Prompts returns every prompt received so far.
func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.prompts))
	copy(out, g.prompts)
	return out
}

// Calls returns the number of Generate calls.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func success(content string) engine.Result {
	return engine.Result{Status: engine.StatusSuccess, Content: content, Model: "mock"}
}
