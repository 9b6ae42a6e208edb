//go:build !onnx

package onnx

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrNotCompiled is returned when the binary was built without the onnx tag.
var ErrNotCompiled = errors.New("onnx: support not compiled in (build with -tags onnx)")

// Embedder is unavailable without the onnx build tag.
type Embedder struct{}

// New always fails without the onnx build tag.
func New(config Config, logger *zap.Logger) (*Embedder, error) {
	return nil, ErrNotCompiled
}

// Embed always fails.
func (e *Embedder) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrNotCompiled
}

// Dimensions returns 0.
func (e *Embedder) Dimensions() int { return 0 }

// Close is a no-op.
func (e *Embedder) Close() error { return nil }
