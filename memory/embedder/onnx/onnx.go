//go:build onnx

package onnx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-memory/memory"
)

var (
	envOnce sync.Once
	envErr  error
)

// Embedder generates sentence embeddings with ONNX Runtime, mean pooling the
// last hidden state of a BERT-style model such as all-MiniLM-L6-v2.
type Embedder struct {
	session    *ort.DynamicAdvancedSession
	tokenizer  *Tokenizer
	dimensions int
	maxSeqLen  int
	logger     *zap.Logger

	// Sessions are not safe for concurrent Run calls.
	mu sync.Mutex
}

// New loads the model and tokenizer. The runtime environment is initialized
// once per process from config.LibraryPath.
func New(config Config, logger *zap.Logger) (*Embedder, error) {
	if config.ModelPath == "" {
		return nil, errors.New("onnx: model path is required")
	}
	config.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	envOnce.Do(func() {
		if config.LibraryPath != "" {
			ort.SetSharedLibraryPath(config.LibraryPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	if envErr != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", envErr)
	}

	tokenizer, err := LoadTokenizer(config.TokenizerPath)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(config.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	logger.Info("onnx embedder ready",
		zap.String("model", config.ModelPath),
		zap.Int("dimensions", config.Dimensions))

	return &Embedder{
		session:    session,
		tokenizer:  tokenizer,
		dimensions: config.Dimensions,
		maxSeqLen:  config.MaxSeqLen,
		logger:     logger,
	}, nil
}

// Embed implements memory.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, mask := e.tokenizer.Encode(text, e.maxSeqLen)
	typeIDs := make([]int64, e.maxSeqLen)
	shape := ort.NewShape(1, int64(e.maxSeqLen))

	var inputs []ort.Value
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, data := range [][]int64{ids, mask, typeIDs} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create input tensor: %w", err)
		}
		inputs = append(inputs, t)
	}

	outputs := []ort.Value{nil}
	e.mu.Lock()
	err := e.session.Run(inputs, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("onnx: unexpected output tensor type")
	}
	data, shapeOut := out.GetData(), out.GetShape()

	var embedding []float32
	switch len(shapeOut) {
	case 2:
		// Already pooled: [1, hidden]
		if len(data) < e.dimensions {
			return nil, fmt.Errorf("onnx: output has %d values, want %d", len(data), e.dimensions)
		}
		embedding = make([]float32, e.dimensions)
		copy(embedding, data[:e.dimensions])
	case 3:
		// [1, seq, hidden]
		if shapeOut[0] != 1 || shapeOut[2] != int64(e.dimensions) {
			return nil, fmt.Errorf("onnx: unexpected output shape %v", shapeOut)
		}
		embedding = meanPool(data, int(shapeOut[1]), e.dimensions, mask)
	default:
		return nil, fmt.Errorf("onnx: unexpected output shape %v", shapeOut)
	}

	e.logger.Debug("onnx embedding", zap.Int("tokens", countAttended(mask)))
	return normalize(embedding), nil
}

// Dimensions implements memory.Embedder.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Close releases the session.
func (e *Embedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

func countAttended(mask []int64) int {
	n := 0
	for _, m := range mask {
		n += int(m)
	}
	return n
}

var _ memory.Embedder = (*Embedder)(nil)
