// Package onnx embeds text offline with ONNX Runtime. Building the runtime
// binding requires the "onnx" build tag; without it New reports that support
// was not compiled in.
package onnx

// Config configures the ONNX embedder.
type Config struct {
	// ModelPath is the ONNX model file.
	ModelPath string

	// TokenizerPath is the HuggingFace tokenizer.json file.
	TokenizerPath string

	// LibraryPath is the onnxruntime shared library. Empty uses the
	// platform default search path.
	LibraryPath string

	// Dimensions is the embedding size (384 for all-MiniLM-L6-v2).
	Dimensions int

	// MaxSeqLen is the padded sequence length.
	MaxSeqLen int
}

func (c *Config) applyDefaults() {
	if c.Dimensions <= 0 {
		c.Dimensions = 384
	}
	if c.MaxSeqLen <= 2 {
		c.MaxSeqLen = 128
	}
}
