package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVocab = map[string]int{
	"[PAD]": 0, "[UNK]": 100, "[CLS]": 101, "[SEP]": 102,
	"my": 1, "name": 2, "is": 3, "par": 4, "##v": 5, "!": 6,
}

func TestTokenize(t *testing.T) {
	tok := NewTokenizer(testVocab)

	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, tok.Tokenize("My name is Parv!"))
	assert.Equal(t, []int64{100, 100}, tok.Tokenize("zz"))
}

func TestEncode(t *testing.T) {
	tok := NewTokenizer(testVocab)

	ids, mask := tok.Encode("my name", 6)
	assert.Equal(t, []int64{101, 1, 2, 102, 0, 0}, ids)
	assert.Equal(t, []int64{1, 1, 1, 1, 0, 0}, mask)

	ids, _ = tok.Encode("my name is my name", 4)
	assert.Equal(t, []int64{101, 1, 2, 102}, ids)
}

func TestLoadTokenizer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"model":{"vocab":{"hello":7,"[CLS]":1,"[SEP]":2}}}`), 0o644))

	tok, err := LoadTokenizer(path)
	require.NoError(t, err)
	ids, _ := tok.Encode("hello", 3)
	assert.Equal(t, []int64{1, 7, 2}, ids)

	require.NoError(t, os.WriteFile(path, []byte(`{"model":{}}`), 0o644))
	_, err = LoadTokenizer(path)
	require.Error(t, err)
}

func TestMeanPoolAndNormalize(t *testing.T) {
	hidden := []float32{
		1, 3,
		3, 5,
		100, 100,
	}
	got := meanPool(hidden, 3, 2, []int64{1, 1, 0})
	assert.Equal(t, []float32{2, 4}, got)

	n := normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, n[0], 1e-6)
	assert.InDelta(t, 0.8, n[1], 1e-6)
}

func TestConfigDefaults(t *testing.T) {
	c := Config{MaxSeqLen: 1}
	c.applyDefaults()
	assert.Equal(t, 384, c.Dimensions)
	assert.Equal(t, 128, c.MaxSeqLen)
}
