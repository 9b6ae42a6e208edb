package onnx

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"unicode"
)

// Tokenizer performs BERT-style WordPiece tokenization from a HuggingFace
// tokenizer.json vocabulary.
type Tokenizer struct {
	vocab map[string]int
	cls   int64
	sep   int64
	unk   int64
}

// LoadTokenizer reads the vocabulary of a tokenizer.json file.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}

	var doc struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if len(doc.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has an empty vocabulary", path)
	}
	return NewTokenizer(doc.Model.Vocab), nil
}

// NewTokenizer builds a tokenizer over vocab. Special tokens default to the
// bert-base-uncased ids when missing from vocab.
func NewTokenizer(vocab map[string]int) *Tokenizer {
	special := func(tok string, def int64) int64 {
		if id, ok := vocab[tok]; ok {
			return int64(id)
		}
		return def
	}
	return &Tokenizer{
		vocab: vocab,
		cls:   special("[CLS]", 101),
		sep:   special("[SEP]", 102),
		unk:   special("[UNK]", 100),
	}
}

// Tokenize lower-cases text, splits words from punctuation and maps each
// word onto vocabulary ids, falling back to WordPiece sub-words.
func (t *Tokenizer) Tokenize(text string) []int64 {
	var ids []int64
	for _, word := range splitWords(strings.ToLower(text)) {
		if id, ok := t.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}
		ids = append(ids, t.wordPiece(word)...)
	}
	return ids
}

// Encode wraps tokens in [CLS] ... [SEP] and pads to maxLen. It returns the
// input ids and the attention mask.
func (t *Tokenizer) Encode(text string, maxLen int) (ids, mask []int64) {
	tokens := t.Tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}

	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)
	ids[0], mask[0] = t.cls, 1
	for i, tok := range tokens {
		ids[i+1], mask[i+1] = tok, 1
	}
	end := len(tokens) + 1
	ids[end], mask[end] = t.sep, 1
	return ids, mask
}

// wordPiece splits word greedily into the longest known prefixes.
func (t *Tokenizer) wordPiece(word string) []int64 {
	var ids []int64
	start := 0
	for start < len(word) {
		end := len(word)
		matched := false
		for end > start {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab[sub]; ok {
				ids = append(ids, int64(id))
				start = end
				matched = true
				break
			}
			end--
		}
		if !matched {
			ids = append(ids, t.unk)
			start++
		}
	}
	return ids
}

func splitWords(text string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			out = append(out, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

// meanPool averages hidden states [seqLen, hidden] over attended positions.
func meanPool(hidden []float32, seqLen, size int, mask []int64) []float32 {
	out := make([]float32, size)
	var attended float32
	for i := 0; i < seqLen && i < len(mask); i++ {
		if mask[i] == 0 {
			continue
		}
		attended++
		row := hidden[i*size : (i+1)*size]
		for j, v := range row {
			out[j] += v
		}
	}
	if attended > 0 {
		for j := range out {
			out[j] /= attended
		}
	}
	return out
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
