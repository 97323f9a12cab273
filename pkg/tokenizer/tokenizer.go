// Package tokenizer provides token counting for context budgeting.
//
// The default implementation uses tiktoken (cl100k_base) for accurate
// counts and falls back to a character-based estimate when the encoding
// cannot be loaded.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts the token cost of a text span.
type Counter interface {
	// Count returns the number of tokens in text. Empty text counts as 0.
	Count(text string) int
}

// estimateCharsPerToken is the fallback ratio when no encoding is
// available (roughly 4 characters per token for English text).
const estimateCharsPerToken = 4

// Tiktoken counts tokens using the cl100k_base BPE encoding.
//
// The encoding is loaded lazily on first use. If loading fails (for
// example no network access to fetch the BPE table), counting degrades
// to the character estimate and never errors.
type Tiktoken struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

// NewTiktoken creates a lazy Tiktoken counter.
func NewTiktoken() *Tiktoken {
	return &Tiktoken{}
}

func (t *Tiktoken) init() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			t.encoding = enc
		}
	})
}

// Count returns the token count of text.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	t.init()
	if t.encoding == nil {
		return estimate(text)
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// Truncate shortens text so that it fits within maxTokens, appending an
// ellipsis when anything was cut. Used for the entity context string,
// which is prose rather than a discrete memory entry.
func (t *Tiktoken) Truncate(text string, maxTokens int) string {
	if text == "" || maxTokens <= 0 {
		return ""
	}
	if t.Count(text) <= maxTokens {
		return text
	}
	t.init()
	if t.encoding != nil {
		tokens := t.encoding.Encode(text, nil, nil)
		if len(tokens) > maxTokens-1 {
			tokens = tokens[:maxTokens-1]
		}
		return t.encoding.Decode(tokens) + "..."
	}
	return truncateEstimate(text, maxTokens)
}

// Estimator is a dependency-free Counter using the character estimate.
// Suitable for tests and environments without the BPE table.
type Estimator struct{}

// NewEstimator creates an estimate-based counter.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Count returns an estimated token count (len/4, minimum 1 for
// non-empty text).
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	return estimate(text)
}

func estimate(text string) int {
	n := len(text) / estimateCharsPerToken
	if n == 0 {
		n = 1
	}
	return n
}

func truncateEstimate(text string, maxTokens int) string {
	maxChars := maxTokens*estimateCharsPerToken - 3
	if maxChars <= 0 {
		return "..."
	}
	if len(text) <= maxChars {
		return text
	}
	cut := text[:maxChars]
	// Break at a word boundary when possible.
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
