package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tokens := tokenize("The user prefers Dark Mode in the editor")
	assert.Equal(t, []string{"user", "prefers", "dark", "mode", "editor"}, tokens)

	assert.Nil(t, tokenize(""))
	assert.Empty(t, tokenize("a an the of"))
}

func TestBM25RanksMatchingDocsHigher(t *testing.T) {
	docs := [][]string{
		tokenize("golang channels and goroutines for concurrency"),
		tokenize("favorite pizza toppings mushrooms and olives"),
		tokenize("goroutines leak when channels never close"),
	}
	idx := newBM25Index(docs)

	scores := idx.scores(tokenize("goroutines channels"))

	assert.Greater(t, scores[0], 0.0)
	assert.Greater(t, scores[2], 0.0)
	assert.Zero(t, scores[1])
}

func TestBM25TermFrequencySaturates(t *testing.T) {
	docs := [][]string{
		{"cache", "cache", "cache", "cache", "other"},
		{"cache", "other"},
	}
	idx := newBM25Index(docs)

	scores := idx.scores([]string{"cache"})

	// More occurrences score higher, but not linearly.
	assert.Greater(t, scores[0], scores[1])
	assert.Less(t, scores[0], scores[1]*4)
}

func TestBM25LengthNormalization(t *testing.T) {
	long := make([]string, 0, 41)
	long = append(long, "target")
	for i := 0; i < 40; i++ {
		long = append(long, "filler")
	}
	docs := [][]string{
		{"target", "short"},
		long,
	}
	idx := newBM25Index(docs)

	scores := idx.scores([]string{"target"})
	assert.Greater(t, scores[0], scores[1])
}

func TestBM25NoMatchingTerms(t *testing.T) {
	idx := newBM25Index([][]string{{"alpha", "beta"}})
	scores := idx.scores([]string{"gamma"})
	assert.Zero(t, scores[0])
}
