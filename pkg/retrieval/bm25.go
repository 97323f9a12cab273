package retrieval

import (
	"math"
	"regexp"
	"strings"
)

// Okapi BM25 parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

var tokenPattern = regexp.MustCompile(`\b\w+\b`)

var bm25Stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(
		"a an and are as at be by for from has he in is it its of on that the " +
			"to was were will with this they their what when where which while who " +
			"whom why would could should have had been being can do does did done " +
			"i me my myself we our ours you your yours him his she her hers them theirs") {
		bm25Stopwords[w] = struct{}{}
	}
}

// tokenize lowercases text, splits on word boundaries, and drops
// stopwords and words of two characters or fewer.
func tokenize(text string) []string {
	if text == "" {
		return nil
	}
	words := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, stop := bm25Stopwords[w]; stop {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// bm25Index is an in-memory Okapi BM25 index over a candidate set. It
// is built per query; candidate sets are small enough (bounded by the
// keyword strategy's fetch limit) that indexing cost is negligible.
type bm25Index struct {
	docFreqs  []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

// newBM25Index builds an index over the tokenized documents.
func newBM25Index(docs [][]string) *bm25Index {
	idx := &bm25Index{
		docFreqs: make([]map[string]int, len(docs)),
		docLens:  make([]int, len(docs)),
		idf:      make(map[string]float64),
	}

	termDocCount := make(map[string]int)
	totalLen := 0
	for i, doc := range docs {
		freqs := make(map[string]int, len(doc))
		for _, t := range doc {
			freqs[t]++
		}
		idx.docFreqs[i] = freqs
		idx.docLens[i] = len(doc)
		totalLen += len(doc)
		for t := range freqs {
			termDocCount[t]++
		}
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(docs))
	}

	n := float64(len(docs))
	for term, df := range termDocCount {
		idx.idf[term] = math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
	}
	return idx
}

// scores returns the BM25 score of every document for the query tokens.
func (idx *bm25Index) scores(query []string) []float64 {
	out := make([]float64, len(idx.docFreqs))
	for i, freqs := range idx.docFreqs {
		var score float64
		norm := bm25K1 * (1 - bm25B + bm25B*float64(idx.docLens[i])/idx.avgDocLen)
		for _, term := range query {
			tf := float64(freqs[term])
			if tf == 0 {
				continue
			}
			score += idx.idf[term] * tf * (bm25K1 + 1) / (tf + norm)
		}
		out[i] = score
	}
	return out
}
