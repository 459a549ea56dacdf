package tfidf

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"profrag/internal/domain"
)

// Embedder implements a hashed TF-IDF vectorizer with a fixed output size.
// Terms are folded into dimension buckets so the vector length matches the
// index regardless of the corpus vocabulary.
type Embedder struct {
	dimension    int
	idf          []float32
	prepared     bool
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates an unprepared TF-IDF embedder producing vectors of the given size.
func NewEmbedder(dimension int) *Embedder {
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "tfidf" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Prepare computes bucket IDF values from the provided corpus.
func (e *Embedder) Prepare(corpus []string) error {
	if e.dimension <= 0 {
		return errors.New("tfidf dimension must be positive")
	}
	if len(corpus) == 0 {
		return errors.New("empty corpus for TF-IDF prepare")
	}
	df := make([]int, e.dimension)
	for _, text := range corpus {
		seen := make(map[int]struct{})
		for _, tok := range e.tokenize(text) {
			b := e.bucket(tok)
			if _, ok := seen[b]; ok {
				continue
			}
			seen[b] = struct{}{}
			df[b]++
		}
	}
	e.idf = make([]float32, e.dimension)
	n := float64(len(corpus))
	for i, d := range df {
		// Smoothed IDF
		e.idf[i] = float32(math.Log((1+n)/(1+float64(d))) + 1.0)
	}
	e.prepared = true
	return nil
}

// Embed computes the L2-normalized TF-IDF vector for the given text.
// The task type does not influence a lexical embedding.
func (e *Embedder) Embed(ctx context.Context, text string, _ domain.TaskType) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !e.prepared {
		return nil, errors.New("tfidf embedder not prepared")
	}
	vec := make([]float32, e.dimension)
	tokens := e.tokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}
	tf := make(map[int]int)
	for _, tok := range tokens {
		tf[e.bucket(tok)]++
	}
	total := float32(len(tokens))
	for idx, count := range tf {
		vec[idx] = float32(count) / total * e.idf[idx]
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func (e *Embedder) bucket(token string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return int(h.Sum32() % uint32(e.dimension))
}

func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
