// Package vectorize implements the deterministic, dependency-free feature
// hashing vectorizer used as the default embedder: same text and dimension
// always produce the same vector on any platform, with no model weights or
// network calls involved.
package vectorize

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"regexp"
	"strings"
)

// DefaultDimensions matches the default EmbeddingGemma dimensionality so the
// static vectorizer is a drop-in fallback for the network-backed embedders.
const DefaultDimensions = 768

var nonWordRe = regexp.MustCompile(`[^\w\s]+`)
var wsRe = regexp.MustCompile(`\s+`)

// Vectorizer turns text into a deterministic, L2-normalized feature vector of
// fixed dimension D using hashed word n-grams (n in [1,3]).
type Vectorizer struct {
	dimensions int
}

// New returns a Vectorizer producing vectors of the given dimension. A
// dimension <= 0 falls back to DefaultDimensions.
func New(dimensions int) *Vectorizer {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Vectorizer{dimensions: dimensions}
}

// Dimensions reports the vector length this Vectorizer produces.
func (v *Vectorizer) Dimensions() int { return v.dimensions }

// Vectorize computes the deterministic embedding for text.
//
// Algorithm: lowercase, replace every run of non-word/non-whitespace runes
// with a single space, collapse whitespace, split into tokens, then for
// every n in [1,3] generate all contiguous token n-grams (joined with "_").
// Each n-gram is hashed with SHA-256; the first 4 bytes are interpreted as a
// big-endian signed int32 h. The target bucket is idx = |h| mod D and the
// sign of h determines whether the bucket is incremented or decremented.
// The resulting vector is L2-normalized; an all-zero vector (empty input) is
// returned unchanged.
func (v *Vectorizer) Vectorize(text string) []float32 {
	vec := make([]float32, v.dimensions)

	tokens := tokenize(text)
	for n := 1; n <= 3 && n <= len(tokens); n++ {
		for i := 0; i+n <= len(tokens); i++ {
			ngram := strings.Join(tokens[i:i+n], "_")
			h := hashNgram(ngram)
			idx := absInt32(h) % int32(v.dimensions)
			if h >= 0 {
				vec[idx] += 1
			} else {
				vec[idx] -= 1
			}
		}
	}

	return normalize(vec)
}

func tokenize(text string) []string {
	lower := strings.ToLower(text)
	cleaned := nonWordRe.ReplaceAllString(lower, " ")
	collapsed := wsRe.ReplaceAllString(cleaned, " ")
	fields := strings.Fields(collapsed)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func hashNgram(ngram string) int32 {
	sum := sha256.Sum256([]byte(ngram))
	return int32(binary.BigEndian.Uint32(sum[0:4]))
}

func absInt32(h int32) int32 {
	if h == math.MinInt32 {
		return math.MaxInt32
	}
	if h < 0 {
		return -h
	}
	return h
}

func normalize(vec []float32) []float32 {
	var sumSq float64
	for _, x := range vec {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return vec
	}
	mag := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= mag
	}
	return vec
}
