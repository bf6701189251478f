package services

import (
	"crypto/sha1" //nolint:gosec // bucket index, not a security boundary
	"encoding/binary"
	"math"
)

// embeddingDim is the width of the hashed bag-of-words vector.
const embeddingDim = 256

// hashedEmbedding maps each token to a bucket by SHA-1 and weights the
// bucket by term frequency. The result is L2 normalized.
func hashedEmbedding(text string) []float64 {
	vec := make([]float64, embeddingDim)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec
	}

	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	for tok, n := range counts {
		sum := sha1.Sum([]byte(tok)) //nolint:gosec // see import
		idx := binary.BigEndian.Uint32(sum[:4]) % embeddingDim
		vec[idx] += float64(n)
	}

	norm := l2Norm(vec)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// cosineSimilarity is 0 when either vector is all zeros.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	denom := l2Norm(a) * l2Norm(b)
	if denom == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / denom
}

func l2Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
