// Package face holds the embedding type and the nearest-reference matcher used
// by enrollment and recognition.
package face

import "math"

// Embedding is a face descriptor produced by the extractor. Its length is fixed
// by the embedding model; values are compared as-is.
type Embedding []float32

// Clone returns a copy that does not share the backing array.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// Distance returns the Euclidean distance between a and b.
// Vectors of different (or zero) length are never comparable and yield +Inf.
func Distance(a, b Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
