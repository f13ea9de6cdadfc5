package knowledge

import (
	"fmt"
	"math"
)

// flatIndex is an exhaustive inner-product index over L2-normalized vectors,
// so scores are cosine similarities in [-1, 1].
type flatIndex struct {
	dim     int
	vectors [][]float32
}

func (ix *flatIndex) add(v []float32) error {
	if ix.dim == 0 {
		ix.dim = len(v)
	}
	if len(v) != ix.dim || ix.dim == 0 {
		return fmt.Errorf("vector has dimension %d, index expects %d", len(v), ix.dim)
	}
	ix.vectors = append(ix.vectors, normalize(v))
	return nil
}

// scores returns the similarity of q to every stored vector, by insertion order.
func (ix *flatIndex) scores(q []float32) ([]float64, error) {
	if len(q) != ix.dim {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(q), ix.dim)
	}
	q = normalize(q)
	out := make([]float64, len(ix.vectors))
	for i, v := range ix.vectors {
		var dot float64
		for j := range v {
			dot += float64(v[j]) * float64(q[j])
		}
		out[i] = dot
	}
	return out, nil
}

func (ix *flatIndex) len() int {
	return len(ix.vectors)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}
