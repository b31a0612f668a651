package store

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Similarity returns the cosine similarity of a and b clamped to [0,1].
// Mismatched or zero vectors score 0.
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	af := toFloat64(a)
	bf := toFloat64(b)

	magA := math.Sqrt(floats.Dot(af, af))
	magB := math.Sqrt(floats.Dot(bf, bf))
	if magA == 0 || magB == 0 {
		return 0
	}

	sim := floats.Dot(af, bf) / (magA * magB)
	switch {
	case sim < 0:
		return 0
	case sim > 1:
		return 1
	}
	return sim
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
