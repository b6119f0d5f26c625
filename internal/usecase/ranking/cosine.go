package ranking

import "math"

const normFloor = 1e-12

// Cosine returns the cosine similarity of a and b. Vectors of different length score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	return dot / (max(math.Sqrt(na), normFloor) * max(math.Sqrt(nb), normFloor))
}
