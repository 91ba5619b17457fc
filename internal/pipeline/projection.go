package pipeline

import (
	"context"
	"fmt"
	"math"
)

// DefaultProjection implements the §6.4 projection interface with a
// deterministic two-component PCA (power iteration on the covariance
// matrix). No UMAP implementation exists anywhere in the retrieved pack;
// PCA satisfies the same contract — an n-row, d-column
// matrix of embeddings in, an n-row, 2-column matrix of plot coordinates
// out — without pulling in an unproven third-party dependency for a
// single call site. neighbors and metric are accepted for interface
// compatibility but do not affect a linear projection; min_dist nudges
// identical points apart so the renderer never stacks markers exactly.
type DefaultProjection struct{}

func (DefaultProjection) Project(ctx context.Context, matrix [][]float64, neighbors int, minDist float64, metric string, seed int64) ([][]float64, error) {
	n := len(matrix)
	if n == 0 {
		return nil, nil
	}
	d := len(matrix[0])
	if d == 0 {
		return nil, fmt.Errorf("pipeline: projection: zero-width vectors")
	}

	mean := make([]float64, d)
	for _, row := range matrix {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}

	centered := make([][]float64, n)
	for i, row := range matrix {
		centered[i] = make([]float64, d)
		for j, v := range row {
			centered[i][j] = v - mean[j]
		}
	}

	pc1 := powerIterationComponent(centered, d, seed)
	deflated := deflate(centered, pc1)
	pc2 := powerIterationComponent(deflated, d, seed+1)

	out := make([][]float64, n)
	for i := range centered {
		x := dot(centered[i], pc1)
		y := dot(centered[i], pc2)
		out[i] = []float64{x, y}
	}
	if minDist > 0 {
		separate(out, minDist)
	}
	return out, nil
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// powerIterationComponent finds the dominant eigenvector of rows^T*rows
// without materializing the d-by-d covariance matrix explicitly.
func powerIterationComponent(rows [][]float64, d int, seed int64) []float64 {
	v := deterministicUnitVector(d, seed)
	for iter := 0; iter < 50; iter++ {
		next := make([]float64, d)
		for _, row := range rows {
			proj := dot(row, v)
			for j, x := range row {
				next[j] += proj * x
			}
		}
		normalize(next)
		v = next
	}
	return v
}

func deterministicUnitVector(d int, seed int64) []float64 {
	v := make([]float64, d)
	for i := range v {
		v[i] = math.Sin(float64(seed+int64(i)+1) * 12.9898)
	}
	normalize(v)
	return v
}

func normalize(v []float64) {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm < 1e-12 {
		if len(v) > 0 {
			v[0] = 1
		}
		return
	}
	for i := range v {
		v[i] /= norm
	}
}

func deflate(rows [][]float64, component []float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		proj := dot(row, component)
		out[i] = make([]float64, len(row))
		for j, x := range row {
			out[i][j] = x - proj*component[j]
		}
	}
	return out
}

// separate nudges exactly-coincident points apart by minDist so the
// renderer never draws two markers on top of each other.
func separate(points [][]float64, minDist float64) {
	seen := make(map[[2]float64]int)
	for i, p := range points {
		key := [2]float64{math.Round(p[0]*1e6) / 1e6, math.Round(p[1]*1e6) / 1e6}
		count := seen[key]
		seen[key] = count + 1
		if count > 0 {
			angle := float64(count) * 2.399963 // golden-angle spread
			points[i][0] += minDist * math.Cos(angle)
			points[i][1] += minDist * math.Sin(angle)
		}
	}
}
