package pipeline

import (
	"context"
	"math"
)

// DefaultClustering implements the §6.4 clustering interface with a
// straightforward density-based scan over the 2-D projection: a point is
// a core point if at least minSamples neighbors (including itself) fall
// within a radius set to the median distance from each point to its
// minSamples-th nearest neighbor, and connected core points form a
// cluster exactly as DBSCAN does; clusters with fewer than minClusterSize
// members are then demoted to noise. No HDBSCAN/DBSCAN implementation
// exists in the retrieved pack; on a 2-D input this is
// cheap enough to run directly rather than importing an unproven
// dependency for a single call site.
type DefaultClustering struct{}

func (DefaultClustering) Cluster(ctx context.Context, matrix [][]float64, minClusterSize, minSamples int) ([]int, error) {
	n := len(matrix)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	if n == 0 {
		return labels, nil
	}
	if minSamples < 1 {
		minSamples = 1
	}

	eps := estimateEpsilon(matrix, minSamples)

	visited := make([]bool, n)
	nextLabel := 0

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		neighbors := regionQuery(matrix, i, eps)
		if len(neighbors) < minSamples {
			continue // stays noise (-1)
		}

		labels[i] = nextLabel
		seeds := append([]int{}, neighbors...)
		for k := 0; k < len(seeds); k++ {
			j := seeds[k]
			if !visited[j] {
				visited[j] = true
				jn := regionQuery(matrix, j, eps)
				if len(jn) >= minSamples {
					seeds = append(seeds, jn...)
				}
			}
			if labels[j] == -1 {
				labels[j] = nextLabel
			}
		}
		nextLabel++
	}

	return enforceMinClusterSize(labels, minClusterSize), nil
}

func estimateEpsilon(matrix [][]float64, minSamples int) float64 {
	n := len(matrix)
	if n < 2 {
		return 1
	}
	// Median of each point's distance to its minSamples-th nearest
	// neighbor, a standard DBSCAN epsilon heuristic.
	dists := make([]float64, 0, n)
	for i := range matrix {
		kth := kthNearestDistance(matrix, i, minSamples)
		dists = append(dists, kth)
	}
	return median(dists)
}

func kthNearestDistance(matrix [][]float64, i, k int) float64 {
	ds := make([]float64, 0, len(matrix)-1)
	for j := range matrix {
		if j == i {
			continue
		}
		ds = append(ds, euclidean(matrix[i], matrix[j]))
	}
	sortFloats(ds)
	if k-1 >= len(ds) {
		if len(ds) == 0 {
			return 0
		}
		return ds[len(ds)-1]
	}
	if k-1 < 0 {
		return ds[0]
	}
	return ds[k-1]
}

func regionQuery(matrix [][]float64, i int, eps float64) []int {
	var out []int
	for j := range matrix {
		if euclidean(matrix[i], matrix[j]) <= eps {
			out = append(out, j)
		}
	}
	return out
}

func euclidean(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}

func sortFloats(xs []float64) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	cp := append([]float64{}, xs...)
	sortFloats(cp)
	mid := len(cp) / 2
	if len(cp)%2 == 0 {
		return (cp[mid-1] + cp[mid]) / 2
	}
	return cp[mid]
}

// enforceMinClusterSize demotes any cluster smaller than minClusterSize
// back to noise and renumbers the survivors from 0 contiguously.
func enforceMinClusterSize(labels []int, minClusterSize int) []int {
	if minClusterSize < 1 {
		minClusterSize = 1
	}
	counts := make(map[int]int)
	for _, l := range labels {
		if l >= 0 {
			counts[l]++
		}
	}

	remap := make(map[int]int)
	next := 0
	out := make([]int, len(labels))
	for i, l := range labels {
		if l < 0 || counts[l] < minClusterSize {
			out[i] = -1
			continue
		}
		id, ok := remap[l]
		if !ok {
			id = next
			remap[l] = id
			next++
		}
		out[i] = id
	}
	return out
}
