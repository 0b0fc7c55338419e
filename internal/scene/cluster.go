package scene

import (
	"math"
	"sort"
)

const (
	labelNoise     = -1
	labelUndefined = -2
)

// clusterEps derives the DBSCAN radius from the similarity dial, the batch
// size and the precision level.
func clusterEps(similarityThreshold float64, n, level int) float64 {
	countFactor := 1.0
	switch {
	case n > 30:
		countFactor = 0.8
	case n < 15:
		countFactor = 1.3
	}
	precisionFactor := 1.0
	switch {
	case level <= 3:
		precisionFactor = 1.5
	case level >= 8:
		precisionFactor = 0.7
	}
	return (1 - similarityThreshold) * countFactor * precisionFactor
}

func clusterMinSamples(n int) int {
	s := n / 15
	if s < 2 {
		s = 2
	}
	if s > 4 {
		s = 4
	}
	return s
}

// standardizeColumns rescales each dimension to zero mean and unit variance
// across the batch. Constant dimensions become zero.
func standardizeColumns(matrix [][]float64) [][]float64 {
	if len(matrix) == 0 {
		return nil
	}
	n := len(matrix)
	dims := len(matrix[0])
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, dims)
	}
	col := make([]float64, n)
	for d := 0; d < dims; d++ {
		for i := 0; i < n; i++ {
			col[i] = matrix[i][d]
		}
		mean, std := meanStd(col)
		for i := 0; i < n; i++ {
			if std > 0 {
				out[i][d] = (matrix[i][d] - mean) / std
			}
		}
	}
	return out
}

// euclideanMatrix computes pairwise L2 distances, normalized into [0,1] by
// the batch maximum.
func euclideanMatrix(vectors [][]float64) [][]float64 {
	n := len(vectors)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	maxDist := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum := 0.0
			for d := range vectors[i] {
				diff := vectors[i][d] - vectors[j][d]
				sum += diff * diff
			}
			v := math.Sqrt(sum)
			dist[i][j] = v
			dist[j][i] = v
			if v > maxDist {
				maxDist = v
			}
		}
	}
	if maxDist > 0 {
		for i := range dist {
			for j := range dist[i] {
				dist[i][j] /= maxDist
			}
		}
	}
	return dist
}

// combineDistances folds per-feature distance matrices into one weighted sum.
func combineDistances(perFeature map[Feature][][]float64, weights map[Feature]float64, n int) [][]float64 {
	combined := make([][]float64, n)
	for i := range combined {
		combined[i] = make([]float64, n)
	}
	for f, matrix := range perFeature {
		w := weights[f]
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				combined[i][j] += w * matrix[i][j]
			}
		}
	}
	return combined
}

// dbscan labels points on a precomputed distance matrix. Cluster ids start
// at 0; noise is labelNoise. A point counts itself toward minSamples.
func dbscan(dist [][]float64, eps float64, minSamples int) []int {
	n := len(dist)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = labelUndefined
	}

	neighborsOf := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if dist[i][j] <= eps {
				out = append(out, j)
			}
		}
		return out
	}

	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != labelUndefined {
			continue
		}
		neighbors := neighborsOf(i)
		if len(neighbors) < minSamples {
			labels[i] = labelNoise
			continue
		}
		labels[i] = cluster
		seeds := append([]int(nil), neighbors...)
		for k := 0; k < len(seeds); k++ {
			j := seeds[k]
			if labels[j] == labelNoise {
				labels[j] = cluster
			}
			if labels[j] != labelUndefined {
				continue
			}
			labels[j] = cluster
			jn := neighborsOf(j)
			if len(jn) >= minSamples {
				seeds = append(seeds, jn...)
			}
		}
		cluster++
	}

	for i := range labels {
		if labels[i] == labelUndefined {
			labels[i] = labelNoise
		}
	}
	return labels
}

// clusterRepresentatives picks, per cluster, the member nearest its centroid
// in the standardized feature space. Noise points come back as individuals.
func clusterRepresentatives(labels []int, vectors [][]float64) (reps []int, noise []int) {
	members := map[int][]int{}
	for i, label := range labels {
		if label == labelNoise {
			noise = append(noise, i)
			continue
		}
		members[label] = append(members[label], i)
	}

	clusterIDs := make([]int, 0, len(members))
	for id := range members {
		clusterIDs = append(clusterIDs, id)
	}
	sort.Ints(clusterIDs)

	for _, id := range clusterIDs {
		idx := members[id]
		dims := len(vectors[idx[0]])
		centroid := make([]float64, dims)
		for _, i := range idx {
			for d := range centroid {
				centroid[d] += vectors[i][d]
			}
		}
		for d := range centroid {
			centroid[d] /= float64(len(idx))
		}

		best := idx[0]
		bestDist := math.MaxFloat64
		for _, i := range idx {
			sum := 0.0
			for d := range centroid {
				diff := vectors[i][d] - centroid[d]
				sum += diff * diff
			}
			if sum < bestDist {
				bestDist = sum
				best = i
			}
		}
		reps = append(reps, best)
	}
	return reps, noise
}

// balanceSelection trims or pads the representative set to exactly target
// frames, favoring temporal spread. Returned indices are timestamp-ordered.
func balanceSelection(reps, noise []int, timestamps []float64, target int) []int {
	selected := append(append([]int(nil), reps...), noise...)

	switch {
	case len(selected) < target:
		used := make(map[int]bool, len(selected))
		for _, i := range selected {
			used[i] = true
		}
		var unused []int
		for i := range timestamps {
			if !used[i] {
				unused = append(unused, i)
			}
		}
		fill := pickTimeEven(unused, timestamps, target-len(selected))
		selected = append(selected, fill...)

	case len(selected) > target:
		if len(reps) >= target {
			selected = pickTimeDiverse(reps, timestamps, target, nil)
		} else {
			seed := make([]float64, 0, len(reps))
			for _, i := range reps {
				seed = append(seed, timestamps[i])
			}
			picked := pickTimeDiverse(noise, timestamps, target-len(reps), seed)
			selected = append(append([]int(nil), reps...), picked...)
		}
	}

	sort.Slice(selected, func(a, b int) bool {
		if timestamps[selected[a]] == timestamps[selected[b]] {
			return selected[a] < selected[b]
		}
		return timestamps[selected[a]] < timestamps[selected[b]]
	})
	return selected
}

// pickTimeEven selects k candidates spread evenly across their timestamp
// range.
func pickTimeEven(candidates []int, timestamps []float64, k int) []int {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k >= len(candidates) {
		return append([]int(nil), candidates...)
	}

	ordered := append([]int(nil), candidates...)
	sort.Slice(ordered, func(a, b int) bool {
		return timestamps[ordered[a]] < timestamps[ordered[b]]
	})

	if k == 1 {
		return []int{ordered[len(ordered)/2]}
	}

	out := make([]int, 0, k)
	seen := map[int]bool{}
	for j := 0; j < k; j++ {
		pos := j * (len(ordered) - 1) / (k - 1)
		idx := ordered[pos]
		for seen[idx] && pos+1 < len(ordered) {
			pos++
			idx = ordered[pos]
		}
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	return out
}

// pickTimeDiverse is greedy farthest-point selection on timestamps. With no
// seed, selection starts at the earliest candidate; a seed biases every pick
// away from already-chosen timestamps.
func pickTimeDiverse(candidates []int, timestamps []float64, k int, seed []float64) []int {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k >= len(candidates) {
		return append([]int(nil), candidates...)
	}

	remaining := append([]int(nil), candidates...)
	selectedTs := append([]float64(nil), seed...)
	out := make([]int, 0, k)

	if len(selectedTs) == 0 {
		earliest := 0
		for i, c := range remaining {
			if timestamps[c] < timestamps[remaining[earliest]] {
				earliest = i
			}
		}
		c := remaining[earliest]
		remaining = append(remaining[:earliest], remaining[earliest+1:]...)
		out = append(out, c)
		selectedTs = append(selectedTs, timestamps[c])
	}

	for len(out) < k {
		bestIdx := 0
		bestDist := -1.0
		for i, c := range remaining {
			minDist := math.MaxFloat64
			for _, ts := range selectedTs {
				d := math.Abs(timestamps[c] - ts)
				if d < minDist {
					minDist = d
				}
			}
			if minDist > bestDist {
				bestDist = minDist
				bestIdx = i
			}
		}
		c := remaining[bestIdx]
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
		out = append(out, c)
		selectedTs = append(selectedTs, timestamps[c])
	}
	return out
}
