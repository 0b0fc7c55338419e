package scene

import (
	"math"
	"reflect"
	"sort"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestClusterEps(t *testing.T) {
	if got := clusterEps(0.92, 20, 5); !almostEqual(got, 0.08) {
		t.Fatalf("neutral eps = %v", got)
	}
	if got := clusterEps(0.92, 40, 9); !almostEqual(got, 0.08*0.8*0.7) {
		t.Fatalf("large-batch high-precision eps = %v", got)
	}
	if got := clusterEps(0.92, 10, 2); !almostEqual(got, 0.08*1.3*1.5) {
		t.Fatalf("small-batch low-precision eps = %v", got)
	}
}

func TestClusterMinSamples(t *testing.T) {
	cases := map[int]int{10: 2, 29: 2, 45: 3, 60: 4, 100: 4}
	for n, want := range cases {
		if got := clusterMinSamples(n); got != want {
			t.Errorf("minSamples(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestStandardizeColumns(t *testing.T) {
	matrix := [][]float64{{1, 5}, {3, 5}, {5, 5}}
	out := standardizeColumns(matrix)

	for i := range out {
		if out[i][1] != 0 {
			t.Fatalf("constant column should standardize to zero, got %v", out[i][1])
		}
	}
	if !almostEqual(out[0][0]+out[2][0], 0) || out[1][0] != 0 {
		t.Fatalf("standardized column = [%v %v %v]", out[0][0], out[1][0], out[2][0])
	}
	std := math.Sqrt(8.0 / 3.0)
	if !almostEqual(out[0][0], -2.0/std) {
		t.Fatalf("first value = %v, want %v", out[0][0], -2.0/std)
	}
}

func TestEuclideanMatrixNormalizesToUnit(t *testing.T) {
	vectors := [][]float64{{0}, {3}, {6}}
	dist := euclideanMatrix(vectors)
	if !almostEqual(dist[0][2], 1.0) {
		t.Fatalf("max distance should normalize to 1, got %v", dist[0][2])
	}
	if !almostEqual(dist[0][1], 0.5) || !almostEqual(dist[1][2], 0.5) {
		t.Fatalf("mid distances = %v, %v", dist[0][1], dist[1][2])
	}
	for i := range dist {
		if dist[i][i] != 0 {
			t.Fatalf("diagonal must be zero")
		}
		for j := range dist {
			if dist[i][j] != dist[j][i] {
				t.Fatalf("matrix must be symmetric")
			}
		}
	}
}

func TestCombineDistancesWeighted(t *testing.T) {
	perFeature := map[Feature][][]float64{
		FeatureColorHistogram: {{0, 1}, {1, 0}},
		FeatureEdgeDensity:    {{0, 0.5}, {0.5, 0}},
	}
	weights := map[Feature]float64{
		FeatureColorHistogram: 0.75,
		FeatureEdgeDensity:    0.25,
	}
	combined := combineDistances(perFeature, weights, 2)
	if !almostEqual(combined[0][1], 0.875) {
		t.Fatalf("combined distance = %v", combined[0][1])
	}
}

func TestDBSCANSeparatesGroupsAndNoise(t *testing.T) {
	vectors := [][]float64{{0.0}, {0.1}, {0.2}, {5.0}, {5.1}, {20.0}}
	dist := euclideanMatrix(vectors)

	labels := dbscan(dist, 0.05, 2)
	want := []int{0, 0, 0, 1, 1, labelNoise}
	if !reflect.DeepEqual(labels, want) {
		t.Fatalf("labels = %v, want %v", labels, want)
	}

	reps, noise := clusterRepresentatives(labels, vectors)
	if !reflect.DeepEqual(reps, []int{1, 3}) {
		t.Fatalf("representatives = %v", reps)
	}
	if !reflect.DeepEqual(noise, []int{5}) {
		t.Fatalf("noise = %v", noise)
	}
}

func TestDBSCANAllNoiseWhenSparse(t *testing.T) {
	vectors := [][]float64{{0}, {10}, {20}, {30}}
	dist := euclideanMatrix(vectors)
	labels := dbscan(dist, 0.01, 2)
	for i, l := range labels {
		if l != labelNoise {
			t.Fatalf("point %d should be noise, got label %d", i, l)
		}
	}
}

// Twenty-four frames clustering into four groups with no noise must yield
// the four representatives plus two time-even fillers at the default
// precision target of six.
func TestBalanceSelectionPadsWithTimeEvenFillers(t *testing.T) {
	timestamps := make([]float64, 24)
	for i := range timestamps {
		timestamps[i] = float64(i) * 5
	}
	reps := []int{2, 9, 15, 20}

	selected := balanceSelection(reps, nil, timestamps, 6)
	if len(selected) != 6 {
		t.Fatalf("selected %d frames, want 6", len(selected))
	}
	if !reflect.DeepEqual(selected, []int{0, 2, 9, 15, 20, 23}) {
		t.Fatalf("selected = %v", selected)
	}
	if !sort.SliceIsSorted(selected, func(a, b int) bool {
		return timestamps[selected[a]] < timestamps[selected[b]]
	}) {
		t.Fatalf("selection must be timestamp-ordered: %v", selected)
	}
}

func TestBalanceSelectionTrimsRepsTimeDiverse(t *testing.T) {
	timestamps := []float64{0, 1, 2, 3, 50, 51, 52, 100}
	reps := []int{0, 1, 2, 3, 4, 5, 6, 7}

	selected := balanceSelection(reps, nil, timestamps, 3)
	if len(selected) != 3 {
		t.Fatalf("selected %d, want 3", len(selected))
	}
	if selected[0] != 0 || selected[len(selected)-1] != 7 {
		t.Fatalf("farthest-point selection should keep the extremes: %v", selected)
	}
}

func TestBalanceSelectionKeepsAllRepsBeforeNoise(t *testing.T) {
	timestamps := []float64{0, 10, 20, 30, 40, 50, 60, 70}
	reps := []int{1, 4}
	noise := []int{0, 2, 3, 5, 6, 7}

	selected := balanceSelection(reps, noise, timestamps, 4)
	if len(selected) != 4 {
		t.Fatalf("selected %d, want 4", len(selected))
	}
	found := map[int]bool{}
	for _, i := range selected {
		found[i] = true
	}
	if !found[1] || !found[4] {
		t.Fatalf("cluster representatives must survive trimming: %v", selected)
	}
}

func TestBalanceSelectionExactFitUnchanged(t *testing.T) {
	timestamps := []float64{0, 10, 20}
	selected := balanceSelection([]int{2, 0, 1}, nil, timestamps, 3)
	if !reflect.DeepEqual(selected, []int{0, 1, 2}) {
		t.Fatalf("exact fit should only reorder by time: %v", selected)
	}
}

func TestPickTimeEven(t *testing.T) {
	timestamps := []float64{0, 1, 2, 3, 4}
	got := pickTimeEven([]int{0, 1, 2, 3, 4}, timestamps, 3)
	if !reflect.DeepEqual(got, []int{0, 2, 4}) {
		t.Fatalf("even pick = %v", got)
	}
	if got := pickTimeEven([]int{3, 1}, timestamps, 5); len(got) != 2 {
		t.Fatalf("k beyond candidates should return all, got %v", got)
	}
	if got := pickTimeEven(nil, timestamps, 2); got != nil {
		t.Fatalf("no candidates should return nil, got %v", got)
	}
}

func TestPickTimeDiverseStartsEarliest(t *testing.T) {
	timestamps := []float64{0, 1, 2, 3, 10, 11}
	got := pickTimeDiverse([]int{0, 1, 2, 3, 4, 5}, timestamps, 3, nil)
	if len(got) != 3 {
		t.Fatalf("picked %d, want 3", len(got))
	}
	if got[0] != 0 {
		t.Fatalf("selection must start at the earliest candidate, got %v", got)
	}
	found := map[int]bool{}
	for _, i := range got {
		found[i] = true
	}
	if !found[5] {
		t.Fatalf("farthest point should be picked second: %v", got)
	}
}

func TestPickTimeDiverseSeedBiasesAway(t *testing.T) {
	timestamps := []float64{0, 5, 100}
	got := pickTimeDiverse([]int{0, 1, 2}, timestamps, 1, []float64{0})
	if !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("seeded pick = %v", got)
	}
}
