package scene

// Feature identifies one perceptual measurement computed per mid-frame.
type Feature string

const (
	FeatureColorHistogram Feature = "color_histogram"
	FeatureEdgeDensity    Feature = "edge_density"
	FeatureBrightness     Feature = "brightness"
	FeatureContrast       Feature = "contrast"
	FeatureColorDiversity Feature = "color_diversity"
	FeatureTexture        Feature = "texture"
	FeatureSpatialGrid    Feature = "spatial_grid"
	FeaturePerceptualHash Feature = "perceptual_hash"
)

// Profile carries everything the 1..10 precision dial selects: how many
// frames to keep, which features participate in grouping, and how finely
// each feature is sampled.
type Profile struct {
	Level       int
	TargetCount int
	Features    []Feature
	Weights     map[Feature]float64

	HistogramBins int
	LBPBins       int
	GridSize      int
	HashSize      int

	AnalysisWidth int
	JPEGQuality   int // ffmpeg -q:v for mid-frame extraction, lower is better
}

// Relative importance per feature before normalization. Color dominates;
// the hash acts as a tie-breaker.
var baseWeights = map[Feature]float64{
	FeatureColorHistogram: 0.30,
	FeatureEdgeDensity:    0.15,
	FeatureBrightness:     0.10,
	FeatureContrast:       0.10,
	FeatureColorDiversity: 0.10,
	FeatureTexture:        0.10,
	FeatureSpatialGrid:    0.10,
	FeaturePerceptualHash: 0.05,
}

var featureOrder = []Feature{
	FeatureColorHistogram,
	FeatureEdgeDensity,
	FeatureBrightness,
	FeatureContrast,
	FeatureColorDiversity,
	FeatureTexture,
	FeatureSpatialGrid,
	FeaturePerceptualHash,
}

var targetCounts = map[int]int{
	1: 4, 2: 4, 3: 5, 4: 5, 5: 6, 6: 7, 7: 8, 8: 10, 9: 10, 10: 10,
}

// activeFeatureCount maps precision level to how many of featureOrder are on.
var activeFeatureCount = map[int]int{
	1: 1, 2: 2, 3: 3, 4: 4, 5: 5, 6: 6, 7: 7, 8: 8, 9: 8, 10: 8,
}

// ProfileFor resolves the precision dial into a concrete profile. Levels
// outside 1..10 clamp.
func ProfileFor(level int) Profile {
	if level < 1 {
		level = 1
	}
	if level > 10 {
		level = 10
	}

	active := featureOrder[:activeFeatureCount[level]]
	weights := make(map[Feature]float64, len(active))
	total := 0.0
	for _, f := range active {
		total += baseWeights[f]
	}
	for _, f := range active {
		weights[f] = baseWeights[f] / total
	}

	p := Profile{
		Level:       level,
		TargetCount: targetCounts[level],
		Features:    append([]Feature(nil), active...),
		Weights:     weights,
	}

	switch {
	case level <= 3:
		p.HistogramBins = 8
		p.AnalysisWidth = 160
		p.JPEGQuality = 5
	case level <= 7:
		p.HistogramBins = 16
		p.AnalysisWidth = 256
		p.JPEGQuality = 3
	default:
		p.HistogramBins = 32
		p.AnalysisWidth = 256
		p.JPEGQuality = 2
	}
	if level == 10 {
		p.AnalysisWidth = 512
	}

	if level >= 6 {
		p.LBPBins = 32
		if level >= 9 {
			p.LBPBins = 64
		}
	}
	if level >= 7 {
		switch {
		case level == 7:
			p.GridSize = 2
		case level == 8:
			p.GridSize = 3
		default:
			p.GridSize = 4
		}
	}
	if level >= 8 {
		p.HashSize = 8
		if level == 10 {
			p.HashSize = 16
		}
	}

	return p
}

// HighQualityResample reports whether frame resizing should pay for the
// slower CatmullRom kernel.
func (p Profile) HighQualityResample() bool {
	return p.Level >= 10
}
