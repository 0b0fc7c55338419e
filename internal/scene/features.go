package scene

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"sort"

	"github.com/corona10/goimagehash"
	"golang.org/x/image/draw"
)

// framePixels is the one-pass decode of a frame into channel planes, so the
// individual feature functions never touch image.Image again.
type framePixels struct {
	w, h    int
	r, g, b []float64
	gray    []float64
}

func newFramePixels(img image.Image) *framePixels {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	p := &framePixels{
		w: w, h: h,
		r:    make([]float64, w*h),
		g:    make([]float64, w*h),
		b:    make([]float64, w*h),
		gray: make([]float64, w*h),
	}
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r := float64(r16>>8) / 255.0
			g := float64(g16>>8) / 255.0
			b := float64(b16>>8) / 255.0
			p.r[i], p.g[i], p.b[i] = r, g, b
			p.gray[i] = 0.299*r + 0.587*g + 0.114*b
			i++
		}
	}
	return p
}

func loadFrameImage(path string, width int, highQuality bool) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= width {
		return img, nil
	}
	h := bounds.Dy() * width / bounds.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, h))
	scaler := draw.Interpolator(draw.ApproxBiLinear)
	if highQuality {
		scaler = draw.CatmullRom
	}
	scaler.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst, nil
}

// computeFrameFeatures builds the per-feature vectors for one decoded frame
// under the given profile. Vector layout per feature is fixed by the profile,
// so every frame in a batch yields identical dimensions.
func computeFrameFeatures(img image.Image, p *framePixels, profile Profile) (map[Feature][]float64, error) {
	out := make(map[Feature][]float64, len(profile.Features))
	for _, f := range profile.Features {
		switch f {
		case FeatureColorHistogram:
			out[f] = colorHistogram(p, profile.HistogramBins)
		case FeatureEdgeDensity:
			out[f] = edgeDensity(p)
		case FeatureBrightness:
			out[f] = brightnessStats(p)
		case FeatureContrast:
			out[f] = contrastStats(p)
		case FeatureColorDiversity:
			out[f] = colorDiversity(p)
		case FeatureTexture:
			out[f] = lbpHistogram(p, profile.LBPBins)
		case FeatureSpatialGrid:
			out[f] = spatialColorGrid(p, profile.GridSize)
		case FeaturePerceptualHash:
			bits, err := perceptualHashBits(img, profile.HashSize)
			if err != nil {
				return nil, fmt.Errorf("perceptual hash: %w", err)
			}
			out[f] = bits
		}
	}
	return out, nil
}

func colorHistogram(p *framePixels, bins int) []float64 {
	hist := make([]float64, 3*bins)
	binOf := func(v float64) int {
		b := int(v * float64(bins))
		if b >= bins {
			b = bins - 1
		}
		return b
	}
	for i := range p.gray {
		hist[binOf(p.r[i])]++
		hist[bins+binOf(p.g[i])]++
		hist[2*bins+binOf(p.b[i])]++
	}
	n := float64(len(p.gray))
	for i := range hist {
		hist[i] /= n
	}
	return hist
}

// edgeDensity returns the mean Sobel gradient magnitude and the fraction of
// pixels whose magnitude crosses a fixed edge threshold.
func edgeDensity(p *framePixels) []float64 {
	if p.w < 3 || p.h < 3 {
		return []float64{0, 0}
	}
	var sum float64
	var edges int
	count := 0
	at := func(x, y int) float64 { return p.gray[y*p.w+x] }
	for y := 1; y < p.h-1; y++ {
		for x := 1; x < p.w-1; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			mag := math.Sqrt(gx*gx + gy*gy)
			sum += mag
			if mag > 0.25 {
				edges++
			}
			count++
		}
	}
	return []float64{sum / float64(count), float64(edges) / float64(count)}
}

func brightnessStats(p *framePixels) []float64 {
	mean, std := meanStd(p.gray)
	return []float64{mean, std}
}

// contrastStats returns the 5th-to-95th percentile luminance spread and the
// Michelson contrast.
func contrastStats(p *framePixels) []float64 {
	sorted := append([]float64(nil), p.gray...)
	sort.Float64s(sorted)
	n := len(sorted)
	p5 := sorted[n*5/100]
	p95 := sorted[min(n*95/100, n-1)]
	lo, hi := sorted[0], sorted[n-1]
	michelson := 0.0
	if hi+lo > 0 {
		michelson = (hi - lo) / (hi + lo)
	}
	return []float64{p95 - p5, michelson}
}

// colorDiversity quantizes each channel to 4 levels and measures how much of
// the 64-color palette the frame uses, plus the normalized entropy of that
// distribution.
func colorDiversity(p *framePixels) []float64 {
	const levels = 4
	counts := make([]float64, levels*levels*levels)
	quant := func(v float64) int {
		q := int(v * levels)
		if q >= levels {
			q = levels - 1
		}
		return q
	}
	for i := range p.gray {
		key := quant(p.r[i])*levels*levels + quant(p.g[i])*levels + quant(p.b[i])
		counts[key]++
	}
	n := float64(len(p.gray))
	used := 0
	entropy := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		used++
		prob := c / n
		entropy -= prob * math.Log2(prob)
	}
	maxEntropy := math.Log2(float64(len(counts)))
	return []float64{float64(used) / float64(len(counts)), entropy / maxEntropy}
}

// lbpHistogram computes 8-neighbor local binary patterns and buckets the 256
// codes into bins.
func lbpHistogram(p *framePixels, bins int) []float64 {
	hist := make([]float64, bins)
	if p.w < 3 || p.h < 3 {
		return hist
	}
	at := func(x, y int) float64 { return p.gray[y*p.w+x] }
	// clockwise from top-left
	offsets := [8][2]int{{-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}}
	count := 0
	for y := 1; y < p.h-1; y++ {
		for x := 1; x < p.w-1; x++ {
			center := at(x, y)
			code := 0
			for bit, off := range offsets {
				if at(x+off[0], y+off[1]) >= center {
					code |= 1 << bit
				}
			}
			hist[code*bins/256]++
			count++
		}
	}
	for i := range hist {
		hist[i] /= float64(count)
	}
	return hist
}

// spatialColorGrid returns per-cell mean RGB over a grid×grid partition.
func spatialColorGrid(p *framePixels, grid int) []float64 {
	out := make([]float64, 3*grid*grid)
	counts := make([]int, grid*grid)
	for y := 0; y < p.h; y++ {
		cy := y * grid / p.h
		for x := 0; x < p.w; x++ {
			cx := x * grid / p.w
			cell := cy*grid + cx
			i := y*p.w + x
			out[3*cell] += p.r[i]
			out[3*cell+1] += p.g[i]
			out[3*cell+2] += p.b[i]
			counts[cell]++
		}
	}
	for cell, c := range counts {
		if c == 0 {
			continue
		}
		out[3*cell] /= float64(c)
		out[3*cell+1] /= float64(c)
		out[3*cell+2] /= float64(c)
	}
	return out
}

func perceptualHashBits(img image.Image, size int) ([]float64, error) {
	if size <= 8 {
		h, err := goimagehash.PerceptionHash(img)
		if err != nil {
			return nil, err
		}
		return hashWordsToBits([]uint64{h.GetHash()}, 64), nil
	}
	h, err := goimagehash.ExtPerceptionHash(img, size, size)
	if err != nil {
		return nil, err
	}
	return hashWordsToBits(h.GetHash(), size*size), nil
}

func hashWordsToBits(words []uint64, n int) []float64 {
	bits := make([]float64, n)
	for i := 0; i < n; i++ {
		word := words[i/64]
		if word&(1<<(uint(i)%64)) != 0 {
			bits[i] = 1
		}
	}
	return bits
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
