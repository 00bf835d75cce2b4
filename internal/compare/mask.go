package compare

import (
	"image"
	"runtime"
	"sync"
	"sync/atomic"
)

type DiffResult struct {
	Image           *image.RGBA
	DifferingPixels int64
}

// Differ compares two normalized images of identical bounds.
type Differ interface {
	Calculate(baseline *image.RGBA, target *image.RGBA) *DiffResult
}

// MaskDiff paints every flagged pixel into the diff image: red where the
// target is brighter than the baseline beyond the threshold, blue where it
// is darker, the baseline pixel where the delta is tolerated.
type MaskDiff struct {
	threshold float64
}

func NewMaskDiff(threshold float64) *MaskDiff {
	return &MaskDiff{
		threshold: threshold,
	}
}

func (m *MaskDiff) Calculate(baseline *image.RGBA, target *image.RGBA) *DiffResult {
	bounds := baseline.Bounds()
	diff := image.NewRGBA(bounds)

	var differingPixels int64

	// Use GOMAXPROCS instead of runtime.NumCPU() to consider cgroup.
	numWorkers := runtime.GOMAXPROCS(0)
	rowsPerWorker := bounds.Dy() / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for i := 0; i < numWorkers; i++ {
		startY := bounds.Min.Y + i*rowsPerWorker
		endY := startY + rowsPerWorker
		if i == numWorkers-1 {
			endY = bounds.Max.Y
		}

		go func(startY int, endY int) {
			defer wg.Done()
			m.processRows(baseline, target, diff, bounds.Min.X, bounds.Max.X, startY, endY, &differingPixels)
		}(startY, endY)
	}

	wg.Wait()

	return &DiffResult{
		Image:           diff,
		DifferingPixels: differingPixels,
	}
}

func (m *MaskDiff) processRows(baseline *image.RGBA, target *image.RGBA, diff *image.RGBA, minX int, maxX int, startY int, endY int, differingPixels *int64) {
	var local int64

	for y := startY; y < endY; y++ {
		baselineRowStart := baseline.PixOffset(minX, y)
		targetRowStart := target.PixOffset(minX, y)
		diffRowStart := diff.PixOffset(minX, y)

		for x := 0; x < maxX-minX; x++ {
			baselineOffset := baselineRowStart + x*4
			targetOffset := targetRowStart + x*4
			diffOffset := diffRowStart + x*4

			br := baseline.Pix[baselineOffset]
			bg := baseline.Pix[baselineOffset+1]
			bb := baseline.Pix[baselineOffset+2]
			ba := baseline.Pix[baselineOffset+3]

			tr := target.Pix[targetOffset]
			tg := target.Pix[targetOffset+1]
			tb := target.Pix[targetOffset+2]
			ta := target.Pix[targetOffset+3]

			if br == tr && bg == tg && bb == tb && ba == ta {
				diff.Pix[diffOffset] = br
				diff.Pix[diffOffset+1] = bg
				diff.Pix[diffOffset+2] = bb
				diff.Pix[diffOffset+3] = ba
				continue
			}

			delta := brightnessDelta(br, bg, bb, tr, tg, tb)
			switch {
			case delta > m.threshold:
				diff.Pix[diffOffset] = 255
				diff.Pix[diffOffset+1] = 0
				diff.Pix[diffOffset+2] = 0
				diff.Pix[diffOffset+3] = 255
				local++
			case delta < -m.threshold:
				diff.Pix[diffOffset] = 0
				diff.Pix[diffOffset+1] = 0
				diff.Pix[diffOffset+2] = 255
				diff.Pix[diffOffset+3] = 255
				local++
			default:
				diff.Pix[diffOffset] = br
				diff.Pix[diffOffset+1] = bg
				diff.Pix[diffOffset+2] = bb
				diff.Pix[diffOffset+3] = ba
			}
		}
	}

	atomic.AddInt64(differingPixels, local)
}

// brightnessDelta normalizes the summed channel difference to [-1, 1] so it
// is directly comparable with the threshold.
func brightnessDelta(br uint8, bg uint8, bb uint8, tr uint8, tg uint8, tb uint8) float64 {
	baselineBrightness := int(br) + int(bg) + int(bb)
	targetBrightness := int(tr) + int(tg) + int(tb)
	return float64(targetBrightness-baselineBrightness) / (255.0 * 3.0)
}
