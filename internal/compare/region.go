package compare

import (
	"image"
	"image/color"
	"image/draw"
	"runtime"
	"sync"
	"sync/atomic"
)

// RegionDiff clusters differing pixels into bounding boxes and outlines them
// over the target image. The flagged-pixel count is identical to MaskDiff;
// only the rendering differs.
type RegionDiff struct {
	threshold float64
}

func NewRegionDiff(threshold float64) *RegionDiff {
	return &RegionDiff{
		threshold: threshold,
	}
}

type region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Boxes closer than this many pixels are merged into one region.
const regionMergeDistance = 10

func (r *RegionDiff) Calculate(baseline *image.RGBA, target *image.RGBA) *DiffResult {
	bounds := baseline.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	diffMap := make([][]bool, height)
	for i := range diffMap {
		diffMap[i] = make([]bool, width)
	}

	var differingPixels int64

	// Use GOMAXPROCS instead of runtime.NumCPU() to consider cgroup.
	numWorkers := runtime.GOMAXPROCS(0)
	rowsPerWorker := height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		endY := startY + rowsPerWorker
		if i == numWorkers-1 {
			endY = height
		}

		go func(startY int, endY int) {
			defer wg.Done()
			r.markRows(baseline, target, diffMap, bounds, startY, endY, &differingPixels)
		}(startY, endY)
	}

	wg.Wait()

	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, target, bounds.Min, draw.Src)

	for _, reg := range mergeRegions(findRegions(diffMap, width, height)) {
		outlineRegion(result, bounds, reg)
	}

	return &DiffResult{
		Image:           result,
		DifferingPixels: differingPixels,
	}
}

func (r *RegionDiff) markRows(baseline *image.RGBA, target *image.RGBA, diffMap [][]bool, bounds image.Rectangle, startY int, endY int, differingPixels *int64) {
	var local int64

	for y := startY; y < endY; y++ {
		baselineRowStart := baseline.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		targetRowStart := target.PixOffset(bounds.Min.X, bounds.Min.Y+y)

		for x := 0; x < bounds.Dx(); x++ {
			baselineOffset := baselineRowStart + x*4
			targetOffset := targetRowStart + x*4

			br := baseline.Pix[baselineOffset]
			bg := baseline.Pix[baselineOffset+1]
			bb := baseline.Pix[baselineOffset+2]
			ba := baseline.Pix[baselineOffset+3]

			tr := target.Pix[targetOffset]
			tg := target.Pix[targetOffset+1]
			tb := target.Pix[targetOffset+2]
			ta := target.Pix[targetOffset+3]

			if br == tr && bg == tg && bb == tb && ba == ta {
				continue
			}

			delta := brightnessDelta(br, bg, bb, tr, tg, tb)
			if delta > r.threshold || delta < -r.threshold {
				diffMap[y][x] = true
				local++
			}
		}
	}

	atomic.AddInt64(differingPixels, local)
}

func findRegions(diffMap [][]bool, width int, height int) []region {
	visited := make([][]bool, height)
	for i := range visited {
		visited[i] = make([]bool, width)
	}

	var regions []region
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !diffMap[y][x] || visited[y][x] {
				continue
			}
			reg := floodBoundingBox(diffMap, visited, x, y, width, height)
			if reg.Width > 2 && reg.Height > 2 {
				regions = append(regions, reg)
			}
		}
	}

	return regions
}

func floodBoundingBox(diffMap [][]bool, visited [][]bool, startX int, startY int, width int, height int) region {
	minX, minY := startX, startY
	maxX, maxY := startX, startY

	type point struct {
		x int
		y int
	}
	queue := []point{{startX, startY}}
	visited[startY][startX] = true

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		minX = min(minX, p.x)
		maxX = max(maxX, p.x)
		minY = min(minY, p.y)
		maxY = max(maxY, p.y)

		// 8-connected neighborhood.
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				nx := p.x + dx
				ny := p.y + dy
				if nx >= 0 && nx < width && ny >= 0 && ny < height && diffMap[ny][nx] && !visited[ny][nx] {
					visited[ny][nx] = true
					queue = append(queue, point{nx, ny})
				}
			}
		}
	}

	return region{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX + 1,
		Height: maxY - minY + 1,
	}
}

func mergeRegions(regions []region) []region {
	if len(regions) <= 1 {
		return regions
	}

	merged := make([]region, 0, len(regions))
	used := make([]bool, len(regions))

	for i := 0; i < len(regions); i++ {
		if used[i] {
			continue
		}

		current := regions[i]
		for changed := true; changed; {
			changed = false
			for j := i + 1; j < len(regions); j++ {
				if used[j] {
					continue
				}
				if regionsTouch(current, regions[j], regionMergeDistance) {
					current = combineRegions(current, regions[j])
					used[j] = true
					changed = true
				}
			}
		}

		merged = append(merged, current)
	}

	return merged
}

func regionsTouch(a region, b region, distance int) bool {
	return !(a.X+a.Width+distance <= b.X-distance || b.X+b.Width+distance <= a.X-distance ||
		a.Y+a.Height+distance <= b.Y-distance || b.Y+b.Height+distance <= a.Y-distance)
}

func combineRegions(a region, b region) region {
	minX := min(a.X, b.X)
	minY := min(a.Y, b.Y)
	maxX := max(a.X+a.Width, b.X+b.Width)
	maxY := max(a.Y+a.Height, b.Y+b.Height)

	return region{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX,
		Height: maxY - minY,
	}
}

func outlineRegion(result *image.RGBA, bounds image.Rectangle, reg region) {
	outlineColor := color.RGBA{R: 255, A: 255}

	for thickness := 0; thickness < 3; thickness++ {
		top := reg.Y - thickness
		bottom := reg.Y + reg.Height + thickness
		left := reg.X - thickness
		right := reg.X + reg.Width + thickness

		for x := left; x <= right; x++ {
			px := bounds.Min.X + x
			if px < bounds.Min.X || px >= bounds.Max.X {
				continue
			}
			if py := bounds.Min.Y + top; py >= bounds.Min.Y && py < bounds.Max.Y {
				result.SetRGBA(px, py, outlineColor)
			}
			if py := bounds.Min.Y + bottom; py >= bounds.Min.Y && py < bounds.Max.Y {
				result.SetRGBA(px, py, outlineColor)
			}
		}

		for y := top; y <= bottom; y++ {
			py := bounds.Min.Y + y
			if py < bounds.Min.Y || py >= bounds.Max.Y {
				continue
			}
			if px := bounds.Min.X + left; px >= bounds.Min.X && px < bounds.Max.X {
				result.SetRGBA(px, py, outlineColor)
			}
			if px := bounds.Min.X + right; px >= bounds.Min.X && px < bounds.Max.X {
				result.SetRGBA(px, py, outlineColor)
			}
		}
	}
}
