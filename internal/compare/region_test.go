package compare

import (
	"image/color"
	"testing"
)

func TestRegionDiff_Calculate(t *testing.T) {
	rd := NewRegionDiff(0.1)

	t.Run("NoDifference", func(t *testing.T) {
		img1 := createTestImage(100, 100, color.White)
		img2 := createTestImage(100, 100, color.White)

		result := rd.Calculate(img1, img2)

		if result.DifferingPixels != 0 {
			t.Errorf("Expected DifferingPixels to be 0, got %d", result.DifferingPixels)
		}
	})

	t.Run("CompleteDifference", func(t *testing.T) {
		img1 := createTestImage(100, 100, color.White)
		img2 := createTestImage(100, 100, color.Black)

		result := rd.Calculate(img1, img2)

		if result.DifferingPixels != 100*100 {
			t.Errorf("Expected DifferingPixels to be %d, got %d", 100*100, result.DifferingPixels)
		}
	})

	t.Run("OutlinedCluster", func(t *testing.T) {
		img1 := createTestImage(100, 100, color.White)
		img2 := createTestImage(100, 100, color.White)

		for y := 40; y < 60; y++ {
			for x := 40; x < 60; x++ {
				img2.Set(x, y, color.Black)
			}
		}

		result := rd.Calculate(img1, img2)

		if result.DifferingPixels != 20*20 {
			t.Errorf("Expected DifferingPixels to be %d, got %d", 20*20, result.DifferingPixels)
		}

		outline := color.RGBA{R: 255, A: 255}
		if got := result.Image.RGBAAt(50, 40); got != outline {
			t.Errorf("Expected outline at cluster edge, got %v", got)
		}
		if got := result.Image.RGBAAt(10, 10); got == outline {
			t.Errorf("Did not expect outline far from the cluster")
		}
	})

	t.Run("SameCountAsMask", func(t *testing.T) {
		img1 := createTestImage(64, 64, color.RGBA{R: 100, G: 100, B: 100, A: 255})
		img2 := createTestImage(64, 64, color.RGBA{R: 100, G: 100, B: 100, A: 255})
		for y := 0; y < 16; y++ {
			for x := 0; x < 64; x++ {
				img2.Set(x, y, color.RGBA{R: 250, G: 250, B: 250, A: 255})
			}
		}

		maskResult := NewMaskDiff(0.1).Calculate(img1, img2)
		regionResult := NewRegionDiff(0.1).Calculate(img1, img2)

		if maskResult.DifferingPixels != regionResult.DifferingPixels {
			t.Errorf("Expected both styles to flag the same pixels, got %d and %d", maskResult.DifferingPixels, regionResult.DifferingPixels)
		}
	})
}

func TestMergeRegions(t *testing.T) {
	t.Run("MergesCloseRegions", func(t *testing.T) {
		merged := mergeRegions([]region{
			{X: 0, Y: 0, Width: 10, Height: 10},
			{X: 15, Y: 0, Width: 10, Height: 10},
		})

		if len(merged) != 1 {
			t.Fatalf("Expected 1 merged region, got %d", len(merged))
		}
		if merged[0].Width != 25 {
			t.Errorf("Expected merged width 25, got %d", merged[0].Width)
		}
	})

	t.Run("KeepsDistantRegions", func(t *testing.T) {
		merged := mergeRegions([]region{
			{X: 0, Y: 0, Width: 10, Height: 10},
			{X: 200, Y: 200, Width: 10, Height: 10},
		})

		if len(merged) != 2 {
			t.Fatalf("Expected 2 regions, got %d", len(merged))
		}
	})
}
