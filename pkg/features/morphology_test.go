package features

import (
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"
)

func TestMorphologyFlatImage(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 64, 64, gocv.MatTypeCV8U)
	defer img.Close()

	s := ExtractMorphologyStats(img)
	if s != (MorphologyStats{}) {
		t.Errorf("Expected zero stats for flat image, got %+v", s)
	}
}

func TestMorphologyDrawnBubbles(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 128, 128, gocv.MatTypeCV8U)
	defer img.Close()

	white := color.RGBA{255, 255, 255, 0}
	centers := []image.Point{{32, 32}, {96, 32}, {64, 96}}
	for _, c := range centers {
		gocv.Circle(&img, c, 10, white, -1)
	}

	s := ExtractMorphologyStats(img)

	if s.BubbleCount < 1 || s.BubbleCount > 6 {
		t.Errorf("Expected roughly 3 bubbles, got %d", s.BubbleCount)
	}
	// Equivalent diameter of a radius-10 disk is 20; watershed ridges
	// shave off some pixels.
	if s.BubbleDiameterMean < 10 || s.BubbleDiameterMean > 30 {
		t.Errorf("Expected diameter mean near 20, got %v", s.BubbleDiameterMean)
	}
	if s.BubbleCircularityMean <= 0.5 || s.BubbleCircularityMean > 1.3 {
		t.Errorf("Expected near-circular regions, got circularity %v", s.BubbleCircularityMean)
	}
	if s.BubbleD10 > s.BubbleD50 || s.BubbleD50 > s.BubbleD90 {
		t.Errorf("Expected ordered percentiles, got d10=%v d50=%v d90=%v", s.BubbleD10, s.BubbleD50, s.BubbleD90)
	}
}

func TestMorphologyDeterministic(t *testing.T) {
	img := noiseGray(96, 96, 5)
	defer img.Close()

	a := ExtractMorphologyStats(img)
	b := ExtractMorphologyStats(img)
	if a != b {
		t.Errorf("Expected identical stats for identical input:\n%+v\n%+v", a, b)
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}

	near(t, "median", percentile(sorted, 0.5), 3, 1e-9)
	near(t, "d10", percentile(sorted, 0.1), 1.4, 1e-9)
	near(t, "d90", percentile(sorted, 0.9), 4.6, 1e-9)
	near(t, "single element", percentile([]float64{7}, 0.9), 7, 1e-9)
	near(t, "empty", percentile(nil, 0.5), 0, 1e-9)
}
