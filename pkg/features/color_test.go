package features

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestColorStatsUniformImage(t *testing.T) {
	img := uniformBGR(32, 32, 10, 20, 30)
	defer img.Close()

	s := ExtractColorStats(img)

	near(t, "blue mean", s.BlueMean, 10, 0.01)
	near(t, "green mean", s.GreenMean, 20, 0.01)
	near(t, "red mean", s.RedMean, 30, 0.01)

	// Weighted gray of BGR(10,20,30) is 21.85, binned to 21.
	near(t, "gray mean", s.GrayMean, 21, 0.01)
	near(t, "gray variance", s.GrayVariance, 0, 1e-9)
	near(t, "gray skewness", s.GraySkewness, 0, 1e-9)
	near(t, "gray kurtosis", s.GrayKurtosis, 0, 1e-9)
	near(t, "red/gray ratio", s.RedGrayRatio, 30.0/21.0, 0.01)

	near(t, "hue mean", s.HueMean, 15, 1.5)
	near(t, "saturation mean", s.SaturationMean, 170, 1.5)
	near(t, "value mean", s.ValueMean, 30, 1.5)
}

func TestColorStatsDeterministic(t *testing.T) {
	noise := noiseGray(48, 48, 7)
	defer noise.Close()
	img := gocv.NewMat()
	defer img.Close()
	gocv.CvtColor(noise, &img, gocv.ColorGrayToBGR)

	a := ExtractColorStats(img)
	b := ExtractColorStats(img)
	if a != b {
		t.Errorf("Expected identical stats for identical input:\n%+v\n%+v", a, b)
	}
}

func TestColorStatsRejectsBadInput(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	if s := ExtractColorStats(empty); s != (ColorStats{}) {
		t.Errorf("Expected zero stats for empty image, got %+v", s)
	}

	gray := noiseGray(16, 16, 1)
	defer gray.Close()
	if s := ExtractColorStats(gray); s != (ColorStats{}) {
		t.Errorf("Expected zero stats for single-channel image, got %+v", s)
	}
}
