package features

import (
	"image"
	"math"
	"testing"

	"gocv.io/x/gocv"
)

// uniformBGR returns a solid-color 3-channel test image.
func uniformBGR(rows, cols int, b, g, r float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(b, g, r, 0), rows, cols, gocv.MatTypeCV8UC3)
}

// noiseGray returns a deterministic pseudo-random grayscale image,
// blurred so keypoint detectors find stable blobs.
func noiseGray(rows, cols int, seed uint32) gocv.Mat {
	raw := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8U)
	state := seed
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			state = state*1664525 + 1013904223
			raw.SetUCharAt(y, x, uint8(state>>24))
		}
	}
	out := gocv.NewMat()
	gocv.GaussianBlur(raw, &out, image.Pt(5, 5), 0, 0, gocv.BorderDefault)
	raw.Close()
	return out
}

func near(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: expected %v (±%v), got %v", name, want, tol, got)
	}
}
