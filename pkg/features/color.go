package features

import (
	"math"

	"gocv.io/x/gocv"
)

// Luma weights for BGR to gray conversion (ITU-R BT.601).
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// ExtractColorStats computes channel means, gray-level moments and HSV
// means for a BGR frame. An empty or non-3-channel image yields zeros.
func ExtractColorStats(img gocv.Mat) ColorStats {
	if img.Empty() || img.Channels() != 3 {
		return ColorStats{}
	}

	var s ColorStats

	mean := img.Mean()
	s.BlueMean = mean.Val1
	s.GreenMean = mean.Val2
	s.RedMean = mean.Val3

	hist, total := grayHistogram(img)
	if total == 0 {
		return s
	}

	// Probability-weighted central moments of the gray distribution.
	var m float64
	for v := 0; v < 256; v++ {
		m += float64(v) * hist[v]
	}
	m /= total

	var m2, m3, m4 float64
	for v := 0; v < 256; v++ {
		d := float64(v) - m
		p := hist[v] / total
		m2 += d * d * p
		m3 += d * d * d * p
		m4 += d * d * d * d * p
	}

	s.GrayMean = m
	s.GrayVariance = m2
	if m2 > 0 {
		s.GraySkewness = m3 / (m2 * m2 * m2)
		s.GrayKurtosis = m4 / (m2 * m2 * m2 * m2)
	}
	if m > 0 {
		s.RedGrayRatio = s.RedMean / m
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV)
	hsvMean := hsv.Mean()
	s.HueMean = hsvMean.Val1
	s.SaturationMean = hsvMean.Val2
	s.ValueMean = hsvMean.Val3

	return s
}

// grayHistogram builds a 256-bin gray-level histogram with weighted
// BGR conversion. Returns the bins and the total pixel count.
func grayHistogram(img gocv.Mat) ([256]float64, float64) {
	var hist [256]float64
	rows, cols := img.Rows(), img.Cols()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			px := img.GetVecbAt(y, x)
			g := lumaB*float64(px[0]) + lumaG*float64(px[1]) + lumaR*float64(px[2])
			bin := int(math.Floor(g))
			if bin > 255 {
				bin = 255
			}
			hist[bin]++
		}
	}
	return hist, float64(rows * cols)
}
