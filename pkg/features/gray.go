package features

import "gocv.io/x/gocv"

// toGray returns a single-channel copy of img. The caller owns the
// returned Mat. An empty input comes back empty.
func toGray(img gocv.Mat) gocv.Mat {
	if img.Empty() {
		return gocv.NewMat()
	}
	if img.Channels() == 1 {
		return img.Clone()
	}
	gray := gocv.NewMat()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	return gray
}
