package features

import "gocv.io/x/gocv"

// ExtractAllStatic computes every single-frame descriptor group. The
// input Mat is never modified.
func ExtractAllStatic(img gocv.Mat) Static {
	return Static{
		ColorStats:      ExtractColorStats(img),
		GLCMStats:       ExtractGLCMStats(img),
		LBPStats:        ExtractLBPStats(img),
		MorphologyStats: ExtractMorphologyStats(img),
	}
}
