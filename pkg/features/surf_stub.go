//go:build !nonfree

package features

// SURF lives in OpenCV's nonfree contrib module. Builds without the
// nonfree tag fall through to SIFT.
func newSURFStrategy() MotionStrategy { return nil }
