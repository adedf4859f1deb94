//go:build nonfree

package features

import (
	"sync"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// surfStrategy uses the patented SURF detector from the contrib
// nonfree module. Float descriptors, so L2 matching with the ratio
// test applies.
type surfStrategy struct {
	mu       sync.Mutex
	detector contrib.SURF
	matcher  gocv.BFMatcher
}

func newSURFStrategy() MotionStrategy {
	return &surfStrategy{
		detector: contrib.NewSURF(),
		matcher:  gocv.NewBFMatcher(),
	}
}

func (s *surfStrategy) Name() string { return "surf" }

func (s *surfStrategy) Detect(gray gocv.Mat) ([]gocv.KeyPoint, gocv.Mat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mask := gocv.NewMat()
	defer mask.Close()
	return s.detector.DetectAndCompute(gray, mask)
}

func (s *surfStrategy) Match(prevDesc, currDesc gocv.Mat) []gocv.DMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ratioFilter(s.matcher.KnnMatch(prevDesc, currDesc, 2))
}

func (s *surfStrategy) Close() error {
	s.matcher.Close()
	return s.detector.Close()
}
