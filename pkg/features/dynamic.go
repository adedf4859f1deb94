package features

import (
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/frothvision/frothwatch/internal/log"
)

// Lowe ratio for keypoint match filtering.
const matchRatio = 0.6

// Guard against division by a zero frame interval.
const minElapsed = 1e-6

// MotionStrategy detects and matches keypoints between frames. One
// strategy instance is shared across frames of a camera, so
// implementations serialize access to their detector state.
type MotionStrategy interface {
	Name() string

	// Detect finds keypoints and descriptors in a grayscale frame.
	// The caller owns the returned descriptor Mat.
	Detect(gray gocv.Mat) ([]gocv.KeyPoint, gocv.Mat)

	// Match pairs previous-frame descriptors (query) against
	// current-frame descriptors (train), returning filtered matches.
	Match(prevDesc, currDesc gocv.Mat) []gocv.DMatch

	Close() error
}

// ResolveMotionStrategy picks the best available keypoint detector:
// SURF when the build carries the nonfree contrib module, then SIFT,
// then ORB. Returns nil if none can be constructed.
func ResolveMotionStrategy() MotionStrategy {
	for _, build := range []func() MotionStrategy{newSURFStrategy, newSIFTStrategy, newORBStrategy} {
		if s := safeBuild(build); s != nil {
			log.Info("motion strategy selected", "detector", s.Name())
			return s
		}
	}
	log.Warn("no keypoint detector available, dynamic features disabled")
	return nil
}

// safeBuild shields resolution from a constructor panic when the
// underlying OpenCV build lacks a module.
func safeBuild(build func() MotionStrategy) (s MotionStrategy) {
	defer func() {
		if r := recover(); r != nil {
			s = nil
		}
	}()
	return build()
}

// siftStrategy matches float descriptors with an L2 matcher and the
// ratio test.
type siftStrategy struct {
	mu       sync.Mutex
	detector gocv.SIFT
	matcher  gocv.BFMatcher
}

func newSIFTStrategy() MotionStrategy {
	return &siftStrategy{
		detector: gocv.NewSIFT(),
		matcher:  gocv.NewBFMatcher(),
	}
}

func (s *siftStrategy) Name() string { return "sift" }

func (s *siftStrategy) Detect(gray gocv.Mat) ([]gocv.KeyPoint, gocv.Mat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mask := gocv.NewMat()
	defer mask.Close()
	return s.detector.DetectAndCompute(gray, mask)
}

func (s *siftStrategy) Match(prevDesc, currDesc gocv.Mat) []gocv.DMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ratioFilter(s.matcher.KnnMatch(prevDesc, currDesc, 2))
}

func (s *siftStrategy) Close() error {
	s.matcher.Close()
	return s.detector.Close()
}

// orbStrategy matches binary descriptors with a Hamming cross-check
// matcher; the ratio test does not apply.
type orbStrategy struct {
	mu       sync.Mutex
	detector gocv.ORB
	matcher  gocv.BFMatcher
}

func newORBStrategy() MotionStrategy {
	return &orbStrategy{
		detector: gocv.NewORB(),
		matcher:  gocv.NewBFMatcherWithParams(gocv.NormHamming, true),
	}
}

func (s *orbStrategy) Name() string { return "orb" }

func (s *orbStrategy) Detect(gray gocv.Mat) ([]gocv.KeyPoint, gocv.Mat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mask := gocv.NewMat()
	defer mask.Close()
	return s.detector.DetectAndCompute(gray, mask)
}

func (s *orbStrategy) Match(prevDesc, currDesc gocv.Mat) []gocv.DMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []gocv.DMatch
	for _, pair := range s.matcher.KnnMatch(prevDesc, currDesc, 1) {
		if len(pair) > 0 {
			out = append(out, pair[0])
		}
	}
	return out
}

func (s *orbStrategy) Close() error {
	s.matcher.Close()
	return s.detector.Close()
}

// ratioFilter keeps matches whose best distance is clearly below the
// second best.
func ratioFilter(knn [][]gocv.DMatch) []gocv.DMatch {
	var out []gocv.DMatch
	for _, pair := range knn {
		if len(pair) == 2 && pair[0].Distance < matchRatio*pair[1].Distance {
			out = append(out, pair[0])
		}
	}
	return out
}

// ExtractDynamic computes froth motion descriptors from a consecutive
// frame pair. Frames too poor in keypoints, or with no surviving
// matches, yield zero motion with the keypoint counts still reported.
func ExtractDynamic(strategy MotionStrategy, prev, curr gocv.Mat, elapsedSec float64) Dynamic {
	if strategy == nil || prev.Empty() || curr.Empty() {
		return Dynamic{}
	}

	grayPrev := toGray(prev)
	defer grayPrev.Close()
	grayCurr := toGray(curr)
	defer grayCurr.Close()

	kpPrev, descPrev := strategy.Detect(grayPrev)
	defer descPrev.Close()
	kpCurr, descCurr := strategy.Detect(grayCurr)
	defer descCurr.Close()

	d := Dynamic{
		KeypointsPrev: float64(len(kpPrev)),
		KeypointsCurr: float64(len(kpCurr)),
	}
	if len(kpPrev) < 2 || len(kpCurr) < 2 {
		return d
	}

	matches := strategy.Match(descPrev, descCurr)
	if len(matches) == 0 {
		return d
	}

	elapsed := math.Max(elapsedSec, minElapsed)
	speeds := make([]float64, 0, len(matches))
	for _, m := range matches {
		p := kpPrev[m.QueryIdx]
		c := kpCurr[m.TrainIdx]
		speeds = append(speeds, math.Hypot(c.X-p.X, c.Y-p.Y)/elapsed)
	}

	var mean float64
	for _, v := range speeds {
		mean += v
	}
	mean /= float64(len(speeds))

	var variance float64
	for _, v := range speeds {
		dv := v - mean
		variance += dv * dv
	}
	variance /= float64(len(speeds))

	d.SpeedMean = mean
	d.SpeedVariance = variance
	d.MatchedCount = float64(len(matches))
	d.Stability = float64(len(matches)) / (0.5 * float64(len(kpPrev)+len(kpCurr)))
	return d
}
