// Package features computes froth surface descriptors from video
// frames. Static descriptors come from a single frame; dynamic
// descriptors need a consecutive frame pair. All extraction is pure:
// no goroutines, no shared state, deterministic for identical input.
package features

import "time"

// ColorStats are first-order color and gray-level statistics.
type ColorStats struct {
	BlueMean       float64 `json:"color_blue_mean"`
	GreenMean      float64 `json:"color_green_mean"`
	RedMean        float64 `json:"color_red_mean"`
	GrayMean       float64 `json:"gray_mean"`
	GrayVariance   float64 `json:"gray_variance"`
	GraySkewness   float64 `json:"gray_skewness"`
	GrayKurtosis   float64 `json:"gray_kurtosis"`
	RedGrayRatio   float64 `json:"red_gray_ratio"`
	HueMean        float64 `json:"hue_mean"`
	SaturationMean float64 `json:"saturation_mean"`
	ValueMean      float64 `json:"value_mean"`
}

// GLCMStats are gray-level co-occurrence texture features averaged
// over four directions.
type GLCMStats struct {
	Contrast      float64 `json:"glcm_contrast"`
	Dissimilarity float64 `json:"glcm_dissimilarity"`
	Homogeneity   float64 `json:"glcm_homogeneity"`
	Energy        float64 `json:"glcm_energy"`
	Correlation   float64 `json:"glcm_correlation"`
}

// LBPStats summarize the local binary pattern distribution.
type LBPStats struct {
	Entropy float64 `json:"lbp_entropy"`
}

// MorphologyStats describe the bubble population segmented by
// watershed.
type MorphologyStats struct {
	BubbleCount           int     `json:"bubble_count"`
	BubbleAreaMean        float64 `json:"bubble_area_mean"`
	BubbleAreaStd         float64 `json:"bubble_area_std"`
	BubbleDiameterMean    float64 `json:"bubble_diameter_mean"`
	BubbleD10             float64 `json:"bubble_d10"`
	BubbleD50             float64 `json:"bubble_d50"`
	BubbleD90             float64 `json:"bubble_d90"`
	BubbleCircularityMean float64 `json:"bubble_circularity_mean"`
}

// Static groups all single-frame descriptors.
type Static struct {
	ColorStats
	GLCMStats
	LBPStats
	MorphologyStats
}

// Dynamic groups the frame-pair motion descriptors. Speeds are in
// pixels per second.
type Dynamic struct {
	SpeedMean     float64 `json:"speed_mean"`
	SpeedVariance float64 `json:"speed_variance"`
	Stability     float64 `json:"stability"`
	MatchedCount  float64 `json:"matched_count"`
	KeypointsPrev float64 `json:"keypoints_prev"`
	KeypointsCurr float64 `json:"keypoints_curr"`
}

// Record is one complete feature vector for one frame of one camera.
type Record struct {
	ID          string    `json:"id"`
	CameraIndex int       `json:"camera_index"`
	Timestamp   time.Time `json:"timestamp"`
	Static
	Dynamic
}
