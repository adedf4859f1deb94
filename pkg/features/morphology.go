package features

import (
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"
)

const (
	// CLAHE contrast limit and tile grid for froth illumination
	// flattening.
	claheClipLimit = 2.0
	claheTileSize  = 8

	// Minimum Euclidean separation between watershed seed peaks, in
	// pixels.
	minPeakSeparation = 7

	// Regions below this pixel area are segmentation noise, not
	// bubbles.
	minBubbleArea = 20
)

// bubbleRegion is one segmented bubble.
type bubbleRegion struct {
	area        float64
	perimeter   float64
	diameter    float64
	circularity float64
}

// ExtractMorphologyStats segments bubbles with a distance-transform
// watershed and summarizes their size and shape distribution. A frame
// with no segmentable bubbles yields zeros.
func ExtractMorphologyStats(img gocv.Mat) MorphologyStats {
	gray := toGray(img)
	if gray.Empty() {
		gray.Close()
		return MorphologyStats{}
	}
	defer gray.Close()

	enhanced := gocv.NewMat()
	defer enhanced.Close()
	clahe := gocv.NewCLAHEWithParams(claheClipLimit, image.Pt(claheTileSize, claheTileSize))
	clahe.Apply(gray, &enhanced)
	clahe.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(enhanced, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(blurred, &binary, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)

	dist := gocv.NewMat()
	defer dist.Close()
	distLabels := gocv.NewMat()
	defer distLabels.Close()
	gocv.DistanceTransform(binary, &dist, &distLabels, gocv.DistL2, gocv.DistanceMask5, gocv.DistanceLabelCComp)

	seeds := peakSeeds(dist)
	if len(seeds) == 0 {
		return MorphologyStats{}
	}

	markers := watershedMarkers(dist, binary, seeds)
	defer markers.Close()

	regions := measureRegions(markers, binary, len(seeds))
	return summarize(regions)
}

type peak struct {
	y, x  int
	value float32
}

// peakSeeds finds local maxima of the distance map, strongest first,
// suppressing peaks closer than minPeakSeparation to an already
// accepted one. Ties break on position so identical frames always
// yield identical seeds.
func peakSeeds(dist gocv.Mat) []peak {
	rows, cols := dist.Rows(), dist.Cols()

	var candidates []peak
	for y := 1; y < rows-1; y++ {
		for x := 1; x < cols-1; x++ {
			v := dist.GetFloatAt(y, x)
			if v <= 0 {
				continue
			}
			isMax := true
			for dy := -1; dy <= 1 && isMax; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dy == 0 && dx == 0 {
						continue
					}
					if dist.GetFloatAt(y+dy, x+dx) > v {
						isMax = false
						break
					}
				}
			}
			if isMax {
				candidates = append(candidates, peak{y: y, x: x, value: v})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].value != candidates[j].value {
			return candidates[i].value > candidates[j].value
		}
		if candidates[i].y != candidates[j].y {
			return candidates[i].y < candidates[j].y
		}
		return candidates[i].x < candidates[j].x
	})

	minSq := minPeakSeparation * minPeakSeparation
	var seeds []peak
	for _, c := range candidates {
		ok := true
		for _, s := range seeds {
			dy, dx := c.y-s.y, c.x-s.x
			if dy*dy+dx*dx < minSq {
				ok = false
				break
			}
		}
		if ok {
			seeds = append(seeds, c)
		}
	}
	return seeds
}

// watershedMarkers floods the inverted distance surface from the seed
// peaks and returns the label map. Labels are 1-based; -1 marks
// watershed ridges.
func watershedMarkers(dist, binary gocv.Mat, seeds []peak) gocv.Mat {
	markers := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), dist.Rows(), dist.Cols(), gocv.MatTypeCV32S)
	for i, s := range seeds {
		markers.SetIntAt(s.y, s.x, int32(i+1))
	}

	norm := gocv.NewMat()
	defer norm.Close()
	gocv.Normalize(dist, &norm, 0, 255, gocv.NormMinMax)

	elev8 := gocv.NewMat()
	defer elev8.Close()
	norm.ConvertTo(&elev8, gocv.MatTypeCV8U)

	// Watershed floods uphill, so invert: bubble centers become
	// valleys.
	inverted := gocv.NewMat()
	defer inverted.Close()
	gocv.BitwiseNot(elev8, &inverted)

	surface := gocv.NewMat()
	defer surface.Close()
	gocv.CvtColor(inverted, &surface, gocv.ColorGrayToBGR)

	gocv.Watershed(surface, &markers)
	return markers
}

// measureRegions extracts per-bubble area, perimeter, equivalent
// diameter and circularity from the labeled watershed output.
// Labeled pixels outside the foreground mask are discarded.
func measureRegions(markers, binary gocv.Mat, numSeeds int) []bubbleRegion {
	rows, cols := markers.Rows(), markers.Cols()

	areas := make([]int, numSeeds+1)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			label := int(markers.GetIntAt(y, x))
			if label < 1 || label > numSeeds {
				continue
			}
			if binary.GetUCharAt(y, x) == 0 {
				continue
			}
			areas[label]++
		}
	}

	masks := make(map[int]*gocv.Mat)
	for label := 1; label <= numSeeds; label++ {
		if areas[label] < minBubbleArea {
			continue
		}
		m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8U)
		masks[label] = &m
	}
	if len(masks) == 0 {
		return nil
	}

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			label := int(markers.GetIntAt(y, x))
			if m, ok := masks[label]; ok && binary.GetUCharAt(y, x) != 0 {
				m.SetUCharAt(y, x, 255)
			}
		}
	}

	labels := make([]int, 0, len(masks))
	for label := range masks {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	var regions []bubbleRegion
	for _, label := range labels {
		mask := masks[label]
		r := measureMask(*mask, float64(areas[label]))
		mask.Close()
		if r.area > 0 {
			regions = append(regions, r)
		}
	}
	return regions
}

func measureMask(mask gocv.Mat, area float64) bubbleRegion {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return bubbleRegion{}
	}

	best := 0
	bestArea := gocv.ContourArea(contours.At(0))
	for i := 1; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); a > bestArea {
			best, bestArea = i, a
		}
	}

	r := bubbleRegion{
		area:      area,
		perimeter: gocv.ArcLength(contours.At(best), true),
		diameter:  math.Sqrt(4 * area / math.Pi),
	}
	if r.perimeter > 0 {
		r.circularity = 4 * math.Pi * area / (r.perimeter * r.perimeter)
	}
	return r
}

func summarize(regions []bubbleRegion) MorphologyStats {
	if len(regions) == 0 {
		return MorphologyStats{}
	}

	n := float64(len(regions))
	var s MorphologyStats
	s.BubbleCount = len(regions)

	diameters := make([]float64, 0, len(regions))
	for _, r := range regions {
		s.BubbleAreaMean += r.area
		s.BubbleDiameterMean += r.diameter
		s.BubbleCircularityMean += r.circularity
		diameters = append(diameters, r.diameter)
	}
	s.BubbleAreaMean /= n
	s.BubbleDiameterMean /= n
	s.BubbleCircularityMean /= n

	var varSum float64
	for _, r := range regions {
		d := r.area - s.BubbleAreaMean
		varSum += d * d
	}
	s.BubbleAreaStd = math.Sqrt(varSum / n)

	sort.Float64s(diameters)
	s.BubbleD10 = percentile(diameters, 0.10)
	s.BubbleD50 = percentile(diameters, 0.50)
	s.BubbleD90 = percentile(diameters, 0.90)
	return s
}

// percentile interpolates linearly on a sorted slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
