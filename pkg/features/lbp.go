package features

import (
	"math"

	"gocv.io/x/gocv"
)

// Uniform LBP with radius 1 and 8 neighbors: patterns with at most two
// 0/1 transitions map to their bit count (bins 0..8), the rest share
// bin 9.
const lbpBins = 10

// Neighbor offsets (dy, dx), clockwise from top-left.
var lbpNeighbors = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, 1},
	{1, 1}, {1, 0}, {1, -1},
	{0, -1},
}

// ExtractLBPStats computes the Shannon entropy of the uniform LBP
// histogram. A flat image has a single pattern and entropy 0.
func ExtractLBPStats(img gocv.Mat) LBPStats {
	gray := toGray(img)
	if gray.Empty() {
		gray.Close()
		return LBPStats{}
	}
	defer gray.Close()

	rows, cols := gray.Rows(), gray.Cols()
	if rows < 3 || cols < 3 {
		return LBPStats{}
	}

	var hist [lbpBins]float64
	var total float64
	for y := 1; y < rows-1; y++ {
		for x := 1; x < cols-1; x++ {
			center := gray.GetUCharAt(y, x)
			var bits [8]bool
			for i, n := range lbpNeighbors {
				bits[i] = gray.GetUCharAt(y+n[0], x+n[1]) >= center
			}
			hist[lbpBin(bits)]++
			total++
		}
	}
	if total == 0 {
		return LBPStats{}
	}

	var entropy float64
	for _, c := range hist {
		if c == 0 {
			continue
		}
		p := c / total
		entropy -= p * math.Log2(p)
	}
	return LBPStats{Entropy: entropy}
}

func lbpBin(bits [8]bool) int {
	transitions := 0
	ones := 0
	for i := 0; i < 8; i++ {
		if bits[i] {
			ones++
		}
		if bits[i] != bits[(i+1)%8] {
			transitions++
		}
	}
	if transitions <= 2 {
		return ones
	}
	return lbpBins - 1
}
