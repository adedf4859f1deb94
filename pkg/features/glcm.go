package features

import (
	"math"

	"gocv.io/x/gocv"
)

// GLCM quantization depth. 64 levels keeps the co-occurrence matrix
// small while preserving froth texture contrast.
const glcmLevels = 64

// Co-occurrence offsets (dy, dx) for 0, 45, 90 and 135 degrees.
var glcmOffsets = [4][2]int{
	{0, 1},
	{-1, 1},
	{-1, 0},
	{-1, -1},
}

// ExtractGLCMStats computes co-occurrence texture features averaged
// over the four directions. Empty input yields zeros.
func ExtractGLCMStats(img gocv.Mat) GLCMStats {
	gray := toGray(img)
	if gray.Empty() {
		gray.Close()
		return GLCMStats{}
	}
	defer gray.Close()

	q := quantize(gray)

	var sum GLCMStats
	for _, off := range glcmOffsets {
		p := cooccurrence(q, off[0], off[1])
		f := glcmFeatures(p)
		sum.Contrast += f.Contrast
		sum.Dissimilarity += f.Dissimilarity
		sum.Homogeneity += f.Homogeneity
		sum.Energy += f.Energy
		sum.Correlation += f.Correlation
	}

	n := float64(len(glcmOffsets))
	return GLCMStats{
		Contrast:      sum.Contrast / n,
		Dissimilarity: sum.Dissimilarity / n,
		Homogeneity:   sum.Homogeneity / n,
		Energy:        sum.Energy / n,
		Correlation:   sum.Correlation / n,
	}
}

// quantize maps 8-bit gray values onto glcmLevels buckets.
func quantize(gray gocv.Mat) [][]uint8 {
	rows, cols := gray.Rows(), gray.Cols()
	q := make([][]uint8, rows)
	for y := 0; y < rows; y++ {
		q[y] = make([]uint8, cols)
		for x := 0; x < cols; x++ {
			q[y][x] = uint8(int(gray.GetUCharAt(y, x)) * glcmLevels / 256)
		}
	}
	return q
}

// cooccurrence builds the normalized co-occurrence matrix for one
// offset.
func cooccurrence(q [][]uint8, dy, dx int) [][]float64 {
	p := make([][]float64, glcmLevels)
	for i := range p {
		p[i] = make([]float64, glcmLevels)
	}

	rows := len(q)
	if rows == 0 {
		return p
	}
	cols := len(q[0])

	var total float64
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			ny, nx := y+dy, x+dx
			if ny < 0 || ny >= rows || nx < 0 || nx >= cols {
				continue
			}
			p[q[y][x]][q[ny][nx]]++
			total++
		}
	}

	if total > 0 {
		for i := range p {
			for j := range p[i] {
				p[i][j] /= total
			}
		}
	}
	return p
}

// glcmFeatures derives the texture scalars from one normalized
// co-occurrence matrix. A uniform image has a degenerate gray
// distribution; its correlation is defined as 1.
func glcmFeatures(p [][]float64) GLCMStats {
	var f GLCMStats

	var meanI, meanJ float64
	for i := range p {
		for j, v := range p[i] {
			if v == 0 {
				continue
			}
			d := float64(i - j)
			f.Contrast += v * d * d
			if d < 0 {
				d = -d
			}
			f.Dissimilarity += v * d
			f.Homogeneity += v / (1 + float64(i-j)*float64(i-j))
			f.Energy += v * v
			meanI += float64(i) * v
			meanJ += float64(j) * v
		}
	}

	var varI, varJ, cov float64
	for i := range p {
		for j, v := range p[i] {
			if v == 0 {
				continue
			}
			di := float64(i) - meanI
			dj := float64(j) - meanJ
			varI += di * di * v
			varJ += dj * dj * v
			cov += di * dj * v
		}
	}

	denom := varI * varJ
	if denom < 1e-12 {
		f.Correlation = 1
	} else {
		f.Correlation = cov / math.Sqrt(denom)
	}
	return f
}
