package stream

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame is one captured image with its provenance. The Mat is owned by
// whoever currently holds the frame: the capture loop closes frames it
// overwrites, the dispatch loop closes frames after fan-out, and
// consumers must Clone the image to retain it past the callback.
type Frame struct {
	CameraIndex int
	Image       gocv.Mat
	Timestamp   time.Time
	Seq         uint64
}

// Clone returns a deep copy of the frame with an independently owned Mat.
func (f Frame) Clone() Frame {
	return Frame{
		CameraIndex: f.CameraIndex,
		Image:       f.Image.Clone(),
		Timestamp:   f.Timestamp,
		Seq:         f.Seq,
	}
}

// Close releases the frame's image buffer.
func (f *Frame) Close() {
	f.Image.Close()
}
