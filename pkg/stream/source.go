package stream

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// Source is a single camera connection. Implementations are not
// safe for concurrent use: after Start succeeds the handle is owned
// exclusively by the reader's capture loop, which is the only caller
// allowed to release it.
type Source interface {
	// Open establishes the connection and verifies it produces frames.
	Open() error

	// Read grabs the next frame into dst. Returns false on failure.
	Read(dst *gocv.Mat) bool

	// Close releases the connection. Safe to call when not open.
	Close() error
}

// FFmpeg open/read timeout properties (CAP_PROP_OPEN_TIMEOUT_MSEC and
// CAP_PROP_READ_TIMEOUT_MSEC), not yet named in gocv.
const (
	propOpenTimeoutMsec = gocv.VideoCaptureProperties(53)
	propReadTimeoutMsec = gocv.VideoCaptureProperties(54)
)

// rtspSource reads frames from an RTSP (or any OpenCV-supported) URL.
type rtspSource struct {
	url     string
	timeout time.Duration
	cap     *gocv.VideoCapture
}

func newRTSPSource(url string, timeout time.Duration) *rtspSource {
	return &rtspSource{url: url, timeout: timeout}
}

func (s *rtspSource) Open() error {
	cap, err := gocv.OpenVideoCapture(s.url)
	if err != nil {
		return fmt.Errorf("open stream %s: %w", s.url, err)
	}

	if s.timeout > 0 {
		cap.Set(propOpenTimeoutMsec, float64(s.timeout.Milliseconds()))
		cap.Set(propReadTimeoutMsec, float64(s.timeout.Milliseconds()))
	}
	// Keep the driver buffer at one frame; stale frames are useless here.
	cap.Set(gocv.VideoCaptureBufferSize, 1)

	if !cap.IsOpened() {
		cap.Close()
		return fmt.Errorf("stream %s did not open", s.url)
	}

	// Probe read: an RTSP endpoint can accept the connection yet never
	// deliver a frame.
	probe := gocv.NewMat()
	defer probe.Close()
	if !cap.Read(&probe) || probe.Empty() {
		cap.Close()
		return fmt.Errorf("stream %s opened but produced no frame", s.url)
	}

	s.cap = cap
	return nil
}

func (s *rtspSource) Read(dst *gocv.Mat) bool {
	if s.cap == nil {
		return false
	}
	return s.cap.Read(dst) && !dst.Empty()
}

func (s *rtspSource) Close() error {
	if s.cap == nil {
		return nil
	}
	err := s.cap.Close()
	s.cap = nil
	return err
}
