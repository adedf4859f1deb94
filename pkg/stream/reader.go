package stream

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/frothvision/frothwatch/internal/config"
	"github.com/frothvision/frothwatch/internal/log"
)

var (
	// ErrNoFrame is returned by GetFrame when no frame arrives within
	// the timeout.
	ErrNoFrame = errors.New("no frame available")

	// ErrInvalidConfig marks a camera configuration rejected by
	// validation.
	ErrInvalidConfig = errors.New("invalid camera config")
)

// StatusFunc receives connection state transitions for a camera.
type StatusFunc func(cameraIndex int, status Status)

// Reader owns one camera connection and its capture loop. Frames are
// handed off through a single-slot channel with overwrite semantics:
// an unconsumed frame is dropped when a newer one arrives, so memory
// stays bounded no matter how slow the consumer is.
type Reader struct {
	ID    uuid.UUID
	index int
	cfg   config.Camera

	source Source
	frames chan Frame
	log    *slog.Logger

	running atomic.Bool
	stopped atomic.Bool

	mu     sync.Mutex
	status Status

	onStatus StatusFunc

	seq     atomic.Uint64
	frameN  atomic.Uint64
	dropped atomic.Uint64
}

// Option configures a Reader.
type Option func(*Reader)

// WithSource overrides the camera source, mainly for tests.
func WithSource(s Source) Option {
	return func(r *Reader) { r.source = s }
}

// WithStatusFunc registers a callback for state transitions.
func WithStatusFunc(fn StatusFunc) Option {
	return func(r *Reader) { r.onStatus = fn }
}

// NewReader creates a reader for one camera. The configuration is
// read-only after construction.
func NewReader(index int, cfg config.Camera, opts ...Option) *Reader {
	r := &Reader{
		ID:     uuid.New(),
		index:  index,
		cfg:    cfg,
		frames: make(chan Frame, 1),
		log:    log.ForCamera(index),
		status: Status{State: Disconnected},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.source == nil {
		r.source = newRTSPSource(cfg.URL, cfg.Timeout())
	}
	return r
}

// Start performs one synchronous connect attempt. An invalid
// configuration fails fast without spawning anything. A transient
// connect failure consumes the reconnect budget before giving up; if
// the budget is exhausted the reader ends up Failed and no capture
// loop is spawned. On success the capture loop is launched and Start
// returns true.
func (r *Reader) Start() bool {
	if !r.running.CompareAndSwap(false, true) {
		r.log.Warn("stream reader already running")
		return false
	}

	if errs := r.cfg.Validate(); len(errs) > 0 {
		err := fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
		r.log.Error("stream reader start rejected", "error", err)
		r.setStatus(Disconnected, 0, err)
		r.running.Store(false)
		return false
	}

	r.stopped.Store(false)
	r.setStatus(Connecting, 0, nil)

	if err := r.source.Open(); err != nil {
		r.log.Warn("initial connect failed", "url", r.cfg.URL, "error", err)
		if !r.reconnect(err) {
			r.running.Store(false)
			return false
		}
	} else {
		r.setStatus(Streaming, 0, nil)
	}

	go r.captureLoop()
	r.log.Info("stream reader started", "name", r.cfg.Name)
	return true
}

// Stop requests a cooperative shutdown. It never releases the device
// itself; release happens exclusively inside the capture loop, which
// is the handle's only owner.
func (r *Reader) Stop() {
	r.stopped.Store(true)
}

// GetFrame blocks until a frame is available or the timeout elapses.
// A frame that was overwritten before consumption is never returned.
func (r *Reader) GetFrame(timeout time.Duration) (Frame, error) {
	select {
	case f := <-r.frames:
		return f, nil
	case <-time.After(timeout):
		return Frame{}, ErrNoFrame
	}
}

// IsRunning reports whether the capture loop is active.
func (r *Reader) IsRunning() bool {
	return r.running.Load()
}

// Status returns a snapshot of the connection state.
func (r *Reader) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Frames returns the number of frames captured since Start.
func (r *Reader) Frames() uint64 {
	return r.frameN.Load()
}

// Dropped returns the number of frames overwritten before consumption.
func (r *Reader) Dropped() uint64 {
	return r.dropped.Load()
}

// captureLoop reads frames until stopped or the retry budget is
// exhausted. It is the single owner of the source handle: only this
// goroutine ever releases the device, so there is no cross-goroutine
// double-release.
func (r *Reader) captureLoop() {
	defer func() {
		// Release any frame still sitting unconsumed in the slot.
		select {
		case stale := <-r.frames:
			stale.Close()
		default:
		}
		r.source.Close()
		r.running.Store(false)
	}()

	img := gocv.NewMat()
	defer img.Close()

	for !r.stopped.Load() {
		if !r.source.Read(&img) {
			r.log.Warn("frame read failed")
			r.source.Close()
			if !r.reconnect(errors.New("frame read failed")) {
				return
			}
			continue
		}

		frame := r.makeFrame(img)

		// Clear-then-put: the slot holds at most one frame.
		select {
		case stale := <-r.frames:
			stale.Close()
			r.dropped.Add(1)
		default:
		}
		r.frames <- frame
		r.frameN.Add(1)
	}

	r.setStatus(Disconnected, 0, nil)
	r.log.Info("stream reader stopped")
}

// reconnect runs the retry budget: each attempt waits out the
// reconnect interval (interruptible, checked against the stop flag
// every second) and then reopens the source. Returns true once
// streaming again; false when stopped or when the budget is exhausted,
// in which case the terminal Failed state is set. The device is
// already released when reconnect is entered.
func (r *Reader) reconnect(cause error) bool {
	lastErr := cause
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		if r.stopped.Load() {
			r.setStatus(Disconnected, 0, nil)
			return false
		}

		r.setStatus(Reconnecting, attempt, lastErr)
		r.log.Info("reconnecting", "attempt", attempt, "max", r.cfg.MaxRetries)

		if !r.sleepInterruptible(r.cfg.ReconnectInterval()) {
			r.setStatus(Disconnected, 0, nil)
			return false
		}

		if err := r.source.Open(); err != nil {
			lastErr = err
			r.log.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}

		r.setStatus(Streaming, 0, nil)
		r.log.Info("reconnected", "attempts", attempt)
		return true
	}

	r.log.Error("retry budget exhausted", "retries", r.cfg.MaxRetries, "error", lastErr)
	r.setStatus(Failed, r.cfg.MaxRetries, lastErr)
	return false
}

// sleepInterruptible sleeps for d, waking every second to honor Stop.
// Returns false if stopped during the sleep.
func (r *Reader) sleepInterruptible(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if r.stopped.Load() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		if remaining > time.Second {
			remaining = time.Second
		}
		time.Sleep(remaining)
	}
}

func (r *Reader) makeFrame(img gocv.Mat) Frame {
	var out gocv.Mat
	if r.cfg.Width > 0 && r.cfg.Height > 0 &&
		(img.Cols() != r.cfg.Width || img.Rows() != r.cfg.Height) {
		out = gocv.NewMat()
		gocv.Resize(img, &out, image.Pt(r.cfg.Width, r.cfg.Height), 0, 0, gocv.InterpolationLinear)
	} else {
		out = img.Clone()
	}
	return Frame{
		CameraIndex: r.index,
		Image:       out,
		Timestamp:   time.Now(),
		Seq:         r.seq.Add(1),
	}
}

func (r *Reader) setStatus(state ConnectionState, retries int, err error) {
	r.mu.Lock()
	changed := r.status.State != state || r.status.RetryCount != retries
	r.status = Status{State: state, RetryCount: retries, LastError: err}
	status := r.status
	r.mu.Unlock()

	if changed && r.onStatus != nil {
		r.onStatus(r.index, status)
	}
}
