// Package analysis turns captured frames into feature records. Each
// camera is analyzed at most once at a time; frames arriving while the
// previous analysis is still running are dropped, keeping the worker
// at the pace the extraction can sustain.
package analysis

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/frothvision/frothwatch/internal/log"
	"github.com/frothvision/frothwatch/pkg/features"
	"github.com/frothvision/frothwatch/pkg/stream"
)

// RecordFunc receives every completed feature record.
type RecordFunc func(rec features.Record)

// cameraState carries the per-camera busy guard and the previous frame
// needed for motion features.
type cameraState struct {
	busy     atomic.Bool
	prev     gocv.Mat
	prevTime time.Time
	hasPrev  bool
}

// Worker runs feature extraction off the frame dispatch path.
type Worker struct {
	strategy features.MotionStrategy
	onRecord RecordFunc

	mu   sync.Mutex
	cams map[int]*cameraState

	processed atomic.Uint64
	dropped   atomic.Uint64
}

// NewWorker creates a worker. The motion strategy is resolved once
// here and shared across cameras for the worker's lifetime.
func NewWorker(onRecord RecordFunc) *Worker {
	return &Worker{
		strategy: features.ResolveMotionStrategy(),
		onRecord: onRecord,
		cams:     make(map[int]*cameraState),
	}
}

// Process submits one frame for analysis. Returns false when the
// camera's previous analysis is still running and the frame was
// dropped. The frame's Mat is only borrowed: it is cloned before
// Process returns.
func (w *Worker) Process(cameraIndex int, frame stream.Frame) bool {
	state := w.state(cameraIndex)
	if !state.busy.CompareAndSwap(false, true) {
		w.dropped.Add(1)
		return false
	}

	img := frame.Image.Clone()
	go w.analyze(cameraIndex, state, img, frame.Timestamp)
	return true
}

// HandleFrame adapts Process to the stream consumer signature.
func (w *Worker) HandleFrame(cameraIndex int, frame stream.Frame) {
	w.Process(cameraIndex, frame)
}

// Processed returns the number of completed analyses.
func (w *Worker) Processed() uint64 {
	return w.processed.Load()
}

// Dropped returns the number of frames rejected by the busy guard.
func (w *Worker) Dropped() uint64 {
	return w.dropped.Load()
}

// Close releases retained frames and the keypoint detector. Callers
// must stop submitting frames first.
func (w *Worker) Close() error {
	w.mu.Lock()
	for _, state := range w.cams {
		if state.hasPrev {
			state.prev.Close()
			state.hasPrev = false
		}
	}
	w.mu.Unlock()

	if w.strategy != nil {
		return w.strategy.Close()
	}
	return nil
}

func (w *Worker) state(cameraIndex int) *cameraState {
	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.cams[cameraIndex]
	if !ok {
		state = &cameraState{}
		w.cams[cameraIndex] = state
	}
	return state
}

// analyze extracts features from one frame and rotates it into the
// camera's previous slot. The busy guard is released last, after any
// panic recovery, so a crashing extraction never wedges the camera.
func (w *Worker) analyze(cameraIndex int, state *cameraState, img gocv.Mat, ts time.Time) {
	defer state.busy.Store(false)

	ok := false
	defer func() {
		if r := recover(); r != nil {
			log.Error("analysis panicked", "camera", cameraIndex, "panic", r)
		}
		if !ok {
			img.Close()
		}
	}()

	rec := features.Record{
		ID:          uuid.NewString(),
		CameraIndex: cameraIndex,
		Timestamp:   ts,
	}
	rec.Static = features.ExtractAllStatic(img)

	if state.hasPrev {
		elapsed := ts.Sub(state.prevTime).Seconds()
		rec.Dynamic = features.ExtractDynamic(w.strategy, state.prev, img, elapsed)
	}

	old, hadPrev := state.prev, state.hasPrev
	state.prev = img
	state.prevTime = ts
	state.hasPrev = true
	ok = true
	if hadPrev {
		old.Close()
	}

	w.processed.Add(1)
	if w.onRecord != nil {
		w.onRecord(rec)
	}
}
