package stream

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/frothvision/frothwatch/internal/config"
	"github.com/frothvision/frothwatch/internal/log"
)

// FrameConsumer receives every dispatched frame. The frame's Mat is
// only valid for the duration of the call; Clone to retain it.
type FrameConsumer func(cameraIndex int, frame Frame)

// StatusConsumer receives connection state transitions.
type StatusConsumer func(cameraIndex int, status Status)

// SourceFactory builds the capture source for a camera, overridable
// for tests.
type SourceFactory func(cfg config.Camera) Source

// ErrUnknownCamera marks an operation on an index with no reader.
var ErrUnknownCamera = errors.New("unknown camera")

// CameraStats is a point-in-time view of one camera's pipeline.
type CameraStats struct {
	CameraIndex int     `json:"camera_index"`
	Name        string  `json:"name"`
	State       string  `json:"state"`
	RetryCount  int     `json:"retry_count"`
	Frames      uint64  `json:"frames"`
	Dropped     uint64  `json:"dropped"`
	FPS         float64 `json:"fps"`
}

// Manager owns the per-camera readers and fans captured frames out to
// registered consumers. Each camera gets its own dispatch goroutine,
// so one slow or failed camera never stalls the others.
type Manager struct {
	mu        sync.Mutex
	readers   map[int]*Reader
	cfgs      map[int]config.Camera
	startedAt map[int]time.Time
	nextIndex int

	// Consumer lists live under their own lock: status callbacks fire
	// from inside Reader.Start while m.mu may be held.
	consumerMu    sync.RWMutex
	consumers     []FrameConsumer
	statusConsume []StatusConsumer

	sourceFactory SourceFactory
	stopped       atomic.Bool
	wg            sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSourceFactory overrides how camera sources are built.
func WithSourceFactory(f SourceFactory) ManagerOption {
	return func(m *Manager) { m.sourceFactory = f }
}

// NewManager creates an empty manager. Call Initialize before StartAll.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		readers:   make(map[int]*Reader),
		cfgs:      make(map[int]config.Camera),
		startedAt: make(map[int]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize creates a reader per enabled camera. Disabled cameras are
// skipped entirely; they hold no index.
func (m *Manager) Initialize(cams []config.Camera) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cam := range cams {
		if !cam.Enabled {
			log.Info("camera disabled, skipping", "name", cam.Name)
			continue
		}
		idx := m.nextIndex
		m.nextIndex++
		m.readers[idx] = m.newReader(idx, cam)
		m.cfgs[idx] = cam
		log.Info("camera registered", "camera", idx, "name", cam.Name)
	}
}

// RegisterConsumer adds a frame consumer. Register before StartAll;
// consumers added later miss frames dispatched in between.
func (m *Manager) RegisterConsumer(fn FrameConsumer) {
	m.consumerMu.Lock()
	defer m.consumerMu.Unlock()
	m.consumers = append(m.consumers, fn)
}

// RegisterStatusConsumer adds a connection state consumer.
func (m *Manager) RegisterStatusConsumer(fn StatusConsumer) {
	m.consumerMu.Lock()
	defer m.consumerMu.Unlock()
	m.statusConsume = append(m.statusConsume, fn)
}

// StartAll starts every registered reader and its dispatch loop. A
// camera whose Start fails is logged and left in its terminal state;
// the rest proceed. Readers start concurrently: one camera consuming
// its reconnect budget never delays the others, only the slowest
// camera bounds how long StartAll blocks.
func (m *Manager) StartAll() {
	m.stopped.Store(false)

	m.mu.Lock()
	readers := make(map[int]*Reader, len(m.readers))
	for idx, r := range m.readers {
		readers[idx] = r
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for idx, r := range readers {
		wg.Add(1)
		go func(idx int, r *Reader) {
			defer wg.Done()
			m.start(idx, r)
		}(idx, r)
	}
	wg.Wait()
}

// StopAll stops all readers and waits for the dispatch loops to drain.
func (m *Manager) StopAll() {
	m.stopped.Store(true)
	m.mu.Lock()
	for _, r := range m.readers {
		r.Stop()
	}
	m.mu.Unlock()
	m.wg.Wait()
	log.Info("all cameras stopped")
}

// GetFrame fetches the next frame from one camera directly, bypassing
// the consumer fan-out. The caller owns the returned frame.
func (m *Manager) GetFrame(cameraIndex int, timeout time.Duration) (Frame, error) {
	m.mu.Lock()
	r, ok := m.readers[cameraIndex]
	m.mu.Unlock()
	if !ok {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownCamera, cameraIndex)
	}
	return r.GetFrame(timeout)
}

// AddCamera registers and starts a camera at runtime without
// disturbing existing readers. Returns the assigned index.
func (m *Manager) AddCamera(cam config.Camera) (int, error) {
	if errs := cam.Validate(); len(errs) > 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	m.mu.Lock()
	idx := m.nextIndex
	m.nextIndex++
	r := m.newReader(idx, cam)
	m.readers[idx] = r
	m.cfgs[idx] = cam
	m.mu.Unlock()

	m.start(idx, r)
	log.Info("camera added", "camera", idx, "name", cam.Name)
	return idx, nil
}

// RestartCamera tears down a camera's reader and starts a fresh one
// with the same configuration. This is the only way out of the Failed
// state.
func (m *Manager) RestartCamera(cameraIndex int) bool {
	m.mu.Lock()
	old, ok := m.readers[cameraIndex]
	cfg, cfgOK := m.cfgs[cameraIndex]
	m.mu.Unlock()
	if !ok || !cfgOK {
		return false
	}

	old.Stop()
	for i := 0; i < 50 && old.IsRunning(); i++ {
		time.Sleep(100 * time.Millisecond)
	}

	m.mu.Lock()
	r := m.newReader(cameraIndex, cfg)
	m.readers[cameraIndex] = r
	m.mu.Unlock()

	ok = m.start(cameraIndex, r)
	log.Info("camera restarted", "camera", cameraIndex, "ok", ok)
	return ok
}

// Stats returns a snapshot per camera, ordered by index.
func (m *Manager) Stats() []CameraStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]CameraStats, 0, len(m.readers))
	for idx, r := range m.readers {
		st := r.Status()
		s := CameraStats{
			CameraIndex: idx,
			Name:        m.cfgs[idx].Name,
			State:       st.State.String(),
			RetryCount:  st.RetryCount,
			Frames:      r.Frames(),
			Dropped:     r.Dropped(),
		}
		if started, ok := m.startedAt[idx]; ok {
			if elapsed := time.Since(started).Seconds(); elapsed > 0 {
				s.FPS = float64(r.Frames()) / elapsed
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraIndex < out[j].CameraIndex })
	return out
}

func (m *Manager) newReader(idx int, cam config.Camera) *Reader {
	opts := []Option{WithStatusFunc(m.notifyStatus)}
	if m.sourceFactory != nil {
		opts = append(opts, WithSource(m.sourceFactory(cam)))
	}
	return NewReader(idx, cam, opts...)
}

// start starts one reader and, on success, its dispatch loop.
// Reader.Start can block through the whole reconnect budget, so this
// must not be called with m.mu held.
func (m *Manager) start(idx int, r *Reader) bool {
	if !r.Start() {
		log.Error("camera failed to start", "camera", idx)
		return false
	}
	m.mu.Lock()
	m.startedAt[idx] = time.Now()
	m.mu.Unlock()
	m.wg.Add(1)
	go m.dispatchLoop(idx, r)
	return true
}

// dispatchLoop pulls frames from one reader and fans them out. It
// owns each frame it pulls and releases it after the fan-out, so
// consumers must Clone to retain image data.
func (m *Manager) dispatchLoop(idx int, r *Reader) {
	defer m.wg.Done()
	for !m.stopped.Load() {
		f, err := r.GetFrame(time.Second)
		if err != nil {
			if !r.IsRunning() {
				log.Info("dispatch loop ending", "camera", idx, "state", r.Status().State)
				return
			}
			continue
		}

		m.consumerMu.RLock()
		consumers := make([]FrameConsumer, len(m.consumers))
		copy(consumers, m.consumers)
		m.consumerMu.RUnlock()

		for _, fn := range consumers {
			m.invoke(idx, fn, f)
		}
		f.Close()
	}
}

// invoke shields the dispatch loop from a panicking consumer.
func (m *Manager) invoke(idx int, fn FrameConsumer, f Frame) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("frame consumer panicked", "camera", idx, "panic", rec)
		}
	}()
	fn(idx, f)
}

func (m *Manager) notifyStatus(idx int, status Status) {
	m.consumerMu.RLock()
	consumers := make([]StatusConsumer, len(m.statusConsume))
	copy(consumers, m.statusConsume)
	m.consumerMu.RUnlock()
	for _, fn := range consumers {
		fn(idx, status)
	}
}
