package stream

import (
	"errors"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/frothvision/frothwatch/internal/config"
)

// fakeSource is a scriptable Source for reader tests. Each successful
// read fills the frame with its 1-based read number, so tests can tell
// frames apart by pixel value.
type fakeSource struct {
	mu         sync.Mutex
	failOpens  int // fail the first N Open calls
	alwaysFail bool
	failAtRead int // 1-based read number that fails once
	blockAfter int // after N successful reads, block until release
	readDelay  time.Duration
	openDelay  time.Duration

	opens   int
	reads   int
	open    bool
	release chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{release: make(chan struct{})}
}

func (s *fakeSource) Open() error {
	if s.openDelay > 0 {
		time.Sleep(s.openDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if s.alwaysFail || s.opens <= s.failOpens {
		return errors.New("fake open failure")
	}
	s.open = true
	return nil
}

func (s *fakeSource) Read(dst *gocv.Mat) bool {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return false
	}
	if s.blockAfter > 0 && s.reads >= s.blockAfter {
		rel := s.release
		s.mu.Unlock()
		<-rel
		return false
	}
	s.reads++
	n := s.reads
	fail := s.failAtRead == n
	delay := s.readDelay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if fail {
		return false
	}

	v := float64(n % 256)
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), 8, 8, gocv.MatTypeCV8UC3)
	defer m.Close()
	m.CopyTo(dst)
	return true
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *fakeSource) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

func testCamera(maxRetries int) config.Camera {
	return config.Camera{
		Name:       "test",
		URL:        "fake://cam",
		Enabled:    true,
		TimeoutSec: 1,
		MaxRetries: maxRetries,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Condition not met within timeout")
}

func TestReaderOverwriteKeepsLatest(t *testing.T) {
	src := newFakeSource()
	src.blockAfter = 5

	r := NewReader(0, testCamera(1), WithSource(src))
	if !r.Start() {
		t.Fatal("Expected Start to succeed")
	}
	defer func() {
		r.Stop()
		close(src.release)
	}()

	waitFor(t, 2*time.Second, func() bool { return r.Frames() == 5 })

	f, err := r.GetFrame(time.Second)
	if err != nil {
		t.Fatalf("GetFrame failed: %v", err)
	}
	defer f.Close()

	if f.Seq != 5 {
		t.Errorf("Expected latest frame seq 5, got %d", f.Seq)
	}
	if v := f.Image.GetUCharAt(0, 0); v != 5 {
		t.Errorf("Expected latest frame content 5, got %d", v)
	}
	if r.Dropped() != 4 {
		t.Errorf("Expected 4 overwritten frames, got %d", r.Dropped())
	}

	if _, err := r.GetFrame(50 * time.Millisecond); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Expected ErrNoFrame on drained slot, got %v", err)
	}
}

func TestReaderGetFrameTimeout(t *testing.T) {
	r := NewReader(0, testCamera(1), WithSource(newFakeSource()))

	start := time.Now()
	_, err := r.GetFrame(100 * time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrNoFrame) {
		t.Fatalf("Expected ErrNoFrame, got %v", err)
	}
	if elapsed < 100*time.Millisecond {
		t.Errorf("Expected timeout to block at least 100ms, returned after %v", elapsed)
	}
}

func TestReaderRetryExhaustion(t *testing.T) {
	src := newFakeSource()
	src.alwaysFail = true

	r := NewReader(0, testCamera(2), WithSource(src))
	if r.Start() {
		t.Fatal("Expected Start to fail when connects never succeed")
	}

	if got := src.openCount(); got != 3 {
		t.Errorf("Expected 3 connect attempts (initial + 2 retries), got %d", got)
	}
	st := r.Status()
	if st.State != Failed {
		t.Errorf("Expected Failed state, got %v", st.State)
	}
	if st.RetryCount != 2 {
		t.Errorf("Expected retry count 2, got %d", st.RetryCount)
	}
	if st.LastError == nil {
		t.Error("Expected last error to be recorded")
	}
	if r.IsRunning() {
		t.Error("Expected reader not to be running after exhaustion")
	}
}

func TestReaderStartRejectsWhenRunning(t *testing.T) {
	src := newFakeSource()
	src.readDelay = 10 * time.Millisecond

	r := NewReader(0, testCamera(1), WithSource(src))
	if !r.Start() {
		t.Fatal("Expected first Start to succeed")
	}
	defer r.Stop()

	if r.Start() {
		t.Error("Expected second Start to be rejected")
	}
}

func TestReaderStopEndsLoop(t *testing.T) {
	src := newFakeSource()
	src.readDelay = 5 * time.Millisecond

	r := NewReader(0, testCamera(1), WithSource(src))
	if !r.Start() {
		t.Fatal("Expected Start to succeed")
	}

	r.Stop()
	waitFor(t, 2*time.Second, func() bool { return !r.IsRunning() })

	if st := r.Status(); st.State != Disconnected {
		t.Errorf("Expected Disconnected after stop, got %v", st.State)
	}
}

func TestReaderStopReleasesUnconsumedFrame(t *testing.T) {
	src := newFakeSource()
	src.blockAfter = 1

	r := NewReader(0, testCamera(1), WithSource(src))
	if !r.Start() {
		t.Fatal("Expected Start to succeed")
	}

	// One frame captured and left unconsumed in the slot.
	waitFor(t, 2*time.Second, func() bool { return r.Frames() == 1 })

	r.Stop()
	close(src.release)
	waitFor(t, 2*time.Second, func() bool { return !r.IsRunning() })

	// The loop's cleanup must have drained the slot.
	if _, err := r.GetFrame(50 * time.Millisecond); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Expected empty slot after stop, got %v", err)
	}
}

func TestReaderReadFailureReconnects(t *testing.T) {
	src := newFakeSource()
	src.failAtRead = 3
	src.readDelay = 2 * time.Millisecond

	r := NewReader(0, testCamera(5), WithSource(src))
	if !r.Start() {
		t.Fatal("Expected Start to succeed")
	}
	defer r.Stop()

	waitFor(t, 2*time.Second, func() bool { return src.openCount() == 2 })
	waitFor(t, 2*time.Second, func() bool { return r.Status().State == Streaming })

	if st := r.Status(); st.RetryCount != 0 {
		t.Errorf("Expected retry count reset after reconnect, got %d", st.RetryCount)
	}

	before := r.Frames()
	waitFor(t, 2*time.Second, func() bool { return r.Frames() > before })
}

func TestReaderInvalidConfigFailsFast(t *testing.T) {
	src := newFakeSource()
	cfg := testCamera(3)
	cfg.URL = ""

	r := NewReader(0, cfg, WithSource(src))
	if r.Start() {
		t.Fatal("Expected Start to reject invalid config")
	}

	if src.openCount() != 0 {
		t.Errorf("Expected no connect attempt, got %d", src.openCount())
	}
	st := r.Status()
	if st.State != Disconnected {
		t.Errorf("Expected Disconnected state, got %v", st.State)
	}
	if st.LastError == nil {
		t.Error("Expected validation error to be recorded")
	}
}
