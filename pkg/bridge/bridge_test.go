package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"dashbridge/pkg/canbus"
	"dashbridge/pkg/curve"
	"dashbridge/pkg/dashboard"
	"dashbridge/pkg/log"
	"dashbridge/pkg/metrics"
	"dashbridge/pkg/serial"
)

func init() {
	quiet := log.New("test")
	quiet.SetWriter(io.Discard)
	log.SetDefaultLogger(quiet)
}

// fakeLink feeds queued chunks to Read and records everything written.
type fakeLink struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu  sync.Mutex
	out bytes.Buffer
}

func newFakeLink() *fakeLink {
	return &fakeLink{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (l *fakeLink) Read(p []byte) (int, error) {
	select {
	case b, ok := <-l.in:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, b), nil
	case <-l.closed:
		return 0, serial.ErrClosed
	case <-time.After(5 * time.Millisecond):
		return 0, serial.ErrTimeout
	}
}

func (l *fakeLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Write(p)
}

func (l *fakeLink) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *fakeLink) written() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.out.Bytes()...)
}

func (l *fakeLink) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type running struct {
	bridge *Bridge
	link   *fakeLink
	peer   *canbus.Loopback
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, opts Options) *running {
	t.Helper()
	link := newFakeLink()
	local, peer := canbus.NewLoopback(16)
	if opts.Interval == 0 {
		opts.Interval = 5 * time.Millisecond
	}
	opts.ClearDelay = -1
	b, err := New(link, local, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &running{bridge: b, link: link, peer: peer, cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			t.Error("Run did not return")
		}
	})
	return r
}

func TestNewSealsTables(t *testing.T) {
	b, err := New(newFakeLink(), nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !b.BusTable().Sealed() || !b.DisplayTable().Sealed() {
		t.Error("tables must be sealed after New")
	}
	if b.BusTable().Len() != 3 || b.DisplayTable().Len() != 4 {
		t.Errorf("handlers: bus=%d display=%d", b.BusTable().Len(), b.DisplayTable().Len())
	}
	if b.Curves().ActiveWindow() != dashboard.WindowSpeed {
		t.Errorf("active window = %d", b.Curves().ActiveWindow())
	}
	if _, err := New(nil, nil, Options{}); err == nil {
		t.Error("nil link must be rejected")
	}
}

func TestBusFrameReachesDisplay(t *testing.T) {
	r := start(t, Options{})

	f, _ := canbus.NewFrame(dashboard.BusIDStatus, []byte{10, 30, 2, 1})
	if err := r.peer.Send(f); err != nil {
		t.Fatal(err)
	}

	// vars frame with speed (variable 5) = 30
	want := []byte{0x5A, 0xA5, 0x17, 0x82, 0x50, 0x00, 0x00, 10}
	waitFor(t, "vars frame", func() bool {
		out := r.link.written()
		i := bytes.Index(out, want)
		return i >= 0 && len(out) >= i+26 && out[i+6+2*dashboard.VarSpeed+1] == 30
	})
	// the speed curve drew its sample: 30 km/h * 10 = 0x012C
	waitFor(t, "curve frame", func() bool {
		return bytes.Contains(r.link.written(), []byte{0x03, 0x10, 0x5A, 0xA5, 0x01, 0x00, 0x00, 0x01, 0x01, 0x2C})
	})
}

func TestDisplayUploadEchoesToBus(t *testing.T) {
	r := start(t, Options{})

	// mass slider = 500, split across two reads
	r.link.in <- []byte{0x5A, 0xA5, 0x06, 0x83}
	r.link.in <- []byte{0x50, 0x0A, 0x01, 0x01, 0xF4}

	got := make(chan canbus.Frame, 1)
	go func() {
		if f, err := r.peer.Receive(); err == nil {
			got <- f
		}
	}()
	select {
	case f := <-got:
		if f.ID != dashboard.BusIDChassis || f.Data[4] != 0x61 || f.Data[5] != 0xA8 {
			t.Errorf("echo = %v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no echo on the bus")
	}
	if v := r.bridge.Dashboard().Vars().Get(dashboard.VarMass); v != 25000 {
		t.Errorf("mass = %d", v)
	}
}

func TestBackToBackFramesInOneRead(t *testing.T) {
	r := start(t, Options{})

	var chunk []byte
	chunk = append(chunk, 0x5A, 0xA5, 0x06, 0x83, 0x50, 0x0D, 0x01, 0x00, 0x02) // accel window
	chunk = append(chunk, 0x5A, 0xA5, 0x06, 0x83, 0x50, 0x0C, 0x01, 0x00, 0x01) // detail page
	r.link.in <- chunk

	waitFor(t, "page change", func() bool {
		return r.bridge.Dashboard().Page() == dashboard.PageDetail
	})
	if w := r.bridge.Curves().ActiveWindow(); w != curve.NoWindow {
		t.Errorf("active window = %d, want none", w)
	}
	if w := r.bridge.Curves().LastWindow(); w != dashboard.WindowAccel {
		t.Errorf("last window = %d, want accel", w)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	link := newFakeLink()
	local, _ := canbus.NewLoopback(1)
	b, err := New(link, local, Options{Interval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if !link.isClosed() {
		t.Error("link must be closed")
	}
	if _, err := local.Receive(); !errors.Is(err, canbus.ErrClosed) {
		t.Errorf("bus receive after Run = %v", err)
	}
}

func TestRunReturnsOnLinkFailure(t *testing.T) {
	link := newFakeLink()
	b, err := New(link, nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	close(link.in)

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()
	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("Run = %v, want EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestMetricsCollected(t *testing.T) {
	m := metrics.NewBridgeMetrics()
	r := start(t, Options{Metrics: m})

	unknown, _ := canbus.NewFrame(0x999, []byte{0xDE, 0xAD})
	status, _ := canbus.NewFrame(dashboard.BusIDStatus, []byte{1, 2, 3, 4})
	r.peer.Send(unknown)
	r.peer.Send(status)
	r.link.in <- []byte{0x01, 0x02, 0x5A, 0xA5, 0x03, 0x82, 0x4F, 0x4B} // garbage then ack

	waitFor(t, "metrics", func() bool {
		out := m.Gather()
		return strings.Contains(out, `dashbridge_bus_frames_total{dir="rx"} 2`) &&
			strings.Contains(out, `dashbridge_dispatch_misses_total{table="bus"} 1`) &&
			strings.Contains(out, `dashbridge_display_frames_total{kind="ack"} 1`) &&
			strings.Contains(out, "dashbridge_display_discarded_bytes_total 2") &&
			strings.Contains(out, "dashbridge_refresh_seconds_count")
	})
}

func TestPoolStatsExported(t *testing.T) {
	m := metrics.NewBridgeMetrics()
	b, err := New(newFakeLink(), nil, Options{Metrics: m, ClearDelay: -1})
	if err != nil {
		t.Fatal(err)
	}
	m.Gather()
	before := m.PoolGets.Get(nil)

	// main page: vars words + vars frame + progress bar frame
	for i := 0; i < 2; i++ {
		if err := b.Refresh(); err != nil {
			t.Fatal(err)
		}
	}
	out := m.Gather()
	if got := m.PoolGets.Get(nil) - before; got < 6 {
		t.Errorf("pool gets grew by %d over two refreshes, want >= 6", got)
	}
	if m.PoolAllocs.Get(nil) > m.PoolGets.Get(nil) {
		t.Errorf("allocs %d exceed gets %d", m.PoolAllocs.Get(nil), m.PoolGets.Get(nil))
	}
	if !strings.Contains(out, "dashbridge_pool_gets_total ") {
		t.Errorf("pool gets missing from output:\n%s", out)
	}
}
