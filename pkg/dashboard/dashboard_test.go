package dashboard

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"dashbridge/pkg/canbus"
	"dashbridge/pkg/curve"
	"dashbridge/pkg/dispatch"
	"dashbridge/pkg/log"
)

type recordDisplay struct {
	mu     sync.Mutex
	frames [][]byte
}

func (d *recordDisplay) Send(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, append([]byte(nil), frame...))
	return nil
}

func (d *recordDisplay) take() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := d.frames
	d.frames = nil
	return f
}

type recordBus struct {
	frames []canbus.Frame
}

func (b *recordBus) Send(f canbus.Frame) error {
	b.frames = append(b.frames, f)
	return nil
}

type fixture struct {
	dash    *Dashboard
	curves  *curve.Registry
	display *recordDisplay
	bus     *recordBus
	busTbl  *dispatch.Table[uint32]
	dispTbl *dispatch.Table[uint16]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	quiet := log.New("test")
	quiet.SetWriter(io.Discard)

	display := &recordDisplay{}
	curves, err := curve.NewRegistry(display, curve.Options{ClearDelay: -1})
	if err != nil {
		t.Fatal(err)
	}
	curves.SetLogger(quiet)
	bus := &recordBus{}
	d := New(curves, display, bus)
	d.SetLogger(quiet)
	if err := d.InitCurves(); err != nil {
		t.Fatalf("InitCurves: %v", err)
	}

	busTbl := dispatch.New[uint32]("bus", 8)
	dispTbl := dispatch.New[uint16]("display", 8)
	busTbl.SetLogger(quiet)
	dispTbl.SetLogger(quiet)
	if err := d.RegisterBus(busTbl); err != nil {
		t.Fatal(err)
	}
	if err := d.RegisterDisplay(dispTbl); err != nil {
		t.Fatal(err)
	}
	busTbl.Seal()
	dispTbl.Seal()

	return &fixture{d, curves, display, bus, busTbl, dispTbl}
}

func TestAdjusters(t *testing.T) {
	tests := []struct {
		name string
		fn   func(uint16) uint16
		in   uint16
		want uint16
	}{
		{"speed", SpeedAdjust, 50, 500},
		{"accel zero", AccelAdjust, 0, 666},
		{"accel max", AccelAdjust, 1000, 1000},
		{"accel clamp high", AccelAdjust, 2000, 1000},
		{"accel min", AccelAdjust, uint16(0x10000 - 2000), 0},
		{"accel clamp low", AccelAdjust, uint16(0x10000 - 3000), 0},
		{"accel negative", AccelAdjust, uint16(0x10000 - 500), 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestVarsDefaults(t *testing.T) {
	v := NewVars()
	got := v.Snapshot(nil, 0, NumVars)
	want := []uint16{0, 0, 0, 0, 0, 0, 25000, 0, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("var %d = %d, want %d", i, got[i], want[i])
		}
	}
	v.Set(NumVars, 1)
	if v.Get(NumVars) != 0 {
		t.Error("out of range index must be ignored")
	}
}

func TestBusStatus(t *testing.T) {
	f := newFixture(t)
	f.busTbl.Dispatch(BusIDStatus, []byte{40, 60, 0x05, 0x04})

	vars := f.dash.Vars()
	if vars.Get(VarProgress) != 40 || vars.Get(VarSpeed) != 60 ||
		vars.Get(VarLights) != 5 || vars.Get(VarGear) != 4 {
		t.Errorf("vars = %v", vars.Snapshot(nil, 0, NumVars))
	}
	if got := f.curves.Curve(CurveSpeed).DrainNew(); len(got) != 1 || got[0] != 600 {
		t.Errorf("speed curve = %v, want [600]", got)
	}
}

func TestBusAccel(t *testing.T) {
	f := newFixture(t)
	// actual -2.00, estimated 1.00, steering -90
	f.busTbl.Dispatch(BusIDAccel, []byte{0xFF, 0x38, 0x00, 0x64, 0xFF, 0xA6})

	vars := f.dash.Vars()
	if int16(vars.Get(VarSelfAcc)) != -200 {
		t.Errorf("self acc = %d", int16(vars.Get(VarSelfAcc)))
	}
	if int16(vars.Get(VarSteering)) != -90 {
		t.Errorf("steering = %d", int16(vars.Get(VarSteering)))
	}
	if got := f.curves.Curve(CurveRealAcc).DrainNew(); len(got) != 1 || got[0] != 600 {
		t.Errorf("real acc curve = %v, want [600]", got)
	}
	if got := f.curves.Curve(CurveEstAcc).DrainNew(); len(got) != 1 || got[0] != 700 {
		t.Errorf("est acc curve = %v, want [700]", got)
	}
}

func TestBusChassisAndShortPayload(t *testing.T) {
	f := newFixture(t)
	f.busTbl.Dispatch(BusIDChassis, []byte{0x00, 0x0A, 0x01, 0x2C})
	vars := f.dash.Vars()
	if vars.Get(VarYawRate) != 10 || vars.Get(VarTorque) != 300 {
		t.Errorf("yaw=%d torque=%d", vars.Get(VarYawRate), vars.Get(VarTorque))
	}

	f.busTbl.Dispatch(BusIDChassis, []byte{0xFF})
	if vars.Get(VarYawRate) != 10 {
		t.Error("short payload must be ignored")
	}
}

func TestMassSliderEchoesToBus(t *testing.T) {
	f := newFixture(t)
	f.dispTbl.Dispatch(AddrMassSlider, []byte{0x01, 0x90}) // 400

	if got := f.dash.Vars().Get(VarMass); got != 20000 {
		t.Errorf("mass = %d, want 20000", got)
	}
	if len(f.bus.frames) != 1 {
		t.Fatalf("bus frames = %d, want 1", len(f.bus.frames))
	}
	fr := f.bus.frames[0]
	want := []byte{0, 0, 0, 0, 0x4E, 0x20, 0}
	if fr.ID != BusIDChassis || !bytes.Equal(fr.Payload(), want) {
		t.Errorf("echo = %v, want 301#% X", fr, want)
	}
}

func TestSlopeSlider(t *testing.T) {
	tests := []struct {
		slider uint16
		want   int16
	}{
		{500, 0},
		{1000, 90},
		{0, -90},
		{750, 45},
	}
	for _, tt := range tests {
		f := newFixture(t)
		f.dispTbl.Dispatch(AddrSlopeSlider, []byte{byte(tt.slider >> 8), byte(tt.slider)})
		if got := int16(f.dash.Vars().Get(VarSlope)); got != tt.want {
			t.Errorf("slider %d: slope = %d, want %d", tt.slider, got, tt.want)
		}
		if n := len(f.bus.frames); n != 1 {
			t.Fatalf("bus frames = %d", n)
		}
		if got := int8(f.bus.frames[0].Data[6]); int16(got) != tt.want {
			t.Errorf("slider %d: echoed %d", tt.slider, got)
		}
	}
}

func TestPageAndCurveSelection(t *testing.T) {
	f := newFixture(t)

	if f.curves.ActiveWindow() != WindowSpeed {
		t.Fatalf("initial window = %d", f.curves.ActiveWindow())
	}

	f.dispTbl.Dispatch(AddrCurveButton, []byte{0x00, ButtonAccel})
	if f.curves.ActiveWindow() != WindowAccel {
		t.Errorf("window = %d, want accel", f.curves.ActiveWindow())
	}

	f.dispTbl.Dispatch(AddrPageSelect, []byte{0x00, PageDetail})
	if f.dash.Page() != PageDetail || f.curves.ActiveWindow() != curve.NoWindow {
		t.Errorf("page=%d window=%d", f.dash.Page(), f.curves.ActiveWindow())
	}

	f.dispTbl.Dispatch(AddrPageSelect, []byte{0x00, PageMain})
	if f.curves.ActiveWindow() != WindowAccel {
		t.Errorf("returning to main restored window %d, want accel", f.curves.ActiveWindow())
	}
	if !f.curves.FirstShow(WindowAccel) {
		t.Error("restored window must redraw fully")
	}
}

func TestRefreshMainPage(t *testing.T) {
	f := newFixture(t)
	f.busTbl.Dispatch(BusIDStatus, []byte{50, 30, 2, 1})

	if err := f.dash.Refresh(); err != nil {
		t.Fatal(err)
	}
	frames := f.display.take()
	// vars, progress bar, two channel clears, speed curve
	if len(frames) != 5 {
		t.Fatalf("frames = %d, want 5", len(frames))
	}

	vars := frames[0]
	if vars[2] != 23 || vars[4] != 0x50 || vars[5] != 0x00 {
		t.Errorf("vars frame header % X", vars[:6])
	}
	if vars[6] != 0 || vars[7] != 50 {
		t.Errorf("progress word % X", vars[6:8])
	}

	bar := frames[1]
	if len(bar) != 26 || bar[4] != 0x51 {
		t.Fatalf("progress bar frame % X", bar)
	}
	// half progress: xss = 235
	if bar[12] != 0x00 || bar[13] != 235 {
		t.Errorf("xss = % X", bar[12:14])
	}

	curveFrame := frames[4]
	if curveFrame[5] != 0x10 || curveFrame[13] != 0x2C {
		t.Errorf("curve frame % X", curveFrame)
	}
}

func TestRefreshDetailPageSkipsVars(t *testing.T) {
	f := newFixture(t)
	f.dispTbl.Dispatch(AddrPageSelect, []byte{0x00, PageDetail})
	f.busTbl.Dispatch(BusIDStatus, []byte{50, 30, 2, 1})

	if err := f.dash.Refresh(); err != nil {
		t.Fatal(err)
	}
	if frames := f.display.take(); len(frames) != 0 {
		t.Errorf("detail page sent %d frames", len(frames))
	}
}
