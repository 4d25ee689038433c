package curve

import (
	"fmt"
	"sync"
	"time"

	"dashbridge/pkg/dwin"
	"dashbridge/pkg/errors"
	"dashbridge/pkg/log"
)

// Fixed table sizes.
const (
	MaxCurves          = 32
	MaxWindows         = 16
	MaxCurvesPerWindow = 8
	MaxChannels        = dwin.CurveChannelCount
)

// NoWindow disables curve rendering.
const NoWindow = -1

// DefaultClearDelay spaces successive clear-channel commands.
const DefaultClearDelay = time.Millisecond

// Display accepts encoded frames for the HMI. *dwin.Sender implements it.
// Send must not keep frame after it returns; callers reuse the buffer.
type Display interface {
	Send(frame []byte) error
}

// Options configures a Registry.
type Options struct {
	// Capacity is the per-curve sample count; 0 selects ring.DefaultCapacity.
	Capacity int
	// ClearDelay is the pause between clear-channel sends; 0 selects
	// DefaultClearDelay and a negative value disables the pause.
	ClearDelay time.Duration
}

type window struct {
	curves    []int
	firstShow bool
}

// Registry owns every curve and curve window. Curves and windows are
// registered during startup; afterwards only samples, the active window
// and the first-show flags change.
type Registry struct {
	out        Display
	capacity   int
	clearDelay time.Duration
	logger     *log.Logger

	curves   [MaxCurves]*Curve
	windows  [MaxWindows]window
	channels []uint16

	// mu guards active, last and the first-show flags, which are written
	// by display input handlers and read by the refresh loop.
	mu     sync.Mutex
	active int
	last   int
}

// NewRegistry creates an empty registry sending frames to out.
func NewRegistry(out Display, opts Options) (*Registry, error) {
	if opts.Capacity < 0 || opts.Capacity > dwin.MaxCurveSamples {
		return nil, errors.ConfigurationFatal("curve",
			fmt.Sprintf("curve capacity %d outside 0..%d", opts.Capacity, dwin.MaxCurveSamples), nil)
	}
	delay := opts.ClearDelay
	if delay == 0 {
		delay = DefaultClearDelay
	}
	r := &Registry{
		out:        out,
		capacity:   opts.Capacity,
		clearDelay: delay,
		logger:     log.GetLogger("curve"),
		active:     NoWindow,
		last:       NoWindow,
	}
	for i := range r.windows {
		r.windows[i].firstShow = true
	}
	return r, nil
}

// SetLogger replaces the registry's logger.
func (r *Registry) SetLogger(l *log.Logger) { r.logger = l }

// InitCurve creates curve id plotted on channelAddr. A nil adjust leaves
// values unchanged.
func (r *Registry) InitCurve(id int, channelAddr uint16, adjust AdjustFunc) error {
	if id < 0 || id >= MaxCurves {
		return errors.CapacityExceeded("curve", id, MaxCurves)
	}
	if !dwin.IsCurveChannel(channelAddr) {
		return errors.ConfigurationFatal("curve",
			fmt.Sprintf("curve %d: invalid channel address %#04x", id, channelAddr), nil)
	}
	if r.curves[id] != nil {
		return errors.ConfigurationFatal("curve", fmt.Sprintf("curve %d already initialized", id), nil)
	}
	r.curves[id] = newCurve(id, channelAddr, adjust, r.capacity)

	for _, ch := range r.channels {
		if ch == channelAddr {
			return nil
		}
	}
	r.channels = append(r.channels, channelAddr)
	return nil
}

// Register appends curve curveID to window windowID.
func (r *Registry) Register(curveID, windowID int) error {
	if _, err := r.curve(curveID); err != nil {
		return err
	}
	if windowID < 0 || windowID >= MaxWindows {
		return errors.CapacityExceeded("window", windowID, MaxWindows)
	}
	w := &r.windows[windowID]
	if len(w.curves) >= MaxCurvesPerWindow {
		return errors.CapacityExceeded(fmt.Sprintf("window %d", windowID), len(w.curves), MaxCurvesPerWindow)
	}
	w.curves = append(w.curves, curveID)
	return nil
}

// Curve returns curve id, or nil if it was never initialized.
func (r *Registry) Curve(id int) *Curve {
	c, _ := r.curve(id)
	return c
}

func (r *Registry) curve(id int) (*Curve, error) {
	if id < 0 || id >= MaxCurves {
		return nil, errors.CapacityExceeded("curve", id, MaxCurves)
	}
	if r.curves[id] == nil {
		return nil, errors.ConfigurationFatal("curve", fmt.Sprintf("curve %d not initialized", id), nil)
	}
	return r.curves[id], nil
}

// Channels returns the distinct channel addresses in registration order.
func (r *Registry) Channels() []uint16 {
	return append([]uint16(nil), r.channels...)
}

// Append records a raw sample for curve id. Unknown ids are logged and
// reported but never abort the caller.
func (r *Registry) Append(id int, v uint16) error {
	c, err := r.curve(id)
	if err != nil {
		r.logger.WithError(err).Warn("dropping curve sample")
		return err
	}
	c.Push(v)
	return nil
}

// SetActiveWindow selects the window drawn by Render. Selecting the active
// window again does nothing. The window being left is marked for a full
// redraw next time it is shown.
func (r *Registry) SetActiveWindow(id int) error {
	if id != NoWindow && (id < 0 || id >= MaxWindows) {
		return errors.CapacityExceeded("window", id, MaxWindows)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id == r.active {
		return nil
	}
	if r.active != NoWindow {
		r.windows[r.active].firstShow = true
		r.last = r.active
	}
	r.logger.Debug("curve window %d -> %d", r.active, id)
	r.active = id
	return nil
}

// ActiveWindow returns the selected window or NoWindow.
func (r *Registry) ActiveWindow() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// LastWindow returns the window that was active before the current one,
// or NoWindow.
func (r *Registry) LastWindow() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// FirstShow reports whether the next render of window id is a full redraw.
func (r *Registry) FirstShow(id int) bool {
	if id < 0 || id >= MaxWindows {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.windows[id].firstShow
}

// Render draws the active window, if any. The active window is read and
// its first-show flag taken in one critical section, so a concurrent
// SetActiveWindow either precedes the render or re-marks the window it
// leaves.
func (r *Registry) Render() error {
	r.mu.Lock()
	id := r.active
	full, ok := r.claim(id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.draw(id, full)
}

// RenderWindow renders window id if it is still the active window and
// does nothing otherwise. On first show the used channels are cleared and
// every retained sample is sent; afterwards only samples pushed since the
// previous render are sent. Nothing is sent when no member curve has
// samples to contribute.
func (r *Registry) RenderWindow(id int) error {
	if id < 0 || id >= MaxWindows {
		return errors.CapacityExceeded("window", id, MaxWindows)
	}
	r.mu.Lock()
	full, ok := r.claim(id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.draw(id, full)
}

// claim takes the first-show flag of id when id is the active window.
// r.mu must be held.
func (r *Registry) claim(id int) (full, ok bool) {
	if id == NoWindow || id != r.active {
		return false, false
	}
	full = r.windows[id].firstShow
	r.windows[id].firstShow = false
	return full, true
}

func (r *Registry) draw(id int, full bool) error {
	if full {
		if err := r.Clear(); err != nil {
			r.mu.Lock()
			r.windows[id].firstShow = true
			r.mu.Unlock()
			return err
		}
	}

	w := &r.windows[id]
	blocks := make([]dwin.CurveBlock, 0, len(w.curves))
	for _, cid := range w.curves {
		c := r.curves[cid]
		samples := c.drain(full)
		if len(samples) == 0 {
			continue
		}
		blocks = append(blocks, dwin.CurveBlock{Channel: c.wire, Samples: samples})
	}
	if len(blocks) == 0 {
		return nil
	}

	frames, err := dwin.PackCurveAppend(blocks)
	if err != nil {
		return err
	}
	return dwin.SendAll(r.out, frames, 0)
}

// Clear empties every channel used by a registered curve, pausing the
// clear delay between channels.
func (r *Registry) Clear() error {
	frames := make([][]byte, len(r.channels))
	for i, ch := range r.channels {
		frames[i] = dwin.EncodeClearChannel(ch)
	}
	return dwin.SendAll(r.out, frames, r.clearDelay)
}
