package dashboard

import (
	"encoding/binary"

	"dashbridge/pkg/canbus"
	"dashbridge/pkg/curve"
)

// Display addresses the HMI uploads touch input to.
const (
	AddrMassSlider  = 0x500A // 0..1000
	AddrSlopeSlider = 0x500B // 0..1000, 500 is level
	AddrPageSelect  = 0x500C
	AddrCurveButton = 0x500D // 1 speed, 2 acceleration
)

// Curve button values.
const (
	ButtonSpeed = 1
	ButtonAccel = 2
)

// Offsets in the BusIDChassis frame echoed to the bus.
const (
	uploadMass  = 4
	uploadSlope = 6
)

func (d *Dashboard) onMass(addr uint16, p []byte) {
	if d.short("display", addr, p, 2) {
		return
	}
	mass := binary.BigEndian.Uint16(p) * 50
	d.vars.Set(VarMass, mass)

	d.mu.Lock()
	binary.BigEndian.PutUint16(d.upload[uploadMass:], mass)
	frame := d.upload
	d.mu.Unlock()
	d.echo(frame[:])
}

func (d *Dashboard) onSlope(addr uint16, p []byte) {
	if d.short("display", addr, p, 2) {
		return
	}
	raw := int16(binary.BigEndian.Uint16(p))
	slope := int16(float64(int(raw)-500) / 500.0 * 90)
	d.vars.Set(VarSlope, uint16(slope))

	d.mu.Lock()
	d.upload[uploadSlope] = byte(slope)
	frame := d.upload
	d.mu.Unlock()
	d.echo(frame[:])
}

func (d *Dashboard) onPageSelect(addr uint16, p []byte) {
	if d.short("display", addr, p, 2) {
		return
	}
	page := binary.BigEndian.Uint16(p)
	d.setPage(page)
	d.logger.Debug("page %d selected", page)

	switch page {
	case PageDetail:
		d.curves.SetActiveWindow(curve.NoWindow)
	case PageMain:
		w := d.curves.ActiveWindow()
		if w == curve.NoWindow {
			w = d.curves.LastWindow()
		}
		if w == curve.NoWindow {
			w = WindowSpeed
		}
		d.curves.SetActiveWindow(w)
	}
}

func (d *Dashboard) onCurveButton(addr uint16, p []byte) {
	if d.short("display", addr, p, 2) {
		return
	}
	switch v := binary.BigEndian.Uint16(p); v {
	case ButtonSpeed:
		d.curves.SetActiveWindow(WindowSpeed)
	case ButtonAccel:
		d.curves.SetActiveWindow(WindowAccel)
	default:
		d.logger.Warn("unknown curve button %d", v)
	}
}

// echo reports display-set values on the vehicle bus.
func (d *Dashboard) echo(data []byte) {
	if d.bus == nil {
		return
	}
	f, err := canbus.NewFrame(BusIDChassis, data)
	if err != nil {
		d.logger.WithError(err).Warn("bad echo frame")
		return
	}
	if err := d.bus.Send(f); err != nil {
		d.logger.WithError(err).Warn("bus send failed")
	}
}
