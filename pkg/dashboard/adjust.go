package dashboard

// Curve value conversions from bus units to the display's 0..1000 plot
// range.

// SpeedAdjust scales km/h by ten.
func SpeedAdjust(v uint16) uint16 {
	return v * 10
}

// AccelAdjust maps a signed acceleration in 0.01 m/s² (-20.00..10.00)
// onto 0..1000.
func AccelAdjust(v uint16) uint16 {
	d := (int(int16(v)) + 2000) / 3
	if d > 1000 {
		d = 1000
	}
	if d < 0 {
		d = 0
	}
	return uint16(d)
}
