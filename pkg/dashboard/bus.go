package dashboard

import "encoding/binary"

// Vehicle bus message ids.
const (
	// BusIDStatus: progress %, speed km/h, indicator bits, gear bits.
	BusIDStatus = 0x101
	// BusIDAccel: actual and estimated acceleration (0.01 m/s²), steering
	// angle (deg), all signed big-endian.
	BusIDAccel = 0x201
	// BusIDChassis: yaw rate (0.1 deg/s) and engine torque. The bridge
	// also sends this id to report mass and slope set on the display.
	BusIDChassis = 0x301
)

func (d *Dashboard) onStatus(id uint32, p []byte) {
	if d.short("bus", id, p, 4) {
		return
	}
	d.vars.Set(VarProgress, uint16(p[0]))
	d.vars.Set(VarSpeed, uint16(p[1]))
	d.curves.Append(CurveSpeed, uint16(p[1]))
	d.vars.Set(VarLights, uint16(p[2]))
	d.vars.Set(VarGear, uint16(p[3]))
}

func (d *Dashboard) onAccel(id uint32, p []byte) {
	if d.short("bus", id, p, 6) {
		return
	}
	acc := binary.BigEndian.Uint16(p[0:2])
	d.vars.Set(VarSelfAcc, acc)
	d.curves.Append(CurveRealAcc, acc)
	d.curves.Append(CurveEstAcc, binary.BigEndian.Uint16(p[2:4]))
	d.vars.Set(VarSteering, binary.BigEndian.Uint16(p[4:6]))
}

func (d *Dashboard) onChassis(id uint32, p []byte) {
	if d.short("bus", id, p, 4) {
		return
	}
	d.vars.Set(VarYawRate, binary.BigEndian.Uint16(p[0:2]))
	d.vars.Set(VarTorque, binary.BigEndian.Uint16(p[2:4]))
}
