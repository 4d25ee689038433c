package dashboard

import "sync"

// Page variable indices. Variable i is displayed at VarBaseAddr+i.
const (
	VarProgress = iota
	VarSelfAcc
	VarSteering
	VarYawRate
	VarTorque
	VarSpeed
	VarMass
	VarSlope
	VarLights
	VarGear
	NumVars
)

// VarBaseAddr is the display address of VarProgress.
const VarBaseAddr = 0x5000

// Vars is the table of values mirrored onto the display. Bus and display
// handlers write it and the refresh loop reads it.
type Vars struct {
	mu sync.Mutex
	v  [NumVars]uint16
}

// NewVars returns the table with its power-on values.
func NewVars() *Vars {
	vs := &Vars{}
	vs.v[VarMass] = 25000
	vs.v[VarLights] = 2
	vs.v[VarGear] = 1
	return vs
}

// Set stores v at index i. Out of range indices are ignored.
func (vs *Vars) Set(i int, v uint16) {
	if i < 0 || i >= NumVars {
		return
	}
	vs.mu.Lock()
	vs.v[i] = v
	vs.mu.Unlock()
}

// Get returns the value at index i.
func (vs *Vars) Get(i int) uint16 {
	if i < 0 || i >= NumVars {
		return 0
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.v[i]
}

// Snapshot appends count values starting at start to dst.
func (vs *Vars) Snapshot(dst []uint16, start, count int) []uint16 {
	if start < 0 || start >= NumVars {
		return dst
	}
	end := start + count
	if end > NumVars {
		end = NumVars
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return append(dst, vs.v[start:end]...)
}
