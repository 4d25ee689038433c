// Curve sample stores
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package curve keeps recent samples for the display's trend curves and
// decides, per curve window, whether the next redraw is full or
// incremental.
package curve

import (
	"sync"

	"dashbridge/pkg/dwin"
	"dashbridge/pkg/ring"
)

// AdjustFunc converts a raw bus value into display units.
type AdjustFunc func(uint16) uint16

// Identity returns v unchanged.
func Identity(v uint16) uint16 { return v }

// Curve is one signal plotted on a display curve channel. Push runs on the
// bus receive path and drains run on the refresh path; the queue lock is
// held only while copying samples.
type Curve struct {
	id      int
	channel uint16
	wire    uint8
	adjust  AdjustFunc

	mu sync.Mutex
	q  *ring.Queue[uint16]

	// scratch is owned by the draining goroutine.
	scratch []uint16
}

func newCurve(id int, channel uint16, adjust AdjustFunc, capacity int) *Curve {
	if adjust == nil {
		adjust = Identity
	}
	q := ring.New[uint16](capacity)
	return &Curve{
		id:      id,
		channel: channel,
		wire:    dwin.CurveChannelIndex(channel),
		adjust:  adjust,
		q:       q,
		scratch: make([]uint16, 0, q.Cap()),
	}
}

// ID returns the curve id.
func (c *Curve) ID() int { return c.id }

// Channel returns the display channel address, e.g. 0x0301.
func (c *Curve) Channel() uint16 { return c.channel }

// WireChannel returns the 0..7 channel number used in curve frames.
func (c *Curve) WireChannel() uint8 { return c.wire }

// Push records a raw sample, dropping the oldest when full.
func (c *Curve) Push(v uint16) {
	c.mu.Lock()
	c.q.Push(v)
	c.mu.Unlock()
}

// Len returns the number of retained samples.
func (c *Curve) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.Len()
}

// Pending returns the number of samples not yet drained.
func (c *Curve) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.Pending()
}

// drain returns adjusted samples: every retained sample when all is set,
// otherwise only those pushed since the previous drain. The result aliases
// c.scratch and is valid until the next drain.
func (c *Curve) drain(all bool) []uint16 {
	c.mu.Lock()
	if all {
		c.scratch = c.q.AppendAll(c.scratch[:0])
	} else {
		c.scratch = c.q.AppendNew(c.scratch[:0])
	}
	c.mu.Unlock()

	for i, v := range c.scratch {
		c.scratch[i] = c.adjust(v)
	}
	return c.scratch
}

// DrainAll returns a copy of every retained sample, adjusted, and marks
// them drained.
func (c *Curve) DrainAll() []uint16 {
	return append([]uint16(nil), c.drain(true)...)
}

// DrainNew returns a copy of the samples pushed since the last drain,
// adjusted.
func (c *Curve) DrainNew() []uint16 {
	return append([]uint16(nil), c.drain(false)...)
}
