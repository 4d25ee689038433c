// Inbound frame reassembly
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package dwin

import (
	"encoding/hex"

	"dashbridge/pkg/errors"
	"dashbridge/pkg/log"
)

// Router receives completed frames keyed by display register address.
type Router interface {
	Dispatch(addr uint16, payload []byte) bool
}

// AssemblerStats counts assembler activity.
type AssemblerStats struct {
	Frames    uint64
	Acks      uint64
	Resyncs   uint64
	Discarded uint64
}

// Assembler rebuilds frames from a byte stream that may be split at any
// point. It carries one partial frame between calls and is not safe for
// concurrent use; each serial receive loop owns one.
type Assembler struct {
	buf    [MaxFrame]byte
	n      int
	router Router
	stats  AssemblerStats
	logger *log.Logger
}

// NewAssembler creates an assembler delivering frames to router.
func NewAssembler(router Router) *Assembler {
	return &Assembler{
		router: router,
		logger: log.GetLogger("dwin"),
	}
}

// SetLogger replaces the assembler's logger.
func (a *Assembler) SetLogger(l *log.Logger) { a.logger = l }

// Stats returns a snapshot of the counters.
func (a *Assembler) Stats() AssemblerStats { return a.stats }

// Buffered returns the number of bytes held for an incomplete frame.
func (a *Assembler) Buffered() int { return a.n }

// Feed appends bytes from p until one frame completes or p is exhausted.
// A completed frame is dispatched before Feed returns. It returns how many
// bytes of p were consumed; the caller passes the rest on the next call.
func (a *Assembler) Feed(p []byte) (consumed int) {
	for consumed < len(p) {
		want := a.want()
		avail := len(p) - consumed
		if want > avail {
			want = avail
		}
		copy(a.buf[a.n:], p[consumed:consumed+want])
		a.n += want
		consumed += want

		a.validate()
		if a.n >= headerSize && a.n == a.total() {
			a.complete()
			return consumed
		}
	}
	return consumed
}

// Drain feeds all of p, dispatching every frame it completes, and returns
// the number of frames completed.
func (a *Assembler) Drain(p []byte) int {
	before := a.stats.Frames + a.stats.Acks
	for len(p) > 0 {
		n := a.Feed(p)
		p = p[n:]
	}
	return int(a.stats.Frames + a.stats.Acks - before)
}

func (a *Assembler) total() int { return int(a.buf[posLength]) + headerSize }

// want is how many more bytes the current state can accept.
func (a *Assembler) want() int {
	if a.n < headerSize {
		return headerSize - a.n
	}
	return a.total() - a.n
}

// validate drops leading bytes until the buffer starts with a plausible
// header prefix.
func (a *Assembler) validate() {
	for a.n > 0 {
		switch {
		case a.buf[0] != SyncHi:
		case a.n >= 2 && a.buf[1] != SyncLo:
		case a.n >= headerSize && int(a.buf[posLength]) < minLength:
		default:
			return
		}
		a.resync()
	}
}

// resync discards up to the next sync byte after position 0.
func (a *Assembler) resync() {
	start := a.n
	for i := 1; i < a.n; i++ {
		if a.buf[i] == SyncHi {
			start = i
			break
		}
	}
	err := errors.MalformedFrame("lost frame sync", start)
	a.logger.WithFields(log.Fields{
		"discarded": hex.EncodeToString(a.buf[:start]),
	}).Warn(err.Error())

	copy(a.buf[:], a.buf[start:a.n])
	a.n -= start
	a.stats.Resyncs++
	a.stats.Discarded += uint64(start)
}

func (a *Assembler) complete() {
	f := parseFrame(a.buf[:a.n])
	a.n = 0
	if f.IsAck() {
		a.stats.Acks++
		return
	}
	a.stats.Frames++
	a.router.Dispatch(f.Address, f.Payload)
}
