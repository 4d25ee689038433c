// Buffer pools for the display refresh path
//
// Every refresh pass encodes the page variables and drawing commands
// into fresh frames. The frames are written synchronously, so their
// buffers can be handed back as soon as Send returns.
//
// Usage:
//
//	buf := pool.GetFrame()
//	defer pool.PutFrame(buf)
//	buf.B = dwin.AppendWrite(buf.B, addr, values)
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package pool

import (
	"sync"
	"sync/atomic"
)

// Size limits for pooled buffers. Larger ones are dropped on Put so a
// single oversized frame does not pin memory.
const (
	frameCap    = 64
	maxFrameCap = 4096
	wordsCap    = 16
	maxWordsCap = 256
)

// Frame is a reusable byte buffer for one encoded frame.
type Frame struct {
	B []byte
}

// Len returns the buffer length
func (f *Frame) Len() int { return len(f.B) }

// Reset clears the buffer, keeping its capacity
func (f *Frame) Reset() { f.B = f.B[:0] }

var framePool = sync.Pool{
	New: func() any {
		misses.Add(1)
		return &Frame{B: make([]byte, 0, frameCap)}
	},
}

var wordsPool = sync.Pool{
	New: func() any {
		misses.Add(1)
		s := make([]uint16, 0, wordsCap)
		return &s
	},
}

var gets, misses atomic.Uint64

// GetFrame gets an empty frame buffer from the pool
func GetFrame() *Frame {
	gets.Add(1)
	f := framePool.Get().(*Frame)
	f.B = f.B[:0]
	return f
}

// PutFrame returns a frame buffer to the pool
func PutFrame(f *Frame) {
	if f == nil || cap(f.B) > maxFrameCap {
		return
	}
	framePool.Put(f)
}

// GetWords gets an empty word slice from the pool
func GetWords() *[]uint16 {
	gets.Add(1)
	s := wordsPool.Get().(*[]uint16)
	*s = (*s)[:0]
	return s
}

// PutWords returns a word slice to the pool
func PutWords(s *[]uint16) {
	if s == nil || cap(*s) > maxWordsCap {
		return
	}
	wordsPool.Put(s)
}

// Stats reports how many buffers were requested and how many of those
// had to be allocated.
type Stats struct {
	Gets   uint64
	Allocs uint64
}

// GetStats returns the pool counters.
func GetStats() Stats {
	return Stats{Gets: gets.Load(), Allocs: misses.Load()}
}
