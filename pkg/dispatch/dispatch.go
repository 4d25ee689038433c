// Ordered key→handler routing tables
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package dispatch routes keyed payloads to registered handlers. It is used
// for vehicle bus message ids and for display register addresses.
package dispatch

import (
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"dashbridge/pkg/errors"
	"dashbridge/pkg/log"
)

// Handler processes a payload routed under key.
type Handler[K comparable] interface {
	Handle(key K, payload []byte)
}

// HandlerFunc adapts an ordinary function to a Handler.
type HandlerFunc[K comparable] func(key K, payload []byte)

// Handle calls f(key, payload).
func (f HandlerFunc[K]) Handle(key K, payload []byte) { f(key, payload) }

type entry[K comparable] struct {
	key     K
	handler Handler[K]
}

// Table is a bounded, ordered dispatch table. Registration happens during
// startup; after Seal the entry list is immutable and Dispatch may be called
// from any goroutine without locking.
type Table[K comparable] struct {
	name     string
	capacity int

	mu      sync.Mutex
	entries []entry[K]
	sealed  atomic.Bool

	fallback Handler[K]
	misses   atomic.Uint64
	logger   *log.Logger
}

// New creates a table named name holding at most capacity entries.
func New[K comparable](name string, capacity int) *Table[K] {
	t := &Table[K]{
		name:     name,
		capacity: capacity,
		entries:  make([]entry[K], 0, capacity),
		logger:   log.GetLogger("dispatch." + name),
	}
	t.fallback = HandlerFunc[K](t.logMiss)
	return t
}

// SetLogger replaces the logger used for unroutable keys.
func (t *Table[K]) SetLogger(l *log.Logger) {
	t.mu.Lock()
	t.logger = l
	t.mu.Unlock()
}

// Name returns the table name.
func (t *Table[K]) Name() string { return t.name }

// Register appends a handler for key. Duplicate keys are accepted; the
// earliest registration wins on dispatch.
func (t *Table[K]) Register(key K, h Handler[K]) error {
	if h == nil {
		return errors.New(errors.ErrConfigurationFatal, fmt.Sprintf("%s: nil handler for key %v", t.name, key))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed.Load() {
		return errors.ConfigurationFatal("dispatch."+t.name, "registration after seal", nil)
	}
	if len(t.entries) >= t.capacity {
		return errors.CapacityExceeded(t.name, len(t.entries), t.capacity)
	}
	t.entries = append(t.entries, entry[K]{key: key, handler: h})
	return nil
}

// RegisterFunc is Register for a plain function.
func (t *Table[K]) RegisterFunc(key K, fn func(key K, payload []byte)) error {
	return t.Register(key, HandlerFunc[K](fn))
}

// SetFallback replaces the handler invoked for unmatched keys. The miss
// counter is still incremented.
func (t *Table[K]) SetFallback(h Handler[K]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h == nil {
		h = HandlerFunc[K](t.logMiss)
	}
	t.fallback = h
}

// Seal freezes the table.
func (t *Table[K]) Seal() {
	t.mu.Lock()
	t.sealed.Store(true)
	t.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (t *Table[K]) Sealed() bool { return t.sealed.Load() }

// Len returns the number of registered entries.
func (t *Table[K]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Misses returns how many dispatches fell through to the fallback.
func (t *Table[K]) Misses() uint64 { return t.misses.Load() }

// Dispatch invokes the first handler registered for key, synchronously.
// It reports whether a registered handler was found.
func (t *Table[K]) Dispatch(key K, payload []byte) bool {
	entries, fallback := t.snapshot()
	for i := range entries {
		if entries[i].key == key {
			entries[i].handler.Handle(key, payload)
			return true
		}
	}
	t.misses.Add(1)
	fallback.Handle(key, payload)
	return false
}

func (t *Table[K]) snapshot() ([]entry[K], Handler[K]) {
	if t.sealed.Load() {
		return t.entries, t.fallback
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries, t.fallback
}

func (t *Table[K]) logMiss(key K, payload []byte) {
	err := errors.UnroutableKey(t.name, key)
	t.logger.WithFields(log.Fields{
		"key":     fmt.Sprintf("%#x", any(key)),
		"payload": hex.EncodeToString(payload),
	}).Warn(err.Error())
}
