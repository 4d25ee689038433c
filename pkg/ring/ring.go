// Bounded sample ring with dual-cursor reads
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package ring provides the fixed-capacity sample queue behind every curve.
//
// A Queue keeps the most recent Cap() pushed values. Pushing into a full
// queue silently drops the oldest value. Two read modes share one read
// cursor: DrainAll returns everything still retained, DrainNew returns only
// what arrived since the previous drain of either kind. Neither drain
// removes data; retention is governed by pushes alone.
//
// A Queue is not safe for concurrent use.
package ring

// DefaultCapacity is the number of samples a curve keeps on screen.
const DefaultCapacity = 20

// Queue is a fixed-capacity circular buffer.
type Queue[T any] struct {
	slots []T // capacity+1 slots so head==tail means empty
	head  int
	tail  int
	read  int
}

// New creates a queue holding up to capacity values. A non-positive
// capacity selects DefaultCapacity.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{slots: make([]T, capacity+1)}
}

func (q *Queue[T]) next(i int) int {
	i++
	if i == len(q.slots) {
		return 0
	}
	return i
}

// Cap returns the number of values the queue retains.
func (q *Queue[T]) Cap() int {
	return len(q.slots) - 1
}

// Len returns the number of values currently retained.
func (q *Queue[T]) Len() int {
	n := q.tail - q.head
	if n < 0 {
		n += len(q.slots)
	}
	return n
}

// Pending returns the number of values DrainNew would return.
func (q *Queue[T]) Pending() int {
	n := q.tail - q.read
	if n < 0 {
		n += len(q.slots)
	}
	return n
}

// Push appends v, discarding the oldest value when full.
func (q *Queue[T]) Push(v T) {
	q.slots[q.tail] = v
	q.tail = q.next(q.tail)
	if q.tail == q.head {
		// The read cursor never trails head; an unread oldest sample that
		// is overwritten drags the cursor along with it.
		if q.read == q.head {
			q.read = q.next(q.head)
		}
		q.head = q.next(q.head)
	}
}

// DrainAll returns every retained value in push order and marks them read.
func (q *Queue[T]) DrainAll() []T {
	return q.AppendAll(nil)
}

// DrainNew returns values pushed since the last drain and marks them read.
func (q *Queue[T]) DrainNew() []T {
	return q.AppendNew(nil)
}

// AppendAll is DrainAll appending into dst.
func (q *Queue[T]) AppendAll(dst []T) []T {
	dst = q.appendFrom(dst, q.head)
	q.read = q.tail
	return dst
}

// AppendNew is DrainNew appending into dst.
func (q *Queue[T]) AppendNew(dst []T) []T {
	dst = q.appendFrom(dst, q.read)
	q.read = q.tail
	return dst
}

func (q *Queue[T]) appendFrom(dst []T, from int) []T {
	for i := from; i != q.tail; i = q.next(i) {
		dst = append(dst, q.slots[i])
	}
	return dst
}
