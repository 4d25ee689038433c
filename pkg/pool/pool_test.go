// Unit tests for buffer pools
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"sync"
	"testing"
)

func TestFramePool(t *testing.T) {
	f := GetFrame()
	if f == nil || f.Len() != 0 {
		t.Fatalf("GetFrame returned %v", f)
	}
	f.B = append(f.B, 0x5A, 0xA5, 0x03)
	PutFrame(f)

	f2 := GetFrame()
	if f2.Len() != 0 {
		t.Errorf("pooled frame should be empty, got %d bytes", f2.Len())
	}
	PutFrame(f2)
}

func TestFramePoolDropsOversized(t *testing.T) {
	// Should not panic
	PutFrame(nil)
	PutFrame(&Frame{B: make([]byte, 0, maxFrameCap+1)})
}

func TestWordsPool(t *testing.T) {
	s := GetWords()
	*s = append(*s, 1, 2, 3)
	PutWords(s)

	s2 := GetWords()
	if len(*s2) != 0 {
		t.Errorf("pooled words should be empty, got %v", *s2)
	}
	PutWords(s2)
	PutWords(nil)
}

func TestStatsCountGets(t *testing.T) {
	before := GetStats()
	PutFrame(GetFrame())
	PutWords(GetWords())
	after := GetStats()
	if after.Gets-before.Gets != 2 {
		t.Errorf("gets grew by %d, want 2", after.Gets-before.Gets)
	}
	if after.Allocs > after.Gets {
		t.Errorf("allocs %d exceed gets %d", after.Allocs, after.Gets)
	}
}

func TestConcurrentAccess(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				f := GetFrame()
				f.B = append(f.B, byte(n))
				if f.Len() != 1 {
					t.Errorf("frame len %d", f.Len())
				}
				PutFrame(f)
			}
		}(i)
	}
	wg.Wait()
}

func BenchmarkFramePool(b *testing.B) {
	values := make([]uint16, 10)
	for i := 0; i < b.N; i++ {
		f := GetFrame()
		for _, v := range values {
			f.B = append(f.B, byte(v>>8), byte(v))
		}
		PutFrame(f)
	}
}
