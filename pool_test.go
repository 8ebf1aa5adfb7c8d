// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xvpool

import (
	"errors"
	"fmt"
	"testing"
)

type handle struct {
	page   PageHandle
	offset uint32
	size   uint32
}

// newTestPool returns a Pool over a small MemPageProvider, shrunk well
// below production defaults so tests exercise multi-page growth and
// page reclaim without allocating megabytes of backing memory.
func newTestPool(maxPages int, opts ...Option) (*Pool, *MemPageProvider) {
	o := append([]Option{WithPageSize(256), WithMinAllocSize(16), WithMaxAllocSize(256 - 20)}, opts...)
	mp := NewMemPageProvider(256, maxPages)
	return NewPool(mp, o...), mp
}

func verifyPool(t *testing.T, p *Pool) {
	t.Helper()
	var errs []error
	_, err := p.Verify(func(e error) bool {
		errs = append(errs, e)
		return len(errs) < 20
	})
	if err != nil {
		t.Fatalf("Verify: %v (logged: %v)", err, errs)
	}
	if len(errs) != 0 {
		t.Fatalf("Verify logged errors: %v", errs)
	}
}

func TestAllocateFreeRoundTrip(t *testing.T) {
	p, _ := newTestPool(0)

	h, off, err := p.Allocate(32, 0)
	if err != nil {
		t.Fatal(err)
	}
	verifyPool(t, p)

	p.Free(h, off)
	verifyPool(t, p)
}

func TestSizeFidelity(t *testing.T) {
	p, _ := newTestPool(0)

	for _, want := range []uint32{1, 15, 16, 17, 64, 100} {
		h, off, err := p.Allocate(want, 0)
		if err != nil {
			t.Fatalf("Allocate(%d): %v", want, err)
		}
		got, err := p.ObjectSize(h, off)
		if err != nil {
			t.Fatalf("ObjectSize: %v", err)
		}
		if got != want {
			t.Fatalf("ObjectSize(%d) = %d, want %d", want, got, want)
		}
		p.Free(h, off)
	}
}

func TestNonOverlap(t *testing.T) {
	p, _ := newTestPool(0)

	var handles []handle
	for i := 0; i < 6; i++ {
		size := uint32(16 + i*8)
		h, off, err := p.Allocate(size, 0)
		if err != nil {
			t.Fatal(err)
		}
		handles = append(handles, handle{h, off, size})
	}

	for i, a := range handles {
		for j, b := range handles {
			if i == j || a.page != b.page {
				continue
			}
			aEnd := a.offset + a.size
			bEnd := b.offset + b.size
			if a.offset < bEnd && b.offset < aEnd {
				t.Fatalf("blocks %d and %d overlap: [%d,%d) vs [%d,%d)", i, j, a.offset, aEnd, b.offset, bEnd)
			}
		}
	}
	verifyPool(t, p)
}

func TestBoundaries(t *testing.T) {
	p, _ := newTestPool(0)

	if _, _, err := p.Allocate(0, 0); err == nil {
		t.Fatal("Allocate(0): expected error, got nil")
	}

	if _, _, err := p.Allocate(p.cfg.maxAlloc+1, 0); err == nil {
		t.Fatal("Allocate(maxAlloc+1): expected error, got nil")
	}

	h, off, err := p.Allocate(p.cfg.maxAlloc, 0)
	if err != nil {
		t.Fatalf("Allocate(maxAlloc): %v", err)
	}
	verifyPool(t, p)
	p.Free(h, off)
	verifyPool(t, p)
}

// TestSubMinimumOrphanFragment exercises the edge case where a split
// remainder is too small to hold the free-list link fields: it must
// still be split off as a free, boundary-tagged orphan rather than
// silently absorbed, and a later coalesce must be able to reclaim it.
func TestSubMinimumOrphanFragment(t *testing.T) {
	p, _ := newTestPool(0)

	// Grow one page, then allocate it down to a remainder smaller than
	// minAlloc but still >= alignSize (an orphan-worthy remainder).
	pageCapacity := p.cfg.pageSize - p.cfg.alignSize
	first := pageCapacity - p.cfg.alignSize - (p.cfg.minAlloc - p.cfg.alignSize)
	h, off, err := p.Allocate(first, 0)
	if err != nil {
		t.Fatalf("Allocate(%d): %v", first, err)
	}
	verifyPool(t, p)

	// The pool must still report zero used free-list fragments as
	// "missing": Verify should see the orphan purely through the block
	// chain, not through the free list.
	stats, err := p.Verify(func(e error) bool { t.Error(e); return false })
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if stats.Fragments == 0 {
		t.Fatal("expected the sub-minimum remainder to appear as a free fragment")
	}

	p.Free(h, off)
	verifyPool(t, p)

	// The orphan should have been coalescable back into a single free
	// page-sized block and reclaimed; the pool should still be usable.
	h2, off2, err := p.Allocate(32, 0)
	if err != nil {
		t.Fatalf("Allocate after reclaim: %v", err)
	}
	p.Free(h2, off2)
}

func TestDoubleFreePanics(t *testing.T) {
	p, _ := newTestPool(0)
	h, off, err := p.Allocate(32, 0)
	if err != nil {
		t.Fatal(err)
	}
	p.Free(h, off)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on double free")
		}
		ce, ok := r.(*CorruptionError)
		if !ok {
			t.Fatalf("expected *CorruptionError, got %T: %v", r, r)
		}
		if !errors.Is(ce, ErrDoubleFree) {
			t.Fatalf("expected errors.Is(err, ErrDoubleFree), got %v", ce)
		}
	}()
	p.Free(h, off)
}

// Scenario 1: allocate until the first page is exhausted, forcing
// growPool, then free everything and confirm the provider's page count
// drops back to zero (whole-page reclaim working across a grown pool).
func TestScenario1GrowAndReclaim(t *testing.T) {
	p, mp := newTestPool(0)

	var handles []handle
	for i := 0; i < 32; i++ {
		h, off, err := p.Allocate(16, 0)
		if err != nil {
			break
		}
		handles = append(handles, handle{h, off, 16})
	}
	if len(mp.pages) < 2 {
		t.Fatalf("expected allocation to span >= 2 pages, got %d", len(mp.pages))
	}
	verifyPool(t, p)

	for _, h := range handles {
		p.Free(h.page, h.offset)
	}
	verifyPool(t, p)
	if len(mp.pages) != 0 {
		t.Fatalf("expected all pages reclaimed, got %d remaining", len(mp.pages))
	}
}

// Scenario 2: split then re-merge. Allocate two adjacent blocks from
// one free page, free the first, free the second, and confirm the page
// comes back as a single free block (forward merge then whole-page
// reclaim).
func TestScenario2SplitAndMerge(t *testing.T) {
	p, mp := newTestPool(0)

	h1, off1, err := p.Allocate(32, 0)
	if err != nil {
		t.Fatal(err)
	}
	h2, off2, err := p.Allocate(32, 0)
	if err != nil {
		t.Fatal(err)
	}
	verifyPool(t, p)

	p.Free(h1, off1)
	verifyPool(t, p)
	p.Free(h2, off2)
	verifyPool(t, p)

	if len(mp.pages) != 0 {
		t.Fatalf("expected page reclaimed after merging back to one free block, got %d", len(mp.pages))
	}
}

// Scenario 3: backward merge. Allocate three blocks, free the middle
// one (an isolated free block with used neighbors), then free the
// first (a forward merge with the middle's free space), then free the
// third (forcing a backward merge into that merged free block).
func TestScenario3BackwardMerge(t *testing.T) {
	p, _ := newTestPool(0)

	h1, off1, err := p.Allocate(24, 0)
	if err != nil {
		t.Fatal(err)
	}
	h2, off2, err := p.Allocate(24, 0)
	if err != nil {
		t.Fatal(err)
	}
	h3, off3, err := p.Allocate(24, 0)
	if err != nil {
		t.Fatal(err)
	}

	p.Free(h2, off2)
	verifyPool(t, p)
	p.Free(h1, off1)
	verifyPool(t, p)
	p.Free(h3, off3)
	verifyPool(t, p)
}

// Scenario 4: exact-fit allocation reuses a freed block without
// growing the pool. A second live block keeps the page from being
// reclaimed when the first is freed; 48 is a multiple of the size-class
// stride, so the freed block is filed in the very class a 48-byte
// request searches.
func TestScenario4ExactFitReuse(t *testing.T) {
	p, mp := newTestPool(0)

	h, off, err := p.Allocate(48, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := p.Allocate(48, 0); err != nil {
		t.Fatal(err)
	}
	p.Free(h, off)

	before := len(mp.pages)
	h2, off2, err := p.Allocate(48, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(mp.pages) != before {
		t.Fatalf("expected reuse without growth, pages went from %d to %d", before, len(mp.pages))
	}
	if h2 != h || off2 != off {
		t.Fatalf("expected the freed block (%d,%d) to be reused, got (%d,%d)", h, off, h2, off2)
	}
	verifyPool(t, p)
	p.Free(h2, off2)
}

// Scenario 5: out-of-memory is reported, not panicked, when the
// provider itself is exhausted.
func TestScenario5ProviderExhausted(t *testing.T) {
	p, _ := newTestPool(1)

	var last error
	for i := 0; i < 64; i++ {
		if _, _, err := p.Allocate(64, 0); err != nil {
			last = err
			break
		}
	}
	if last == nil {
		t.Fatal("expected eventual ErrOutOfMemory")
	}
	if _, ok := last.(*ErrOutOfMemory); !ok {
		t.Fatalf("expected *ErrOutOfMemory, got %T: %v", last, last)
	}
}

func TestObjectSizeInvalidHandle(t *testing.T) {
	p, _ := newTestPool(0)
	h, off, err := p.Allocate(32, 0)
	if err != nil {
		t.Fatal(err)
	}
	p.Free(h, off)

	if _, err := p.ObjectSize(h, off); err == nil {
		t.Fatal("expected error reading ObjectSize of a free block")
	} else if _, ok := err.(*ErrInvalidHandle); !ok {
		t.Fatalf("expected *ErrInvalidHandle, got %T: %v", err, err)
	}
}

func TestTotalBytesTracksPages(t *testing.T) {
	p, mp := newTestPool(0)
	if p.TotalBytes() != 0 {
		t.Fatalf("expected 0 bytes before any allocation, got %d", p.TotalBytes())
	}

	h, off, err := p.Allocate(16, 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(len(mp.pages)) * uint64(mp.pageSize); p.TotalBytes() != want {
		t.Fatalf("TotalBytes() = %d, want %d", p.TotalBytes(), want)
	}
	p.Free(h, off)
}

func ExamplePool() {
	mp := NewMemPageProvider(DefaultPageSize, 0)
	p := NewPool(mp)

	h, off, err := p.Allocate(128, 0)
	if err != nil {
		panic(err)
	}
	size, _ := p.ObjectSize(h, off)
	fmt.Println(size == 128)
	p.Free(h, off)
	// Output: true
}
