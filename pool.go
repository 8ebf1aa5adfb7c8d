// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xvpool

import "sync"

// Pool is a segregated-fit allocator packing variable-sized blobs into
// pages obtained from a PageProvider. All mutating methods serialize
// through mu, following cznic-exp/dbm.DB's bkl sync.Mutex guarding a
// *lldb.Allocator: one named lock field owns the allocator's entire
// mutable state, released around calls into the provider (page
// acquisition may block) and reacquired before continuing.
//
// A zero value is not usable; construct with NewPool.
type Pool struct {
	mu        sync.Mutex
	provider  PageProvider
	cfg       cfg
	bitmap    freeListBitmap
	freeHeads []listHead
	pages     map[PageHandle]bool
	destroyed bool
}

// NewPool returns a Pool drawing pages from provider, configured by
// opts over the package defaults (DefaultPageSize, DefaultAlignSize,
// DefaultFLDelta, DefaultMinAllocSize, DefaultMaxAllocSize).
func NewPool(provider PageProvider, opts ...Option) *Pool {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := newCfg(o.pageSize, o.alignSize, o.flDelta, o.minAlloc, o.maxAlloc)

	return &Pool{
		provider:  provider,
		cfg:       c,
		bitmap:    newFreeListBitmap(c.numFreeLists),
		freeHeads: make([]listHead, c.numFreeLists),
		pages:     make(map[PageHandle]bool),
	}
}

// Destroy releases every page this Pool has ever obtained from its
// provider. The Pool must not be used afterward.
func (p *Pool) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for h := range p.pages {
		if err := p.provider.FreePage(h); err != nil {
			return err
		}
	}
	p.pages = nil
	p.destroyed = true
	return nil
}

// Allocate reserves a block able to hold size bytes and returns the
// handle it can be addressed by. It returns *ErrOutOfMemory if size is
// zero, exceeds the pool's MaxAllocSize, or no page could be obtained
// from the provider to satisfy the request.
func (p *Pool) Allocate(size uint32, flags AllocFlags) (PageHandle, uint32, error) {
	if size == 0 {
		return 0, 0, &ErrOutOfMemory{Size: size, Msg: "zero-size allocation is not permitted"}
	}
	if size > p.cfg.maxAlloc {
		return 0, 0, &ErrOutOfMemory{Size: size, Msg: "size exceeds MaxAllocSize"}
	}
	aligned := p.cfg.alignUp(size)
	index := p.cfg.getIndex(aligned)

	for {
		p.mu.Lock()
		if p.destroyed {
			p.mu.Unlock()
			panic("xvpool: use of destroyed pool")
		}
		if found, ok := p.bitmap.findBlock(index); ok {
			h, offset, err := p.unlinkHead(found)
			if err != nil {
				p.mu.Unlock()
				return 0, 0, err
			}
			offset, err = p.splitAndMark(h, offset, aligned, size)
			p.mu.Unlock()
			return h, offset, err
		}
		p.mu.Unlock()

		h, err := p.provider.AllocPage(flags)
		if err != nil {
			return 0, 0, &ErrOutOfMemory{Size: size, Msg: err.Error()}
		}

		p.mu.Lock()
		err = p.growPool(h)
		p.mu.Unlock()
		if err != nil {
			return 0, 0, err
		}
		// Loop back and search again: the page just grown in is now
		// on the free list a second findBlock will reach.
	}
}

// growPool formats a freshly obtained page as a single free block
// spanning its whole payload and files it on the appropriate free
// list. Must be called with mu held.
func (p *Pool) growPool(h PageHandle) error {
	page, err := p.provider.MapTransient(h, slotPrimary)
	if err != nil {
		return err
	}
	defer p.provider.UnmapTransient(h, slotPrimary)

	size := p.cfg.pageSize - p.cfg.alignSize
	p.cfg.writeHeader(page, 0, header{size: size, prevPacked: blockFree})
	if err := p.linkInsert(page, h, 0, size); err != nil {
		return err
	}

	p.pages[h] = true
	return nil
}

// nextBlockOffset returns the header offset immediately following a
// block of size payload bytes at offset, or false if offset is the
// last block in its page.
func (c *cfg) nextBlockOffset(offset, size uint32) (uint32, bool) {
	next := offset + c.alignSize + size
	return next, next < c.pageSize
}

// splitAndMark marks the free block at (h, offset), known to have
// capacity >= aligned, as used, splitting off a trailing free remainder
// whenever the capacity leaves room for one (possibly a zero-payload
// remainder, which stays an orphan: tagged free for a future coalesce
// but too small to hold the free-list link fields, so it is never
// filed on any free list). Only when capacity == aligned exactly is
// there no room for a remainder header at all, and the used block
// silently absorbs the whole free block. This mirrors xvmalloc.c's
// xv_malloc: tmpsize is always zero or a multiple of XV_ALIGN, so it
// either can't fit a header (no split) or always can (split, payload
// possibly zero).
//
// The used block's header records origsize, the caller's exact
// requested size, not aligned - ObjectSize must return precisely what
// was asked for. aligned is used only to work out where the split
// falls and, when no split happens, capacity itself (not aligned)
// is the used block's on-page extent. It returns the (possibly
// unchanged) offset of the now-used block. Must be called with mu
// held; page is mapped and unmapped once around both the split and
// mark-used bookkeeping.
func (p *Pool) splitAndMark(h PageHandle, offset, aligned, origsize uint32) (uint32, error) {
	page, err := p.provider.MapTransient(h, slotPrimary)
	if err != nil {
		return 0, err
	}
	defer p.provider.UnmapTransient(h, slotPrimary)

	hdr := p.cfg.readHeader(page, offset)
	if !hdr.free() {
		corrupt(h, offset, "allocate: free-list entry not marked free")
	}
	capacity := hdr.size

	splitPayload := int64(capacity) - int64(aligned) - int64(p.cfg.alignSize)
	physicalSize := capacity
	if splitPayload >= 0 {
		physicalSize = aligned
		newOffset := offset + p.cfg.alignSize + aligned
		newSize := uint32(splitPayload)

		p.cfg.writeHeader(page, newOffset, header{size: newSize, prevPacked: blockFree | offset})
		if newSize >= p.cfg.minAlloc {
			if err := p.linkInsert(page, h, newOffset, newSize); err != nil {
				return 0, err
			}
		}
		if next, ok := p.cfg.nextBlockOffset(newOffset, newSize); ok {
			p.cfg.setPrevFree(page, next, true)
			p.cfg.setPrevOffset(page, next, newOffset)
		}
	}

	hdr.size = origsize
	hdr.prevPacked &^= blockFree
	p.cfg.writeHeader(page, offset, hdr)
	if next, ok := p.cfg.nextBlockOffset(offset, physicalSize); ok {
		p.cfg.setPrevFree(page, next, false)
	}

	return offset, nil
}

// Free releases the block at (h, offset), coalescing with an
// immediately adjacent free predecessor and/or successor, and
// returning the whole page to the provider if the result is a single
// free block spanning it. Freeing a handle that does not currently
// address a used block is a corruption: it panics with
// *CorruptionError rather than returning an error, matching the
// specification's treatment of a double free as unrecoverable.
func (p *Pool) Free(h PageHandle, offset uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		panic("xvpool: use of destroyed pool")
	}
	if !p.pages[h] {
		corruptErr(h, offset, ErrDoubleFree)
	}

	page, err := p.provider.MapTransient(h, slotPrimary)
	if err != nil {
		corrupt(h, offset, "free: page not mappable")
	}
	defer p.provider.UnmapTransient(h, slotPrimary)

	hdr := p.cfg.readHeader(page, offset)
	if hdr.free() {
		corruptErr(h, offset, ErrDoubleFree)
	}

	// hdr.size is the caller's exact requested size (origsize, as
	// written by splitAndMark); realign it to recover the block's
	// actual on-page capacity before using it for merge arithmetic,
	// exactly as xvmalloc.c's xv_free does with
	// "block->size = ALIGN(block->size, XV_ALIGN)".
	newOffset, newSize := offset, p.cfg.alignUp(hdr.size)
	basePrevPacked := hdr.prevPacked

	if next, ok := p.cfg.nextBlockOffset(newOffset, newSize); ok {
		nextHdr := p.cfg.readHeader(page, next)
		if nextHdr.free() {
			// A sub-minimum orphan was never filed on any free list
			// (splitAndMark skips linkInsert for it), so there is
			// nothing to unlink - only absorb it.
			if nextHdr.size >= p.cfg.minAlloc {
				if err := p.unlink(h, next, nextHdr.size); err != nil {
					corrupt(h, next, "free: forward merge unlink failed")
				}
			}
			newSize += p.cfg.alignSize + nextHdr.size
		}
	}

	if hdr.prevIsFree() {
		prevOff := hdr.prevOffset()
		prevHdr := p.cfg.readHeader(page, prevOff)
		if prevHdr.size >= p.cfg.minAlloc {
			if err := p.unlink(h, prevOff, prevHdr.size); err != nil {
				corrupt(h, prevOff, "free: backward merge unlink failed")
			}
		}
		basePrevPacked = prevHdr.prevPacked
		newSize += p.cfg.alignSize + prevHdr.size
		newOffset = prevOff
	}

	if newOffset == 0 && newSize == p.cfg.pageSize-p.cfg.alignSize {
		delete(p.pages, h)
		if err := p.provider.FreePage(h); err != nil {
			corrupt(h, offset, "free: page release failed")
		}
		return
	}

	// basePrevPacked already carries exactly the prevOffset/prevFree
	// bits the merged block should keep - backward merge replaced it
	// with the absorbed predecessor's own prevPacked, otherwise it is
	// still offset's original prevPacked - so the only bit Free itself
	// ever sets is blockFree.
	p.cfg.writeHeader(page, newOffset, header{size: newSize, prevPacked: basePrevPacked | blockFree})
	// A block that merged down to less than minAlloc cannot safely
	// hold the free-list link quad; it stays an unlinked orphan until
	// a future coalesce absorbs it into something big enough.
	if newSize >= p.cfg.minAlloc {
		if err := p.linkInsert(page, h, newOffset, newSize); err != nil {
			corrupt(h, offset, "free: relink failed")
		}
	}
	if next, ok := p.cfg.nextBlockOffset(newOffset, newSize); ok {
		p.cfg.setPrevFree(page, next, true)
		p.cfg.setPrevOffset(page, next, newOffset)
	}
}

// ObjectSize returns the exact size, in bytes, originally passed to
// Allocate for the block at (h, offset) - not the block's rounded-up
// on-page capacity. It returns *ErrInvalidHandle if that location does
// not currently address a used block.
func (p *Pool) ObjectSize(h PageHandle, offset uint32) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.pages[h] {
		return 0, &ErrInvalidHandle{Page: h, Offset: offset}
	}

	page, err := p.provider.MapTransient(h, slotPrimary)
	if err != nil {
		return 0, err
	}
	defer p.provider.UnmapTransient(h, slotPrimary)

	hdr := p.cfg.readHeader(page, offset)
	if hdr.free() {
		return 0, &ErrInvalidHandle{Page: h, Offset: offset}
	}
	return hdr.size, nil
}

// TotalBytes returns the total size, in bytes, of every page this Pool
// currently holds, used or free.
func (p *Pool) TotalBytes() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint64(len(p.pages)) * uint64(p.cfg.pageSize)
}
