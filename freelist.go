// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xvpool

// listHead records the (page, offset) of the first block filed under
// one free-list index, or the zero value if that list is empty.
type listHead struct {
	page   PageHandle
	offset uint32
	valid  bool
}

// linkInsert files the free block (h, offset, size) at the head of its
// segregated free list, the same "new block always becomes the head"
// policy as xvmalloc.c's insert_block: O(1), no need to walk the list
// to find an insertion point since blocks within one size class are
// otherwise unordered.
func (p *Pool) linkInsert(page []byte, h PageHandle, offset, size uint32) error {
	index := p.cfg.getIndexForInsert(size)
	old := p.freeHeads[index]

	l := link{nextPage: 0, nextOffset: 0, prevPage: 0, prevOffset: 0}
	if old.valid {
		l.nextPage, l.nextOffset = old.page, old.offset
		if err := p.patchPrevLink(old.page, old.offset, h, offset); err != nil {
			return err
		}
	}
	writeLink(page, payloadOffset(&p.cfg, offset), l)

	p.freeHeads[index] = listHead{page: h, offset: offset, valid: true}
	p.bitmap.set(index)
	return nil
}

// patchPrevLink rewrites the prevPage/prevOffset fields of the block at
// (h, offset) to point at (newPage, newOffset), mapping h on the
// neighbor slot since the caller already holds the primary slot for a
// different page.
func (p *Pool) patchPrevLink(h PageHandle, offset uint32, newPage PageHandle, newOffset uint32) error {
	page, err := p.provider.MapTransient(h, slotNeighbor)
	if err != nil {
		return err
	}
	defer p.provider.UnmapTransient(h, slotNeighbor)

	l := readLink(page, payloadOffset(&p.cfg, offset))
	l.prevPage, l.prevOffset = newPage, newOffset
	writeLink(page, payloadOffset(&p.cfg, offset), l)
	return nil
}

// patchNextLink is patchPrevLink's mirror, used when removing a block
// from the middle or tail of its list.
func (p *Pool) patchNextLink(h PageHandle, offset uint32, newPage PageHandle, newOffset uint32, newValid bool) error {
	page, err := p.provider.MapTransient(h, slotNeighbor)
	if err != nil {
		return err
	}
	defer p.provider.UnmapTransient(h, slotNeighbor)

	l := readLink(page, payloadOffset(&p.cfg, offset))
	if newValid {
		l.nextPage, l.nextOffset = newPage, newOffset
	} else {
		l.nextPage, l.nextOffset = 0, 0
	}
	writeLink(page, payloadOffset(&p.cfg, offset), l)
	return nil
}

// unlinkHead removes and returns the head of free list index, the
// O(1) common case xvmalloc.c's remove_block_head covers: repoint the
// list head at the removed block's successor, and if that successor
// exists, clear its backward link.
func (p *Pool) unlinkHead(index int) (PageHandle, uint32, error) {
	head := p.freeHeads[index]
	if !head.valid {
		corrupt(0, 0, "unlinkHead on empty free list")
	}

	page, err := p.provider.MapTransient(head.page, slotNeighbor)
	if err != nil {
		return 0, 0, err
	}
	l := readLink(page, payloadOffset(&p.cfg, head.offset))
	p.provider.UnmapTransient(head.page, slotNeighbor)

	if l.nextPage != 0 || l.nextOffset != 0 {
		if err := p.patchPrevLink(l.nextPage, l.nextOffset, 0, 0); err != nil {
			return 0, 0, err
		}
		p.freeHeads[index] = listHead{page: l.nextPage, offset: l.nextOffset, valid: true}
	} else {
		p.freeHeads[index] = listHead{}
		p.bitmap.clear(index)
	}

	return head.page, head.offset, nil
}

// unlink removes the block at (h, offset, size) from wherever it sits
// in its free list - head, middle, or tail - patching at most its two
// immediate neighbors. xvmalloc.c's remove_block delegates to
// remove_block_head when the target is already the head; so does this,
// following lldb/falloc.go's unlink, which shapes its own middle/edge
// cases the same way.
func (p *Pool) unlink(h PageHandle, offset, size uint32) error {
	index := p.cfg.getIndexForInsert(size)
	head := p.freeHeads[index]

	if head.valid && head.page == h && head.offset == offset {
		_, _, err := p.unlinkHead(index)
		return err
	}

	page, err := p.provider.MapTransient(h, slotNeighbor)
	if err != nil {
		return err
	}
	l := readLink(page, payloadOffset(&p.cfg, offset))
	p.provider.UnmapTransient(h, slotNeighbor)

	if l.prevPage == 0 && l.prevOffset == 0 {
		corrupt(h, offset, "free block not found in its free list")
	}
	if err := p.patchNextLink(l.prevPage, l.prevOffset, l.nextPage, l.nextOffset, l.nextPage != 0 || l.nextOffset != 0); err != nil {
		return err
	}
	if l.nextPage != 0 || l.nextOffset != 0 {
		if err := p.patchPrevLink(l.nextPage, l.nextOffset, l.prevPage, l.prevOffset); err != nil {
			return err
		}
	}
	return nil
}
