// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xvpool

// Every block begins with a header of cfg.alignSize bytes: two
// equal-width fields, (size, prevPacked), each cfg.alignSize/2 bytes
// wide and stored big-endian - the same "addressed by offset, not by
// pointer" style lldb.Allocator uses for its own on-page fields
// (falloc.go's nfo/makeFree family), just with a variable field width
// instead of lldb's fixed 7-byte handles.
//
// prevPacked's low flagBits bits are blockFree/prevFree; the remaining
// high bits are prevOffset, the offset of the immediately preceding
// in-page block's header (0 if this is the first block in the page).
// Because prevOffset is always a multiple of alignSize, and alignSize
// is a power of 2 >= 1<<flagBits, its low flagBits bits are always
// zero - so flags and prevOffset can simply be OR-ed together without
// a shift, exactly as the original allocator's get_blockprev/
// set_blockprev note.

func fieldWidth(alignSize uint32) int {
	switch alignSize {
	case 4:
		return 2
	case 8:
		return 4
	default:
		panic("xvpool: unsupported alignSize (must be 4 or 8)")
	}
}

func getField(buf []byte, width int) uint32 {
	switch width {
	case 2:
		return uint32(buf[0])<<8 | uint32(buf[1])
	case 4:
		return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	}
	panic("xvpool: unreachable field width")
}

func putField(buf []byte, width int, v uint32) {
	switch width {
	case 2:
		buf[0], buf[1] = byte(v>>8), byte(v)
	case 4:
		buf[0], buf[1], buf[2], buf[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
	default:
		panic("xvpool: unreachable field width")
	}
}

// header is a decoded view of a block's header fields. It is not a
// pointer into the page - pages are only addressable through a
// transient mapping - so header is read and written explicitly
// through readHeader/writeHeader.
type header struct {
	size       uint32
	prevPacked uint32
}

func (h header) free() bool       { return h.prevPacked&blockFree != 0 }
func (h header) prevIsFree() bool { return h.prevPacked&prevFree != 0 }
func (h header) prevOffset() uint32 {
	return h.prevPacked &^ flagMask
}

func (c *cfg) readHeader(page []byte, offset uint32) header {
	w := fieldWidth(c.alignSize)
	return header{
		size:       getField(page[offset:], w),
		prevPacked: getField(page[offset+uint32(w):], w),
	}
}

func (c *cfg) writeHeader(page []byte, offset uint32, h header) {
	w := fieldWidth(c.alignSize)
	putField(page[offset:], w, h.size)
	putField(page[offset+uint32(w):], w, h.prevPacked)
}

func (c *cfg) setFree(page []byte, offset uint32, free bool) {
	w := fieldWidth(c.alignSize)
	p := getField(page[offset+uint32(w):], w)
	if free {
		p |= blockFree
	} else {
		p &^= blockFree
	}
	putField(page[offset+uint32(w):], w, p)
}

func (c *cfg) setPrevFree(page []byte, offset uint32, free bool) {
	w := fieldWidth(c.alignSize)
	p := getField(page[offset+uint32(w):], w)
	if free {
		p |= prevFree
	} else {
		p &^= prevFree
	}
	putField(page[offset+uint32(w):], w, p)
}

func (c *cfg) setPrevOffset(page []byte, offset, prevOffset uint32) {
	w := fieldWidth(c.alignSize)
	p := getField(page[offset+uint32(w):], w)
	flags := p & flagMask
	putField(page[offset+uint32(w):], w, prevOffset|flags)
}

func (c *cfg) setSize(page []byte, offset uint32, size uint32) {
	w := fieldWidth(c.alignSize)
	putField(page[offset:], w, size)
}

// link is the decoded free-list link quad stored at the start of a
// free block's payload (only valid when the block is free and its
// size is >= cfg.minAlloc).
type link struct {
	prevPage   PageHandle
	prevOffset uint32
	nextPage   PageHandle
	nextOffset uint32
}

func payloadOffset(c *cfg, blockOffset uint32) uint32 {
	return blockOffset + c.alignSize
}

func readLink(page []byte, payloadOff uint32) link {
	b := page[payloadOff:]
	return link{
		prevPage:   PageHandle(be32(b[0:4])),
		prevOffset: be32(b[4:8]),
		nextPage:   PageHandle(be32(b[8:12])),
		nextOffset: be32(b[12:16]),
	}
}

func writeLink(page []byte, payloadOff uint32, l link) {
	b := page[payloadOff:]
	putBe32(b[0:4], uint32(l.prevPage))
	putBe32(b[4:8], l.prevOffset)
	putBe32(b[8:12], uint32(l.nextPage))
	putBe32(b[12:16], l.nextOffset)
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBe32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
}
