// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xvpool

import "github.com/cznic/mathutil"

// Default configuration, matching the production constants used
// throughout the specification's worked scenarios.
const (
	// DefaultPageSize is the size, in bytes, of a page produced by a
	// PageProvider.
	DefaultPageSize = 4096

	// DefaultAlignSize is the block header size and allocation
	// alignment. It must be a power of 2 large enough to hold a
	// packed (size, flags+prevOffset) header.
	DefaultAlignSize = 4

	// DefaultFLDelta is the linear size-class stride in bytes.
	DefaultFLDelta = 16

	// DefaultMinAllocSize is the smallest size class; it must be able
	// to hold the four free-list link fields in the block body.
	DefaultMinAllocSize = 16

	// DefaultMaxAllocSize is the largest allocation size class.
	DefaultMaxAllocSize = DefaultPageSize - 20
)

// blockFree and prevFree are the two flag bits packed into the low
// bits of a block's prevPacked word; the remaining high bits encode
// the preceding block's header offset.
const (
	blockFree uint32 = 1 << 0
	prevFree  uint32 = 1 << 1

	flagBits = 2
	flagMask = uint32(1)<<flagBits - 1
)

// linkFieldsSize is the size, in bytes, of the four free-list link
// fields (prevPage, prevOffset, nextPage, nextOffset) stored at the
// start of a free block's payload. Each field is a uint32.
const linkFieldsSize = 16

// bitsPerWord is the width of one second-level bitmap word.
const bitsPerWord = 64

// cfg holds the size-class geometry for one Pool. It is resolved once
// at NewPool time from the functional options (see options.go) and
// frozen into plain fields.
type cfg struct {
	pageSize     uint32
	alignSize    uint32
	flDelta      uint32
	flDeltaShift uint
	minAlloc     uint32
	maxAlloc     uint32
	numFreeLists int
}

func newCfg(pageSize, alignSize, flDelta, minAlloc, maxAlloc uint32) cfg {
	if alignSize == 0 || alignSize&(alignSize-1) != 0 {
		panic("xvpool: alignSize must be a power of 2")
	}
	if flDelta == 0 || flDelta&(flDelta-1) != 0 {
		panic("xvpool: flDelta must be a power of 2")
	}
	if minAlloc < flDelta {
		panic("xvpool: minAlloc must be >= flDelta")
	}
	if minAlloc < linkFieldsSize {
		panic("xvpool: minAlloc must hold the free-list link fields")
	}
	if maxAlloc >= pageSize-alignSize {
		panic("xvpool: maxAlloc must leave room for a block header")
	}

	shift := uint(0)
	for v := flDelta; v > 1; v >>= 1 {
		shift++
	}

	// One class per flDelta step up to getIndex(maxAlloc), so that a
	// request of exactly maxAlloc bytes has a class to search.
	numFreeLists := int(((maxAlloc+flDelta-1)&^(flDelta-1)-minAlloc)/flDelta) + 1

	return cfg{
		pageSize:     pageSize,
		alignSize:    alignSize,
		flDelta:      flDelta,
		flDeltaShift: shift,
		minAlloc:     minAlloc,
		maxAlloc:     maxAlloc,
		numFreeLists: numFreeLists,
	}
}

// alignUp rounds size up to the next multiple of the pool's alignSize.
func (c *cfg) alignUp(size uint32) uint32 {
	a := c.alignSize
	return (size + a - 1) &^ (a - 1)
}

// getIndex returns the smallest free-list index guaranteed to hold a
// block that satisfies a request of size bytes: raise to at least
// minAlloc, round up to a multiple of flDelta.
func (c *cfg) getIndex(size uint32) int {
	size = uint32(mathutil.Max(int(size), int(c.minAlloc)))
	size = (size + c.flDelta - 1) &^ (c.flDelta - 1)
	return int((size - c.minAlloc) >> c.flDeltaShift)
}

// getIndexForInsert returns the free-list index a free block of size
// bytes is filed under: round down to a multiple of flDelta and clamp
// the index to the top class, so any future getIndex-directed search
// that reaches this class finds a block large enough.
func (c *cfg) getIndexForInsert(size uint32) int {
	size &^= c.flDelta - 1
	index := int((size - c.minAlloc) >> c.flDeltaShift)
	return mathutil.Min(index, c.numFreeLists-1)
}
