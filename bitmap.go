// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xvpool

import "math/bits"

// freeListBitmap is the two-level summary structure over NumFreeLists
// segregated free lists: flBitmap has one bit per second-level word
// (set iff that word has any free-list bit set), and slBitmap has one
// bit per free list (set iff that free list is non-empty). This
// mirrors xvmalloc.c's pool->bitmap: a first-level word plus an array
// of second-level words, indexed the same way
// achilleasa-gopher-os/kernel/mem/physical/allocator.go indexes its own
// per-order free bitmaps (index>>6 selects the word, index&63 selects
// the bit within it).
type freeListBitmap struct {
	fl uint64
	sl []uint64
}

func newFreeListBitmap(numFreeLists int) freeListBitmap {
	numWords := (numFreeLists + bitsPerWord - 1) / bitsPerWord
	return freeListBitmap{sl: make([]uint64, numWords)}
}

func (b *freeListBitmap) set(index int) {
	word, bit := index>>6, uint(index&63)
	b.sl[word] |= 1 << bit
	b.fl |= 1 << uint(word)
}

func (b *freeListBitmap) clear(index int) {
	word, bit := index>>6, uint(index&63)
	b.sl[word] &^= 1 << bit
	if b.sl[word] == 0 {
		b.fl &^= 1 << uint(word)
	}
}

func (b *freeListBitmap) test(index int) bool {
	word, bit := index>>6, uint(index&63)
	return b.sl[word]&(1<<bit) != 0
}

// findBlock returns the smallest free-list index >= start that is
// non-empty, and false if none exists. It is xvmalloc.c's find_block:
// scan the first-level word from the word containing start, masking
// off any words entirely below it, then within the first non-zero
// second-level word mask off any bits below the starting bit.
func (b *freeListBitmap) findBlock(start int) (int, bool) {
	word, bit := start>>6, uint(start&63)

	if w := b.sl[word] &^ (1<<bit - 1); w != 0 {
		return word<<6 + bits.TrailingZeros64(w), true
	}

	fl := b.fl &^ (1<<uint(word+1) - 1)
	if fl == 0 {
		return 0, false
	}
	word = bits.TrailingZeros64(fl)
	return word<<6 + bits.TrailingZeros64(b.sl[word]), true
}
