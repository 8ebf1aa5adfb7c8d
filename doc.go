// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package xvpool implements a segregated-fit pool allocator for packing
many small, variable-sized byte blobs into fixed-size backing pages.

It targets objects bounded well below one page (tens of bytes up to
most of a page) where a general purpose allocator wastes space on
per-object headers and power-of-two rounding. A caller supplies pages
through a PageProvider; xvpool never assumes a page is addressable
except through a short-lived transient mapping of that page.

Pages

A page is a fixed-size (PageSize) region identified by an opaque
PageHandle. A page holds a sequence of blocks laid out back to back,
covering exactly [AlignSize, PageSize) payload bytes; the first block's
header starts at offset 0.

Blocks

Every block begins with a header of AlignSize bytes holding the
block's payload size and a packed word whose low bits are flags
(blockFree, prevFree) and whose high bits are the offset of the
immediately preceding block's header (0 if this is the first block in
the page). A free block whose payload is at least MinAllocSize also
stores, at the start of its payload, the four link fields that wire it
into exactly one segregated free list: (prevPage, prevOffset,
nextPage, nextOffset).

Handles

Objects are identified by a (PageHandle, offset) pair, never by a raw
pointer: a pointer into a page is only valid for the lifetime of a
transient mapping of that page, and xvpool is written so that a
reimplementation is never tempted to cache one past that lifetime.

Free lists and the two-level bitmap

Free blocks are organized into NumFreeLists segregated free lists by
size class. A two-level bitmap (a first-level summary word over blocks
of 64 second-level bits, each bit summarizing one free list) makes
"smallest non-empty class >= requested class" an O(1) operation using
two find-first-set steps, at the cost of filing a free block under the
largest class it is certain to satisfy (get_index_for_insert) while
searching with the smallest class guaranteed to satisfy a request
(get_index).

Splitting and coalescing

Allocation finds a free block at least as large as requested and splits
off a trailing free remainder whenever the block's capacity leaves room
for one; a remainder too small to hold the free-list link fields is
still split off, just never filed on any free list (an orphan, counted
in AllocStats.Fragments) until a later coalesce absorbs it. Only an
exact-capacity fit leaves no remainder at all. The block header always
records the caller's exact requested size, not the rounded-up one used
internally for split placement, so ObjectSize returns precisely what
was asked for regardless of how much spare capacity the split left
unclaimed. Freeing a block forward-merges
with a free successor and backward-merges with a free predecessor
(tracked via the prevFree flag and the predecessor's stored offset)
before deciding whether the whole page is now one free block and can
be returned to the provider.

Concurrency

Pool serializes all mutation through a single mutex, released around
calls into the page provider (page acquisition may block) and
reacquired before continuing. Each in-flight operation holds at most
two transient mappings at once, on distinct mapping slots so their
addresses cannot alias.
*/
package xvpool
