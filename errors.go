// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xvpool

import (
	"errors"
	"fmt"
)

// ErrOutOfMemory is returned by Allocate when size is 0, size exceeds
// the pool's MaxAllocSize, or no page can be produced (or acquired)
// to satisfy the request.
type ErrOutOfMemory struct {
	Size uint32
	Msg  string
}

func (e *ErrOutOfMemory) Error() string {
	return fmt.Sprintf("xvpool: out of memory: %s (size %d)", e.Msg, e.Size)
}

// ErrDoubleFree is the sentinel CorruptionError wraps when Free is
// called on a location that does not currently address a used block.
// Callers recover a panicked *CorruptionError and compare with
// errors.Is(err, ErrDoubleFree) to distinguish this case from other
// structural corruption.
var ErrDoubleFree = errors.New("xvpool: double free")

// CorruptionError is the typed panic value used for conditions §7
// of the specification calls fatal: a double free, or a bitmap/
// free-list inconsistency discovered while searching. These are not
// recoverable by the allocator itself; they indicate the caller or
// the pool's own bookkeeping is already broken.
type CorruptionError struct {
	Page      PageHandle
	Offset    uint32
	Invariant string
	Err       error
}

func (e *CorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xvpool: corruption detected (%s) at page %d offset %d", e.Err, e.Page, e.Offset)
	}
	return fmt.Sprintf("xvpool: corruption detected (%s) at page %d offset %d", e.Invariant, e.Page, e.Offset)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

func corrupt(page PageHandle, offset uint32, invariant string) {
	panic(&CorruptionError{Page: page, Offset: offset, Invariant: invariant})
}

// corruptErr is corrupt's counterpart for conditions that carry a
// sentinel error callers may want to match with errors.Is/errors.As.
func corruptErr(page PageHandle, offset uint32, err error) {
	panic(&CorruptionError{Page: page, Offset: offset, Invariant: err.Error(), Err: err})
}

// ErrInvalidHandle is returned by ObjectSize and other queries given a
// (page, offset) pair that cannot possibly have come from Allocate.
type ErrInvalidHandle struct {
	Page   PageHandle
	Offset uint32
}

func (e *ErrInvalidHandle) Error() string {
	return fmt.Sprintf("xvpool: invalid handle: page %d offset %d", e.Page, e.Offset)
}
