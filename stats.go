// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xvpool

// AllocStats summarizes a Pool's current page and block usage, as
// reported by Verify. It mirrors lldb/falloc.go's AllocStats: a plain
// struct a caller can print or assert against, not a live view.
type AllocStats struct {
	TotalPages uint32
	TotalBytes uint64
	UsedBytes  uint64
	FreeBytes  uint64
	// Fragments is the number of orphan sub-minimum free blocks
	// observed: free blocks smaller than MinAllocSize, too small to
	// hold the free-list link fields, and so unreachable from any free
	// list until a future coalesce absorbs them. A large Fragments
	// indicates a page is accumulating dead, unfindable free space.
	Fragments uint32
}
