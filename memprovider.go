// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xvpool

import (
	"fmt"
	"sync"
)

// MemPageProvider is an in-process PageProvider backed by plain Go
// memory, adapted from lldb/memfiler.go's MemFiler
// (memFilerMap = map[int64]*[pgSize]byte) to whole-page handles instead
// of byte-offset addressing. It exists for tests and for callers that
// want a pool without a real OS-backed page source.
//
// A zero value is not usable; construct with NewMemPageProvider.
type MemPageProvider struct {
	mu       sync.Mutex
	pages    map[PageHandle]*[]byte
	pageSize uint32
	next     PageHandle

	// maxPages bounds how many pages AllocPage will hand out before
	// returning ErrOutOfMemory; 0 means unbounded. Tests use this to
	// exercise Pool's own out-of-memory path without needing to
	// actually exhaust process memory.
	maxPages int
}

// NewMemPageProvider returns a MemPageProvider whose pages are each
// pageSize bytes. maxPages bounds the number of pages held at once
// (pages returned through FreePage no longer count); 0 means unbounded.
func NewMemPageProvider(pageSize uint32, maxPages int) *MemPageProvider {
	return &MemPageProvider{
		pages:    make(map[PageHandle]*[]byte),
		pageSize: pageSize,
		maxPages: maxPages,
	}
}

func (m *MemPageProvider) AllocPage(flags AllocFlags) (PageHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxPages != 0 && len(m.pages) >= m.maxPages {
		return 0, &ErrOutOfMemory{Msg: "page provider exhausted"}
	}

	m.next++
	h := m.next
	buf := make([]byte, m.pageSize)
	m.pages[h] = &buf
	return h, nil
}

func (m *MemPageProvider) FreePage(h PageHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pages[h]; !ok {
		return fmt.Errorf("xvpool: FreePage: unknown page %d", h)
	}
	delete(m.pages, h)
	return nil
}

// MapTransient returns the live page buffer directly; plain Go memory
// needs no real mapping step, so slot is accepted only to satisfy the
// PageProvider contract and is otherwise ignored.
func (m *MemPageProvider) MapTransient(h PageHandle, slot int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.pages[h]
	if !ok {
		return nil, fmt.Errorf("xvpool: MapTransient: unknown page %d", h)
	}
	return *buf, nil
}

func (m *MemPageProvider) UnmapTransient(h PageHandle, slot int) error {
	return nil
}
