// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xvpool

import "fmt"

// Verify walks every page this Pool holds, checking the block chain's
// structural invariants (header sizes sum exactly to the page's
// payload, prevOffset/prevFree agree with the actual predecessor,
// blocks never overlap) without mutating anything. It mirrors
// lldb/falloc.go's Allocator.Verify: a caller-invoked, non-destructive
// audit reporting problems through log rather than returning the first
// one found. If log returns false, or a problem makes it unsafe to
// keep walking, Verify stops and returns the error that triggered it;
// otherwise it returns nil once every page has been walked, together
// with the stats accumulated along the way.
func (p *Pool) Verify(log func(error) bool) (*AllocStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := &AllocStats{TotalPages: uint32(len(p.pages))}

	for h := range p.pages {
		if err := p.verifyPage(h, stats, log); err != nil {
			return stats, err
		}
	}

	stats.TotalBytes = uint64(stats.TotalPages) * uint64(p.cfg.pageSize)
	return stats, nil
}

func (p *Pool) verifyPage(h PageHandle, stats *AllocStats, log func(error) bool) error {
	page, err := p.provider.MapTransient(h, slotPrimary)
	if err != nil {
		if !log(err) {
			return err
		}
		return nil
	}
	defer p.provider.UnmapTransient(h, slotPrimary)

	var (
		offset     uint32
		prevOffset uint32
		prevFree   bool
		sawFirst   bool
	)

	for {
		hdr := p.cfg.readHeader(page, offset)

		if sawFirst {
			if hdr.prevOffset() != prevOffset {
				err := fmt.Errorf("xvpool: page %d offset %d: prevOffset %d, want %d", h, offset, hdr.prevOffset(), prevOffset)
				if !log(err) {
					return err
				}
			}
			if hdr.prevIsFree() != prevFree {
				err := fmt.Errorf("xvpool: page %d offset %d: prevFree %v, want %v", h, offset, hdr.prevIsFree(), prevFree)
				if !log(err) {
					return err
				}
			}
		} else if hdr.prevOffset() != 0 {
			err := fmt.Errorf("xvpool: page %d offset %d: first block has nonzero prevOffset %d", h, offset, hdr.prevOffset())
			if !log(err) {
				return err
			}
		}

		// A used block's header holds origsize, the caller's exact
		// requested size; realign it to the block's actual on-page
		// extent for the chain walk, same as Pool.Free does.
		var blockSize uint32
		if hdr.free() {
			blockSize = hdr.size
			stats.FreeBytes += uint64(hdr.size)
			if hdr.size < p.cfg.minAlloc {
				stats.Fragments++
			}
		} else {
			blockSize = p.cfg.alignUp(hdr.size)
			stats.UsedBytes += uint64(blockSize)
		}

		prevOffset = offset
		prevFree = hdr.free()
		sawFirst = true

		next, ok := p.cfg.nextBlockOffset(offset, blockSize)
		if !ok {
			if next != p.cfg.pageSize {
				err := fmt.Errorf("xvpool: page %d offset %d: block of size %d overruns page (ends at %d, page is %d)", h, offset, blockSize, next, p.cfg.pageSize)
				if !log(err) {
					return err
				}
			}
			break
		}
		offset = next
	}

	return nil
}
