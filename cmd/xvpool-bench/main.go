// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command xvpool-bench drives a xvpool.Pool through a randomized
// allocate/free workload and reports the resulting stats, in the same
// plain flag-driven style as lldb/db_bench.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"xvpool"
)

func main() {
	var (
		n       = flag.Int("n", 100000, "number of allocate/free operations")
		maxSize = flag.Uint("max-size", 512, "maximum allocation size in bytes")
		pages   = flag.Uint("max-pages", 0, "page budget, 0 for unbounded")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		verify  = flag.Bool("verify", false, "run Pool.Verify after every operation (slow)")
	)
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	provider := xvpool.NewMemPageProvider(xvpool.DefaultPageSize, int(*pages))
	pool := xvpool.NewPool(provider)

	type obj struct {
		page   xvpool.PageHandle
		offset uint32
	}
	var live []obj

	start := time.Now()
	var allocs, frees, failures int

	for i := 0; i < *n; i++ {
		if len(live) == 0 || rng.Intn(2) == 0 {
			size := uint32(1 + rng.Intn(int(*maxSize)))
			h, off, err := pool.Allocate(size, 0)
			if err != nil {
				failures++
			} else {
				live = append(live, obj{h, off})
				allocs++
			}
		} else {
			idx := rng.Intn(len(live))
			o := live[idx]
			live[idx] = live[len(live)-1]
			live = live[:len(live)-1]
			pool.Free(o.page, o.offset)
			frees++
		}

		if *verify {
			if _, err := pool.Verify(func(e error) bool {
				log.Println(e)
				return false
			}); err != nil {
				log.Fatalf("op %d: Verify: %v", i, err)
			}
		}
	}

	for _, o := range live {
		pool.Free(o.page, o.offset)
	}

	stats, err := pool.Verify(func(e error) bool {
		log.Println(e)
		return true
	})
	if err != nil {
		log.Fatalf("final Verify: %v", err)
	}

	elapsed := time.Since(start)
	fmt.Printf("ops=%d allocs=%d frees=%d failures=%d elapsed=%s\n", *n, allocs, frees, failures, elapsed)
	fmt.Printf("pages=%d total=%d used=%d free=%d fragments=%d\n",
		stats.TotalPages, stats.TotalBytes, stats.UsedBytes, stats.FreeBytes, stats.Fragments)
}
