// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

// Byte Editor (spec.md §4.1). Every trim phase only ever shrinks the set of
// live bytes; it never moves, inserts, or deletes one, so one editor
// interface serves two modes: a dry-run "count" mode that tallies what would
// be zeroed without mutating anything, and a "zero" mode that writes over the
// clone of the original image produced by the Driver (§4.13). Every trimmer
// component takes the interface, so it is written once and can run in either
// mode. The Driver always uses the zero mode; the count mode is used by
// tests.
type editor interface {
	// zero overwrites [offset, offset+size) with 0x00. A no-op in count
	// mode.
	zero(offset, size uint32)
}

// zeroingEditor writes zero bytes directly into buf.
type zeroingEditor struct {
	buf         []byte
	bytesZeroed uint64
	regions     int
}

func newZeroingEditor(buf []byte) *zeroingEditor {
	return &zeroingEditor{buf: buf}
}

func (e *zeroingEditor) zero(offset, size uint32) {
	if size == 0 {
		return
	}
	end := offset + size
	if end > uint32(len(e.buf)) {
		end = uint32(len(e.buf))
	}
	if offset >= end {
		return
	}
	for i := offset; i < end; i++ {
		e.buf[i] = 0
	}
	e.bytesZeroed += uint64(end - offset)
	e.regions++
}

// countingEditor tallies how many bytes and regions a trim pass would
// zero, without touching any buffer. Used by tests that assert on the shape
// of a trim plan without needing a real image buffer.
type countingEditor struct {
	bytesZeroed uint64
	regions     int
}

func (e *countingEditor) zero(offset, size uint32) {
	if size == 0 {
		return
	}
	e.bytesZeroed += uint64(size)
	e.regions++
}
