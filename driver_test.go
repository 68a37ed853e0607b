// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

import "testing"

func TestStatsString(t *testing.T) {
	s := Stats{MethodsTrimmed: 2, TypesTrimmed: 1, BytesZeroed: 10, RegionsZeroed: 3}
	want := "methods=2 types=1 bytes=10 regions=3"
	if got := s.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestZeroMethodBodiesOnlyTouchesCodeRange(t *testing.T) {
	// A leading padding byte, then a tiny method body (codeSize=2) at
	// (file offset == RVA, since no sections are configured) 1.
	data := []byte{0xFF, (2 << 2) | corILMethodTinyFormat, 0xAA, 0xBB}

	f, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	f.CLR.Tables[MethodDef] = &MetadataTable{
		ID:       MethodDef,
		RowCount: 1,
		rows:     [][]uint32{{1, 0, 0, 0, 0, 0}}, // RVA=1, rest unused by zeroMethodBodies
	}

	out := make([]byte, len(data))
	copy(out, data)
	ed := newZeroingEditor(out)

	if err := f.zeroMethodBodies(ed, map[uint32]bool{0: true}); err != nil {
		t.Fatalf("zeroMethodBodies: %v", err)
	}

	if out[0] != data[0] || out[1] != data[1] {
		t.Fatalf("padding/header bytes were zeroed: %v", out)
	}
	if out[2] != 0 || out[3] != 0 {
		t.Fatalf("code bytes were not zeroed: %v", out)
	}
	if ed.bytesZeroed != 2 || ed.regions != 1 {
		t.Fatalf("bytesZeroed=%d regions=%d, want 2, 1", ed.bytesZeroed, ed.regions)
	}
}

func TestZeroMethodBodiesSkipsMethodsWithNoRVA(t *testing.T) {
	data := []byte{0x00}
	f, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	f.CLR.Tables[MethodDef] = &MetadataTable{
		ID:       MethodDef,
		RowCount: 1,
		rows:     [][]uint32{{0, 0, 0, 0, 0, 0}}, // RVA=0 means abstract/native: nothing to zero
	}

	out := make([]byte, len(data))
	copy(out, data)
	ed := newZeroingEditor(out)

	if err := f.zeroMethodBodies(ed, map[uint32]bool{0: true}); err != nil {
		t.Fatalf("zeroMethodBodies: %v", err)
	}
	if ed.regions != 0 {
		t.Fatalf("expected no zeroing for an RVA-less method, got %d regions", ed.regions)
	}
}
