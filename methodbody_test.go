// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

import "testing"

func TestReadMethodBodyTinyFormat(t *testing.T) {
	// tiny header: codeSize=3 packed into the top 6 bits, format bits = 10b
	data := []byte{(3 << 2) | corILMethodTinyFormat, 0x00, 0x01, 0x2a}

	f, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}

	mb, err := f.readMethodBody(0)
	if err != nil {
		t.Fatalf("readMethodBody: %v", err)
	}
	if mb.HeaderSize != 1 || mb.CodeOffset != 1 || mb.CodeSize != 3 || mb.TotalSize != 4 {
		t.Fatalf("got %+v, want HeaderSize=1 CodeOffset=1 CodeSize=3 TotalSize=4", mb)
	}
}

func TestReadMethodBodyFatFormatNoEHSections(t *testing.T) {
	data := []byte{
		0x03, 0x30, // flagsAndSize: headerWords=3 (12 bytes), flags=corILMethodFatFormat
		0x08, 0x00, // MaxStack = 8
		0x05, 0x00, 0x00, 0x00, // CodeSize = 5
		0x01, 0x00, 0x00, 0x11, // LocalVarSigTok = 0x11000001
		0x00, 0x01, 0x02, 0x03, 0x2a, // 5 bytes of IL
	}

	f, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}

	mb, err := f.readMethodBody(0)
	if err != nil {
		t.Fatalf("readMethodBody: %v", err)
	}
	if mb.HeaderSize != 12 || mb.CodeOffset != 12 || mb.CodeSize != 5 || mb.TotalSize != 17 {
		t.Fatalf("got %+v, want HeaderSize=12 CodeOffset=12 CodeSize=5 TotalSize=17", mb)
	}
	if mb.MaxStack != 8 || mb.LocalVarSigTok != 0x11000001 {
		t.Fatalf("got MaxStack=%d LocalVarSigTok=%x, want 8, 0x11000001", mb.MaxStack, mb.LocalVarSigTok)
	}
}

func TestReadMethodBodyRejectsUnknownFormat(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x00}
	f, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	if _, err := f.readMethodBody(0); err == nil {
		t.Fatalf("expected an error for an unrecognized format byte")
	}
}
