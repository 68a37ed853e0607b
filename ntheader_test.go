// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

import (
	"encoding/binary"
	"testing"
)

func TestParseNTHeaderPE32(t *testing.T) {
	const lfanew = 64
	data := make([]byte, 320)

	binary.LittleEndian.PutUint32(data[lfanew:], ImageNTSignature)
	// FileHeader follows the 4-byte signature; leave zeroed, it's not
	// validated beyond the signature.

	optHdrOffset := lfanew + 4 + 20 // Signature + ImageFileHeader
	binary.LittleEndian.PutUint16(data[optHdrOffset:], ImageNtOptionalHdr32Magic)

	dataDirOffset := optHdrOffset + 2 + 26 + 4 + 60 + 4
	clrEntryOffset := dataDirOffset + ImageDirectoryEntryCLR*8
	binary.LittleEndian.PutUint32(data[clrEntryOffset:], 0x2000)
	binary.LittleEndian.PutUint32(data[clrEntryOffset+4:], 0x48)

	f, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	f.DOSHeader.AddressOfNewEXEHeader = lfanew

	if err := f.ParseNTHeader(); err != nil {
		t.Fatalf("ParseNTHeader: %v", err)
	}
	if f.Is64 {
		t.Fatalf("Is64 = true, want false for a PE32 optional header")
	}

	dir := f.dataDirectory(ImageDirectoryEntryCLR)
	if dir.VirtualAddress != 0x2000 || dir.Size != 0x48 {
		t.Fatalf("CLR data directory = %+v, want {0x2000 0x48}", dir)
	}
}

func TestParseNTHeaderBadSignature(t *testing.T) {
	data := make([]byte, 128)
	f, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	f.DOSHeader.AddressOfNewEXEHeader = 0

	if err := f.ParseNTHeader(); err == nil {
		t.Fatalf("expected an error for a missing PE signature")
	}
}
