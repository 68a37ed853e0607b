// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

import (
	"bytes"
	"encoding/binary"
	"errors"

	"golang.org/x/text/encoding/unicode"
)

const (
	// TinyPESize is the smallest possible PE file size, matching the
	// smallest executable a Windows loader will accept.
	TinyPESize = 97

	// BSJBSignature is the magic 4 bytes ("BSJB") every CLI metadata root
	// begins with.
	BSJBSignature = 0x424A5342
)

// Errors.
var (
	// ErrInvalidPESize is returned when the file is smaller than the
	// smallest possible PE file.
	ErrInvalidPESize = errors.New("not a PE file, smaller than tiny PE")

	// ErrDOSMagicNotFound is returned when the MZ signature is missing.
	ErrDOSMagicNotFound = errors.New("DOS header magic not found")

	// ErrInvalidElfanewValue is returned when e_lfanew points beyond the
	// file.
	ErrInvalidElfanewValue = errors.New("invalid e_lfanew value, probably not a PE file")

	// ErrImageNtSignatureNotFound is returned when the PE\0\0 signature is
	// missing.
	ErrImageNtSignatureNotFound = errors.New("not a valid PE signature, magic not found")

	// ErrImageNtOptionalHeaderMagicNotFound is returned when the optional
	// header magic is neither PE32 nor PE32+.
	ErrImageNtOptionalHeaderMagicNotFound = errors.New("not a valid PE signature, optional header magic not found")

	// ErrOutsideBoundary is returned when a read would run past the end of
	// the image.
	ErrOutsideBoundary = errors.New("reading data outside image boundary")

	// ErrNoCLRHeader is returned when the image has no CLR data directory.
	ErrNoCLRHeader = errors.New("image has no CLR header")

	// ErrBSJBSignatureNotFound is returned when the metadata root does not
	// start with the BSJB signature.
	ErrBSJBSignatureNotFound = errors.New("metadata root signature (BSJB) not found")

	// ErrMalformedBlob is returned when a compressed integer's leading byte
	// does not match any of the three recognized bit patterns, or the blob
	// is truncated.
	ErrMalformedBlob = errors.New("malformed compressed integer or truncated blob")
)

// ReadUint64 reads a little-endian uint64 at offset.
func (f *File) ReadUint64(offset uint32) (uint64, error) {
	if offset > f.size-8 || offset+8 < offset {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint64(f.data[offset:]), nil
}

// ReadUint32 reads a little-endian uint32 at offset.
func (f *File) ReadUint32(offset uint32) (uint32, error) {
	if offset > f.size-4 || offset+4 < offset {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint32(f.data[offset:]), nil
}

// ReadUint16 reads a little-endian uint16 at offset.
func (f *File) ReadUint16(offset uint32) (uint16, error) {
	if offset > f.size-2 || offset+2 < offset {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint16(f.data[offset:]), nil
}

// ReadUint8 reads a byte at offset.
func (f *File) ReadUint8(offset uint32) (uint8, error) {
	if offset+1 > f.size || offset+1 < offset {
		return 0, ErrOutsideBoundary
	}
	return f.data[offset], nil
}

// ReadBytesAtOffset returns a slice of size bytes starting at offset.
func (f *File) ReadBytesAtOffset(offset, size uint32) ([]byte, error) {
	total := offset + size
	if (total > offset) != (size > 0) {
		return nil, ErrOutsideBoundary
	}
	if offset > f.size || total > f.size {
		return nil, ErrOutsideBoundary
	}
	return f.data[offset:total], nil
}

func (f *File) structUnpack(iface interface{}, offset, size uint32) error {
	total := offset + size
	if (total > offset) != (size > 0) {
		return ErrOutsideBoundary
	}
	if offset > f.size || total > f.size {
		return ErrOutsideBoundary
	}
	r := bytes.NewReader(f.data[offset:total])
	return binary.Read(r, binary.LittleEndian, iface)
}

// getStringAtOffset reads a size-byte NUL-stripped string at offset, used
// for the metadata root's version string.
func (f *File) getStringAtOffset(offset, size uint32) (string, error) {
	b, err := f.ReadBytesAtOffset(offset, size)
	if err != nil {
		return "", err
	}
	n := bytes.IndexByte(b, 0)
	if n < 0 {
		n = len(b)
	}
	return string(b[:n]), nil
}

// IsBitSet returns true when the bit at pos is set in n.
func IsBitSet(n uint64, pos int) bool {
	return n&(1<<uint(pos)) != 0
}

// Max returns the larger of x or y.
func Max(x, y uint32) uint32 {
	if x < y {
		return y
	}
	return x
}

// DecodeUTF16String decodes a little-endian, NUL-terminated or
// NUL-delimited UTF-16 byte run such as a #US heap entry. Nothing in the
// trim path calls it.
func DecodeUTF16String(b []byte) (string, error) {
	n := bytes.Index(b, []byte{0, 0})
	if n == 0 {
		return "", nil
	}
	if n < 0 {
		n = len(b)
	} else {
		n++
	}
	if n > len(b) {
		n = len(b)
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	s, err := decoder.Bytes(b[:n])
	if err != nil {
		return "", err
	}
	return string(s), nil
}
