// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

import "encoding/binary"

// Image signatures.
const (
	ImageDOSSignature   = 0x5A4D // MZ
	ImageDOSZMSignature = 0x4D5A // ZM
	ImageNTSignature    = 0x00004550
)

// ImageDOSHeader is the small MS-DOS stub every PE file begins with. The
// signature, the next four header words, and the e_lfanew offset to the NT
// headers are given names; the 50 bytes in between are padding. Only the
// signature and e_lfanew are checked by ParseDOSHeader.
type ImageDOSHeader struct {
	Magic                 uint16
	BytesOnLastPageOfFile uint16
	PagesInFile           uint16
	Relocations           uint16
	SizeOfHeader          uint16
	_                     [50]byte
	AddressOfNewEXEHeader uint32
}

// ParseDOSHeader parses the DOS header stub at file offset 0.
func (f *File) ParseDOSHeader() error {
	size := uint32(binary.Size(f.DOSHeader))
	if err := f.structUnpack(&f.DOSHeader, 0, size); err != nil {
		return err
	}

	if f.DOSHeader.Magic != ImageDOSSignature && f.DOSHeader.Magic != ImageDOSZMSignature {
		return ErrDOSMagicNotFound
	}

	if f.DOSHeader.AddressOfNewEXEHeader < 4 || f.DOSHeader.AddressOfNewEXEHeader > f.size {
		return ErrInvalidElfanewValue
	}

	return nil
}
