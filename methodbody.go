// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

// Method Body Reader (spec.md §4.6, ECMA-335 §II.25.4). A method body is
// either a "tiny" header (a single byte carrying the IL size) or a "fat"
// header (12 bytes carrying flags, max stack, IL size, and a local-variable
// signature token), optionally followed by one or more exception-handling
// clause sections. This module only needs the IL byte range and the local
// signature token: the trimmers zero only the IL code bytes, leaving the
// header and any trailing EH sections as they are. TotalSize still records
// where the full footprint (including trailing EH sections) ends, without
// decoding the clauses.

const (
	corILMethodTinyFormat = 0x02
	corILMethodFatFormat  = 0x03
	corILMethodFormatMask = 0x03
	corILMethodMoreSects  = 0x08
	corILMethodInitLocals = 0x10

	corILMethodSectEHTable  = 0x01
	corILMethodSectFatFormat = 0x40
	corILMethodSectMoreSects = 0x80
)

// MethodBody is the decoded shape of a method's IL body as laid out at a
// given file offset.
type MethodBody struct {
	// Offset is the absolute file offset of the header's first byte.
	Offset uint32
	// HeaderSize is 1 for tiny, 12 for fat.
	HeaderSize uint32
	// CodeOffset/CodeSize bound the raw IL bytes, relative to Offset.
	CodeOffset uint32
	CodeSize   uint32
	// LocalVarSigTok is the StandAloneSig token for local variables (fat
	// headers only), 0 if absent.
	LocalVarSigTok uint32
	MaxStack       uint16
	Flags          uint16
	// TotalSize is the full on-disk footprint: header + code + any EH
	// sections, rounded as ECMA-335 requires (4-byte alignment before each
	// section, EH sections are 4-byte aligned as a whole).
	TotalSize uint32
}

// readMethodBody decodes the method header at offset and walks any trailing
// EH sections purely to measure their size; it never interprets clause
// contents, since no clause carries a metadata token this engine trims.
func (f *File) readMethodBody(offset uint32) (*MethodBody, error) {
	first, err := f.ReadUint8(offset)
	if err != nil {
		return nil, err
	}

	mb := &MethodBody{Offset: offset}

	switch first & corILMethodFormatMask {
	case corILMethodTinyFormat:
		mb.HeaderSize = 1
		mb.CodeOffset = 1
		mb.CodeSize = uint32(first) >> 2
		mb.TotalSize = mb.HeaderSize + mb.CodeSize
		return mb, nil

	case corILMethodFatFormat:
		flagsAndSize, err := f.ReadUint16(offset)
		if err != nil {
			return nil, err
		}
		mb.Flags = flagsAndSize & 0x0FFF
		headerWords := flagsAndSize >> 12
		mb.HeaderSize = uint32(headerWords) * 4
		if mb.HeaderSize < 12 {
			mb.HeaderSize = 12
		}

		if mb.MaxStack, err = f.ReadUint16(offset + 2); err != nil {
			return nil, err
		}
		if mb.CodeSize, err = f.ReadUint32(offset + 4); err != nil {
			return nil, err
		}
		if mb.LocalVarSigTok, err = f.ReadUint32(offset + 8); err != nil {
			return nil, err
		}
		mb.CodeOffset = mb.HeaderSize

		total := mb.HeaderSize + mb.CodeSize
		if mb.Flags&corILMethodMoreSects != 0 {
			sectOff := offset + total
			// Each EH section starts at the next 4-byte-aligned file
			// offset.
			sectOff = (sectOff + 3) &^ 3
			for {
				rel := sectOff - offset
				kind, err := f.ReadUint8(sectOff)
				if err != nil {
					return nil, err
				}
				var sectSize uint32
				if kind&corILMethodSectFatFormat != 0 {
					sz, err := f.ReadUint32(sectOff)
					if err != nil {
						return nil, err
					}
					sectSize = sz >> 8
				} else {
					sz, err := f.ReadUint8(sectOff + 1)
					if err != nil {
						return nil, err
					}
					sectSize = uint32(sz)
				}
				total = rel + sectSize
				more := kind&corILMethodSectMoreSects != 0
				sectOff += sectSize
				sectOff = (sectOff + 3) &^ 3
				if !more {
					break
				}
			}
		}
		mb.TotalSize = total
		return mb, nil

	default:
		return nil, ErrMalformedBlob
	}
}
