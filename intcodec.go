// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

// Compressed Integer Codec (spec.md §4.4, ECMA-335 §II.23.2). Blob and
// signature content packs unsigned (and, in signatures, zig-zag signed)
// integers into 1, 2, or 4 bytes depending on the value's magnitude; every
// signature/blob reader in this module advances through a byte slice using
// decodeCompressedUint rather than assuming a fixed-width field.

// decodeCompressedUint decodes one ECMA-335 compressed unsigned integer
// from the front of b, returning the value and the number of bytes
// consumed. It returns ErrMalformedBlob if b is empty or the leading byte's
// high bits don't match any of the three recognized encodings.
func decodeCompressedUint(b []byte) (uint32, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrMalformedBlob
	}

	first := b[0]
	switch {
	case first&0x80 == 0:
		// 0xxxxxxx: one byte, value 0..0x7F.
		return uint32(first), 1, nil

	case first&0xC0 == 0x80:
		// 10xxxxxx xxxxxxxx: two bytes, value 0x80..0x3FFF.
		if len(b) < 2 {
			return 0, 0, ErrMalformedBlob
		}
		v := uint32(first&0x3F)<<8 | uint32(b[1])
		return v, 2, nil

	case first&0xE0 == 0xC0:
		// 110xxxxx xxxxxxxx xxxxxxxx xxxxxxxx: four bytes, value
		// 0x4000..0x1FFFFFFF.
		if len(b) < 4 {
			return 0, 0, ErrMalformedBlob
		}
		v := uint32(first&0x1F)<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
		return v, 4, nil

	default:
		return 0, 0, ErrMalformedBlob
	}
}

// decodeCompressedInt decodes an ECMA-335 compressed *signed* integer: the
// same three-width unsigned encoding as decodeCompressedUint, carrying a
// zig-zag-encoded value (bit 0 is the sign, the remaining bits are the
// magnitude doubled and decremented for negatives) so small magnitudes of
// either sign stay packed in the smallest width. Used only for array
// lower-bound entries in ARRAY signatures (ECMA-335 §II.23.2.13), which are
// rarely negative and rarely present at all.
func decodeCompressedInt(b []byte) (int32, int, error) {
	u, n, err := decodeCompressedUint(b)
	if err != nil {
		return 0, 0, err
	}
	return decodeZigZag(u), n, nil
}

// decodeZigZag inverts the zig-zag mapping: 0,1,2,3,4,... -> 0,-1,1,-2,2,...
func decodeZigZag(u uint32) int32 {
	return int32(u>>1) ^ -int32(u&1)
}

// encodeZigZag maps a signed value onto the zig-zag unsigned domain;
// provided for symmetry and used by tests to round-trip decodeCompressedInt.
func encodeZigZag(v int32) uint32 {
	return uint32((v << 1) ^ (v >> 31))
}
