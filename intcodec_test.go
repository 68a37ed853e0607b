// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

import "testing"

// Worked examples straight from ECMA-335 §II.23.2.
func TestDecodeCompressedUint(t *testing.T) {
	tests := []struct {
		name     string
		in       []byte
		want     uint32
		wantN    int
	}{
		{"one byte min", []byte{0x03}, 0x03, 1},
		{"one byte max", []byte{0x7F}, 0x7F, 1},
		{"two byte min", []byte{0x80, 0x80}, 0x80, 2},
		{"two byte mid", []byte{0xAE, 0x57}, 0x2E57, 2},
		{"two byte max", []byte{0xBF, 0xFF}, 0x3FFF, 2},
		{"four byte min", []byte{0xC0, 0x00, 0x40, 0x00}, 0x4000, 4},
		{"four byte max", []byte{0xDF, 0xFF, 0xFF, 0xFF}, 0x1FFFFFFF, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := decodeCompressedUint(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want || n != tt.wantN {
				t.Fatalf("decodeCompressedUint(%x) = %d, %d; want %d, %d", tt.in, got, n, tt.want, tt.wantN)
			}
		})
	}
}

func TestDecodeCompressedUintMalformed(t *testing.T) {
	tests := [][]byte{
		{},
		{0x80},
		{0xC0, 0x00, 0x40},
	}
	for _, in := range tests {
		if _, _, err := decodeCompressedUint(in); err == nil {
			t.Fatalf("decodeCompressedUint(%x): expected error, got nil", in)
		}
	}
}

func TestDecodeCompressedInt(t *testing.T) {
	tests := []struct {
		in   []byte
		want int32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, -1},
		{[]byte{0x02}, 1},
		{[]byte{0x05}, -3},
		{[]byte{0x06}, 3},
	}

	for _, tt := range tests {
		got, _, err := decodeCompressedInt(tt.in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Fatalf("decodeCompressedInt(%x) = %d; want %d", tt.in, got, tt.want)
		}
	}
}

func TestZigZagRoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 63, -64, 1000000, -1000000} {
		if got := decodeZigZag(encodeZigZag(v)); got != v {
			t.Fatalf("round trip %d: got %d", v, got)
		}
	}
}
