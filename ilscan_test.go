// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

import "testing"

func TestScanILExtractsTokens(t *testing.T) {
	// nop; ldarg.0; call <token 0x0A000001>; pop; ret
	code := []byte{
		0x00,
		0x02,
		0x28, 0x01, 0x00, 0x00, 0x0A,
		0x26,
		0x2a,
	}

	var tokens []uint32
	var totalLen uint32
	err := scanIL(code, func(inst ilInstruction) {
		totalLen += inst.Length
		if inst.HasToken {
			tokens = append(tokens, inst.Token)
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totalLen != uint32(len(code)) {
		t.Fatalf("instruction lengths sum to %d, want %d", totalLen, len(code))
	}
	if len(tokens) != 1 || tokens[0] != 0x0A000001 {
		t.Fatalf("tokens = %x, want [0x0A000001]", tokens)
	}
}

func TestScanILForwardProgressOnUnknownOpcode(t *testing.T) {
	// An opcode this scanner doesn't specially classify must still advance
	// by exactly one byte (the InlineNone default), never looping forever.
	code := []byte{0x17, 0x18, 0x19, 0x2a}
	count := 0
	err := scanIL(code, func(ilInstruction) { count++ })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != len(code) {
		t.Fatalf("got %d instructions, want %d (one per byte)", count, len(code))
	}
}

func TestDecodeMetadataToken(t *testing.T) {
	table, row := decodeMetadataToken(0x06000003)
	if table != MethodDef || row != 3 {
		t.Fatalf("decodeMetadataToken(0x06000003) = %d, %d; want %d, 3", table, row, MethodDef)
	}
}
