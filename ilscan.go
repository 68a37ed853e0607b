// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

// IL Token Scanner (spec.md §4.7, ECMA-335 §III.1 / Partition III opcode
// tables). Walks a method body's IL byte range one instruction at a time,
// classifying each opcode by its operand shape so the scanner always makes
// forward progress (every opcode, recognized or not, advances by at least
// one byte) and extracting the 4-byte metadata token operand from the
// handful of opcodes that carry one.

// operandKind classifies how many bytes follow an opcode and whether those
// bytes are a metadata token this engine must treat as a reachability edge.
type operandKind int

const (
	operandNone operandKind = iota
	operandI1
	operandI2
	operandI4
	operandI8
	operandR4
	operandR8
	operandToken  // 4-byte token into MethodDef/MemberRef/Field/TypeRef/TypeDef/TypeSpec/StandAloneSig/etc.
	operandString // 4-byte token into the #US heap, not a table row
	operandSwitch // 4-byte count N, followed by N 4-byte branch offsets
)

type opcodeInfo struct {
	operand operandKind
}

// oneByteOps classifies every single-byte opcode that is not the 0xFE
// two-byte escape and not plain InlineNone (the default for any opcode
// absent from this map).
var oneByteOps = map[byte]opcodeInfo{
	0x0e: {operandI1},  // ldarg.s
	0x0f: {operandI1},  // ldarga.s
	0x10: {operandI1},  // starg.s
	0x11: {operandI1},  // ldloc.s
	0x12: {operandI1},  // ldloca.s
	0x13: {operandI1},  // stloc.s
	0x1f: {operandI1},  // ldc.i4.s
	0x20: {operandI4},  // ldc.i4
	0x21: {operandI8},  // ldc.i8
	0x22: {operandR4},  // ldc.r4
	0x23: {operandR8},  // ldc.r8
	0x27: {operandI4},  // jmp
	0x28: {operandToken}, // call
	0x29: {operandToken}, // calli (a StandAloneSig token)
	0x2b: {operandI1},  // br.s
	0x2c: {operandI1},  // brfalse.s
	0x2d: {operandI1},  // brtrue.s
	0x2e: {operandI1},  // beq.s
	0x2f: {operandI1},  // bge.s
	0x30: {operandI1},  // bgt.s
	0x31: {operandI1},  // ble.s
	0x32: {operandI1},  // blt.s
	0x33: {operandI1},  // bne.un.s
	0x34: {operandI1},  // bge.un.s
	0x35: {operandI1},  // bgt.un.s
	0x36: {operandI1},  // ble.un.s
	0x37: {operandI1},  // blt.un.s
	0x38: {operandI4},  // br
	0x39: {operandI4},  // brfalse
	0x3a: {operandI4},  // brtrue
	0x3b: {operandI4},  // beq
	0x3c: {operandI4},  // bge
	0x3d: {operandI4},  // bgt
	0x3e: {operandI4},  // ble
	0x3f: {operandI4},  // blt
	0x40: {operandI4},  // bne.un
	0x41: {operandI4},  // bge.un
	0x42: {operandI4},  // bgt.un
	0x43: {operandI4},  // ble.un
	0x44: {operandI4},  // blt.un
	0x45: {operandSwitch},
	0x6f: {operandToken}, // callvirt
	0x70: {operandToken}, // cpobj (typetok)
	0x71: {operandToken}, // ldobj
	0x72: {operandString}, // ldstr
	0x73: {operandToken}, // newobj
	0x74: {operandToken}, // castclass
	0x75: {operandToken}, // isinst
	0x79: {operandToken}, // unbox
	0x7b: {operandToken}, // ldfld
	0x7c: {operandToken}, // ldflda
	0x7d: {operandToken}, // stfld
	0x7e: {operandToken}, // ldsfld
	0x7f: {operandToken}, // ldsflda
	0x80: {operandToken}, // stsfld
	0x81: {operandToken}, // stobj
	0x8c: {operandToken}, // box
	0x8d: {operandToken}, // newarr
	0x8f: {operandToken}, // ldelema
	0xa3: {operandToken}, // ldelem
	0xa4: {operandToken}, // stelem
	0xa5: {operandToken}, // unbox.any
	0xc2: {operandToken}, // refanyval
	0xc6: {operandToken}, // mkrefany
	0xd0: {operandToken}, // ldtoken
	0xdd: {operandI4},  // leave
	0xde: {operandI1},  // leave.s
	0xfe: {operandNone},  // escape byte, handled specially by the scanner
}

// twoByteOps classifies opcodes following the 0xFE escape byte.
var twoByteOps = map[byte]opcodeInfo{
	0x06: {operandToken}, // ldftn
	0x07: {operandToken}, // ldvirtftn
	0x09: {operandI2},    // ldarg
	0x0a: {operandI2},    // ldarga
	0x0b: {operandI2},    // starg
	0x0c: {operandI2},    // ldloc
	0x0d: {operandI2},    // ldloca
	0x0e: {operandI2},    // stloc
	0x15: {operandToken}, // initobj
	0x16: {operandToken}, // constrained.
	0x1a: {operandToken}, // sizeof
}

// ilInstruction is one decoded instruction: its offset within the code
// range, total encoded length, and (if any) its metadata token operand.
type ilInstruction struct {
	Offset      uint32
	Length      uint32
	Token       uint32 // valid only when HasToken
	HasToken    bool
	USOffset    uint32 // valid only when HasUSOffset: low 24 bits of a ldstr operand
	HasUSOffset bool
}

// scanIL walks code[0:len(code)] one instruction at a time, invoking visit
// for every decoded instruction. It never returns early on an unrecognized
// opcode: InlineNone is the default classification, which still advances by
// exactly one byte, preserving the forward-progress invariant even for
// opcodes absent from oneByteOps/twoByteOps.
func scanIL(code []byte, visit func(ilInstruction)) error {
	pos := uint32(0)
	n := uint32(len(code))

	for pos < n {
		start := pos
		op := code[pos]
		pos++

		var info opcodeInfo
		if op == 0xfe {
			if pos >= n {
				return ErrMalformedBlob
			}
			op2 := code[pos]
			pos++
			info = twoByteOps[op2]
		} else {
			info = oneByteOps[op]
		}

		inst := ilInstruction{Offset: start}

		switch info.operand {
		case operandNone:
		case operandI1:
			pos += 1
		case operandI2:
			pos += 2
		case operandI4:
			pos += 4
		case operandI8, operandR8:
			pos += 8
		case operandR4:
			pos += 4
		case operandToken:
			if pos+4 > n {
				return ErrMalformedBlob
			}
			inst.Token = uint32(code[pos]) | uint32(code[pos+1])<<8 | uint32(code[pos+2])<<16 | uint32(code[pos+3])<<24
			inst.HasToken = true
			pos += 4
		case operandString:
			if pos+4 > n {
				return ErrMalformedBlob
			}
			tok := uint32(code[pos]) | uint32(code[pos+1])<<8 | uint32(code[pos+2])<<16 | uint32(code[pos+3])<<24
			inst.USOffset = tok & 0x00FFFFFF
			inst.HasUSOffset = true
			pos += 4
		case operandSwitch:
			if pos+4 > n {
				return ErrMalformedBlob
			}
			count := uint32(code[pos]) | uint32(code[pos+1])<<8 | uint32(code[pos+2])<<16 | uint32(code[pos+3])<<24
			pos += 4 + count*4
		}

		if pos > n {
			return ErrMalformedBlob
		}

		inst.Length = pos - start
		visit(inst)
	}

	return nil
}

// decodeMetadataToken splits a raw 4-byte IL token into its table ID (the
// top byte) and 1-based row (the low 3 bytes), per ECMA-335 §II.22.
func decodeMetadataToken(token uint32) (table int, row uint32) {
	return int(token >> 24), token & 0x00FFFFFF
}
