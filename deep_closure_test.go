// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

import "testing"

func TestTokenOfMatchesILTokenEncoding(t *testing.T) {
	// ECMA-335 §II.22: a token is table<<24 | 1-based row, same shape
	// decodeMetadataToken already assumes for IL operands.
	got := tokenOf(TypeRef, 3)
	table, row := decodeMetadataToken(got)
	if table != TypeRef || row != 3 {
		t.Fatalf("tokenOf/decodeMetadataToken round-trip = (%d, %d), want (TypeRef, 3)", table, row)
	}
}

func TestSeedTypeDefMarksExtendsAndInterfaces(t *testing.T) {
	f := &File{CLR: CLRData{}}
	f.CLR.Tables[TypeDef] = &MetadataTable{
		ID:       TypeDef,
		RowCount: 1,
		// Extends = TypeDefOrRef coded index tag=1 (TypeRef), row=1 -> (1<<2)|1 = 5
		rows: [][]uint32{{0, 0, 0, 5, 0, 0}},
	}
	f.CLR.Tables[InterfaceImpl] = &MetadataTable{
		ID:       InterfaceImpl,
		RowCount: 1,
		// owning TypeDef row = 1 (1-based), Interface = TypeDefOrRef tag=1(TypeRef) row=2 -> (2<<2)|1 = 9
		rows: [][]uint32{{1, 9}},
	}

	dr := &deepReach{f: f, tokens: map[uint32]bool{}, blobs: map[uint32]bool{}, us: map[uint32]bool{}}
	if err := f.seedTypeDef(dr, 0); err != nil {
		t.Fatalf("seedTypeDef: %v", err)
	}

	if !dr.tokens[tokenOf(TypeDef, 1)] {
		t.Fatalf("seeded type's own token missing")
	}
	if !dr.tokens[tokenOf(TypeRef, 1)] {
		t.Fatalf("Extends target (TypeRef row 1) not marked reachable")
	}
	if !dr.tokens[tokenOf(InterfaceImpl, 1)] {
		t.Fatalf("owned InterfaceImpl row not marked reachable")
	}
	if !dr.tokens[tokenOf(TypeRef, 2)] {
		t.Fatalf("InterfaceImpl's Interface target (TypeRef row 2) not marked reachable")
	}
}

func TestCloseOnePassFollowsMemberRefParentAndSignature(t *testing.T) {
	// Blob heap entry at index 1: length-prefix 5, then a method sig:
	// default calling convention, 1 param, return VOID, param CLASS <tag=TypeDef(0), row=2>
	blobHeap := []byte{
		0x00,       // padding (index 0 never read)
		0x05,       // length prefix = 5
		0x00, 0x01, // calling convention, param count
		ElementTypeVoid,
		ElementTypeClass, 0x08, // CLASS <TypeDefOrRef tag=0(TypeDef) row=2>
	}
	f, err := NewBytes(blobHeap, nil)
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	// MemberRef row 1: Parent = MemberRefParent coded index tag=1(TypeRef) row=7 -> (7<<3)|1 = 57
	// blob idx 1 -> a method sig referencing TypeDef row 2 via CLASS.
	f.CLR.Tables[MemberRef] = &MetadataTable{
		ID:       MemberRef,
		RowCount: 1,
		rows:     [][]uint32{{57, 0, 1}},
	}
	f.CLR.BlobHeapOffset = 0
	f.CLR.BlobHeapSize = uint32(len(blobHeap))

	dr := &deepReach{f: f, tokens: map[uint32]bool{tokenOf(MemberRef, 1): true}, blobs: map[uint32]bool{}, us: map[uint32]bool{}}

	if added := f.closeOnePass(dr); !added {
		t.Fatalf("expected closeOnePass to report progress on first pass")
	}
	if !dr.tokens[tokenOf(TypeRef, 7)] {
		t.Fatalf("MemberRef's Parent (TypeRef row 7) not marked reachable")
	}
	if !dr.tokens[tokenOf(TypeDef, 2)] {
		t.Fatalf("MemberRef signature's embedded CLASS ref (TypeDef row 2) not marked reachable")
	}

	if added := f.closeOnePass(dr); added {
		t.Fatalf("second pass should report no further progress, fixed point already reached")
	}
}

// TestSweepCustomAttributesMarksOwnerAtMethodDefTag verifies the
// HasCustomAttribute/CustomAttributeType fix directly: a CustomAttribute
// row whose Parent decodes to a preserved MethodDef (tag 0) must be marked
// reachable along with its Type (MethodDef tag 2) and Value blob, while a
// row whose Parent is not in the preserved set stays unreachable.
func TestSweepCustomAttributesMarksOwnerAtMethodDefTag(t *testing.T) {
	f := &File{CLR: CLRData{}}

	parentLive, _ := encodeCodedIndex(colIdxHasCustomAttribute, MethodDef, 1)
	typeLive, _ := encodeCodedIndex(colIdxCustomAttributeType, MethodDef, 3)
	parentDead, _ := encodeCodedIndex(colIdxHasCustomAttribute, Field, 99)
	typeDead, _ := encodeCodedIndex(colIdxCustomAttributeType, MemberRef, 5)

	f.CLR.Tables[CustomAttribute] = &MetadataTable{
		ID:       CustomAttribute,
		RowCount: 2,
		rows: [][]uint32{
			{parentLive, typeLive, 11}, // row 1: owned by preserved MethodDef(1)
			{parentDead, typeDead, 22}, // row 2: owned by an unreferenced Field
		},
	}

	dr := &deepReach{f: f, tokens: map[uint32]bool{tokenOf(MethodDef, 1): true}, blobs: map[uint32]bool{}, us: map[uint32]bool{}}
	f.sweepCustomAttributes(dr)

	if !dr.tokens[tokenOf(CustomAttribute, 1)] {
		t.Fatalf("CustomAttribute row 1 (owned by a live MethodDef) not marked reachable")
	}
	if !dr.tokens[tokenOf(MethodDef, 3)] {
		t.Fatalf("CustomAttribute row 1's Type (MethodDef row 3, tag 2) not marked reachable")
	}
	if !dr.blobs[11] {
		t.Fatalf("CustomAttribute row 1's Value blob (idx 11) not marked reachable")
	}

	if dr.tokens[tokenOf(CustomAttribute, 2)] {
		t.Fatalf("CustomAttribute row 2 (owned by an unreferenced Field) should stay unreachable")
	}
	if dr.blobs[22] {
		t.Fatalf("CustomAttribute row 2's Value blob should stay unreachable")
	}
}
