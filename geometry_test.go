// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

import "testing"

func smallGeometry() *geometry {
	var counts [NumTables]uint32
	counts[Module] = 1
	counts[TypeRef] = 2
	return newGeometry(counts, 2, 2, 2, 0)
}

func TestRowSizeNarrowCodedIndex(t *testing.T) {
	g := smallGeometry()

	// Module: col2 + colString(2) + 3*colGUID(2) = 2 + 2 + 2+2+2 = 10
	if got := g.rowSize(Module); got != 10 {
		t.Fatalf("rowSize(Module) = %d, want 10", got)
	}

	// TypeRef: colIdxResolutionScope(2, since max row count over its target
	// tables is tiny) + colString(2) + colString(2) = 6
	if got := g.rowSize(TypeRef); got != 6 {
		t.Fatalf("rowSize(TypeRef) = %d, want 6", got)
	}
}

func TestRowOffsetAccumulatesAcrossTables(t *testing.T) {
	g := smallGeometry()

	moduleRowSize := g.rowSize(Module)
	wantTypeRefBase := moduleRowSize * g.rowCounts[Module]
	if got := g.rowOffset(TypeRef, 0); got != wantTypeRefBase {
		t.Fatalf("rowOffset(TypeRef, 0) = %d, want %d", got, wantTypeRefBase)
	}

	typeRefRowSize := g.rowSize(TypeRef)
	if got := g.rowOffset(TypeRef, 1); got != wantTypeRefBase+typeRefRowSize {
		t.Fatalf("rowOffset(TypeRef, 1) = %d, want %d", got, wantTypeRefBase+typeRefRowSize)
	}
}

func TestCodedIndexRoundTrip(t *testing.T) {
	value, ok := encodeCodedIndex(colIdxTypeDefOrRef, TypeRef, 1)
	if !ok {
		t.Fatalf("encodeCodedIndex: unexpected false")
	}

	table, row := decodeCodedIndex(colIdxTypeDefOrRef, value)
	if table != TypeRef || row != 1 {
		t.Fatalf("decodeCodedIndex(%d) = %d, %d; want TypeRef, 1", value, table, row)
	}
}

func TestCodedIndexWidensWithLargeRowCount(t *testing.T) {
	var counts [NumTables]uint32
	counts[TypeDef] = 1 << 16 // forces colIdxTypeDefOrRef (2 tag bits) to 4 bytes
	g := newGeometry(counts, 2, 2, 2, 0)

	if got := g.columnWidth(colIdxTypeDefOrRef); got != 4 {
		t.Fatalf("columnWidth(colIdxTypeDefOrRef) = %d, want 4 once TypeDef exceeds 2^14 rows", got)
	}
}

func TestTableByteRangeMatchesRowCount(t *testing.T) {
	g := smallGeometry()
	start, end := g.tableByteRange(TypeRef)
	if end-start != g.rowSize(TypeRef)*g.rowCounts[TypeRef] {
		t.Fatalf("tableByteRange span = %d, want %d", end-start, g.rowSize(TypeRef)*g.rowCounts[TypeRef])
	}
}

// TestHasCustomAttributeDecodesMethodDefAtTagZero guards against the
// regression where MethodDef was missing from colIdxHasCustomAttribute's
// candidate list: per ECMA-335 §II.24.2.6, MethodDef is tag 0, so a
// CustomAttribute attached to a method must decode back to that MethodDef
// row, not to whichever table happened to sit first in an incomplete list.
func TestHasCustomAttributeDecodesMethodDefAtTagZero(t *testing.T) {
	value, ok := encodeCodedIndex(colIdxHasCustomAttribute, MethodDef, 7)
	if !ok {
		t.Fatalf("encodeCodedIndex(MethodDef, 7): unexpected false")
	}
	table, row := decodeCodedIndex(colIdxHasCustomAttribute, value)
	if table != MethodDef || row != 7 {
		t.Fatalf("decodeCodedIndex(%d) = %d, %d; want MethodDef, 7", value, table, row)
	}
}

// TestHasCustomAttributeCoversAllTwentyTwoTables guards against a
// mis-ordered or truncated candidate list going unnoticed: every table
// ECMA-335 §II.24.2.6 lists for HasCustomAttribute must round-trip.
func TestHasCustomAttributeCoversAllTwentyTwoTables(t *testing.T) {
	want := []int{MethodDef, Field, TypeRef, TypeDef, Param, InterfaceImpl, MemberRef, Module, DeclSecurity, Property, Event, StandAloneSig, ModuleRef, TypeSpec, Assembly, AssemblyRef, FileMD, ExportedType, ManifestResource, GenericParam, GenericParamConstraint, MethodSpec}

	spec := codedIndexSpecs[colIdxHasCustomAttribute]
	if len(spec.tables) != len(want) {
		t.Fatalf("colIdxHasCustomAttribute has %d candidate tables, want %d", len(spec.tables), len(want))
	}
	for tag, table := range want {
		if spec.tables[tag] != table {
			t.Fatalf("colIdxHasCustomAttribute tag %d = table %d, want %d", tag, spec.tables[tag], table)
		}
	}
}

// TestCustomAttributeTypeDecodesAtTagsTwoAndThree guards against the
// regression where MethodDef/MemberRef sat at tags 0/1 instead of the real
// 2/3, which both misattributes small values and returns (-1, 0) for any
// real-world tag-2/3 value once the table's length no longer covers it.
func TestCustomAttributeTypeDecodesAtTagsTwoAndThree(t *testing.T) {
	mdValue, ok := encodeCodedIndex(colIdxCustomAttributeType, MethodDef, 4)
	if !ok {
		t.Fatalf("encodeCodedIndex(MethodDef, 4): unexpected false")
	}
	if table, row := decodeCodedIndex(colIdxCustomAttributeType, mdValue); table != MethodDef || row != 4 {
		t.Fatalf("decodeCodedIndex(%d) = %d, %d; want MethodDef, 4", mdValue, table, row)
	}

	mrValue, ok := encodeCodedIndex(colIdxCustomAttributeType, MemberRef, 9)
	if !ok {
		t.Fatalf("encodeCodedIndex(MemberRef, 9): unexpected false")
	}
	if table, row := decodeCodedIndex(colIdxCustomAttributeType, mrValue); table != MemberRef || row != 9 {
		t.Fatalf("decodeCodedIndex(%d) = %d, %d; want MemberRef, 9", mrValue, table, row)
	}

	// Reserved tags 0 and 1 must decode as invalid, not alias to any real table.
	for tag := uint32(0); tag < 2; tag++ {
		table, _ := decodeCodedIndex(colIdxCustomAttributeType, tag)
		if table >= 0 {
			t.Fatalf("decodeCodedIndex(tag %d) = table %d, want invalid (< 0)", tag, table)
		}
	}
}
