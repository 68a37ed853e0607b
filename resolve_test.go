// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

import "testing"

func TestSplitInvokedName(t *testing.T) {
	tests := []struct {
		in         string
		wantType   string
		wantMethod string
	}{
		{"A.M", "A", "M"},
		{"Ns.T.M", "Ns.T", "M"},
		{"MyApp.Widget.Render", "MyApp.Widget", "Render"},
		{"T._ctor", "T", "_ctor"},
		{"T..ctor", "T", "_ctor"},
		{"T._cctor", "T", "_cctor"},
		{"T..cctor", "T", "_cctor"},
		{"Ns.Outer+Inner._cctor", "Ns.Outer+Inner", "_cctor"},
	}

	for _, tt := range tests {
		typeName, methodName := splitInvokedName(tt.in)
		if typeName != tt.wantType || methodName != tt.wantMethod {
			t.Fatalf("splitInvokedName(%q) = %q, %q; want %q, %q",
				tt.in, typeName, methodName, tt.wantType, tt.wantMethod)
		}
	}
}

func TestCanonicalizeCtorName(t *testing.T) {
	if got := canonicalizeCtorName(".ctor"); got != "_ctor" {
		t.Fatalf("canonicalizeCtorName(\".ctor\") = %q, want \"_ctor\"", got)
	}
	if got := canonicalizeCtorName(".cctor"); got != "_cctor" {
		t.Fatalf("canonicalizeCtorName(\".cctor\") = %q, want \"_cctor\"", got)
	}
	if got := canonicalizeCtorName("Render"); got != "Render" {
		t.Fatalf("canonicalizeCtorName(\"Render\") = %q, want \"Render\" (passthrough)", got)
	}
}

func TestIsCompilerPrivate(t *testing.T) {
	if !isCompilerPrivate("<>c__DisplayClass0_0") {
		t.Fatalf("expected <>c__DisplayClass0_0 to be compiler-private")
	}
	if !isCompilerPrivate("<Run>d__3") {
		t.Fatalf("expected <Run>d__3 to be compiler-private")
	}
	if isCompilerPrivate("Widget") {
		t.Fatalf("expected Widget to not be compiler-private")
	}
}

func TestOneBasedToZero(t *testing.T) {
	if oneBasedToZero(0) != 0 {
		t.Fatalf("oneBasedToZero(0) = %d, want 0", oneBasedToZero(0))
	}
	if oneBasedToZero(1) != 0 {
		t.Fatalf("oneBasedToZero(1) = %d, want 0", oneBasedToZero(1))
	}
	if oneBasedToZero(5) != 4 {
		t.Fatalf("oneBasedToZero(5) = %d, want 4", oneBasedToZero(5))
	}
}

// twoTypesOneMethodEach builds a minimal image with types A and B, each
// owning one method named M, backing the spec.md §8 end-to-end scenarios.
func twoTypesOneMethodEach(methodName string) (*File, error) {
	// #Strings heap: idx0 "" (unused placeholder), idx1 "A", idx3 "B", idx5 methodName.
	heap := append([]byte{0, 'A', 0, 'B', 0}, append([]byte(methodName), 0)...)

	f, err := NewBytes(heap, nil)
	if err != nil {
		return nil, err
	}
	f.CLR.StringsHeapOffset = 0
	f.CLR.StringsHeapSize = uint32(len(heap))

	nameIdx := uint32(5)
	f.CLR.Tables[TypeDef] = &MetadataTable{
		ID:       TypeDef,
		RowCount: 2,
		rows: [][]uint32{
			{0, 1, 0, 0, 1, 1}, // A: TypeName=1("A"), Namespace=0, MethodList=1 (1-based)
			{0, 3, 0, 0, 1, 2}, // B: TypeName=3("B"), Namespace=0, MethodList=2 (1-based)
		},
	}
	f.CLR.Tables[MethodDef] = &MetadataTable{
		ID:       MethodDef,
		RowCount: 2,
		rows: [][]uint32{
			{0, 0, 0, nameIdx, 0, 1}, // A.M
			{0, 0, 0, nameIdx, 0, 1}, // B.M
		},
	}
	return f, nil
}

// TestResolveInvokedSingleMethodKeepsOnlyItsOwnType covers spec.md §8
// scenario 1: two types A, B each own a method M; invoking "A.M" must seed
// A's method and type but not B's.
func TestResolveInvokedSingleMethodKeepsOnlyItsOwnType(t *testing.T) {
	f, err := twoTypesOneMethodEach("M")
	if err != nil {
		t.Fatalf("twoTypesOneMethodEach: %v", err)
	}

	seeds, err := f.ResolveInvoked([]string{"A.M"})
	if err != nil {
		t.Fatalf("ResolveInvoked: %v", err)
	}

	if !seeds.Types[0] {
		t.Fatalf("type A (row 0) not seeded")
	}
	if seeds.Types[1] {
		t.Fatalf("type B (row 1) should not be seeded")
	}
	if !seeds.Methods[0] {
		t.Fatalf("A.M (row 0) not seeded")
	}
	if seeds.Methods[1] {
		t.Fatalf("B.M (row 1) should not be seeded")
	}
}

// TestResolveInvokedConstructorAliasing covers spec.md §8 scenario 4 and
// the "Constructor canonicalisation" law: invoking "T._ctor" must resolve
// to the MethodDef literally named ".ctor", and an invoked set spelled
// with ".ctor" directly resolves identically.
func TestResolveInvokedConstructorAliasing(t *testing.T) {
	f, err := twoTypesOneMethodEach(".ctor")
	if err != nil {
		t.Fatalf("twoTypesOneMethodEach: %v", err)
	}

	underscoreSeeds, err := f.ResolveInvoked([]string{"A._ctor"})
	if err != nil {
		t.Fatalf("ResolveInvoked(A._ctor): %v", err)
	}
	if !underscoreSeeds.Methods[0] {
		t.Fatalf("A._ctor did not resolve to the MethodDef named \".ctor\"")
	}

	dottedSeeds, err := f.ResolveInvoked([]string{"A..ctor"})
	if err != nil {
		t.Fatalf("ResolveInvoked(A..ctor): %v", err)
	}
	if !dottedSeeds.Methods[0] {
		t.Fatalf("A..ctor did not resolve to the MethodDef named \".ctor\"")
	}
}

func TestIndexOfNthOccurrence(t *testing.T) {
	cols := []columnKind{colString, col2, colString, colBlob}
	if got := indexOf(cols, colString, 0); got != 0 {
		t.Fatalf("indexOf(nth=0) = %d, want 0", got)
	}
	if got := indexOf(cols, colString, 1); got != 2 {
		t.Fatalf("indexOf(nth=1) = %d, want 2", got)
	}
	if got := indexOf(cols, colString, 2); got != -1 {
		t.Fatalf("indexOf(nth=2) = %d, want -1", got)
	}
}
