// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

import (
	"encoding/json"
	"io"
	"strings"
)

// Invoked-Type Resolver (spec.md §4.8). Maps the caller-supplied set of
// invoked method full names ("Namespace.Type.Method", split on the last '.')
// onto the concrete TypeDef/MethodDef rows they name, then expands that seed
// set the way a caller talking about "invoked methods" actually means it: a
// method implies its declaring type is live, a constructor may be spelled
// either as "Type..ctor"/"Type..cctor" (the literal metadata name) or
// "Type._ctor"/"Type._cctor" (the underscore-escaped form spec.md §3/§6
// require to match either spelling), and any compiler-generated type nested
// under an invoked type (closures, iterator and async state machines — their
// TypeDef.Name begins with '<') is pulled in automatically, since no
// invocation log ever names them directly.

// MethodInvocation is one entry of the invocation-statistics JSON (spec.md
// §6): a fully-qualified method name and how many times it was observed
// invoked. The count itself is read but not used by the resolver — every
// listed method counts as invoked, whatever its count (zero included); the
// count only exists for the caller's own reporting.
type MethodInvocation struct {
	FullName    string `json:"fullName"`
	Invocations int    `json:"invocations"`
}

// AssemblyInvocations groups the methods observed invoked within one
// assembly.
type AssemblyInvocations struct {
	AssemblyName string             `json:"assemblyName"`
	Methods      []MethodInvocation `json:"methods"`
}

// InvocationStats is the top-level shape of the invocation-statistics JSON
// document spec.md §6 defines as this engine's external input.
type InvocationStats struct {
	Assemblies []AssemblyInvocations `json:"assemblies"`
}

// LoadInvocationStats decodes an invocation-statistics document. There is
// no ecosystem JSON library anywhere in the retrieval pack to ground a
// substitute on, so this uses encoding/json directly — the standard idiom
// for a one-shot unmarshal with no streaming or schema-evolution need.
func LoadInvocationStats(r io.Reader) (*InvocationStats, error) {
	var stats InvocationStats
	if err := json.NewDecoder(r).Decode(&stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// InvokedMethodNames returns every method full name observed invoked,
// across all assemblies in the document, flattened for ResolveInvoked.
func (s *InvocationStats) InvokedMethodNames() []string {
	var names []string
	for _, asm := range s.Assemblies {
		for _, m := range asm.Methods {
			names = append(names, m.FullName)
		}
	}
	return names
}

// ResolvedSeeds is the output of resolving a caller's invoked-method set
// against this image's metadata: the MethodDef rows directly named, and the
// TypeDef rows those methods (and their compiler-private companions)
// belong to. Both sets are 0-based row indexes.
type ResolvedSeeds struct {
	Methods map[uint32]bool
	Types   map[uint32]bool
}

// stringAt reads a NUL-terminated string from the #Strings heap at heap
// index idx.
func (f *File) stringAt(idx uint32) (string, error) {
	if idx == 0 {
		return "", nil
	}
	offset := f.CLR.StringsHeapOffset + idx
	if idx >= f.CLR.StringsHeapSize {
		return "", ErrOutsideBoundary
	}
	limit := f.CLR.StringsHeapOffset + f.CLR.StringsHeapSize
	end := offset
	for end < limit {
		b, err := f.ReadUint8(end)
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		end++
	}
	raw, err := f.ReadBytesAtOffset(offset, end-offset)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// typeDefFullName renders a TypeDef row's dotted full name, joining nested
// enclosing types with '+' the way .NET reflection names them (Outer+Inner).
func (f *File) typeDefFullName(row uint32) (string, error) {
	table := f.CLR.Tables[TypeDef]
	cols := table.Schema()
	nameIdx := table.Column(row, indexOf(cols, colString, 0))
	nsIdx := table.Column(row, indexOf(cols, colString, 1))

	name, err := f.stringAt(nameIdx)
	if err != nil {
		return "", err
	}
	ns, err := f.stringAt(nsIdx)
	if err != nil {
		return "", err
	}

	if enclosing, ok := f.enclosingTypeDef(row); ok {
		outer, err := f.typeDefFullName(enclosing)
		if err != nil {
			return "", err
		}
		return outer + "+" + name, nil
	}

	if ns == "" {
		return name, nil
	}
	return ns + "." + name, nil
}

// enclosingTypeDef looks up row's enclosing type via the NestedClass table,
// if row is a nested type.
func (f *File) enclosingTypeDef(row uint32) (uint32, bool) {
	nc := f.CLR.Tables[NestedClass]
	if nc == nil {
		return 0, false
	}
	for r := uint32(0); r < nc.RowCount; r++ {
		if nc.Column(r, 0) == row+1 {
			return nc.Column(r, 1) - 1, true
		}
	}
	return 0, false
}

// indexOf returns the position of the n'th occurrence of kind within cols.
func indexOf(cols []columnKind, kind columnKind, n int) int {
	seen := 0
	for i, c := range cols {
		if c == kind {
			if seen == n {
				return i
			}
			seen++
		}
	}
	return -1
}

// methodRange returns the [first, last) 0-based MethodDef row range owned
// by the given TypeDef row, per the TypeDef.MethodList column (ECMA-335
// §II.22.37): a type's methods run from its own MethodList up to (but not
// including) the next TypeDef's MethodList, or the end of the table for the
// last TypeDef. This is the same "next row's start is this row's end"
// reading the teacher's FieldPtr/MethodPtr commentary describes.
func (f *File) methodRange(typeDefRow uint32) (first, last uint32) {
	td := f.CLR.Tables[TypeDef]
	cols := td.Schema()
	methodListCol := indexOf(cols, colIdxMethodDef, 0)

	first = oneBasedToZero(td.Column(typeDefRow, methodListCol))
	if typeDefRow+1 < td.RowCount {
		last = oneBasedToZero(td.Column(typeDefRow+1, methodListCol))
	} else {
		md := f.CLR.Tables[MethodDef]
		if md != nil {
			last = md.RowCount
		}
	}
	return first, last
}

// fieldRange returns the [first, last) 0-based Field row range owned by the
// given TypeDef row, via its FieldList column, using the same
// next-row-starts-where-this-row-ends reading as methodRange.
func (f *File) fieldRange(typeDefRow uint32) (first, last uint32) {
	td := f.CLR.Tables[TypeDef]
	cols := td.Schema()
	fieldListCol := indexOf(cols, colIdxField, 0)

	first = oneBasedToZero(td.Column(typeDefRow, fieldListCol))
	if typeDefRow+1 < td.RowCount {
		last = oneBasedToZero(td.Column(typeDefRow+1, fieldListCol))
	} else {
		fd := f.CLR.Tables[Field]
		if fd != nil {
			last = fd.RowCount
		}
	}
	return first, last
}

// paramRange returns the [first, last) 0-based Param row range owned by the
// given MethodDef row, via its ParamList column.
func (f *File) paramRange(methodRow uint32) (first, last uint32) {
	md := f.CLR.Tables[MethodDef]
	cols := md.Schema()
	paramListCol := indexOf(cols, colIdxParam, 0)

	first = oneBasedToZero(md.Column(methodRow, paramListCol))
	if methodRow+1 < md.RowCount {
		last = oneBasedToZero(md.Column(methodRow+1, paramListCol))
	} else {
		pd := f.CLR.Tables[Param]
		if pd != nil {
			last = pd.RowCount
		}
	}
	return first, last
}

// oneBasedToZero converts a 1-based metadata row reference to 0-based,
// treating the (invalid, but occasionally emitted by malformed tools)
// value 0 as row 0 rather than underflowing.
func oneBasedToZero(v uint32) uint32 {
	if v == 0 {
		return 0
	}
	return v - 1
}

// isCompilerPrivate reports whether a TypeDef name marks a compiler-generated
// type: closures, iterator/async state machines, and display classes all
// begin with '<' (e.g. "<>c__DisplayClass0_0", "<Run>d__3").
func isCompilerPrivate(name string) bool {
	return strings.HasPrefix(name, "<")
}

// canonicalizeCtorName rewrites a metadata-form constructor name (".ctor",
// ".cctor") to the invoked-method-set's underscore spelling ("_ctor",
// "_cctor"), per spec.md §3's "Invoked method set" glossary entry and §6's
// canonicalisation rule ("Constructor names in the metadata ... are
// canonicalised before comparison to T._ctor, T._cctor respectively"). Any
// other name passes through unchanged.
func canonicalizeCtorName(name string) string {
	switch name {
	case ".ctor":
		return "_ctor"
	case ".cctor":
		return "_cctor"
	default:
		return name
	}
}

// splitInvokedName splits a "Namespace.Type.Method" invocation entry on its
// last '.', per spec.md §4.8 step 1. A method spelled with the dotted
// constructor form ("Type..ctor"/"Type..cctor") is canonicalized to the
// underscore form first ("Type._ctor"/"Type._cctor"), so the final '.' split
// lands on the type/method separator rather than inside the constructor
// name's own leading dot.
func splitInvokedName(full string) (typeName, methodName string) {
	switch {
	case strings.HasSuffix(full, "..cctor"):
		full = strings.TrimSuffix(full, "..cctor") + "._cctor"
	case strings.HasSuffix(full, "..ctor"):
		full = strings.TrimSuffix(full, "..ctor") + "._ctor"
	}

	idx := strings.LastIndex(full, ".")
	if idx < 0 {
		return full, ""
	}
	return full[:idx], full[idx+1:]
}

// ResolveInvoked maps a list of invoked method full names onto this image's
// MethodDef rows, then expands the seed set with each invoked method's
// declaring type and every compiler-private type nested under it.
func (f *File) ResolveInvoked(names []string) (*ResolvedSeeds, error) {
	seeds := &ResolvedSeeds{Methods: map[uint32]bool{}, Types: map[uint32]bool{}}

	td := f.CLR.Tables[TypeDef]
	md := f.CLR.Tables[MethodDef]
	if td == nil || md == nil {
		return seeds, nil
	}

	fullNames := make([]string, td.RowCount)
	for r := uint32(0); r < td.RowCount; r++ {
		n, err := f.typeDefFullName(r)
		if err != nil {
			return nil, err
		}
		fullNames[r] = n
	}

	mdCols := md.Schema()
	nameCol := indexOf(mdCols, colString, 0)

	for _, full := range names {
		typeName, methodName := splitInvokedName(full)

		for r := uint32(0); r < td.RowCount; r++ {
			if !strings.EqualFold(fullNames[r], typeName) {
				continue
			}
			seeds.Types[r] = true
			f.includeCompilerPrivateNested(r, fullNames, seeds.Types)

			first, last := f.methodRange(r)
			for m := first; m < last; m++ {
				nameIdx := md.Column(m, nameCol)
				mName, err := f.stringAt(nameIdx)
				if err != nil {
					return nil, err
				}

				if strings.EqualFold(canonicalizeCtorName(mName), methodName) {
					seeds.Methods[m] = true
				}
			}
		}
	}

	return seeds, nil
}

// includeCompilerPrivateNested pulls every compiler-generated type nested,
// at any depth, under typeRow into the live set.
func (f *File) includeCompilerPrivateNested(typeRow uint32, fullNames []string, live map[uint32]bool) {
	nc := f.CLR.Tables[NestedClass]
	if nc == nil {
		return
	}
	for r := uint32(0); r < nc.RowCount; r++ {
		enclosing := nc.Column(r, 1) - 1
		if enclosing != typeRow {
			continue
		}
		nested := nc.Column(r, 0) - 1
		name := fullNames[nested]
		if idx := strings.LastIndex(name, "+"); idx >= 0 {
			name = name[idx+1:]
		}
		if isCompilerPrivate(name) && !live[nested] {
			live[nested] = true
			f.includeCompilerPrivateNested(nested, fullNames, live)
		}
	}
}
