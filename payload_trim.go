// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

// Row-payload zeroing for trimmed TypeDef/Field/MethodDef/Param rows
// (spec.md §4.9/§4.10). Geometry already knows each row's absolute file
// offset and column widths; this file only decides, per table, which
// leading columns are "payload" (safe to zero) versus which must survive so
// the geometry-driven row-span reads (FieldList/MethodList/ParamList) that
// every other table's offset math depends on keep working.

// zeroTypeDefRow zeros a trimmed TypeDef row's Flags + TypeName +
// TypeNamespace + Extends columns (the first four of the schema), per the
// Removal law (S0): "bytes [0, end-of-Extends) of its TypeDef row". The
// trailing FieldList/MethodList columns are deliberately left untouched —
// they are read by every other type's fieldRange/methodRange to find where
// its own rows start, independent of whether this type survived.
func (f *File) zeroTypeDefRow(ed editor, typeRow uint32) {
	f.zeroRowColumns(ed, TypeDef, typeRow, 0, 4)
}

// zeroFieldRow zeros a trimmed Field row in full: Flags, Name, Signature.
// Field rows carry no row-span column for anything downstream to read, so
// nothing needs to survive.
func (f *File) zeroFieldRow(ed editor, fieldRow uint32) {
	f.zeroRowColumns(ed, Field, fieldRow, 0, 3)
}

// zeroMethodDefRow zeros a trimmed MethodDef row's RVA, ImplFlags, Flags,
// Name, and Signature columns, leaving its trailing ParamList column in
// place so paramRange keeps resolving correctly for every method, trimmed or
// not (mirrors zeroTypeDefRow's treatment of FieldList/MethodList).
func (f *File) zeroMethodDefRow(ed editor, methodRow uint32) {
	f.zeroRowColumns(ed, MethodDef, methodRow, 0, 5)
}

// zeroParamRow zeros a trimmed Param row in full: Flags, Sequence, Name.
func (f *File) zeroParamRow(ed editor, paramRow uint32) {
	f.zeroRowColumns(ed, Param, paramRow, 0, 3)
}

// zeroAuxRow zeros an auxiliary table's row (TypeRef, MemberRef, Constant,
// CustomAttribute, StandAloneSig, TypeSpec, MethodSpec, InterfaceImpl) in
// full; none of these carry a row-span column another table depends on.
func (f *File) zeroAuxRow(ed editor, table int, row uint32) {
	schema := tableSchemas[table]
	f.zeroRowColumns(ed, table, row, 0, len(schema))
}

// zeroRowColumns zeros the byte range spanned by columns [fromCol, toCol) of
// one row of table.
func (f *File) zeroRowColumns(ed editor, table int, row uint32, fromCol, toCol int) {
	geom := f.CLR.Geometry
	t := f.CLR.Tables[table]
	if t == nil || geom == nil || row >= t.RowCount {
		return
	}
	schema := t.Schema()
	base := geom.rowOffset(table, row)

	var start, end uint32
	off := base
	for ci, kind := range schema {
		w := geom.columnWidth(kind)
		if ci == fromCol {
			start = off
		}
		if ci == toCol {
			end = off
		}
		off += w
	}
	if toCol >= len(schema) {
		end = off
	}
	ed.zero(start, end-start)
}

// trimmedFieldsAndParams expands a class/method-granularity trim plan down
// to the Field and Param rows it implies: every field of a trimmed type, and
// every param of a trimmed method.
func (f *File) trimmedFieldsAndParams(trimmedTypes, trimmedMethods map[uint32]bool) (fields, params map[uint32]bool) {
	fields = map[uint32]bool{}
	params = map[uint32]bool{}

	for t := range trimmedTypes {
		first, last := f.fieldRange(t)
		for r := first; r < last; r++ {
			fields[r] = true
		}
	}
	for m := range trimmedMethods {
		first, last := f.paramRange(m)
		for r := first; r < last; r++ {
			params[r] = true
		}
	}
	return fields, params
}

// zeroRowPayloads applies zeroTypeDefRow/zeroFieldRow/zeroMethodDefRow/
// zeroParamRow to every row a trim plan marks trimmed.
func (f *File) zeroRowPayloads(ed editor, trimmedTypes, trimmedMethods, trimmedFields, trimmedParams map[uint32]bool) {
	for t := range trimmedTypes {
		f.zeroTypeDefRow(ed, t)
	}
	for r := range trimmedFields {
		f.zeroFieldRow(ed, r)
	}
	for m := range trimmedMethods {
		f.zeroMethodDefRow(ed, m)
	}
	for r := range trimmedParams {
		f.zeroParamRow(ed, r)
	}
}
