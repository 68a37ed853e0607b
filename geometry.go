// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

// Table Geometry (spec.md §4.2): given the parsed row-count vector and
// heap-width flags, compute the byte size of any table's row and the file
// offset of any (table, row) pair within the #~/#- stream. Widths are
// evaluated once, from the row-count vector observed at load, and never
// change: row-count mutation is forbidden, so a writer must keep using the
// widths the reader observed even though nothing in this engine ever
// changes a row count.
type geometry struct {
	rowCounts    [NumTables]uint32
	stringIdxLen uint32
	guidIdxLen   uint32
	blobIdxLen   uint32
	dataOffset   uint32 // file offset where row data begins, after the header and row-count array
	rowSizes     [NumTables]uint32
	tableOffsets [NumTables]uint32 // cumulative byte offset of each table's first row, relative to dataOffset
}

// columnKind classifies one column of a metadata table row for the purpose
// of computing its on-disk width.
type columnKind int

const (
	col1      columnKind = iota // fixed 1-byte value
	col2                        // fixed 2-byte value
	col4                        // fixed 4-byte value
	colString                   // #Strings heap index
	colGUID                     // #GUID heap index
	colBlob                     // #Blob heap index
	colIdxField
	colIdxMethodDef
	colIdxParam
	colIdxTypeDef
	colIdxEvent
	colIdxProperty
	colIdxModuleRef
	colIdxGenericParam
	colIdxTypeDefOrRef
	colIdxResolutionScope
	colIdxMemberRefParent
	colIdxHasConstant
	colIdxHasCustomAttribute
	colIdxCustomAttributeType
	colIdxHasFieldMarshal
	colIdxHasDeclSecurity
	colIdxHasSemantics
	colIdxMethodDefOrRef
	colIdxMemberForwarded
	colIdxImplementation
	colIdxTypeOrMethodDef
	colIdxAssemblyRef // simple (uncoded) index into AssemblyRef, used only by AssemblyRefProcessor/AssemblyRefOS
)

// tableSchemas lists, per table ID, its columns in on-disk declaration
// order. This is the single source of truth both the table parser
// (parseTableStream in metadata.go) and the geometry/offset math share, grounded on the
// teacher's parseMetadata*Table functions which read these exact fields in
// this exact order.
var tableSchemas = map[int][]columnKind{
	Module:                 {col2, colString, colGUID, colGUID, colGUID},
	TypeRef:                {colIdxResolutionScope, colString, colString},
	TypeDef:                {col4, colString, colString, colIdxTypeDefOrRef, colIdxField, colIdxMethodDef},
	FieldPtr:               {colIdxField},
	Field:                  {col2, colString, colBlob},
	MethodPtr:              {colIdxMethodDef},
	MethodDef:              {col4, col2, col2, colString, colBlob, colIdxParam},
	ParamPtr:               {colIdxParam},
	Param:                  {col2, col2, colString},
	InterfaceImpl:          {colIdxTypeDef, colIdxTypeDefOrRef},
	MemberRef:              {colIdxMemberRefParent, colString, colBlob},
	Constant:               {col1, col1, colIdxHasConstant, colBlob},
	CustomAttribute:        {colIdxHasCustomAttribute, colIdxCustomAttributeType, colBlob},
	FieldMarshal:           {colIdxHasFieldMarshal, colBlob},
	DeclSecurity:           {col2, colIdxHasDeclSecurity, colBlob},
	ClassLayout:            {col2, col4, colIdxTypeDef},
	FieldLayout:            {col4, colIdxField},
	StandAloneSig:          {colBlob},
	EventMap:               {colIdxTypeDef, colIdxEvent},
	EventPtr:               {colIdxEvent},
	Event:                  {col2, colString, colIdxTypeDefOrRef},
	PropertyMap:            {colIdxTypeDef, colIdxProperty},
	PropertyPtr:            {colIdxProperty},
	Property:               {col2, colString, colBlob},
	MethodSemantics:        {col2, colIdxMethodDef, colIdxHasSemantics},
	MethodImpl:             {colIdxTypeDef, colIdxMethodDefOrRef, colIdxMethodDefOrRef},
	ModuleRef:              {colString},
	TypeSpec:               {colBlob},
	ImplMap:                {col2, colIdxMemberForwarded, colString, colIdxModuleRef},
	FieldRVA:                {col4, colIdxField},
	ENCLog:                 {col4, col4},
	ENCMap:                 {col4},
	Assembly:               {col4, col2, col2, col2, col2, col4, colBlob, colString, colString},
	AssemblyProcessor:      {col4},
	AssemblyOS:             {col4, col4, col4},
	AssemblyRef:            {col2, col2, col2, col2, col4, colBlob, colString, colString, colBlob},
	AssemblyRefProcessor:   {col4, colIdxAssemblyRef},
	AssemblyRefOS:          {col4, col4, col4, colIdxAssemblyRef},
	FileMD:                 {col4, colString, colBlob},
	ExportedType:           {col4, col4, colString, colString, colIdxImplementation},
	ManifestResource:       {col4, col4, colString, colIdxImplementation},
	NestedClass:            {colIdxTypeDef, colIdxTypeDef},
	GenericParam:           {col2, col2, colIdxTypeOrMethodDef, colString},
	MethodSpec:             {colIdxMethodDefOrRef, colBlob},
	GenericParamConstraint: {colIdxGenericParam, colIdxTypeDefOrRef},
}

// codedIndexSpec describes one of the six-plus coded index encodings:
// how many low bits are the tag, and which tables the tag can select.
type codedIndexSpec struct {
	tagBits uint
	tables  []int
}

var codedIndexSpecs = map[columnKind]codedIndexSpec{
	colIdxTypeDefOrRef:         {2, []int{TypeDef, TypeRef, TypeSpec}},
	colIdxResolutionScope:      {2, []int{Module, ModuleRef, AssemblyRef, TypeRef}},
	colIdxMemberRefParent:      {3, []int{TypeDef, TypeRef, ModuleRef, MethodDef, TypeSpec}},
	colIdxHasConstant:          {2, []int{Field, Param, Property}},
	// Tag order per ECMA-335 §II.24.2.6: MethodDef, Field, TypeRef, TypeDef,
	// Param, InterfaceImpl, MemberRef, Module, DeclSecurity, Property, Event,
	// StandAloneSig, ModuleRef, TypeSpec, Assembly, AssemblyRef, FileMD,
	// ExportedType, ManifestResource, GenericParam, GenericParamConstraint,
	// MethodSpec (22 tables, hence 5 tag bits).
	colIdxHasCustomAttribute:   {5, []int{MethodDef, Field, TypeRef, TypeDef, Param, InterfaceImpl, MemberRef, Module, DeclSecurity, Property, Event, StandAloneSig, ModuleRef, TypeSpec, Assembly, AssemblyRef, FileMD, ExportedType, ManifestResource, GenericParam, GenericParamConstraint, MethodSpec}},
	// Tags 0/1 are reserved (unused) per ECMA-335 §II.24.2.6; MethodDef and
	// MemberRef sit at tags 2/3.
	colIdxCustomAttributeType: {3, []int{-1, -1, MethodDef, MemberRef}},
	colIdxHasFieldMarshal:     {1, []int{Field, Param}},
	colIdxHasDeclSecurity:      {2, []int{TypeDef, MethodDef, Assembly}},
	colIdxHasSemantics:         {1, []int{Event, Property}},
	colIdxMethodDefOrRef:       {1, []int{MethodDef, MemberRef}},
	colIdxMemberForwarded:      {1, []int{Field, MethodDef}},
	colIdxImplementation:       {2, []int{FileMD, AssemblyRef, ExportedType}},
	colIdxTypeOrMethodDef:      {1, []int{TypeDef, MethodDef}},
}

// simpleTableIndexOf maps a simple (uncoded) table-index columnKind to the
// single table it indexes.
var simpleTableIndexOf = map[columnKind]int{
	colIdxField:        Field,
	colIdxMethodDef:    MethodDef,
	colIdxParam:        Param,
	colIdxTypeDef:      TypeDef,
	colIdxEvent:        Event,
	colIdxProperty:     Property,
	colIdxModuleRef:    ModuleRef,
	colIdxGenericParam: GenericParam,
	colIdxAssemblyRef:  AssemblyRef,
}

// newGeometry computes per-table row sizes and offsets from the row-count
// vector and heap-width flags observed at load. It never reads the image
// again; every width is evaluated once and reused by both the table parsers
// and the trimmers.
func newGeometry(rowCounts [NumTables]uint32, stringIdxLen, guidIdxLen, blobIdxLen, dataOffset uint32) *geometry {
	g := &geometry{
		rowCounts:    rowCounts,
		stringIdxLen: stringIdxLen,
		guidIdxLen:   guidIdxLen,
		blobIdxLen:   blobIdxLen,
		dataOffset:   dataOffset,
	}

	for t := 0; t < NumTables; t++ {
		g.rowSizes[t] = g.computeRowSize(t)
	}

	offset := uint32(0)
	for t := 0; t < NumTables; t++ {
		g.tableOffsets[t] = offset
		offset += g.rowSizes[t] * rowCounts[t]
	}

	return g
}

func (g *geometry) columnWidth(kind columnKind) uint32 {
	switch kind {
	case col1:
		return 1
	case col2:
		return 2
	case col4:
		return 4
	case colString:
		return g.stringIdxLen
	case colGUID:
		return g.guidIdxLen
	case colBlob:
		return g.blobIdxLen
	}

	if table, ok := simpleTableIndexOf[kind]; ok {
		if g.rowCounts[table] < 1<<16 {
			return 2
		}
		return 4
	}

	if spec, ok := codedIndexSpecs[kind]; ok {
		var maxRows uint32
		for _, t := range spec.tables {
			if t < 0 {
				continue
			}
			if g.rowCounts[t] > maxRows {
				maxRows = g.rowCounts[t]
			}
		}
		if maxRows >= 1<<(16-spec.tagBits) {
			return 4
		}
		return 2
	}

	return 0
}

func (g *geometry) computeRowSize(table int) uint32 {
	schema, ok := tableSchemas[table]
	if !ok {
		return 0
	}
	var size uint32
	for _, col := range schema {
		size += g.columnWidth(col)
	}
	return size
}

// rowSize returns the on-disk byte size of one row of table.
func (g *geometry) rowSize(table int) uint32 {
	if table < 0 || table >= NumTables {
		return 0
	}
	return g.rowSizes[table]
}

// rowOffset returns the absolute file offset of the 0-based row'th row of
// table, within the image that produced this geometry.
func (g *geometry) rowOffset(table int, row uint32) uint32 {
	return g.dataOffset + g.tableOffsets[table] + g.rowSizes[table]*row
}

// tableByteRange returns the [start, end) file-offset range spanned by all
// rows of table.
func (g *geometry) tableByteRange(table int) (uint32, uint32) {
	start := g.dataOffset + g.tableOffsets[table]
	end := start + g.rowSizes[table]*g.rowCounts[table]
	return start, end
}

// decodeCodedIndex splits a raw coded-index value into its tag-selected
// table and 1-based row number, per spec.md §4.3.
func decodeCodedIndex(kind columnKind, value uint32) (table int, row uint32) {
	spec, ok := codedIndexSpecs[kind]
	if !ok {
		return -1, 0
	}
	tagMask := uint32(1)<<spec.tagBits - 1
	tag := value & tagMask
	row = value >> spec.tagBits
	if int(tag) >= len(spec.tables) {
		return -1, 0
	}
	return spec.tables[tag], row
}

// encodeCodedIndex is the inverse of decodeCodedIndex; used only when
// checking reachability, never to rewrite the image.
func encodeCodedIndex(kind columnKind, table int, row uint32) (uint32, bool) {
	spec, ok := codedIndexSpecs[kind]
	if !ok {
		return 0, false
	}
	for tag, t := range spec.tables {
		if t == table {
			return row<<spec.tagBits | uint32(tag), true
		}
	}
	return 0, false
}
