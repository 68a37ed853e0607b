// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

// Metadata Tables constants (ECMA-335 §II.22). NumTables is the count of
// table IDs the format reserves, 0 through GenericParamConstraint
// inclusive; a handful (FieldPtr, MethodPtr, ParamPtr, EventPtr,
// PropertyPtr, the AssemblyOS/Processor family, ENCLog/ENCMap) are vestigial
// and almost never populated, but they still occupy a slot in MaskValid and
// must be accounted for when computing row offsets.
const (
	Module = iota
	TypeRef
	TypeDef
	FieldPtr
	Field
	MethodPtr
	MethodDef
	ParamPtr
	Param
	InterfaceImpl
	MemberRef
	Constant
	CustomAttribute
	FieldMarshal
	DeclSecurity
	ClassLayout
	FieldLayout
	StandAloneSig
	EventMap
	EventPtr
	Event
	PropertyMap
	PropertyPtr
	Property
	MethodSemantics
	MethodImpl
	ModuleRef
	TypeSpec
	ImplMap
	FieldRVA
	ENCLog
	ENCMap
	Assembly
	AssemblyProcessor
	AssemblyOS
	AssemblyRef
	AssemblyRefProcessor
	AssemblyRefOS
	FileMD
	ExportedType
	ManifestResource
	NestedClass
	GenericParam
	MethodSpec
	GenericParamConstraint

	NumTables
)

// Heaps Streams Bit Positions, used against MetadataTableStreamHeader.Heaps
// to learn whether string/GUID/blob indexes are 2 or 4 bytes wide.
const (
	StringHeapBit = 0
	GUIDHeapBit   = 1
	BlobHeapBit   = 2
)

var tableNames = [NumTables]string{
	Module: "Module", TypeRef: "TypeRef", TypeDef: "TypeDef", FieldPtr: "FieldPtr",
	Field: "Field", MethodPtr: "MethodPtr", MethodDef: "MethodDef", ParamPtr: "ParamPtr",
	Param: "Param", InterfaceImpl: "InterfaceImpl", MemberRef: "MemberRef", Constant: "Constant",
	CustomAttribute: "CustomAttribute", FieldMarshal: "FieldMarshal", DeclSecurity: "DeclSecurity",
	ClassLayout: "ClassLayout", FieldLayout: "FieldLayout", StandAloneSig: "StandAloneSig",
	EventMap: "EventMap", EventPtr: "EventPtr", Event: "Event", PropertyMap: "PropertyMap",
	PropertyPtr: "PropertyPtr", Property: "Property", MethodSemantics: "MethodSemantics",
	MethodImpl: "MethodImpl", ModuleRef: "ModuleRef", TypeSpec: "TypeSpec", ImplMap: "ImplMap",
	FieldRVA: "FieldRVA", ENCLog: "ENCLog", ENCMap: "ENCMap", Assembly: "Assembly",
	AssemblyProcessor: "AssemblyProcessor", AssemblyOS: "AssemblyOS", AssemblyRef: "AssemblyRef",
	AssemblyRefProcessor: "AssemblyRefProcessor", AssemblyRefOS: "AssemblyRefOS", FileMD: "File",
	ExportedType: "ExportedType", ManifestResource: "ManifestResource", NestedClass: "NestedClass",
	GenericParam: "GenericParam", MethodSpec: "MethodSpec", GenericParamConstraint: "GenericParamConstraint",
}

// MetadataTableIndexToString returns the string representation of a table
// index, or "" if it is out of range.
func MetadataTableIndexToString(table int) string {
	if table < 0 || table >= NumTables {
		return ""
	}
	return tableNames[table]
}
