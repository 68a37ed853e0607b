// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

// Reference Closure (spec.md §4.12). Mark/sweep shape grounded on
// other_examples' WASM dead-code eliminator (buildRootSet → markReachable →
// sweep): start from a seed set of directly-invoked methods, then follow
// the references a live method's body and signature carry — MethodDef call
// targets, Field accesses, and TypeDef tokens in signatures and IL operands
// — and every live type's base type and interfaces, until no new row is
// discovered. References through TypeRef/TypeSpec/MemberRef/MethodSpec rows
// are not followed. Unlike that eliminator, this
// module never renumbers or removes a row: the closure's only output is a
// liveness bitmap the trimmers consult before zeroing.
type liveSet struct {
	methods map[uint32]bool
	types   map[uint32]bool
	fields  map[uint32]bool
}

func newLiveSet() *liveSet {
	return &liveSet{methods: map[uint32]bool{}, types: map[uint32]bool{}, fields: map[uint32]bool{}}
}

// buildLiveSet expands seeds into the full transitive closure of what they
// reference. When deep is false, the closure stops at the seeds themselves
// plus their immediately declaring types (already recorded in seeds.Types
// by ResolveInvoked) — a fast, shallow mode that risks leaving
// only-indirectly-used helper types untrimmed in exchange for not having to
// walk every live method body. When deep is true, the closure walks every
// live method's IL and signature for additional type/method/field
// references, and every live type's Extends/interface list, repeating until
// a full pass adds nothing new.
func (f *File) buildLiveSet(seeds *ResolvedSeeds, deep bool) (*liveSet, error) {
	live := newLiveSet()
	for m := range seeds.Methods {
		live.methods[m] = true
	}
	for t := range seeds.Types {
		live.types[t] = true
	}

	if !deep {
		return live, nil
	}

	for {
		added := false

		for m := range live.methods {
			refs, err := f.methodReferences(m)
			if err != nil {
				return nil, err
			}
			for _, ref := range refs {
				if f.markLive(live, ref) {
					added = true
				}
			}
		}

		for t := range live.types {
			refs, err := f.typeDefReferences(t)
			if err != nil {
				return nil, err
			}
			for _, ref := range refs {
				if f.markLive(live, ref) {
					added = true
				}
			}
		}

		if !added {
			break
		}
	}

	return live, nil
}

// markLive records a TypeDef, MethodDef or Field reference as live, since
// those are the granularity the trimmers operate at. A reference into any
// other table (TypeRef, TypeSpec, MemberRef, MethodSpec, ...) marks nothing
// and is not followed to the row it resolves to. Returns true if this call
// newly marked something live.
func (f *File) markLive(live *liveSet, ref typeRef) bool {
	row := oneBasedToZero(ref.Row)
	switch ref.Table {
	case TypeDef:
		if live.types[row] {
			return false
		}
		live.types[row] = true
		return true

	case MethodDef:
		if live.methods[row] {
			return false
		}
		live.methods[row] = true
		return true

	case Field:
		if live.fields[row] {
			return false
		}
		live.fields[row] = true
		return true

	case TypeRef, TypeSpec, MemberRef, ModuleRef, AssemblyRef, Module:
		// External or indirect references: nothing in this image to mark,
		// but they must never be zeroed either (the String/Blob heap
		// trimmer treats any row it cannot prove unreferenced as live).
		return false

	default:
		return false
	}
}

// methodReferences returns every type/method/field token a live method's
// signature and IL body mention.
func (f *File) methodReferences(methodRow uint32) ([]typeRef, error) {
	md := f.CLR.Tables[MethodDef]
	if md == nil || methodRow >= md.RowCount {
		return nil, nil
	}
	cols := md.Schema()
	var refs []typeRef

	sigIdx := md.Column(methodRow, indexOf(cols, colBlob, 0))
	if sigBlob, err := f.blobAt(sigIdx); err != nil {
		f.logger.Warnf("method %d: malformed signature blob, skipping: %v", methodRow, err)
	} else {
		refs = append(refs, typeRefsInMethodSignature(sigBlob)...)
	}

	rva := md.Column(methodRow, 0)
	implFlags := md.Column(methodRow, 1)
	const miCodeTypeMask = 0x0003
	const miNative = 0x0001
	if rva != 0 && implFlags&miCodeTypeMask != miNative {
		body, err := f.readMethodBody(f.GetOffsetFromRva(rva))
		if err != nil {
			f.logger.Warnf("method %d: malformed body, skipping: %v", methodRow, err)
			return refs, nil
		}
		code, err := f.ReadBytesAtOffset(body.Offset+body.CodeOffset, body.CodeSize)
		if err != nil {
			return refs, nil
		}
		_ = scanIL(code, func(inst ilInstruction) {
			if !inst.HasToken {
				return
			}
			table, row := decodeMetadataToken(inst.Token)
			if table >= 0 && table < NumTables {
				refs = append(refs, typeRef{Table: table, Row: row})
			}
		})
	}

	return refs, nil
}

// typeDefReferences returns a live type's base type and implemented
// interfaces.
func (f *File) typeDefReferences(typeRow uint32) ([]typeRef, error) {
	td := f.CLR.Tables[TypeDef]
	if td == nil || typeRow >= td.RowCount {
		return nil, nil
	}
	cols := td.Schema()
	var refs []typeRef

	extendsCol := indexOf(cols, colIdxTypeDefOrRef, 0)
	extends := td.Column(typeRow, extendsCol)
	if extends != 0 {
		table, row := decodeCodedIndex(colIdxTypeDefOrRef, extends)
		refs = append(refs, typeRef{Table: table, Row: row})
	}

	ii := f.CLR.Tables[InterfaceImpl]
	if ii != nil {
		for r := uint32(0); r < ii.RowCount; r++ {
			if oneBasedToZero(ii.Column(r, 0)) != typeRow {
				continue
			}
			iface := ii.Column(r, 1)
			table, row := decodeCodedIndex(colIdxTypeDefOrRef, iface)
			refs = append(refs, typeRef{Table: table, Row: row})
		}
	}

	return refs, nil
}

// blobAt reads the length-prefixed blob at #Blob heap index idx: a
// compressed uint giving the byte count, followed by that many bytes.
func (f *File) blobAt(idx uint32) ([]byte, error) {
	if idx == 0 {
		return nil, nil
	}
	offset := f.CLR.BlobHeapOffset + idx
	limit := f.CLR.BlobHeapOffset + f.CLR.BlobHeapSize
	if offset >= limit {
		return nil, ErrOutsideBoundary
	}

	head, err := f.ReadBytesAtOffset(offset, Max(4, 1))
	if err != nil {
		return nil, err
	}
	size, n, err := decodeCompressedUint(head)
	if err != nil {
		return nil, err
	}
	start := offset + uint32(n)
	return f.ReadBytesAtOffset(start, size)
}
