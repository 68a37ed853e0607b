// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

// Reference Closure — deep trim (spec.md §4.12). Operates after S0/S1 have
// already decided which TypeDef/MethodDef/Field rows survive. Builds a
// second, finer-grained reachability set over 32-bit metadata tokens (the
// same table<<24|row encoding IL operands already use) plus #Blob/#US heap
// offsets, then zeros the row payload of every auxiliary-table row (TypeRef,
// MemberRef, Constant, CustomAttribute, StandAloneSig, TypeSpec, MethodSpec,
// InterfaceImpl) whose token never appears in that set.
type deepReach struct {
	f      *File
	tokens map[uint32]bool
	blobs  map[uint32]bool
	us     map[uint32]bool
}

func tokenOf(table int, row1Based uint32) uint32 {
	return uint32(table)<<24 | row1Based
}

// buildDeepReach seeds the token/blob/US sets from every row S0/S1 left
// physically intact in the output — preservedTypes/preservedMethods/
// preservedFields are the complements of the trim plan's trimmed sets, not
// the (generally narrower) seed/closure liveSet, since a kept-but-not-
// individually-seeded method (e.g. every method of an S0-preserved class)
// still has its token/blob/US operands sitting untouched in the image and
// must keep whatever they reference alive too. It then runs the fixed-point
// closure over MemberRef/TypeSpec/MethodSpec (spec.md §4.12's "Fixed point"
// step) and finally the CustomAttribute sweep.
func (f *File) buildDeepReach(preservedTypes, preservedMethods, preservedFields map[uint32]bool) (*deepReach, error) {
	dr := &deepReach{
		f:      f,
		tokens: map[uint32]bool{},
		blobs:  map[uint32]bool{},
		us:     map[uint32]bool{},
	}

	for t := range preservedTypes {
		if err := f.seedTypeDef(dr, t); err != nil {
			return nil, err
		}
	}
	for m := range preservedMethods {
		if err := f.seedMethodDef(dr, m); err != nil {
			return nil, err
		}
	}
	for fld := range preservedFields {
		if err := f.seedField(dr, fld); err != nil {
			return nil, err
		}
	}

	const maxIterations = 100
	for i := 0; i < maxIterations; i++ {
		if !f.closeOnePass(dr) {
			break
		}
	}

	f.sweepCustomAttributes(dr)

	return dr, nil
}

func (f *File) seedTypeDef(dr *deepReach, typeRow uint32) error {
	dr.tokens[tokenOf(TypeDef, typeRow+1)] = true

	td := f.CLR.Tables[TypeDef]
	if td == nil || typeRow >= td.RowCount {
		return nil
	}
	cols := td.Schema()
	extends := td.Column(typeRow, indexOf(cols, colIdxTypeDefOrRef, 0))
	if extends != 0 {
		table, row := decodeCodedIndex(colIdxTypeDefOrRef, extends)
		if table >= 0 {
			dr.tokens[tokenOf(table, row)] = true
		}
	}

	ii := f.CLR.Tables[InterfaceImpl]
	if ii != nil {
		for r := uint32(0); r < ii.RowCount; r++ {
			if oneBasedToZero(ii.Column(r, 0)) != typeRow {
				continue
			}
			dr.tokens[tokenOf(InterfaceImpl, r+1)] = true
			iface := ii.Column(r, 1)
			table, row := decodeCodedIndex(colIdxTypeDefOrRef, iface)
			if table >= 0 {
				dr.tokens[tokenOf(table, row)] = true
			}
		}
	}
	return nil
}

func (f *File) seedMethodDef(dr *deepReach, methodRow uint32) error {
	dr.tokens[tokenOf(MethodDef, methodRow+1)] = true

	md := f.CLR.Tables[MethodDef]
	if md == nil || methodRow >= md.RowCount {
		return nil
	}
	cols := md.Schema()
	sigIdx := md.Column(methodRow, indexOf(cols, colBlob, 0))
	dr.blobs[sigIdx] = true
	if sigBlob, err := f.blobAt(sigIdx); err == nil {
		for _, ref := range typeRefsInMethodSignature(sigBlob) {
			if ref.Table >= 0 {
				dr.tokens[tokenOf(ref.Table, ref.Row)] = true
			}
		}
	}

	rva := md.Column(methodRow, 0)
	implFlags := md.Column(methodRow, 1)
	const miCodeTypeMask = 0x0003
	const miNative = 0x0001
	if rva == 0 || implFlags&miCodeTypeMask == miNative {
		return nil
	}

	body, err := f.readMethodBody(f.GetOffsetFromRva(rva))
	if err != nil {
		f.logger.Warnf("method %d: malformed body during deep trim, skipping: %v", methodRow, err)
		return nil
	}
	if body.Flags&corILMethodInitLocals != 0 && body.LocalVarSigTok != 0 {
		dr.tokens[body.LocalVarSigTok] = true
	}

	code, err := f.ReadBytesAtOffset(body.Offset+body.CodeOffset, body.CodeSize)
	if err != nil {
		return nil
	}
	_ = scanIL(code, func(inst ilInstruction) {
		if inst.HasToken {
			dr.tokens[inst.Token] = true
		}
		if inst.HasUSOffset {
			dr.us[inst.USOffset] = true
		}
	})
	return nil
}

func (f *File) seedField(dr *deepReach, fieldRow uint32) error {
	dr.tokens[tokenOf(Field, fieldRow+1)] = true

	fd := f.CLR.Tables[Field]
	if fd == nil || fieldRow >= fd.RowCount {
		return nil
	}
	cols := fd.Schema()
	sigIdx := fd.Column(fieldRow, indexOf(cols, colBlob, 0))
	dr.blobs[sigIdx] = true
	if sigBlob, err := f.blobAt(sigIdx); err == nil {
		for _, ref := range typeRefsInFieldSignature(sigBlob) {
			if ref.Table >= 0 {
				dr.tokens[tokenOf(ref.Table, ref.Row)] = true
			}
		}
	}

	cst := f.CLR.Tables[Constant]
	if cst == nil {
		return nil
	}
	cstCols := cst.Schema()
	parentCol := indexOf(cstCols, colIdxHasConstant, 0)
	for r := uint32(0); r < cst.RowCount; r++ {
		table, row := decodeCodedIndex(colIdxHasConstant, cst.Column(r, parentCol))
		if table == Field && oneBasedToZero(row) == fieldRow {
			dr.tokens[tokenOf(Constant, r+1)] = true
		}
	}
	return nil
}

// closeOnePass runs one fixed-point iteration over MemberRef/TypeSpec/
// MethodSpec rows already in dr.tokens, adding what they reference. Returns
// true if anything new was added.
func (f *File) closeOnePass(dr *deepReach) bool {
	added := false

	if mr := f.CLR.Tables[MemberRef]; mr != nil {
		cols := mr.Schema()
		parentCol := indexOf(cols, colIdxMemberRefParent, 0)
		blobCol := indexOf(cols, colBlob, 0)
		for r := uint32(0); r < mr.RowCount; r++ {
			if !dr.tokens[tokenOf(MemberRef, r+1)] {
				continue
			}
			table, row := decodeCodedIndex(colIdxMemberRefParent, mr.Column(r, parentCol))
			if table >= 0 {
				if !dr.tokens[tokenOf(table, row)] {
					dr.tokens[tokenOf(table, row)] = true
					added = true
				}
			}
			sig := mr.Column(r, blobCol)
			if !dr.blobs[sig] {
				dr.blobs[sig] = true
				added = true
				// A MemberRef's blob is a MethodRefSig or a FieldSig
				// (distinguished by the FIELD tag 0x06): either way it may
				// embed further type tokens (e.g. a generic method call's
				// argument types) that must stay reachable too.
				if b, err := f.blobAt(sig); err == nil {
					var refs []typeRef
					if len(b) > 0 && b[0] == 0x06 {
						refs = typeRefsInFieldSignature(b)
					} else {
						refs = typeRefsInMethodSignature(b)
					}
					for _, ref := range refs {
						if ref.Table >= 0 && !dr.tokens[tokenOf(ref.Table, ref.Row)] {
							dr.tokens[tokenOf(ref.Table, ref.Row)] = true
						}
					}
				}
			}
		}
	}

	if ts := f.CLR.Tables[TypeSpec]; ts != nil {
		for r := uint32(0); r < ts.RowCount; r++ {
			if !dr.tokens[tokenOf(TypeSpec, r+1)] {
				continue
			}
			sig := ts.Column(r, 0)
			if !dr.blobs[sig] {
				dr.blobs[sig] = true
				added = true
				if b, err := f.blobAt(sig); err == nil {
					if node, _, err := parseSignatureType(b); err == nil {
						var refs []typeRef
						node.typeRefs(&refs)
						for _, ref := range refs {
							if ref.Table >= 0 && !dr.tokens[tokenOf(ref.Table, ref.Row)] {
								dr.tokens[tokenOf(ref.Table, ref.Row)] = true
							}
						}
					}
				}
			}
		}
	}

	if ms := f.CLR.Tables[MethodSpec]; ms != nil {
		cols := ms.Schema()
		parentCol := indexOf(cols, colIdxMethodDefOrRef, 0)
		blobCol := indexOf(cols, colBlob, 0)
		for r := uint32(0); r < ms.RowCount; r++ {
			if !dr.tokens[tokenOf(MethodSpec, r+1)] {
				continue
			}
			table, row := decodeCodedIndex(colIdxMethodDefOrRef, ms.Column(r, parentCol))
			if table >= 0 {
				if !dr.tokens[tokenOf(table, row)] {
					dr.tokens[tokenOf(table, row)] = true
					added = true
				}
			}
			sig := ms.Column(r, blobCol)
			if !dr.blobs[sig] {
				dr.blobs[sig] = true
				added = true
			}
		}
	}

	return added
}

// sweepCustomAttributes marks, for every CustomAttribute row whose Parent
// decodes to a token already reachable, the row itself plus its Type parent
// and Value blob as reachable (spec.md §4.12's "CustomAttribute sweep").
func (f *File) sweepCustomAttributes(dr *deepReach) {
	ca := f.CLR.Tables[CustomAttribute]
	if ca == nil {
		return
	}
	cols := ca.Schema()
	parentCol := indexOf(cols, colIdxHasCustomAttribute, 0)
	typeCol := indexOf(cols, colIdxCustomAttributeType, 0)
	blobCol := indexOf(cols, colBlob, 0)

	for r := uint32(0); r < ca.RowCount; r++ {
		table, row := decodeCodedIndex(colIdxHasCustomAttribute, ca.Column(r, parentCol))
		if table < 0 || !dr.tokens[tokenOf(table, row)] {
			continue
		}
		dr.tokens[tokenOf(CustomAttribute, r+1)] = true

		attrTable, attrRow := decodeCodedIndex(colIdxCustomAttributeType, ca.Column(r, typeCol))
		if attrTable >= 0 {
			dr.tokens[tokenOf(attrTable, attrRow)] = true
		}
		dr.blobs[ca.Column(r, blobCol)] = true
	}
}

// deepAuxTables lists every auxiliary table whose row payload is zeroed when
// not referenced by the deep-trim token set, per spec.md §4.12's final
// sweep.
var deepAuxTables = []int{TypeRef, MemberRef, Constant, CustomAttribute, StandAloneSig, TypeSpec, MethodSpec, InterfaceImpl}

// zeroUnreachableAuxRows zeros every row of each table in deepAuxTables whose
// 1-based token is not in dr.tokens, and returns a skip map (by table ID)
// suitable for passing to collectLiveHeapIndexes so those zeroed rows'
// former heap pointers stop keeping #Strings/#Blob entries alive.
func (f *File) zeroUnreachableAuxRows(ed editor, dr *deepReach) map[int]map[uint32]bool {
	skip := map[int]map[uint32]bool{}

	for _, table := range deepAuxTables {
		t := f.CLR.Tables[table]
		if t == nil {
			continue
		}
		excluded := map[uint32]bool{}
		for r := uint32(0); r < t.RowCount; r++ {
			if dr.tokens[tokenOf(table, r+1)] {
				continue
			}
			excluded[r] = true
			f.zeroAuxRow(ed, table, r)
		}
		if len(excluded) > 0 {
			skip[table] = excluded
		}
	}

	return skip
}
