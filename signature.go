// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

// Signature Parser (spec.md §4.5, ECMA-335 §II.23.2/§II.23.1). Field,
// method, and local-variable signatures are blobs of ELEMENT_TYPE-tagged
// nodes; the reachability walker only needs the set of type tokens a
// signature mentions (to mark the TypeDef/TypeRef/TypeSpec rows reachable),
// so the tree built here is lazy and shallow: each node knows its element
// type and, for the handful of tags that embed a type token or nested
// signature, enough to recurse without decoding fields a trimmer never
// inspects (custom modifiers' extra data, calling-convention bits).

// CLI element type tags (ECMA-335 §II.23.1.16), the subset this module's
// reachability walk needs to recognize.
const (
	ElementTypeEnd          = 0x00
	ElementTypeVoid         = 0x01
	ElementTypeBoolean      = 0x02
	ElementTypeChar         = 0x03
	ElementTypeI1           = 0x04
	ElementTypeU1           = 0x05
	ElementTypeI2           = 0x06
	ElementTypeU2           = 0x07
	ElementTypeI4           = 0x08
	ElementTypeU4           = 0x09
	ElementTypeI8           = 0x0a
	ElementTypeU8           = 0x0b
	ElementTypeR4           = 0x0c
	ElementTypeR8           = 0x0d
	ElementTypeString       = 0x0e
	ElementTypePtr          = 0x0f
	ElementTypeByRef        = 0x10
	ElementTypeValueType    = 0x11
	ElementTypeClass        = 0x12
	ElementTypeVar          = 0x13
	ElementTypeArray        = 0x14
	ElementTypeGenericInst  = 0x15
	ElementTypeTypedByRef   = 0x16
	ElementTypeI            = 0x18
	ElementTypeU            = 0x19
	ElementTypeFnPtr        = 0x1b
	ElementTypeObject       = 0x1c
	ElementTypeSZArray      = 0x1d
	ElementTypeMVar         = 0x1e
	ElementTypeCModReqd     = 0x1f
	ElementTypeCModOpt      = 0x20
	ElementTypeInternal     = 0x21
	ElementTypeModifier     = 0x40
	ElementTypeSentinel     = 0x41
	ElementTypePinned       = 0x45
)

// typeRef identifies a type token embedded in a signature: the coded index
// decodes to a table ID plus 1-based row.
type typeRef struct {
	Table int
	Row   uint32
}

// sigNode is one ELEMENT_TYPE node of a decoded signature tree.
type sigNode struct {
	Tag      byte
	Type     *typeRef // set for VALUETYPE/CLASS/CMOD_*
	Elem     *sigNode // pointee/element for PTR/BYREF/ARRAY/SZARRAY/pinned
	Generic  *typeRef // generic type definition for GENERICINST
	Args     []*sigNode
	RankDims uint32
}

// typeRefs collects every typeRef reachable from a signature subtree.
func (n *sigNode) typeRefs(out *[]typeRef) {
	if n == nil {
		return
	}
	if n.Type != nil {
		*out = append(*out, *n.Type)
	}
	if n.Generic != nil {
		*out = append(*out, *n.Generic)
	}
	n.Elem.typeRefs(out)
	for _, a := range n.Args {
		a.typeRefs(out)
	}
}

// parseSignatureType decodes one type node starting at b[0], returning the
// node and the number of bytes consumed. Custom modifiers (CMOD_REQD/OPT)
// are flattened into the Args list of the node they modify rather than
// represented as a wrapper, since the walker only cares about the type
// tokens they carry.
func parseSignatureType(b []byte) (*sigNode, int, error) {
	if len(b) == 0 {
		return nil, 0, ErrMalformedBlob
	}

	tag := b[0]
	consumed := 1
	node := &sigNode{Tag: tag}

	switch tag {
	case ElementTypeCModReqd, ElementTypeCModOpt:
		tr, n, err := decodeTypeDefOrRefToken(b[consumed:])
		if err != nil {
			return nil, 0, err
		}
		consumed += n
		inner, n, err := parseSignatureType(b[consumed:])
		if err != nil {
			return nil, 0, err
		}
		consumed += n
		inner.Args = append(inner.Args, &sigNode{Tag: tag, Type: &tr})
		return inner, consumed, nil

	case ElementTypeValueType, ElementTypeClass:
		tr, n, err := decodeTypeDefOrRefToken(b[consumed:])
		if err != nil {
			return nil, 0, err
		}
		consumed += n
		node.Type = &tr

	case ElementTypePtr, ElementTypeByRef, ElementTypePinned, ElementTypeSZArray:
		elem, n, err := parseSignatureType(b[consumed:])
		if err != nil {
			return nil, 0, err
		}
		consumed += n
		node.Elem = elem

	case ElementTypeArray:
		elem, n, err := parseSignatureType(b[consumed:])
		if err != nil {
			return nil, 0, err
		}
		consumed += n
		node.Elem = elem

		rank, n, err := decodeCompressedUint(b[consumed:])
		if err != nil {
			return nil, 0, err
		}
		consumed += n
		node.RankDims = rank

		numSizes, n, err := decodeCompressedUint(b[consumed:])
		if err != nil {
			return nil, 0, err
		}
		consumed += n
		for i := uint32(0); i < numSizes; i++ {
			_, n, err := decodeCompressedUint(b[consumed:])
			if err != nil {
				return nil, 0, err
			}
			consumed += n
		}
		numLoBounds, n, err := decodeCompressedUint(b[consumed:])
		if err != nil {
			return nil, 0, err
		}
		consumed += n
		for i := uint32(0); i < numLoBounds; i++ {
			_, n, err := decodeCompressedInt(b[consumed:])
			if err != nil {
				return nil, 0, err
			}
			consumed += n
		}

	case ElementTypeGenericInst:
		if consumed >= len(b) {
			return nil, 0, ErrMalformedBlob
		}
		// GENERICINST (CLASS | VALUETYPE) TypeDefOrRef GenArgCount Type*
		consumed++ // skip the CLASS/VALUETYPE tag
		tr, n, err := decodeTypeDefOrRefToken(b[consumed:])
		if err != nil {
			return nil, 0, err
		}
		consumed += n
		node.Generic = &tr

		argCount, n, err := decodeCompressedUint(b[consumed:])
		if err != nil {
			return nil, 0, err
		}
		consumed += n
		for i := uint32(0); i < argCount; i++ {
			arg, n, err := parseSignatureType(b[consumed:])
			if err != nil {
				return nil, 0, err
			}
			consumed += n
			node.Args = append(node.Args, arg)
		}

	case ElementTypeFnPtr:
		// Skip a full method signature: calling convention byte, param
		// count, return type, and each parameter type.
		sig, n, err := parseMethodSignature(b[consumed:])
		if err != nil {
			return nil, 0, err
		}
		consumed += n
		node.Args = append(node.Args, sig.RetType)
		node.Args = append(node.Args, sig.Params...)

	case ElementTypeVar, ElementTypeMVar:
		_, n, err := decodeCompressedUint(b[consumed:])
		if err != nil {
			return nil, 0, err
		}
		consumed += n

	default:
		// Primitive element types (I4, STRING, OBJECT, ...) carry no
		// further payload.
	}

	return node, consumed, nil
}

// decodeTypeDefOrRefToken decodes the compressed TypeDefOrRef coded index
// that follows CLASS/VALUETYPE/CMOD_* tags in a signature. Signatures use a
// distinct (blob-local) encoding from the table-column coded index: the tag
// is the low 2 bits, same table order as colIdxTypeDefOrRef, but packed via
// decodeCompressedUint rather than a fixed-width column.
func decodeTypeDefOrRefToken(b []byte) (typeRef, int, error) {
	v, n, err := decodeCompressedUint(b)
	if err != nil {
		return typeRef{}, 0, err
	}
	table, row := decodeCodedIndex(colIdxTypeDefOrRef, v)
	return typeRef{Table: table, Row: row}, n, nil
}

// methodSig is the decoded shape of a MethodDefSig/MethodRefSig/
// StandAloneMethodSig blob (ECMA-335 §II.23.2.1).
type methodSig struct {
	CallingConvention byte
	GenericParamCount uint32
	RetType           *sigNode
	Params            []*sigNode
}

// parseMethodSignature decodes a method signature blob.
func parseMethodSignature(b []byte) (*methodSig, int, error) {
	if len(b) == 0 {
		return nil, 0, ErrMalformedBlob
	}
	sig := &methodSig{CallingConvention: b[0]}
	consumed := 1

	const genericFlag = 0x10
	if sig.CallingConvention&genericFlag != 0 {
		n, m, err := decodeCompressedUint(b[consumed:])
		if err != nil {
			return nil, 0, err
		}
		sig.GenericParamCount = n
		consumed += m
	}

	paramCount, n, err := decodeCompressedUint(b[consumed:])
	if err != nil {
		return nil, 0, err
	}
	consumed += n

	ret, n, err := parseSignatureType(b[consumed:])
	if err != nil {
		return nil, 0, err
	}
	consumed += n
	sig.RetType = ret

	for i := uint32(0); i < paramCount; i++ {
		if consumed < len(b) && b[consumed] == ElementTypeSentinel {
			consumed++
		}
		p, n, err := parseSignatureType(b[consumed:])
		if err != nil {
			return nil, 0, err
		}
		consumed += n
		sig.Params = append(sig.Params, p)
	}

	return sig, consumed, nil
}

// typeRefsInMethodSignature returns every type token a method signature
// mentions, across its return type and parameters.
func typeRefsInMethodSignature(b []byte) []typeRef {
	sig, _, err := parseMethodSignature(b)
	if err != nil {
		return nil
	}
	var out []typeRef
	sig.RetType.typeRefs(&out)
	for _, p := range sig.Params {
		p.typeRefs(&out)
	}
	return out
}

// typeRefsInFieldSignature returns every type token a field signature
// mentions (ECMA-335 §II.23.2.4: FIELD CustomMod* Type).
func typeRefsInFieldSignature(b []byte) []typeRef {
	if len(b) == 0 || b[0] != 0x06 {
		return nil
	}
	node, _, err := parseSignatureType(b[1:])
	if err != nil {
		return nil
	}
	var out []typeRef
	node.typeRefs(&out)
	return out
}
