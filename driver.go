// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

import "fmt"

// Driver (spec.md §4.13). TrimClassLevel and TrimMethodLevel are this
// module's two external entry points (spec.md §6): each clones the source
// image into a private buffer (the File itself is never mutated, per the
// ownership invariant in spec.md §3), computes the reachability closure,
// zeros unreachable method bodies and heap entries in place, and returns
// the resulting image alongside a summary of what was trimmed.

// Stats summarizes one trim run.
type Stats struct {
	MethodsTrimmed int
	TypesTrimmed   int
	BytesZeroed    uint64
	RegionsZeroed  int
}

func (s Stats) String() string {
	return fmt.Sprintf("methods=%d types=%d bytes=%d regions=%d",
		s.MethodsTrimmed, s.TypesTrimmed, s.BytesZeroed, s.RegionsZeroed)
}

// TrimClassLevel runs the S0 (class-granularity) trim: a TypeDef is either
// kept in full or has every one of its methods zeroed. deep enables the
// Reference Closure so that a type only reachable indirectly (through a
// live method's body or signature) is not mistakenly trimmed.
func (f *File) TrimClassLevel(invokedMethods []string, deep bool) ([]byte, Stats, error) {
	return f.trim(invokedMethods, deep, (*File).planClassLevelTrim)
}

// TrimMethodLevel runs the S1 (method-granularity) trim: every method not
// reachable from the seed set is zeroed, independent of whether its
// declaring class has other live members.
func (f *File) TrimMethodLevel(invokedMethods []string, deep bool) ([]byte, Stats, error) {
	return f.trim(invokedMethods, deep, (*File).planMethodLevelTrim)
}

type trimPlanner func(*File, *liveSet) (trimmedMethods, trimmedTypes map[uint32]bool)

// complementRows returns every row index of t not present in trimmed — the
// set of rows still physically intact in the output image.
func complementRows(t *MetadataTable, trimmed map[uint32]bool) map[uint32]bool {
	kept := map[uint32]bool{}
	if t == nil {
		return kept
	}
	for r := uint32(0); r < t.RowCount; r++ {
		if !trimmed[r] {
			kept[r] = true
		}
	}
	return kept
}

func (f *File) trim(invokedMethods []string, deep bool, plan trimPlanner) ([]byte, Stats, error) {
	if !f.HasCLR {
		return nil, Stats{}, ErrNoCLRHeader
	}

	seeds, err := f.ResolveInvoked(invokedMethods)
	if err != nil {
		return nil, Stats{}, err
	}

	live, err := f.buildLiveSet(seeds, deep)
	if err != nil {
		return nil, Stats{}, err
	}

	trimmedMethods, trimmedTypes := plan(f, live)
	trimmedFields, trimmedParams := f.trimmedFieldsAndParams(trimmedTypes, trimmedMethods)

	out := make([]byte, len(f.data))
	copy(out, f.data)
	ed := newZeroingEditor(out)

	if err := f.zeroMethodBodies(ed, trimmedMethods); err != nil {
		return nil, Stats{}, err
	}
	f.zeroRowPayloads(ed, trimmedTypes, trimmedMethods, trimmedFields, trimmedParams)

	skip := map[int]map[uint32]bool{
		TypeDef:   trimmedTypes,
		MethodDef: trimmedMethods,
		Field:     trimmedFields,
		Param:     trimmedParams,
	}

	if deep {
		preservedTypes := complementRows(f.CLR.Tables[TypeDef], trimmedTypes)
		preservedMethods := complementRows(f.CLR.Tables[MethodDef], trimmedMethods)
		preservedFields := complementRows(f.CLR.Tables[Field], trimmedFields)

		dr, err := f.buildDeepReach(preservedTypes, preservedMethods, preservedFields)
		if err != nil {
			return nil, Stats{}, err
		}

		for table, excluded := range f.zeroUnreachableAuxRows(ed, dr) {
			skip[table] = excluded
		}

		if err := f.sweepUS(ed, dr.us); err != nil {
			return nil, Stats{}, err
		}
	}

	ht := f.collectLiveHeapIndexes(skip)
	if err := ht.sweep(ed); err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{
		MethodsTrimmed: len(trimmedMethods),
		TypesTrimmed:   len(trimmedTypes),
		BytesZeroed:    ed.bytesZeroed,
		RegionsZeroed:  ed.regions,
	}
	f.logger.Infof("trim complete: %s", stats)

	return out, stats, nil
}

// zeroMethodBodies zeros the IL code range (never the header, which keeps
// the RVA/size fields the CLR loader would otherwise consult structurally
// valid) of every method in trimmed. A method with RVA 0 (abstract, or
// implemented natively/via runtime) has no body to zero and is skipped; a
// malformed body is logged and skipped, and the walk continues.
func (f *File) zeroMethodBodies(ed editor, trimmed map[uint32]bool) error {
	md := f.CLR.Tables[MethodDef]
	if md == nil {
		return nil
	}

	for m := range trimmed {
		if m >= md.RowCount {
			continue
		}
		rva := md.Column(m, 0)
		if rva == 0 {
			continue
		}

		body, err := f.readMethodBody(f.GetOffsetFromRva(rva))
		if err != nil {
			f.logger.Warnf("method %d: malformed body, skipping: %v", m, err)
			continue
		}
		ed.zero(body.Offset+body.CodeOffset, body.CodeSize)
	}

	return nil
}
