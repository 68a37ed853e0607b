// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

// S1 Trimmer (spec.md §4.10): method-granularity trim. Unlike S0, a class
// with some live methods still has its individually-unreferenced methods
// zeroed; only a method directly or transitively reachable from the seed
// set survives.
func (f *File) planMethodLevelTrim(live *liveSet) (trimmedMethods, trimmedTypes map[uint32]bool) {
	trimmedMethods = map[uint32]bool{}
	trimmedTypes = map[uint32]bool{}

	md := f.CLR.Tables[MethodDef]
	if md == nil {
		return trimmedMethods, trimmedTypes
	}

	for m := uint32(0); m < md.RowCount; m++ {
		if !live.methods[m] {
			trimmedMethods[m] = true
		}
	}

	td := f.CLR.Tables[TypeDef]
	if td != nil {
		for t := uint32(0); t < td.RowCount; t++ {
			if live.types[t] {
				continue
			}
			first, last := f.methodRange(t)
			wholeClassTrimmed := true
			for m := first; m < last; m++ {
				if !trimmedMethods[m] {
					wholeClassTrimmed = false
					break
				}
			}
			if wholeClassTrimmed {
				trimmedTypes[t] = true
			}
		}
	}

	return trimmedMethods, trimmedTypes
}
