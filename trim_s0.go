// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

// S0 Trimmer (spec.md §4.9): class-granularity trim. A TypeDef is trimmed
// as a whole, or not at all — if even one of its methods is live, every
// method of that class is kept untouched, since S0's contract is coarser
// than S1's per-method trim. This matches the spirit of the teacher's own
// per-directory granularity in ParseDataDirectories: operate on one unit at
// a time, never partially.
func (f *File) planClassLevelTrim(live *liveSet) (trimmedMethods, trimmedTypes map[uint32]bool) {
	trimmedMethods = map[uint32]bool{}
	trimmedTypes = map[uint32]bool{}

	td := f.CLR.Tables[TypeDef]
	if td == nil {
		return trimmedMethods, trimmedTypes
	}

	for t := uint32(0); t < td.RowCount; t++ {
		first, last := f.methodRange(t)

		classHasLiveMethod := live.types[t]
		if !classHasLiveMethod {
			for m := first; m < last; m++ {
				if live.methods[m] {
					classHasLiveMethod = true
					break
				}
			}
		}

		if classHasLiveMethod {
			continue
		}

		trimmedTypes[t] = true
		for m := first; m < last; m++ {
			trimmedMethods[m] = true
		}
	}

	return trimmedMethods, trimmedTypes
}
