// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

import "sort"

// String Heap Trimmer (spec.md §4.11). The #Strings and #Blob heaps allow
// suffix sharing: two different table rows can point at overlapping byte
// ranges (one index landing partway into another entry's bytes), so a
// heap entry is only safe to zero when no live row's index falls anywhere
// within its byte span — not merely when its own starting offset is
// unreferenced.
type heapTrimmer struct {
	f             *File
	liveStrings   map[uint32]bool
	liveBlobs     map[uint32]bool
	liveGUIDs     map[uint32]bool
}

// collectLiveHeapIndexes walks every metadata table row not excluded by
// skip, recording every string/blob/GUID heap index it reads. Rows
// belonging to a trimmed method, field, param, wholly trimmed class, or (in
// deep trim) an unreachable auxiliary-table row are excluded: their own heap
// pointers no longer count as keeping an entry alive, though another, still
// live row pointing at the same bytes still does. skip is keyed by table ID;
// a nil or absent entry means no row of that table is excluded.
func (f *File) collectLiveHeapIndexes(skip map[int]map[uint32]bool) *heapTrimmer {
	ht := &heapTrimmer{
		f:           f,
		liveStrings: map[uint32]bool{},
		liveBlobs:   map[uint32]bool{},
		liveGUIDs:   map[uint32]bool{},
	}

	for table := 0; table < NumTables; table++ {
		t := f.CLR.Tables[table]
		if t == nil {
			continue
		}
		excluded := skip[table]
		schema := t.Schema()
		for r := uint32(0); r < t.RowCount; r++ {
			if excluded[r] {
				continue
			}
			for ci, kind := range schema {
				v := t.Column(r, ci)
				switch kind {
				case colString:
					ht.liveStrings[v] = true
				case colBlob:
					ht.liveBlobs[v] = true
				case colGUID:
					ht.liveGUIDs[v] = true
				}
			}
		}
	}

	return ht
}

// sweep zeros every #Strings/#Blob heap entry whose byte span contains no
// live index, using ed to perform the writes (or merely tally them, in
// count mode).
func (ht *heapTrimmer) sweep(ed editor) error {
	if err := ht.sweepStrings(ed); err != nil {
		return err
	}
	return ht.sweepBlobs(ed)
}

func (ht *heapTrimmer) sweepStrings(ed editor) error {
	f := ht.f
	if f.CLR.StringsHeapSize == 0 {
		return nil
	}

	live := sortedKeys(ht.liveStrings)
	idx := uint32(0)
	for idx < f.CLR.StringsHeapSize {
		start := idx
		end := idx
		for end < f.CLR.StringsHeapSize {
			b, err := f.ReadUint8(f.CLR.StringsHeapOffset + end)
			if err != nil {
				return err
			}
			end++
			if b == 0 {
				break
			}
		}
		// [start, end) is one NUL-terminated entry, including its
		// terminator. Zero it only if no live index lands anywhere in
		// [start, end), the terminator included.
		if !anyIndexInRange(live, start, end) && start != 0 {
			ed.zero(f.CLR.StringsHeapOffset+start, end-start)
		}
		idx = end
	}
	return nil
}

func (ht *heapTrimmer) sweepBlobs(ed editor) error {
	f := ht.f
	if f.CLR.BlobHeapSize == 0 {
		return nil
	}

	live := sortedKeys(ht.liveBlobs)
	idx := uint32(0)
	for idx < f.CLR.BlobHeapSize {
		start := idx
		head, err := f.ReadBytesAtOffset(f.CLR.BlobHeapOffset+idx, min32(4, f.CLR.BlobHeapSize-idx))
		if err != nil {
			return err
		}
		if len(head) == 0 {
			break
		}
		size, n, err := decodeCompressedUint(head)
		if err != nil {
			// A malformed or padding byte: stop sweeping the remainder of
			// this heap rather than risk destroying an entry we
			// misparsed.
			return nil
		}
		end := start + uint32(n) + size
		if end > f.CLR.BlobHeapSize {
			return nil
		}

		if !anyIndexInRange(live, start, end) && start != 0 {
			// Zero only the data bytes; the compressed length prefix at
			// [start, start+n) must survive so the heap can still be walked
			// as a sequence of (length, data) entries afterward.
			ed.zero(f.CLR.BlobHeapOffset+start+uint32(n), size)
		}
		idx = end
	}
	return nil
}

// sweepUS zeros every #US heap entry's character bytes (preserving its
// compressed length prefix, like #Blob) whose offset is not in live —
// spec.md §4.12's ldstr reachability sweep, run only in deep trim.
func (f *File) sweepUS(ed editor, live map[uint32]bool) error {
	if f.CLR.USHeapSize == 0 {
		return nil
	}
	liveSorted := sortedKeys(live)

	idx := uint32(0)
	for idx < f.CLR.USHeapSize {
		start := idx
		head, err := f.ReadBytesAtOffset(f.CLR.USHeapOffset+idx, min32(4, f.CLR.USHeapSize-idx))
		if err != nil {
			return err
		}
		if len(head) == 0 {
			break
		}
		size, n, err := decodeCompressedUint(head)
		if err != nil {
			return nil
		}
		end := start + uint32(n) + size
		if end > f.CLR.USHeapSize {
			return nil
		}

		if !anyIndexInRange(liveSorted, start, end) && start != 0 {
			ed.zero(f.CLR.USHeapOffset+start+uint32(n), size)
		}
		idx = end
	}
	return nil
}

func sortedKeys(m map[uint32]bool) []uint32 {
	out := make([]uint32, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// anyIndexInRange reports whether any value in the sorted slice live falls
// within [start, end).
func anyIndexInRange(live []uint32, start, end uint32) bool {
	i := sort.Search(len(live), func(i int) bool { return live[i] >= start })
	return i < len(live) && live[i] < end
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
