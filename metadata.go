// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrtrim

import "encoding/binary"

// COMImageFlagsType represents a COM+ header entry point flag type.
type COMImageFlagsType uint32

// COM+ Header entry point flags.
const (
	COMImageFlagsILOnly           COMImageFlagsType = 0x00000001
	COMImageFlags32BitRequired    COMImageFlagsType = 0x00000002
	COMImageFlagILLibrary         COMImageFlagsType = 0x00000004
	COMImageFlagsStrongNameSigned COMImageFlagsType = 0x00000008
	COMImageFlagsNativeEntrypoint COMImageFlagsType = 0x00000010
	COMImageFlagsTrackDebugData   COMImageFlagsType = 0x00010000
	COMImageFlags32BitPreferred   COMImageFlagsType = 0x00020000
)

// ImageCOR20Header is the CLR 2.0 (.cor20) header structure pointed to by
// the CLR data directory.
type ImageCOR20Header struct {
	Cb                      uint32
	MajorRuntimeVersion     uint16
	MinorRuntimeVersion     uint16
	MetaData                ImageDataDirectory
	Flags                   COMImageFlagsType
	EntryPointRVAorToken    uint32
	Resources               ImageDataDirectory
	StrongNameSignature     ImageDataDirectory
	CodeManagerTable        ImageDataDirectory
	VTableFixups            ImageDataDirectory
	ExportAddressTableJumps ImageDataDirectory
	ManagedNativeHeader     ImageDataDirectory
}

// MetadataHeader is the metadata root: the BSJB signature, version string,
// and stream count.
type MetadataHeader struct {
	Signature     uint32
	MajorVersion  uint16
	MinorVersion  uint16
	ExtraData     uint32
	VersionString uint32
	Version       string
	Flags         uint8
	Streams       uint16
}

// MetadataStreamHeader describes one heap/table stream within the metadata
// root: its offset relative to the metadata root, its size, and its name.
type MetadataStreamHeader struct {
	Offset uint32
	Size   uint32
	Name   string

	// FileOffset is the absolute file offset corresponding to Offset,
	// resolved once at parse time so callers never have to re-derive it
	// from an RVA.
	FileOffset uint32
}

// MetadataTableStreamHeader is the header of the #~/#- stream: schema
// version, heap index widths, and the table presence/sort bit vectors.
type MetadataTableStreamHeader struct {
	Reserved     uint32
	MajorVersion uint8
	MinorVersion uint8
	Heaps        uint8
	RID          uint8
	MaskValid    uint64
	Sorted       uint64
}

// MetadataTable holds the decoded rows of one table. Each row is the raw
// column values in tableSchemas[id] order: heap indexes and table indexes
// unresolved, coded indexes still packed as tag+row. Callers use
// decodeCodedIndex/the Column accessor to interpret a given column; keeping
// rows this generic (rather than one hand-written struct per table, as the
// teacher's dotnet_metadata_tables.go does) lets the reachability walkers in
// closure.go and deep_closure.go treat all 45 tables uniformly instead of special-casing
// each one — the trim engine needs exactly that uniform column-kind-aware
// access, which 45 bespoke structs don't give it.
type MetadataTable struct {
	ID       int
	RowCount uint32
	rows     [][]uint32
}

// Column returns the raw value of column col (0-based, in schema order) of
// row (0-based). It panics on an out-of-range row or column, since every
// caller derives both from a reference that was itself validated against
// this same table.
func (t *MetadataTable) Column(row uint32, col int) uint32 {
	return t.rows[row][col]
}

// Schema returns the column-kind list backing this table's rows.
func (t *MetadataTable) Schema() []columnKind {
	return tableSchemas[t.ID]
}

// CLRData holds the parsed CLR header, metadata root, heap streams, and the
// 45 metadata tables of a managed image.
type CLRData struct {
	Header       ImageCOR20Header
	MetaHeader   MetadataHeader
	Streams      []MetadataStreamHeader
	TableHeader  MetadataTableStreamHeader
	Tables       [NumTables]*MetadataTable
	Geometry     *geometry

	StringIdxSize uint32
	GUIDIdxSize   uint32
	BlobIdxSize   uint32

	// Absolute file offset and size of each well-known heap, 0 if absent.
	StringsHeapOffset, StringsHeapSize uint32
	USHeapOffset, USHeapSize           uint32
	GUIDHeapOffset, GUIDHeapSize       uint32
	BlobHeapOffset, BlobHeapSize       uint32
}

func (f *File) streamByName(name string) *MetadataStreamHeader {
	for i := range f.CLR.Streams {
		if f.CLR.Streams[i].Name == name {
			return &f.CLR.Streams[i]
		}
	}
	return nil
}

// parseCLRHeaderDirectory parses the CLR header located by the PE header's
// 15th data directory entry, then the metadata root, stream directory, and
// the full set of metadata tables it describes.
func (f *File) parseCLRHeaderDirectory(rva, size uint32) error {
	var clrHeader ImageCOR20Header
	offset := f.GetOffsetFromRva(rva)
	if err := f.structUnpack(&clrHeader, offset, size); err != nil {
		return err
	}
	f.CLR.Header = clrHeader

	if clrHeader.MetaData.VirtualAddress == 0 || clrHeader.MetaData.Size == 0 {
		return nil
	}
	f.HasCLR = true

	metaRoot := f.GetOffsetFromRva(clrHeader.MetaData.VirtualAddress)
	mh, err := f.parseMetadataHeader(metaRoot)
	if err != nil {
		return err
	}
	f.CLR.MetaHeader = mh

	streamDirOff := metaRoot + 16 + mh.VersionString + 4
	var tableStreamOff, tableStreamSize uint32
	off := streamDirOff
	for i := uint16(0); i < mh.Streams; i++ {
		var sh MetadataStreamHeader
		if sh.Offset, err = f.ReadUint32(off); err != nil {
			return err
		}
		if sh.Size, err = f.ReadUint32(off + 4); err != nil {
			return err
		}
		off += 8

		for j := 0; ; j++ {
			c, err := f.ReadUint8(off)
			if err != nil {
				return err
			}
			off++
			if c == 0 && (j+1)%4 == 0 {
				break
			}
			if c != 0 {
				sh.Name += string(rune(c))
			}
		}

		sh.FileOffset = f.GetOffsetFromRva(clrHeader.MetaData.VirtualAddress + sh.Offset)
		f.CLR.Streams = append(f.CLR.Streams, sh)

		switch sh.Name {
		case "#~", "#-":
			tableStreamOff, tableStreamSize = sh.FileOffset, sh.Size
		case "#Strings":
			f.CLR.StringsHeapOffset, f.CLR.StringsHeapSize = sh.FileOffset, sh.Size
		case "#US":
			f.CLR.USHeapOffset, f.CLR.USHeapSize = sh.FileOffset, sh.Size
		case "#GUID":
			f.CLR.GUIDHeapOffset, f.CLR.GUIDHeapSize = sh.FileOffset, sh.Size
		case "#Blob":
			f.CLR.BlobHeapOffset, f.CLR.BlobHeapSize = sh.FileOffset, sh.Size
		}
	}

	if tableStreamSize == 0 {
		return nil
	}
	return f.parseTableStream(tableStreamOff)
}

func (f *File) parseMetadataHeader(offset uint32) (MetadataHeader, error) {
	var mh MetadataHeader
	var err error

	if mh.Signature, err = f.ReadUint32(offset); err != nil {
		return mh, err
	}
	if mh.Signature != BSJBSignature {
		return mh, ErrBSJBSignatureNotFound
	}
	if mh.MajorVersion, err = f.ReadUint16(offset + 4); err != nil {
		return mh, err
	}
	if mh.MinorVersion, err = f.ReadUint16(offset + 6); err != nil {
		return mh, err
	}
	if mh.ExtraData, err = f.ReadUint32(offset + 8); err != nil {
		return mh, err
	}
	if mh.VersionString, err = f.ReadUint32(offset + 12); err != nil {
		return mh, err
	}
	if mh.Version, err = f.getStringAtOffset(offset+16, mh.VersionString); err != nil {
		return mh, err
	}

	tail := offset + 16 + mh.VersionString
	if mh.Flags, err = f.ReadUint8(tail); err != nil {
		return mh, err
	}
	if mh.Streams, err = f.ReadUint16(tail + 2); err != nil {
		return mh, err
	}
	return mh, nil
}

// parseTableStream parses the #~/#- header, the row-count array, and every
// present table's rows, using the computed geometry for row offsets.
func (f *File) parseTableStream(offset uint32) error {
	var hdr MetadataTableStreamHeader
	hdrSize := uint32(binary.Size(hdr))
	if err := f.structUnpack(&hdr, offset, hdrSize); err != nil {
		return err
	}
	f.CLR.TableHeader = hdr

	f.CLR.StringIdxSize = f.heapIndexSize(StringHeapBit)
	f.CLR.GUIDIdxSize = f.heapIndexSize(GUIDHeapBit)
	f.CLR.BlobIdxSize = f.heapIndexSize(BlobHeapBit)

	off := offset + hdrSize
	var rowCounts [NumTables]uint32
	for i := 0; i < NumTables; i++ {
		if !IsBitSet(hdr.MaskValid, i) {
			continue
		}
		n, err := f.ReadUint32(off)
		if err != nil {
			return err
		}
		rowCounts[i] = n
		off += 4
	}

	geom := newGeometry(rowCounts, f.CLR.StringIdxSize, f.CLR.GUIDIdxSize, f.CLR.BlobIdxSize, off)
	f.CLR.Geometry = geom

	for i := 0; i < NumTables; i++ {
		if !IsBitSet(hdr.MaskValid, i) {
			continue
		}
		schema := tableSchemas[i]
		table := &MetadataTable{ID: i, RowCount: rowCounts[i], rows: make([][]uint32, rowCounts[i])}
		for r := uint32(0); r < rowCounts[i]; r++ {
			cur := geom.rowOffset(i, r)
			vals := make([]uint32, len(schema))
			for ci, kind := range schema {
				w := geom.columnWidth(kind)
				v, err := f.readColumn(cur, w)
				if err != nil {
					return err
				}
				vals[ci] = v
				cur += w
			}
			table.rows[r] = vals
		}
		f.CLR.Tables[i] = table
	}

	return nil
}

func (f *File) heapIndexSize(bit int) uint32 {
	if IsBitSet(uint64(f.CLR.TableHeader.Heaps), bit) {
		return 4
	}
	return 2
}

func (f *File) readColumn(offset, width uint32) (uint32, error) {
	switch width {
	case 1:
		v, err := f.ReadUint8(offset)
		return uint32(v), err
	case 2:
		v, err := f.ReadUint16(offset)
		return uint32(v), err
	default:
		return f.ReadUint32(offset)
	}
}
