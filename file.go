// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package clrtrim reads a managed-code PE image conforming to the ECMA-335
// Common Language Infrastructure specification, and produces a byte-for-byte
// identical image in which the payload of entities unreachable from a
// caller-supplied set of invoked method names has been overwritten with
// zero bytes.
package clrtrim

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/chexiongsheng/clrtrim/log"
)

// Options configures parsing of a File.
type Options struct {
	// Logger is a custom log sink. When nil, a standard logger filtered to
	// warnings and errors is used.
	Logger log.Logger
}

// File represents an open managed PE image: DOS/NT headers, section table,
// and CLR metadata. It never mutates its data; the trim engine clones it into
// a private buffer before zeroing anything (see Driver).
type File struct {
	DOSHeader        ImageDOSHeader
	NtHeader         ImageNtHeader
	Is64             bool
	OptionalHeader32 ImageOptionalHeader32
	OptionalHeader64 ImageOptionalHeader64
	Sections         []Section
	HasCLR           bool
	CLR              CLRData

	data   []byte
	size   uint32
	f      *os.File
	mapped mmap.MMap
	opts   *Options
	logger *log.Helper
}

// New memory-maps the named file read-only and parses it.
func New(name string, opts *Options) (*File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	mapped, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	file := newFile(opts)
	file.data = mapped
	file.size = uint32(len(mapped))
	file.f = f
	file.mapped = mapped
	return file, nil
}

// NewBytes parses a managed PE image already held in memory.
func NewBytes(data []byte, opts *Options) (*File, error) {
	file := newFile(opts)
	file.data = data
	file.size = uint32(len(data))
	return file, nil
}

func newFile(opts *Options) *File {
	file := &File{opts: opts}
	if file.opts == nil {
		file.opts = &Options{}
	}

	var logger log.Logger
	if file.opts.Logger == nil {
		logger = log.NewStdLogger(os.Stdout)
		file.logger = log.NewHelper(log.NewFilter(logger, log.FilterLevel(log.LevelWarn)))
	} else {
		file.logger = log.NewHelper(file.opts.Logger)
	}
	return file
}

// Close releases the memory mapping and underlying file handle, if any.
func (f *File) Close() error {
	if f.mapped != nil {
		_ = f.mapped.Unmap()
	}
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

// Parse parses the DOS/NT headers, the section table, and the CLR metadata.
// It returns ErrNoCLRHeader if the image carries no CLR data directory —
// callers that only need the PE structure for diagnostics may ignore that
// specific error.
func (f *File) Parse() error {
	if f.size < TinyPESize {
		return ErrInvalidPESize
	}

	if err := f.ParseDOSHeader(); err != nil {
		return err
	}
	if err := f.ParseNTHeader(); err != nil {
		return err
	}
	if err := f.ParseSectionHeader(); err != nil {
		return err
	}

	dir := f.dataDirectory(ImageDirectoryEntryCLR)
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return ErrNoCLRHeader
	}

	return f.parseCLRHeaderDirectory(dir.VirtualAddress, dir.Size)
}

// Bytes returns the original, read-only image bytes. The trim engine clones
// this slice before editing it.
func (f *File) Bytes() []byte {
	return f.data
}

// Size returns the image length in bytes.
func (f *File) Size() uint32 {
	return f.size
}
