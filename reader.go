// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/zar

package zar

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
)

// trailerInfo is the parsed fixed trailer.
type trailerInfo struct {
	tableOff  uint64
	tableLen  uint64
	digest    [digestSize]byte
	fileCount uint32
	nodeCount uint32
	version   uint16
	flags     uint16
}

// Reader provides random-access reads over a finalized archive.
// One Reader may serve any number of concurrent handles and iterators:
// all parsed state is immutable and payload reads go through positioned
// ReadAt calls.
type Reader struct {
	// ra is the underlying random-access source used for payload reads.
	ra io.ReaderAt
	// file is set when Reader owns an *os.File opened via Open.
	file *os.File
	// table is the parsed immutable path table shared by all handles.
	table *pathTable
	// size is total source size in bytes.
	size int64
	// blockSize is the uncompressed block size recorded in the header.
	blockSize uint32
	trailer   trailerInfo
	// mu guards closed state and close operation.
	mu     sync.Mutex
	closed bool
}

// Open opens an archive file and parses its header, trailer, and path table.
func Open(path string) (*Reader, error) {
	return OpenWithOptions(path, ReaderOptions{})
}

// OpenWithOptions opens an archive file using explicit reader options.
func OpenWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	r, err := NewReaderFromReaderAtWithOptions(f, fi.Size(), opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	r.file = f

	return r, nil
}

// NewReaderFromReaderAt parses an archive from an existing ReaderAt and known size.
func NewReaderFromReaderAt(ra io.ReaderAt, size int64) (*Reader, error) {
	return NewReaderFromReaderAtWithOptions(ra, size, ReaderOptions{})
}

// NewReaderFromReaderAtWithOptions parses an archive from an existing ReaderAt
// and known size using explicit reader options.
func NewReaderFromReaderAtWithOptions(ra io.ReaderAt, size int64, opts ReaderOptions) (*Reader, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	r := &Reader{ra: ra, size: size}
	if err := r.parse(); err != nil {
		return nil, err
	}

	if opts.StrictIntegrity {
		if err := r.Verify(); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// parse reads and validates header, trailer, and path table.
func (r *Reader) parse() error {
	if r.size < headerSize+trailerSize {
		return ErrTrailerTooShort
	}

	var hdr [headerSize]byte
	if _, err := r.ra.ReadAt(hdr[:], 0); err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	if [4]byte(hdr[0:4]) != headerMagic {
		return fmt.Errorf("%w: bad header magic", ErrInvalidArchive)
	}

	headerVersion := binary.BigEndian.Uint16(hdr[4:6])
	if headerVersion > FormatVersion {
		return fmt.Errorf("%w: header version %d", ErrUnsupportedVersion, headerVersion)
	}

	r.blockSize = binary.BigEndian.Uint32(hdr[8:12])
	if r.blockSize < MinBlockSize || r.blockSize > MaxBlockSize {
		return fmt.Errorf("%w: header block size %d", ErrInvalidArchive, r.blockSize)
	}

	var tr [trailerSize]byte
	if _, err := r.ra.ReadAt(tr[:], r.size-trailerSize); err != nil {
		return fmt.Errorf("read trailer: %w", err)
	}

	if [4]byte(tr[60:64]) != trailerMagic {
		return fmt.Errorf("%w: bad trailer magic", ErrInvalidArchive)
	}

	r.trailer = trailerInfo{
		tableOff:  binary.BigEndian.Uint64(tr[0:8]),
		tableLen:  binary.BigEndian.Uint64(tr[8:16]),
		fileCount: binary.BigEndian.Uint32(tr[16:20]),
		nodeCount: binary.BigEndian.Uint32(tr[20:24]),
		version:   binary.BigEndian.Uint16(tr[56:58]),
		flags:     binary.BigEndian.Uint16(tr[58:60]),
	}
	copy(r.trailer.digest[:], tr[24:56])

	if r.trailer.version > FormatVersion {
		return fmt.Errorf("%w: trailer version %d", ErrUnsupportedVersion, r.trailer.version)
	}

	// The table must fill the gap between content region and trailer exactly.
	trailerStart := uint64(r.size - trailerSize)
	if r.trailer.tableOff < headerSize ||
		r.trailer.tableLen > trailerStart ||
		r.trailer.tableOff != trailerStart-r.trailer.tableLen {
		return fmt.Errorf("%w: table range [%d, %d) out of bounds",
			ErrInvalidArchive, r.trailer.tableOff, r.trailer.tableOff+r.trailer.tableLen)
	}

	if r.trailer.tableLen > uint64(math.MaxInt32) {
		return fmt.Errorf("%w: table length %d", ErrInvalidArchive, r.trailer.tableLen)
	}

	tableBytes := make([]byte, r.trailer.tableLen)
	if _, err := r.ra.ReadAt(tableBytes, int64(r.trailer.tableOff)); err != nil {
		return fmt.Errorf("read path table: %w", err)
	}

	table, err := parsePathTable(tableBytes, r.blockSize)
	if err != nil {
		return err
	}

	if uint32(len(table.nodes)) != r.trailer.nodeCount || uint32(table.files) != r.trailer.fileCount {
		return fmt.Errorf("%w: trailer entry counts disagree with path table", ErrInvalidArchive)
	}

	if err := validateBlockBounds(table, r.trailer.tableOff); err != nil {
		return err
	}

	r.table = table

	return nil
}

// validateBlockBounds checks that every file's framed blocks lie inside the
// content region before any payload read is attempted.
func validateBlockBounds(t *pathTable, tableOff uint64) error {
	for i := range t.nodes {
		node := &t.nodes[i]
		if node.kind != kindFile {
			continue
		}

		span := t.blockOffs[node.blockStart+node.blockCount] - t.blockOffs[node.blockStart]
		if node.dataOff < headerSize || node.dataOff+span > tableOff {
			return fmt.Errorf("%w: node %d blocks out of content region", ErrInvalidArchive, i)
		}
	}

	return nil
}

// Verify re-hashes every byte the trailer digest covers (the whole file
// except the trailer itself) and compares against the stored value.
// A mismatch does not invalidate the session; reads remain possible.
func (r *Reader) Verify() error {
	if r == nil || r.ra == nil {
		return ErrNilReader
	}

	sum, err := hashArchivePrefix(r.ra, r.size-trailerSize)
	if err != nil {
		return err
	}

	if sum != r.trailer.digest {
		return fmt.Errorf("%w: computed %x, trailer %x", ErrIntegrityMismatch, sum, r.trailer.digest)
	}

	return nil
}

// Close closes the underlying file if the reader owns one.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	if r.file != nil {
		return r.file.Close()
	}

	return nil
}

// isClosed reports whether Close was already called.
func (r *Reader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.closed
}

// BlockSize returns the uncompressed block size recorded in the header.
func (r *Reader) BlockSize() uint32 {
	return r.blockSize
}

// Digest returns the whole-archive digest stored in the trailer.
func (r *Reader) Digest() [digestSize]byte {
	return r.trailer.digest
}

// FileCount returns the number of file entries in the archive.
func (r *Reader) FileCount() int {
	return r.table.files
}

// Root returns the NodeID of the archive root directory.
func (r *Reader) Root() NodeID {
	return NodeID(0)
}

// Lookup resolves a slash- or backslash-separated path to a node.
// ASCII letters compare case-insensitively, all other bytes exact.
func (r *Reader) Lookup(path string) (NodeID, error) {
	if r == nil || r.table == nil {
		return 0, ErrNilReader
	}

	components, err := splitEntryPath(path)
	if err != nil {
		return 0, err
	}

	idx, ok := r.table.lookup(components)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrEntryNotFound, path)
	}

	return NodeID(idx), nil
}

// Stat resolves path and reports entry kind and uncompressed size.
func (r *Reader) Stat(path string) (FileInfo, error) {
	id, err := r.Lookup(path)
	if err != nil {
		return FileInfo{}, err
	}

	return r.StatNode(id)
}

// StatNode reports entry kind and uncompressed size for a resolved node.
func (r *Reader) StatNode(id NodeID) (FileInfo, error) {
	if uint32(id) >= uint32(len(r.table.nodes)) {
		return FileInfo{}, fmt.Errorf("%w: node %d", ErrEntryNotFound, id)
	}

	node := &r.table.nodes[uint32(id)]

	return FileInfo{
		Name:  node.name,
		Size:  node.size,
		IsDir: node.kind == kindDir,
	}, nil
}

// OpenFile resolves path to a file entry and returns a random-access handle.
// Directory paths resolve as not found, matching file-only lookup semantics.
func (r *Reader) OpenFile(path string) (*File, error) {
	if r == nil || r.ra == nil {
		return nil, ErrNilReader
	}

	if r.isClosed() {
		return nil, ErrClosed
	}

	id, err := r.Lookup(path)
	if err != nil {
		return nil, err
	}

	node := &r.table.nodes[uint32(id)]
	if node.kind != kindFile {
		return nil, fmt.Errorf("%w: no file at %q", ErrEntryNotFound, path)
	}

	return &File{r: r, node: node, id: uint32(id), cacheIdx: -1}, nil
}

// ReadFile reads the full decompressed content of the file at path.
func (r *Reader) ReadFile(path string) ([]byte, error) {
	f, err := r.OpenFile(path)
	if err != nil {
		return nil, err
	}

	return f.ReadRange(0, f.Size())
}

// Files returns the full paths of all file entries in table order.
func (r *Reader) Files() []string {
	out := make([]string, 0, r.table.files)
	for i := range r.table.nodes {
		if r.table.nodes[i].kind == kindFile {
			out = append(out, r.table.fullPath(uint32(i)))
		}
	}

	return out
}

// Iterate returns a cursor over the direct entries of directory dir.
// The cursor is a plain value: copy it to fork an independent walk.
func (r *Reader) Iterate(dir NodeID) (DirIterator, error) {
	if r == nil || r.table == nil {
		return DirIterator{}, ErrNilReader
	}

	if uint32(dir) >= uint32(len(r.table.nodes)) {
		return DirIterator{}, fmt.Errorf("%w: node %d", ErrEntryNotFound, dir)
	}

	if r.table.nodes[uint32(dir)].kind != kindDir {
		return DirIterator{}, fmt.Errorf("%w: node %d", ErrNotDirectory, dir)
	}

	return DirIterator{r: r, dir: uint32(dir)}, nil
}

// readBlock reads and decompresses block i of a file node.
func (r *Reader) readBlock(node *tableNode, i uint32) ([]byte, error) {
	frameOff, frameSize := r.table.blockFrame(node, i)

	frame := make([]byte, frameSize)
	if _, err := r.ra.ReadAt(frame, frameOff); err != nil {
		return nil, fmt.Errorf("read block %d: %w", i, err)
	}

	// The last block holds the tail of the file.
	expected := int64(r.blockSize)
	if rest := int64(node.size) - int64(i)*int64(r.blockSize); rest < expected {
		expected = rest
	}

	block, err := decompressBlock(frame, int(expected))
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", i, err)
	}

	return block, nil
}
