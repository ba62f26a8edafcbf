// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/zar

package zar

import (
	"io"

	"github.com/woozymasta/pathrules"
)

// Internal binary layout and format limits.
const (
	headerSize      = 16          // fixed archive header size in bytes
	trailerSize     = 64          // fixed trailer size in bytes
	frameHeaderSize = 4           // per-block frame header (scheme + u24 payload length)
	digestSize      = 32          // SHA-256 digest size in trailer
	nodeRecordSize  = 36          // serialized path table node record
	tableHeaderSize = 16          // serialized path table header
	maxNameLen      = 512         // max entry name component length
	maxFileSize     = 1<<48 - 1   // max uncompressed file size
	maxFramePayload = 1<<24 - 1   // u24 frame payload bound
	invalidNode     = ^uint32(0)  // parent marker for the root node
	// FormatVersion is the on-disk format version written and accepted by this package.
	FormatVersion = 1
)

// Block size tuning bounds. Payloads must always fit the u24 frame field,
// even when a block is stored raw.
const (
	DefaultBlockSize = 64 * 1024
	MinBlockSize     = 1024
	MaxBlockSize     = 8 * 1024 * 1024
)

var (
	headerMagic  = [4]byte{'Z', 'A', 'R', 'C'}
	trailerMagic = [4]byte{'Z', 'A', 'R', 'E'}
)

// CompressionScheme identifies the per-block codec recorded in each frame.
type CompressionScheme uint8

// Block compression schemes. SchemeRaw, SchemeZstd, and SchemeLZSS are the
// on-disk frame scheme values.
const (
	// SchemeRaw stores the block payload without compression.
	// As the zero value of PackOptions.Scheme it means "default codec";
	// use SchemeStore to request raw storage explicitly.
	SchemeRaw CompressionScheme = 0
	// SchemeZstd stores zstd-compressed payload (default).
	SchemeZstd CompressionScheme = 1
	// SchemeLZSS stores LZSS-compressed payload.
	SchemeLZSS CompressionScheme = 2
	// SchemeStore selects raw storage for the whole archive through
	// PackOptions.Scheme. It is a pack-time alias and never appears in a
	// frame; frames of a stored archive record SchemeRaw.
	SchemeStore CompressionScheme = 0xff
)

// valid reports whether scheme is known to this implementation.
func (s CompressionScheme) valid() bool {
	return s == SchemeRaw || s == SchemeZstd || s == SchemeLZSS
}

// String returns human-readable scheme name.
func (s CompressionScheme) String() string {
	switch s {
	case SchemeRaw:
		return "raw"
	case SchemeZstd:
		return "zstd"
	case SchemeLZSS:
		return "lzss"
	case SchemeStore:
		return "store"
	default:
		return "unknown"
	}
}

// NodeID identifies one entry inside an opened archive's path table.
// The zero value is the root directory of the archive.
type NodeID uint32

// Input describes one source item to be packed into an archive.
type Input struct {
	// Open returns raw source stream for this entry. Ignored for directories.
	Open func() (io.ReadCloser, error) `json:"-" yaml:"-"`
	// Path is destination path inside the archive.
	Path string `json:"path" yaml:"path"`
	// Size is declared uncompressed size in bytes. The stream must yield
	// exactly this many bytes. Ignored for directories.
	Size int64 `json:"size,omitempty" yaml:"size,omitempty"`
	// Dir marks the input as an (possibly empty) directory entry.
	Dir bool `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// PackEntryProgress contains one completed entry write event from pack flow.
type PackEntryProgress struct {
	// Path is entry path written to archive.
	Path string `json:"path" yaml:"path"`
	// Size is uncompressed entry size in bytes.
	Size uint64 `json:"size" yaml:"size"`
	// StoredSize is total framed block bytes written for the entry.
	StoredSize uint64 `json:"stored_size" yaml:"stored_size"`
	// Blocks is number of blocks backing the entry.
	Blocks int `json:"blocks" yaml:"blocks"`
	// CompressionCandidate reports whether compression path was selected for this entry.
	CompressionCandidate bool `json:"compression_candidate,omitempty" yaml:"compression_candidate,omitempty"`
}

// PackOptions configures pack behavior.
type PackOptions struct {
	// OnEntryDone is called after one file entry is fully written to the archive.
	OnEntryDone func(entry PackEntryProgress) `json:"-" yaml:"-"`
	// Compress defines ordered path rules for compression candidate selection.
	// An empty rule set compresses every entry.
	Compress []pathrules.Rule `json:"compress,omitempty" yaml:"compress,omitempty"`
	// CompressMatcherOptions control compression path rule matching.
	CompressMatcherOptions pathrules.MatcherOptions `json:"compress_matcher_options,omitzero" yaml:"compress_matcher_options,omitzero"`
	// Scheme selects the block compression codec. Default is SchemeZstd;
	// SchemeStore disables compression for the whole archive.
	Scheme CompressionScheme `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	// Level is the zstd compression level (1 fastest, 19 best). Default is 3.
	// Ignored for non-zstd schemes.
	Level int `json:"level,omitempty" yaml:"level,omitempty"`
	// BlockSize overrides the uncompressed block size. Default is 64 KiB.
	// Must be within [MinBlockSize, MaxBlockSize].
	BlockSize uint32 `json:"block_size,omitempty" yaml:"block_size,omitempty"`
}

// PackResult contains pack output statistics.
type PackResult struct {
	// WrittenFiles is number of file entries written to archive.
	WrittenFiles int `json:"written_files" yaml:"written_files"`
	// WrittenDirs is number of directory entries recorded in the path table.
	WrittenDirs int `json:"written_dirs" yaml:"written_dirs"`
	// DataSize is total framed block bytes written.
	DataSize int64 `json:"data_size" yaml:"data_size"`
	// TableSize is serialized path table size in bytes.
	TableSize int64 `json:"table_size" yaml:"table_size"`
	// RawBlocks is number of blocks stored without compression.
	RawBlocks int `json:"raw_blocks,omitempty" yaml:"raw_blocks,omitempty"`
	// CompressedBlocks is number of blocks stored compressed.
	CompressedBlocks int `json:"compressed_blocks,omitempty" yaml:"compressed_blocks,omitempty"`
	// Digest is the whole-archive SHA-256 written to the trailer.
	Digest [digestSize]byte `json:"digest" yaml:"digest"`
}

// ReaderOptions configures archive open behavior.
type ReaderOptions struct {
	// StrictIntegrity verifies the whole-archive digest during open and
	// fails with ErrIntegrityMismatch before any read is served.
	StrictIntegrity bool `json:"strict_integrity,omitempty" yaml:"strict_integrity,omitempty"`
}

// ExtractOptions configures Extract behavior.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is fully written to disk.
	OnEntryDone func(path string, written int64, outputPath string) `json:"-" yaml:"-"`
	// MaxWorkers is number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
}

// FileInfo describes one resolved archive entry.
type FileInfo struct {
	// Name is the entry name (last path component; empty for the root).
	Name string `json:"name" yaml:"name"`
	// Size is uncompressed size in bytes; zero for directories.
	Size uint64 `json:"size" yaml:"size"`
	// IsDir reports whether the entry is a directory.
	IsDir bool `json:"is_dir" yaml:"is_dir"`
}

// applyDefaults fills zero-valued pack options with defaults.
func (opts *PackOptions) applyDefaults() {
	if opts.BlockSize == 0 {
		opts.BlockSize = DefaultBlockSize
	}

	switch opts.Scheme {
	case SchemeRaw:
		// The zero value means "default codec". Raw storage is requested
		// with SchemeStore, or per path through Compress rules.
		opts.Scheme = SchemeZstd
	case SchemeStore:
		opts.Scheme = SchemeRaw
	}

	if opts.Scheme == SchemeZstd && opts.Level == 0 {
		opts.Level = 3
	}

	if opts.CompressMatcherOptions == (pathrules.MatcherOptions{}) {
		opts.CompressMatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionExclude,
		}
	}

	if opts.CompressMatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.CompressMatcherOptions.DefaultAction = pathrules.ActionExclude
	}
}

// validate rejects out-of-range pack options.
func (opts *PackOptions) validate() error {
	if opts.BlockSize < MinBlockSize || opts.BlockSize > MaxBlockSize {
		return ErrInvalidBlockSize
	}

	if !opts.Scheme.valid() {
		return ErrUnknownScheme
	}

	return nil
}
