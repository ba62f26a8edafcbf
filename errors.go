// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/zar

package zar

import "errors"

// Sentinel errors for ZAR operations. Use errors.Is in callers.
var (
	// ErrInvalidArchive means the file is missing or has a malformed header, trailer, or path table.
	ErrInvalidArchive = errors.New("invalid ZAR file: malformed header, trailer, or path table")
	// ErrTrailerTooShort means the file is too short to contain the fixed trailer.
	ErrTrailerTooShort = errors.New("file too short for trailer")
	// ErrUnsupportedVersion means the archive format version is newer than this reader supports.
	ErrUnsupportedVersion = errors.New("unsupported archive format version")
	// ErrCorruptBlock means a compressed block frame is truncated or disagrees with its declared sizes.
	ErrCorruptBlock = errors.New("corrupt compressed block")
	// ErrIntegrityMismatch means the whole-archive digest disagrees with the trailer value.
	ErrIntegrityMismatch = errors.New("archive digest mismatch")
	// ErrInvalidEntryPath means an entry path is empty or has an empty component after normalization.
	ErrInvalidEntryPath = errors.New("invalid entry path")
	// ErrDuplicateEntryPath means two entries resolve to the same path (ASCII case-insensitive).
	ErrDuplicateEntryPath = errors.New("duplicate entry path")
	// ErrEntryNotFound means path resolution failed or resolved to the wrong entry kind.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrNotDirectory means a directory operation was attempted on a file entry.
	ErrNotDirectory = errors.New("entry is not a directory")
	// ErrFileTooLarge means a single file exceeds the 2^48-1 byte format limit.
	ErrFileTooLarge = errors.New("file exceeds 2^48-1 byte limit")
	// ErrFileNameTooLong means an entry name component exceeds the maximum length.
	ErrFileNameTooLong = errors.New("entry name exceeds maximum length")
	// ErrAlreadyFinalized means the writer was used after Finalize.
	ErrAlreadyFinalized = errors.New("writer already finalized")
	// ErrNotFinalized means the requested value exists only after Finalize.
	ErrNotFinalized = errors.New("writer not finalized")
	// ErrInvalidBlockSize means the block size override is out of the supported range.
	ErrInvalidBlockSize = errors.New("block size out of supported range")
	// ErrUnknownScheme means a block declares an unknown compression scheme.
	ErrUnknownScheme = errors.New("unknown block compression scheme")
	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrClosed means the reader or resource is already closed.
	ErrClosed = errors.New("reader or resource already closed")
	// ErrEmptyInputs means no inputs provided for pack.
	ErrEmptyInputs = errors.New("no inputs provided for pack")
	// ErrInvalidCompressPattern means one or more compression rules are invalid.
	ErrInvalidCompressPattern = errors.New("invalid compress rules")
	// ErrInvalidExtractPath means archive entry path is invalid for extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrShortSource means an input stream ended before its declared size.
	ErrShortSource = errors.New("input stream shorter than declared size")
)
