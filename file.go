// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/zar

package zar

import (
	"fmt"
	"io"
	"sync"
)

// File is a random-access handle over one file entry. Reads resolve the
// covering blocks through the file's block index and decompress only those
// blocks. A File keeps a one-block decode cache, so it is cheap to reuse
// for sequential access; open separate handles for independent cursors.
type File struct {
	r    *Reader
	node *tableNode
	id   uint32
	// mu guards the single-block cache; File is safe for concurrent ReadAt.
	mu       sync.Mutex
	cache    []byte
	cacheIdx int64
}

// Size returns the uncompressed file size in bytes.
func (f *File) Size() int64 {
	return int64(f.node.size)
}

// Name returns the entry name (last path component).
func (f *File) Name() string {
	return f.node.name
}

// Path returns the full slash-separated archive path of the entry.
func (f *File) Path() string {
	return f.r.table.fullPath(f.id)
}

// ReadAt implements io.ReaderAt over the decompressed content.
// Reads crossing block boundaries decompress each covering block
// independently and concatenate the results.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative read offset %d for %s", off, f.Name())
	}

	size := f.Size()
	if off >= size {
		return 0, io.EOF
	}

	blockSize := int64(f.r.blockSize)
	n := 0
	for n < len(p) && off+int64(n) < size {
		pos := off + int64(n)
		block, err := f.block(pos / blockSize)
		if err != nil {
			return n, err
		}

		n += copy(p[n:], block[pos%blockSize:])
	}

	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

// ReadRange reads up to length bytes starting at off. Ranges reaching past
// end-of-file are truncated to the available bytes, and an offset at or
// beyond the file size yields an empty result; neither case is an error.
func (f *File) ReadRange(off, length int64) ([]byte, error) {
	if off < 0 || length < 0 {
		return nil, fmt.Errorf("invalid range (%d, %d) for %s", off, length, f.Name())
	}

	size := f.Size()
	if off >= size {
		return []byte{}, nil
	}

	if rest := size - off; length > rest {
		length = rest
	}

	out := make([]byte, length)
	if _, err := f.ReadAt(out, off); err != nil && err != io.EOF {
		return nil, err
	}

	return out, nil
}

// Reader returns a fresh sequential view over the whole file.
func (f *File) Reader() *io.SectionReader {
	return io.NewSectionReader(f, 0, f.Size())
}

// block returns the decompressed block idx, serving repeats from the cache.
func (f *File) block(idx int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if idx == f.cacheIdx && f.cache != nil {
		return f.cache, nil
	}

	block, err := f.r.readBlock(f.node, uint32(idx))
	if err != nil {
		return nil, err
	}

	f.cache = block
	f.cacheIdx = idx

	return block, nil
}
