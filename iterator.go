// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/zar

package zar

// DirEntry describes one entry yielded by a DirIterator.
type DirEntry struct {
	// Name is the entry name within its directory.
	Name string `json:"name" yaml:"name"`
	// Size is uncompressed size in bytes; zero for directories.
	Size uint64 `json:"size" yaml:"size"`
	// IsDir reports whether the entry is a directory.
	IsDir bool `json:"is_dir" yaml:"is_dir"`

	id NodeID
}

// ID returns the entry's node, usable with Iterate, StatNode, and friends.
func (e DirEntry) ID() NodeID {
	return e.id
}

// DirIterator is a cursor over the direct entries of one directory.
// It is a small value resolved against the immutable path table on demand:
// copying the value forks an independent cursor, and advancing one copy
// never affects another. The zero value yields nothing.
type DirIterator struct {
	r   *Reader
	dir uint32
	pos uint32
}

// Next returns the next entry and advances the cursor.
func (it *DirIterator) Next() (DirEntry, bool) {
	if it.r == nil {
		return DirEntry{}, false
	}

	node := &it.r.table.nodes[it.dir]
	if it.pos >= node.childCount {
		return DirEntry{}, false
	}

	idx := node.childStart + it.pos
	it.pos++

	child := &it.r.table.nodes[idx]

	return DirEntry{
		Name:  child.name,
		Size:  child.size,
		IsDir: child.kind == kindDir,
		id:    NodeID(idx),
	}, true
}

// Len returns the total number of entries in the iterated directory.
func (it DirIterator) Len() int {
	if it.r == nil {
		return 0
	}

	return int(it.r.table.nodes[it.dir].childCount)
}

// Remaining returns the number of entries the cursor has not yielded yet.
func (it DirIterator) Remaining() int {
	n := it.Len() - int(it.pos)
	if n < 0 {
		return 0
	}

	return n
}
