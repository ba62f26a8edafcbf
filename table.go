// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/zar

package zar

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// Path table node kinds.
const (
	kindDir  = 0
	kindFile = 1
)

// buildNode is one mutable tree node accumulated during a write session.
type buildNode struct {
	// name is the stored entry name; folded is its ASCII-case-folded form
	// used for ordering and duplicate detection.
	name   string
	folded string
	// children holds indexes into tableBuilder.nodes, sorted by folded name.
	children   []int
	parent     int
	size       uint64
	dataOff    uint64
	blockStart uint32
	blockCount uint32
	kind       uint8
}

// tableBuilder accumulates the in-memory directory tree during packing.
// Node 0 is always the root directory.
type tableBuilder struct {
	nodes []buildNode
	files int
}

// newTableBuilder returns a builder holding only the root directory.
func newTableBuilder() *tableBuilder {
	return &tableBuilder{nodes: []buildNode{{kind: kindDir, parent: -1}}}
}

// findChild binary-searches dir children by folded name. It returns the
// insertion position, the matched node index, and whether a match exists.
func (b *tableBuilder) findChild(dir int, folded string) (int, int, bool) {
	children := b.nodes[dir].children
	pos := sort.Search(len(children), func(i int) bool {
		return b.nodes[children[i]].folded >= folded
	})

	if pos < len(children) && b.nodes[children[pos]].folded == folded {
		return pos, children[pos], true
	}

	return pos, 0, false
}

// insertChild links a new node into dir at sorted position pos.
func (b *tableBuilder) insertChild(dir, pos int, node buildNode) int {
	b.nodes = append(b.nodes, node)
	idx := len(b.nodes) - 1

	children := b.nodes[dir].children
	children = append(children, 0)
	copy(children[pos+1:], children[pos:])
	children[pos] = idx
	b.nodes[dir].children = children

	return idx
}

// ensureDir walks components from the root, creating missing directories,
// and returns the final directory node index.
func (b *tableBuilder) ensureDir(components []string) (int, error) {
	cur := 0
	for _, name := range components {
		folded := foldName(name)
		pos, idx, ok := b.findChild(cur, folded)
		if ok {
			if b.nodes[idx].kind != kindDir {
				return 0, fmt.Errorf("%w: %q already exists as a file", ErrDuplicateEntryPath, name)
			}

			cur = idx
			continue
		}

		cur = b.insertChild(cur, pos, buildNode{
			name:   name,
			folded: folded,
			kind:   kindDir,
			parent: cur,
		})
	}

	return cur, nil
}

// addDir records a directory path, creating intermediate directories.
func (b *tableBuilder) addDir(components []string) error {
	_, err := b.ensureDir(components)
	return err
}

// reserveFile inserts a file node for components and returns its index.
// Block location fields are filled later via setFileData, so duplicate
// paths are rejected before any payload block is written.
func (b *tableBuilder) reserveFile(components []string) (int, error) {
	if len(components) == 0 {
		return 0, ErrInvalidEntryPath
	}

	dir, err := b.ensureDir(components[:len(components)-1])
	if err != nil {
		return 0, err
	}

	name := components[len(components)-1]
	folded := foldName(name)
	pos, _, ok := b.findChild(dir, folded)
	if ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateEntryPath, strings.Join(components, "/"))
	}

	idx := b.insertChild(dir, pos, buildNode{
		name:   name,
		folded: folded,
		kind:   kindFile,
		parent: dir,
	})
	b.files++

	return idx, nil
}

// setFileData records block placement for a reserved file node.
func (b *tableBuilder) setFileData(idx int, size, dataOff uint64, blockStart, blockCount uint32) {
	n := &b.nodes[idx]
	n.size = size
	n.dataOff = dataOff
	n.blockStart = blockStart
	n.blockCount = blockCount
}

// serialize encodes the tree and the global block size list into the
// compact big-endian path table format. Directory children are laid out
// contiguously in folded-name order, so the reader resolves each path
// component with one binary search.
func (b *tableBuilder) serialize(blockSizes []uint32) []byte {
	// Breadth-first output order keeps every directory's children adjacent.
	order := make([]int, 0, len(b.nodes))
	outID := make([]uint32, len(b.nodes))
	order = append(order, 0)
	for head := 0; head < len(order); head++ {
		for _, child := range b.nodes[order[head]].children {
			outID[child] = uint32(len(order))
			order = append(order, child)
		}
	}

	nameBlobLen := 0
	for _, idx := range order {
		nameBlobLen += len(b.nodes[idx].name)
	}

	total := tableHeaderSize + len(order)*nodeRecordSize + 4*len(blockSizes) + nameBlobLen
	buf := make([]byte, 0, total)

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(order)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(blockSizes)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(nameBlobLen))
	buf = binary.BigEndian.AppendUint32(buf, 0)

	// Child ranges reference output IDs; compute each dir's range start.
	childStart := make([]uint32, len(b.nodes))
	next := uint32(1)
	for _, idx := range order {
		node := &b.nodes[idx]
		if node.kind == kindDir {
			childStart[idx] = next
			next += uint32(len(node.children))
		}
	}

	nameOff := uint32(0)
	for _, idx := range order {
		node := &b.nodes[idx]

		buf = append(buf, node.kind, 0)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(node.name)))
		buf = binary.BigEndian.AppendUint32(buf, nameOff)
		if node.parent < 0 {
			buf = binary.BigEndian.AppendUint32(buf, invalidNode)
		} else {
			buf = binary.BigEndian.AppendUint32(buf, outID[node.parent])
		}

		if node.kind == kindDir {
			buf = binary.BigEndian.AppendUint32(buf, childStart[idx])
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(node.children)))
			var pad [16]byte
			buf = append(buf, pad[:]...)
		} else {
			buf = binary.BigEndian.AppendUint64(buf, node.size)
			buf = binary.BigEndian.AppendUint64(buf, node.dataOff)
			buf = binary.BigEndian.AppendUint32(buf, node.blockStart)
			buf = binary.BigEndian.AppendUint32(buf, node.blockCount)
		}

		nameOff += uint32(len(node.name))
	}

	for _, size := range blockSizes {
		buf = binary.BigEndian.AppendUint32(buf, size)
	}

	for _, idx := range order {
		buf = append(buf, b.nodes[idx].name...)
	}

	return buf
}

// tableNode is one immutable parsed path table entry.
type tableNode struct {
	name       string
	size       uint64
	dataOff    uint64
	parent     uint32
	childStart uint32
	childCount uint32
	blockStart uint32
	blockCount uint32
	kind       uint8
}

// pathTable is the parsed read-only directory tree of an opened archive.
// It is shared by all handles and iterators derived from one reader session.
type pathTable struct {
	nodes      []tableNode
	blockSizes []uint32
	// blockOffs[i] is the cumulative framed size of blocks [0, i), so any
	// block's frame offset resolves in O(1).
	blockOffs []uint64
	files     int
}

// parsePathTable decodes and validates a serialized path table.
// blockSize is the uncompressed block size from the archive header; it ties
// each file's declared size to its block count.
func parsePathTable(data []byte, blockSize uint32) (*pathTable, error) {
	if len(data) < tableHeaderSize {
		return nil, fmt.Errorf("%w: path table truncated", ErrInvalidArchive)
	}

	nodeCount := binary.BigEndian.Uint32(data[0:4])
	blockRefCount := binary.BigEndian.Uint32(data[4:8])
	nameBlobLen := binary.BigEndian.Uint32(data[8:12])

	want := uint64(tableHeaderSize) +
		uint64(nodeCount)*nodeRecordSize +
		uint64(blockRefCount)*4 +
		uint64(nameBlobLen)
	if uint64(len(data)) != want {
		return nil, fmt.Errorf("%w: path table size %d, declared %d", ErrInvalidArchive, len(data), want)
	}

	if nodeCount == 0 {
		return nil, fmt.Errorf("%w: path table has no root", ErrInvalidArchive)
	}

	names := data[len(data)-int(nameBlobLen):]
	t := &pathTable{
		nodes:      make([]tableNode, nodeCount),
		blockSizes: make([]uint32, blockRefCount),
		blockOffs:  make([]uint64, blockRefCount+1),
	}

	off := tableHeaderSize
	for i := uint32(0); i < nodeCount; i++ {
		rec := data[off : off+nodeRecordSize]
		off += nodeRecordSize

		node, err := parseNodeRecord(rec, i, nodeCount, blockRefCount, names)
		if err != nil {
			return nil, err
		}

		if node.kind == kindFile {
			t.files++
		}

		t.nodes[i] = node
	}

	for i := uint32(0); i < blockRefCount; i++ {
		size := binary.BigEndian.Uint32(data[off : off+4])
		off += 4

		if size < frameHeaderSize {
			return nil, fmt.Errorf("%w: block %d framed size %d", ErrInvalidArchive, i, size)
		}

		t.blockSizes[i] = size
		t.blockOffs[i+1] = t.blockOffs[i] + uint64(size)
	}

	if err := t.validateChildOrder(); err != nil {
		return nil, err
	}

	if err := t.validateBlockCounts(blockSize); err != nil {
		return nil, err
	}

	return t, nil
}

// validateBlockCounts requires every file's block count to equal
// ceil(size/blockSize). Block index arithmetic in blockFrame and the read
// path divides offsets by the block size, so a node whose size exceeds its
// block capacity would index past its block range.
func (t *pathTable) validateBlockCounts(blockSize uint32) error {
	for i := range t.nodes {
		node := &t.nodes[i]
		if node.kind != kindFile {
			continue
		}

		want := (node.size + uint64(blockSize) - 1) / uint64(blockSize)
		if uint64(node.blockCount) != want {
			return fmt.Errorf("%w: node %d has %d blocks for %d bytes",
				ErrInvalidArchive, i, node.blockCount, node.size)
		}
	}

	return nil
}

// parseNodeRecord decodes and bounds-checks one 36-byte node record.
func parseNodeRecord(rec []byte, idx, nodeCount, blockRefCount uint32, names []byte) (tableNode, error) {
	var node tableNode

	node.kind = rec[0]
	if node.kind != kindDir && node.kind != kindFile {
		return node, fmt.Errorf("%w: node %d kind 0x%02x", ErrInvalidArchive, idx, node.kind)
	}

	nameLen := binary.BigEndian.Uint16(rec[2:4])
	nameOff := binary.BigEndian.Uint32(rec[4:8])
	if uint64(nameOff)+uint64(nameLen) > uint64(len(names)) {
		return node, fmt.Errorf("%w: node %d name out of blob bounds", ErrInvalidArchive, idx)
	}

	node.name = string(names[nameOff : nameOff+uint32(nameLen)])
	node.parent = binary.BigEndian.Uint32(rec[8:12])

	switch {
	case idx == 0:
		if node.parent != invalidNode || node.kind != kindDir || nameLen != 0 {
			return node, fmt.Errorf("%w: malformed root node", ErrInvalidArchive)
		}
	case node.parent >= nodeCount:
		return node, fmt.Errorf("%w: node %d parent %d out of range", ErrInvalidArchive, idx, node.parent)
	case nameLen == 0:
		return node, fmt.Errorf("%w: node %d has empty name", ErrInvalidArchive, idx)
	}

	if node.kind == kindDir {
		node.childStart = binary.BigEndian.Uint32(rec[12:16])
		node.childCount = binary.BigEndian.Uint32(rec[16:20])
		if node.childCount > 0 &&
			(node.childStart == 0 || uint64(node.childStart)+uint64(node.childCount) > uint64(nodeCount)) {
			return node, fmt.Errorf("%w: node %d child range out of bounds", ErrInvalidArchive, idx)
		}

		return node, nil
	}

	node.size = binary.BigEndian.Uint64(rec[12:20])
	node.dataOff = binary.BigEndian.Uint64(rec[20:28])
	node.blockStart = binary.BigEndian.Uint32(rec[28:32])
	node.blockCount = binary.BigEndian.Uint32(rec[32:36])

	if node.size > maxFileSize {
		return node, fmt.Errorf("%w: node %d size %d", ErrInvalidArchive, idx, node.size)
	}

	if uint64(node.blockStart)+uint64(node.blockCount) > uint64(blockRefCount) {
		return node, fmt.Errorf("%w: node %d block range out of bounds", ErrInvalidArchive, idx)
	}

	return node, nil
}

// validateChildOrder checks the structural invariants lookup and fullPath
// rely on: child ranges sit after their directory, every child points back
// to its directory, every non-root node is claimed by exactly one range,
// and children are sorted by folded name for binary search.
func (t *pathTable) validateChildOrder() error {
	claimed := 0
	for i := range t.nodes {
		node := &t.nodes[i]
		if node.kind != kindDir || node.childCount == 0 {
			continue
		}

		// Children after their parent makes parent chains strictly
		// decreasing, so a malformed table cannot cycle.
		if node.childStart <= uint32(i) {
			return fmt.Errorf("%w: directory %d child range before parent", ErrInvalidArchive, i)
		}

		claimed += int(node.childCount)
		for c := node.childStart; c < node.childStart+node.childCount; c++ {
			if t.nodes[c].parent != uint32(i) {
				return fmt.Errorf("%w: node %d parent mismatch", ErrInvalidArchive, c)
			}

			if c > node.childStart && foldCompare(t.nodes[c-1].name, t.nodes[c].name) >= 0 {
				return fmt.Errorf("%w: directory %d children not sorted", ErrInvalidArchive, i)
			}
		}
	}

	if claimed != len(t.nodes)-1 {
		return fmt.Errorf("%w: %d nodes claimed by child ranges, expected %d",
			ErrInvalidArchive, claimed, len(t.nodes)-1)
	}

	return nil
}

// child resolves one name inside dir with a case-folded binary search.
func (t *pathTable) child(dir uint32, name string) (uint32, bool) {
	node := &t.nodes[dir]
	if node.kind != kindDir {
		return 0, false
	}

	count := int(node.childCount)
	pos := sort.Search(count, func(i int) bool {
		return foldCompare(t.nodes[node.childStart+uint32(i)].name, name) >= 0
	})

	if pos < count {
		idx := node.childStart + uint32(pos)
		if foldCompare(t.nodes[idx].name, name) == 0 {
			return idx, true
		}
	}

	return 0, false
}

// lookup resolves path components from the root.
func (t *pathTable) lookup(components []string) (uint32, bool) {
	cur := uint32(0)
	for _, name := range components {
		idx, ok := t.child(cur, name)
		if !ok {
			return 0, false
		}

		cur = idx
	}

	return cur, true
}

// fullPath reconstructs the slash-separated path of a node.
func (t *pathTable) fullPath(idx uint32) string {
	if idx == 0 {
		return ""
	}

	parts := make([]string, 0, 8)
	for idx != 0 {
		parts = append(parts, t.nodes[idx].name)
		idx = t.nodes[idx].parent
	}

	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}

	return strings.Join(parts, "/")
}

// blockFrame returns the absolute offset and framed size of block i of a file node.
func (t *pathTable) blockFrame(node *tableNode, i uint32) (int64, int64) {
	global := node.blockStart + i
	rel := t.blockOffs[global] - t.blockOffs[node.blockStart]

	return int64(node.dataOff + rel), int64(t.blockSizes[global])
}
