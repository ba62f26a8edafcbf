// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/zar

package zar

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"testing"
)

// patternChunk builds n bytes of deterministic mixed content: repetitive
// enough to compress, varied enough to exercise block boundaries.
func patternChunk(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*7 + i>>9)
	}

	return out
}

// packArchive packs the given files (and extra empty dirs) into an in-memory
// archive with a small block size for fast multi-block coverage.
func packArchive(t *testing.T, files map[string][]byte, dirs ...string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, err := NewWriter(&buf, PackOptions{BlockSize: MinBlockSize})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, dir := range dirs {
		if err := w.MakeDir(dir); err != nil {
			t.Fatalf("MakeDir(%q): %v", dir, err)
		}
	}

	for _, p := range paths {
		if err := w.WriteFile(p, bytes.NewReader(files[p]), int64(len(files[p]))); err != nil {
			t.Fatalf("WriteFile(%q): %v", p, err)
		}
	}

	if _, err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	return buf.Bytes()
}

// openArchive parses an in-memory archive.
func openArchive(t *testing.T, data []byte) *Reader {
	t.Helper()

	r, err := NewReaderFromReaderAt(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewReaderFromReaderAt: %v", err)
	}

	return r
}

func TestRoundTripSizes(t *testing.T) {
	t.Parallel()

	sizes := []int{
		0,
		1,
		MinBlockSize - 1,
		MinBlockSize,
		MinBlockSize + 1,
		3*MinBlockSize + 17,
		1 << 20,
	}

	for _, size := range sizes {
		t.Run(fmt.Sprintf("%d bytes", size), func(t *testing.T) {
			t.Parallel()

			content := patternChunk(size)
			data := packArchive(t, map[string][]byte{"dir/payload.bin": content})

			r := openArchive(t, data)
			defer func() { _ = r.Close() }()

			if r.BlockSize() != MinBlockSize {
				t.Fatalf("BlockSize=%d, want %d", r.BlockSize(), MinBlockSize)
			}

			if r.FileCount() != 1 {
				t.Fatalf("FileCount=%d, want 1", r.FileCount())
			}

			got, err := r.ReadFile("dir/payload.bin")
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}

			if !bytes.Equal(got, content) {
				t.Fatalf("content mismatch: %d bytes, want %d", len(got), len(content))
			}

			info, err := r.Stat("dir/payload.bin")
			if err != nil {
				t.Fatalf("Stat: %v", err)
			}

			if info.IsDir || info.Size != uint64(size) || info.Name != "payload.bin" {
				t.Fatalf("Stat=%+v", info)
			}

			if err := r.Verify(); err != nil {
				t.Fatalf("Verify: %v", err)
			}
		})
	}
}

func TestReadAtAcrossBlocks(t *testing.T) {
	t.Parallel()

	content := patternChunk(5*MinBlockSize + 100)
	data := packArchive(t, map[string][]byte{"big.bin": content})

	r := openArchive(t, data)
	defer func() { _ = r.Close() }()

	f, err := r.OpenFile("big.bin")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	testCases := []struct {
		name string
		off  int64
		len  int
	}{
		{name: "inside first block", off: 10, len: 100},
		{name: "crossing one boundary", off: MinBlockSize - 5, len: 10},
		{name: "crossing several boundaries", off: MinBlockSize / 2, len: 3 * MinBlockSize},
		{name: "tail", off: int64(len(content) - 50), len: 50},
		{name: "whole file", off: 0, len: len(content)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := make([]byte, tc.len)
			n, err := f.ReadAt(buf, tc.off)
			if err != nil {
				t.Fatalf("ReadAt(%d, %d): %v", tc.off, tc.len, err)
			}

			if n != tc.len {
				t.Fatalf("n=%d, want %d", n, tc.len)
			}

			if !bytes.Equal(buf, content[tc.off:tc.off+int64(tc.len)]) {
				t.Fatal("ReadAt content mismatch")
			}
		})
	}

	// Reads past end-of-file behave like io.ReaderAt requires.
	buf := make([]byte, 100)
	n, err := f.ReadAt(buf, int64(len(content))-30)
	if n != 30 || !errors.Is(err, io.EOF) {
		t.Fatalf("tail ReadAt=(%d, %v), want (30, EOF)", n, err)
	}

	if !bytes.Equal(buf[:30], content[len(content)-30:]) {
		t.Fatal("tail content mismatch")
	}

	if _, err := f.ReadAt(buf, int64(len(content))); !errors.Is(err, io.EOF) {
		t.Fatalf("past-EOF err=%v, want EOF", err)
	}

	if _, err := f.ReadAt(buf, -1); err == nil {
		t.Fatal("negative offset accepted")
	}
}

func TestReadRangeTruncation(t *testing.T) {
	t.Parallel()

	content := patternChunk(2*MinBlockSize + 10)
	data := packArchive(t, map[string][]byte{"a.bin": content})

	r := openArchive(t, data)
	defer func() { _ = r.Close() }()

	f, err := r.OpenFile("a.bin")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	// Range past end-of-file truncates instead of failing.
	got, err := f.ReadRange(int64(len(content))-10, 1000)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}

	if !bytes.Equal(got, content[len(content)-10:]) {
		t.Fatalf("truncated range=%d bytes, want 10", len(got))
	}

	// Offset at or past end-of-file yields an empty result.
	got, err = f.ReadRange(int64(len(content)), 10)
	if err != nil || len(got) != 0 {
		t.Fatalf("past-EOF range=(%d bytes, %v), want empty", len(got), err)
	}

	got, err = f.ReadRange(int64(len(content))+1000, 10)
	if err != nil || len(got) != 0 {
		t.Fatalf("far past-EOF range=(%d bytes, %v), want empty", len(got), err)
	}

	// Zero-length range is valid.
	got, err = f.ReadRange(5, 0)
	if err != nil || len(got) != 0 {
		t.Fatalf("zero range=(%d bytes, %v), want empty", len(got), err)
	}

	if _, err := f.ReadRange(-1, 10); err == nil {
		t.Fatal("negative offset accepted")
	}

	if _, err := f.ReadRange(0, -1); err == nil {
		t.Fatal("negative length accepted")
	}
}

func TestLookupCaseFolding(t *testing.T) {
	t.Parallel()

	data := packArchive(t, map[string][]byte{
		"Data/File.bin":  []byte("ascii"),
		"caf\xc3\xa9.txt": []byte("utf8"),
	})

	r := openArchive(t, data)
	defer func() { _ = r.Close() }()

	// ASCII letters fold.
	for _, p := range []string{"Data/File.bin", "data/file.bin", "DATA/FILE.BIN", `data\FILE.bin`} {
		if _, err := r.Lookup(p); err != nil {
			t.Fatalf("Lookup(%q): %v", p, err)
		}
	}

	// ASCII case of a name with non-ASCII bytes still folds the ASCII part.
	if _, err := r.Lookup("CAF\xc3\xa9.TXT"); err != nil {
		t.Fatalf("Lookup ascii-folded utf8 name: %v", err)
	}

	// Non-ASCII bytes compare exact: É (0xC3 0x89) does not match é (0xC3 0xA9).
	if _, err := r.Lookup("caf\xc3\x89.txt"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("non-ascii fold err=%v, want %v", err, ErrEntryNotFound)
	}

	if _, err := r.Lookup("missing.bin"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("missing err=%v, want %v", err, ErrEntryNotFound)
	}
}

func TestFilesAndStatNode(t *testing.T) {
	t.Parallel()

	data := packArchive(t, map[string][]byte{
		"b/two.bin": []byte("22"),
		"a/one.bin": []byte("1"),
		"root.bin":  []byte("rrr"),
	}, "empty")

	r := openArchive(t, data)
	defer func() { _ = r.Close() }()

	files := r.Files()
	sort.Strings(files)

	want := []string{"a/one.bin", "b/two.bin", "root.bin"}
	if len(files) != len(want) {
		t.Fatalf("Files=%v, want %v", files, want)
	}

	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("Files=%v, want %v", files, want)
		}
	}

	id, err := r.Lookup("empty")
	if err != nil {
		t.Fatalf("Lookup empty dir: %v", err)
	}

	info, err := r.StatNode(id)
	if err != nil {
		t.Fatalf("StatNode: %v", err)
	}

	if !info.IsDir || info.Name != "empty" || info.Size != 0 {
		t.Fatalf("StatNode=%+v", info)
	}

	if _, err := r.StatNode(NodeID(1000)); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("out-of-range StatNode err=%v, want %v", err, ErrEntryNotFound)
	}

	// Root stats as a nameless directory.
	rootInfo, err := r.StatNode(r.Root())
	if err != nil {
		t.Fatalf("StatNode(root): %v", err)
	}

	if !rootInfo.IsDir || rootInfo.Name != "" {
		t.Fatalf("root StatNode=%+v", rootInfo)
	}
}

func TestIterateAndFork(t *testing.T) {
	t.Parallel()

	data := packArchive(t, map[string][]byte{
		"Zeta.bin":  []byte("z"),
		"alpha.bin": []byte("a"),
		"Mid/x.bin": []byte("x"),
	})

	r := openArchive(t, data)
	defer func() { _ = r.Close() }()

	it, err := r.Iterate(r.Root())
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}

	if it.Len() != 3 {
		t.Fatalf("Len=%d, want 3", it.Len())
	}

	// Entries come back in folded-name order.
	wantOrder := []string{"alpha.bin", "Mid", "Zeta.bin"}

	first, ok := it.Next()
	if !ok || first.Name != wantOrder[0] {
		t.Fatalf("first=(%+v, %v)", first, ok)
	}

	// A copied cursor walks independently of the original.
	fork := it

	var rest []string
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		rest = append(rest, e.Name)
	}

	if len(rest) != 2 || rest[0] != wantOrder[1] || rest[1] != wantOrder[2] {
		t.Fatalf("rest=%v, want %v", rest, wantOrder[1:])
	}

	if it.Remaining() != 0 {
		t.Fatalf("Remaining=%d, want 0", it.Remaining())
	}

	if fork.Remaining() != 2 {
		t.Fatalf("fork Remaining=%d, want 2", fork.Remaining())
	}

	forkEntry, ok := fork.Next()
	if !ok || forkEntry.Name != wantOrder[1] {
		t.Fatalf("fork next=(%+v, %v), want %q", forkEntry, ok, wantOrder[1])
	}

	// Descend into a subdirectory via the entry's node.
	midID, err := r.Lookup("mid")
	if err != nil {
		t.Fatalf("Lookup mid: %v", err)
	}

	sub, err := r.Iterate(midID)
	if err != nil {
		t.Fatalf("Iterate(mid): %v", err)
	}

	subEntry, ok := sub.Next()
	if !ok || subEntry.Name != "x.bin" || subEntry.IsDir || subEntry.Size != 1 {
		t.Fatalf("sub entry=(%+v, %v)", subEntry, ok)
	}

	// Iterating a file node fails.
	fileID, err := r.Lookup("alpha.bin")
	if err != nil {
		t.Fatalf("Lookup alpha.bin: %v", err)
	}

	if _, err := r.Iterate(fileID); !errors.Is(err, ErrNotDirectory) {
		t.Fatalf("Iterate(file) err=%v, want %v", err, ErrNotDirectory)
	}

	if _, err := r.Iterate(NodeID(1000)); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("Iterate(bad) err=%v, want %v", err, ErrEntryNotFound)
	}
}

func TestOpenFileOnDirectory(t *testing.T) {
	t.Parallel()

	data := packArchive(t, map[string][]byte{"d/a.bin": []byte("a")})

	r := openArchive(t, data)
	defer func() { _ = r.Close() }()

	if _, err := r.OpenFile("d"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("err=%v, want %v", err, ErrEntryNotFound)
	}
}

func TestIntegrityTamperDetection(t *testing.T) {
	t.Parallel()

	content := patternChunk(2 * MinBlockSize)
	valid := packArchive(t, map[string][]byte{"a.bin": content})

	open := func(data []byte, strict bool) (*Reader, error) {
		return NewReaderFromReaderAtWithOptions(
			bytes.NewReader(data), int64(len(data)),
			ReaderOptions{StrictIntegrity: strict},
		)
	}

	t.Run("content byte flipped", func(t *testing.T) {
		t.Parallel()

		tampered := append([]byte(nil), valid...)
		tampered[headerSize+frameHeaderSize+10] ^= 0xff

		if _, err := open(tampered, true); !errors.Is(err, ErrIntegrityMismatch) {
			t.Fatalf("strict open err=%v, want %v", err, ErrIntegrityMismatch)
		}

		// Lenient open still parses; Verify reports the mismatch.
		r, err := open(tampered, false)
		if err != nil {
			t.Fatalf("lenient open: %v", err)
		}
		defer func() { _ = r.Close() }()

		if err := r.Verify(); !errors.Is(err, ErrIntegrityMismatch) {
			t.Fatalf("Verify err=%v, want %v", err, ErrIntegrityMismatch)
		}

		// The flipped byte sits inside a compressed frame, so the block
		// itself fails to decode.
		if _, err := r.ReadFile("a.bin"); !errors.Is(err, ErrCorruptBlock) {
			t.Fatalf("ReadFile err=%v, want %v", err, ErrCorruptBlock)
		}
	})

	t.Run("stored digest flipped", func(t *testing.T) {
		t.Parallel()

		tampered := append([]byte(nil), valid...)
		tampered[len(tampered)-trailerSize+24] ^= 0xff // first digest byte

		if _, err := open(tampered, true); !errors.Is(err, ErrIntegrityMismatch) {
			t.Fatalf("strict open err=%v, want %v", err, ErrIntegrityMismatch)
		}
	})

	t.Run("untampered verifies", func(t *testing.T) {
		t.Parallel()

		r, err := open(valid, true)
		if err != nil {
			t.Fatalf("strict open: %v", err)
		}
		defer func() { _ = r.Close() }()

		got, err := r.ReadFile("a.bin")
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}

		if !bytes.Equal(got, content) {
			t.Fatal("content mismatch")
		}
	})
}

func TestOpenRejectsMalformedArchives(t *testing.T) {
	t.Parallel()

	valid := packArchive(t, map[string][]byte{"a.bin": patternChunk(100)})

	testCases := []struct {
		name    string
		mutate  func(d []byte) []byte
		wantErr error
	}{
		{
			name:    "too short",
			mutate:  func(d []byte) []byte { return d[:headerSize+trailerSize-1] },
			wantErr: ErrTrailerTooShort,
		},
		{
			name: "bad header magic",
			mutate: func(d []byte) []byte {
				d[0] = 'X'
				return d
			},
			wantErr: ErrInvalidArchive,
		},
		{
			name: "future header version",
			mutate: func(d []byte) []byte {
				d[5] = 0xff
				return d
			},
			wantErr: ErrUnsupportedVersion,
		},
		{
			name: "bad header block size",
			mutate: func(d []byte) []byte {
				d[8], d[9], d[10], d[11] = 0, 0, 0, 1
				return d
			},
			wantErr: ErrInvalidArchive,
		},
		{
			name:    "truncated trailer",
			mutate:  func(d []byte) []byte { return d[:len(d)-1] },
			wantErr: ErrInvalidArchive,
		},
		{
			name: "future trailer version",
			mutate: func(d []byte) []byte {
				d[len(d)-trailerSize+57] = 0xff
				return d
			},
			wantErr: ErrUnsupportedVersion,
		},
		{
			name: "table range mismatch",
			mutate: func(d []byte) []byte {
				d[len(d)-trailerSize+15] ^= 0xff // tableLen low byte
				return d
			},
			wantErr: ErrInvalidArchive,
		},
		{
			name: "trailer counts disagree",
			mutate: func(d []byte) []byte {
				d[len(d)-trailerSize+19] ^= 0xff // fileCount low byte
				return d
			},
			wantErr: ErrInvalidArchive,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			data := tc.mutate(append([]byte(nil), valid...))
			if _, err := NewReaderFromReaderAt(bytes.NewReader(data), int64(len(data))); !errors.Is(err, tc.wantErr) {
				t.Fatalf("err=%v, want %v", err, tc.wantErr)
			}
		})
	}

	if _, err := NewReaderFromReaderAt(nil, 0); !errors.Is(err, ErrNilReader) {
		t.Fatalf("nil source err=%v, want %v", err, ErrNilReader)
	}
}

func TestOpenRejectsOversizedFileNode(t *testing.T) {
	t.Parallel()

	// A file node whose declared size exceeds blockCount*blockSize must be
	// rejected at open time; otherwise reads would derive block indexes
	// past the node's block range.
	data := packArchive(t, map[string][]byte{"a.bin": patternChunk(2 * MinBlockSize)})

	trailer := data[len(data)-trailerSize:]
	tableOff := binary.BigEndian.Uint64(trailer[0:8])

	// Node records follow the table header: node 0 is the root, node 1 the
	// single file; its size field sits at record offset 12.
	sizeOff := tableOff + tableHeaderSize + nodeRecordSize + 12
	binary.BigEndian.PutUint64(data[sizeOff:sizeOff+8], 3*MinBlockSize)

	if _, err := NewReaderFromReaderAt(bytes.NewReader(data), int64(len(data))); !errors.Is(err, ErrInvalidArchive) {
		t.Fatalf("err=%v, want %v", err, ErrInvalidArchive)
	}
}

func TestEmptyArchive(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := NewWriter(&buf, PackOptions{})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if _, err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	r := openArchive(t, buf.Bytes())
	defer func() { _ = r.Close() }()

	if r.FileCount() != 0 {
		t.Fatalf("FileCount=%d, want 0", r.FileCount())
	}

	if files := r.Files(); len(files) != 0 {
		t.Fatalf("Files=%v, want none", files)
	}

	it, err := r.Iterate(r.Root())
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}

	if _, ok := it.Next(); ok {
		t.Fatal("empty root yielded an entry")
	}

	if err := r.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestReaderClose(t *testing.T) {
	t.Parallel()

	data := packArchive(t, map[string][]byte{"a.bin": []byte("a")})

	r := openArchive(t, data)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := r.OpenFile("a.bin"); !errors.Is(err, ErrClosed) {
		t.Fatalf("OpenFile after close err=%v, want %v", err, ErrClosed)
	}
}

func TestFileSequentialReader(t *testing.T) {
	t.Parallel()

	content := patternChunk(3*MinBlockSize + 5)
	data := packArchive(t, map[string][]byte{"a.bin": content})

	r := openArchive(t, data)
	defer func() { _ = r.Close() }()

	f, err := r.OpenFile("a.bin")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	got, err := io.ReadAll(f.Reader())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if !bytes.Equal(got, content) {
		t.Fatal("sequential read mismatch")
	}
}

func TestPackFileAndOpen(t *testing.T) {
	t.Parallel()

	outPath := filepath.Join(t.TempDir(), "out.zar")
	content := patternChunk(2*MinBlockSize + 7)

	inputs := []Input{{
		Path: "data/a.bin",
		Size: int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}}

	res, err := PackFile(context.Background(), outPath, inputs, PackOptions{BlockSize: MinBlockSize})
	if err != nil {
		t.Fatalf("PackFile: %v", err)
	}

	r, err := OpenWithOptions(outPath, ReaderOptions{StrictIntegrity: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = r.Close() }()

	if r.Digest() != res.Digest {
		t.Fatal("trailer digest disagrees with pack result")
	}

	got, err := r.ReadFile("data/a.bin")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if !bytes.Equal(got, content) {
		t.Fatal("content mismatch")
	}
}
