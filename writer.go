// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/zar

package zar

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// packWriteBufferSize is the buffered writer size used by file-backed pack helpers.
const packWriteBufferSize = 1 << 20

// Writer engine states. Transitions are one-way:
// created -> packing -> finalized.
type writerState uint8

const (
	stateCreated writerState = iota
	statePacking
	stateFinalized
)

// Writer packs an archive using only sequential appends. It never seeks,
// which is why it accepts a plain io.Writer: archives can be streamed to
// sockets or write-once media. A Writer is single-session and not safe for
// concurrent use.
type Writer struct {
	dw      *digestWriter
	codec   *blockCodec
	matcher *compressMatcher
	table   *tableBuilder
	failed  error
	// chunk is the reusable uncompressed block buffer, frameBuf the
	// reusable framed output buffer.
	chunk      []byte
	frameBuf   []byte
	blockSizes []uint32
	opts       PackOptions
	result     PackResult
	state      writerState
}

// NewWriter prepares a streaming archive writer over out.
// Nothing is written until the first entry or Finalize.
func NewWriter(out io.Writer, opts PackOptions) (*Writer, error) {
	if out == nil {
		return nil, ErrNilWriter
	}

	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	codec, err := newBlockCodec(opts.Scheme, opts.Level)
	if err != nil {
		return nil, err
	}

	matcher, err := newCompressMatcher(opts.Compress, opts.CompressMatcherOptions)
	if err != nil {
		codec.close()
		return nil, err
	}

	return &Writer{
		dw:       newDigestWriter(out),
		codec:    codec,
		matcher:  matcher,
		table:    newTableBuilder(),
		opts:     opts,
		chunk:    make([]byte, opts.BlockSize),
		frameBuf: make([]byte, 0, int(opts.BlockSize)+frameHeaderSize),
	}, nil
}

// start appends the archive header on the first operation.
func (w *Writer) start() error {
	if w.state != stateCreated {
		return nil
	}

	hdr := make([]byte, headerSize)
	copy(hdr[0:4], headerMagic[:])
	binary.BigEndian.PutUint16(hdr[4:6], FormatVersion)
	binary.BigEndian.PutUint32(hdr[8:12], w.opts.BlockSize)

	if _, err := w.dw.Write(hdr); err != nil {
		return w.fail(fmt.Errorf("write header: %w", err))
	}

	w.state = statePacking

	return nil
}

// fail records a stream failure; the session is unusable afterwards.
func (w *Writer) fail(err error) error {
	if w.failed == nil {
		w.failed = err
	}

	return err
}

// checkUsable rejects operations on finalized or failed sessions.
func (w *Writer) checkUsable() error {
	if w == nil {
		return ErrNilWriter
	}

	if w.failed != nil {
		return w.failed
	}

	if w.state == stateFinalized {
		return ErrAlreadyFinalized
	}

	return nil
}

// MakeDir records a directory entry, creating missing parent directories.
// Needed only for directories that contain no files.
func (w *Writer) MakeDir(path string) error {
	if err := w.checkUsable(); err != nil {
		return err
	}

	components, err := splitEntryPath(path)
	if err != nil {
		return err
	}

	if len(components) == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidEntryPath, path)
	}

	if err := w.start(); err != nil {
		return err
	}

	return w.table.addDir(components)
}

// WriteFile appends one file entry of exactly size bytes read from src.
// Content is split into fixed-size blocks, each compressed independently
// and appended immediately; metadata is buffered until Finalize.
func (w *Writer) WriteFile(path string, src io.Reader, size int64) error {
	if err := w.checkUsable(); err != nil {
		return err
	}

	if src == nil {
		return ErrNilReader
	}

	if size < 0 {
		return fmt.Errorf("%w: negative size for %q", ErrInvalidEntryPath, path)
	}

	if size > maxFileSize {
		return fmt.Errorf("%w: %q declares %d bytes", ErrFileTooLarge, path, size)
	}

	components, err := splitEntryPath(path)
	if err != nil {
		return err
	}

	if len(components) == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidEntryPath, path)
	}

	if err := w.start(); err != nil {
		return err
	}

	idx, err := w.table.reserveFile(components)
	if err != nil {
		return err
	}

	entryPath := strings.Join(components, "/")
	compress := w.matcher.Match(entryPath)
	dataOff := uint64(w.dw.offset())
	blockStart := uint32(len(w.blockSizes))

	var stored uint64
	remaining := size
	for remaining > 0 {
		n := int64(len(w.chunk))
		if remaining < n {
			n = remaining
		}

		if _, err := io.ReadFull(src, w.chunk[:n]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = fmt.Errorf("%w: %q", ErrShortSource, entryPath)
			}

			return w.fail(fmt.Errorf("read input %s: %w", entryPath, err))
		}

		frame, compressed, err := w.codec.appendFrame(w.frameBuf[:0], w.chunk[:n], compress)
		if err != nil {
			return w.fail(fmt.Errorf("compress block for %s: %w", entryPath, err))
		}

		if _, err := w.dw.Write(frame); err != nil {
			return w.fail(fmt.Errorf("write block for %s: %w", entryPath, err))
		}

		w.blockSizes = append(w.blockSizes, uint32(len(frame)))
		stored += uint64(len(frame))
		if compressed {
			w.result.CompressedBlocks++
		} else {
			w.result.RawBlocks++
		}

		remaining -= n
	}

	blockCount := uint32(len(w.blockSizes)) - blockStart
	w.table.setFileData(idx, uint64(size), dataOff, blockStart, blockCount)

	w.result.WrittenFiles++
	w.result.DataSize += int64(stored)

	if w.opts.OnEntryDone != nil {
		w.opts.OnEntryDone(PackEntryProgress{
			Path:                 entryPath,
			Size:                 uint64(size),
			StoredSize:           stored,
			Blocks:               int(blockCount),
			CompressionCandidate: compress,
		})
	}

	return nil
}

// Finalize serializes the path table, appends it and the trailer, and seals
// the writer. The digest covers every byte before the trailer.
func (w *Writer) Finalize() (*PackResult, error) {
	if err := w.checkUsable(); err != nil {
		return nil, err
	}

	if err := w.start(); err != nil {
		return nil, err
	}

	tableBytes := w.table.serialize(w.blockSizes)
	tableOff := w.dw.offset()

	if _, err := w.dw.Write(tableBytes); err != nil {
		return nil, w.fail(fmt.Errorf("write path table: %w", err))
	}

	digest := w.dw.sum()

	trailer := make([]byte, trailerSize)
	binary.BigEndian.PutUint64(trailer[0:8], uint64(tableOff))
	binary.BigEndian.PutUint64(trailer[8:16], uint64(len(tableBytes)))
	binary.BigEndian.PutUint32(trailer[16:20], uint32(w.table.files))
	binary.BigEndian.PutUint32(trailer[20:24], uint32(len(w.table.nodes)))
	copy(trailer[24:56], digest[:])
	binary.BigEndian.PutUint16(trailer[56:58], FormatVersion)
	copy(trailer[60:64], trailerMagic[:])

	if _, err := w.dw.Write(trailer); err != nil {
		return nil, w.fail(fmt.Errorf("write trailer: %w", err))
	}

	w.state = stateFinalized
	w.codec.close()

	w.result.TableSize = int64(len(tableBytes))
	w.result.WrittenDirs = len(w.table.nodes) - 1 - w.table.files
	w.result.Digest = digest

	out := w.result

	return &out, nil
}

// Digest returns the trailer digest of a finalized session.
func (w *Writer) Digest() ([digestSize]byte, error) {
	var zero [digestSize]byte

	if w == nil {
		return zero, ErrNilWriter
	}

	if w.state != stateFinalized {
		return zero, ErrNotFinalized
	}

	return w.result.Digest, nil
}

// Pack writes an archive to out from the given inputs.
// Inputs are sorted by normalized path for deterministic output.
func Pack(ctx context.Context, out io.Writer, inputs []Input, opts PackOptions) (*PackResult, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyInputs
	}

	w, err := NewWriter(out, opts)
	if err != nil {
		return nil, err
	}

	if err := packInputs(ctx, w, inputs); err != nil {
		return nil, err
	}

	return w.Finalize()
}

// packInputs feeds sorted inputs into a writer session.
func packInputs(ctx context.Context, w *Writer, inputs []Input) error {
	if ctx == nil {
		ctx = context.Background()
	}

	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)
	sort.Slice(sorted, func(i, j int) bool {
		return NormalizePath(sorted[i].Path) < NormalizePath(sorted[j].Path)
	})

	for i := range sorted {
		if err := ctx.Err(); err != nil {
			return err
		}

		in := &sorted[i]
		if in.Dir {
			if err := w.MakeDir(in.Path); err != nil {
				return err
			}

			continue
		}

		if err := packOneInput(w, in); err != nil {
			return err
		}
	}

	return nil
}

// packOneInput opens and writes one file-backed input.
func packOneInput(w *Writer, in *Input) error {
	if in.Open == nil {
		return fmt.Errorf("input %s: Open is nil", in.Path)
	}

	rc, err := in.Open()
	if err != nil {
		return fmt.Errorf("open input %s: %w", in.Path, err)
	}

	writeErr := w.WriteFile(in.Path, rc, in.Size)
	closeErr := rc.Close()
	if writeErr != nil {
		return writeErr
	}

	if closeErr != nil {
		return fmt.Errorf("close input %s: %w", in.Path, closeErr)
	}

	return nil
}

// PackFile writes an archive to outPath.
func PackFile(ctx context.Context, outPath string, inputs []Input, opts PackOptions) (*PackResult, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyInputs
	}

	return packToFile(ctx, outPath, inputs, opts)
}

// PackDir packs the contents of srcRoot into an archive at outPath.
// Directory layout, including empty directories, is preserved.
func PackDir(ctx context.Context, srcRoot, outPath string, opts PackOptions) (*PackResult, error) {
	inputs, err := collectDirInputs(srcRoot)
	if err != nil {
		return nil, err
	}

	return packToFile(ctx, outPath, inputs, opts)
}

// packToFile runs one pack session against a freshly created file.
func packToFile(ctx context.Context, outPath string, inputs []Input, opts PackOptions) (*PackResult, error) {
	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create archive file: %w", err)
	}
	defer func() {
		if f != nil {
			_ = f.Close()
		}
	}()

	bw := bufio.NewWriterSize(f, packWriteBufferSize)

	w, err := NewWriter(bw, opts)
	if err != nil {
		return nil, err
	}

	if err := packInputs(ctx, w, inputs); err != nil {
		return nil, err
	}

	res, err := w.Finalize()
	if err != nil {
		return nil, err
	}

	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("flush archive file: %w", err)
	}

	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sync archive file: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close archive file: %w", err)
	}
	f = nil

	return res, nil
}

// collectDirInputs walks srcRoot and builds pack inputs with slash-separated
// relative paths. Walk order does not affect correctness, only layout.
func collectDirInputs(srcRoot string) ([]Input, error) {
	rootAbs, err := filepath.Abs(srcRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve source dir: %w", err)
	}

	var inputs []Input
	walkErr := filepath.WalkDir(rootAbs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if p == rootAbs {
			if !d.IsDir() {
				return fmt.Errorf("source %s is not a directory", srcRoot)
			}

			return nil
		}

		rel, err := filepath.Rel(rootAbs, p)
		if err != nil {
			return err
		}

		relSlash := filepath.ToSlash(rel)
		if d.IsDir() {
			inputs = append(inputs, Input{Path: relSlash, Dir: true})
			return nil
		}

		if !d.Type().IsRegular() {
			// Symlinks and special files have no representation in the format.
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		src := p
		inputs = append(inputs, Input{
			Path: relSlash,
			Size: info.Size(),
			Open: func() (io.ReadCloser, error) { return os.Open(src) },
		})

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk source dir: %w", walkErr)
	}

	return inputs, nil
}
