// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/zar

package zar

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// extractCopyBufferSize defines per-worker buffer size for file copy during extraction.
const extractCopyBufferSize = 64 * 1024

// extractWorkItem stores one file node with its prepared output relative path.
type extractWorkItem struct {
	relPath string
	id      uint32
}

// Extract writes all entries of the archive to dstDir, preserving the
// directory layout including empty directories. Extraction is parallelized
// by MaxWorkers; on failure it returns the first encountered error.
func (r *Reader) Extract(ctx context.Context, dstDir string, opts ExtractOptions) error {
	if r == nil || r.ra == nil {
		return ErrNilReader
	}

	if r.isClosed() {
		return ErrClosed
	}

	if ctx == nil {
		ctx = context.Background()
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}

	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	workItems, err := r.prepareExtractItems(dstRootAbs)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, task := range workItems {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			return r.extractPreparedEntry(dstRootAbs, task, opts.OnEntryDone)
		})
	}

	return g.Wait()
}

// ExtractFile writes one file entry to destPath, creating parent directories.
func (r *Reader) ExtractFile(path, destPath string) error {
	f, err := r.OpenFile(path)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(destPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", destPath, err)
	}

	buf := make([]byte, extractCopyBufferSize)
	_, copyErr := io.CopyBuffer(out, f.Reader(), buf)
	closeErr := out.Close()
	if copyErr != nil {
		return fmt.Errorf("write %s: %w", path, copyErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close %s: %w", path, closeErr)
	}

	return nil
}

// Extract opens the archive at archivePath and extracts everything to destRoot.
func Extract(ctx context.Context, archivePath, destRoot string, opts ExtractOptions) error {
	r, err := Open(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	return r.Extract(ctx, destRoot, opts)
}

// prepareExtractItems validates entry paths, creates all directories from
// the path table, and returns the file work list.
func (r *Reader) prepareExtractItems(dstRootAbs string) ([]extractWorkItem, error) {
	items := make([]extractWorkItem, 0, r.table.files)
	for i := range r.table.nodes {
		node := &r.table.nodes[i]
		if i == 0 {
			continue
		}

		relPath, err := extractRelPath(r.table, uint32(i))
		if err != nil {
			return nil, err
		}

		if node.kind == kindDir {
			if err := os.MkdirAll(filepath.Join(dstRootAbs, relPath), 0o750); err != nil {
				return nil, fmt.Errorf("create output directory %s: %w", relPath, err)
			}

			continue
		}

		items = append(items, extractWorkItem{relPath: relPath, id: uint32(i)})
	}

	return items, nil
}

// extractRelPath builds a filesystem-safe relative output path for a node.
// Table parsing already rejects empty names; this guards traversal and
// separator bytes that are legal in the archive but unsafe on disk.
func extractRelPath(t *pathTable, id uint32) (string, error) {
	path := t.fullPath(id)
	for _, part := range strings.Split(path, "/") {
		if err := checkExtractComponent(part); err != nil {
			return "", fmt.Errorf("%w: %q", err, path)
		}
	}

	return filepath.FromSlash(path), nil
}

// checkExtractComponent rejects one unsafe output path component.
func checkExtractComponent(part string) error {
	switch part {
	case "", ".", "..":
		return ErrInvalidExtractPath
	}

	if strings.ContainsAny(part, "\\/:") || strings.ContainsRune(part, 0) {
		return ErrInvalidExtractPath
	}

	return nil
}

// extractPreparedEntry writes one file work item to the destination root.
func (r *Reader) extractPreparedEntry(
	dstRootAbs string,
	task extractWorkItem,
	onEntryDone func(path string, written int64, outputPath string),
) error {
	node := &r.table.nodes[task.id]
	outPath := filepath.Join(dstRootAbs, task.relPath)

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", task.relPath, err)
	}

	f := &File{r: r, node: node, id: task.id, cacheIdx: -1}
	buf := make([]byte, extractCopyBufferSize)

	written, copyErr := io.CopyBuffer(out, f.Reader(), buf)
	closeErr := out.Close()
	if copyErr != nil {
		return fmt.Errorf("write %s: %w", task.relPath, copyErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close %s: %w", task.relPath, closeErr)
	}

	if onEntryDone != nil {
		onEntryDone(r.table.fullPath(task.id), written, outPath)
	}

	return nil
}
