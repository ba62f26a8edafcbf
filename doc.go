// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/zar

/*
Package zar provides pack, read, extract, and verify operations for ZAR
archives: single-file archives built for random-access reads of individually
compressed content. Files are split into fixed-size blocks (64 KiB by
default), each compressed on its own, so any byte range can be served by
decompressing only the covering blocks.

Archives are created with sequential appends only. The writer never seeks,
which allows packing straight to sockets, pipes, and write-once media; all
metadata is buffered in memory and flushed as a path table and fixed trailer
at finalize time. Every multi-byte integer on disk is big-endian, so packing
identical input produces byte-identical archives on any platform.

Integrity: the trailer stores a SHA-256 digest over the entire file except
the 64-byte trailer itself. Verification is opt-in on open (strict mode) or
on demand via Reader.Verify.

Path lookup folds ASCII letters only: "Data/FILE.bin" and "data/file.bin"
name the same entry, while non-ASCII bytes compare exact.

# Reading

Open an archive and read entries:

	r, err := zar.Open("content.zar")
	if err != nil {
	    return err
	}
	defer r.Close()

	data, err := r.ReadFile("model/tree.bin")
	if err != nil {
	    return err
	}
	_ = data

Random access without touching the rest of the file:

	f, err := r.OpenFile("video/intro.bik")
	if err != nil {
	    return err
	}
	head, err := f.ReadRange(0, 16)

Walk a directory with forkable value cursors:

	it, err := r.Iterate(r.Root())
	if err != nil {
	    return err
	}
	for e, ok := it.Next(); ok; e, ok = it.Next() {
	    // fork := it — an independent cursor at the current position
	    _ = e.Name
	}

Verify integrity up front:

	r, err := zar.OpenWithOptions("content.zar", zar.ReaderOptions{
	    StrictIntegrity: true,
	})

# Packing

Pack from stream-oriented inputs (order is deterministic by path):

	inputs := []zar.Input{
	    {Path: "config/game.ini", Size: n, Open: openFunc},
	    {Path: "logs", Dir: true},
	}
	res, err := zar.Pack(ctx, out, inputs, zar.PackOptions{})

Limit compression to selected paths with rules from
github.com/woozymasta/pathrules (an empty rule set compresses everything):

	res, err := zar.Pack(ctx, out, inputs, zar.PackOptions{
	    Compress: []pathrules.Rule{
	        {Action: pathrules.ActionInclude, Pattern: "*.txt"},
	    },
	})

Store everything uncompressed:

	res, err := zar.Pack(ctx, out, inputs, zar.PackOptions{
	    Scheme: zar.SchemeStore,
	})

Or drive the writer directly for full streaming control:

	w, err := zar.NewWriter(out, zar.PackOptions{})
	if err != nil {
	    return err
	}
	if err := w.WriteFile("a/b.bin", src, size); err != nil {
	    return err
	}
	res, err := w.Finalize()

Pack a directory tree from disk:

	res, err := zar.PackDir(ctx, "content/", "content.zar", zar.PackOptions{})

# Extracting

Extract everything with parallel workers:

	if err := r.Extract(ctx, "out/", zar.ExtractOptions{MaxWorkers: 4}); err != nil {
	    return err
	}
*/
package zar
