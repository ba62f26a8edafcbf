// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/zar

package zar

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
)

// digestWriter tees every appended byte into an incremental SHA-256 state
// and tracks the absolute write offset. The writer engine funnels all output
// through one digestWriter, so the running offset doubles as proof that
// writes are append-only.
type digestWriter struct {
	w io.Writer
	h hash.Hash
	n int64
}

// newDigestWriter wraps w with digest and offset accounting.
func newDigestWriter(w io.Writer) *digestWriter {
	return &digestWriter{w: w, h: sha256.New()}
}

// Write appends p to the underlying stream and feeds written bytes to the digest.
func (dw *digestWriter) Write(p []byte) (int, error) {
	n, err := dw.w.Write(p)
	if n > 0 {
		// Hash exactly what reached the stream; a short write must not
		// desynchronize digest and file content.
		dw.h.Write(p[:n])
		dw.n += int64(n)
	}

	if err == nil && n != len(p) {
		return n, io.ErrShortWrite
	}

	return n, err
}

// offset returns the absolute offset of the next appended byte.
func (dw *digestWriter) offset() int64 {
	return dw.n
}

// sum returns the digest over all bytes appended so far.
func (dw *digestWriter) sum() [digestSize]byte {
	var out [digestSize]byte
	copy(out[:], dw.h.Sum(nil))

	return out
}

// hashArchivePrefix calculates SHA-256 over the first n bytes of the source.
// Verification re-hashes everything the trailer digest covers.
func hashArchivePrefix(ra io.ReaderAt, n int64) ([digestSize]byte, error) {
	var out [digestSize]byte

	h := sha256.New()
	if _, err := io.Copy(h, io.NewSectionReader(ra, 0, n)); err != nil {
		return out, fmt.Errorf("hash archive prefix: %w", err)
	}

	copy(out[:], h.Sum(nil))

	return out, nil
}
