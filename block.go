// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/zar

package zar

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/woozymasta/lzss"
)

var (
	// zstdDecoderOnce guards lazy init of the shared stateless decoder.
	zstdDecoderOnce sync.Once
	zstdDecoder     *zstd.Decoder
	zstdDecoderErr  error
)

// getZstdDecoder returns the process-wide zstd decoder.
// DecodeAll on a nil-reader decoder is safe for concurrent use.
func getZstdDecoder() (*zstd.Decoder, error) {
	zstdDecoderOnce.Do(func() {
		zstdDecoder, zstdDecoderErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})

	return zstdDecoder, zstdDecoderErr
}

// blockCodec turns uncompressed chunks into self-describing block frames.
// A frame is a 4-byte header (scheme + u24 payload length) followed by the
// payload. Pure transform, no I/O.
type blockCodec struct {
	enc    *zstd.Encoder
	scheme CompressionScheme
}

// newBlockCodec builds a codec for the selected scheme and level.
func newBlockCodec(scheme CompressionScheme, level int) (*blockCodec, error) {
	if !scheme.valid() {
		return nil, ErrUnknownScheme
	}

	c := &blockCodec{scheme: scheme}
	if scheme == SchemeZstd {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			return nil, fmt.Errorf("init zstd encoder: %w", err)
		}

		c.enc = enc
	}

	return c, nil
}

// close releases codec resources.
func (c *blockCodec) close() {
	if c.enc != nil {
		_ = c.enc.Close()
	}
}

// appendFrame appends one framed block for chunk to dst and reports whether
// the block was stored compressed. Compression is skipped when compress is
// false or when the compressed form is not smaller than the input.
func (c *blockCodec) appendFrame(dst []byte, chunk []byte, compress bool) ([]byte, bool, error) {
	if len(chunk) > maxFramePayload {
		return dst, false, fmt.Errorf("%w: chunk of %d bytes", ErrInvalidBlockSize, len(chunk))
	}

	if compress && c.scheme != SchemeRaw && len(chunk) > 0 {
		compressed, err := c.compress(chunk)
		if err != nil {
			return dst, false, err
		}

		if len(compressed) < len(chunk) {
			dst = appendFrameHeader(dst, c.scheme, len(compressed))
			return append(dst, compressed...), true, nil
		}
	}

	dst = appendFrameHeader(dst, SchemeRaw, len(chunk))

	return append(dst, chunk...), false, nil
}

// compress encodes chunk with the codec scheme.
func (c *blockCodec) compress(chunk []byte) ([]byte, error) {
	switch c.scheme {
	case SchemeZstd:
		return c.enc.EncodeAll(chunk, nil), nil
	case SchemeLZSS:
		compressed, err := lzss.Compress(chunk, lzss.DefaultCompressOptions())
		if err != nil {
			return nil, fmt.Errorf("lzss compress: %w", err)
		}

		return compressed, nil
	default:
		return nil, ErrUnknownScheme
	}
}

// appendFrameHeader appends scheme byte and big-endian u24 payload length.
func appendFrameHeader(dst []byte, scheme CompressionScheme, payloadLen int) []byte {
	return append(dst,
		byte(scheme),
		byte(payloadLen>>16),
		byte(payloadLen>>8),
		byte(payloadLen),
	)
}

// parseFrameHeader decodes scheme and payload length from a frame prefix.
func parseFrameHeader(hdr []byte) (CompressionScheme, int, error) {
	if len(hdr) < frameHeaderSize {
		return 0, 0, fmt.Errorf("%w: truncated frame header", ErrCorruptBlock)
	}

	scheme := CompressionScheme(hdr[0])
	if !scheme.valid() {
		return 0, 0, fmt.Errorf("%w: scheme 0x%02x", ErrUnknownScheme, hdr[0])
	}

	payloadLen := int(hdr[1])<<16 | int(hdr[2])<<8 | int(hdr[3])

	return scheme, payloadLen, nil
}

// decompressBlock decodes one full frame and validates both the framed
// payload length and the expected uncompressed length.
func decompressBlock(frame []byte, expectedLen int) ([]byte, error) {
	scheme, payloadLen, err := parseFrameHeader(frame)
	if err != nil {
		return nil, err
	}

	if payloadLen != len(frame)-frameHeaderSize {
		return nil, fmt.Errorf("%w: declared payload %d, framed %d",
			ErrCorruptBlock, payloadLen, len(frame)-frameHeaderSize)
	}

	payload := frame[frameHeaderSize:]

	switch scheme {
	case SchemeRaw:
		if payloadLen != expectedLen {
			return nil, fmt.Errorf("%w: raw block %d bytes, expected %d",
				ErrCorruptBlock, payloadLen, expectedLen)
		}

		out := make([]byte, payloadLen)
		copy(out, payload)

		return out, nil
	case SchemeZstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("init zstd decoder: %w", err)
		}

		out, err := dec.DecodeAll(payload, make([]byte, 0, expectedLen))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", ErrCorruptBlock, err)
		}

		if len(out) != expectedLen {
			return nil, fmt.Errorf("%w: zstd block %d bytes, expected %d",
				ErrCorruptBlock, len(out), expectedLen)
		}

		return out, nil
	case SchemeLZSS:
		var buf bytes.Buffer
		buf.Grow(expectedLen)

		if _, err := lzss.DecompressToWriter(&buf, bytes.NewReader(payload), expectedLen, nil); err != nil {
			return nil, fmt.Errorf("%w: lzss: %w", ErrCorruptBlock, err)
		}

		if buf.Len() != expectedLen {
			return nil, fmt.Errorf("%w: lzss block %d bytes, expected %d",
				ErrCorruptBlock, buf.Len(), expectedLen)
		}

		return buf.Bytes(), nil
	default:
		return nil, ErrUnknownScheme
	}
}
