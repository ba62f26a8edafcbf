// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/zar

package zar

import (
	"fmt"
	"path"
	"strings"
)

// NormalizePath converts an archive/internal path to normalized slash-separated form.
// It trims spaces, accepts both "/" and "\", removes leading "./" and "/", and cleans "." segments.
func NormalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, `\`, `/`)
	raw = strings.TrimPrefix(raw, "./")
	raw = strings.TrimPrefix(raw, "/")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return strings.TrimSuffix(raw, "/")
}

// splitEntryPath normalizes raw and splits it into validated name components.
// The empty path resolves to zero components (the root directory).
func splitEntryPath(raw string) ([]string, error) {
	normalized := NormalizePath(raw)
	if normalized == "" {
		return nil, nil
	}

	parts := strings.Split(normalized, "/")
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEntryPath, raw)
		}

		if len(part) > maxNameLen {
			return nil, fmt.Errorf("%w: %q", ErrFileNameTooLong, part[:32])
		}
	}

	return parts, nil
}

// foldByte lowercases one ASCII letter and leaves every other byte untouched.
func foldByte(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}

	return b
}

// foldName lowercases ASCII letters of name. Non-ASCII bytes compare exact,
// so they pass through unchanged.
func foldName(name string) string {
	for i := 0; i < len(name); i++ {
		if c := name[i]; c >= 'A' && c <= 'Z' {
			b := []byte(name)
			for j := i; j < len(b); j++ {
				b[j] = foldByte(b[j])
			}

			return string(b)
		}
	}

	return name
}

// foldCompare compares two names byte-wise with ASCII letters folded.
// Result follows the strings.Compare convention.
func foldCompare(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	for i := 0; i < n; i++ {
		ca, cb := foldByte(a[i]), foldByte(b[i])
		if ca != cb {
			if ca < cb {
				return -1
			}

			return 1
		}
	}

	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// IsVersionedTitleDir reports whether name follows the external
// "<16-hex-digit-id>_v<decimal>" top-level directory convention.
// The core never enforces this pattern; the helper exists for consumers
// that organize title content inside archives.
func IsVersionedTitleDir(name string) bool {
	const idLen = 16

	if len(name) < idLen+3 {
		return false
	}

	for i := 0; i < idLen; i++ {
		if !isHexDigit(name[i]) {
			return false
		}
	}

	if name[idLen] != '_' || name[idLen+1] != 'v' {
		return false
	}

	for i := idLen + 2; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return false
		}
	}

	return true
}

// isHexDigit reports whether byte is a lowercase or uppercase hex digit.
func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}
