// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/zar

package zar

import (
	"errors"
	"strings"
	"testing"
)

func TestSplitEntryPath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		raw     string
		want    []string
		wantErr error
	}{
		{name: "simple", raw: "a/b/c.txt", want: []string{"a", "b", "c.txt"}},
		{name: "backslash", raw: `a\b\c.txt`, want: []string{"a", "b", "c.txt"}},
		{name: "leading slash", raw: "/a/b", want: []string{"a", "b"}},
		{name: "dot prefix", raw: "./a", want: []string{"a"}},
		{name: "dot segments", raw: "a/./b", want: []string{"a", "b"}},
		{name: "dot-dot collapses", raw: "a/../b", want: []string{"b"}},
		{name: "leading dot-dot dropped", raw: "../a", want: []string{"a"}},
		{name: "trailing slash", raw: "a/b/", want: []string{"a", "b"}},
		{name: "empty", raw: "", want: nil},
		{name: "root dot", raw: ".", want: nil},
		{name: "long component", raw: strings.Repeat("x", maxNameLen+1), wantErr: ErrFileNameTooLong},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := splitEntryPath(tc.raw)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("splitEntryPath(%q) err=%v, want %v", tc.raw, err, tc.wantErr)
				}

				return
			}

			if err != nil {
				t.Fatalf("splitEntryPath(%q): %v", tc.raw, err)
			}

			if len(got) != len(tc.want) {
				t.Fatalf("splitEntryPath(%q)=%v, want %v", tc.raw, got, tc.want)
			}

			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("splitEntryPath(%q)[%d]=%q, want %q", tc.raw, i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestFoldCompare(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		a, b string
		want int
	}{
		{"abc", "ABC", 0},
		{"ABC", "abd", -1},
		{"b", "A", 1},
		{"abc", "abcd", -1},
		{"abcd", "abc", 1},
		// Non-ASCII bytes compare exact: 0xC3 0x93 vs 0xC3 0xB3 differ.
		{"f\xc3\x93o", "f\xc3\xb3o", -1},
		{"f\xc3\xb3o", "f\xc3\xb3o", 0},
	}

	for _, tc := range testCases {
		if got := foldCompare(tc.a, tc.b); got != tc.want {
			t.Fatalf("foldCompare(%q, %q)=%d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestFoldName(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in, want string
	}{
		{"", ""},
		{"abc", "abc"},
		{"ABC", "abc"},
		{"MiXeD.TXT", "mixed.txt"},
		{"f\xc3\x93o", "f\xc3\x93o"}, // non-ASCII untouched
	}

	for _, tc := range testCases {
		if got := foldName(tc.in); got != tc.want {
			t.Fatalf("foldName(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsVersionedTitleDir(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		want bool
	}{
		{"0005000010101000_v0", true},
		{"0005000010101000_v12", true},
		{"00050000ABCDEF99_v3", true},
		{"0005000010101000_v", false},
		{"0005000010101000v1", false},
		{"0005000010101000_x1", false},
		{"000500001010100_v1", false},   // 15 hex digits
		{"0005000010101000_v1a", false}, // non-decimal tail
		{"zz05000010101000_v1", false},
		{"", false},
	}

	for _, tc := range testCases {
		if got := IsVersionedTitleDir(tc.name); got != tc.want {
			t.Fatalf("IsVersionedTitleDir(%q)=%v, want %v", tc.name, got, tc.want)
		}
	}
}
