// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"fmt"
	"strings"
	"testing"
)

// encodeOctal is the inverse of DecodeOctal, used only by tests to
// exercise the round-trip property. It mirrors what tmux does when
// emitting %output payloads.
func encodeOctal(s string) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case b == '\\':
			out.WriteString(`\\`)
		case b < 0x20 || b >= 0x7f:
			fmt.Fprintf(&out, `\%03o`, b)
		default:
			out.WriteByte(b)
		}
	}
	return out.String()
}

func TestDecodeOctalBasics(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{`hello\015\012`, "hello\r\n"},
		{`\033[1mhi\033[0m`, "\x1b[1mhi\x1b[0m"},
		{`a\\b`, `a\b`},
		// Doubled backslash checked before octal: literal \ then "061".
		{`\\061`, `\061`},
		// Unknown escape passes through.
		{`\q`, `\q`},
		{`tail\`, `tail\`},
		// Truncated octal passes through.
		{`\03`, `\03`},
		{`\038`, `\038`},
	}
	for _, test := range tests {
		if got := DecodeOctal(test.in); got != test.want {
			t.Errorf("DecodeOctal(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}

// TestDecodeOctalRoundTrip checks that decoding inverts the escaping
// scheme over the full byte range, including sequences containing
// literal backslashes.
func TestDecodeOctalRoundTrip(t *testing.T) {
	t.Parallel()
	var all strings.Builder
	for b := 0; b < 256; b++ {
		all.WriteByte(byte(b))
	}
	inputs := []string{
		all.String(),
		`\ escaped \\ mixture \033`,
		"\x00\\\x01\\\\",
		strings.Repeat("\\", 7),
	}
	for _, input := range inputs {
		encoded := encodeOctal(input)
		if got := DecodeOctal(encoded); got != input {
			t.Errorf("round trip failed for %q: encoded %q, decoded %q", input, encoded, got)
		}
	}
}

func TestEncodeHex(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"a", "61"},
		{"ls\r", "6c 73 0d"},
		{"\x00\xff", "00 ff"},
		// Multi-byte UTF-8 encodes its raw bytes.
		{"é", "c3 a9"},
	}
	for _, test := range tests {
		if got := EncodeHex(test.in); got != test.want {
			t.Errorf("EncodeHex(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}

// TestHexFullByteRange checks that every byte value encodes to a
// two-digit lowercase pair and that the encoding is unambiguous.
func TestHexFullByteRange(t *testing.T) {
	t.Parallel()
	seen := make(map[string]bool)
	for b := 0; b < 256; b++ {
		encoded := EncodeHex(string([]byte{byte(b)}))
		if len(encoded) != 2 {
			t.Fatalf("EncodeHex of byte %d = %q, want two digits", b, encoded)
		}
		if seen[encoded] {
			t.Fatalf("duplicate encoding %q", encoded)
		}
		seen[encoded] = true
		if encoded != strings.ToLower(encoded) {
			t.Errorf("EncodeHex of byte %d = %q, want lowercase", b, encoded)
		}
	}
}
