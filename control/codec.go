// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import "strings"

// DecodeOctal inverts tmux's control-mode output escaping. Non-printable
// bytes arrive as \ddd (exactly three octal digits) and a literal
// backslash arrives doubled (\\). Any other backslash sequence passes
// through unchanged rather than erroring — tmux has grown escape forms
// over the years and an unknown one must not corrupt the stream.
//
// The doubled-backslash case must be checked before the octal case:
// "\\\\061" is a literal backslash followed by the digits 061, not an
// escaped byte.
func DecodeOctal(s string) string {
	// Fast path: no backslash, no work.
	if !strings.ContainsRune(s, '\\') {
		return s
	}

	var out strings.Builder
	out.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' {
			out.WriteByte(ch)
			continue
		}
		// Doubled backslash first.
		if i+1 < len(s) && s[i+1] == '\\' {
			out.WriteByte('\\')
			i++
			continue
		}
		// Three octal digits.
		if i+3 < len(s) && isOctalDigit(s[i+1]) && isOctalDigit(s[i+2]) && isOctalDigit(s[i+3]) {
			value := (s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0')
			out.WriteByte(value)
			i += 3
			continue
		}
		// Unknown escape: pass through verbatim.
		out.WriteByte(ch)
	}
	return out.String()
}

// EncodeHex renders the UTF-8 byte sequence of s as space-separated
// two-digit lowercase hex values, the form send-keys -H expects. Hex
// has no characters that collide with the line protocol's delimiters,
// which is why keystroke payloads travel this way.
func EncodeHex(s string) string {
	if s == "" {
		return ""
	}
	const digits = "0123456789abcdef"
	out := make([]byte, 0, len(s)*3-1)
	for i := 0; i < len(s); i++ {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, digits[s[i]>>4], digits[s[i]&0x0f])
	}
	return string(out)
}

func isOctalDigit(b byte) bool { return b >= '0' && b <= '7' }
