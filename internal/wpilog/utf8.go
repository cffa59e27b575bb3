package wpilog

import (
	"strings"
	"unicode/utf8"
)

// decodeText converts b to a string. Each run of invalid UTF-8 becomes one
// U+FFFD and repaired is set.
func decodeText(b []byte) (s string, repaired bool) {
	if utf8.Valid(b) {
		return string(b), false
	}
	return strings.ToValidUTF8(string(b), "\uFFFD"), true
}
