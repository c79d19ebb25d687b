package analysis

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// EscapeUnprintable returns a string where printable Unicode runes are preserved.
// Control and unprintable runes are escaped as \uXXXX. Invalid UTF-8 is escaped as \xXX.
func EscapeUnprintable(b []byte) string {
	var sb []byte
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		switch {
		case r == utf8.RuneError && size == 1:
			sb = fmt.Appendf(sb, "\\x%02X", b[0])
		case unicode.IsPrint(r):
			sb = utf8.AppendRune(sb, r)
		default:
			sb = fmt.Appendf(sb, "\\u%04X", r)
		}
		b = b[size:]
	}
	return string(sb)
}

// FormatRecovered returns both the escaped Unicode string and the hex encoding.
func FormatRecovered(b []byte) (string, string) {
	return EscapeUnprintable(b), fmt.Sprintf("%x", b)
}
