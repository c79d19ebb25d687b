// Package colorize highlights annotated AVM2 listings for the terminal.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Disabled reports whether AVMDIS_NO_COLOR turns highlighting off.
func Disabled() bool {
	return os.Getenv("AVMDIS_NO_COLOR") != ""
}

// getDisasmStyle returns the disassembly style with fallbacks
func getDisasmStyle() *chroma.Style {
	candidates := []string{"avm2-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// ColorizeListing highlights a multi-line listing.
func ColorizeListing(code string) (string, error) {
	if Disabled() {
		return code, nil
	}
	return format(code)
}

func format(code string) (string, error) {
	lexer := lexers.Get("avm2")
	if lexer == nil {
		return code, nil
	}
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}
	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code, err
	}
	return buf.String(), nil
}

// ColorizeInstructionLine colorizes a single listing line while preserving
// its column layout. The leading hex offset is drawn in gray.
func ColorizeInstructionLine(line string) string {
	if Disabled() {
		return line
	}

	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, ";") {
		return fmt.Sprintf("\033[38;2;106;153;85m%s\033[0m", line)
	}

	addr, rest, ok := strings.Cut(line, " ")
	if !ok || addr == "" || !isHex(addr) {
		return colorizeFullLine(line)
	}
	return fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m %s", addr, colorizeFullLine(rest))
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !((ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')) {
			return false
		}
	}
	return true
}

func colorizeFullLine(line string) string {
	out, err := format(line)
	if err != nil {
		return line
	}
	return strings.TrimSuffix(out, "\n")
}

// StripANSI removes ANSI escape sequences.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			result.WriteRune(r)
		}
	}
	return result.String()
}
