// Package colorize highlights disassembly for terminal output.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"binpatch/internal/disasm"
)

// NoColorEnv disables highlighting when set to any value.
const NoColorEnv = "BINPATCH_NO_COLOR"

func disabled() bool {
	return os.Getenv(NoColorEnv) != ""
}

// lexerFor returns an assembly lexer for arch with fallbacks.
func lexerFor(arch disasm.Arch) chroma.Lexer {
	candidates := []string{"nasm", "gas"}
	if arch == disasm.ARM64 {
		candidates = []string{"armasm", "gas", "nasm"}
	}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

func getDisasmStyle() *chroma.Style {
	for _, name := range []string{"disasm-dark", "dracula", "monokai"} {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

func getTerminalFormatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Assembly highlights a block of assembly text. On any failure the input is
// returned unchanged together with the error.
func Assembly(code string, arch disasm.Arch) (string, error) {
	if disabled() {
		return code, nil
	}
	lexer := lexerFor(arch)
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

// Stream renders a decoded stream with gray addresses and highlighted
// instructions, one per line. Instructions whose address falls in
// [hiStart, hiEnd) are prefixed with a marker.
func Stream(s disasm.Stream, arch disasm.Arch, hiStart, hiEnd uint64) string {
	var b strings.Builder
	for i, inst := range s {
		if i > 0 {
			b.WriteByte('\n')
		}
		mark := "  "
		if inst.VA >= hiStart && inst.VA < hiEnd {
			mark = "> "
		}
		b.WriteString(mark)
		b.WriteString(Line(fmt.Sprintf("%x %s", inst.VA, inst.Text), arch))
	}
	return b.String()
}

// Line colorizes a single "address text" line while preserving its layout.
func Line(line string, arch disasm.Arch) string {
	if disabled() {
		return line
	}

	addr, rest, ok := strings.Cut(line, " ")
	if !ok || !isHex(addr) {
		return colorizeFull(line, arch)
	}
	// Address in gray.
	return fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m %s", addr, colorizeFull(rest, arch))
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !((ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')) {
			return false
		}
	}
	return true
}

func colorizeFull(line string, arch disasm.Arch) string {
	out, err := Assembly(line, arch)
	if err != nil {
		return line
	}
	// Lexers append a newline; the input is a single line.
	return strings.ReplaceAll(out, "\n", "")
}
