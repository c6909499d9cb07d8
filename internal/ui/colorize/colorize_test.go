package colorize

import (
	"strings"
	"testing"

	"binpatch/internal/disasm"
)

// stripANSI removes SGR escape sequences.
func stripANSI(s string) string {
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

func TestNoColor(t *testing.T) {
	t.Setenv(NoColorEnv, "1")

	line := "1000 test al, al"
	if got := Line(line, disasm.AMD64); got != line {
		t.Errorf("Line = %q, want unchanged", got)
	}
	if got, err := Assembly("nop", disasm.ARM64); err != nil || got != "nop" {
		t.Errorf("Assembly = %q, %v", got, err)
	}
}

func TestLinePreservesText(t *testing.T) {
	t.Setenv(NoColorEnv, "")

	for _, arch := range []disasm.Arch{disasm.AMD64, disasm.ARM64} {
		line := "140001010 jmp 0x140001020"
		got := Line(line, arch)
		if plain := stripANSI(got); plain != line {
			t.Errorf("%s: stripANSI(Line) = %q, want %q", arch, plain, line)
		}
	}
}

func TestStreamMarksHighlightedRange(t *testing.T) {
	t.Setenv(NoColorEnv, "1")

	s := disasm.Decode(disasm.AMD64, []byte{0x90, 0x84, 0xC0, 0x90}, 0x10)
	out := Stream(s, disasm.AMD64, 0x11, 0x13)
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "  10 ") || !strings.HasPrefix(lines[1], "> 11 ") || !strings.HasPrefix(lines[2], "  13 ") {
		t.Errorf("unexpected markers:\n%s", out)
	}
}

func TestStyleRegistered(t *testing.T) {
	if DisasmDark == nil || getDisasmStyle().Name != "disasm-dark" {
		t.Errorf("disasm-dark style not registered")
	}
}
