// Package disasm defines a common instruction representation used
// across architecture-specific disassemblers.
package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// Arch selects the decoder.
type Arch string

const (
	AMD64 Arch = "amd64"
	I386  Arch = "386"
	ARM64 Arch = "arm64"
)

// ParseArch maps a config or image architecture name to an Arch. Unknown
// names fall back to amd64.
func ParseArch(s string) Arch {
	switch strings.ToLower(s) {
	case "386", "i386", "x86":
		return I386
	case "arm64", "aarch64":
		return ARM64
	default:
		return AMD64
	}
}

// Inst is a simplified decoded instruction.
type Inst struct {
	VA   uint64 // virtual address of instruction
	Text string // formatted disassembly string
	Op   string // mnemonic in lowercase
	Raw  []byte // raw encoding
}

func (i Inst) String() string {
	return fmt.Sprintf("%x  %s", i.VA, i.Text)
}

// Stream is a linear sequence of instructions.
type Stream []Inst

// String renders one instruction per line.
func (s Stream) String() string {
	var b strings.Builder
	for i, inst := range s {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(inst.String())
	}
	return b.String()
}

// Decode disassembles code as if loaded at va. Undecodable bytes become a
// single ".byte" entry and decoding resumes at the next byte (x86) or word
// (arm64).
func Decode(arch Arch, code []byte, va uint64) Stream {
	var out Stream
	for len(code) > 0 {
		var inst Inst
		switch arch {
		case ARM64:
			inst = decodeARM64(code, va)
		case I386:
			inst = decodeX86(code, va, 32)
		default:
			inst = decodeX86(code, va, 64)
		}
		out = append(out, inst)
		code = code[len(inst.Raw):]
		va += uint64(len(inst.Raw))
	}
	return out
}

// Limit decodes at most n instructions starting at the beginning of code.
func Limit(arch Arch, code []byte, va uint64, n int) Stream {
	s := Decode(arch, code, va)
	if len(s) > n {
		s = s[:n]
	}
	return s
}

func decodeX86(code []byte, va uint64, mode int) Inst {
	inst, err := x86asm.Decode(code, mode)
	// Truncated input can decode to a bare prefix with Op 0.
	if err != nil || inst.Len == 0 || inst.Op == 0 {
		return badByte(code[:1], va)
	}
	return Inst{
		VA:   va,
		Text: x86asm.IntelSyntax(inst, va, nil),
		Op:   strings.ToLower(inst.Op.String()),
		Raw:  code[:inst.Len],
	}
}

func decodeARM64(code []byte, va uint64) Inst {
	if len(code) < 4 {
		return badByte(code, va)
	}
	inst, err := arm64asm.Decode(code[:4])
	if err != nil {
		return badByte(code[:4], va)
	}
	return Inst{
		VA:   va,
		Text: arm64asm.GNUSyntax(inst),
		Op:   strings.ToLower(inst.Op.String()),
		Raw:  code[:4],
	}
}

func badByte(raw []byte, va uint64) Inst {
	parts := make([]string, len(raw))
	for i, b := range raw {
		parts[i] = fmt.Sprintf("0x%02x", b)
	}
	return Inst{
		VA:   va,
		Text: ".byte " + strings.Join(parts, ", "),
		Op:   ".byte",
		Raw:  raw,
	}
}
