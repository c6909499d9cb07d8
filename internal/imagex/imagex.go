// Package imagex parses the container of an executable image (ELF or PE) to
// describe file offsets: which section they fall in, their virtual address
// and the nearest preceding symbol.
package imagex

import (
	"bytes"
	"debug/elf"
	"debug/pe"
	"fmt"
	"sort"
	"time"

	"github.com/ianlancetaylor/demangle"
	"github.com/patrickmn/go-cache"
)

type Format int

const (
	FormatRaw Format = iota
	FormatELF
	FormatPE
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatPE:
		return "pe"
	default:
		return "raw"
	}
}

// Section is a file-backed region mapped at VA.
type Section struct {
	Name          string
	VA, Off, Size uint64
	Exec          bool
}

type Symbol struct {
	Name string
	Addr uint64
	Size uint64
}

// Image is the parsed layout of an executable. Raw images have no sections
// and every offset is unmapped.
type Image struct {
	Format   Format
	Arch     string // amd64, 386, arm64 or ""
	Sections []Section
	Symbols  []Symbol // sorted by Addr
}

// Site describes one file offset.
type Site struct {
	Offset    uint64
	Mapped    bool
	Section   string
	Exec      bool
	VA        uint64
	Symbol    string
	SymbolOff uint64
}

func (s Site) String() string {
	if !s.Mapped {
		return fmt.Sprintf("0x%08X", s.Offset)
	}
	out := fmt.Sprintf("0x%08X %s va=0x%X", s.Offset, s.Section, s.VA)
	if s.Symbol != "" {
		out += fmt.Sprintf(" <%s+0x%X>", s.Symbol, s.SymbolOff)
	}
	return out
}

// Parse recognizes ELF and PE images; anything else is returned as a raw
// image rather than an error.
func Parse(data []byte) (*Image, error) {
	switch {
	case bytes.HasPrefix(data, []byte(elf.ELFMAG)):
		f, err := elf.NewFile(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parse elf: %w", err)
		}
		defer f.Close()
		return fromELF(f), nil
	case bytes.HasPrefix(data, []byte("MZ")):
		f, err := pe.NewFile(bytes.NewReader(data))
		if err != nil {
			// DOS stubs and other MZ files without a PE header are treated as raw.
			return &Image{Format: FormatRaw}, nil
		}
		defer f.Close()
		return fromPE(f), nil
	default:
		return &Image{Format: FormatRaw}, nil
	}
}

func fromELF(f *elf.File) *Image {
	im := &Image{Format: FormatELF}
	switch f.Machine {
	case elf.EM_X86_64:
		im.Arch = "amd64"
	case elf.EM_386:
		im.Arch = "386"
	case elf.EM_AARCH64:
		im.Arch = "arm64"
	}

	for _, s := range f.Sections {
		if s.Type == elf.SHT_NOBITS || s.Type == elf.SHT_NULL || s.Size == 0 || s.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		im.Sections = append(im.Sections, Section{
			Name: s.Name,
			VA:   s.Addr,
			Off:  s.Offset,
			Size: s.Size,
			Exec: s.Flags&elf.SHF_EXECINSTR != 0,
		})
	}

	// Static symbols first; stripped binaries fall back to .dynsym.
	syms, err := f.Symbols()
	if err != nil || len(syms) == 0 {
		syms, _ = f.DynamicSymbols()
	}
	for _, s := range syms {
		if s.Value == 0 || elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			continue
		}
		im.Symbols = append(im.Symbols, Symbol{Name: s.Name, Addr: s.Value, Size: s.Size})
	}
	im.sortSymbols()
	return im
}

func fromPE(f *pe.File) *Image {
	im := &Image{Format: FormatPE}
	switch f.Machine {
	case pe.IMAGE_FILE_MACHINE_AMD64:
		im.Arch = "amd64"
	case pe.IMAGE_FILE_MACHINE_I386:
		im.Arch = "386"
	case pe.IMAGE_FILE_MACHINE_ARM64:
		im.Arch = "arm64"
	}

	var base uint64
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader64:
		base = oh.ImageBase
	case *pe.OptionalHeader32:
		base = uint64(oh.ImageBase)
	}

	for _, s := range f.Sections {
		if s.Size == 0 {
			continue
		}
		im.Sections = append(im.Sections, Section{
			Name: s.Name,
			VA:   base + uint64(s.VirtualAddress),
			Off:  uint64(s.Offset),
			Size: uint64(s.Size),
			Exec: s.Characteristics&pe.IMAGE_SCN_MEM_EXECUTE != 0,
		})
	}

	// COFF symbols are rare in release images but used when present.
	for _, s := range f.Symbols {
		if s.SectionNumber <= 0 || int(s.SectionNumber) > len(f.Sections) {
			continue
		}
		sec := f.Sections[s.SectionNumber-1]
		im.Symbols = append(im.Symbols, Symbol{
			Name: s.Name,
			Addr: base + uint64(sec.VirtualAddress) + uint64(s.Value),
		})
	}
	im.sortSymbols()
	return im
}

func (im *Image) sortSymbols() {
	sort.SliceStable(im.Symbols, func(i, j int) bool {
		return im.Symbols[i].Addr < im.Symbols[j].Addr
	})
}

// Off2VA translates a file offset into a virtual address using the section
// table. It returns false if the offset is not backed by a section.
func (im *Image) Off2VA(off uint64) (Section, uint64, bool) {
	for _, s := range im.Sections {
		if off >= s.Off && off < s.Off+s.Size {
			return s, s.VA + (off - s.Off), true
		}
	}
	return Section{}, 0, false
}

// SymbolAt returns the closest symbol at or below va.
func (im *Image) SymbolAt(va uint64) (Symbol, bool) {
	i := sort.Search(len(im.Symbols), func(i int) bool {
		return im.Symbols[i].Addr > va
	})
	if i == 0 {
		return Symbol{}, false
	}
	s := im.Symbols[i-1]
	if s.Size != 0 && va >= s.Addr+s.Size {
		return Symbol{}, false
	}
	return s, true
}

// Locate describes the file offset off.
func (im *Image) Locate(off uint64) Site {
	site := Site{Offset: off}
	sec, va, ok := im.Off2VA(off)
	if !ok {
		return site
	}
	site.Mapped = true
	site.Section = sec.Name
	site.Exec = sec.Exec
	site.VA = va

	if sym, ok := im.SymbolAt(va); ok {
		site.Symbol = Demangle(sym.Name)
		site.SymbolOff = va - sym.Addr
	}
	return site
}

var demangled = cache.New(cache.NoExpiration, 10*time.Minute)

// Demangle returns the readable form of a C++ or Rust symbol name, or the
// name itself. Results are memoized.
func Demangle(name string) string {
	if v, ok := demangled.Get(name); ok {
		return v.(string)
	}
	d := demangle.Filter(name, demangle.NoClones)
	demangled.Set(name, d, cache.NoExpiration)
	return d
}
