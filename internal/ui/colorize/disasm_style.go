package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// DisasmDark is the disassembly style; registered on package load.
var DisasmDark = styles.Register(chroma.MustNewStyle("disasm-dark", chroma.StyleEntries{
	chroma.Text:           "#E8E8E8",
	chroma.Background:     "bg:#1e1e1e",
	chroma.Comment:        "#8A8A8A",
	chroma.CommentPreproc: "#8A8A8A",

	// Mnemonics
	chroma.Keyword:       "#FFFFFF",
	chroma.KeywordPseudo: "#C792EA", // .byte for undecodable bytes
	chroma.NameFunction:  "#FFFFFF",

	// Registers
	chroma.Name:         "#7C9C9D",
	chroma.NameBuiltin:  "#7C9C9D",
	chroma.NameVariable: "#7C9C9D",

	chroma.LiteralNumber:        "#FF5F87",
	chroma.LiteralNumberHex:     "#FF5F87",
	chroma.LiteralNumberBin:     "#FF5F87",
	chroma.LiteralNumberInteger: "#FF5F87",

	chroma.NameLabel:   "#FFD700",
	chroma.Operator:    "#E8E8E8",
	chroma.Punctuation: "#E8E8E8",
	chroma.String:      "#EACD53",
}))
