package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// AVM2Dark is the listing palette.
var AVM2Dark = styles.Register(chroma.MustNewStyle("avm2-dark", chroma.StyleEntries{
	chroma.Text:       "#D4D4D4",
	chroma.Background: "bg:#1e1e1e",
	chroma.Comment:    "#6A9955", // resolved names

	chroma.Keyword:     "#569CD6", // mnemonics
	chroma.NameLabel:   "#FFD700", // loc_ labels
	chroma.NameBuiltin: "#C586C0", // unaligned-target notes

	chroma.LiteralNumberHex:     "#FF5F87",
	chroma.LiteralNumberInteger: "#FF5F87",

	chroma.Punctuation: "#D4D4D4",
}))

// AVM2Lexer tokenizes lines produced by analysis.AnnotatedInst.
var AVM2Lexer = lexers.Register(chroma.MustNewLexer(
	&chroma.Config{
		Name:      "avm2",
		Aliases:   []string{"abc", "avm2asm"},
		Filenames: []string{"*.avm2"},
	},
	func() chroma.Rules {
		return chroma.Rules{
			"root": {
				{Pattern: `\s+`, Type: chroma.Text},
				{Pattern: `;\s*unaligned targets:`, Type: chroma.NameBuiltin, Mutator: chroma.Push("comment")},
				{Pattern: `;`, Type: chroma.Comment, Mutator: chroma.Push("comment")},
				{Pattern: `loc_[0-9a-f]+:?`, Type: chroma.NameLabel},
				{Pattern: `-?0x[0-9a-fA-F]+`, Type: chroma.LiteralNumberHex},
				{Pattern: `\d+`, Type: chroma.LiteralNumberInteger},
				{Pattern: `[a-z][a-z0-9_]*`, Type: chroma.Keyword},
				{Pattern: `[,\[\]]`, Type: chroma.Punctuation},
				{Pattern: `.`, Type: chroma.Text},
			},
			"comment": {
				{Pattern: `\n`, Type: chroma.Text, Mutator: chroma.Pop(1)},
				{Pattern: `[^\n]+`, Type: chroma.Comment},
			},
		}
	},
))
