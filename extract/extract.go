// Package extract pulls source code out of language model responses.
package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Block is one fenced code block.
type Block struct {
	Lang string // info string language, lower-cased; empty when untagged
	Code string
}

var aliases = map[string][]string{
	"python":     {"python", "py", "python3"},
	"javascript": {"javascript", "js"},
	"go":         {"go", "golang"},
}

var md = goldmark.New()

// Blocks returns every fenced code block in src in document order.
func Blocks(src string) []Block {
	source := []byte(src)
	doc := md.Parser().Parse(text.NewReader(source))

	var blocks []Block
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		var buf bytes.Buffer
		lines := fb.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		blocks = append(blocks, Block{
			Lang: strings.ToLower(string(fb.Language(source))),
			Code: buf.String(),
		})
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

// Code returns the code for lang found in raw, trimmed. It takes the first
// fenced block tagged with lang (or an alias such as "py"), then an inline
// fence the Markdown parser did not treat as a block, and finally raw itself.
func Code(raw, lang string) string {
	names := tags(lang)
	for _, b := range Blocks(raw) {
		for _, name := range names {
			if b.Lang == name {
				return strings.TrimSpace(b.Code)
			}
		}
	}
	if m := inlineFence(names).FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

func tags(lang string) []string {
	lang = strings.ToLower(lang)
	if names, ok := aliases[lang]; ok {
		return names
	}
	return []string{lang}
}

func inlineFence(names []string) *regexp.Regexp {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	return regexp.MustCompile("(?is)```(?:" + strings.Join(quoted, "|") + `)[ \t]*\n(.*?)` + "```")
}
