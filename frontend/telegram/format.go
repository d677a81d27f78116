package telegram

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// formatter parses only fenced code blocks, paragraphs and code spans.
// Emphasis, headings, lists and links stay literal text: bot messages echo
// user prompts and Python diagnostics, where "*", "#" and "-" are content.
var formatter = goldmark.New(
	goldmark.WithParser(parser.NewParser(
		parser.WithBlockParsers(
			util.Prioritized(parser.NewFencedCodeBlockParser(), 700),
			util.Prioritized(parser.NewParagraphParser(), 1000),
		),
		parser.WithInlineParsers(
			util.Prioritized(parser.NewCodeSpanParser(), 100),
		),
	)),
	goldmark.WithRenderer(renderer.NewRenderer(
		renderer.WithNodeRenderers(util.Prioritized(&htmlRenderer{}, 1)),
	)),
)

// FormatHTML converts a bot message to Telegram HTML. Fenced blocks become
// <pre><code>, backtick spans become <code>, everything else is escaped and
// kept as written.
func FormatHTML(text string) string {
	var buf bytes.Buffer
	if err := formatter.Convert([]byte(text), &buf); err != nil {
		return htmlEscape(text)
	}
	return strings.TrimSpace(buf.String())
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

func htmlEscape(s string) string { return textEscaper.Replace(s) }

func attrEscape(s string) string { return attrEscaper.Replace(s) }

type htmlRenderer struct{}

func (r *htmlRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindParagraph, r.renderParagraph)
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCodeBlock)
	reg.Register(ast.KindText, r.renderText)
	reg.Register(ast.KindCodeSpan, r.renderCodeSpan)
}

// blockBreak separates a block from the one before it, keeping blank lines
// from the source.
func blockBreak(w util.BufWriter, node ast.Node) {
	if node.PreviousSibling() == nil {
		return
	}
	_, _ = w.WriteString("\n")
	if node.HasBlankPreviousLines() {
		_, _ = w.WriteString("\n")
	}
}

func (r *htmlRenderer) renderParagraph(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		blockBreak(w, node)
	}
	return ast.WalkContinue, nil
}

func (r *htmlRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	blockBreak(w, node)
	n := node.(*ast.FencedCodeBlock)
	if lang := n.Language(source); len(lang) > 0 {
		_, _ = w.WriteString(`<pre><code class="language-` + attrEscape(string(lang)) + `">`)
	} else {
		_, _ = w.WriteString("<pre><code>")
	}
	var code strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}
	_, _ = w.WriteString(htmlEscape(strings.TrimSuffix(code.String(), "\n")))
	_, _ = w.WriteString("</code></pre>")
	return ast.WalkSkipChildren, nil
}

func (r *htmlRenderer) renderText(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.Text)
	_, _ = w.WriteString(htmlEscape(string(n.Segment.Value(source))))
	if n.SoftLineBreak() || n.HardLineBreak() {
		_, _ = w.WriteString("\n")
	}
	return ast.WalkContinue, nil
}

func (r *htmlRenderer) renderCodeSpan(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("<code>")
	} else {
		_, _ = w.WriteString("</code>")
	}
	return ast.WalkContinue, nil
}
