package sandbox

import (
	"fmt"
	"regexp"
	"strings"
)

// raiseStmt matches a raise statement at the start of a line.
var raiseStmt = regexp.MustCompile(`^(\s*)raise\s+(.+)$`)

// rewriteRaise turns each line-leading "raise X" into a call to the internal
// raise builtin. Lines that start inside a triple-quoted string, or leave one
// open, are left alone. Line numbers are preserved.
func rewriteRaise(src string) string {
	if !strings.Contains(src, "raise") {
		return src
	}
	lines := strings.Split(src, "\n")
	var open string
	for i, line := range lines {
		inside := open != ""
		_, open = scanCode(line, open, isComment)
		if inside || open != "" {
			continue
		}
		m := raiseStmt.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		expr, comment := splitComment(m[2])
		if j, _ := scanCode(expr, "", isFrom); j >= 0 {
			expr = expr[:j]
		}
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}
		lines[i] = m[1] + raiseName + "(" + expr + ")" + comment
	}
	return strings.Join(lines, "\n")
}

// splitComment separates a trailing "# comment" that is not inside a string
// literal.
func splitComment(s string) (code, comment string) {
	if i, _ := scanCode(s, "", isComment); i >= 0 {
		return s[:i], "  " + s[i:]
	}
	return s, ""
}

func isComment(rest string) bool { return rest[0] == '#' }
func isFrom(rest string) bool    { return strings.HasPrefix(rest, " from ") }

// scanCode walks s starting inside the string literal opened by quote ("" when
// outside any literal). It returns the first offset outside literals at which
// stop reports true, or -1, together with the triple quote still open at the
// end of s. Single-quoted literals never span lines.
func scanCode(s, quote string, stop func(rest string) bool) (int, string) {
	for i := 0; i < len(s); i++ {
		rest := s[i:]
		switch {
		case quote != "" && s[i] == '\\':
			i++
		case quote != "" && strings.HasPrefix(rest, quote):
			i += len(quote) - 1
			quote = ""
		case quote != "":
		case strings.HasPrefix(rest, `"""`) || strings.HasPrefix(rest, "'''"):
			quote = rest[:3]
			i += 2
		case s[i] == '"' || s[i] == '\'':
			quote = rest[:1]
		case stop(rest):
			return i, ""
		}
	}
	if len(quote) == 1 {
		quote = ""
	}
	return -1, quote
}

// guidelines describes the accepted subset of Python. It is appended to the
// generation instruction when the Interpreter engine is in use.
const guidelines = `The code runs in a restricted Python subset:
- No import statements, classes, try/except, with blocks, f-strings, generators or recursion.
- Use only these names: %s.
- Write output with print(). Signal errors with raise ValueError("...") on its own line.`

// Guidelines describes the language subset the Interpreter accepts.
func (in *Interpreter) Guidelines() string {
	return fmt.Sprintf(guidelines, strings.Join(in.cfg.caps.Names(), ", "))
}
